package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"github.com/kestrelworks/chatloop/internal/provider"
	"github.com/kestrelworks/chatloop/internal/runner"
	"github.com/kestrelworks/chatloop/internal/wire"
	"github.com/kestrelworks/chatloop/memory"
	"github.com/kestrelworks/chatloop/tools"
)

func main() {
	cmd := &cli.Command{
		Name:  "chat",
		Usage: "stream a tool-using model conversation in the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Value: provider.DefaultModel, Usage: "model to be used for responses", Sources: cli.EnvVars("CHATLOOP_MODEL")},
			&cli.StringFlag{Name: "system", Usage: "system prompt", Sources: cli.EnvVars("CHATLOOP_SYSTEM")},
			&cli.IntFlag{Name: "max-tokens", Value: 1024, Usage: "maximum number of tokens to generate", Sources: cli.EnvVars("CHATLOOP_MAX_TOKENS")},
			&cli.IntFlag{Name: "thought-budget", Usage: "extended thinking token budget, 0 disables", Sources: cli.EnvVars("CHATLOOP_THOUGHT_BUDGET")},
			&cli.StringFlag{Name: "endpoint", Usage: "NDJSON inference endpoint; the Anthropic API is used when unset", Sources: cli.EnvVars("CHATLOOP_ENDPOINT")},
			&cli.StringFlag{Name: "api-key", Usage: "bearer token for --endpoint", Sources: cli.EnvVars("CHATLOOP_API_KEY")},
			&cli.StringFlag{Name: "session", Usage: "session file path", Sources: cli.EnvVars("CHATLOOP_SESSION")},
			&cli.BoolFlag{Name: "no-resume", Usage: "start with an empty transcript"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "enable debug logging", Sources: cli.EnvVars("CHATLOOP_VERBOSE")},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))
}

func buildTransport(cmd *cli.Command) (provider.Transport, error) {
	if ep := cmd.String("endpoint"); ep != "" {
		return &provider.HTTPTransport{Endpoint: ep, APIKey: cmd.String("api-key")}, nil
	}
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil, errors.New("missing ANTHROPIC_API_KEY; export it or pass --endpoint")
	}
	return &provider.AnthropicTransport{Client: provider.NewAnthropicClient()}, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	initLogger(cmd.Bool("verbose"))

	transport, err := buildTransport(cmd)
	if err != nil {
		return err
	}

	sessionPath := cmd.String("session")
	if sessionPath == "" {
		sessionPath = memory.DefaultPath()
	}

	rend := newRenderer(os.Stdout)
	r := runner.New(transport, tools.Default(), runner.Config{
		Model:         cmd.String("model"),
		System:        cmd.String("system"),
		MaxTokens:     cmd.Int("max-tokens"),
		ThoughtBudget: cmd.Int("thought-budget"),
		OnUpdate:      rend.Update,
		OnUsage: func(u wire.Usage) {
			slog.Debug("usage", "input_tokens", u.InputTokens, "output_tokens", u.OutputTokens, "total_tokens", u.TotalTokens)
		},
	})

	if !cmd.Bool("no-resume") {
		persisted, err := memory.LoadConversation(sessionPath)
		if err != nil {
			slog.Warn("failed to load persisted conversation", "path", sessionPath, "err", err)
		} else if len(persisted) > 0 {
			r.Restore(persisted)
			slog.Info("resumed session", "path", sessionPath, "messages", len(persisted))
		}
	}

	// Graceful shutdown on Ctrl-C (SIGINT) / SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Chat with Claude (Ctrl-C to quit)")

	// stdin reader goroutine -> lines into channel
	inputCh := make(chan string)
	go func() {
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
		close(inputCh)
	}()

outer:
	for {
		fmt.Print("[94mYou[0m: ")
		var (
			user string
			ok   bool
		)
		select {
		case <-ctx.Done():
			break outer
		case user, ok = <-inputCh:
			if !ok {
				break outer
			}
		}
		if user == "" {
			continue
		}

		rend.Reset()
		final, err := r.RunTurn(ctx, user)
		if err != nil {
			if ctx.Err() != nil {
				break outer
			}
			logTurnError(err)
			continue
		}
		rend.Finish(final)

		if err := memory.SaveConversation(sessionPath, r.Transcript()); err != nil {
			slog.Warn("failed to save conversation", "path", sessionPath, "err", err)
		}
	}
	fmt.Println("\nExiting...")

	if err := scanner.Err(); err != nil {
		slog.Warn("stdin read error", "err", err)
	}
	return nil
}

// logTurnError distinguishes transport failures (retryable) from protocol
// violations (the endpoint is misbehaving).
func logTurnError(err error) {
	var te *provider.TransportError
	var pe *wire.ProtocolError
	switch {
	case errors.As(err, &te):
		slog.Error("transport failure", "status", te.Status, "err", te.Err)
	case errors.As(err, &pe):
		slog.Error("protocol violation from endpoint", "reason", pe.Reason)
	default:
		slog.Error("turn failed", "err", err)
	}
}
