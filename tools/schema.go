package tools

import "github.com/invopop/jsonschema"

// GenerateSchema derives a JSON Schema for a tool input struct. Schemas are
// inlined (no $ref) and closed to unknown properties so the model gets an
// exact contract.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
