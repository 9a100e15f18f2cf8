package agentloop

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects the exported fields of T into a parameter Schema.
// Fields tagged without omitempty are required.
func SchemaFor[T any]() Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var zero T
	reflected := reflector.Reflect(zero)
	out := Schema{Properties: map[string]Property{}}
	if reflected == nil {
		return out
	}
	if reflected.Properties != nil {
		for pair := reflected.Properties.Oldest(); pair != nil; pair = pair.Next() {
			prop := Property{}
			if pair.Value != nil {
				prop.Type = Kind(pair.Value.Type)
				prop.Description = pair.Value.Description
				for _, item := range pair.Value.Enum {
					prop.Enum = append(prop.Enum, fmt.Sprint(item))
				}
			}
			out.Properties[pair.Key] = prop
		}
	}
	if len(reflected.Required) > 0 {
		out.Required = append([]string(nil), reflected.Required...)
	}
	return out
}

// NewTypedTool builds a Tool whose schema is reflected from T and whose
// handler receives the arguments decoded into T.
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, input T) (string, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Schema:      SchemaFor[T](),
		Handler: HandlerFunc(func(ctx context.Context, args Arguments) (string, error) {
			var input T
			if err := args.Decode(&input); err != nil {
				return "", err
			}
			return fn(ctx, input)
		}),
	}
}
