package export

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/models"
)

// RecordSchema returns the JSON Schema of a single ResponseRecord.
// Replacement stores can validate their output against it.
func RecordSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(models.ResponseRecord{})
	schema.Title = "dotmotion response record"
	schema.Description = "One evaluated random-dot-motion trial."

	directions := []any{string(models.DirectionLeft), string(models.DirectionRight)}
	if p, ok := schema.Properties.Get("correct"); ok {
		p.Enum = directions
		p.Description = "True motion direction."
	}
	if p, ok := schema.Properties.Get("user"); ok {
		p.Enum = append(directions, models.NoResponse)
		p.Description = "Observer response, or no_response on timeout."
	}
	if p, ok := schema.Properties.Get("correct_guess"); ok {
		p.Description = "Whether user equals correct."
	}
	if p, ok := schema.Properties.Get("coherence"); ok {
		p.Description = "Coherence magnitude, or signed by direction in the signed variant."
	}
	if p, ok := schema.Properties.Get("reaction_time"); ok {
		p.Minimum = json.Number("0")
		p.Description = "Milliseconds from stimulus onset to response."
	}
	if p, ok := schema.Properties.Get("name"); ok {
		n := uint64(constants.MaxObserverNameLen)
		p.MaxLength = &n
		p.Description = "Sanitized observer name; absent for anonymous trials."
	}
	return schema
}

// ArraySchema wraps RecordSchema as the schema of a full export.
func ArraySchema() *jsonschema.Schema {
	item := RecordSchema()
	item.Version = ""
	item.ID = ""
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "dotmotion results",
		Description: "The complete record stream in append order.",
		Type:        "array",
		Items:       item,
	}
}

// MarshalSchema renders a schema as indented JSON.
func MarshalSchema(schema *jsonschema.Schema) ([]byte, error) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	return append(data, '\n'), nil
}

