package devicetype

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	schemaDraft = "https://json-schema.org/draft/2020-12/schema"
	schemaBase  = "https://rvc-bridge.local/schemas"
)

// JSONSchema renders a command's parameter schema as a JSON Schema
// (draft 2020-12) document.
//
// Extra properties are allowed, matching Validate which ignores
// unrecognised parameters.
func (s Schema) JSONSchema(deviceType, command string) map[string]any {
	properties := make(map[string]any, len(s))
	required := make([]string, 0, len(s))

	for _, p := range s {
		prop := map[string]any{"type": string(p.Type)}
		if p.Min != nil {
			prop["minimum"] = *p.Min
		}
		if p.Max != nil {
			prop["maximum"] = *p.Max
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc := map[string]any{
		"$schema":    schemaDraft,
		"$id":        schemaURL(deviceType, command),
		"title":      deviceType + "." + command,
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func schemaURL(deviceType, command string) string {
	return fmt.Sprintf("%s/%s/%s.json", schemaBase, deviceType, command)
}

// compileSchema round-trips the document through JSON so the compiler sees
// the value shapes it expects, then compiles it.
func compileSchema(deviceType, command string, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	url := schemaURL(deviceType, command)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return compiled, nil
}
