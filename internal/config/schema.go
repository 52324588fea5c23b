package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

var compiled *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("editions.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("config: add schema: %v", err))
	}
	compiled = compiler.MustCompile("editions.schema.json")
}

// validateSchema checks a decoded YAML document. The document goes through
// JSON first so numbers and maps have the shapes the validator expects.
func validateSchema(doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("document does not match schema: %w", err)
	}
	return nil
}
