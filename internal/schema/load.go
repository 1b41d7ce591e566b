package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed meta.schema.json
var metaSchemaJSON []byte

// fileSchema mirrors the YAML schema document layout.
type fileSchema struct {
	Fields   []Field   `yaml:"fields"`
	Examples []Example `yaml:"examples"`
}

// Load reads a schema document from a YAML file. The document is validated
// against the embedded meta-schema before decoding, so malformed schemas fail
// with a precise location instead of surfacing later as odd prompts.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML schema document.
func Parse(data []byte) (*Schema, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var fs fileSchema
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	return New(fs.Fields, fs.Examples...)
}

// validateDocument checks the YAML document against the meta-schema.
// The YAML is round-tripped through JSON so the validator sees the value
// types it expects.
func validateDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to normalize schema document: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(jsonBytes, &normalized); err != nil {
		return fmt.Errorf("failed to normalize schema document: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("meta.schema.json", bytes.NewReader(metaSchemaJSON)); err != nil {
		return fmt.Errorf("failed to load meta-schema: %w", err)
	}
	meta, err := compiler.Compile("meta.schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile meta-schema: %w", err)
	}

	if err := meta.Validate(normalized); err != nil {
		return fmt.Errorf("schema document is invalid: %w", err)
	}
	return nil
}
