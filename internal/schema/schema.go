// Package schema defines the extraction schema: the named fields to pull out
// of each document, per-field grounding/reasoning requirements, and optional
// few-shot examples used to prime requests.
package schema

import (
	"fmt"
)

// Field is one named unit of information to extract.
type Field struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	// Type is a free-form type hint rendered into the prompt
	// (e.g. "string", "number", "list of strings"). Defaults to "string".
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Grounding requests literal supporting snippets from the document.
	Grounding bool `yaml:"grounding,omitempty" json:"grounding,omitempty"`

	// Reasoning requests an explanation alongside the answer.
	Reasoning bool `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
}

// ExampleOutput is the expected extraction for one field in a few-shot example.
type ExampleOutput struct {
	Answer    any      `yaml:"answer" json:"answer"`
	Reasoning string   `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
	Grounding []string `yaml:"grounding,omitempty" json:"grounding,omitempty"`
}

// Example is one few-shot example: a document and its expected extractions.
type Example struct {
	Text        string                   `yaml:"text" json:"text"`
	Extractions map[string]ExampleOutput `yaml:"extractions" json:"extractions"`
}

// Schema holds the ordered field set and any few-shot examples.
type Schema struct {
	fields   []Field
	index    map[string]int
	Examples []Example
}

// New builds a schema from an ordered field list. Duplicate field names are
// rejected so the chunk planner's partition stays unambiguous.
func New(fields []Field, examples ...Example) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema requires at least one field")
	}

	s := &Schema{
		fields:   make([]Field, 0, len(fields)),
		index:    make(map[string]int, len(fields)),
		Examples: examples,
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field missing name: %+v", f)
		}
		if _, ok := s.index[f.Name]; ok {
			return nil, fmt.Errorf("duplicate field name: %s", f.Name)
		}
		if f.Type == "" {
			f.Type = "string"
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// Get returns the field definition for name.
func (s *Schema) Get(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldNames returns the field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}
