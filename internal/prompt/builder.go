// Package prompt builds the chat messages sent to the LLM for one extraction
// chunk: a fixed system instruction plus a user message describing the
// requested fields, few-shot examples (when the schema provides them), and
// the document text.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quarrydev/quarry/internal/providers"
	"github.com/quarrydev/quarry/internal/schema"
)

const systemMessage = "You are an expert document data extractor. " +
	"Your task is to extract structured information from documents based on the provided schema. " +
	"You must return the output in valid JSON format."

// Builder constructs messages for a schema. Deterministic given schema and
// inputs.
type Builder struct {
	schema *schema.Schema
}

// NewBuilder creates a builder for the given schema.
func NewBuilder(s *schema.Schema) *Builder {
	return &Builder{schema: s}
}

// SystemMessage returns the system instruction.
func (b *Builder) SystemMessage() string {
	return systemMessage
}

// Messages returns the ordered message list for one request: the system
// instruction followed by the user message for the requested fields.
// A nil or empty fieldNames requests every schema field.
func (b *Builder) Messages(docText string, fieldNames []string) []providers.Message {
	return []providers.Message{
		{Role: "system", Content: b.SystemMessage()},
		{Role: "user", Content: b.UserMessage(docText, fieldNames)},
	}
}

// UserMessage renders the extraction request for the given fields.
func (b *Builder) UserMessage(docText string, fieldNames []string) string {
	fields := b.resolveFields(fieldNames)

	var sb strings.Builder
	sb.WriteString("Extract the following information from the document:\n\n")

	template := make(map[string]map[string]any, len(fields))
	for _, f := range fields {
		fmt.Fprintf(&sb, "- **%s** (%s): %s\n", f.Name, f.Type, f.Description)
		if f.Grounding {
			sb.WriteString("  - *Grounding required*: Include exact text snippets.\n")
		}
		if f.Reasoning {
			sb.WriteString("  - *Reasoning required*: Provide reasoning for the answer.\n")
		}

		item := make(map[string]any, 3)
		if f.Grounding {
			item["grounding"] = []string{"<text_snippet>"}
		}
		if f.Reasoning {
			item["reasoning"] = "<explanation>"
		}
		item["answer"] = fmt.Sprintf("<%s_value>", sanitizeTypeName(f.Type))
		template[f.Name] = item
	}
	sb.WriteString("\n")

	if examples := b.renderExamples(fieldNames); examples != "" {
		sb.WriteString("Examples:\n")
		sb.WriteString(examples)
	} else {
		sb.WriteString("Expected Output Format:\n")
		sb.WriteString(marshalJSON(template))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Document:\n")
	sb.WriteString(docText)
	sb.WriteString("\n\nOutput JSON:")

	return sb.String()
}

// resolveFields maps requested names to definitions, skipping unknown names.
// Nil or empty means every schema field in declaration order.
func (b *Builder) resolveFields(fieldNames []string) []schema.Field {
	if len(fieldNames) == 0 {
		return b.schema.Fields()
	}
	fields := make([]schema.Field, 0, len(fieldNames))
	for _, name := range fieldNames {
		if f, ok := b.schema.Get(name); ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// renderExamples renders the schema's few-shot examples restricted to the
// requested fields. Returns "" when no example contributes anything.
func (b *Builder) renderExamples(fieldNames []string) string {
	if len(b.schema.Examples) == 0 {
		return ""
	}

	requested := make(map[string]bool, len(fieldNames))
	for _, n := range fieldNames {
		requested[n] = true
	}

	var sb strings.Builder
	for _, ex := range b.schema.Examples {
		output := make(map[string]map[string]any)
		for name, extraction := range ex.Extractions {
			if len(fieldNames) > 0 && !requested[name] {
				continue
			}
			f, ok := b.schema.Get(name)
			if !ok {
				continue
			}

			item := make(map[string]any, 3)
			if f.Grounding && len(extraction.Grounding) > 0 {
				item["grounding"] = extraction.Grounding
			}
			if f.Reasoning && extraction.Reasoning != "" {
				item["reasoning"] = extraction.Reasoning
			}
			item["answer"] = extraction.Answer
			output[name] = item
		}
		if len(output) > 0 {
			fmt.Fprintf(&sb, "Input: %s\nOutput: %s\n\n", ex.Text, marshalJSON(output))
		}
	}
	return sb.String()
}

// sanitizeTypeName makes a type hint safe for a placeholder token.
func sanitizeTypeName(t string) string {
	return strings.ReplaceAll(strings.TrimSpace(t), " ", "_")
}

// marshalJSON renders v as indented JSON without HTML escaping, so the
// <placeholder> tokens survive intact. Map keys marshal in sorted order,
// keeping output deterministic.
func marshalJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}
