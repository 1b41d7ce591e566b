// Package extract implements per-document field extraction: it plans field
// chunks, drives each chunk through a retrying LLM request, parses responses,
// grounds claimed evidence in the source text, and merges chunk outcomes into
// one document result.
package extract

// Document is one immutable input: an identifier and the free text to mine.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Usage aggregates token counts across one or more LLM calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *Usage) add(prompt, completion, total int) {
	u.PromptTokens += prompt
	u.CompletionTokens += completion
	u.TotalTokens += total
}

// Anchor is one character-offset range in the source document.
type Anchor struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// GroundingSpan ties a claimed evidence snippet to the places it
// (approximately) occurs in the document. Anchors is empty when no match was
// found.
type GroundingSpan struct {
	Text    string   `json:"text"`
	Anchors []Anchor `json:"anchors"`
}

// FieldResult is the extracted value for one field. Reasoning and Grounding
// are present only when the field's schema requests them and the model
// supplied them.
type FieldResult struct {
	Answer    any             `json:"answer"`
	Reasoning string          `json:"reasoning,omitempty"`
	Grounding []GroundingSpan `json:"grounding,omitempty"`
}

// ChunkResult records the outcome of one chunk of one document's extraction.
type ChunkResult struct {
	Index   int      `json:"chunk_index"`
	Fields  []string `json:"fields"`
	Success bool     `json:"success"`

	// Populated on request success
	Latency     float64        `json:"latency,omitempty"` // seconds
	Usage       *Usage         `json:"usage,omitempty"`
	RawResponse string         `json:"raw_response,omitempty"`
	Reasoning   string         `json:"reasoning,omitempty"`
	Parsed      map[string]any `json:"parsed_fields,omitempty"`

	// Populated on failure
	Error string `json:"error,omitempty"`
}

// DocumentResult is the merged outcome for one document. Success is true iff
// every chunk's request succeeded and parsed; Extraction still carries the
// union of fields from every chunk that did parse, so partial progress is
// never discarded.
type DocumentResult struct {
	ID         string                 `json:"id"`
	Extraction map[string]FieldResult `json:"extraction"`
	Errors     []string               `json:"errors"`
	Success    bool                   `json:"success"`
	Latency    float64                `json:"latency"` // seconds

	// Optional detail, controlled by extractor configuration
	Chunks      []ChunkResult `json:"chunks,omitempty"`
	Usage       *Usage        `json:"usage,omitempty"`
	RawResponse string        `json:"raw_response,omitempty"`
	Error       string        `json:"error,omitempty"` // summary, set when Success is false
}
