package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/quarrydev/quarry/internal/providers"
	"github.com/quarrydev/quarry/internal/schema"
)

func fourFieldSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.Field{
		{Name: "alpha", Description: "first"},
		{Name: "beta", Description: "second"},
		{Name: "gamma", Description: "third"},
		{Name: "delta", Description: "fourth"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

var fieldMarker = regexp.MustCompile(`\*\*([a-z_]+)\*\*`)

// echoClient answers every request with a JSON object containing exactly the
// fields the request asked for.
func echoClient() *providers.MockClient {
	c := providers.NewMockClient()
	c.ResponseFunc = func(req *providers.ChatRequest) string {
		user := req.Messages[len(req.Messages)-1].Content
		fields := make(map[string]any)
		for _, m := range fieldMarker.FindAllStringSubmatch(user, -1) {
			fields[m[1]] = "value-" + m[1]
		}
		b, _ := json.Marshal(fields)
		return string(b)
	}
	return c
}

func newTestExtractor(t *testing.T, cfg Config) *Extractor {
	t.Helper()
	cfg.RetryBaseDelay = time.Millisecond
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestExtractSingleChunk(t *testing.T) {
	client := echoClient()
	e := newTestExtractor(t, DefaultConfig(fourFieldSchema(t), client))

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)

	if !result.Success {
		t.Fatalf("success = false, errors = %v", result.Errors)
	}
	if client.RequestCount() != 1 {
		t.Errorf("request count = %d, want 1", client.RequestCount())
	}
	if len(result.Extraction) != 4 {
		t.Errorf("extraction has %d fields, want 4", len(result.Extraction))
	}
	if len(result.Chunks) != 1 {
		t.Errorf("chunks = %d, want 1", len(result.Chunks))
	}
	if result.Error != "" {
		t.Errorf("error summary = %q, want empty on success", result.Error)
	}
}

func TestExtractChunked(t *testing.T) {
	client := echoClient()
	cfg := DefaultConfig(fourFieldSchema(t), client)
	cfg.MaxFieldsPerRequest = 2
	e := newTestExtractor(t, cfg)

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)

	if client.RequestCount() != 2 {
		t.Errorf("request count = %d, want 2", client.RequestCount())
	}
	if len(result.Extraction) != 4 {
		t.Errorf("extraction has %d fields, want 4: %v", len(result.Extraction), result.Extraction)
	}
	for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
		fr, ok := result.Extraction[name]
		if !ok {
			t.Errorf("missing field %s", name)
			continue
		}
		if fr.Answer != "value-"+name {
			t.Errorf("field %s answer = %v", name, fr.Answer)
		}
	}
	if len(result.Chunks) != 2 {
		t.Errorf("chunks = %d, want 2", len(result.Chunks))
	}
}

func TestExtractRestrictedFields(t *testing.T) {
	client := echoClient()
	e := newTestExtractor(t, DefaultConfig(fourFieldSchema(t), client))

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, []string{"beta", "delta"})

	if len(result.Extraction) != 2 {
		t.Errorf("extraction = %v, want beta and delta only", result.Extraction)
	}
	if _, ok := result.Extraction["alpha"]; ok {
		t.Error("alpha should not be extracted")
	}
}

func TestExtractRetrySucceedsAfterFailures(t *testing.T) {
	client := echoClient()
	client.FailTimes = 2 // fail twice, then succeed
	cfg := DefaultConfig(fourFieldSchema(t), client)
	e := newTestExtractor(t, cfg)

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)

	if !result.Success {
		t.Fatalf("expected eventual success, errors = %v", result.Errors)
	}
	if len(result.Errors) != 2 {
		t.Errorf("recorded %d attempt errors, want 2: %v", len(result.Errors), result.Errors)
	}
	for i, msg := range result.Errors {
		if !strings.Contains(msg, "attempt") {
			t.Errorf("error %d = %q, want attempt-numbered message", i, msg)
		}
	}
}

func TestExtractRetriesExhausted(t *testing.T) {
	client := providers.NewMockClient()
	client.ShouldFail = true
	cfg := DefaultConfig(fourFieldSchema(t), client)
	e := newTestExtractor(t, cfg)

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)

	if result.Success {
		t.Fatal("expected failure")
	}
	// 4 attempts (max_retries=3) plus the chunk-level summary.
	attempts := 0
	summaries := 0
	for _, msg := range result.Errors {
		if strings.HasPrefix(msg, "attempt ") {
			attempts++
		}
		if strings.Contains(msg, "max retries exceeded") {
			summaries++
		}
	}
	if attempts != 4 {
		t.Errorf("attempt errors = %d, want 4: %v", attempts, result.Errors)
	}
	if summaries != 1 {
		t.Errorf("summary errors = %d, want 1", summaries)
	}
	if result.Error != "one or more chunks failed" {
		t.Errorf("error summary = %q", result.Error)
	}
	if len(result.Extraction) != 0 {
		t.Errorf("extraction should be empty, got %v", result.Extraction)
	}
}

func TestExtractRetryBackoffSchedule(t *testing.T) {
	client := providers.NewMockClient()
	client.ShouldFail = true
	cfg := DefaultConfig(fourFieldSchema(t), client)
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = 50 * time.Millisecond
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)
	elapsed := time.Since(start)

	if result.Success {
		t.Fatal("expected failure")
	}
	// Two inter-attempt gaps: 1x base after attempt 1, 2x base after
	// attempt 2, so 150ms total. A schedule starting at 2x base would
	// take 250ms.
	if elapsed < 150*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 150ms of linear backoff", elapsed)
	}
	if elapsed >= 250*time.Millisecond {
		t.Errorf("elapsed = %v, want < 250ms (gaps must be 1x then 2x base)", elapsed)
	}
}

func TestExtractPartialFailure(t *testing.T) {
	client := echoClient()
	client.FailAfter = 1 // first request succeeds, the rest fail
	cfg := DefaultConfig(fourFieldSchema(t), client)
	cfg.MaxFieldsPerRequest = 2
	e := newTestExtractor(t, cfg)

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)

	if result.Success {
		t.Fatal("document with a failed chunk must not be marked successful")
	}
	if len(result.Extraction) != 2 {
		t.Errorf("extraction = %v, want chunk 1's two fields preserved", result.Extraction)
	}
	if _, ok := result.Extraction["alpha"]; !ok {
		t.Error("alpha from the successful chunk should be present")
	}
	if _, ok := result.Extraction["gamma"]; ok {
		t.Error("gamma from the failed chunk should be absent")
	}

	summaries := 0
	for _, msg := range result.Errors {
		if strings.Contains(msg, "max retries exceeded") {
			if !strings.Contains(msg, "gamma") {
				t.Errorf("summary should name the failed chunk's fields: %q", msg)
			}
			summaries++
		}
	}
	if summaries != 1 {
		t.Errorf("summary errors = %d, want exactly 1", summaries)
	}

	if len(result.Chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(result.Chunks))
	}
	if !result.Chunks[0].Success || result.Chunks[1].Success {
		t.Errorf("chunk successes = %v/%v, want true/false",
			result.Chunks[0].Success, result.Chunks[1].Success)
	}
}

func TestExtractParseFailure(t *testing.T) {
	client := providers.NewMockClient()
	client.ResponseText = "I could not produce JSON, sorry."
	cfg := DefaultConfig(fourFieldSchema(t), client)
	e := newTestExtractor(t, cfg)

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)

	if result.Success {
		t.Fatal("unparseable response must fail the document")
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "failed to parse JSON response") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected parse error in %v", result.Errors)
	}
	if result.RawResponse == "" {
		t.Error("raw response should be retained for diagnosis")
	}
}

func TestExtractFenceWrappedResponse(t *testing.T) {
	client := providers.NewMockClient()
	client.ResponseText = "```json\n{\"alpha\": \"a\", \"beta\": \"b\", \"gamma\": \"c\", \"delta\": \"d\"}\n```"
	cfg := DefaultConfig(fourFieldSchema(t), client)
	e := newTestExtractor(t, cfg)

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)
	if !result.Success {
		t.Fatalf("fenced JSON should parse, errors = %v", result.Errors)
	}
	if len(result.Extraction) != 4 {
		t.Errorf("extraction = %v", result.Extraction)
	}
}

func TestExtractGroundingAndReasoning(t *testing.T) {
	s, err := schema.New([]schema.Field{
		{Name: "tumor_size", Description: "size", Grounding: true},
		{Name: "diagnosis", Description: "dx", Reasoning: true},
		{Name: "stage", Description: "stage"},
	})
	if err != nil {
		t.Fatal(err)
	}

	client := providers.NewMockClient()
	client.ResponseText = `{
		"tumor_size": {"answer": "25mm", "grounding": ["tumor size 25mm"], "reasoning": "ignored"},
		"diagnosis": {"answer": "IDC", "reasoning": "stated in the report", "grounding": ["ignored too"]},
		"stage": "II"
	}`
	cfg := DefaultConfig(s, client)
	e := newTestExtractor(t, cfg)

	doc := Document{ID: "doc1", Text: "Pathology: tumor size 25mm, consistent with IDC."}
	result := e.Extract(context.Background(), doc, nil)
	if !result.Success {
		t.Fatalf("errors = %v", result.Errors)
	}

	ts := result.Extraction["tumor_size"]
	if len(ts.Grounding) != 1 {
		t.Fatalf("tumor_size grounding spans = %d, want 1", len(ts.Grounding))
	}
	if len(ts.Grounding[0].Anchors) == 0 {
		t.Error("expected at least one anchor for the claimed snippet")
	} else {
		a := ts.Grounding[0].Anchors[0]
		if got := doc.Text[a.Start:a.End]; !strings.Contains(strings.ToLower(got), "tumor size") {
			t.Errorf("anchor points at %q", got)
		}
	}
	if ts.Reasoning != "" {
		t.Error("reasoning must be dropped for a field that does not request it")
	}

	dx := result.Extraction["diagnosis"]
	if dx.Reasoning != "stated in the report" {
		t.Errorf("diagnosis reasoning = %q", dx.Reasoning)
	}
	if dx.Grounding != nil {
		t.Error("grounding must be dropped for a field that does not request it")
	}

	if result.Extraction["stage"].Answer != "II" {
		t.Errorf("stage = %v", result.Extraction["stage"].Answer)
	}
}

func TestExtractUnmatchedGroundingKeepsEmptyAnchors(t *testing.T) {
	s, err := schema.New([]schema.Field{
		{Name: "finding", Description: "finding", Grounding: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	client := providers.NewMockClient()
	client.ResponseText = `{"finding": {"answer": "x", "grounding": ["text that is nowhere near the document"]}}`
	e := newTestExtractor(t, DefaultConfig(s, client))

	result := e.Extract(context.Background(), Document{ID: "d", Text: "completely unrelated content"}, nil)
	spans := result.Extraction["finding"].Grounding
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if len(spans[0].Anchors) != 0 {
		t.Errorf("anchors = %v, want empty", spans[0].Anchors)
	}
}

func TestExtractUsageAggregation(t *testing.T) {
	client := echoClient()
	cfg := DefaultConfig(fourFieldSchema(t), client)
	cfg.MaxFieldsPerRequest = 1
	e := newTestExtractor(t, cfg)

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)
	if result.Usage == nil {
		t.Fatal("expected aggregated usage")
	}

	var want Usage
	for _, c := range result.Chunks {
		if c.Usage != nil {
			want.add(c.Usage.PromptTokens, c.Usage.CompletionTokens, c.Usage.TotalTokens)
		}
	}
	if *result.Usage != want {
		t.Errorf("usage = %+v, want sum of chunks %+v", *result.Usage, want)
	}
}

func TestExtractDetailToggles(t *testing.T) {
	client := echoClient()
	cfg := DefaultConfig(fourFieldSchema(t), client)
	cfg.IncludeChunks = false
	cfg.IncludeRaw = false
	cfg.ChunkMetrics = false
	e := newTestExtractor(t, cfg)

	result := e.Extract(context.Background(), Document{ID: "doc1", Text: "text"}, nil)
	if result.Chunks != nil {
		t.Error("chunk detail should be omitted")
	}
	if result.RawResponse != "" {
		t.Error("raw response should be omitted")
	}
	if result.Usage != nil {
		t.Error("usage should be omitted")
	}
	if !result.Success || len(result.Extraction) != 4 {
		t.Error("toggles must not affect extraction itself")
	}
}

func TestExtractLogsPromptAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := echoClient()
	cfg := DefaultConfig(fourFieldSchema(t), client)
	cfg.Logger = logger
	e := newTestExtractor(t, cfg)

	e.Extract(context.Background(), Document{ID: "doc1", Text: "patient text"}, nil)

	logged := buf.String()
	if !strings.Contains(logged, "chunk request message") {
		t.Fatal("constructed messages should be logged at debug level")
	}
	if !strings.Contains(logged, "Output JSON:") {
		t.Error("logged content should include the user prompt text")
	}
}

func TestExtractCancelledContext(t *testing.T) {
	client := echoClient()
	e := newTestExtractor(t, DefaultConfig(fourFieldSchema(t), client))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.Extract(ctx, Document{ID: "doc1", Text: "text"}, nil)
	if result.Success {
		t.Error("cancelled extraction must not report success")
	}
	if len(result.Errors) == 0 {
		t.Error("cancellation should be recorded in the error list")
	}
	if client.RequestCount() != 0 {
		t.Errorf("no request should be issued after cancellation, got %d", client.RequestCount())
	}
}

func TestNewValidation(t *testing.T) {
	s := fourFieldSchema(t)

	if _, err := New(Config{Client: providers.NewMockClient()}); err == nil {
		t.Error("expected error without schema")
	}
	if _, err := New(Config{Schema: s}); err == nil {
		t.Error("expected error without client")
	}
}
