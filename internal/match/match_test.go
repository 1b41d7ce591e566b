package match

import (
	"testing"
)

func TestFindExact(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		query     string
		wantCount int
		wantStart int
	}{
		{"single occurrence", "tumor size 25mm", "size", 1, 6},
		{"case insensitive", "Tumor Size 25mm", "tumor size", 1, 0},
		{"multiple occurrences", "abc abc abc", "abc", 3, 0},
		{"no occurrence", "tumor size 25mm", "margin", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Find(tt.text, tt.query, &Options{MaxEdits: 0})
			if len(got) != tt.wantCount {
				t.Fatalf("Find() returned %d matches, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 && got[0].Start != tt.wantStart {
				t.Errorf("first match start = %d, want %d", got[0].Start, tt.wantStart)
			}
		})
	}
}

func TestFindEmptyQuery(t *testing.T) {
	if got := Find("some text", "", nil); got != nil {
		t.Errorf("Find with empty query = %v, want nil", got)
	}
}

func TestFindFuzzySubstitution(t *testing.T) {
	text := "tumor size 25mm"
	query := "tumor siz 25mm" // one deletion relative to the text

	got := Find(text, query, &Options{MaxEdits: 1})
	if len(got) == 0 {
		t.Fatal("expected a match with one edit allowed")
	}
	m := got[0]
	if m.Start != 0 {
		t.Errorf("match start = %d, want 0", m.Start)
	}
	if m.Edits != 1 {
		t.Errorf("match edits = %d, want 1", m.Edits)
	}
	if m.Text != text[m.Start:m.End] {
		t.Errorf("match text %q does not equal document slice %q", m.Text, text[m.Start:m.End])
	}

	if got := Find(text, query, &Options{MaxEdits: 0}); len(got) != 0 {
		t.Errorf("expected no match with zero edits, got %v", got)
	}
}

func TestFindDefaultEditBudget(t *testing.T) {
	// Short queries (<= 10 runes) default to exact matching.
	if got := Find("short txt", "short tst", nil); len(got) != 0 {
		t.Errorf("short query should not match fuzzily by default, got %v", got)
	}

	// Longer queries get two edits by default.
	text := "the patient reported severe headaches"
	query := "reported sever headache"
	got := Find(text, query, nil)
	if len(got) == 0 {
		t.Fatal("expected long query to match with default edit budget")
	}
	if got[0].Edits > 2 {
		t.Errorf("edits = %d, want <= 2", got[0].Edits)
	}
}

func TestFindOrderedByLengthCloseness(t *testing.T) {
	// Two fuzzy matches; the one whose length equals the query length
	// should sort first even though it appears later in the text.
	text := "abcdfghijklZ then abcdefghijkl"
	query := "abcdefghijkl"

	got := Find(text, query, &Options{MaxEdits: 2})
	if len(got) < 2 {
		t.Fatalf("expected at least 2 matches, got %d", len(got))
	}
	first := len([]rune(got[0].Text))
	want := len([]rune(query))
	if first != want {
		t.Errorf("first match length = %d, want %d (closest to query)", first, want)
	}
}

func TestFindDeterministic(t *testing.T) {
	text := "alpha beta gamma alpha beta"
	query := "alpha betta"

	a := Find(text, query, &Options{MaxEdits: 2})
	b := Find(text, query, &Options{MaxEdits: 2})
	if len(a) != len(b) {
		t.Fatalf("repeated calls disagree: %d vs %d matches", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("match %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFindNonOverlapping(t *testing.T) {
	text := "aaaa aaaa aaaa"
	got := Find(text, "aaaa", &Options{MaxEdits: 1})
	for i := 1; i < len(got); i++ {
		for j := 0; j < i; j++ {
			lo, hi := got[j], got[i]
			if lo.Start < hi.End && hi.Start < lo.End {
				t.Errorf("matches overlap: %+v and %+v", lo, hi)
			}
		}
	}
}
