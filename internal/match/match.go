// Package match locates approximate occurrences of a claimed text snippet
// inside a source document. Matching is case-insensitive and tolerates a
// bounded number of character edits (insertions, deletions, substitutions).
package match

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
)

// Match is one located occurrence. Start and End are byte offsets into the
// original document text, so document[Start:End] == Text.
type Match struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"match_text"`
	Edits int    `json:"edits"`
}

// Options tunes the matcher.
type Options struct {
	// MaxEdits overrides the default edit budget when >= 0.
	// Negative means "use the default heuristic".
	MaxEdits int
}

// DefaultMaxEdits returns the edit budget used when the caller does not set
// one: exact matching for short snippets, two edits for longer ones.
func DefaultMaxEdits(query string) int {
	if len([]rune(query)) <= 10 {
		return 0
	}
	return 2
}

// Find returns approximate occurrences of query in text, ordered by how close
// each match's length is to the query length (ties broken by position).
// An empty query yields no matches. Find is pure and deterministic.
func Find(text, query string, opts *Options) []Match {
	if query == "" {
		return nil
	}

	maxEdits := -1
	if opts != nil {
		maxEdits = opts.MaxEdits
	}
	if maxEdits < 0 {
		maxEdits = DefaultMaxEdits(query)
	}

	if maxEdits == 0 {
		return findExact(text, query)
	}
	return findFuzzy(text, query, maxEdits)
}

// findExact handles the zero-edit case with a plain substring scan.
func findExact(text, query string) []Match {
	loweredText := lowerPreservingLength(text)
	loweredQuery := lowerPreservingLength(query)

	var matches []Match
	offset := 0
	for {
		i := strings.Index(loweredText[offset:], loweredQuery)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(loweredQuery)
		matches = append(matches, Match{
			Start: start,
			End:   end,
			Text:  text[start:end],
		})
		offset = end
	}
	return matches
}

// findFuzzy scans left to right for non-overlapping windows within the edit
// budget. At each anchor position the candidate with the fewest edits wins;
// ties prefer the length closest to the query length, then the shorter span.
// An anchor is only accepted when the next anchor is not strictly better, so
// a sloppy match starting one rune early cannot absorb an exact one.
func findFuzzy(text, query string, maxEdits int) []Match {
	textRunes := []rune(text)
	byteOff := runeByteOffsets(text)

	loweredText := lowerRunes(textRunes)
	loweredQuery := string(lowerRunes([]rune(query)))
	qlen := len([]rune(query))

	minLen := qlen - maxEdits
	if minLen < 1 {
		minLen = 1
	}
	maxLen := qlen + maxEdits

	bestAt := func(i int) (length, edits int, found bool) {
		length, edits = -1, maxEdits+1
		for w := minLen; w <= maxLen && i+w <= len(loweredText); w++ {
			window := string(loweredText[i : i+w])
			d := levenshtein.Distance(loweredQuery, window, nil)
			if d > maxEdits {
				continue
			}
			if d < edits || (d == edits && closerLength(w, length, qlen)) {
				edits = d
				length = w
			}
		}
		return length, edits, length >= 0
	}

	var matches []Match
	for i := 0; i < len(textRunes); {
		length, edits, found := bestAt(i)
		if !found {
			i++
			continue
		}
		if _, nextEdits, nextFound := bestAt(i + 1); nextFound && nextEdits < edits {
			i++
			continue
		}
		start := byteOff[i]
		end := byteOff[i+length]
		matches = append(matches, Match{
			Start: start,
			End:   end,
			Text:  text[start:end],
			Edits: edits,
		})
		i += length
	}

	// Order by length closeness to the query, then by position.
	sort.SliceStable(matches, func(a, b int) bool {
		da := absInt(len([]rune(matches[a].Text)) - qlen)
		db := absInt(len([]rune(matches[b].Text)) - qlen)
		if da != db {
			return da < db
		}
		return matches[a].Start < matches[b].Start
	})
	return matches
}

// closerLength reports whether candidate length w beats the current best
// length for the same edit count.
func closerLength(w, best, qlen int) bool {
	if best < 0 {
		return true
	}
	dw, db := absInt(w-qlen), absInt(best-qlen)
	if dw != db {
		return dw < db
	}
	return w < best
}

// lowerPreservingLength lowercases without changing byte length, falling back
// to the original rune when lowering would alter its encoded width.
func lowerPreservingLength(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		l := unicode.ToLower(r)
		if len(string(l)) == len(string(r)) {
			b.WriteRune(l)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// runeByteOffsets maps rune index -> byte offset, with one extra entry for
// the end of the string.
func runeByteOffsets(s string) []int {
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))
	return offsets
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
