package transcript

import (
	"regexp"
	"strings"
)

// MaxOverlapWords bounds the phrase length searched for at a chunk boundary
const MaxOverlapWords = 50

var edgePunctuation = regexp.MustCompile(`^[^\p{L}\p{N}]+|[^\p{L}\p{N}]+$`)

// Merge trims each transcript, drops empty ones and joins the rest with a single space.
// It is the merge used for size-based chunks, which never overlap.
func Merge(texts []string) string {
	parts := nonEmpty(texts)
	return strings.Join(parts, " ")
}

// MergeWithOverlap joins transcripts of overlapping chunks, dropping the words at the
// start of each transcript that repeat the end of the text merged so far.
func MergeWithOverlap(texts []string) string {
	parts := nonEmpty(texts)
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}

	merged := strings.Fields(parts[0])
	for _, part := range parts[1:] {
		words := strings.Fields(part)
		n := OverlapLength(merged, words)
		merged = append(merged, words[n:]...)
	}

	return strings.Join(merged, " ")
}

// OverlapLength returns the length of the longest word sequence that ends prev and
// starts next. Words are compared case-insensitively without surrounding punctuation.
func OverlapLength(prev, next []string) int {
	limit := min(len(prev), len(next), MaxOverlapWords)
	if limit == 0 {
		return 0
	}

	tail := normalizeAll(prev[len(prev)-limit:])
	head := normalizeAll(next[:limit])

	for k := limit; k > 0; k-- {
		if equalWords(tail[limit-k:], head[:k]) {
			return k
		}
	}
	return 0
}

func nonEmpty(texts []string) []string {
	parts := make([]string, 0, len(texts))
	for _, text := range texts {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func normalizeAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = normalizeWord(w)
	}
	return out
}

func normalizeWord(word string) string {
	return strings.ToLower(edgePunctuation.ReplaceAllString(word, ""))
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		// A token that was only punctuation never anchors a match
		if a[i] == "" || a[i] != b[i] {
			return false
		}
	}
	return true
}
