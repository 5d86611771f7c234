// Package text splits identifiers and free text into normalized word tokens
// shared by the pattern, semantic and embedding engines.
package text

import (
	"math"
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

// MinStemLength is the shortest word porter2 is applied to.
const MinStemLength = 3

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "to": true,
	"in": true, "for": true, "on": true, "is": true, "it": true, "or": true,
	"by": true, "with": true, "at": true, "as": true, "be": true, "this": true,
}

// SplitIdentifier breaks a name on separators (_ - . / space), case
// transitions and letter/digit boundaries. Acronyms stay together, so
// "parseHTTPRequest" yields parse, HTTP, Request.
func SplitIdentifier(name string) []string {
	runes := []rune(name)
	var words []string
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, string(runes[start:end]))
		}
		start = -1
	}

	for i, ch := range runes {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		switch {
		case unicode.IsLower(prev) && unicode.IsUpper(ch):
			flush(i)
			start = i
		case unicode.IsUpper(prev) && unicode.IsUpper(ch) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			// End of an acronym: "HTTPRequest" splits before the R.
			flush(i)
			start = i
		case unicode.IsLetter(prev) != unicode.IsLetter(ch):
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return words
}

// Words lower-cases the identifier parts of s and drops stop words and
// single characters.
func Words(s string) []string {
	parts := SplitIdentifier(s)
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		w := strings.ToLower(p)
		if len(w) < 2 || stopWords[w] {
			continue
		}
		res = append(res, w)
	}
	return res
}

// Stem reduces a lower-case word to its porter2 stem.
func Stem(word string) string {
	if len(word) < MinStemLength {
		return word
	}
	return porter2.Stem(word)
}

// Tokens returns the stemmed words of s.
func Tokens(s string) []string {
	words := Words(s)
	for i, w := range words {
		words[i] = Stem(w)
	}
	return words
}

// TokenSet returns the distinct stemmed words of every input.
func TokenSet(parts ...string) map[string]int {
	set := make(map[string]int)
	for _, p := range parts {
		for _, t := range Tokens(p) {
			set[t]++
		}
	}
	return set
}

// Cosine is the cosine similarity of two term-frequency vectors.
func Cosine(a, b map[string]int) float64 {
	var dot, normA, normB float64
	for term, w := range a {
		dot += float64(w) * float64(b[term])
		normA += float64(w) * float64(w)
	}
	for _, w := range b {
		normB += float64(w) * float64(w)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
