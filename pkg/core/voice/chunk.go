// Package voice holds the speech-side text handling shared by playback and the
// STT/TTS provider packages.
package voice

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkChars bounds a single synthesized chunk.
const DefaultMaxChunkChars = 240

// SplitChunks splits a reply into speakable chunks at sentence ends and line
// breaks. Chunks longer than maxChars are cut at the last whitespace that fits.
func SplitChunks(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	var out []string
	for _, sentence := range splitSentences(text) {
		out = append(out, capChunk(sentence, maxChars)...)
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' && !isSentenceEnd(text, i) {
			continue
		}
		if s := strings.TrimSpace(text[last : i+1]); s != "" {
			out = append(out, s)
		}
		last = i + 1
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

func capChunk(s string, maxChars int) []string {
	var out []string
	for utf8.RuneCountInString(s) > maxChars {
		cut, hard, n := -1, len(s), 0
		for i, r := range s {
			if n == maxChars {
				hard = i
				break
			}
			if unicode.IsSpace(r) {
				cut = i
			}
			n++
		}
		if cut <= 0 {
			cut = hard
		}
		out = append(out, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// isSentenceEnd checks if position i is a sentence boundary.
func isSentenceEnd(s string, i int) bool {
	if i >= len(s) {
		return false
	}

	c := s[i]
	if c != '.' && c != '!' && c != '?' {
		return false
	}

	// Check it's not an abbreviation (Dr., Mr., etc.)
	if c == '.' && isAbbreviation(s, i) {
		return false
	}

	// Check there's whitespace or end of string after
	if i+1 < len(s) && s[i+1] != ' ' && s[i+1] != '\n' && s[i+1] != '\r' && s[i+1] != '\t' {
		return false
	}

	return true
}

var commonAbbreviations = []string{
	"Dr.", "Mr.", "Mrs.", "Ms.", "Jr.", "Sr.", "St.", "Ave.", "Rd.", "Blvd.",
	"Mt.", "Ft.", "Inc.", "Ltd.", "Co.", "vs.", "etc.",
	"i.e.", "e.g.", "a.m.", "p.m.", "U.S.", "U.K.",
}

// isAbbreviation checks if the period at position i ends an abbreviation, an
// initial, or a list number.
func isAbbreviation(s string, i int) bool {
	if i < 1 {
		return false
	}

	start := i
	for start > 0 && s[start-1] != ' ' && s[start-1] != '\n' {
		start--
	}
	word := s[start : i+1]

	for _, abbr := range commonAbbreviations {
		if strings.EqualFold(word, abbr) {
			return true
		}
	}

	// "1." at the start of a numbered line
	if len(word) > 1 && strings.Trim(word[:len(word)-1], "0123456789") == "" {
		return true
	}

	// Single uppercase letter followed by period (initials)
	if s[i-1] >= 'A' && s[i-1] <= 'Z' {
		if i < 2 || s[i-2] == ' ' || s[i-2] == '\n' {
			return true
		}
	}

	return false
}
