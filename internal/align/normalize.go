// Package align normalizes extracted text and maps character indices to
// reading-position coordinates. The index map it produces is the backbone
// that lets every downstream stage trace a character in the synthesized
// audio back to its offset in the raw extracted text.
package align

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize strips carriage returns and collapses every whitespace run
// (including newlines) to a single space, leaving all other characters
// unchanged. indexMap[i] is the byte offset in raw corresponding to byte i
// of the normalized text; a collapsed space maps to the first whitespace
// byte of its run.
func Normalize(raw string) (string, []int) {
	var b strings.Builder
	b.Grow(len(raw))
	indexMap := make([]int, 0, len(raw))

	inSpace := false
	spaceStart := 0
	for off, r := range raw {
		if r == '\r' {
			continue
		}
		if unicode.IsSpace(r) {
			if !inSpace {
				inSpace = true
				spaceStart = off
			}
			continue
		}
		if inSpace {
			b.WriteByte(' ')
			indexMap = append(indexMap, spaceStart)
			inSpace = false
		}
		b.WriteRune(r)
		for i := 0; i < utf8.RuneLen(r); i++ {
			indexMap = append(indexMap, off+i)
		}
	}
	if inSpace {
		b.WriteByte(' ')
		indexMap = append(indexMap, spaceStart)
	}

	return b.String(), indexMap
}

// TruncateAtSentence returns the longest prefix of text that fits in maxLen
// bytes and ends at a sentence boundary. Falls back to the last word
// boundary, then to a hard cut, when no sentence end is found.
func TruncateAtSentence(text string, maxLen int) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}

	cut := text[:maxLen]
	for i := len(cut) - 1; i > 0; i-- {
		c := cut[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		// Only treat it as a sentence end when followed by whitespace or
		// the cut point itself (avoids splitting "3.14" or "Mr.Smith").
		if i+1 == len(cut) || cut[i+1] == ' ' {
			return strings.TrimRight(cut[:i+1], " ")
		}
	}

	if sp := strings.LastIndexByte(cut, ' '); sp > 0 {
		return strings.TrimRight(cut[:sp], " ")
	}
	return cut
}
