package discord

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxDiscordMessageLen = 2000
	SafeChunkLen         = 1900
)

// SplitMessage breaks text into chunks of at most limit runes, preferring
// paragraph then line boundaries. Text that fits is returned as one chunk.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = SafeChunkLen
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}

	for _, paragraph := range strings.SplitAfter(text, "\n\n") {
		if runeLen(current.String())+runeLen(paragraph) <= limit {
			current.WriteString(paragraph)
			continue
		}
		flush()
		if runeLen(paragraph) <= limit {
			current.WriteString(paragraph)
			continue
		}
		for _, line := range strings.SplitAfter(paragraph, "\n") {
			if runeLen(current.String())+runeLen(line) > limit {
				flush()
			}
			for runeLen(line) > limit {
				head, rest := splitRunes(line, limit)
				chunks = append(chunks, head)
				line = rest
			}
			current.WriteString(line)
		}
	}
	flush()
	return chunks
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}
