package discord

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`<?https?://[^\s\[\]()<>]+>?`)

// WrapURLsNoEmbed wraps bare URLs in angle brackets to prevent Discord embeds.
// URLs that are already wrapped are left alone.
func WrapURLsNoEmbed(text string) string {
	return urlPattern.ReplaceAllStringFunc(text, func(match string) string {
		if strings.HasPrefix(match, "<") && strings.HasSuffix(match, ">") {
			return match
		}
		url := strings.TrimPrefix(match, "<")
		url = strings.TrimSuffix(url, ">")
		trimmed := strings.TrimRight(url, ".,;:!?")
		return "<" + trimmed + ">" + url[len(trimmed):]
	})
}
