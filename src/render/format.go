package render

import (
	"fmt"
	"html"
	"strings"
)

// HTML renders for chat APIs that accept a small HTML subset.
func (m Message) HTML() string {
	var b strings.Builder
	b.WriteString(html.EscapeString(m.Headline))
	m.writeBody(&b, html.EscapeString)
	if len(m.Links) > 0 {
		parts := make([]string, 0, len(m.Links))
		for _, l := range m.Links {
			parts = append(parts, fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(l.URL), html.EscapeString(l.Label)))
		}
		b.WriteString("\nLinks: ")
		b.WriteString(strings.Join(parts, " | "))
	}
	return b.String()
}

// Markdown renders for Discord. Links are wrapped to keep previews off.
func (m Message) Markdown() string {
	var b strings.Builder
	b.WriteString("**")
	b.WriteString(m.Headline)
	b.WriteString("**")
	m.writeBody(&b, func(s string) string { return s })
	if len(m.Links) > 0 {
		parts := make([]string, 0, len(m.Links))
		for _, l := range m.Links {
			parts = append(parts, fmt.Sprintf("[%s](<%s>)", l.Label, l.URL))
		}
		b.WriteString("\nLinks: ")
		b.WriteString(strings.Join(parts, " | "))
	}
	return b.String()
}

// Plain renders without any markup.
func (m Message) Plain() string {
	var b strings.Builder
	b.WriteString(m.Headline)
	m.writeBody(&b, func(s string) string { return s })
	if len(m.Links) > 0 {
		parts := make([]string, 0, len(m.Links))
		for _, l := range m.Links {
			parts = append(parts, l.Label+" "+l.URL)
		}
		b.WriteString("\nLinks: ")
		b.WriteString(strings.Join(parts, " | "))
	}
	return b.String()
}

func (m Message) writeBody(b *strings.Builder, escape func(string) string) {
	if m.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(escape(m.Body))
	}
	if len(m.Summary) == 0 {
		return
	}
	if m.Kind == KindNewProposal {
		b.WriteString("\n")
	} else {
		b.WriteString("\n\n")
	}
	for i, line := range m.Summary {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(escape(line))
	}
}
