// Package render turns assistant replies into safe HTML.
package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/inkpad/internal/conversation"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "div")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// MessageHTML renders reply text (code fences, inline code, bold, italic,
// line breaks) and sanitizes the result.
func MessageHTML(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	// Configure the markdown parser with common extensions; every newline is a break.
	extensions := parser.CommonExtensions | parser.HardLineBreak | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(content))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.HTMLFlagsNone})
	out := markdown.Render(doc, renderer)
	return strings.TrimSpace(string(policy.SanitizeBytes(out)))
}

// ThreadHTML renders a whole thread as an HTML fragment, one block per
// message. User messages are escaped verbatim; assistant replies go through
// MessageHTML.
func ThreadHTML(thread []conversation.Message) string {
	var b bytes.Buffer
	for _, m := range thread {
		b.WriteString(`<div class="message message-`)
		b.WriteString(string(m.Role))
		if m.Status != conversation.StatusResolved {
			b.WriteString(" message-")
			b.WriteString(string(m.Status))
		}
		b.WriteString(`">`)
		switch {
		case m.Role == conversation.RoleAssistant && m.Status == conversation.StatusResolved:
			b.WriteString(MessageHTML(m.Content))
		default:
			b.WriteString("<p>")
			b.WriteString(strings.ReplaceAll(html.EscapeString(m.Content), "\n", "<br>"))
			b.WriteString("</p>")
		}
		b.WriteString("</div>\n")
	}
	return b.String()
}
