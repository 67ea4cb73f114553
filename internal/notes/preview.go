package notes

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// blockBreaks are closing tags the editor emits between paragraphs.
var blockBreaks = strings.NewReplacer(
	"</p>", "</p>\n",
	"<br>", "<br>\n",
	"<br/>", "<br/>\n",
	"</li>", "</li>\n",
	"</h1>", "</h1>\n",
	"</h2>", "</h2>\n",
	"</h3>", "</h3>\n",
)

// PlainText strips the editor markup from content, keeping one line per block.
func PlainText(content string) string {
	if content == "" {
		return ""
	}
	stripped := html.UnescapeString(stripPolicy.Sanitize(blockBreaks.Replace(content)))
	lines := strings.Split(stripped, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// ContentPreview returns the first maxLines lines of content, appending "..." on a new line if truncated.
// If content has maxLines or fewer lines, returns content unchanged.
func ContentPreview(content string, maxLines int) string {
	if content == "" || maxLines <= 0 {
		return content
	}

	pos := 0
	found := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			found++
			if found == maxLines {
				pos = i
				break
			}
		}
	}
	if found < maxLines {
		return content
	}
	return content[:pos] + "\n..."
}

// CountLines returns the number of lines in content.
// An empty string has 0 lines.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// Snippet is the plain-text preview shown next to a note in listings.
func Snippet(n Note, maxLines int) string {
	return ContentPreview(PlainText(n.Content), maxLines)
}
