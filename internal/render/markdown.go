package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/soyeahso/chatrelay/internal/domain"
)

// Markdown renders transcripts as Markdown text.
type Markdown struct {
	Labels Labels
}

func (m *Markdown) Extension() string   { return "md" }
func (m *Markdown) ContentType() string { return "text/markdown; charset=utf-8" }

// Render writes the layout as Markdown.
func (m *Markdown) Render(sessionID string, turns []domain.Turn) (Artifact, error) {
	doc := Layout(sessionID, turns, m.Labels)
	return Artifact{Data: []byte(writeMarkdown(doc)), ContentType: m.ContentType(), Extension: m.Extension()}, nil
}

// leadingNumber matches a line Markdown would read as an ordered list item.
var leadingNumber = regexp.MustCompile(`(?m)^(\s*\d+)([.)])(\s)`)

func writeMarkdown(doc Document) string {
	var sb strings.Builder
	for _, el := range doc.Elements {
		switch el.Kind {
		case KindTitle:
			fmt.Fprintf(&sb, "# %s\n\n", el.Text)
		case KindMeta:
			fmt.Fprintf(&sb, "_%s_\n\n", el.Text)
		case KindHeading:
			fmt.Fprintf(&sb, "**%s**\n\n", el.Text)
		case KindParagraph:
			// Numbered lines outside assistant list runs stay plain text.
			text := leadingNumber.ReplaceAllString(el.Text, `$1\$2$3`)
			sb.WriteString(strings.ReplaceAll(text, "\n", "  \n"))
			sb.WriteString("\n\n")
		case KindBullets:
			for _, item := range el.Items {
				fmt.Fprintf(&sb, "- %s\n", item)
			}
			sb.WriteString("\n")
		case KindSeparator:
			sb.WriteString("---\n\n")
		}
	}
	return sb.String()
}
