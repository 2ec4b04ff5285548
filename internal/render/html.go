package render

import (
	"bytes"
	"fmt"
	"html"

	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// HTML renders transcripts as a standalone HTML page by converting the
// Markdown rendering with goldmark. Raw HTML in messages is not passed through.
type HTML struct {
	Labels Labels
	md     goldmark.Markdown
}

// NewHTML creates an HTML renderer.
func NewHTML(labels Labels) *HTML {
	return &HTML{
		Labels: labels,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(gmhtml.WithXHTML()),
		),
	}
}

func (h *HTML) Extension() string   { return "html" }
func (h *HTML) ContentType() string { return "text/html; charset=utf-8" }

// Render writes the layout as an HTML document.
func (h *HTML) Render(sessionID string, turns []domain.Turn) (Artifact, error) {
	doc := Layout(sessionID, turns, h.Labels)

	var body bytes.Buffer
	if err := h.md.Convert([]byte(writeMarkdown(doc)), &body); err != nil {
		return Artifact{}, fmt.Errorf("render html %s: %w", sessionID, err)
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n", html.EscapeString(doc.Title+" "+sessionID))
	out.WriteString("<style>body{font-family:sans-serif;max-width:50em;margin:2em auto;line-height:1.45}hr{border:0;border-top:1px solid #ccc}</style>\n")
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return Artifact{Data: out.Bytes(), ContentType: h.ContentType(), Extension: h.Extension()}, nil
}
