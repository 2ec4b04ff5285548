// Package render lays out conversation transcripts and writes them as PDF,
// Markdown or HTML documents.
package render

import (
	"fmt"

	"github.com/soyeahso/chatrelay/internal/domain"
)

// Artifact is a rendered document.
type Artifact struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Renderer writes a transcript in one output format.
type Renderer interface {
	Render(sessionID string, turns []domain.Turn) (Artifact, error)
	Extension() string
	ContentType() string
}

// New creates a renderer for format using the labels of locale.
func New(format, locale string) (Renderer, error) {
	labels := LabelsFor(locale)
	switch format {
	case "pdf", "":
		return &PDF{Labels: labels}, nil
	case "md", "markdown":
		return &Markdown{Labels: labels}, nil
	case "html":
		return NewHTML(labels), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: pdf, markdown, html)", format)
	}
}
