package render

import (
	"regexp"
	"strings"
	"time"

	"github.com/soyeahso/chatrelay/internal/domain"
)

// ElementKind identifies a flow element.
type ElementKind int

const (
	KindTitle ElementKind = iota
	KindMeta
	KindHeading
	KindParagraph
	KindBullets
	KindSeparator
)

// Element is one block in the document flow. Backends place elements top to
// bottom and break pages wherever the flow runs out of room.
type Element struct {
	Kind  ElementKind
	Role  domain.Role // set on headings
	Text  string
	Items []string // set on bullets
}

// Document is the backend-independent layout of a transcript.
type Document struct {
	Title    string
	Elements []Element
	// Modified is the latest turn timestamp, used as the document date so
	// that identical input renders to identical output.
	Modified time.Time
}

// listItemPattern matches a numbered list line: "1. text", "2) text".
var listItemPattern = regexp.MustCompile(`^\s*\d+[.)]\s+(.*)$`)

// Layout turns a transcript into flow elements. It is pure: the same input
// always yields the same document.
func Layout(sessionID string, turns []domain.Turn, labels Labels) Document {
	doc := Document{Title: labels.Title}
	doc.Elements = append(doc.Elements,
		Element{Kind: KindTitle, Text: labels.Title},
		Element{Kind: KindMeta, Text: labels.Session + ": " + sessionID},
		Element{Kind: KindSeparator},
	)

	for _, t := range turns {
		if t.Timestamp.After(doc.Modified) {
			doc.Modified = t.Timestamp
		}
		doc.Elements = append(doc.Elements, Element{Kind: KindHeading, Role: t.Role, Text: heading(t, labels)})
		doc.Elements = append(doc.Elements, body(t)...)
		doc.Elements = append(doc.Elements, Element{Kind: KindSeparator})
	}
	return doc
}

func heading(t domain.Turn, labels Labels) string {
	name := labels.User
	if t.Role == domain.RoleAssistant {
		name = labels.Assistant
	}
	if t.Partial {
		name += " [" + labels.Partial + "]"
	}
	if ts := labels.formatTime(t.Timestamp); ts != "" {
		name += " (" + ts + ")"
	}
	return name
}

// body splits a turn's sanitized content into paragraphs and, for assistant
// turns only, bulleted groups built from runs of numbered lines.
func body(t domain.Turn) []Element {
	lines := strings.Split(strings.ReplaceAll(Sanitize(t.Content), "\r\n", "\n"), "\n")
	detectLists := t.Role == domain.RoleAssistant

	var out []Element
	var para []string
	var items []string

	flushPara := func() {
		if len(para) > 0 {
			out = append(out, Element{Kind: KindParagraph, Text: strings.Join(para, "\n")})
			para = nil
		}
	}
	flushItems := func() {
		if len(items) > 0 {
			out = append(out, Element{Kind: KindBullets, Items: items})
			items = nil
		}
	}

	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if detectLists {
			if m := listItemPattern.FindStringSubmatch(line); m != nil {
				flushPara()
				items = append(items, m[1])
				continue
			}
		}
		flushItems()
		if strings.TrimSpace(line) == "" {
			flushPara()
			continue
		}
		para = append(para, line)
	}
	flushPara()
	flushItems()
	return out
}
