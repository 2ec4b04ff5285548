package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTurns() []domain.Turn {
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	return []domain.Turn{
		{Role: domain.RoleUser, Content: "Mik a lépések?", Timestamp: base},
		{Role: domain.RoleAssistant, Content: "Íme:\n1. Első lépés 【4:0†source】\n2) Második\n\nKész.", Timestamp: base.Add(time.Minute)},
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "see  here", Sanitize("see 【4:0†source】 here"))
	assert.Equal(t, "a  b", Sanitize("a [12†notes.pdf] b"))
	assert.Equal(t, "plain [1] text", Sanitize("plain [1] text"))
	assert.Equal(t, "", Sanitize(""))
}

func TestLayoutListsOnlyForAssistant(t *testing.T) {
	turns := []domain.Turn{
		{Role: domain.RoleUser, Content: "1. not a list"},
		{Role: domain.RoleAssistant, Content: "1. alpha\n2. beta"},
	}
	doc := Layout("s1", turns, LabelsFor("en"))

	var paragraphs, bullets []Element
	for _, el := range doc.Elements {
		switch el.Kind {
		case KindParagraph:
			paragraphs = append(paragraphs, el)
		case KindBullets:
			bullets = append(bullets, el)
		}
	}
	require.Len(t, paragraphs, 1)
	assert.Equal(t, "1. not a list", paragraphs[0].Text)
	require.Len(t, bullets, 1)
	assert.Equal(t, []string{"alpha", "beta"}, bullets[0].Items)
}

func TestLayoutThreeNumberedLinesFormOneGroup(t *testing.T) {
	els := body(domain.Turn{Role: domain.RoleAssistant, Content: "Plan:\n1. Gather\n2. Sort\n3. Ship\nDone."})
	require.Len(t, els, 3)
	assert.Equal(t, Element{Kind: KindParagraph, Text: "Plan:"}, els[0])
	assert.Equal(t, Element{Kind: KindBullets, Items: []string{"Gather", "Sort", "Ship"}}, els[1])
	assert.Equal(t, Element{Kind: KindParagraph, Text: "Done."}, els[2])
}

func TestLayoutPartialHeading(t *testing.T) {
	turns := []domain.Turn{
		{Role: domain.RoleUser, Content: "q"},
		{Role: domain.RoleAssistant, Content: "half", Partial: true},
	}
	doc := Layout("s1", turns, LabelsFor("hu"))

	var headings []string
	for _, el := range doc.Elements {
		if el.Kind == KindHeading {
			headings = append(headings, el.Text)
		}
	}
	assert.Equal(t, []string{"Felhasználó", "Asszisztens [megszakadt válasz]"}, headings)
}

func TestLayoutStripsCitations(t *testing.T) {
	doc := Layout("s1", sampleTurns(), LabelsFor("en"))
	for _, el := range doc.Elements {
		assert.NotContains(t, el.Text, "†")
		for _, item := range el.Items {
			assert.NotContains(t, item, "†")
		}
	}
	assert.Equal(t, sampleTurns()[1].Timestamp, doc.Modified)
}

func TestLabelsDefaultToHungarian(t *testing.T) {
	assert.Equal(t, "Beszélgetés", LabelsFor("").Title)
	assert.Equal(t, "Beszélgetés", LabelsFor("xx").Title)
	assert.Equal(t, "Conversation", LabelsFor("en").Title)
}

func TestPDFRenderDeterministic(t *testing.T) {
	r, err := New("pdf", "hu")
	require.NoError(t, err)

	a, err := r.Render("s1", sampleTurns())
	require.NoError(t, err)
	b, err := r.Render("s1", sampleTurns())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(a.Data, []byte("%PDF")))
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, "pdf", a.Extension)
	assert.Equal(t, "application/pdf", a.ContentType)
}

func TestPDFRenderLongTranscriptPaginates(t *testing.T) {
	var turns []domain.Turn
	long := strings.Repeat("Hosszú őrült szöveg, ami sok sort foglal el. ", 40)
	for i := 0; i < 20; i++ {
		turns = append(turns,
			domain.Turn{Role: domain.RoleUser, Content: "kérdés"},
			domain.Turn{Role: domain.RoleAssistant, Content: long},
		)
	}
	art, err := (&PDF{Labels: LabelsFor("hu")}).Render("long", turns)
	require.NoError(t, err)
	assert.Greater(t, bytes.Count(art.Data, []byte("/Type /Page\n")), 1)
}

func TestPDFRenderEmptyTranscript(t *testing.T) {
	art, err := (&PDF{Labels: LabelsFor("en")}).Render("empty", nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(art.Data, []byte("%PDF")))
}

func TestMarkdownRender(t *testing.T) {
	r, err := New("markdown", "en")
	require.NoError(t, err)
	art, err := r.Render("s1", sampleTurns())
	require.NoError(t, err)

	out := string(art.Data)
	assert.True(t, strings.HasPrefix(out, "# Conversation\n"))
	assert.Contains(t, out, "**User (2025-03-04 10:00:00 UTC)**")
	assert.Contains(t, out, "- Első lépés")
	assert.Contains(t, out, "- Második")
	assert.Contains(t, out, "---")
	assert.NotContains(t, out, "†")
	assert.Equal(t, "md", art.Extension)
}

func TestMarkdownEscapesUserNumbering(t *testing.T) {
	art, err := (&Markdown{Labels: LabelsFor("en")}).Render("s1", []domain.Turn{
		{Role: domain.RoleUser, Content: "1. keep me"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(art.Data), `1\. keep me`)
}

func TestHTMLRender(t *testing.T) {
	r, err := New("html", "en")
	require.NoError(t, err)
	art, err := r.Render("s1", []domain.Turn{
		{Role: domain.RoleUser, Content: "hello <script>x</script>"},
		{Role: domain.RoleAssistant, Content: "1. one\n2. two"},
	})
	require.NoError(t, err)

	out := string(art.Data)
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<li>one</li>")
	assert.NotContains(t, out, "<script>")
	assert.Equal(t, "text/html; charset=utf-8", art.ContentType)
}

func TestNewUnsupportedFormat(t *testing.T) {
	_, err := New("docx", "hu")
	assert.Error(t, err)
}
