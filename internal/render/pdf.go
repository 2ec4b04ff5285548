package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/soyeahso/chatrelay/internal/domain"
)

const (
	pdfMargin     = 20.0
	pdfBottom     = 18.0
	pdfLineHeight = 5.5
)

// hungarianFold maps the double-acute letters missing from the core fonts'
// cp1252 encoding onto their closest encodable form.
var hungarianFold = strings.NewReplacer("ő", "ö", "Ő", "Ö", "ű", "ü", "Ű", "Ü")

// PDF renders transcripts as paginated A4 documents.
type PDF struct {
	Labels Labels
}

func (p *PDF) Extension() string   { return "pdf" }
func (p *PDF) ContentType() string { return "application/pdf" }

// Render lays out the transcript and flows it onto as many pages as needed.
func (p *PDF) Render(sessionID string, turns []domain.Turn) (Artifact, error) {
	doc := Layout(sessionID, turns, p.Labels)

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	enc := func(s string) string { return tr(hungarianFold.Replace(s)) }

	modified := doc.Modified
	if modified.IsZero() {
		modified = time.Unix(0, 0).UTC()
	}
	pdf.SetCreationDate(modified)
	pdf.SetModificationDate(modified)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(doc.Title+" "+sessionID, true)
	pdf.SetCreator("chatrelay", true)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfBottom)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 6, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	for _, el := range doc.Elements {
		switch el.Kind {
		case KindTitle:
			pdf.SetFont("Helvetica", "B", 16)
			pdf.SetTextColor(0, 0, 0)
			pdf.MultiCell(0, 8, enc(el.Text), "", "L", false)
		case KindMeta:
			pdf.SetFont("Helvetica", "", 9)
			pdf.SetTextColor(110, 110, 110)
			pdf.MultiCell(0, pdfLineHeight, enc(el.Text), "", "L", false)
		case KindHeading:
			pdf.SetFont("Helvetica", "B", 11)
			if el.Role == domain.RoleUser {
				pdf.SetTextColor(31, 78, 140)
			} else {
				pdf.SetTextColor(30, 110, 60)
			}
			pdf.MultiCell(0, 6.5, enc(el.Text), "", "L", false)
			pdf.Ln(1)
		case KindParagraph:
			pdf.SetFont("Helvetica", "", 10)
			pdf.SetTextColor(0, 0, 0)
			pdf.MultiCell(0, pdfLineHeight, enc(el.Text), "", "L", false)
			pdf.Ln(1.5)
		case KindBullets:
			pdf.SetFont("Helvetica", "", 10)
			pdf.SetTextColor(0, 0, 0)
			for _, item := range el.Items {
				pdf.SetX(pdfMargin + 3)
				pdf.CellFormat(5, pdfLineHeight, enc("•"), "", 0, "L", false, 0, "")
				pdf.MultiCell(0, pdfLineHeight, enc(item), "", "L", false)
			}
			pdf.Ln(1.5)
		case KindSeparator:
			if pdf.GetY()+6 > pageH-pdfBottom {
				pdf.AddPage()
				continue
			}
			pdf.Ln(2)
			y := pdf.GetY()
			pdf.SetDrawColor(200, 200, 200)
			pdf.Line(pdfMargin, y, pageW-pdfMargin, y)
			pdf.Ln(4)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Artifact{}, fmt.Errorf("render pdf %s: %w", sessionID, err)
	}
	return Artifact{Data: buf.Bytes(), ContentType: p.ContentType(), Extension: p.Extension()}, nil
}
