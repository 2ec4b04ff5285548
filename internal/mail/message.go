// Package mail builds MIME messages and sends them through Gmail or an SMTP
// relay.
package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// Attachment is a file carried by a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a plain-text mail with optional attachments.
type Message struct {
	From        string
	To          []string
	Subject     string
	Body        string
	Date        time.Time
	Attachments []Attachment
}

// Subject expands the {session} placeholder in a subject template.
func Subject(template, sessionID string) string {
	return strings.ReplaceAll(template, "{session}", sessionID)
}

// Bytes encodes the message as RFC 5322 text with a multipart/mixed body.
func (m Message) Bytes() ([]byte, error) {
	if len(m.To) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	var hdr strings.Builder
	if m.From != "" {
		fmt.Fprintf(&hdr, "From: %s\r\n", m.From)
	}
	fmt.Fprintf(&hdr, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&hdr, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&hdr, "Date: %s\r\n", date.Format(time.RFC1123Z))
	hdr.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&hdr, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(body)
	if _, err := qp.Write([]byte(m.Body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	for _, a := range m.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {ct},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(part, a.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return append([]byte(hdr.String()), buf.Bytes()...), nil
}

// writeBase64Lines writes base64 wrapped at 76 columns.
func writeBase64Lines(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := fmt.Fprintf(w, "%s\r\n", enc[:76]); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := fmt.Fprintf(w, "%s\r\n", enc)
	return err
}
