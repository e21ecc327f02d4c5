package contact

import (
	"bytes"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"
)

// Message is an outgoing email with text and HTML alternatives.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

var htmlBody = template.Must(template.New("contact").Funcs(template.FuncMap{
	"lines": func(s string) template.HTML {
		return template.HTML(strings.ReplaceAll(template.HTMLEscapeString(s), "\n", "<br>"))
	},
}).Parse(`<h2>New Contact Form Message</h2>
<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Message:</strong></p>
<p>{{lines .Message}}</p>
`))

// NewMessage composes the owner notification for a validated form.
func NewMessage(f Form, from, to string) (Message, error) {
	var html bytes.Buffer
	if err := htmlBody.Execute(&html, f); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}

	text := fmt.Sprintf("Name: %s\nEmail: %s\nMessage:\n%s\n", f.Name, f.Email, f.Message)

	return Message{
		From:    from,
		To:      to,
		ReplyTo: f.Email,
		Subject: "New Contact Form Message from " + f.Name,
		Text:    text,
		HTML:    html.String(),
	}, nil
}

// TestMessage is the fixed message sent by the configuration check.
func TestMessage(from, to string) Message {
	const body = "If you receive this email, your email configuration is working correctly!"
	return Message{
		From:    from,
		To:      to,
		Subject: "Test Email Configuration",
		Text:    body,
		HTML:    "<p>" + body + "</p>",
	}
}

// Bytes renders m as an RFC 5322 multipart/alternative message.
func (m Message) Bytes(now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	if m.ReplyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", m.ReplyTo)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", m.Text},
		{"text/html; charset=utf-8", m.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, fmt.Errorf("create part: %w", err)
		}
		if _, err := w.Write([]byte(strings.ReplaceAll(p.body, "\n", "\r\n"))); err != nil {
			return nil, fmt.Errorf("write part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), nil
}
