package mailer

import (
	"context"
	"fmt"
	"strings"

	mailtpl "github.com/oksasatya/pixsearch-identity/pkg/mailer/templates"
)

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// Either Text/HTML are set directly or Template and Data are rendered by the worker.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // "universal"
	Data     map[string]any `json:"data,omitempty"`
}

// Rendered is an email ready for a transport.
type Rendered struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Render resolves templates and subject for job.
func Render(job EmailJob) (Rendered, error) {
	out := Rendered{To: strings.TrimSpace(job.To), Subject: job.Subject, Text: job.Text, HTML: job.HTML}
	if out.To == "" {
		return Rendered{}, fmt.Errorf("email job without recipient")
	}
	if job.Template == "" {
		if out.Text == "" && out.HTML == "" {
			return Rendered{}, fmt.Errorf("email job without body")
		}
		return out, nil
	}

	data := job.Data
	if data == nil {
		data = map[string]any{}
	}
	if v, ok := data["RecipientEmail"]; !ok || fmt.Sprint(v) == "" {
		data["RecipientEmail"] = out.To
	}
	text, html, err := mailtpl.Render(job.Template, data)
	if err != nil {
		return Rendered{}, err
	}
	out.Text, out.HTML = text, html
	if out.Subject == "" {
		out.Subject = mailtpl.Subject(fmt.Sprint(data["Type"]))
	}
	return out, nil
}

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Deliver renders job and hands it to s.
func Deliver(ctx context.Context, s Sender, job EmailJob) error {
	r, err := Render(job)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	return s.Send(ctx, r.To, r.Subject, r.Text, r.HTML)
}
