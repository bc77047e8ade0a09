package mailer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Message is one out-of-band notification to an email address.
// Body comes either from Text or from Template rendered with Data.
type Message struct {
	To       string
	Subject  string
	Text     string
	Template string
	Data     map[string]any
}

// Job converts m to its queue payload.
func (m Message) Job() EmailJob {
	return EmailJob{To: m.To, Subject: m.Subject, Text: m.Text, Template: m.Template, Data: m.Data}
}

// Notifier delivers messages; a returned error means the message was not accepted.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Publisher is the queue side of QueueNotifier.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// QueueNotifier hands messages to the email worker over RabbitMQ.
type QueueNotifier struct {
	pub Publisher
}

func NewQueueNotifier(pub Publisher) *QueueNotifier {
	return &QueueNotifier{pub: pub}
}

func (n *QueueNotifier) Send(ctx context.Context, msg Message) error {
	if err := n.pub.PublishJSON(ctx, msg.Job()); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// DirectNotifier renders and sends in-process, bypassing the queue.
type DirectNotifier struct {
	sender Sender
}

func NewDirectNotifier(sender Sender) *DirectNotifier {
	return &DirectNotifier{sender: sender}
}

func (n *DirectNotifier) Send(ctx context.Context, msg Message) error {
	return Deliver(ctx, n.sender, msg.Job())
}

// LogNotifier only logs. Bodies are included when reveal is set, which is
// meant for local development where no mail transport exists.
type LogNotifier struct {
	logger logrus.FieldLogger
	reveal bool
}

func NewLogNotifier(logger logrus.FieldLogger, reveal bool) *LogNotifier {
	return &LogNotifier{logger: logger, reveal: reveal}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	r, err := Render(msg.Job())
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	entry := n.logger.WithFields(logrus.Fields{"to": r.To, "subject": r.Subject})
	if n.reveal {
		entry = entry.WithField("body", r.Text)
	}
	entry.Info("email not sent (log transport)")
	return nil
}
