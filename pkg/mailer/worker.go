package mailer

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Disposition says what to do with a queue message after handling it.
type Disposition int

const (
	Ack Disposition = iota
	Requeue
	Drop
)

// Worker turns queued EmailJobs into sent mail.
type Worker struct {
	sender  Sender
	logger  logrus.FieldLogger
	timeout time.Duration
}

func NewWorker(sender Sender, logger logrus.FieldLogger) *Worker {
	return &Worker{sender: sender, logger: logger, timeout: 15 * time.Second}
}

// Handle delivers one message body. Malformed jobs are dropped; a failed send
// is requeued once and dropped when it fails again on redelivery.
func (w *Worker) Handle(ctx context.Context, body []byte, redelivered bool) Disposition {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.logger.WithError(err).Warn("dropping malformed email job")
		return Drop
	}
	r, err := Render(job)
	if err != nil {
		w.logger.WithError(err).WithField("template", job.Template).Warn("dropping unrenderable email job")
		return Drop
	}

	c, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.sender.Send(c, r.To, r.Subject, r.Text, r.HTML); err != nil {
		entry := w.logger.WithError(err).WithField("to", r.To)
		if redelivered {
			entry.Error("email send failed twice, dropping")
			return Drop
		}
		entry.Warn("email send failed, requeueing")
		return Requeue
	}
	w.logger.WithFields(logrus.Fields{"to": r.To, "subject": r.Subject}).Info("email sent")
	return Ack
}

// Run consumes deliveries until ctx is done or the channel closes.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			switch w.Handle(ctx, d.Body, d.Redelivered) {
			case Ack:
				_ = d.Ack(false)
			case Requeue:
				_ = d.Nack(false, true)
			case Drop:
				_ = d.Nack(false, false)
			}
		}
	}
}
