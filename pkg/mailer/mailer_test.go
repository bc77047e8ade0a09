package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	mailtpl "github.com/oksasatya/pixsearch-identity/pkg/mailer/templates"
)

var branding = mailtpl.Branding{AppName: "Pixsearch", CompanyName: "Pixsearch Ltd", SupportURL: "https://example.com/help"}

type fakeSender struct {
	to, subject, text, html string
	err                     error
}

func (f *fakeSender) Send(_ context.Context, to, subject, text, html string) error {
	f.to, f.subject, f.text, f.html = to, subject, text, html
	return f.err
}

type fakePublisher struct {
	body []byte
	err  error
}

func (f *fakePublisher) PublishJSON(_ context.Context, body any) error {
	if f.err != nil {
		return f.err
	}
	b, err := json.Marshal(body)
	f.body = b
	return err
}

func TestRenderVerifyEmail(t *testing.T) {
	data := mailtpl.NewVerifyEmailData(branding, "Ada", "ada@example.com", "https://app.example.com/users/1/verify/abc",
		mailtpl.WithExpiresAt(time.Date(2030, 1, 2, 3, 4, 0, 0, time.UTC)))
	r, err := Render(EmailJob{To: "ada@example.com", Template: mailtpl.Universal, Data: data})
	require.NoError(t, err)

	require.Equal(t, "Verify your email address", r.Subject)
	require.Contains(t, r.Text, "Hi Ada,")
	require.Contains(t, r.Text, "https://app.example.com/users/1/verify/abc")
	require.Contains(t, r.Text, "02 January 2030")
	require.Contains(t, r.HTML, `href="https://app.example.com/users/1/verify/abc"`)
	require.NotContains(t, r.Text, "<no value>")
}

func TestRenderResetCode(t *testing.T) {
	data := mailtpl.NewResetPasswordData(branding, "", "ada@example.com", "042042")
	r, err := Render(EmailJob{To: "ada@example.com", Template: mailtpl.Universal, Data: data})
	require.NoError(t, err)

	require.Equal(t, "Your password reset code", r.Subject)
	require.Contains(t, r.Text, "Hi there,")
	require.Contains(t, r.Text, "042042")
	require.Contains(t, r.HTML, "042042")
}

func TestRenderRejectsIncompleteJobs(t *testing.T) {
	_, err := Render(EmailJob{Text: "hi"})
	require.Error(t, err)
	_, err = Render(EmailJob{To: "a@x.com"})
	require.Error(t, err)
	_, err = Render(EmailJob{To: "a@x.com", Template: "missing"})
	require.Error(t, err)

	r, err := Render(EmailJob{To: "a@x.com", Subject: "s", Text: "plain"})
	require.NoError(t, err)
	require.Equal(t, "plain", r.Text)
}

func TestQueueNotifierPublishesJob(t *testing.T) {
	pub := &fakePublisher{}
	n := NewQueueNotifier(pub)
	err := n.Send(context.Background(), Message{To: "a@x.com", Template: mailtpl.Universal,
		Data: mailtpl.NewResetPasswordData(branding, "Ada", "a@x.com", "123456")})
	require.NoError(t, err)

	var job EmailJob
	require.NoError(t, json.Unmarshal(pub.body, &job))
	require.Equal(t, "a@x.com", job.To)
	require.Equal(t, mailtpl.Universal, job.Template)
	require.Equal(t, "123456", job.Data["Code"])

	pub.err = errors.New("channel closed")
	require.Error(t, n.Send(context.Background(), Message{To: "a@x.com", Text: "x"}))
}

func TestDirectNotifierRendersAndSends(t *testing.T) {
	s := &fakeSender{}
	n := NewDirectNotifier(s)
	require.NoError(t, n.Send(context.Background(), Message{To: "a@x.com", Template: mailtpl.Universal,
		Data: mailtpl.NewVerifyEmailData(branding, "Ada", "a@x.com", "https://x/verify")}))
	require.Equal(t, "a@x.com", s.to)
	require.Equal(t, "Verify your email address", s.subject)
	require.Contains(t, s.html, "https://x/verify")

	s.err = errors.New("mailgun down")
	require.ErrorIs(t, n.Send(context.Background(), Message{To: "a@x.com", Text: "x"}), s.err)
}

func TestLogNotifierHidesBodyUnlessRevealed(t *testing.T) {
	logger, hook := test.NewNullLogger()
	msg := Message{To: "a@x.com", Subject: "s", Text: "secret 123456"}

	require.NoError(t, NewLogNotifier(logger, false).Send(context.Background(), msg))
	require.Len(t, hook.Entries, 1)
	require.NotContains(t, hook.LastEntry().Data, "body")

	require.NoError(t, NewLogNotifier(logger, true).Send(context.Background(), msg))
	require.Equal(t, "secret 123456", hook.LastEntry().Data["body"])
	require.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}
