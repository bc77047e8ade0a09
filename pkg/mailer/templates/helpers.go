package templates

import (
	"time"
)

// Branding is the sender identity stamped on every email.
type Branding struct {
	AppName        string
	CompanyName    string
	CompanyAddress string
	LogoURL        string
	SupportURL     string
}

// Option pattern
type Option func(*EmailData)

func WithExpiresAt(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format("02 January 2006, 15:04 MST")
	}
}

func WithRecipient(email string) Option {
	return func(d *EmailData) { d.RecipientEmail = email }
}

// NewBaseEmailData fills the shared fields from b, then applies opts.
func NewBaseEmailData(b Branding, typ, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:           name,
		Email:          email,
		RecipientEmail: email,
		Type:           typ,

		CompanyName:    b.CompanyName,
		CompanyAddress: b.CompanyAddress,
		AppName:        b.AppName,
		LogoURL:        b.LogoURL,
		SupportURL:     b.SupportURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func NewVerifyEmailData(b Branding, name, email, verifyURL string, opts ...Option) map[string]any {
	d := NewBaseEmailData(b, VerifyEmail, name, email, opts...)
	d.VerifyURL = verifyURL
	return ToMap(d)
}

func NewResetPasswordData(b Branding, name, email, code string, opts ...Option) map[string]any {
	d := NewBaseEmailData(b, ResetPassword, name, email, opts...)
	d.Code = code
	return ToMap(d)
}
