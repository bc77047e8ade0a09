package application

import (
	"context"
	"io"
	"time"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
)

// Cooldown grants a key at most once per ttl.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// UserIndex is the searchable copy of the user directory.
type UserIndex interface {
	Index(ctx context.Context, u *entity.User) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, q string, size int) ([]entity.User, error)
}

// ImageStore keeps uploaded profile images and returns a reference to them.
type ImageStore interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Recorder receives service-level counters.
type Recorder interface {
	Auth(op, outcome string)
	Token(purpose entity.TokenPurpose, event string)
	Delivery(kind string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) Auth(string, string)               {}
func (nopRecorder) Token(entity.TokenPurpose, string) {}
func (nopRecorder) Delivery(string, bool)             {}
