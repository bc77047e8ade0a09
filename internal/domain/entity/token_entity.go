package entity

import "time"

// TokenPurpose tells which flow a token belongs to.
type TokenPurpose string

const (
	PurposeVerify TokenPurpose = "verify"
	PurposeReset  TokenPurpose = "reset"
)

// Token is a single-use opaque value bound to one user and one purpose.
// At most one token exists per (UserID, Purpose).
type Token struct {
	ID        string
	UserID    string
	Purpose   TokenPurpose
	Value     string
	CreatedAt time.Time
	ExpiresAt time.Time
}
