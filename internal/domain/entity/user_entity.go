package entity

import (
	"time"
)

// User is the aggregate root for the account domain.
// PasswordHash always holds a bcrypt hash, never the plain password.
//
// Tokens are owned by a User and are removed with it.
type User struct {
	ID              string
	FirstName       string
	LastName        string
	Email           string
	PasswordHash    string
	Verified        bool
	ProfileImageRef string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProfileUpdate holds the mutable identity fields an administrator may change.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Email     string
}
