package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EmailChange is a proposed email address waiting for confirmation.
type EmailChange struct {
	UserID   UserID
	Email    string
	Token    uuid.UUID
	IssuedAt time.Time
}

// PasswordReset authorizes one password reset for UserID.
type PasswordReset struct {
	UserID   UserID
	Token    uuid.UUID
	IssuedAt time.Time
}

// Invite is a single use invitation to create an account.
type Invite struct {
	Token     uuid.UUID
	Email     *string
	CreatorID UserID
	Data      json.RawMessage // opaque payload handed to the new user
	IssuedAt  time.Time
}
