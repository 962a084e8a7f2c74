package domain

import (
	"time"

	"github.com/google/uuid"
)

// Token is a session token row.
//
// A token starts fresh (no RegenDate, no PrevToken). Rotating it marks the old
// row with RegenDate and issues a successor whose PrevToken points back at it.
// Once the grace window after RegenDate has passed the ancestors are deleted
// by the next request that resolves the successor.
type Token struct {
	UserID    UserID
	Token     uuid.UUID
	IssuedAt  time.Time
	RegenDate *time.Time
	PrevToken *uuid.UUID
	Class     string // optional token class, empty for login tokens
}

// Marked reports whether the token has been superseded by a rotation.
func (t Token) Marked() bool { return t.RegenDate != nil }
