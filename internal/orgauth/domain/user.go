package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// UserID is the row id of a user. It is kept distinct from plain integers so
// it can't be mixed up with counts or timestamps.
type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

type User struct {
	ID              UserID
	UUID            uuid.UUID
	Name            string // stored lowercased
	PasswordHash    string // digest of password and Salt
	Salt            string
	Email           string
	RegistrationKey *string // set until the registration is confirmed
	Admin           bool
	Active          bool
	RemoteURL       *string // federation peer this account is bound to
	Cookie          *string // session cookie issued by RemoteURL
	CreatedAt       time.Time
}

// Registered reports whether the user has completed registration.
func (u User) Registered() bool { return u.RegistrationKey == nil }

// NewUser is the candidate handed to the credential store when creating an
// account. Password is the raw password, it never reaches the database.
type NewUser struct {
	Name            string
	Password        string
	Email           string
	RegistrationKey *string
	Admin           bool
	UUID            *uuid.UUID // defaults to a fresh v4 uuid
	CreatorID       *UserID    // user who issued the invite, if any
	RemoteURL       *string
	Cookie          *string
	Data            []byte // raw registration payload for the host hook
}
