package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountDeactivated = errors.New("account_deactivated")
	ErrTokenExpired       = errors.New("token_expired")
	ErrTokenInvalid       = errors.New("token_invalid")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")

	// ErrRegistered is returned by operations that are only allowed while a
	// registration is still pending.
	ErrRegistered = errors.New("already_registered")

	// ErrFederation wraps transport failures talking to a remote instance.
	ErrFederation = errors.New("federation_failed")

	// ErrDatabaseBusy is returned when the rotation path kept colliding with
	// other writers and gave up.
	ErrDatabaseBusy = errors.New("database_busy")

	// ErrMalformedRequest is returned by the dispatchers when a request or its
	// payload can't be decoded. Hosts should answer it as a client error.
	ErrMalformedRequest = errors.New("malformed_request")
)
