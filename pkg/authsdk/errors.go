package authsdk

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingData is returned by DecodeData when a message carries no payload.
var ErrMissingData = errors.New("authsdk: message has no data")

// HTTPError is returned when the server answers with a non-2xx status. The
// protocol reports domain failures as tagged responses with status 200, so
// this only happens for transport level problems such as malformed bodies.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("authsdk: HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("authsdk: HTTP %d: %s", e.StatusCode, e.Body)
}

// UnexpectedResponseError is returned by helpers that expect one specific
// response variant and received another.
type UnexpectedResponseError struct {
	Want string
	Got  string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("authsdk: expected %s, got %s", e.Want, e.Got)
}
