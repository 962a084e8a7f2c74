package http

import (
	"net/http"

	"github.com/google/uuid"
)

// CookieName is the session cookie carrying the login token.
const CookieName = "orgauth_token"

// CookieCarrier keeps the session token in a cookie. It reads the token from
// the request once and writes changes to the response as Set-Cookie
// headers, so it must be used before the body is written.
type CookieCarrier struct {
	w      http.ResponseWriter
	secure bool
	token  *uuid.UUID
}

// NewCookieCarrier reads the session cookie of r. A missing or unparsable
// cookie yields an empty carrier.
func NewCookieCarrier(w http.ResponseWriter, r *http.Request, secure bool) *CookieCarrier {
	c := &CookieCarrier{w: w, secure: secure}
	if ck, err := r.Cookie(CookieName); err == nil {
		if tok, err := uuid.Parse(ck.Value); err == nil {
			c.token = &tok
		}
	}
	return c
}

func (c *CookieCarrier) Get() *uuid.UUID {
	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

func (c *CookieCarrier) Set(token uuid.UUID) {
	c.token = &token
	http.SetCookie(c.w, c.cookie(token.String(), 0))
}

func (c *CookieCarrier) Clear() {
	c.token = nil
	http.SetCookie(c.w, c.cookie("", -1))
}

func (c *CookieCarrier) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
