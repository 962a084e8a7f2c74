package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/service"
	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/aussiebroadwan/orgauth/pkg/httpx"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
)

// ProtocolHandler carries the user and admin protocols over HTTP. Requests
// and responses are the tagged JSON envelopes of package authsdk; the
// session token travels in a cookie.
type ProtocolHandler struct {
	Dispatcher   *service.Dispatcher
	Hooks        service.Hooks
	CookieSecure bool
}

// HandleUser serves POST /user.
func (h *ProtocolHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	carrier := NewCookieCarrier(w, r, h.CookieSecure)
	resp, err := h.Dispatcher.HandleUser(r.Context(), carrier, h.Hooks, req)
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleAdmin serves POST /admin.
func (h *ProtocolHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AdminRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	carrier := NewCookieCarrier(w, r, h.CookieSecure)
	resp, err := h.Dispatcher.HandleAdmin(r.Context(), carrier, h.Hooks, req)
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleSession serves GET /session. It resolves the cookie, rotating the
// token when due, and reports who is logged in.
func (h *ProtocolHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	carrier := NewCookieCarrier(w, r, h.CookieSecure)
	resp, err := h.Dispatcher.PageLoad(r.Context(), carrier, h.Hooks)
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	slogx.FromContext(r.Context()).Info("rejected request body", slog.Any("error", err))

	status := http.StatusBadRequest
	if errors.Is(err, httpx.ErrBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	httpx.WriteJSON(w, status, authsdk.ServerError{Message: "request body must be a valid request"})
}

// writeDispatchError maps the errors a dispatcher returns, which are never
// business outcomes, to status codes.
func writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	l := slogx.FromContext(r.Context())

	switch {
	case errors.Is(err, service.ErrMalformedRequest):
		l.Info("malformed request", slog.Any("error", err))
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ServerError{Message: "malformed request"})
	case errors.Is(err, service.ErrDatabaseBusy):
		l.Warn("database busy", slog.Any("error", err))
		w.Header().Set("Retry-After", "1")
		httpx.WriteJSON(w, http.StatusServiceUnavailable, authsdk.ServerError{Message: "database busy"})
	case errors.Is(err, service.ErrFederation):
		l.Error("federation failure", slog.Any("error", err))
		httpx.WriteJSON(w, http.StatusBadGateway, authsdk.ServerError{Message: "remote server unavailable"})
	default:
		l.Error("request failed", slog.Any("error", err))
		httpx.WriteJSON(w, http.StatusInternalServerError, authsdk.ServerError{Message: "an internal error occurred"})
	}
}
