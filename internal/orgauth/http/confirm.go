package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/service"
	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/aussiebroadwan/orgauth/pkg/httpx"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
	"github.com/google/uuid"
)

// ConfirmHandler serves the links mailed for registration and email change
// confirmation.
type ConfirmHandler struct {
	Credentials *service.CredentialService
	MainSite    string
}

// HandleRegistration serves GET /register/{name}/{key}.
func (h *ConfirmHandler) HandleRegistration(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())
	name := r.PathValue("name")

	_, err := h.Credentials.ConfirmRegistration(r.Context(), name, r.PathValue("key"))
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.write(w, http.StatusNotFound, "registration key or user doesn't match")
	case errors.Is(err, service.ErrRegistered):
		h.write(w, http.StatusConflict, "already registered")
	case err != nil:
		l.Error("registration confirmation failed", slog.String("name", name), slog.Any("error", err))
		h.write(w, http.StatusInternalServerError, "registration failed")
	default:
		l.Info("registration confirmed", slog.String("name", name))
		h.write(w, http.StatusOK, "registered")
	}
}

// HandleEmail serves GET /newemail/{name}/{token}.
func (h *ConfirmHandler) HandleEmail(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())
	name := r.PathValue("name")

	token, err := uuid.Parse(r.PathValue("token"))
	if err != nil {
		h.write(w, http.StatusBadRequest, "invalid token")
		return
	}

	err = h.Credentials.ConfirmEmail(r.Context(), name, token)
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.write(w, http.StatusNotFound, "email change not found")
	case errors.Is(err, service.ErrTokenExpired):
		h.write(w, http.StatusUnprocessableEntity, "email change failed - token expired")
	case err != nil:
		l.Error("email confirmation failed", slog.String("name", name), slog.Any("error", err))
		h.write(w, http.StatusInternalServerError, "email change failed")
	default:
		l.Info("email change confirmed", slog.String("name", name))
		h.write(w, http.StatusOK, "email changed")
	}
}

func (h *ConfirmHandler) write(w http.ResponseWriter, code int, status string) {
	resp := authsdk.ConfirmResponse{Status: status}
	if code == http.StatusOK {
		resp.MainSite = h.MainSite
	}
	httpx.WriteJSON(w, code, resp)
}
