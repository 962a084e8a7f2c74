package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
)

// Peer logs in to a remote instance speaking the same protocol.
type Peer interface {
	Login(ctx context.Context, remoteURL, name, password string) (authsdk.RemoteLogin, error)
}

// Dispatcher maps protocol requests to credential, ledger and pending record
// operations. Domain failures come back as response values; the returned
// error is reserved for infrastructure failures and malformed requests.
type Dispatcher struct {
	Config      Config
	Store       store.Store
	Credentials *CredentialService
	Ledger      *TokenLedger
	Pending     *PendingService
	Mailer      Mailer
	Peer        Peer
}

// NewDispatcher wires the services over st. A nil mailer logs messages and a
// nil peer disables federation.
func NewDispatcher(st store.Store, cfg Config, mailer Mailer, peer Peer) *Dispatcher {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Dispatcher{
		Config:      cfg,
		Store:       st,
		Credentials: &CredentialService{Store: st, Config: cfg},
		Ledger:      &TokenLedger{Store: st, Config: cfg},
		Pending:     &PendingService{Store: st, Config: cfg},
		Mailer:      mailer,
		Peer:        peer,
	}
}

// SetClock replaces the clock of every service. Tests use it to step
// through expiry and grace windows.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.Credentials.Now = now
	d.Ledger.Now = now
	d.Pending.Now = now
}

// PageLoad resolves the carrier's token, rotating it when due, and reports
// who is logged in.
func (d *Dispatcher) PageLoad(ctx context.Context, carrier TokenCarrier, hooks Hooks) (authsdk.UserResponse, error) {
	if carrier.Get() == nil {
		return authsdk.UserResponse{What: authsdk.UrpNotLoggedIn}, nil
	}

	u, err := d.Ledger.ResolveAndMaybeRotate(ctx, carrier)
	switch {
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired):
		carrier.Clear()
		return authsdk.UserResponse{What: authsdk.UrpNotLoggedIn}, nil
	case errors.Is(err, ErrAccountDeactivated):
		carrier.Clear()
		return authsdk.UserResponse{What: authsdk.UrpAccountDeactivated}, nil
	case err != nil:
		return authsdk.UserResponse{}, err
	}

	ld, err := d.loginData(ctx, d.Store.Querier(), hooks, u)
	if err != nil {
		return authsdk.UserResponse{}, err
	}
	return authsdk.UserResponse{What: authsdk.UrpLoggedIn, Data: ld}, nil
}

// login issues a fresh token for u and stores it in the carrier.
func (d *Dispatcher) login(
	ctx context.Context,
	carrier TokenCarrier,
	hooks Hooks,
	u domain.User,
) (authsdk.UserResponse, error) {
	tok, err := d.Ledger.Issue(ctx, u.ID, nil)
	if err != nil {
		return authsdk.UserResponse{}, err
	}
	carrier.Set(tok)

	ld, err := d.loginData(ctx, d.Store.Querier(), hooks, u)
	if err != nil {
		return authsdk.UserResponse{}, err
	}

	slogx.FromContext(ctx).Info("user logged in", slog.Int64("user_id", int64(u.ID)))
	return authsdk.UserResponse{What: authsdk.UrpLoggedIn, Data: ld}, nil
}

func (d *Dispatcher) loginData(
	ctx context.Context,
	q store.Querier,
	hooks Hooks,
	u domain.User,
) (authsdk.LoginData, error) {
	data, err := hooks.loginData(ctx, q, u.ID)
	if err != nil {
		return authsdk.LoginData{}, fmt.Errorf("login data hook: %w", err)
	}
	return authsdk.LoginData{
		UserID:    int64(u.ID),
		UUID:      u.UUID,
		Name:      u.Name,
		Email:     u.Email,
		Admin:     u.Admin,
		Active:    u.Active,
		RemoteURL: u.RemoteURL,
		Data:      data,
	}, nil
}

func (d *Dispatcher) userInvite(inv domain.Invite) authsdk.UserInvite {
	return authsdk.UserInvite{
		Email:   inv.Email,
		Token:   inv.Token,
		URL:     d.Pending.InviteLink(inv.Token),
		Data:    inv.Data,
		Creator: int64(inv.CreatorID),
	}
}

// notifyAdmin sends a best effort notification to the configured admin
// address. Failures are logged and never reach the caller.
func (d *Dispatcher) notifyAdmin(ctx context.Context, kind MailKind, name string) {
	if d.Config.AdminEmail == "" || !d.Config.SendEmails {
		return
	}
	if err := d.Mailer.Send(ctx, Message{Kind: kind, To: d.Config.AdminEmail, Name: name}); err != nil {
		slogx.FromContext(ctx).Warn("failed to send admin notification",
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
	}
}

// sendReset mails the password reset link to u when emails are enabled.
// A failed send is logged and returned.
func (d *Dispatcher) sendReset(ctx context.Context, u domain.User, token uuid.UUID) error {
	if !d.Config.SendEmails {
		return nil
	}
	err := d.Mailer.Send(ctx, Message{
		Kind: MailPasswordReset,
		To:   u.Email,
		Name: u.Name,
		Link: d.Pending.ResetLink(u.Name, token),
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to send reset email",
			slog.Int64("user_id", int64(u.ID)),
			slog.Any("error", err),
		)
	}
	return err
}

// remoteLogin logs in to the instance at remoteURL as name. It returns nil
// login data when the peer rejected the credentials or the URL is unusable.
func (d *Dispatcher) remoteLogin(
	ctx context.Context,
	remoteURL, name, password string,
) (*authsdk.LoginData, string, error) {
	l := slogx.FromContext(ctx)

	if d.Peer == nil {
		return nil, "", nil
	}
	if err := validation.Validate(remoteURL, validation.Required, is.RequestURL); err != nil {
		l.Info("rejected remote url", slog.String("remote_url", remoteURL), slog.Any("error", err))
		return nil, "", nil
	}

	rl, err := d.Peer.Login(ctx, remoteURL, name, password)
	if err != nil {
		l.Error("remote login failed", slog.String("remote_url", remoteURL), slog.Any("error", err))
		return nil, "", fmt.Errorf("%w: %w", ErrFederation, err)
	}
	if rl.Response.What != authsdk.UrpLoggedIn {
		l.Info("remote login rejected",
			slog.String("remote_url", remoteURL),
			slog.String("response", string(rl.Response.What)),
		)
		return nil, "", nil
	}

	var ld authsdk.LoginData
	if err := rl.Response.DecodeData(&ld); err != nil {
		return nil, "", fmt.Errorf("%w: decode remote login: %w", ErrFederation, err)
	}
	return &ld, rl.Cookie, nil
}

// blank reports whether a user name or password is empty once surrounding
// whitespace is dropped.
func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedRequest, what, err)
}

func serverError(msg string) authsdk.UserResponse {
	return authsdk.UserResponse{What: authsdk.UrpServerError, Data: authsdk.ServerError{Message: msg}}
}

// registrationPayload is the registration request as handed to the user
// created hook, without the password.
func registrationPayload(rd authsdk.RegistrationData) ([]byte, error) {
	rd.Pwd = ""
	b, err := json.Marshal(rd)
	if err != nil {
		return nil, fmt.Errorf("encode registration payload: %w", err)
	}
	return b, nil
}
