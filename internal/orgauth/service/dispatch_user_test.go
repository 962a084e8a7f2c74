package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("logs straight in without email confirmation", func(t *testing.T) {
		e := newTestEnv(t, testConfig())
		c := NewMemoryCarrier(nil)

		resp, err := e.d.HandleUser(ctx, c, Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqRegister,
			Data: authsdk.RegistrationData{UID: "Alice", Pwd: "correct-horse", Email: "alice@example.com"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpLoggedIn, resp.What)
		require.NotNil(t, c.Get())

		var ld authsdk.LoginData
		require.NoError(t, resp.DecodeData(&ld))
		require.Equal(t, "alice", ld.Name)

		u, err := e.d.Ledger.ResolveForRequest(ctx, *c.Get())
		require.NoError(t, err)
		require.True(t, u.Registered())
	})

	t.Run("sends a confirmation when emails are on", func(t *testing.T) {
		cfg := testConfig()
		cfg.SendEmails = true
		e := newTestEnv(t, cfg)
		c := NewMemoryCarrier(nil)

		resp, err := e.d.HandleUser(ctx, c, Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqRegister,
			Data: authsdk.RegistrationData{UID: "alice", Pwd: "pw", Email: "alice@example.com"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpRegistrationSent, resp.What)
		require.Nil(t, c.Get())

		msg := e.mailer.last(t)
		require.Equal(t, MailRegistration, msg.Kind)
		require.Equal(t, "alice@example.com", msg.To)
		require.True(t, strings.HasPrefix(msg.Link, "https://example.com/register/alice/"), msg.Link)

		// Pending users can't log in yet
		resp, err = e.d.HandleUser(ctx, c, Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqLogin,
			Data: authsdk.Login{UID: "alice", Pwd: "pw"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpUnregisteredUser, resp.What)

		key := strings.TrimPrefix(msg.Link, "https://example.com/register/alice/")
		_, err = e.d.Credentials.ConfirmRegistration(ctx, "alice", key)
		require.NoError(t, err)
		e.login(t, "alice", "pw")
	})

	t.Run("redoing a pending registration replaces its credentials", func(t *testing.T) {
		e := newTestEnv(t, testConfig())
		key := "k"
		e.createUser(t, "alice", "old", func(nu *domain.NewUser) { nu.RegistrationKey = &key })

		c := NewMemoryCarrier(nil)
		resp, err := e.d.HandleUser(ctx, c, Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqRegister,
			Data: authsdk.RegistrationData{UID: "alice", Pwd: "new", Email: "a2@example.com"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpLoggedIn, resp.What)

		u, err := e.st.Users().GetUserByName(ctx, "alice")
		require.NoError(t, err)
		require.True(t, u.Registered())
		require.Equal(t, "a2@example.com", u.Email)
		require.True(t, e.d.Credentials.VerifyPassword(u, "new"))
	})

	t.Run("deactivated pending user cannot register again", func(t *testing.T) {
		e := newTestEnv(t, testConfig())
		key := "k"
		alice := e.createUser(t, "alice", "old", func(nu *domain.NewUser) { nu.RegistrationKey = &key })
		alice.Active = false
		_, err := e.d.Credentials.UpdateFields(ctx, alice)
		require.NoError(t, err)

		c := NewMemoryCarrier(nil)
		resp, err := e.d.HandleUser(ctx, c, Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqRegister,
			Data: authsdk.RegistrationData{UID: "alice", Pwd: "new", Email: "a2@example.com"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpAccountDeactivated, resp.What)
		require.Nil(t, c.Get())
		require.Equal(t, 0, e.tokenCount(t, alice.ID))

		u, err := e.st.Users().GetUserByName(ctx, "alice")
		require.NoError(t, err)
		require.False(t, u.Registered())
		require.True(t, e.d.Credentials.VerifyPassword(u, "old"))
	})

	t.Run("rejections", func(t *testing.T) {
		e := newTestEnv(t, testConfig())
		e.createUser(t, "alice", "pw")

		cases := []struct {
			name string
			rd   authsdk.RegistrationData
			want authsdk.UserResponseKind
		}{
			{"existing user", authsdk.RegistrationData{UID: "ALICE", Pwd: "x"}, authsdk.UrpUserExists},
			{"blank name", authsdk.RegistrationData{UID: "  ", Pwd: "x"}, authsdk.UrpBlankUserName},
			{"blank password", authsdk.RegistrationData{UID: "bob", Pwd: ""}, authsdk.UrpBlankPassword},
			{"whitespace password", authsdk.RegistrationData{UID: "bob", Pwd: " \t\n"}, authsdk.UrpBlankPassword},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{What: authsdk.UrqRegister, Data: tc.rd})
				require.NoError(t, err)
				require.Equal(t, tc.want, resp.What)
			})
		}
	})

	t.Run("closed registration", func(t *testing.T) {
		cfg := testConfig()
		cfg.OpenRegistration = false
		e := newTestEnv(t, cfg)

		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqRegister,
			Data: authsdk.RegistrationData{UID: "alice", Pwd: "pw"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpRegistrationClosed, resp.What)
	})

	t.Run("hook receives the payload without the password", func(t *testing.T) {
		e := newTestEnv(t, testConfig())

		var payload authsdk.RegistrationData
		hooks := Hooks{UserCreated: UserCreatedFunc(func(_ context.Context, _ store.Querier, u CreatedUser) error {
			return json.Unmarshal(u.Data, &payload)
		})}

		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), hooks, authsdk.UserRequest{
			What: authsdk.UrqRegister,
			Data: authsdk.RegistrationData{UID: "alice", Pwd: "secret", Email: "a@example.com"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpLoggedIn, resp.What)
		require.Equal(t, "alice", payload.UID)
		require.Empty(t, payload.Pwd)
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEnv(t, testConfig())
	e.createUser(t, "alice", "correct-horse")
	bob := e.createUser(t, "bob", "pw")
	bob.Active = false
	require.NoError(t, e.st.Users().UpdateUser(ctx, bob))

	cases := []struct {
		name string
		l    authsdk.Login
		want authsdk.UserResponseKind
	}{
		{"wrong password", authsdk.Login{UID: "alice", Pwd: "wrong"}, authsdk.UrpInvalidUserOrPwd},
		{"unknown user", authsdk.Login{UID: "nobody", Pwd: "x"}, authsdk.UrpInvalidUserOrPwd},
		{"deactivated", authsdk.Login{UID: "bob", Pwd: "pw"}, authsdk.UrpAccountDeactivated},
		{"deactivated wrong password", authsdk.Login{UID: "bob", Pwd: "x"}, authsdk.UrpInvalidUserOrPwd},
		{"case insensitive", authsdk.Login{UID: "ALICE", Pwd: "correct-horse"}, authsdk.UrpLoggedIn},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewMemoryCarrier(nil)
			resp, err := e.d.HandleUser(ctx, c, Hooks{}, authsdk.UserRequest{What: authsdk.UrqLogin, Data: tc.l})
			require.NoError(t, err)
			require.Equal(t, tc.want, resp.What)
			require.Equal(t, tc.want == authsdk.UrpLoggedIn, c.Get() != nil)
		})
	}

	t.Run("login data hook output is attached", func(t *testing.T) {
		hooks := Hooks{LoginData: LoginDataFunc(func(context.Context, store.Querier, domain.UserID) (json.RawMessage, error) {
			return json.RawMessage(`{"theme":"dark"}`), nil
		})}
		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), hooks, authsdk.UserRequest{
			What: authsdk.UrqLogin,
			Data: authsdk.Login{UID: "alice", Pwd: "correct-horse"},
		})
		require.NoError(t, err)

		var ld authsdk.LoginData
		require.NoError(t, resp.DecodeData(&ld))
		require.JSONEq(t, `{"theme":"dark"}`, string(ld.Data))
	})
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEnv(t, testConfig())
	alice := e.createUser(t, "alice", "pw")
	c := e.login(t, "alice", "pw")
	tok := *c.Get()

	for i := 0; i < 2; i++ {
		resp, err := e.d.HandleUser(ctx, c, Hooks{}, authsdk.UserRequest{What: authsdk.UrqLogout})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpLoggedOut, resp.What)
		require.Nil(t, c.Get())
	}

	require.Equal(t, 0, e.tokenCount(t, alice.ID))

	// The old token no longer authenticates
	resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(&tok), Hooks{},
		authed(authsdk.AurChangePassword, authsdk.ChangePassword{OldPwd: "pw", NewPwd: "x"}))
	require.NoError(t, err)
	require.Equal(t, authsdk.UrpNotLoggedIn, resp.What)
}

func TestResetAndSetPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := testConfig()
	cfg.SendEmails = true
	e := newTestEnv(t, cfg)
	alice := e.createUser(t, "alice", "pw")

	resetFor := func(t *testing.T) uuid.UUID {
		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqResetPassword,
			Data: authsdk.ResetPassword{UID: "alice"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpResetPasswordAck, resp.What)

		msg := e.mailer.last(t)
		require.Equal(t, MailPasswordReset, msg.Kind)
		require.Equal(t, "alice@example.com", msg.To)
		return mustUUID(t, strings.TrimPrefix(msg.Link, "https://example.com/reset/alice/"))
	}

	setPassword := func(t *testing.T, key uuid.UUID, pwd string) authsdk.UserResponse {
		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqSetPassword,
			Data: authsdk.SetPassword{UID: "alice", NewPwd: pwd, ResetKey: key},
		})
		require.NoError(t, err)
		return resp
	}

	t.Run("expired reset leaves the row untouched", func(t *testing.T) {
		key := resetFor(t)
		e.clock.Advance(time.Hour + time.Millisecond)

		resp := setPassword(t, key, "new")
		require.Equal(t, authsdk.UrpServerError, resp.What)

		require.Equal(t, 1, e.countRows(t,
			`SELECT COUNT(*) FROM orgauth_newpassword WHERE user_id = ? AND token = ?`, int64(alice.ID), key.String()))
		e.login(t, "alice", "pw")
	})

	t.Run("valid reset sets the password once", func(t *testing.T) {
		key := resetFor(t)

		require.Equal(t, authsdk.UrpBlankPassword, setPassword(t, key, "").What)
		require.Equal(t, authsdk.UrpBlankPassword, setPassword(t, key, "   ").What)
		require.Equal(t, authsdk.UrpSetPasswordAck, setPassword(t, key, "new").What)
		e.login(t, "alice", "new")

		require.Equal(t, authsdk.UrpNotFound, setPassword(t, key, "again").What)
	})

	t.Run("unknown user", func(t *testing.T) {
		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqResetPassword,
			Data: authsdk.ResetPassword{UID: "nobody"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpInvalidUserOrPwd, resp.What)
	})

	t.Run("mail failure is reported", func(t *testing.T) {
		e.mailer.mu.Lock()
		e.mailer.err = errors.New("smtp down")
		e.mailer.mu.Unlock()
		t.Cleanup(func() {
			e.mailer.mu.Lock()
			e.mailer.err = nil
			e.mailer.mu.Unlock()
		})

		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqResetPassword,
			Data: authsdk.ResetPassword{UID: "alice"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpServerError, resp.What)
	})

	t.Run("no mail when emails are off", func(t *testing.T) {
		quiet := newTestEnv(t, testConfig())
		bob := quiet.createUser(t, "bob", "pw")

		resp, err := quiet.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{
			What: authsdk.UrqResetPassword,
			Data: authsdk.ResetPassword{UID: "bob"},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpResetPasswordAck, resp.What)
		require.Empty(t, quiet.mailer.msgs)
		require.Equal(t, 1, quiet.countRows(t,
			`SELECT COUNT(*) FROM orgauth_newpassword WHERE user_id = ?`, int64(bob.ID)))
	})
}

func TestInvites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEnv(t, testConfig())
	admin := e.createUser(t, "root", "pw", asAdmin)
	e.createUser(t, "alice", "correct-horse")

	mint := func(t *testing.T, email *string, data string) uuid.UUID {
		inv, err := e.d.Pending.CreateInvite(ctx, admin.ID, email, json.RawMessage(data))
		require.NoError(t, err)
		return inv.Token
	}
	rsvp := func(t *testing.T, r authsdk.RSVP) (authsdk.UserResponse, *MemoryCarrier) {
		c := NewMemoryCarrier(nil)
		resp, err := e.d.HandleUser(ctx, c, Hooks{}, authsdk.UserRequest{What: authsdk.UrqRSVP, Data: r})
		require.NoError(t, err)
		return resp, c
	}

	t.Run("read invite", func(t *testing.T) {
		email := "new@example.com"
		tok := mint(t, &email, `{"team":"blue"}`)

		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{What: authsdk.UrqReadInvite, Data: tok})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpInvite, resp.What)

		var ui authsdk.UserInvite
		require.NoError(t, resp.DecodeData(&ui))
		require.Equal(t, "https://example.com/invite/"+tok.String(), ui.URL)
		require.Equal(t, int64(admin.ID), ui.Creator)
		require.JSONEq(t, `{"team":"blue"}`, string(ui.Data))

		resp, err = e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{What: authsdk.UrqReadInvite, Data: uuid.New()})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpNotFound, resp.What)
	})

	t.Run("existing user accepts once", func(t *testing.T) {
		tok := mint(t, nil, `{}`)

		resp, _ := rsvp(t, authsdk.RSVP{UID: "alice", Pwd: "wrong", Invite: tok})
		require.Equal(t, authsdk.UrpInvalidUserOrPwd, resp.What)

		resp, c := rsvp(t, authsdk.RSVP{UID: "alice", Pwd: "correct-horse", Invite: tok})
		require.Equal(t, authsdk.UrpLoggedIn, resp.What)
		require.NotNil(t, c.Get())

		resp, _ = rsvp(t, authsdk.RSVP{UID: "alice", Pwd: "correct-horse", Invite: tok})
		require.Equal(t, authsdk.UrpNotFound, resp.What)
	})

	t.Run("new user is created from the invite", func(t *testing.T) {
		email := "carol@example.com"
		tok := mint(t, &email, `{"team":"red"}`)

		resp, _ := rsvp(t, authsdk.RSVP{UID: "", Pwd: "x", Invite: tok})
		require.Equal(t, authsdk.UrpBlankUserName, resp.What)
		resp, _ = rsvp(t, authsdk.RSVP{UID: "carol", Pwd: "", Invite: tok})
		require.Equal(t, authsdk.UrpBlankPassword, resp.What)
		resp, _ = rsvp(t, authsdk.RSVP{UID: "carol", Pwd: " \t ", Invite: tok})
		require.Equal(t, authsdk.UrpBlankPassword, resp.What)

		resp, _ = rsvp(t, authsdk.RSVP{UID: "Carol", Pwd: "pw", Invite: tok})
		require.Equal(t, authsdk.UrpLoggedIn, resp.What)

		u, err := e.st.Users().GetUserByName(ctx, "carol")
		require.NoError(t, err)
		require.Equal(t, email, u.Email)

		_, err = e.st.Invites().GetInvite(ctx, tok)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("hook learns who sent the invite", func(t *testing.T) {
		tok := mint(t, nil, `{"team":"green"}`)

		var created CreatedUser
		hooks := Hooks{UserCreated: UserCreatedFunc(func(_ context.Context, _ store.Querier, u CreatedUser) error {
			created = u
			return nil
		})}

		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), hooks, authsdk.UserRequest{
			What: authsdk.UrqRSVP,
			Data: authsdk.RSVP{UID: "frank", Pwd: "pw", Invite: tok},
		})
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpLoggedIn, resp.What)

		require.NotZero(t, created.ID)
		require.NotNil(t, created.Creator)
		require.Equal(t, admin.ID, *created.Creator)
		require.Nil(t, created.RemoteURL)
		require.JSONEq(t, `{"team":"green"}`, string(created.Data))
	})

	t.Run("pending registration is completed", func(t *testing.T) {
		key := "k"
		e.createUser(t, "dave", "pw", func(nu *domain.NewUser) { nu.RegistrationKey = &key })
		tok := mint(t, nil, `{}`)

		resp, _ := rsvp(t, authsdk.RSVP{UID: "dave", Pwd: "pw", Invite: tok})
		require.Equal(t, authsdk.UrpLoggedIn, resp.What)

		u, err := e.st.Users().GetUserByName(ctx, "dave")
		require.NoError(t, err)
		require.True(t, u.Registered())
	})

	t.Run("deactivated user", func(t *testing.T) {
		erin := e.createUser(t, "erin", "pw")
		erin.Active = false
		require.NoError(t, e.st.Users().UpdateUser(ctx, erin))
		tok := mint(t, nil, `{}`)

		resp, _ := rsvp(t, authsdk.RSVP{UID: "erin", Pwd: "pw", Invite: tok})
		require.Equal(t, authsdk.UrpAccountDeactivated, resp.What)

		// The invite is still there
		_, err := e.st.Invites().GetInvite(ctx, tok)
		require.NoError(t, err)
	})

	t.Run("expired invite", func(t *testing.T) {
		tok := mint(t, nil, `{}`)
		e.clock.Advance(24*time.Hour + time.Millisecond)

		resp, _ := rsvp(t, authsdk.RSVP{UID: "frank", Pwd: "pw", Invite: tok})
		require.Equal(t, authsdk.UrpNotFound, resp.What)
	})
}

func TestAuthedRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mailCfg := testConfig()
	mailCfg.SendEmails = true
	e := newTestEnv(t, mailCfg)
	alice := e.createUser(t, "alice", "pw")
	c := e.login(t, "alice", "pw")

	send := func(t *testing.T, what authsdk.AuthedRequestKind, data any) authsdk.UserResponse {
		resp, err := e.d.HandleUser(ctx, c, Hooks{}, authed(what, data))
		require.NoError(t, err)
		return resp
	}

	t.Run("not logged in", func(t *testing.T) {
		resp, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authed(authsdk.AurChangePassword, authsdk.ChangePassword{}))
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpNotLoggedIn, resp.What)
	})

	t.Run("change password", func(t *testing.T) {
		require.Equal(t, authsdk.UrpInvalidUserOrPwd,
			send(t, authsdk.AurChangePassword, authsdk.ChangePassword{OldPwd: "nope", NewPwd: "x"}).What)
		require.Equal(t, authsdk.UrpBlankPassword,
			send(t, authsdk.AurChangePassword, authsdk.ChangePassword{OldPwd: "pw", NewPwd: ""}).What)
		require.Equal(t, authsdk.UrpBlankPassword,
			send(t, authsdk.AurChangePassword, authsdk.ChangePassword{OldPwd: "pw", NewPwd: "\t "}).What)
		require.Equal(t, authsdk.UrpChangedPassword,
			send(t, authsdk.AurChangePassword, authsdk.ChangePassword{OldPwd: "pw", NewPwd: "pw2"}).What)
		e.login(t, "alice", "pw2")
	})

	t.Run("change email", func(t *testing.T) {
		require.Equal(t, authsdk.UrpInvalidUserOrPwd,
			send(t, authsdk.AurChangeEmail, authsdk.ChangeEmail{Pwd: "nope", Email: "x@example.com"}).What)

		resp := send(t, authsdk.AurChangeEmail, authsdk.ChangeEmail{Pwd: "pw2", Email: "x@example.com"})
		require.Equal(t, authsdk.UrpChangedEmail, resp.What)

		msg := e.mailer.last(t)
		require.Equal(t, MailEmailChange, msg.Kind)
		require.Equal(t, "x@example.com", msg.To)

		token := mustUUID(t, strings.TrimPrefix(msg.Link, "https://example.com/newemail/alice/"))
		require.NoError(t, e.d.Credentials.ConfirmEmail(ctx, "alice", token))
	})

	t.Run("change email without mail", func(t *testing.T) {
		quiet := newTestEnv(t, testConfig())
		carol := quiet.createUser(t, "carol", "pw")
		cc := quiet.login(t, "carol", "pw")

		resp, err := quiet.d.HandleUser(ctx, cc, Hooks{}, authed(authsdk.AurChangeEmail, authsdk.ChangeEmail{Pwd: "pw", Email: "c2@example.com"}))
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpChangedEmail, resp.What)
		require.Empty(t, quiet.mailer.msgs)
		require.Equal(t, 1, quiet.countRows(t,
			`SELECT COUNT(*) FROM orgauth_newemail WHERE user_id = ?`, int64(carol.ID)))
	})

	t.Run("read remote user", func(t *testing.T) {
		resp := send(t, authsdk.AurReadRemoteUser, int64(alice.ID))
		require.Equal(t, authsdk.UrpRemoteUser, resp.What)

		var pu authsdk.PhantomUser
		require.NoError(t, resp.DecodeData(&pu))
		require.Equal(t, alice.UUID, pu.UUID)

		require.Equal(t, authsdk.UrpInvalidUserID, send(t, authsdk.AurReadRemoteUser, int64(424242)).What)
	})

	t.Run("invites need admin unless enabled", func(t *testing.T) {
		require.Equal(t, authsdk.UrpInvitesDisabled, send(t, authsdk.AurGetInvite, authsdk.GetInvite{}).What)

		cfg := mailCfg
		cfg.NonAdminInvite = true
		e.d.Config = cfg
		t.Cleanup(func() { e.d.Config = mailCfg })

		require.Equal(t, authsdk.UrpNoData, send(t, authsdk.AurGetInvite, nil).What)

		resp := send(t, authsdk.AurGetInvite, authsdk.GetInvite{Data: json.RawMessage(`{"x":1}`)})
		require.Equal(t, authsdk.UrpInvite, resp.What)

		var ui authsdk.UserInvite
		require.NoError(t, resp.DecodeData(&ui))
		require.Equal(t, int64(alice.ID), ui.Creator)
	})

	t.Run("deactivated caller", func(t *testing.T) {
		bob := e.createUser(t, "bob", "pw")
		bc := e.login(t, "bob", "pw")
		bob.Active = false
		require.NoError(t, e.st.Users().UpdateUser(ctx, bob))

		resp, err := e.d.HandleUser(ctx, bc, Hooks{}, authed(authsdk.AurChangePassword, authsdk.ChangePassword{}))
		require.NoError(t, err)
		require.Equal(t, authsdk.UrpAccountDeactivated, resp.What)
	})
}

func TestMalformedRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEnv(t, testConfig())

	_, err := e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{What: "UrqBogus"})
	require.ErrorIs(t, err, ErrMalformedRequest)

	_, err = e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{What: authsdk.UrqLogin})
	require.ErrorIs(t, err, ErrMalformedRequest)

	_, err = e.d.HandleUser(ctx, NewMemoryCarrier(nil), Hooks{}, authsdk.UserRequest{
		What: authsdk.UrqLogin,
		Data: json.RawMessage(`"not an object"`),
	})
	require.ErrorIs(t, err, ErrMalformedRequest)
}

func TestPageLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEnv(t, testConfig())
	e.createUser(t, "alice", "pw")
	c := e.login(t, "alice", "pw")
	first := *c.Get()

	resp, err := e.d.PageLoad(ctx, c, Hooks{})
	require.NoError(t, err)
	require.Equal(t, authsdk.UrpLoggedIn, resp.What)
	require.NotEqual(t, first, *c.Get())

	resp, err = e.d.PageLoad(ctx, NewMemoryCarrier(nil), Hooks{})
	require.NoError(t, err)
	require.Equal(t, authsdk.UrpNotLoggedIn, resp.What)

	stale := uuid.New()
	sc := NewMemoryCarrier(&stale)
	resp, err = e.d.PageLoad(ctx, sc, Hooks{})
	require.NoError(t, err)
	require.Equal(t, authsdk.UrpNotLoggedIn, resp.What)
	require.Nil(t, sc.Get())
}
