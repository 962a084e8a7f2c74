package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store/drivers/sqlite"
	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "orgauth.db"), 5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMailer struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *recordingMailer) last(t *testing.T) Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.msgs)
	return m.msgs[len(m.msgs)-1]
}

func testConfig() Config {
	return Config{
		MainSite:              "https://example.com/",
		AppName:               "orgauth",
		RegenLoginTokens:      true,
		LoginTokenExpiration:  24 * time.Hour,
		EmailTokenExpiration:  time.Hour,
		ResetTokenExpiration:  time.Hour,
		InviteTokenExpiration: 24 * time.Hour,
		RegenGrace:            10 * time.Second,
		OpenRegistration:      true,
	}
}

type testEnv struct {
	d      *Dispatcher
	st     *sqlite.Store
	clock  *fakeClock
	mailer *recordingMailer
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	st := newTestStore(t)
	mailer := &recordingMailer{}
	d := NewDispatcher(st, cfg, mailer, authsdk.RemotePeer{})
	clock := newFakeClock()
	d.SetClock(clock.Now)
	d.Ledger.RetryDelay = time.Millisecond

	return &testEnv{d: d, st: st, clock: clock, mailer: mailer}
}

// createUser inserts a registered user directly through the credential store.
func (e *testEnv) createUser(t *testing.T, name, pwd string, opts ...func(*domain.NewUser)) domain.User {
	t.Helper()
	ctx := context.Background()

	nu := domain.NewUser{Name: name, Password: pwd, Email: name + "@example.com"}
	for _, opt := range opts {
		opt(&nu)
	}

	var id domain.UserID
	err := e.st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		id, err = e.d.Credentials.CreateUser(ctx, tx, Hooks{}, nu)
		return err
	})
	require.NoError(t, err)

	u, err := e.st.Users().GetUserByID(ctx, id)
	require.NoError(t, err)
	return u
}

func asAdmin(nu *domain.NewUser) { nu.Admin = true }

func (e *testEnv) login(t *testing.T, name, pwd string) *MemoryCarrier {
	t.Helper()

	c := NewMemoryCarrier(nil)
	resp, err := e.d.HandleUser(context.Background(), c, Hooks{}, authsdk.UserRequest{
		What: authsdk.UrqLogin,
		Data: authsdk.Login{UID: name, Pwd: pwd},
	})
	require.NoError(t, err)
	require.Equal(t, authsdk.UrpLoggedIn, resp.What)
	require.NotNil(t, c.Get())
	return c
}

func (e *testEnv) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.st.Querier().QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func (e *testEnv) tokenCount(t *testing.T, id domain.UserID) int {
	return e.countRows(t, `SELECT COUNT(*) FROM orgauth_token WHERE user_id = ?`, int64(id))
}

func authed(what authsdk.AuthedRequestKind, data any) authsdk.UserRequest {
	return authsdk.UserRequest{What: authsdk.UrqAuthedRequest, Data: authsdk.AuthedRequest{What: what, Data: data}}
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
