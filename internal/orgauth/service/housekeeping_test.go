package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := testConfig()
	cfg.InviteTokenExpiration = 0 // never swept
	cfg.ClassExpirations = map[string]time.Duration{"api": 48 * time.Hour, "device": 0}
	e := newTestEnv(t, cfg)
	alice := e.createUser(t, "alice", "pw")

	_, err := e.d.Ledger.Issue(ctx, alice.ID, nil)
	require.NoError(t, err)
	_, err = e.d.Ledger.IssueClass(ctx, alice.ID, "api")
	require.NoError(t, err)
	_, err = e.d.Ledger.IssueClass(ctx, alice.ID, "device")
	require.NoError(t, err)
	require.NoError(t, e.st.Tokens().CreateToken(ctx, domain.Token{
		UserID: alice.ID, Token: uuid.New(), IssuedAt: e.clock.Now(), Class: "legacy",
	}))
	_, _, err = e.d.Credentials.ChangeEmail(ctx, alice.ID, "pw", "new@example.com")
	require.NoError(t, err)
	_, err = e.d.Pending.CreatePasswordReset(ctx, alice.ID)
	require.NoError(t, err)
	_, err = e.d.Pending.CreateInvite(ctx, alice.ID, nil, nil)
	require.NoError(t, err)

	hk := NewHousekeepingService(e.d.Ledger, cfg, slogx.Discard(), 0)
	require.Equal(t, time.Hour, hk.Interval)

	// Nothing is old enough yet
	require.Zero(t, hk.Cleanup(ctx))

	e.clock.Advance(25 * time.Hour)

	// The login token, the unlisted "legacy" class, the email change and
	// the reset go. Tokens with their own window and the invite stay.
	require.EqualValues(t, 4, hk.Cleanup(ctx))
	require.Equal(t, 2, e.tokenCount(t, alice.ID))
	require.Equal(t, 1, e.countRows(t, `SELECT COUNT(*) FROM orgauth_user_invite`))

	e.clock.Advance(24 * time.Hour)

	// The api window has passed; device tokens never expire
	require.EqualValues(t, 1, hk.Cleanup(ctx))
	require.Equal(t, 1, e.countRows(t,
		`SELECT COUNT(*) FROM orgauth_token WHERE user_id = ? AND type = 'device'`, int64(alice.ID)))
}

func TestHousekeepingStartStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEnv(t, testConfig())
	alice := e.createUser(t, "alice", "pw")
	_, err := e.d.Ledger.Issue(ctx, alice.ID, nil)
	require.NoError(t, err)
	e.clock.Advance(25 * time.Hour)

	hk := NewHousekeepingService(e.d.Ledger, testConfig(), slogx.Discard(), time.Hour)
	hk.Start()

	// The first sweep runs on start
	require.Eventually(t, func() bool { return e.tokenCount(t, alice.ID) == 0 }, 5*time.Second, 10*time.Millisecond)
	hk.Stop()
}
