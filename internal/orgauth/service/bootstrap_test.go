package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/domain"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/stretchr/testify/require"
)

func TestBootstrap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newTestEnv(t, testConfig())
	bs := &BootstrapService{Store: e.st, Credentials: e.d.Credentials}

	done, err := bs.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.False(t, done)

	var hooked domain.UserID
	hooks := Hooks{UserCreated: UserCreatedFunc(func(_ context.Context, _ store.Querier, u CreatedUser) error {
		hooked = u.ID
		return nil
	})}

	id, pwd, err := bs.Bootstrap(ctx, hooks, "Admin", "admin@example.com", "")
	require.NoError(t, err)
	require.NotEmpty(t, pwd)
	require.Equal(t, id, hooked)

	u, err := e.st.Users().GetUserByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "admin", u.Name)
	require.True(t, u.Admin)
	require.True(t, u.Active)
	require.True(t, u.Registered())

	// The generated password logs in
	e.login(t, "admin", pwd)

	done, err = bs.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.True(t, done)

	_, _, err = bs.Bootstrap(ctx, Hooks{}, "other", "", "pw")
	require.ErrorIs(t, err, ErrBootstrapAlready)
}

func TestBootstrapKeepsConfiguredPassword(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, testConfig())
	bs := &BootstrapService{Store: e.st, Credentials: e.d.Credentials}

	_, pwd, err := bs.Bootstrap(context.Background(), Hooks{}, "root", "", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "s3cret", pwd)
	e.login(t, "root", "s3cret")
}
