package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginByEmailAndPhone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAndVerify(t, env, "alice@x.com", "+15550100")

	user, tokens, err := env.svc.Login(ctx, "alice@x.com", "Sup3r!secret")
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", user.Email)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	user, _, err = env.svc.Login(ctx, "+15550100", "Sup3r!secret")
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", user.Email)
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAndVerify(t, env, "alice@x.com", "+15550100")

	_, _, err := env.svc.Login(ctx, "alice@x.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, _, err = env.svc.Login(ctx, "nobody@x.com", "Sup3r!secret")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLoginsAreAdditive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, first := registerAndVerify(t, env, "alice@x.com", "+15550100")

	_, second, err := env.svc.Login(ctx, "alice@x.com", "Sup3r!secret")
	require.NoError(t, err)

	// Both refresh tokens stay valid side by side.
	assert.Equal(t, 2, env.tokens.count())

	_, err = env.svc.Refresh(ctx, first.RefreshToken)
	assert.NoError(t, err)
	_, err = env.svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshIssuesAccessOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, pair := registerAndVerify(t, env, "alice@x.com", "+15550100")

	accessToken, err := env.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)

	claims, err := env.jwt.ValidateAccessToken(accessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	// The refresh token is not rotated: same ledger row, still valid.
	assert.Equal(t, 1, env.tokens.count())
	ok, err := env.tokens.Exists(ctx, pair.RefreshToken, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefreshRejectsUnanchored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, pair := registerAndVerify(t, env, "alice@x.com", "+15550100")

	// A well-signed token whose ledger row is gone is dead.
	require.NoError(t, env.tokens.DeleteAllForUser(ctx, user.ID))

	_, err := env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.svc.Refresh(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, pair := registerAndVerify(t, env, "alice@x.com", "+15550100")

	// The access token is signed with the other secret and must not pass
	// as a refresh token.
	_, err := env.svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutRevokesAllSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, first := registerAndVerify(t, env, "alice@x.com", "+15550100")

	_, second, err := env.svc.Login(ctx, "alice@x.com", "Sup3r!secret")
	require.NoError(t, err)
	require.Equal(t, 2, env.tokens.count())

	// Logging out one device kills every session of the user.
	require.NoError(t, env.svc.Logout(ctx, first.RefreshToken, first.AccessToken))
	assert.Equal(t, 0, env.tokens.count())

	_, err = env.svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutResolvesCallerFromAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, pair := registerAndVerify(t, env, "alice@x.com", "+15550100")

	require.NoError(t, env.svc.Logout(ctx, "", pair.AccessToken))
	assert.Equal(t, 0, env.tokens.count())
}

func TestLogoutWithoutTokensSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registerAndVerify(t, env, "alice@x.com", "+15550100")

	assert.NoError(t, env.svc.Logout(ctx, "", ""))
	assert.NoError(t, env.svc.Logout(ctx, "garbage", "garbage"))

	// Nothing was revoked without a usable identity.
	assert.Equal(t, 1, env.tokens.count())
}
