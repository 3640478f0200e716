package service

import (
	"context"
	"testing"

	"healthhub/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStateStore(t *testing.T) (*OAuthStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewOAuthStateStore(client), mr
}

func TestOAuthState_IssueAndConsume(t *testing.T) {
	store, _ := setupStateStore(t)
	ctx := context.Background()

	state, err := store.Issue(ctx, "user-1", domain.DeviceHuawei)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	userID, deviceType, err := store.Consume(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, domain.DeviceHuawei, deviceType)
}

func TestOAuthState_SingleUse(t *testing.T) {
	store, _ := setupStateStore(t)
	ctx := context.Background()

	state, err := store.Issue(ctx, "user-1", domain.DeviceHuawei)
	require.NoError(t, err)

	_, _, err = store.Consume(ctx, state)
	require.NoError(t, err)

	// 重放同一个 state 必须被拒绝
	_, _, err = store.Consume(ctx, state)
	assert.ErrorIs(t, err, domain.ErrStateMismatch)
}

func TestOAuthState_ForgedRejected(t *testing.T) {
	store, _ := setupStateStore(t)

	_, _, err := store.Consume(context.Background(), "forged-state")
	assert.ErrorIs(t, err, domain.ErrStateMismatch)

	_, _, err = store.Consume(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrStateMismatch)
}

func TestOAuthState_ExpiredRejected(t *testing.T) {
	store, mr := setupStateStore(t)
	ctx := context.Background()

	state, err := store.Issue(ctx, "user-1", domain.DeviceHuawei)
	require.NoError(t, err)

	mr.FastForward(oauthStateTTL + 1)

	_, _, err = store.Consume(ctx, state)
	assert.ErrorIs(t, err, domain.ErrStateMismatch)
}
