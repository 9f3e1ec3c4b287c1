package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"accountd/internal/config"
	"accountd/internal/errs"
)

func newTestLimiter(t *testing.T, maxAttempts int) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, config.LimiterConfig{
		MaxAttempts: maxAttempts,
		Cooldown:    15 * time.Minute,
	}), mr
}

func TestLimiter_BlocksAfterMaxAttempts(t *testing.T) {
	l, _ := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(ctx, "a@b.c"))
		require.NoError(t, l.Failure(ctx, "a@b.c"))
	}
	require.ErrorIs(t, l.Check(ctx, "a@b.c"), errs.ErrLoginRateLimited)
}

func TestLimiter_IdentifierIsCaseInsensitive(t *testing.T) {
	l, _ := newTestLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, l.Failure(ctx, "User@Example.com"))
	require.ErrorIs(t, l.Check(ctx, "user@example.com"), errs.ErrLoginRateLimited)
}

func TestLimiter_ResetClearsCounter(t *testing.T) {
	l, _ := newTestLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, l.Failure(ctx, "a@b.c"))
	require.ErrorIs(t, l.Check(ctx, "a@b.c"), errs.ErrLoginRateLimited)

	require.NoError(t, l.Reset(ctx, "a@b.c"))
	require.NoError(t, l.Check(ctx, "a@b.c"))
}

func TestLimiter_WindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, l.Failure(ctx, "a@b.c"))
	require.ErrorIs(t, l.Check(ctx, "a@b.c"), errs.ErrLoginRateLimited)

	mr.FastForward(16 * time.Minute)
	require.NoError(t, l.Check(ctx, "a@b.c"))
}
