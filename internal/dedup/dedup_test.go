package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestMemoryCache_SameHourIsDuplicate(t *testing.T) {
	c := NewMemoryCache(0)
	c.Now = fixedClock(time.Unix(7200, 0))
	ctx := context.Background()

	first, err := c.FirstSeen(ctx, "hs:evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.FirstSeen(ctx, "hs:evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := c.FirstSeen(ctx, "hs:evt-2")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestMemoryCache_NextHourIsAdmitted(t *testing.T) {
	now := time.Unix(7200, 0)
	c := NewMemoryCache(0)
	c.Now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := c.FirstSeen(ctx, "vapi:end-of-call-report:c1:")
	require.True(t, ok)

	now = now.Add(59 * time.Minute)
	ok, _ = c.FirstSeen(ctx, "vapi:end-of-call-report:c1:")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = c.FirstSeen(ctx, "vapi:end-of-call-report:c1:")
	assert.True(t, ok)
}

func TestMemoryCache_ClearsPastCap(t *testing.T) {
	c := NewMemoryCache(3)
	c.Now = fixedClock(time.Unix(0, 0))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ok, _ := c.FirstSeen(ctx, fmt.Sprintf("k%d", i))
		require.True(t, ok)
	}
	assert.Equal(t, 4, c.Len())

	// size exceeds the cap: the set is cleared before this insert
	ok, _ := c.FirstSeen(ctx, "k4")
	require.True(t, ok)
	assert.Equal(t, 1, c.Len())

	ok, _ = c.FirstSeen(ctx, "k0")
	assert.True(t, ok, "keys lost on clear are admitted again")
}

func TestRedisStore_SetNXWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisStore(rdb, "", 0)
	s.Now = fixedClock(time.Unix(3600*5, 0))
	ctx := context.Background()

	ok, err := s.FirstSeen(ctx, "hs:1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.FirstSeen(ctx, "hs:1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 2*time.Hour, mr.TTL("dedup:hs:1:5"))

	mr.FastForward(3 * time.Hour)
	ok, err = s.FirstSeen(ctx, "hs:1")
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingStore struct{}

func (failingStore) FirstSeen(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestGuard_AdmitsOnStoreFailure(t *testing.T) {
	g := NewGuard(failingStore{}, nil)
	assert.True(t, g.Admit(context.Background(), "hs:1"))
}

func TestGuard_RejectsDuplicates(t *testing.T) {
	g := NewGuard(NewMemoryCache(0), nil)
	ctx := context.Background()
	assert.True(t, g.Admit(ctx, "hs:1"))
	assert.False(t, g.Admit(ctx, "hs:1"))
}
