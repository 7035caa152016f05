package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openexposure/gaen-server/internal/utc"
)

// memLockStore mimics the conditional-upsert semantics of the t_shedlock
// table.
type memLockStore struct {
	mu    sync.Mutex
	locks map[string]struct {
		until utc.UTCInstant
		owner string
	}
}

func newMemLockStore() *memLockStore {
	return &memLockStore{locks: make(map[string]struct {
		until utc.UTCInstant
		owner string
	})}
}

func (m *memLockStore) Acquire(_ context.Context, name, owner string, now, until utc.UTCInstant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.locks[name]; ok && now.Before(cur.until) {
		return false, nil
	}
	m.locks[name] = struct {
		until utc.UTCInstant
		owner string
	}{until: until, owner: owner}
	return true, nil
}

func (m *memLockStore) Release(_ context.Context, name, owner string, until utc.UTCInstant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.locks[name]; ok && cur.owner == owner {
		cur.until = until
		m.locks[name] = cur
	}
	return nil
}

func TestTwoReplicasOneExecution(t *testing.T) {
	locks := newMemLockStore()
	now := utc.OfTime(time.Date(2020, 6, 25, 2, 0, 0, 0, time.UTC))
	clock := &utc.FixedClock{Instant: now}

	a, err := New(locks, clock, zap.NewNop())
	require.NoError(t, err)
	b, err := New(locks, clock, zap.NewNop())
	require.NoError(t, err)

	runs := 0
	job := Job{
		Name:    "updateFakeKeys",
		MinHold: time.Minute,
		MaxHold: 30 * time.Minute,
		Run: func(context.Context) error {
			runs++
			return nil
		},
	}

	ranA := a.RunLeased(context.Background(), job)
	ranB := b.RunLeased(context.Background(), job)

	require.True(t, ranA)
	require.False(t, ranB)
	require.Equal(t, 1, runs)
}

func TestMinHoldBlocksImmediateRerun(t *testing.T) {
	locks := newMemLockStore()
	now := utc.OfTime(time.Date(2020, 6, 25, 2, 0, 0, 0, time.UTC))
	clock := &utc.FixedClock{Instant: now}

	s, err := New(locks, clock, zap.NewNop())
	require.NoError(t, err)

	job := Job{Name: "cleanData", MinHold: 15 * time.Second, MaxHold: 10 * time.Minute,
		Run: func(context.Context) error { return nil }}

	require.True(t, s.RunLeased(context.Background(), job))

	// instant job: lease still held for MinHold
	require.False(t, s.RunLeased(context.Background(), job))

	clock.Set(now.Plus(16 * time.Second))
	require.True(t, s.RunLeased(context.Background(), job))
}

func TestLeaseExpiresAfterMaxHold(t *testing.T) {
	locks := newMemLockStore()
	now := utc.OfTime(time.Date(2020, 6, 25, 2, 0, 0, 0, time.UTC))
	clock := &utc.FixedClock{Instant: now}

	s, err := New(locks, clock, zap.NewNop())
	require.NoError(t, err)

	// simulate a crashed holder: acquired but never released
	won, err := locks.Acquire(context.Background(), "cleanData", "dead-replica", now, now.Plus(10*time.Minute))
	require.NoError(t, err)
	require.True(t, won)

	job := Job{Name: "cleanData", MinHold: 15 * time.Second, MaxHold: 10 * time.Minute,
		Run: func(context.Context) error { return nil }}
	require.False(t, s.RunLeased(context.Background(), job))

	clock.Set(now.Plus(10 * time.Minute))
	require.True(t, s.RunLeased(context.Background(), job))
}
