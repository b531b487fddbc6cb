package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExpirer struct {
	calls int
	ttl   time.Duration
	err   error
}

func (s *stubExpirer) ExpirePending(_ context.Context, ttl time.Duration) (int64, error) {
	s.calls++
	s.ttl = ttl
	return 2, s.err
}

func TestExpirySweeperSweep(t *testing.T) {
	expirer := &stubExpirer{}
	s := NewExpirySweeper(expirer, "@every 15m", 2*time.Hour, nil)

	s.Sweep(context.Background())
	assert.Equal(t, 1, expirer.calls)
	assert.Equal(t, 2*time.Hour, expirer.ttl)

	expirer.err = errors.New("db down")
	s.Sweep(context.Background())
	assert.Equal(t, 2, expirer.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Sweep(ctx)
	assert.Equal(t, 2, expirer.calls)
}

func TestExpirySweeperStartValidates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, NewExpirySweeper(&stubExpirer{}, "not a spec", time.Hour, nil).Start(ctx))
	assert.Error(t, NewExpirySweeper(&stubExpirer{}, "@every 15m", 0, nil).Start(ctx))
	require.NoError(t, NewExpirySweeper(&stubExpirer{}, "@every 15m", time.Hour, nil).Start(ctx))
}

type stubPurger struct {
	cutoff time.Time
	calls  int
}

func (p *stubPurger) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls++
	p.cutoff = cutoff
	return 3, nil
}

func TestExpirySweeperPurgesProcessedEvents(t *testing.T) {
	purger := &stubPurger{}
	s := NewExpirySweeper(&stubExpirer{}, "@every 15m", time.Hour, nil).WithEventRetention(purger, 30*24*time.Hour)
	s.now = func() time.Time { return testNow }

	s.PurgeEvents(context.Background())
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, testNow.Add(-30*24*time.Hour), purger.cutoff)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.Len(t, s.cron.Entries(), 2)
}

func TestExpirySweeperWithoutRetentionSkipsPurge(t *testing.T) {
	purger := &stubPurger{}
	s := NewExpirySweeper(&stubExpirer{}, "@every 15m", time.Hour, nil).WithEventRetention(purger, 0)

	s.PurgeEvents(context.Background())
	assert.Zero(t, purger.calls)
}
