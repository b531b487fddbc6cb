package refunds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/therapy-practice-api/internal/bookings"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func bookingAt(date, clock string) *bookings.Booking {
	return &bookings.Booking{ID: "b-1", ScheduledDate: date, ScheduledTime: clock, Status: bookings.StatusConfirmed}
}

func TestComputeRefundWindows(t *testing.T) {
	loc := mustLoad(t, "Asia/Kolkata")
	policy := DefaultPolicy(loc)
	start := time.Date(2026, 3, 20, 18, 0, 0, 0, loc)
	b := bookingAt("2026-03-20", "18:00")

	cases := []struct {
		name   string
		notice time.Duration
		paid   int64
		want   int64
		full   bool
	}{
		{"thirty hours out", 30 * time.Hour, 150000, 150000, true},
		{"exactly twenty four hours", 24 * time.Hour, 150000, 150000, true},
		{"ten hours out", 10 * time.Hour, 150000, 75000, false},
		{"just under a day", 24*time.Hour - time.Second, 150000, 75000, false},
		{"at session start", 0, 150000, 75000, false},
		{"odd amount rounds down", 2 * time.Hour, 99999, 49999, false},
		{"zero paid", 48 * time.Hour, 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := policy.Compute(b, tc.paid, start.Add(-tc.notice))
			require.NoError(t, err)
			assert.Equal(t, tc.want, q.AmountMinor)
			assert.Equal(t, tc.full, q.FullRefund)
			assert.LessOrEqual(t, q.AmountMinor, tc.paid)
		})
	}
}

func TestComputeUsesPracticeTimezone(t *testing.T) {
	loc := mustLoad(t, "Asia/Kolkata")
	b := bookingAt("2026-03-20", "18:00")

	// 18:00 IST is 12:30 UTC; 30h before is 2026-03-19 06:30 UTC.
	requested := time.Date(2026, 3, 19, 6, 30, 0, 0, time.UTC)
	q, err := DefaultPolicy(loc).Compute(b, 150000, requested)
	require.NoError(t, err)
	assert.True(t, q.FullRefund)
	assert.Equal(t, 30*time.Hour, q.Notice)

	// For a practice in Auckland the same instant is 22.5h before 18:00.
	q, err = DefaultPolicy(mustLoad(t, "Pacific/Auckland")).Compute(b, 150000, requested)
	require.NoError(t, err)
	assert.False(t, q.FullRefund)
}

func TestComputePastSessionIsUndefined(t *testing.T) {
	loc := mustLoad(t, "Asia/Kolkata")
	b := bookingAt("2026-03-20", "18:00")
	after := time.Date(2026, 3, 20, 18, 0, 1, 0, loc)

	_, err := DefaultPolicy(loc).Compute(b, 150000, after)
	assert.ErrorIs(t, err, ErrPolicyUndefined)
}

func TestComputeRejectsBadInput(t *testing.T) {
	policy := DefaultPolicy(time.UTC)
	_, err := policy.Compute(bookingAt("2026-03-20", "18:00"), -1, time.Now())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = policy.Compute(bookingAt("20/03/2026", "6pm"), 100, time.Now())
	assert.ErrorIs(t, err, bookings.ErrInvalidInput)
}
