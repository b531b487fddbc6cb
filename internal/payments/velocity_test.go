package payments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestVelocityChecker_CheckOrderVelocity(t *testing.T) {
	client, _ := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{MaxOrdersPerEmail: 2, OrderWindow: time.Hour}, nil)
	ctx := context.Background()

	first, err := checker.CheckOrderVelocity(ctx, "Asha@Example.com")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.CurrentCount)

	second, err := checker.CheckOrderVelocity(ctx, "asha@example.com ")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 2, second.CurrentCount)

	third, err := checker.CheckOrderVelocity(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.NotEmpty(t, third.Message)

	other, err := checker.CheckOrderVelocity(ctx, "ravi@example.com")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestVelocityChecker_WindowExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{MaxOrdersPerEmail: 1, OrderWindow: time.Hour}, nil)
	ctx := context.Background()

	_, err := checker.CheckOrderVelocity(ctx, "asha@example.com")
	require.NoError(t, err)
	blocked, err := checker.CheckOrderVelocity(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	mr.FastForward(61 * time.Minute)

	again, err := checker.CheckOrderVelocity(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.True(t, again.Allowed)
}

func TestVelocityChecker_Reset(t *testing.T) {
	client, _ := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{MaxOrdersPerEmail: 1, OrderWindow: time.Hour}, nil)
	ctx := context.Background()

	_, _ = checker.CheckOrderVelocity(ctx, "asha@example.com")
	require.NoError(t, checker.ResetOrderVelocity(ctx, "asha@example.com"))

	result, err := checker.CheckOrderVelocity(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.CurrentCount)
}

func TestVelocityChecker_FailsOpen(t *testing.T) {
	client, mr := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{MaxOrdersPerEmail: 1, OrderWindow: time.Hour}, nil)
	mr.Close()

	result, err := checker.CheckOrderVelocity(context.Background(), "asha@example.com")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "velocity check unavailable", result.Message)
}

func TestVelocityChecker_NilDisabled(t *testing.T) {
	var checker *VelocityChecker
	result, err := checker.CheckOrderVelocity(context.Background(), "asha@example.com")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
