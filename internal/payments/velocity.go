package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

// VelocityChecker limits how many orders one customer may open in a window.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity limits.
type VelocityConfig struct {
	MaxOrdersPerEmail int
	OrderWindow       time.Duration
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxOrdersPerEmail: 5,
		OrderWindow:       time.Hour,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a velocity checker. A nil client disables checks.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	if config.MaxOrdersPerEmail <= 0 {
		config.MaxOrdersPerEmail = DefaultVelocityConfig().MaxOrdersPerEmail
	}
	if config.OrderWindow <= 0 {
		config.OrderWindow = DefaultVelocityConfig().OrderWindow
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// CheckOrderVelocity counts an order attempt for email. Redis failures fail
// open.
func (v *VelocityChecker) CheckOrderVelocity(ctx context.Context, email string) (*VelocityResult, error) {
	ctx, span := paymentsTracer.Start(ctx, "velocity.check_order")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if v == nil || v.redis == nil || email == "" {
		return &VelocityResult{Allowed: true}, nil
	}

	key := orderVelocityKey(email)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.OrderWindow)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxOrdersPerEmail,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxOrdersPerEmail,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d orders in %s", v.config.MaxOrdersPerEmail, v.config.OrderWindow)
		v.logger.Warn("order velocity exceeded",
			"email", email,
			"count", count,
			"max", v.config.MaxOrdersPerEmail,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// ResetOrderVelocity clears the counter for email (admin use).
func (v *VelocityChecker) ResetOrderVelocity(ctx context.Context, email string) error {
	if v == nil || v.redis == nil {
		return nil
	}
	return v.redis.Del(ctx, orderVelocityKey(strings.ToLower(strings.TrimSpace(email)))).Err()
}

func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	// Expiry only on the first increment so the window is fixed.
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}
	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}

func orderVelocityKey(email string) string {
	return "velocity:order:" + email
}
