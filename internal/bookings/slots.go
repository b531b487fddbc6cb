package bookings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

// Slot is one offerable time on a day.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// occupancySource reports which times on a date are held.
type occupancySource interface {
	OccupiedTimes(ctx context.Context, date string) ([]string, error)
}

// Resolver computes bookable slots from a fixed catalog. Slots are fixed
// points: a 60 minute video session at 09:00 does not block 10:00.
type Resolver struct {
	store    occupancySource
	cache    *redis.Client
	cacheTTL time.Duration
	catalog  []string
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger
}

// ResolverConfig configures the slot catalog and cache.
type ResolverConfig struct {
	Times    []string
	Location *time.Location
	Cache    *redis.Client
	CacheTTL time.Duration
}

// NewResolver builds a Resolver. A nil cache disables caching.
func NewResolver(store occupancySource, cfg ResolverConfig, logger *logging.Logger) (*Resolver, error) {
	if store == nil {
		panic("bookings: occupancy store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	catalog := make([]string, 0, len(cfg.Times))
	for _, raw := range cfg.Times {
		t, err := time.Parse(timeLayout, strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("bookings: invalid catalog time %q: %w", raw, err)
		}
		catalog = append(catalog, t.Format(timeLayout))
	}
	if len(catalog) == 0 {
		return nil, errors.New("bookings: empty slot catalog")
	}
	sort.Strings(catalog)
	return &Resolver{
		store:    store,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		catalog:  catalog,
		loc:      cfg.Location,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Offers reports whether clock is part of the catalog.
func (r *Resolver) Offers(clock string) bool {
	for _, t := range r.catalog {
		if t == clock {
			return true
		}
	}
	return false
}

// AvailableSlots lists the catalog for date with occupied and elapsed times
// marked unavailable. When the store cannot be read every slot is returned as
// available; the ledger's unique index still rejects a taken slot on create.
func (r *Resolver) AvailableSlots(ctx context.Context, date string, sessionType SessionType, format SessionFormat) ([]Slot, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.available_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("practice.date", date),
		attribute.String("practice.session_type", string(sessionType)),
		attribute.String("practice.session_format", string(format)),
	)

	day, err := time.ParseInLocation(dateLayout, date, r.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", ErrInvalidInput, date)
	}

	occupied, err := r.occupied(ctx, date)
	if err != nil {
		r.logger.Warn("slot lookup failed, serving fallback catalog", "date", date, "error", err)
		span.RecordError(err)
		return r.fallback(), nil
	}

	now := r.now().In(r.loc)
	slots := make([]Slot, 0, len(r.catalog))
	for _, clock := range r.catalog {
		start, _ := SlotStart(day.Format(dateLayout), clock, r.loc)
		_, taken := occupied[clock]
		slots = append(slots, Slot{
			Time:      clock,
			Available: !taken && start.After(now),
		})
	}
	return slots, nil
}

// Invalidate drops the cached occupancy for date.
func (r *Resolver) Invalidate(ctx context.Context, date string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, slotCacheKey(date)).Err(); err != nil {
		r.logger.Warn("slot cache invalidate failed", "date", date, "error", err)
	}
}

func (r *Resolver) occupied(ctx context.Context, date string) (map[string]struct{}, error) {
	key := slotCacheKey(date)
	if r.cache != nil {
		members, err := r.cache.SMembers(ctx, key).Result()
		if err == nil && len(members) > 0 {
			return toSet(members), nil
		}
	}

	times, err := r.store.OccupiedTimes(ctx, date)
	if err != nil {
		return nil, err
	}

	if r.cache != nil && r.cacheTTL > 0 {
		// A sentinel member keeps empty days cacheable.
		members := append([]any{"-"}, toAny(times)...)
		pipe := r.cache.TxPipeline()
		pipe.Del(ctx, key)
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, r.cacheTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			r.logger.Warn("slot cache write failed", "date", date, "error", err)
		}
	}
	return toSet(times), nil
}

func (r *Resolver) fallback() []Slot {
	slots := make([]Slot, 0, len(r.catalog))
	for _, clock := range r.catalog {
		slots = append(slots, Slot{Time: clock, Available: true})
	}
	return slots
}

func slotCacheKey(date string) string {
	return "slots:occupied:" + date
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[strings.TrimSpace(v)] = struct{}{}
	}
	return out
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
