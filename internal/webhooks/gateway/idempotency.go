package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"github.com/studentnest/nest-backend/pkg/redis"
)

var errEmptyEventID = errors.New("event id is required")

// IdempotencyGuard drops exact duplicate deliveries in redis before they
// reach the database. The webhook_events table stays the durable record;
// the guard only saves a transaction per retry storm.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	var err error
	if store == nil {
		err = multierr.Append(err, errors.New("idempotency store is required"))
	}
	if ttl < 0 {
		err = multierr.Append(err, fmt.Errorf("ttl %s is negative", ttl))
	}
	if scope == "" {
		err = multierr.Append(err, errors.New("scope is required"))
	}
	if err != nil {
		return nil, err
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope, now: time.Now}, nil
}

// CheckAndMark reports whether eventID was already seen. The first caller
// marks it with the delivery time and gets false.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errEmptyEventID
	}
	stamp := strconv.FormatInt(g.now().Unix(), 10)
	marked, err := g.store.SetNX(ctx, g.key(eventID), stamp, g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return !marked, nil
}

// FirstSeen returns when eventID was marked, or the zero time if it is not.
func (g *IdempotencyGuard) FirstSeen(ctx context.Context, eventID string) (time.Time, error) {
	if eventID == "" {
		return time.Time{}, errEmptyEventID
	}
	raw, err := g.store.Get(ctx, g.key(eventID))
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse mark for %s: %w", eventID, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// Release forgets eventID so a gateway retry is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errEmptyEventID
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
