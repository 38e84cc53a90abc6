// Package webhooks dedupes inbound gateway and carrier deliveries before
// they reach the settlement services.
package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var errNoEventID = errors.New("webhook event id is required")

// Store is the slice of the redis client the guard writes to.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookKey(source, eventID string) string
}

// IdempotencyGuard drops exact redeliveries early. Handlers stay idempotent
// without it; a guard outage only costs a redundant no-op write.
type IdempotencyGuard struct {
	store  Store
	ttl    time.Duration
	source string
}

func NewIdempotencyGuard(store Store, ttl time.Duration, source string) (*IdempotencyGuard, error) {
	var errs []error
	if store == nil {
		errs = append(errs, errors.New("webhook guard store is required"))
	}
	if ttl < 0 {
		errs = append(errs, fmt.Errorf("webhook guard ttl %s is negative", ttl))
	}
	source = strings.TrimSpace(source)
	if source == "" {
		errs = append(errs, errors.New("webhook guard source is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &IdempotencyGuard{store: store, ttl: ttl, source: source}, nil
}

// CheckAndMark claims eventID and reports true when an earlier delivery
// already holds the claim.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	claimed, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s delivery %s: %w", g.source, eventID, err)
	}
	return !claimed, nil
}

// Delete releases the claim after a failed delivery so the sender's retry
// is processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	if strings.TrimSpace(eventID) == "" {
		return "", errNoEventID
	}
	return g.store.WebhookKey(g.source, eventID), nil
}

// BodyDigest stands in for a delivery id when the sender omits one.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
