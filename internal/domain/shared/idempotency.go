package shared

import (
	"context"
	"time"
)

// IdempotencyStore is the fast-path dedup check for inbound webhook
// deliveries. It sits in front of the write-once WebhookEvent table: a hit
// here short-circuits a redelivered event without touching the database.
// The table remains the durable source of truth; losing the store only
// costs the fast path.
type IdempotencyStore interface {
	// MarkProcessed records an external event ID with a TTL. Returns true
	// when the ID was newly recorded, false when it was already present.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether an external event ID has been seen
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for webhook dedup
type IdempotencyConfig struct {
	// TTL is how long a processed event ID is remembered. It must outlive
	// the sender's redelivery window; Stripe retries failed deliveries for
	// up to three days.
	TTL time.Duration

	// Enabled turns the fast-path check off entirely; the write-once event
	// table still deduplicates when disabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default webhook dedup configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     72 * time.Hour,
		Enabled: true,
	}
}
