package core

import (
	"context"
	"time"
)

// QueueEntry is one appended record with its per-session sequence ID.
type QueueEntry struct {
	ID     uint64
	Record map[string]string
}

// ChunkQueue is a durable, append-only, per-session log. Delivery is
// at-least-once: there are no acks, no retries and no dead-lettering, and a
// restarted consumer may re-read entries it already processed. Consumers
// must therefore write idempotently. A session expires after its TTL, after
// which reads return nothing regardless of consumption progress.
type ChunkQueue interface {
	// Append adds a record to the session's log and returns its sequence ID.
	// IDs are monotonically increasing within a session.
	Append(ctx context.Context, sessionKey string, record map[string]string) (uint64, error)

	// Read returns up to count entries with IDs greater than afterID, in
	// order. When no new data arrives within block, it returns an empty
	// slice and no error.
	Read(ctx context.Context, sessionKey string, afterID uint64, count int, block time.Duration) ([]QueueEntry, error)

	// Expire resets the session's TTL.
	Expire(ctx context.Context, sessionKey string, ttl time.Duration) error

	// Len reports the total number of entries appended to the session.
	Len(ctx context.Context, sessionKey string) (int, error)
}
