package domain

import (
	"context"
	"sync"
)

// ReadingSource is the exclusively locked, mutable collection of readings a
// transfer buffer consumes from. Implementations may be any synchronized
// container; the transfer buffer depends only on this capability set.
type ReadingSource interface {
	// Locker provides the scoped exclusive lock held for the duration of a
	// transfer pass.
	sync.Locker

	// Readings returns the contained readings in arrival order. The returned
	// slice is only valid while the lock is held.
	Readings() []*Reading

	// Undelete clears the consumed mark on every contained reading. Callers
	// must hold the lock.
	Undelete()
}

// ReadingSink writes batches of filtered readings to their final
// destination (e.g. PostgreSQL).
type ReadingSink interface {
	WriteReadingBatch(ctx context.Context, readings []Reading) error
}

// LiveFeed publishes accepted readings for live consumers. Publishing is
// best-effort; failures must not stall the transfer pipeline.
type LiveFeed interface {
	PublishReadings(ctx context.Context, channel string, readings []Reading) error
}

// WALRepository is the on-disk spill target used when the sink is
// unavailable and buffered readings would otherwise grow without bound.
type WALRepository interface {
	// Write appends a reading to the local WAL file.
	Write(ctx context.Context, reading Reading) error

	// Replay reads spilled readings and hands them to the handler function,
	// which is responsible for re-delivering them to the sink.
	Replay(ctx context.Context, handler func(reading Reading) error) error

	// Truncate removes WAL segments that have been successfully replayed.
	Truncate(ctx context.Context) error
}
