// Package buffer implements the transfer buffer that stages filtered
// readings between a source collection and a transmission sink.
package buffer

import (
	"log/slog"
	"time"

	"github.com/user/meter-logger/internal/domain"
)

// DefaultTargetCapacity is the steady-state reserved size used when no
// explicit target capacity is given.
const DefaultTargetCapacity = 4096

// All can be passed as the n argument of Discard to drop every live element.
const All = int(^uint(0) >> 1)

// TransferBuffer is an ordered sequence of readings with a leading history
// region. A single contiguous slice backs both regions; historySize marks
// the boundary between retained history and the live range visible to
// consumers. Keeping history in the same store makes the "last retained
// reading" lookup during filtering O(1) across discard/append cycles.
//
// A TransferBuffer is not safe for concurrent use; callers must serialize
// access to an instance. Only its interaction with the externally locked
// ReadingSource is synchronized.
type TransferBuffer struct {
	readings       []domain.Reading
	historySize    int
	targetCapacity int
	logger         *slog.Logger
}

// Option configures a TransferBuffer.
type Option func(*TransferBuffer)

// WithLogger sets the logger used for per-reading filter tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(b *TransferBuffer) { b.logger = logger }
}

// New creates a transfer buffer with the given steady-state target capacity.
// Values <= 0 fall back to DefaultTargetCapacity.
func New(targetCapacity int, opts ...Option) *TransferBuffer {
	if targetCapacity <= 0 {
		targetCapacity = DefaultTargetCapacity
	}
	b := &TransferBuffer{
		readings:       make([]domain.Reading, 0, targetCapacity),
		targetCapacity: targetCapacity,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Size returns the number of live readings, history excluded.
func (b *TransferBuffer) Size() int {
	return len(b.readings) - b.historySize
}

// Empty reports whether the live range is empty.
func (b *TransferBuffer) Empty() bool {
	return b.Size() == 0
}

// Readings returns the live range. The returned slice aliases the backing
// store and is only valid until the next mutating call.
func (b *TransferBuffer) Readings() []domain.Reading {
	return b.readings[b.historySize:]
}

// Front returns the oldest live reading. It panics if the buffer is empty.
func (b *TransferBuffer) Front() domain.Reading {
	return b.readings[b.historySize]
}

// Back returns the newest reading in storage. It panics if the buffer is
// empty.
func (b *TransferBuffer) Back() domain.Reading {
	return b.readings[len(b.readings)-1]
}

// Reserve grows the backing store so that at least n live readings fit
// without reallocation, in addition to current history.
func (b *TransferBuffer) Reserve(n int) {
	want := n + b.historySize
	if cap(b.readings) >= want {
		return
	}
	grown := make([]domain.Reading, len(b.readings), want)
	copy(grown, b.readings)
	b.readings = grown
}

// Capacity returns the live capacity of the backing store, i.e. total
// capacity minus history.
func (b *TransferBuffer) Capacity() int {
	return cap(b.readings) - b.historySize
}

// TargetCapacity returns the steady-state capacity the buffer settles to.
func (b *TransferBuffer) TargetCapacity() int {
	return b.targetCapacity
}

// Clear drops all readings, history included. The next Append seeds history
// from scratch.
func (b *TransferBuffer) Clear() {
	b.readings = b.readings[:0]
	b.historySize = 0
}

// ShrinkToTargetCapacity reallocates the backing store down to the target
// capacity if live capacity has grown past it. All retained readings,
// history included, are preserved in order. Calling it again without
// intervening growth has no observable effect.
func (b *TransferBuffer) ShrinkToTargetCapacity() {
	if b.Capacity() <= b.targetCapacity {
		return
	}
	newCap := b.targetCapacity
	if n := len(b.readings); n > newCap {
		newCap = n
	}
	shrunk := make([]domain.Reading, len(b.readings), newCap)
	copy(shrunk, b.readings)
	b.readings = shrunk
}

// Discard acknowledges consumption of up to n readings from the front of
// the live range. Up to keep trailing readings, counted from the current
// end of storage and bounded by total storage size, are retained as the new
// history so the next Append can compute time deltas against the true last
// retained reading. Out-of-range counts are clamped, not errors. Returns
// the number of readings discarded.
func (b *TransferBuffer) Discard(n, keep int) int {
	if n < 0 {
		n = 0
	}
	if keep < 0 {
		keep = 0
	}
	ndel := min(n, b.Size())
	last := b.historySize + ndel
	b.historySize = min(keep, len(b.readings))

	if cut := last - b.historySize; cut > 0 {
		b.readings = b.readings[:copy(b.readings, b.readings[cut:])]
	}

	// avoid a permanent large memory footprint; the 4x slack keeps a single
	// burst from forcing an immediate reallocate-and-regrow cycle
	if b.Capacity() > 4*b.targetCapacity {
		b.ShrinkToTargetCapacity()
	}
	return ndel
}

// Append copies not-yet-consumed readings from src into the live range and
// marks them deleted in src, whether or not they were retained.
//
// Timestamps must be strictly monotonically increasing; readings with a
// non-positive delta against the last retained reading are dropped. Among
// strictly increasing candidates, a reading closer than minInterval to its
// predecessor is dropped only if its value matches the predecessor's, so
// near-duplicates in time are coalesced but a value change always goes
// through. The channel name is used for trace logging only.
//
// Returns the number of readings appended to the live range.
func (b *TransferBuffer) Append(src domain.ReadingSource, channel string, minInterval time.Duration) int {
	src.Lock()
	defer src.Unlock()

	pending := src.Readings()

	// advance past readings consumed by an earlier pass
	i := 0
	for i < len(pending) && pending[i].Deleted() {
		i++
	}
	if i == len(pending) {
		return 0
	}

	oldEnd := len(b.readings)

	if len(b.readings) == 0 {
		// no previous reading to diff against: accept unconditionally to
		// seed the delta computation
		b.readings = append(b.readings, *pending[i])
		pending[i].MarkDeleted()
		i++
	}

	minMs := minInterval.Milliseconds()
	for ; i < len(pending); i++ {
		candidate := pending[i]
		if candidate.Deleted() {
			continue
		}
		prev := &b.readings[len(b.readings)-1]
		t := candidate.TimeMs()
		dt := t - prev.TimeMs()
		b.logger.Debug("compare", "channel", channel, "prev_ms", t-dt, "t_ms", t)

		// force time to be strictly monotonically increasing; dt == 0 is
		// possible below millisecond resolution and is treated as a
		// duplicate. Note: only holds as long as history survives restarts.
		if dt > 0 && (dt >= minMs || candidate.Value != prev.Value) {
			b.readings = append(b.readings, *candidate)
		}
		candidate.MarkDeleted()
	}
	return len(b.readings) - oldEnd
}
