package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies the measurement channel a reading originates from.
// The buffering core treats it as opaque; only the pipeline and sinks
// interpret it.
type Channel struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Unit string    `json:"unit,omitempty"`
}

// NewChannel creates a channel with a fresh identity.
func NewChannel(name, unit string) *Channel {
	return &Channel{
		ID:   uuid.New(),
		Name: name,
		Unit: unit,
	}
}

// ReadingTime builds a reading timestamp from a seconds and microseconds
// pair, as delivered by most meter protocols. Millisecond resolution is all
// the pipeline relies on.
func ReadingTime(sec, usec int64) time.Time {
	return time.Unix(sec, usec*int64(time.Microsecond))
}

// Reading is a single timestamped measurement sample. The deleted flag marks
// a reading as already consumed by a transfer pass without removing it from
// its source collection.
type Reading struct {
	Value   float64   `json:"value"`
	Time    time.Time `json:"time"`
	Channel *Channel  `json:"channel,omitempty"`

	deleted bool
}

// NewReading creates a reading from a raw value and a seconds/microseconds
// timestamp pair.
func NewReading(value float64, sec, usec int64, ch *Channel) Reading {
	return Reading{
		Value:   value,
		Time:    ReadingTime(sec, usec),
		Channel: ch,
	}
}

// TimeMs returns the reading timestamp in Unix milliseconds.
func (r *Reading) TimeMs() int64 {
	return r.Time.UnixMilli()
}

// Deleted reports whether the reading has been consumed by a transfer pass.
func (r *Reading) Deleted() bool {
	return r.deleted
}

// MarkDeleted marks the reading as consumed.
func (r *Reading) MarkDeleted() {
	r.deleted = true
}

// ClearDeleted clears the consumed mark. Used by source collections between
// filter passes.
func (r *Reading) ClearDeleted() {
	r.deleted = false
}
