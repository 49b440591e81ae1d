package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/user/meter-logger/internal/adapter/metrics"
	"github.com/user/meter-logger/internal/buffer"
	"github.com/user/meter-logger/internal/domain"
)

const (
	defaultRetryCount   = 3
	defaultRetryBackoff = 1 * time.Second
	replayBatchSize     = 500
)

// TransferOption configures a TransferReadingsUseCase.
type TransferOption func(*TransferReadingsUseCase)

// WithMinInterval sets the duplicate-coalescing window applied during the
// append pass. Zero disables coalescing.
func WithMinInterval(d time.Duration) TransferOption {
	return func(uc *TransferReadingsUseCase) { uc.minInterval = d }
}

// WithWAL sets the WAL used to spill buffered readings once the buffer
// grows past spillThreshold while the sink is unavailable.
func WithWAL(wal domain.WALRepository, spillThreshold int) TransferOption {
	return func(uc *TransferReadingsUseCase) {
		uc.wal = wal
		uc.spillThreshold = spillThreshold
	}
}

// WithLiveFeed sets a best-effort live feed notified after each successful
// sink write.
func WithLiveFeed(live domain.LiveFeed) TransferOption {
	return func(uc *TransferReadingsUseCase) { uc.live = live }
}

// WithMetrics sets the pipeline metrics.
func WithMetrics(m *metrics.LoggerMetrics) TransferOption {
	return func(uc *TransferReadingsUseCase) { uc.metrics = m }
}

// WithRetry sets the sink write retry policy.
func WithRetry(count int, backoff time.Duration) TransferOption {
	return func(uc *TransferReadingsUseCase) {
		uc.retryCount = count
		uc.retryBackoff = backoff
	}
}

// TransferReadingsUseCase orchestrates one transfer cycle per channel:
// filtered append from the source buffer, batch write to the sink with
// retries, and discard-with-history on success. When the sink stays down
// and a buffer outgrows the spill threshold, its live range is spilled to
// the WAL and replayed once the sink recovers.
type TransferReadingsUseCase struct {
	channels *ChannelSet
	sink     domain.ReadingSink
	logger   *slog.Logger

	wal            domain.WALRepository
	live           domain.LiveFeed
	metrics        *metrics.LoggerMetrics
	minInterval    time.Duration
	spillThreshold int
	retryCount     int
	retryBackoff   time.Duration

	sinkAvailable atomic.Bool
}

// NewTransferReadingsUseCase creates a new use case for transferring
// readings from source buffers to the sink.
func NewTransferReadingsUseCase(channels *ChannelSet, sink domain.ReadingSink, logger *slog.Logger, opts ...TransferOption) *TransferReadingsUseCase {
	uc := &TransferReadingsUseCase{
		channels:     channels,
		sink:         sink,
		logger:       logger,
		retryCount:   defaultRetryCount,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(uc)
	}
	uc.sinkAvailable.Store(true)
	return uc
}

// TransferAll runs one transfer cycle over every channel pipeline. It
// returns the total number of readings acknowledged at the sink; channels
// failing to transfer are reported joined but do not stop the cycle for the
// remaining channels.
func (uc *TransferReadingsUseCase) TransferAll(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for _, p := range uc.channels.All() {
		n, err := uc.transferChannel(ctx, p)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", p.Channel.Name, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return total, errors.Join(errs...)
}

func (uc *TransferReadingsUseCase) transferChannel(ctx context.Context, p *ChannelPipeline) (int, error) {
	name := p.Channel.Name

	appended := p.Buffer.Append(p.Source, name, uc.minInterval)
	p.Source.Compact()

	if uc.metrics != nil {
		uc.metrics.ReadingsAppended.WithLabelValues(name).Add(float64(appended))
		uc.metrics.BufferLiveSize.WithLabelValues(name).Set(float64(p.Buffer.Size()))
		uc.metrics.BufferCapacity.WithLabelValues(name).Set(float64(p.Buffer.Capacity()))
	}

	if p.Buffer.Empty() {
		return 0, nil
	}

	batch := p.Buffer.Readings()
	if err := uc.writeWithRetry(ctx, batch); err != nil {
		if uc.sinkAvailable.CompareAndSwap(true, false) {
			uc.logger.Error("sink unavailable, readings stay buffered", "error", err, "channel", name)
		}
		if uc.metrics != nil {
			uc.metrics.SinkWriteErrors.Inc()
		}
		uc.spillIfOverflowing(ctx, p)
		return 0, err
	}
	recovered := uc.sinkAvailable.CompareAndSwap(false, true)

	if uc.live != nil {
		// best effort; the batch slice is only valid until the discard below
		if err := uc.live.PublishReadings(ctx, name, batch); err != nil {
			uc.logger.Warn("live feed publish failed", "error", err, "channel", name)
		}
	}

	n := p.Buffer.Discard(len(batch), 1)
	if uc.metrics != nil {
		uc.metrics.ReadingsDiscarded.WithLabelValues(name).Add(float64(n))
		uc.metrics.BufferLiveSize.WithLabelValues(name).Set(float64(p.Buffer.Size()))
		uc.metrics.BufferCapacity.WithLabelValues(name).Set(float64(p.Buffer.Capacity()))
	}
	uc.logger.Debug("transferred readings to sink", "channel", name, "count", n)

	if recovered {
		uc.logger.Info("sink recovered", "channel", name)
		if err := uc.ReplayWAL(ctx); err != nil {
			uc.logger.Error("WAL replay after sink recovery failed", "error", err)
		}
	}
	return n, nil
}

func (uc *TransferReadingsUseCase) writeWithRetry(ctx context.Context, readings []domain.Reading) error {
	var lastErr error
	for i := 0; i < uc.retryCount; i++ {
		err := uc.sink.WriteReadingBatch(ctx, readings)
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("failed to write batch to sink, retrying...", "attempt", i+1, "error", err)
		select {
		case <-time.After(uc.retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// spillIfOverflowing moves a channel's live range to the WAL once it has
// outgrown the spill threshold, so a prolonged sink outage cannot grow the
// buffer without bound. The sink upsert is idempotent per channel and
// timestamp, so a partial spill at worst re-sends readings.
func (uc *TransferReadingsUseCase) spillIfOverflowing(ctx context.Context, p *ChannelPipeline) {
	if uc.wal == nil || p.Buffer.Size() < uc.spillThreshold {
		return
	}
	live := p.Buffer.Readings()
	for i := range live {
		if err := uc.wal.Write(ctx, live[i]); err != nil {
			uc.logger.Error("WAL spill failed, readings stay buffered", "error", err, "channel", p.Channel.Name)
			return
		}
	}
	n := p.Buffer.Discard(buffer.All, 1)
	if uc.metrics != nil {
		uc.metrics.ReadingsSpilled.Add(float64(n))
	}
	uc.logger.Warn("spilled buffered readings to WAL", "channel", p.Channel.Name, "count", n)
}

// ReplayWAL re-delivers spilled readings to the sink in batches and
// truncates the WAL on success.
func (uc *TransferReadingsUseCase) ReplayWAL(ctx context.Context) error {
	if uc.wal == nil {
		return nil
	}

	batch := make([]domain.Reading, 0, replayBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := uc.sink.WriteReadingBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	err := uc.wal.Replay(ctx, func(r domain.Reading) error {
		batch = append(batch, r)
		if len(batch) >= replayBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("WAL replay failed: %w", err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("WAL replay flush failed: %w", err)
	}
	if err := uc.wal.Truncate(ctx); err != nil {
		return fmt.Errorf("failed to truncate WAL after successful replay: %w", err)
	}
	return nil
}
