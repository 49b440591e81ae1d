package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/user/meter-logger/internal/domain"
)

func TestIngestReadingUseCase_Ingest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Successful Ingestion", func(t *testing.T) {
		channels := NewChannelSet(16, logger)
		uc := NewIngestReadingUseCase(channels, nil, logger)

		at := domain.ReadingTime(100, 0)
		if err := uc.Ingest(context.Background(), "power", 230.5, at); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		p := channels.Get("power")
		if p.Source.Pending() != 1 {
			t.Fatalf("expected 1 pending reading, got %d", p.Source.Pending())
		}
		p.Source.Lock()
		r := p.Source.Readings()[0]
		p.Source.Unlock()
		if r.Value != 230.5 || r.TimeMs() != 100000 {
			t.Errorf("unexpected reading %v @ %d ms", r.Value, r.TimeMs())
		}
		if r.Channel == nil || r.Channel.Name != "power" {
			t.Error("reading not attached to its channel")
		}
	})

	t.Run("Missing Channel", func(t *testing.T) {
		channels := NewChannelSet(16, logger)
		uc := NewIngestReadingUseCase(channels, nil, logger)

		err := uc.Ingest(context.Background(), "", 1.0, time.Now())
		if !errors.Is(err, ErrMissingChannel) {
			t.Fatalf("expected ErrMissingChannel, got %v", err)
		}
	})

	t.Run("Zero Timestamp Enriched", func(t *testing.T) {
		channels := NewChannelSet(16, logger)
		uc := NewIngestReadingUseCase(channels, nil, logger)

		if err := uc.Ingest(context.Background(), "power", 1.0, time.Time{}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		p := channels.Get("power")
		p.Source.Lock()
		r := p.Source.Readings()[0]
		p.Source.Unlock()
		if r.Time.IsZero() {
			t.Error("expected receive time to be set")
		}
	})

	t.Run("Channel Identity Is Stable", func(t *testing.T) {
		channels := NewChannelSet(16, logger)
		uc := NewIngestReadingUseCase(channels, nil, logger)

		_ = uc.Ingest(context.Background(), "energy", 1.0, domain.ReadingTime(1, 0))
		_ = uc.Ingest(context.Background(), "energy", 2.0, domain.ReadingTime(2, 0))

		p := channels.Get("energy")
		p.Source.Lock()
		defer p.Source.Unlock()
		readings := p.Source.Readings()
		if readings[0].Channel.ID != readings[1].Channel.ID {
			t.Error("readings of one channel carry different identities")
		}
	})
}
