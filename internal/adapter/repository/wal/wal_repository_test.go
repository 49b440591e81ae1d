package wal

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/user/meter-logger/internal/domain"
)

func newTestWAL(t *testing.T, maxSegmentSize, maxTotalSize int64) *WALRepository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWALRepository(t.TempDir(), maxSegmentSize, maxTotalSize, logger)
	if err != nil {
		t.Fatalf("failed to create WAL: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWALRepository_WriteAndReplay(t *testing.T) {
	w := newTestWAL(t, 1024*1024, 10*1024*1024)
	ctx := context.Background()

	ch := domain.NewChannel("power", "W")
	want := []domain.Reading{
		domain.NewReading(1.0, 1, 0, ch),
		domain.NewReading(2.0, 2, 0, ch),
		domain.NewReading(3.0, 3, 0, ch),
	}
	for _, r := range want {
		if err := w.Write(ctx, r); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	var got []domain.Reading
	err := w.Replay(ctx, func(r domain.Reading) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("replayed %d readings, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Value != want[i].Value || got[i].TimeMs() != want[i].TimeMs() {
			t.Errorf("reading %d: got %v @ %d ms, want %v @ %d ms",
				i, got[i].Value, got[i].TimeMs(), want[i].Value, want[i].TimeMs())
		}
		if got[i].Channel == nil || got[i].Channel.Name != "power" {
			t.Errorf("reading %d lost its channel identity", i)
		}
	}
}

func TestWALRepository_SegmentRotation(t *testing.T) {
	// tiny segments force a rotation on nearly every write
	w := newTestWAL(t, 64, 10*1024*1024)
	ctx := context.Background()

	const count = 10
	for i := 0; i < count; i++ {
		if err := w.Write(ctx, domain.NewReading(float64(i), int64(i+1), 0, nil)); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	segments, err := w.sortedSegments()
	if err != nil {
		t.Fatalf("sortedSegments failed: %v", err)
	}
	if len(segments) < 2 {
		t.Errorf("expected multiple segments after rotation, got %d", len(segments))
	}

	replayed := 0
	err = w.Replay(ctx, func(domain.Reading) error {
		replayed++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if replayed != count {
		t.Errorf("replayed %d readings across segments, want %d", replayed, count)
	}
}

func TestWALRepository_DiskBudget(t *testing.T) {
	w := newTestWAL(t, 1024, 128)
	ctx := context.Background()

	var err error
	for i := 0; i < 100; i++ {
		if err = w.Write(ctx, domain.NewReading(float64(i), int64(i+1), 0, nil)); err != nil {
			break
		}
	}
	if err == nil {
		t.Fatal("expected writes past the disk budget to fail")
	}
}

func TestWALRepository_Truncate(t *testing.T) {
	w := newTestWAL(t, 1024*1024, 10*1024*1024)
	ctx := context.Background()

	if err := w.Write(ctx, domain.NewReading(1.0, 1, 0, nil)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Truncate(ctx); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	replayed := 0
	err := w.Replay(ctx, func(domain.Reading) error {
		replayed++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if replayed != 0 {
		t.Errorf("replayed %d readings after truncate, want 0", replayed)
	}

	// the WAL stays writable after a truncate
	if err := w.Write(ctx, domain.NewReading(2.0, 2, 0, nil)); err != nil {
		t.Errorf("Write after Truncate failed: %v", err)
	}
}
