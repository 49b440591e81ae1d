package source

import (
	"sync"
	"testing"

	"github.com/user/meter-logger/internal/domain"
)

func TestMemorySource_PushAndReadings(t *testing.T) {
	src := New()
	src.Push(domain.NewReading(1.0, 1, 0, nil))
	src.Push(domain.NewReading(2.0, 2, 0, nil))

	if src.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", src.Len())
	}

	src.Lock()
	readings := src.Readings()
	if len(readings) != 2 {
		t.Fatalf("Readings() returned %d readings, want 2", len(readings))
	}
	if readings[0].TimeMs() != 1000 || readings[1].TimeMs() != 2000 {
		t.Errorf("readings out of arrival order: %d, %d", readings[0].TimeMs(), readings[1].TimeMs())
	}
	src.Unlock()
}

func TestMemorySource_UndeleteAndPending(t *testing.T) {
	src := New()
	src.Push(domain.NewReading(1.0, 1, 0, nil))
	src.Push(domain.NewReading(2.0, 2, 0, nil))

	src.Lock()
	for _, r := range src.Readings() {
		r.MarkDeleted()
	}
	src.Unlock()

	if src.Pending() != 0 {
		t.Fatalf("Pending() = %d after marking all, want 0", src.Pending())
	}

	src.Lock()
	src.Undelete()
	src.Unlock()

	if src.Pending() != 2 {
		t.Errorf("Pending() = %d after Undelete, want 2", src.Pending())
	}
}

func TestMemorySource_Compact(t *testing.T) {
	src := New()
	for i := 1; i <= 4; i++ {
		src.Push(domain.NewReading(float64(i), int64(i), 0, nil))
	}

	src.Lock()
	src.Readings()[0].MarkDeleted()
	src.Readings()[1].MarkDeleted()
	// third reading stays live; the consumed fourth is retained to preserve order
	src.Readings()[3].MarkDeleted()
	src.Unlock()

	if n := src.Compact(); n != 2 {
		t.Fatalf("Compact() = %d, want 2", n)
	}
	if src.Len() != 2 {
		t.Fatalf("Len() = %d after compact, want 2", src.Len())
	}

	src.Lock()
	if got := src.Readings()[0].TimeMs(); got != 3000 {
		t.Errorf("first reading at %d ms after compact, want 3000", got)
	}
	src.Unlock()

	if n := src.Compact(); n != 0 {
		t.Errorf("second Compact() = %d, want 0", n)
	}
}

func TestMemorySource_ConcurrentPush(t *testing.T) {
	src := New()
	const writers, perWriter = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				src.Push(domain.NewReading(float64(w), int64(w*perWriter+i+1), 0, nil))
			}
		}(w)
	}
	wg.Wait()

	if src.Len() != writers*perWriter {
		t.Errorf("Len() = %d, want %d", src.Len(), writers*perWriter)
	}
}
