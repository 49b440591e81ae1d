package mocks

import (
	"context"
	"sync"

	"github.com/user/meter-logger/internal/domain"
)

// MockReadingSink is a mock implementation of domain.ReadingSink for testing.
type MockReadingSink struct {
	mu                sync.Mutex
	WrittenBatches    [][]domain.Reading
	WriteErr          error
	TransientFailures int // fail this many calls before succeeding
	WriteCalls        int
}

func (m *MockReadingSink) WriteReadingBatch(ctx context.Context, readings []domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteCalls++
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if m.TransientFailures > 0 {
		m.TransientFailures--
		return context.DeadlineExceeded
	}
	batch := make([]domain.Reading, len(readings))
	copy(batch, readings)
	m.WrittenBatches = append(m.WrittenBatches, batch)
	return nil
}

// Written returns all readings written across batches, in order.
func (m *MockReadingSink) Written() []domain.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reading
	for _, b := range m.WrittenBatches {
		out = append(out, b...)
	}
	return out
}

// MockLiveFeed is a mock implementation of domain.LiveFeed for testing.
type MockLiveFeed struct {
	mu         sync.Mutex
	Published  map[string][]domain.Reading
	PublishErr error
}

func (m *MockLiveFeed) PublishReadings(ctx context.Context, channel string, readings []domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	if m.Published == nil {
		m.Published = make(map[string][]domain.Reading)
	}
	m.Published[channel] = append(m.Published[channel], readings...)
	return nil
}

// MockWALRepository is an in-memory mock of domain.WALRepository for testing.
type MockWALRepository struct {
	mu        sync.Mutex
	Spilled   []domain.Reading
	WriteErr  error
	ReplayErr error
	Truncated bool
}

func (m *MockWALRepository) Write(ctx context.Context, reading domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Spilled = append(m.Spilled, reading)
	return nil
}

func (m *MockWALRepository) Replay(ctx context.Context, handler func(reading domain.Reading) error) error {
	m.mu.Lock()
	spilled := make([]domain.Reading, len(m.Spilled))
	copy(spilled, m.Spilled)
	err := m.ReplayErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	for _, r := range spilled {
		if err := handler(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockWALRepository) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Spilled = nil
	m.Truncated = true
	return nil
}
