package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/meter-logger/internal/domain"
)

const (
	segmentPrefix = "segment-"
	filePerm      = 0644
)

// WALRepository implements a file-based spill log for readings. Readings are
// appended as JSON lines to size-rotated segment files; Replay streams them
// back in write order.
type WALRepository struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentSize    int64
	totalSize      int64
}

// NewWALRepository creates a new WALRepository rooted at dir.
func NewWALRepository(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*WALRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory %s: %w", dir, err)
	}

	w := &WALRepository{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "wal_repository"),
	}

	if err := w.openLatestSegment(); err != nil {
		return nil, err
	}
	if err := w.refreshTotalSize(); err != nil {
		return nil, err
	}

	return w, nil
}

// Write appends a reading to the current WAL segment. Writes past the disk
// budget fail so a dead sink cannot fill the disk.
func (w *WALRepository) Write(ctx context.Context, reading domain.Reading) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading for WAL: %w", err)
	}
	data = append(data, '\n')

	if w.currentSegment == nil {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	if w.totalSize+int64(len(data)) > w.maxTotalSize {
		return fmt.Errorf("WAL max total size exceeded (%d + %d > %d)", w.totalSize, len(data), w.maxTotalSize)
	}

	n, err := w.currentSegment.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write to WAL segment: %w", err)
	}
	w.currentSize += int64(n)
	w.totalSize += int64(n)

	if w.currentSize >= w.maxSegmentSize {
		if err := w.rotate(); err != nil {
			w.logger.Error("Failed to rotate WAL segment", "error", err)
		}
	}

	return nil
}

// Replay reads all WAL segments in order and calls the handler for each
// reading. Undecodable lines are skipped; a handler error stops the replay.
func (w *WALRepository) Replay(ctx context.Context, handler func(reading domain.Reading) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentSegment != nil {
		w.currentSegment.Close()
		w.currentSegment = nil
	}

	segments, err := w.sortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}
	w.logger.Info("Starting WAL replay", "segment_count", len(segments))

	for _, segmentPath := range segments {
		if err := w.replaySegment(ctx, segmentPath, handler); err != nil {
			return err
		}
	}

	w.logger.Info("WAL replay completed")
	return w.openLatestSegment()
}

func (w *WALRepository) replaySegment(ctx context.Context, path string, handler func(reading domain.Reading) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var reading domain.Reading
		if err := json.Unmarshal(scanner.Bytes(), &reading); err != nil {
			w.logger.Warn("Failed to unmarshal reading from WAL, skipping", "error", err, "line", scanner.Text())
			continue
		}
		if err := handler(reading); err != nil {
			w.logger.Error("WAL replay handler failed, stopping replay", "error", err)
			return fmt.Errorf("replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// Truncate removes all WAL segment files and starts a fresh one.
func (w *WALRepository) Truncate(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentSegment != nil {
		w.currentSegment.Close()
		w.currentSegment = nil
	}

	segments, err := w.sortedSegments()
	if err != nil {
		return err
	}
	for _, segmentPath := range segments {
		if err := os.Remove(segmentPath); err != nil {
			w.logger.Error("Failed to remove WAL segment", "path", segmentPath, "error", err)
		}
	}
	w.totalSize = 0

	w.logger.Info("WAL truncated")
	return w.rotate()
}

func (w *WALRepository) rotate() error {
	if w.currentSegment != nil {
		if err := w.currentSegment.Sync(); err != nil {
			w.logger.Error("Failed to sync WAL segment before rotating", "error", err)
		}
		if err := w.currentSegment.Close(); err != nil {
			w.logger.Error("Failed to close WAL segment before rotating", "error", err)
		}
		w.currentSegment = nil
	}

	segmentName := fmt.Sprintf("%s%d.log", segmentPrefix, time.Now().UnixNano())
	path := filepath.Join(w.dir, segmentName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create new WAL segment %s: %w", path, err)
	}

	w.currentSegment = f
	w.currentSize = 0
	w.logger.Info("Rotated to new WAL segment", "path", path)
	return nil
}

func (w *WALRepository) openLatestSegment() error {
	segments, err := w.sortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return w.rotate()
	}

	latest := segments[len(segments)-1]
	stat, err := os.Stat(latest)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latest, err)
	}

	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latest, err)
	}

	w.currentSegment = f
	w.currentSize = stat.Size()

	if w.currentSize >= w.maxSegmentSize {
		return w.rotate()
	}
	return nil
}

func (w *WALRepository) sortedSegments() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAL directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), segmentPrefix) {
			segments = append(segments, filepath.Join(w.dir, entry.Name()))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (w *WALRepository) refreshTotalSize() error {
	segments, err := w.sortedSegments()
	if err != nil {
		return err
	}
	var total int64
	for _, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		total += info.Size()
	}
	w.totalSize = total
	return nil
}

// Close ensures the current segment is closed gracefully.
func (w *WALRepository) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentSegment != nil {
		return w.currentSegment.Close()
	}
	return nil
}
