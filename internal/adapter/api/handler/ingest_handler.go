package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/meter-logger/internal/usecase"
)

// ReadingIngestor accepts a single reading into the pipeline.
type ReadingIngestor interface {
	Ingest(ctx context.Context, channel string, value float64, at time.Time) error
}

// readingPayload is the wire format for a single ingested reading. A zero
// or absent time_ms means "stamp with server receive time".
type readingPayload struct {
	Channel string  `json:"channel"`
	Value   float64 `json:"value"`
	TimeMs  int64   `json:"time_ms,omitempty"`
}

func (p readingPayload) at() time.Time {
	if p.TimeMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.TimeMs)
}

// IngestHandler handles HTTP requests for reading ingestion.
type IngestHandler struct {
	ingestor    ReadingIngestor
	logger      *slog.Logger
	maxBodySize int64
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(ingestor ReadingIngestor, logger *slog.Logger, maxBodySize int64) *IngestHandler {
	return &IngestHandler{
		ingestor:    ingestor,
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// ServeHTTP processes incoming reading ingestion requests. A single JSON
// object or an NDJSON stream of objects is accepted.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	contentType := r.Header.Get("Content-Type")
	var err error
	switch contentType {
	case "application/json":
		err = h.handleSingleJSON(r.Context(), r.Body)
	case "application/x-ndjson":
		err = h.handleNDJSON(r.Context(), r.Body)
	default:
		http.Error(w, fmt.Sprintf("Unsupported Media Type: %s", contentType), http.StatusUnsupportedMediaType)
		return
	}

	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, usecase.ErrMissingChannel):
			http.Error(w, "Bad Request: reading has no channel", http.StatusBadRequest)
		case errors.As(err, new(*decodeError)):
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to process ingest request", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// decodeError distinguishes malformed payloads from ingestion failures.
type decodeError struct {
	cause error
}

func (e *decodeError) Error() string { return "failed to decode reading" }
func (e *decodeError) Unwrap() error { return e.cause }

func (h *IngestHandler) handleSingleJSON(ctx context.Context, body io.Reader) error {
	var payload readingPayload
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(&payload); err != nil {
		return &decodeError{cause: err}
	}
	return h.ingestor.Ingest(ctx, payload.Channel, payload.Value, payload.at())
}

func (h *IngestHandler) handleNDJSON(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var payload readingPayload
		if err := json.Unmarshal(line, &payload); err != nil {
			return &decodeError{cause: err}
		}
		if err := h.ingestor.Ingest(ctx, payload.Channel, payload.Value, payload.at()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
