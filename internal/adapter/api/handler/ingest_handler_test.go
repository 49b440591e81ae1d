package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/user/meter-logger/internal/usecase"
)

// MockIngestor is a mock implementation of the ReadingIngestor interface.
type MockIngestor struct {
	mu         sync.Mutex
	IngestFunc func(ctx context.Context, channel string, value float64, at time.Time) error
	Ingested   []string
}

func (m *MockIngestor) Ingest(ctx context.Context, channel string, value float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IngestFunc != nil {
		if err := m.IngestFunc(ctx, channel, value, at); err != nil {
			return err
		}
	}
	m.Ingested = append(m.Ingested, channel)
	return nil
}

func TestIngestHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		method         string
		contentType    string
		body           string
		mockIngestErr  error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Valid Single JSON",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"channel": "power", "value": 230.1, "time_ms": 1000}`,
			expectedStatus: http.StatusAccepted,
			expectedBody:   "",
		},
		{
			name:           "Valid NDJSON",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           `{"channel": "power", "value": 1}` + "\n" + `{"channel": "power", "value": 2}`,
			expectedStatus: http.StatusAccepted,
			expectedBody:   "",
		},
		{
			name:           "Invalid Method",
			method:         http.MethodGet,
			contentType:    "application/json",
			body:           `{}`,
			expectedStatus: http.StatusMethodNotAllowed,
			expectedBody:   "Method Not Allowed\n",
		},
		{
			name:           "Unsupported Content-Type",
			method:         http.MethodPost,
			contentType:    "text/plain",
			body:           `hello`,
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedBody:   "Unsupported Media Type: text/plain\n",
		},
		{
			name:           "Bad JSON",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"channel": "power"`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request: failed to decode reading\n",
		},
		{
			name:           "Bad NDJSON line",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           `{"channel": "power", "value": 1}` + "\n" + `{"channel": "bad`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request: failed to decode reading\n",
		},
		{
			name:           "Missing Channel",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"value": 1.0}`,
			mockIngestErr:  usecase.ErrMissingChannel,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request: reading has no channel\n",
		},
		{
			name:           "Ingest Error",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"channel": "power", "value": 1.0}`,
			mockIngestErr:  errors.New("source buffer unavailable"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "Internal Server Error\n",
		},
		{
			name:           "Payload Too Large",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"channel": "power", "value": 1.0, "time_ms": 123456789012345}`,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody:   "Payload too large\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockIngestor := &MockIngestor{
				IngestFunc: func(ctx context.Context, channel string, value float64, at time.Time) error {
					return tt.mockIngestErr
				},
			}
			// Use a small max size for the "Payload Too Large" test
			maxSize := int64(1024)
			if tt.name == "Payload Too Large" {
				maxSize = 20
			}

			handler := NewIngestHandler(mockIngestor, logger, maxSize)

			req := httptest.NewRequest(tt.method, "/readings", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", status, tt.expectedStatus)
			}
			if body := rr.Body.String(); body != tt.expectedBody {
				t.Errorf("handler returned unexpected body: got %q want %q", body, tt.expectedBody)
			}
		})
	}
}

func TestIngestHandler_NDJSONReachesIngestor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockIngestor := &MockIngestor{}
	handler := NewIngestHandler(mockIngestor, logger, 1024)

	body := `{"channel": "power", "value": 1}` + "\n\n" + `{"channel": "energy", "value": 2}`
	req := httptest.NewRequest(http.MethodPost, "/readings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/x-ndjson")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if len(mockIngestor.Ingested) != 2 {
		t.Fatalf("expected 2 ingested readings, got %d", len(mockIngestor.Ingested))
	}
	if mockIngestor.Ingested[0] != "power" || mockIngestor.Ingested[1] != "energy" {
		t.Errorf("readings ingested out of order: %v", mockIngestor.Ingested)
	}
}
