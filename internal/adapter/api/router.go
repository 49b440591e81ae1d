package api

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/user/meter-logger/internal/adapter/api/handler"
	"github.com/user/meter-logger/internal/adapter/api/middleware"
	"github.com/user/meter-logger/internal/pkg/config"
)

// NewRouter creates and configures the HTTP router for the ingest service.
func NewRouter(cfg *config.Config, logger *slog.Logger, ingestor handler.ReadingIngestor) http.Handler {
	mux := http.NewServeMux()

	ingestHandler := handler.NewIngestHandler(ingestor, logger, cfg.MaxBodySize)
	rateLimit := middleware.RateLimit(rate.Limit(cfg.IngestRateLimit), cfg.IngestRateBurst)

	mux.Handle("POST /readings", rateLimit(ingestHandler))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}
