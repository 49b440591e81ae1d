package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"
	"github.com/user/meter-logger/internal/domain"
)

// ReadingRepository implements domain.ReadingSink for PostgreSQL.
type ReadingRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReadingRepository creates a new PostgreSQL reading sink.
func NewReadingRepository(db *sql.DB, logger *slog.Logger) *ReadingRepository {
	return &ReadingRepository{db: db, logger: logger.With("component", "postgres_sink")}
}

// WriteReadingBatch writes a batch of readings using the COPY protocol with
// an ON CONFLICT upsert, so re-sent batches (WAL replay, retry after a
// half-acknowledged write) stay idempotent per channel and timestamp.
func (r *ReadingRepository) WriteReadingBatch(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	// Stage into a temp table, then merge, so COPY speed and idempotency
	// combine.
	tempTableName := "readings_temp_import"
	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+tempTableName+` (LIKE readings INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return err
	}

	stmt, err := txn.Prepare(pq.CopyIn(tempTableName, "channel_id", "channel", "unit", "reading_time", "value"))
	if err != nil {
		return err
	}

	for _, reading := range readings {
		var channelID, channelName, unit interface{}
		if reading.Channel != nil {
			channelID = reading.Channel.ID
			channelName = reading.Channel.Name
			unit = reading.Channel.Unit
		}
		_, err = stmt.ExecContext(ctx, channelID, channelName, unit, reading.Time, reading.Value)
		if err != nil {
			_ = stmt.Close()
			return err
		}
	}

	if err := stmt.Close(); err != nil {
		return err
	}

	upsertQuery := `
		INSERT INTO readings (channel_id, channel, unit, reading_time, value)
		SELECT channel_id, channel, unit, reading_time, value FROM ` + tempTableName + `
		ON CONFLICT (channel, reading_time) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			unit = EXCLUDED.unit,
			value = EXCLUDED.value;
	`
	_, err = txn.ExecContext(ctx, upsertQuery)
	if err != nil {
		return err
	}

	return txn.Commit()
}
