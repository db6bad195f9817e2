package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/ports"
)

// Repository persists competition rows through a single database handle.
type Repository struct {
	driver         string
	dsn            string
	table          string
	connectTimeout time.Duration
	builder        sq.StatementBuilderType
	logger         *slog.Logger
	sleep          func(context.Context, time.Duration) error

	db *sql.DB
}

var _ ports.CompetitionStore = (*Repository)(nil)

func (r *Repository) open(ctx context.Context) error {
	db, err := openDB(ctx, r.driver, r.dsn, r.connectTimeout)
	if err != nil {
		return err
	}
	r.db = db
	return nil
}

// Connected reports whether the handle exists and answers a ping.
func (r *Repository) Connected(ctx context.Context) bool {
	if r.db == nil {
		return false
	}
	return r.db.PingContext(ctx) == nil
}

// Reconnect drops the current handle and retries opening it.
func (r *Repository) Reconnect(ctx context.Context, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	if r.db != nil {
		_ = r.db.Close()
		r.db = nil
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, delay); err != nil {
				return domain.Fail(domain.StagePersistence, domain.ReasonReconnect, err)
			}
		}

		if lastErr = r.open(ctx); lastErr == nil {
			r.logger.Info("database reconnected", "attempt", attempt)
			return nil
		}
		r.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", lastErr)
	}

	return domain.Fail(domain.StagePersistence, domain.ReasonReconnect,
		fmt.Errorf("reconnect failed after %d attempts: %w", attempts, lastErr))
}

// Insert writes one row; absent fields and a nil SourceURL are stored as NULL.
func (r *Repository) Insert(ctx context.Context, row domain.Row) error {
	if r.db == nil {
		return domain.Fail(domain.StagePersistence, domain.ReasonWrite, fmt.Errorf("database is not connected"))
	}

	columns := make([]string, 0, len(domain.Fields)+1)
	values := make([]any, 0, len(domain.Fields)+1)
	for _, f := range domain.Fields {
		columns = append(columns, f.Column())
		if v, ok := row.Record[f]; ok {
			values = append(values, v)
		} else {
			values = append(values, nil)
		}
	}
	columns = append(columns, "url")
	if row.SourceURL != nil {
		values = append(values, *row.SourceURL)
	} else {
		values = append(values, nil)
	}

	query, args, err := r.builder.Insert(r.table).Columns(columns...).Values(values...).ToSql()
	if err != nil {
		return domain.Fail(domain.StagePersistence, domain.ReasonWrite, fmt.Errorf("build insert: %w", err))
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			r.logger.Warn("insert rejected", "code", string(pqErr.Code), "constraint", pqErr.Constraint)
		}
		return domain.Fail(domain.StagePersistence, domain.ReasonWrite, fmt.Errorf("insert competition: %w", err))
	}

	r.logger.Info("insert successful", "title", row.Record[domain.FieldTitle])
	return nil
}

// Migrate creates the competition table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("database is not connected")
	}
	idColumn := "id BIGSERIAL PRIMARY KEY"
	if r.driver == DriverSQLite {
		idColumn = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s,
		title TEXT,
		target TEXT,
		period TEXT,
		category TEXT,
		org TEXT,
		award TEXT,
		url TEXT
	)`, pq.QuoteIdentifier(r.table), idColumn)

	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// Close releases the handle; calling it twice is harmless.
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// DB exposes the underlying handle for health checks and tests.
func (r *Repository) DB() *sql.DB {
	return r.db
}
