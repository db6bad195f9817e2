package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"CompetitionScanner/internal/config"
	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/ports"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Connector opens a batch-scoped Repository for the configured database.
type Connector struct {
	cfg    config.DatabaseConfig
	logger *slog.Logger
}

var _ ports.StoreConnector = (*Connector)(nil)

// NewConnector validates the driver name and keeps the configuration.
func NewConnector(cfg config.DatabaseConfig, logger *slog.Logger) (*Connector, error) {
	if _, err := placeholderFor(cfg.Driver); err != nil {
		return nil, err
	}
	if cfg.Table == "" {
		cfg.Table = "competition"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{cfg: cfg, logger: logger}, nil
}

// Connect opens and pings the database, creating the table when autoMigrate is set.
func (c *Connector) Connect(ctx context.Context) (ports.CompetitionStore, error) {
	repo, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Open is Connect returning the concrete type.
func (c *Connector) Open(ctx context.Context) (*Repository, error) {
	placeholder, err := placeholderFor(c.cfg.Driver)
	if err != nil {
		return nil, err
	}

	repo := &Repository{
		driver:         c.cfg.Driver,
		dsn:            c.cfg.DSN,
		table:          c.cfg.Table,
		connectTimeout: c.cfg.ConnectTimeout,
		builder:        sq.StatementBuilder.PlaceholderFormat(placeholder),
		logger:         c.logger,
		sleep:          sleepContext,
	}

	c.logger.Info("connecting to database", "driver", c.cfg.Driver)
	if err := repo.open(ctx); err != nil {
		return nil, domain.Fail(domain.StagePersistence, domain.ReasonConnect, err)
	}
	c.logger.Info("database connected")

	if c.cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Close()
			return nil, domain.Fail(domain.StagePersistence, domain.ReasonConnect, err)
		}
	}
	return repo, nil
}

func placeholderFor(driver string) (sq.PlaceholderFormat, error) {
	switch driver {
	case DriverPostgres:
		return sq.Dollar, nil
	case DriverSQLite:
		return sq.Question, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func openDB(ctx context.Context, driver, dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}
