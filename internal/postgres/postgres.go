// Package postgres stores templates and render logs in PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationDir = "migrations"

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ querier = (*pgxpool.Pool)(nil)

// DB owns the connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open connects to dsn and verifies the connection.
// maxConns <= 0 keeps the driver default.
func Open(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("database connected",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
		zap.Int32("max_conns", cfg.MaxConns))
	return &DB{pool: pool, logger: logger}, nil
}

// Migrate applies pending schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(d.pool)
	defer func() { _ = sqlDB.Close() }()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{d.logger.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, migrationDir); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			return nil
		}
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (d *DB) Close() {
	d.pool.Close()
}

// Templates returns the template record store.
func (d *DB) Templates() *TemplateStore {
	return &TemplateStore{q: d.pool}
}

// Logs returns the render log store.
func (d *DB) Logs() *LogStore {
	return &LogStore{q: d.pool}
}

// gooseLogger routes migration output through zap.
type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) { l.s.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...any) { l.s.Fatalf(format, v...) }
