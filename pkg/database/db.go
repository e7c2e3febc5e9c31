package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// DB is the database handle shared by all repositories. Query methods are
// transaction-aware: when the context carries an open transaction (see GetTx),
// the statement runs inside it.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	PingContext(ctx context.Context) error
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
	SetMaxOpenConns(n int)
	SetMaxIdleConns(n int)
	SetConnMaxLifetime(d time.Duration)
	Close() error
	Sqlx() *sqlx.DB
}

type DatabaseInstance struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &DatabaseInstance{
		db:     db,
		logger: logger,
	}
}

// Sqlx exposes the raw sqlx handle for integrations that need the driver
// directly (migrations, health checks).
func (d *DatabaseInstance) Sqlx() *sqlx.DB {
	return d.db
}

func (d *DatabaseInstance) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx, ok := TxFrom(ctx); ok {
		return tx.ExecContext(ctx, query, args...)
	}
	return d.db.ExecContext(ctx, query, args...)
}

func (d *DatabaseInstance) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx, ok := TxFrom(ctx); ok {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return d.db.GetContext(ctx, dest, query, args...)
}

func (d *DatabaseInstance) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx, ok := TxFrom(ctx); ok {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return d.db.SelectContext(ctx, dest, query, args...)
}

func (d *DatabaseInstance) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	if tx, ok := TxFrom(ctx); ok {
		return tx.QueryxContext(ctx, query, args...)
	}
	return d.db.QueryxContext(ctx, query, args...)
}

func (d *DatabaseInstance) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseInstance) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return d.db.BeginTxx(ctx, opts)
}

func (d *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, d.logger, d, opts)
}

func (d *DatabaseInstance) SetMaxOpenConns(n int)              { d.db.SetMaxOpenConns(n) }
func (d *DatabaseInstance) SetMaxIdleConns(n int)              { d.db.SetMaxIdleConns(n) }
func (d *DatabaseInstance) SetConnMaxLifetime(t time.Duration) { d.db.SetConnMaxLifetime(t) }
func (d *DatabaseInstance) Close() error                       { return d.db.Close() }
