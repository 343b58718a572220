package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PoolOptions: tamaño del pool y timeouts (connect/idle/lifetime comparten valor).
type PoolOptions struct {
	MaxConns int
	MinConns int
	Timeout  time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxConns <= 0 {
		o.MaxConns = 100
	}
	if o.MinConns <= 0 {
		o.MinConns = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 8 * time.Second
	}
	return o
}

// Open abre la conexión (pgx stdlib) y verifica health.
func Open(ctx context.Context, url string, opts PoolOptions) (*sql.DB, error) {
	opts = opts.withDefaults()
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(opts.MinConns)
	db.SetConnMaxLifetime(opts.Timeout)
	db.SetConnMaxIdleTime(opts.Timeout)

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Migrate aplica todas las migraciones embebidas.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}
