package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
)

// patrols sin ningún patrol_voice_comms: quedaron a medio escribir antes de que el
// insert fuera transaccional. La hora de margen evita pisar un insert en curso.
const orphanPatrols = `
DELETE FROM patrols p
WHERE NOT EXISTS (SELECT 1 FROM patrol_voice_comms v WHERE v.patrol_id = p.id)
  AND p."end" < now() - INTERVAL '1 hour';`

func handler(ctx context.Context) (string, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return "no DATABASE_URL", nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Sprintf("parse: %v", err), nil
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("pool: %v", err), nil
	}
	defer pool.Close()

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tag, err := pool.Exec(cctx, orphanPatrols)
	if err != nil {
		return "", fmt.Errorf("orphan patrols: %w", err)
	}
	fmt.Printf("janitor: %d orphan patrols deleted\n", tag.RowsAffected())
	return fmt.Sprintf("ok (%d)", tag.RowsAffected()), nil
}

func main() { lambda.Start(handler) }
