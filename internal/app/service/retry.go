package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jose-valero/patrol-time-bot/internal/infra/storage"
)

// atajos de tuning del retry (los tests los bajan)
var (
	retryBase       = 200 * time.Millisecond
	retryMaxRetries = uint64(2)
)

// withRetry reintenta sólo errores transitorios de DB; los errores lógicos salen de una.
func withRetry(ctx context.Context, log *slog.Logger, op string, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(retryMaxRetries, retry.NewExponential(retryBase))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && storage.IsTransient(err) {
			log.Warn("transient db error, retrying", "op", op, "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
