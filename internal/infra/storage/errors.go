package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict envuelve un unique_violation (23505).
	ErrConflict = errors.New("insert conflict")
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
	codeTooManyConnections   = "53300"
)

func IsUniqueViolation(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// IsTransient: errores de conexión/concurrencia que vale la pena reintentar.
// Los errores de datos (FK, check, unique) nunca son transitorios.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeAdminShutdown, codeTooManyConnections:
			return true
		}
		// clase 08: connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

func conflictOr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.Join(ErrConflict, err)
	}
	return err
}
