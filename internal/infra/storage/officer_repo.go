package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
)

type OfficerRepo struct{ db *sql.DB }

func NewOfficerRepo(db *sql.DB) *OfficerRepo { return &OfficerRepo{db: db} }

const officerCols = `id, vrchat_name, vrchat_id, started_monitoring, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOfficer(row rowScanner) (domain.Officer, error) {
	var o domain.Officer
	var deletedAt sql.NullTime
	if err := row.Scan(&o.ID, &o.VRChatName, &o.VRChatID, &o.StartedMonitoring, &deletedAt); err != nil {
		return domain.Officer{}, err
	}
	o.StartedMonitoring = o.StartedMonitoring.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		o.DeletedAt = &t
	}
	return o, nil
}

// List trae todos los oficiales (activos y soft-deleted) para poblar el roster.
func (r *OfficerRepo) List(ctx context.Context) ([]domain.Officer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+officerCols+` FROM officers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Officer
	for rows.Next() {
		o, err := scanOfficer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OfficerRepo) Get(ctx context.Context, id int64) (domain.Officer, error) {
	o, err := scanOfficer(r.db.QueryRowContext(ctx, `SELECT `+officerCols+` FROM officers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Officer{}, ErrNotFound
	}
	return o, err
}

// Insert crea el oficial con perfil vacío. Si ya existía una fila (volvió después de la
// ventana de gracia) la resetea: el perfil viejo no se conserva.
func (r *OfficerRepo) Insert(ctx context.Context, id int64, startedMonitoring time.Time) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO officers (id, vrchat_name, vrchat_id, started_monitoring, deleted_at)
VALUES ($1, '', '', $2, NULL)
ON CONFLICT (id) DO UPDATE SET
  vrchat_name        = '',
  vrchat_id          = '',
  started_monitoring = EXCLUDED.started_monitoring,
  deleted_at         = NULL
`, id, startedMonitoring.UTC())
	return err
}

// Reactivate limpia deleted_at y deja el resto del perfil como estaba.
func (r *OfficerRepo) Reactivate(ctx context.Context, id int64) (domain.Officer, error) {
	o, err := scanOfficer(r.db.QueryRowContext(ctx, `
UPDATE officers SET deleted_at = NULL
 WHERE id = $1
RETURNING `+officerCols, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Officer{}, ErrNotFound
	}
	return o, err
}

// SoftDelete: update parcial, sólo toca deleted_at.
func (r *OfficerRepo) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE officers SET deleted_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
