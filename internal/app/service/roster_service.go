package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
	"github.com/jose-valero/patrol-time-bot/internal/infra/storage"
)

// GraceWindow: si el oficial vuelve antes de esto, conserva su perfil.
const GraceWindow = 7 * 24 * time.Hour

// RosterAction describe qué hizo el roster con un member update.
type RosterAction int

const (
	RosterNoop RosterAction = iota
	RosterAdded
	RosterRemoved
)

func (a RosterAction) String() string {
	switch a {
	case RosterAdded:
		return "added"
	case RosterRemoved:
		return "removed"
	}
	return "noop"
}

// Roster es el mapa en memoria officer_id -> Officer, espejo del rol LPD.
// Add/Remove toman el write lock durante toda la operación: por oficial quedan serializados.
type Roster struct {
	mu       sync.RWMutex
	officers map[int64]domain.Officer

	repo   OfficerRepo
	roleID int64
	clock  Clock
	log    *slog.Logger
}

// NewRoster carga todos los oficiales (activos y borrados) desde la DB.
func NewRoster(ctx context.Context, repo OfficerRepo, roleID int64, clock Clock, log *slog.Logger) (*Roster, error) {
	list, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("roster init: %w", err)
	}
	officers := make(map[int64]domain.Officer, len(list))
	for _, o := range list {
		officers[o.ID] = o
	}
	return &Roster{officers: officers, repo: repo, roleID: roleID, clock: clock, log: log}, nil
}

// Get devuelve una copia del oficial (activo o no).
func (r *Roster) Get(id int64) (domain.Officer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.officers[id]
	return o, ok
}

func (r *Roster) IsOfficer(id int64) bool {
	o, ok := r.Get(id)
	return ok && o.Active()
}

// Counts: activos y total (incluye soft-deleted).
func (r *Roster) Counts() (active, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.officers {
		if o.Active() {
			active++
		}
	}
	return active, len(r.officers)
}

func (r *Roster) HasRole(roles []int64) bool {
	return slices.Contains(roles, r.roleID)
}

// Add da de alta a alguien que acaba de conseguir el rol. prior es la fila que ya
// teníamos (si había). Dentro de la ventana de gracia sólo se limpia deleted_at;
// fuera de ella el perfil se resetea.
func (r *Roster) Add(ctx context.Context, id int64, prior *domain.Officer) error {
	now := r.clock.Now()
	lastAllowedReturn := now.Add(-GraceWindow)
	if !lastAllowedReturn.Before(now) {
		return domain.ErrTimeOverflow
	}
	if prior != nil && prior.DeletedAt == nil {
		return fmt.Errorf("officer %d: %w", id, domain.ErrAlreadyActive)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// prior pudo leerse antes de que otro update lo diera de alta: manda lo que hay en memoria
	if cur, ok := r.officers[id]; ok {
		if cur.Active() {
			return fmt.Errorf("officer %d: %w", id, domain.ErrAlreadyActive)
		}
		prior = &cur
	}

	if prior != nil && prior.DeletedAt.After(lastAllowedReturn) {
		var o domain.Officer
		err := withRetry(ctx, r.log, "officer.reactivate", func(ctx context.Context) error {
			var err error
			o, err = r.repo.Reactivate(ctx, id)
			return err
		})
		if err != nil {
			return fmt.Errorf("reactivate officer %d: %w", id, err)
		}
		r.officers[id] = o
		return nil
	}

	err := withRetry(ctx, r.log, "officer.insert", func(ctx context.Context) error {
		return r.repo.Insert(ctx, id, now)
	})
	if err != nil {
		return fmt.Errorf("insert officer %d: %w", id, err)
	}
	// releemos la fila: es la versión autoritativa para el cache
	var o domain.Officer
	err = withRetry(ctx, r.log, "officer.get", func(ctx context.Context) error {
		var err error
		o, err = r.repo.Get(ctx, id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("officer %d not in database after insert: %w", id, domain.ErrInvariantViolation)
	}
	if err != nil {
		return fmt.Errorf("refetch officer %d: %w", id, err)
	}
	r.officers[id] = o
	return nil
}

// Remove marca deleted_at=now en la DB y en memoria.
func (r *Roster) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.officers[id]
	if !ok {
		return fmt.Errorf("officer %d: %w", id, domain.ErrNotFound)
	}
	now := r.clock.Now()
	err := withRetry(ctx, r.log, "officer.soft_delete", func(ctx context.Context) error {
		return r.repo.SoftDelete(ctx, id, now)
	})
	if err != nil {
		return fmt.Errorf("soft delete officer %d: %w", id, err)
	}
	o.DeletedAt = &now
	r.officers[id] = o
	return nil
}

// HandleMemberUpdate: alta si consiguió el rol, baja si lo perdió.
func (r *Roster) HandleMemberUpdate(ctx context.Context, id int64, roles []int64) (RosterAction, error) {
	prior, known := r.Get(id)
	active := known && prior.Active()
	hasRole := r.HasRole(roles)

	switch {
	case !active && hasRole:
		var p *domain.Officer
		if known {
			p = &prior
		}
		if err := r.Add(ctx, id, p); err != nil {
			return RosterNoop, err
		}
		return RosterAdded, nil
	case active && !hasRole:
		if err := r.Remove(ctx, id); err != nil {
			return RosterNoop, err
		}
		return RosterRemoved, nil
	}
	return RosterNoop, nil
}

// HandleMemberRemoval: se fue del guild. Sólo tocamos a los oficiales activos; volver a
// marcar a alguien ya borrado le correría la ventana de gracia.
func (r *Roster) HandleMemberRemoval(ctx context.Context, id int64) (RosterAction, error) {
	if !r.IsOfficer(id) {
		return RosterNoop, nil
	}
	if err := r.Remove(ctx, id); err != nil {
		return RosterNoop, err
	}
	return RosterRemoved, nil
}
