package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
)

// TrackerConfig delimita qué canales cuentan como patrullaje.
type TrackerConfig struct {
	GuildID              int64
	MonitoredCategories  map[int64]struct{}
	MonitoredChannels    map[int64]struct{}
	IgnoredChannels      map[int64]struct{}
	BadMainChannelStarts []string
}

// Transition es lo que hizo el tracker con un voice state update.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionOnDuty
	TransitionMove
	TransitionOffDuty
)

func (t Transition) String() string {
	switch t {
	case TransitionOnDuty:
		return "on_duty"
	case TransitionMove:
		return "move"
	case TransitionOffDuty:
		return "off_duty"
	}
	return "none"
}

// Tracker: mapa officer_id -> PatrolLog abierto. Una entrada por oficial de servicio.
// discordgo despacha cada evento en su propia goroutine: los eventos de un mismo
// oficial se serializan con officerLocks.
type Tracker struct {
	mu   sync.RWMutex
	logs map[int64]*domain.PatrolLog

	locksMu      sync.Mutex
	officerLocks map[int64]*sync.Mutex

	cfg      TrackerConfig
	cache    ChannelCache
	channels *ChannelResolver
	patrols  PatrolRepo
	clock    Clock
	log      *slog.Logger
}

func NewTracker(cfg TrackerConfig, cache ChannelCache, channels *ChannelResolver, patrols PatrolRepo, clock Clock, log *slog.Logger) *Tracker {
	return &Tracker{
		logs:         map[int64]*domain.PatrolLog{},
		officerLocks: map[int64]*sync.Mutex{},
		cfg:          cfg,
		cache:        cache,
		channels:     channels,
		patrols:      patrols,
		clock:        clock,
		log:          log,
	}
}

func (t *Tracker) officerLock(officerID int64) *sync.Mutex {
	t.locksMu.Lock()
	defer t.locksMu.Unlock()
	l, ok := t.officerLocks[officerID]
	if !ok {
		l = &sync.Mutex{}
		t.officerLocks[officerID] = l
	}
	return l
}

// IsOnPatrol es un snapshot: puede correr contra una transición concurrente.
func (t *Tracker) IsOnPatrol(officerID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.logs[officerID]
	return ok
}

// Snapshot devuelve una copia del PatrolLog abierto.
func (t *Tracker) Snapshot(officerID int64) (*domain.PatrolLog, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pl, ok := t.logs[officerID]
	if !ok {
		return nil, false
	}
	return pl.Clone(), true
}

func (t *Tracker) OnDutyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.logs)
}

// IsMonitored: listado directo o dentro de una categoría monitoreada. Ignored pisa todo.
func (t *Tracker) IsMonitored(channelID int64) bool {
	if _, ignored := t.cfg.IgnoredChannels[channelID]; ignored {
		return false
	}
	if _, ok := t.cfg.MonitoredChannels[channelID]; ok {
		return true
	}
	if len(t.cfg.MonitoredCategories) == 0 {
		return false
	}
	info, err := t.cache.ChannelInfo(channelID)
	if err != nil {
		t.log.Debug("channel lookup failed", "channel", channelID, "err", err)
		return false
	}
	if info.ParentID == 0 {
		return false
	}
	_, ok := t.cfg.MonitoredCategories[info.ParentID]
	return ok
}

// HandleVoiceState aplica la tabla de transiciones. channelID == nil => salió de voz.
// La plataforma sólo manda el canal nuevo; el anterior sale del PatrolLog.
func (t *Tracker) HandleVoiceState(ctx context.Context, officerID, guildID int64, channelID *int64) (Transition, error) {
	if guildID != t.cfg.GuildID {
		return TransitionNone, nil
	}

	// la hora es la de llegada del evento, no la de cuando consigue el lock
	now := t.clock.Now()

	// decidir y mutar sin que otro evento del mismo oficial se meta en el medio
	l := t.officerLock(officerID)
	l.Lock()
	defer l.Unlock()

	t.mu.RLock()
	pl, hasEntry := t.logs[officerID]
	current, onDuty := pl.Current()
	t.mu.RUnlock()

	if hasEntry && !onDuty {
		// entrada sin canal abierto: estado corrupto, la tiramos
		t.drop(officerID)
		return TransitionNone, fmt.Errorf("officer %d has a closed patrol log: %w", officerID, domain.ErrInvariantViolation)
	}

	if !onDuty {
		if channelID == nil || !t.IsMonitored(*channelID) {
			return TransitionNone, nil
		}
		return TransitionOnDuty, t.goOnDuty(officerID, guildID, *channelID, now)
	}

	switch {
	case channelID == nil:
		_, err := t.goOffDuty(ctx, officerID, now)
		return TransitionOffDuty, err
	case *channelID == current:
		// mute/deafen re-emiten el evento con el mismo canal
		return TransitionNone, nil
	case t.IsMonitored(*channelID):
		return TransitionMove, t.moveOnDutyVC(officerID, guildID, *channelID, now)
	default:
		_, err := t.goOffDuty(ctx, officerID, now)
		return TransitionOffDuty, err
	}
}

func (t *Tracker) goOnDuty(officerID, guildID, channelID int64, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.logs[officerID]; ok {
		// se perdió un off-duty: descartamos el log viejo y el oficial queda en Off
		delete(t.logs, officerID)
		return fmt.Errorf("officer %d: %w", officerID, domain.ErrAlreadyOnDuty)
	}
	t.logs[officerID] = &domain.PatrolLog{
		OfficerID: officerID,
		VoiceLog:  []domain.ChannelLog{{GuildID: guildID, ChannelID: channelID, Start: now}},
	}
	return nil
}

func (t *Tracker) moveOnDutyVC(officerID, guildID, channelID int64, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pl, ok := t.logs[officerID]
	if !ok {
		return fmt.Errorf("officer %d moved without a patrol log: %w", officerID, domain.ErrInvariantViolation)
	}
	if len(pl.VoiceLog) == 0 {
		delete(t.logs, officerID)
		return fmt.Errorf("officer %d has an empty voice log: %w", officerID, domain.ErrInvariantViolation)
	}
	pl.VoiceLog[len(pl.VoiceLog)-1].End = &now
	pl.VoiceLog = append(pl.VoiceLog, domain.ChannelLog{GuildID: guildID, ChannelID: channelID, Start: now})
	return nil
}

// goOffDuty saca el log del mapa (write lock) y después lo persiste ya desacoplado:
// un rejoin posterior arranca un PatrolLog nuevo. Si persistir falla el patrol se pierde;
// el oficial ya no está en un canal monitoreado.
func (t *Tracker) goOffDuty(ctx context.Context, officerID int64, now time.Time) (domain.Patrol, error) {
	t.mu.Lock()
	pl, ok := t.logs[officerID]
	delete(t.logs, officerID)
	t.mu.Unlock()

	if !ok {
		return domain.Patrol{}, fmt.Errorf("officer %d went off duty without a patrol log: %w", officerID, domain.ErrInvariantViolation)
	}
	if len(pl.VoiceLog) == 0 {
		return domain.Patrol{}, fmt.Errorf("officer %d has an empty voice log: %w", officerID, domain.ErrInvariantViolation)
	}

	pl.VoiceLog[len(pl.VoiceLog)-1].End = &now
	started := time.Now()
	patrol, err := t.persist(ctx, pl)
	if err != nil {
		return domain.Patrol{}, fmt.Errorf("persist patrol of officer %d: %w", officerID, err)
	}
	t.log.Info("patrol closed",
		"officer", officerID, "patrol", patrol.ID, "dur", patrol.Duration().String(),
		"hops", len(pl.VoiceLog), "flush", time.Since(started).String())
	return patrol, nil
}

func (t *Tracker) drop(officerID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.logs, officerID)
}

func (t *Tracker) persist(ctx context.Context, pl *domain.PatrolLog) (domain.Patrol, error) {
	mainIdx := MainChannelIndex(pl.VoiceLog, t.channelName, t.cfg.BadMainChannelStarts)

	type key struct{ guild, channel int64 }
	resolved := map[key]domain.SavedVoiceChannel{}
	for _, cl := range pl.VoiceLog {
		k := key{cl.GuildID, cl.ChannelID}
		if _, ok := resolved[k]; ok {
			continue
		}
		var ch domain.SavedVoiceChannel
		err := withRetry(ctx, t.log, "channel.resolve", func(ctx context.Context) error {
			var err error
			ch, err = t.channels.Resolve(ctx, cl.GuildID, cl.ChannelID)
			return err
		})
		if err != nil {
			return domain.Patrol{}, fmt.Errorf("resolve channel %d: %w", cl.ChannelID, err)
		}
		resolved[k] = ch
	}

	first, last := pl.VoiceLog[0], pl.VoiceLog[len(pl.VoiceLog)-1]
	main := pl.VoiceLog[mainIdx]
	patrol := domain.Patrol{
		OfficerID:     pl.OfficerID,
		MainChannelID: resolved[key{main.GuildID, main.ChannelID}].ID,
		Start:         first.Start,
		End:           *last.End,
	}
	voices := make([]domain.PatrolVoice, 0, len(pl.VoiceLog))
	for _, cl := range pl.VoiceLog {
		if cl.End == nil {
			return domain.Patrol{}, fmt.Errorf("channel log %d still open: %w", cl.ChannelID, domain.ErrInvariantViolation)
		}
		voices = append(voices, domain.PatrolVoice{
			ChannelID: resolved[key{cl.GuildID, cl.ChannelID}].ID,
			Start:     cl.Start,
			End:       *cl.End,
		})
	}

	err := withRetry(ctx, t.log, "patrol.insert", func(ctx context.Context) error {
		var err error
		patrol, _, err = t.patrols.InsertWithVoices(ctx, patrol, voices)
		return err
	})
	if err != nil {
		return domain.Patrol{}, err
	}
	return patrol, nil
}

func (t *Tracker) channelName(channelID int64) string {
	info, err := t.cache.ChannelInfo(channelID)
	if err != nil {
		t.log.Debug("channel name lookup failed", "channel", channelID, "err", err)
		return ""
	}
	return info.Name
}

// MainChannelIndex: el primer canal cuyo nombre no empieza con ningún prefijo "malo";
// si todos son malos, el último.
func MainChannelIndex(voiceLog []domain.ChannelLog, nameOf func(channelID int64) string, badStarts []string) int {
	for i, cl := range voiceLog {
		name := nameOf(cl.ChannelID)
		bad := false
		for _, prefix := range badStarts {
			if strings.HasPrefix(name, prefix) {
				bad = true
				break
			}
		}
		if !bad {
			return i
		}
	}
	return len(voiceLog) - 1
}

// IsLogicError: errores de estado en memoria (no de DB).
func IsLogicError(err error) bool {
	return errors.Is(err, domain.ErrInvariantViolation) ||
		errors.Is(err, domain.ErrAlreadyOnDuty) ||
		errors.Is(err, domain.ErrAlreadyActive) ||
		errors.Is(err, domain.ErrNotFound)
}
