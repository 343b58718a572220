package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
	"github.com/jose-valero/patrol-time-bot/internal/infra/storage"
)

var epoch = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// at fija el reloj en epoch + secs.
func (c *fakeClock) at(secs int) { c.Set(epoch.Add(time.Duration(secs) * time.Second)) }

// ---------- officers ----------

type fakeOfficerRepo struct {
	mu   sync.Mutex
	rows map[int64]domain.Officer
	err  error // se devuelve en la próxima escritura
}

func newFakeOfficerRepo(rows ...domain.Officer) *fakeOfficerRepo {
	r := &fakeOfficerRepo{rows: map[int64]domain.Officer{}}
	for _, o := range rows {
		r.rows[o.ID] = o
	}
	return r
}

func (r *fakeOfficerRepo) takeErr() error {
	err := r.err
	r.err = nil
	return err
}

func (r *fakeOfficerRepo) List(context.Context) ([]domain.Officer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Officer, 0, len(r.rows))
	for _, o := range r.rows {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeOfficerRepo) Get(_ context.Context, id int64) (domain.Officer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return domain.Officer{}, storage.ErrNotFound
	}
	return o, nil
}

func (r *fakeOfficerRepo) Insert(_ context.Context, id int64, startedMonitoring time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return err
	}
	r.rows[id] = domain.Officer{ID: id, StartedMonitoring: startedMonitoring}
	return nil
}

func (r *fakeOfficerRepo) Reactivate(_ context.Context, id int64) (domain.Officer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return domain.Officer{}, err
	}
	o, ok := r.rows[id]
	if !ok {
		return domain.Officer{}, storage.ErrNotFound
	}
	o.DeletedAt = nil
	r.rows[id] = o
	return o, nil
}

func (r *fakeOfficerRepo) SoftDelete(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeErr(); err != nil {
		return err
	}
	o, ok := r.rows[id]
	if !ok {
		return storage.ErrNotFound
	}
	o.DeletedAt = &at
	r.rows[id] = o
	return nil
}

// ---------- saved voice channels ----------

type fakeChannelRepo struct {
	mu      sync.Mutex
	rows    []domain.SavedVoiceChannel
	inserts int
	// raceOnInsert simula que otro writer inserta entre nuestro SELECT y nuestro INSERT.
	raceOnInsert bool
	// loseRow: el re-SELECT después del conflicto no encuentra nada.
	loseRow bool
}

func (r *fakeChannelRepo) Find(_ context.Context, guildID, channelID int64) (domain.SavedVoiceChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loseRow {
		return domain.SavedVoiceChannel{}, storage.ErrNotFound
	}
	for _, ch := range r.rows {
		if ch.GuildID == guildID && ch.ChannelID == channelID {
			return ch, nil
		}
	}
	return domain.SavedVoiceChannel{}, storage.ErrNotFound
}

func (r *fakeChannelRepo) Insert(_ context.Context, guildID, channelID int64, name string) (domain.SavedVoiceChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.raceOnInsert {
		r.raceOnInsert = false
		r.rows = append(r.rows, domain.SavedVoiceChannel{
			ID: int32(len(r.rows) + 1), GuildID: guildID, ChannelID: channelID, Name: "otro writer",
		})
		return domain.SavedVoiceChannel{}, storage.ErrConflict
	}
	for _, ch := range r.rows {
		if ch.GuildID == guildID && ch.ChannelID == channelID {
			return domain.SavedVoiceChannel{}, storage.ErrConflict
		}
	}
	ch := domain.SavedVoiceChannel{ID: int32(len(r.rows) + 1), GuildID: guildID, ChannelID: channelID, Name: name}
	r.rows = append(r.rows, ch)
	return ch, nil
}

func (r *fakeChannelRepo) byID(id int32) domain.SavedVoiceChannel {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.rows {
		if ch.ID == id {
			return ch
		}
	}
	return domain.SavedVoiceChannel{}
}

// ---------- patrols ----------

type storedPatrol struct {
	patrol domain.Patrol
	voices []domain.PatrolVoice
}

type fakePatrolRepo struct {
	mu       sync.Mutex
	channels *fakeChannelRepo
	stored   []storedPatrol
	failures []error // uno por llamada a InsertWithVoices
	calls    int
}

func (r *fakePatrolRepo) InsertWithVoices(_ context.Context, p domain.Patrol, voices []domain.PatrolVoice) (domain.Patrol, []domain.PatrolVoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.failures) > 0 {
		err := r.failures[0]
		r.failures = r.failures[1:]
		if err != nil {
			return domain.Patrol{}, nil, err
		}
	}
	p.ID = int32(len(r.stored) + 1)
	out := make([]domain.PatrolVoice, len(voices))
	for i, v := range voices {
		v.PatrolID = p.ID
		v.ID = int32(i + 1)
		out[i] = v
	}
	r.stored = append(r.stored, storedPatrol{patrol: p, voices: out})
	return p, out, nil
}

func (r *fakePatrolRepo) Find(_ context.Context, officerID int64, from, to time.Time) ([]domain.PatrolRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PatrolRecord
	for _, s := range r.stored {
		p := s.patrol
		if p.OfficerID != officerID || !p.Start.After(from) || !p.End.Before(to) {
			continue
		}
		rec := domain.PatrolRecord{Patrol: p}
		if r.channels != nil {
			rec.MainChannel = r.channels.byID(p.MainChannelID)
		}
		for _, v := range s.voices {
			vr := domain.PatrolVoiceRecord{PatrolVoice: v}
			if r.channels != nil {
				vr.Channel = r.channels.byID(v.ChannelID)
			}
			rec.Voices = append(rec.Voices, vr)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakePatrolRepo) all() []storedPatrol {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storedPatrol(nil), r.stored...)
}

// ---------- platform cache ----------

type fakeCache map[int64]ChannelInfo

var errUnknownChannel = errors.New("unknown channel")

func (c fakeCache) ChannelInfo(id int64) (ChannelInfo, error) {
	info, ok := c[id]
	if !ok {
		return ChannelInfo{}, errUnknownChannel
	}
	return info, nil
}

// ---------- helpers ----------

func setOf(ids ...int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func ptr(v int64) *int64 { return &v }

const testGuild int64 = 1

type trackerFixture struct {
	tracker  *Tracker
	clock    *fakeClock
	channels *fakeChannelRepo
	patrols  *fakePatrolRepo
}

func newTrackerFixture(t *testing.T, cfg TrackerConfig, cache fakeCache) *trackerFixture {
	t.Helper()
	cfg.GuildID = testGuild
	clock := newFakeClock(epoch)
	channels := &fakeChannelRepo{}
	patrols := &fakePatrolRepo{channels: channels}
	log := discardLogger()
	if cache == nil {
		cache = fakeCache{}
	}
	tr := NewTracker(cfg, cache, NewChannelResolver(channels, log), patrols, clock, log)
	return &trackerFixture{tracker: tr, clock: clock, channels: channels, patrols: patrols}
}

// voice manda un VoiceStateUpdate en epoch+secs; channel 0 = salió de voz.
func (f *trackerFixture) voice(t *testing.T, officer int64, secs int, channel int64) Transition {
	t.Helper()
	f.clock.at(secs)
	var ch *int64
	if channel != 0 {
		ch = ptr(channel)
	}
	tr, err := f.tracker.HandleVoiceState(context.Background(), officer, testGuild, ch)
	if err != nil {
		t.Fatalf("voice(%d, t=%d, ch=%d): %v", officer, secs, channel, err)
	}
	return tr
}

func fastRetry(t *testing.T) {
	t.Helper()
	base, maxRetries := retryBase, retryMaxRetries
	retryBase = time.Millisecond
	t.Cleanup(func() { retryBase, retryMaxRetries = base, maxRetries })
}
