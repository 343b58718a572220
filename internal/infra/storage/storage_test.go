package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
)

// openTestDB: Postgres real si TEST_DATABASE_URL está seteada; si no, skip.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, url, PoolOptions{MaxConns: 4, MinConns: 1, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE patrol_voice_comms, patrols, saved_voice_channels, events, officers RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

var base = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestOfficerRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewOfficerRepo(db)
	ctx := context.Background()

	if _, err := repo.Get(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}
	if err := repo.Insert(ctx, 7, base); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE officers SET vrchat_name = 'Kes', vrchat_id = 'usr_1' WHERE id = 7`); err != nil {
		t.Fatal(err)
	}
	if err := repo.SoftDelete(ctx, 7, base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	o, err := repo.Get(ctx, 7)
	if err != nil || o.DeletedAt == nil || !o.DeletedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("after soft delete: %+v, %v", o, err)
	}

	o, err = repo.Reactivate(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if o.DeletedAt != nil || o.VRChatName != "Kes" || !o.StartedMonitoring.Equal(base) {
		t.Fatalf("reactivated: %+v", o)
	}

	// volver a insertar resetea el perfil
	if err := repo.Insert(ctx, 7, base.Add(48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	o, _ = repo.Get(ctx, 7)
	if o.VRChatName != "" || o.VRChatID != "" || !o.StartedMonitoring.Equal(base.Add(48*time.Hour)) {
		t.Fatalf("reset: %+v", o)
	}

	if err := repo.SoftDelete(ctx, 99, base); !errors.Is(err, ErrNotFound) {
		t.Fatalf("soft delete missing: %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v, %v", list, err)
	}
}

func TestChannelRepo_UniqueIndex(t *testing.T) {
	db := openTestDB(t)
	repo := NewChannelRepo(db)
	ctx := context.Background()

	ch, err := repo.Insert(ctx, 1, 100, "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = repo.Insert(ctx, 1, 100, "")
	if !errors.Is(err, ErrConflict) || !IsUniqueViolation(err) {
		t.Fatalf("duplicate insert: %v", err)
	}
	got, err := repo.Find(ctx, 1, 100)
	if err != nil || got.ID != ch.ID {
		t.Fatalf("find: %+v, %v", got, err)
	}
	if _, err := repo.Find(ctx, 2, 100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other guild: %v", err)
	}
}

func TestPatrolRepo_InsertAndFind(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := NewOfficerRepo(db).Insert(ctx, 7, base); err != nil {
		t.Fatal(err)
	}
	channels := NewChannelRepo(db)
	c100, _ := channels.Insert(ctx, 1, 100, "")
	c101, _ := channels.Insert(ctx, 1, 101, "")
	repo := NewPatrolRepo(db)

	insert := func(start, hop, end time.Duration) domain.Patrol {
		t.Helper()
		p, voices, err := repo.InsertWithVoices(ctx,
			domain.Patrol{OfficerID: 7, MainChannelID: c101.ID, Start: base.Add(start), End: base.Add(end)},
			[]domain.PatrolVoice{
				{ChannelID: c100.ID, Start: base.Add(start), End: base.Add(hop)},
				{ChannelID: c101.ID, Start: base.Add(hop), End: base.Add(end)},
			})
		if err != nil {
			t.Fatal(err)
		}
		if p.ID == 0 || len(voices) != 2 || voices[0].PatrolID != p.ID {
			t.Fatalf("insert: %+v %+v", p, voices)
		}
		return p
	}
	insert(0, 5*time.Minute, 15*time.Minute)
	insert(time.Hour, 70*time.Minute, 2*time.Hour)

	recs, err := repo.Find(ctx, 7, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	// el primero empieza justo en from y el segundo termina justo en to
	if len(recs) != 0 {
		t.Fatalf("strict bounds: got %d patrols", len(recs))
	}

	recs, err = repo.Find(ctx, 7, base.Add(-time.Second), base.Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d patrols, want 2", len(recs))
	}
	r := recs[0]
	if r.MainChannel.ChannelID != 101 || len(r.Voices) != 2 || r.Voices[0].Channel.ChannelID != 100 ||
		!r.Voices[0].End.Equal(r.Voices[1].Start) || r.EventID != nil {
		t.Fatalf("record: %+v", r)
	}
}

func TestPatrolRepo_RollbackOnFailedVoice(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := NewOfficerRepo(db).Insert(ctx, 7, base); err != nil {
		t.Fatal(err)
	}
	c100, _ := NewChannelRepo(db).Insert(ctx, 1, 100, "")
	repo := NewPatrolRepo(db)

	_, _, err := repo.InsertWithVoices(ctx,
		domain.Patrol{OfficerID: 7, MainChannelID: c100.ID, Start: base, End: base.Add(time.Minute)},
		[]domain.PatrolVoice{{ChannelID: 9999, Start: base, End: base.Add(time.Minute)}})
	if err == nil {
		t.Fatal("expected fk violation")
	}
	if IsTransient(err) {
		t.Fatal("fk violation is not transient")
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM patrols`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("patrols = %d, want 0 (rolled back)", n)
	}
}
