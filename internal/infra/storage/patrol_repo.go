package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
)

type PatrolRepo struct{ db *sql.DB }

func NewPatrolRepo(db *sql.DB) *PatrolRepo { return &PatrolRepo{db: db} }

// InsertWithVoices escribe el patrol y todos sus intervalos en una sola transacción:
// o queda todo o no queda nada (sin patrols huérfanos).
func (r *PatrolRepo) InsertWithVoices(ctx context.Context, p domain.Patrol, voices []domain.PatrolVoice) (domain.Patrol, []domain.PatrolVoice, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Patrol{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var eventID sql.NullInt32
	if p.EventID != nil {
		eventID = sql.NullInt32{Int32: *p.EventID, Valid: true}
	}
	err = tx.QueryRowContext(ctx, `
INSERT INTO patrols (officer_id, main_channel_id, "start", "end", event_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, p.OfficerID, p.MainChannelID, p.Start.UTC(), p.End.UTC(), eventID).Scan(&p.ID)
	if err != nil {
		return domain.Patrol{}, nil, fmt.Errorf("insert patrol: %w", err)
	}

	out := make([]domain.PatrolVoice, 0, len(voices))
	for i, v := range voices {
		v.PatrolID = p.ID
		err := tx.QueryRowContext(ctx, `
INSERT INTO patrol_voice_comms (patrol_id, channel_id, "start", "end")
VALUES ($1, $2, $3, $4)
RETURNING id
`, v.PatrolID, v.ChannelID, v.Start.UTC(), v.End.UTC()).Scan(&v.ID)
		if err != nil {
			return domain.Patrol{}, nil, fmt.Errorf("insert patrol voice %d: %w", i, err)
		}
		out = append(out, v)
	}

	if err := tx.Commit(); err != nil {
		return domain.Patrol{}, nil, err
	}
	return p, out, nil
}

// Find: patrols del oficial con start > from AND end < to (estrictos), cada uno con sus
// intervalos en orden de inserción.
func (r *PatrolRepo) Find(ctx context.Context, officerID int64, from, to time.Time) ([]domain.PatrolRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT p.id, p.officer_id, p.main_channel_id, p."start", p."end", p.event_id,
       c.id, c.guild_id, c.channel_id, c.name
  FROM patrols p
  JOIN saved_voice_channels c ON c.id = p.main_channel_id
 WHERE p.officer_id = $1
   AND p."start" > $2
   AND p."end"   < $3
 ORDER BY p."start" ASC, p.id ASC
`, officerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PatrolRecord
	index := map[int32]int{}
	ids := []int64{}
	for rows.Next() {
		var rec domain.PatrolRecord
		var eventID sql.NullInt32
		if err := rows.Scan(
			&rec.ID, &rec.OfficerID, &rec.MainChannelID, &rec.Start, &rec.End, &eventID,
			&rec.MainChannel.ID, &rec.MainChannel.GuildID, &rec.MainChannel.ChannelID, &rec.MainChannel.Name,
		); err != nil {
			return nil, err
		}
		rec.Start, rec.End = rec.Start.UTC(), rec.End.UTC()
		if eventID.Valid {
			id := eventID.Int32
			rec.EventID = &id
		}
		index[rec.ID] = len(out)
		ids = append(ids, int64(rec.ID))
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	voices, err := r.db.QueryContext(ctx, `
SELECT v.id, v.patrol_id, v.channel_id, v."start", v."end",
       c.id, c.guild_id, c.channel_id, c.name
  FROM patrol_voice_comms v
  JOIN saved_voice_channels c ON c.id = v.channel_id
 WHERE v.patrol_id = ANY($1)
 ORDER BY v.patrol_id ASC, v.id ASC
`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer voices.Close()

	for voices.Next() {
		var v domain.PatrolVoiceRecord
		if err := voices.Scan(
			&v.ID, &v.PatrolID, &v.ChannelID, &v.Start, &v.End,
			&v.Channel.ID, &v.Channel.GuildID, &v.Channel.ChannelID, &v.Channel.Name,
		); err != nil {
			return nil, err
		}
		v.Start, v.End = v.Start.UTC(), v.End.UTC()
		i, ok := index[v.PatrolID]
		if !ok {
			return nil, errors.New("patrol voice for unknown patrol")
		}
		out[i].Voices = append(out[i].Voices, v)
	}
	return out, voices.Err()
}
