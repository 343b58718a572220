package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
)

type ChannelRepo struct{ db *sql.DB }

func NewChannelRepo(db *sql.DB) *ChannelRepo { return &ChannelRepo{db: db} }

func (r *ChannelRepo) Find(ctx context.Context, guildID, channelID int64) (domain.SavedVoiceChannel, error) {
	var c domain.SavedVoiceChannel
	err := r.db.QueryRowContext(ctx, `
SELECT id, guild_id, channel_id, name
  FROM saved_voice_channels
 WHERE guild_id = $1 AND channel_id = $2
`, guildID, channelID).Scan(&c.ID, &c.GuildID, &c.ChannelID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SavedVoiceChannel{}, ErrNotFound
	}
	return c, err
}

// Insert devuelve ErrConflict (vía errors.Is) si otro writer ganó la carrera.
func (r *ChannelRepo) Insert(ctx context.Context, guildID, channelID int64, name string) (domain.SavedVoiceChannel, error) {
	var c domain.SavedVoiceChannel
	err := r.db.QueryRowContext(ctx, `
INSERT INTO saved_voice_channels (guild_id, channel_id, name)
VALUES ($1, $2, $3)
RETURNING id, guild_id, channel_id, name
`, guildID, channelID, name).Scan(&c.ID, &c.GuildID, &c.ChannelID, &c.Name)
	if err != nil {
		return domain.SavedVoiceChannel{}, conflictOr(err)
	}
	return c, nil
}
