package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
	"github.com/jose-valero/patrol-time-bot/internal/infra/storage"
)

// ChannelResolver busca o crea el SavedVoiceChannel de (guild, channel).
// El índice único de la DB es la garantía entre procesos; singleflight sólo evita
// que varias goroutines de este proceso hagan la misma carrera.
type ChannelResolver struct {
	repo  ChannelRepo
	log   *slog.Logger
	group singleflight.Group
}

func NewChannelResolver(repo ChannelRepo, log *slog.Logger) *ChannelResolver {
	return &ChannelResolver{repo: repo, log: log}
}

// Resolve comparte la llamada entre goroutines; cada una espera con su propio ctx.
// La llamada compartida no hereda la cancelación del primero que llegó.
func (r *ChannelResolver) Resolve(ctx context.Context, guildID, channelID int64) (domain.SavedVoiceChannel, error) {
	key := fmt.Sprintf("%d:%d", guildID, channelID)
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.resolve(shared, guildID, channelID)
	})
	select {
	case <-ctx.Done():
		return domain.SavedVoiceChannel{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.SavedVoiceChannel{}, res.Err
		}
		return res.Val.(domain.SavedVoiceChannel), nil
	}
}

func (r *ChannelResolver) resolve(ctx context.Context, guildID, channelID int64) (domain.SavedVoiceChannel, error) {
	ch, err := r.repo.Find(ctx, guildID, channelID)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return domain.SavedVoiceChannel{}, err
	}

	ch, err = r.repo.Insert(ctx, guildID, channelID, "")
	if err == nil {
		r.log.Debug("saved voice channel created", "guild", guildID, "channel", channelID, "id", ch.ID)
		return ch, nil
	}
	if !storage.IsUniqueViolation(err) {
		return domain.SavedVoiceChannel{}, err
	}

	// otro writer ganó: re-leemos su fila
	ch, err = r.repo.Find(ctx, guildID, channelID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.SavedVoiceChannel{}, domain.ErrResolverLost
	}
	return ch, err
}
