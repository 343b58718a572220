package service

import (
	"context"
	"time"

	"github.com/jose-valero/patrol-time-bot/internal/domain"
)

// Lo implementa internal/infra/storage.OfficerRepo
type OfficerRepo interface {
	List(ctx context.Context) ([]domain.Officer, error)
	Get(ctx context.Context, id int64) (domain.Officer, error)
	Insert(ctx context.Context, id int64, startedMonitoring time.Time) error
	Reactivate(ctx context.Context, id int64) (domain.Officer, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) error
}

// Lo implementa internal/infra/storage.ChannelRepo
type ChannelRepo interface {
	Find(ctx context.Context, guildID, channelID int64) (domain.SavedVoiceChannel, error)
	Insert(ctx context.Context, guildID, channelID int64, name string) (domain.SavedVoiceChannel, error)
}

// Lo implementa internal/infra/storage.PatrolRepo
type PatrolRepo interface {
	InsertWithVoices(ctx context.Context, p domain.Patrol, voices []domain.PatrolVoice) (domain.Patrol, []domain.PatrolVoice, error)
	Find(ctx context.Context, officerID int64, from, to time.Time) ([]domain.PatrolRecord, error)
}

// ChannelInfo es lo mínimo que el tracker necesita del cache de la plataforma.
type ChannelInfo struct {
	Name     string
	ParentID int64 // 0 = sin categoría
}

// Lo implementa internal/adapters/discord (State cache con fallback a REST).
type ChannelCache interface {
	ChannelInfo(channelID int64) (ChannelInfo, error)
}
