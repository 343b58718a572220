package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

type Ctx struct {
	// Log ya trae evt (correlation id), cmd y user
	Log     *slog.Logger
	Session *discordgo.Session
	Event   *discordgo.InteractionCreate
	GuildID string
	UserID  string
}

// CommandHandler responde por su cuenta; un error devuelto es un fallo inesperado
// (el dispatcher lo loguea y contesta un mensaje genérico).
type CommandHandler func(ctx context.Context, c *Ctx) error

type Command struct {
	Def     *discordgo.ApplicationCommand
	Handler CommandHandler
}
