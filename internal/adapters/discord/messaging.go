package discord

import (
	"errors"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Defer efímero (para trabajos >3s)
func DeferEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate) error {
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("defer ephemeral", "err", err)
	}
	return err
}

// menciones apagadas: los listados nombran a medio servidor
var noPings = &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}

func ReplyEphemeral(s *discordgo.Session, ic *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Content:         content,
		Flags:           discordgo.MessageFlagsEphemeral,
		AllowedMentions: noPings,
	})
	if err == nil {
		return
	}
	// Fallback sólo si todavía no hay respuesta (webhook desconocido)
	var reqErr *discordgo.RESTError
	if errors.As(err, &reqErr) && reqErr.Message != nil && reqErr.Message.Code == discordgo.ErrCodeUnknownWebhook {
		_ = s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:         content,
				Flags:           discordgo.MessageFlagsEphemeral,
				AllowedMentions: noPings,
			},
		})
		return
	}
	slog.Warn("reply ephemeral", "err", err)
}

// ReplyLong manda content en varios followups si pasa el límite de 2000.
func ReplyLong(s *discordgo.Session, ic *discordgo.InteractionCreate, content string) {
	for _, part := range splitMessage(content, maxMessageLen) {
		ReplyEphemeral(s, ic, part)
	}
}
