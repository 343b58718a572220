// esta es la logica de InteractionApplicationCommand de discordgo
// aqui solo manejamos la interaccion del usuario y despachamos a los servicios
package discord

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/jose-valero/patrol-time-bot/internal/app/service"
)

func (r *Router) handleSlashCommand(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.ApplicationCommandData()
	uid := interactionUserID(ic)
	log := r.log.With("evt", uuid.NewString(), "cmd", data.Name, "user", uid)
	log.Info("slash command", "guild", ic.GuildID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic in command", "panic", rec)
			ReplyEphemeral(s, ic, "❌ Ocurrió un error inesperado procesando el comando. Contacta con un administrador.")
		}
	}()

	cmd, ok := r.commands[data.Name]
	if !ok {
		return
	}
	_ = DeferEphemeral(s, ic)
	if !r.cmdLimiter.Allow(uid) {
		ReplyEphemeral(s, ic, "⏳ Esperá un segundo…")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	defer step(log, "cmd."+data.Name)()

	c := &Ctx{Log: log, Session: s, Event: ic, GuildID: ic.GuildID, UserID: uid}
	if err := cmd.Handler(ctx, c); err != nil {
		log.Error("command failed", "err", err)
		ReplyEphemeral(s, ic, "⚠️ No pude completar el comando.")
	}
}

//--> caso de test
func (r *Router) cmdPing(_ context.Context, c *Ctx) error {
	ReplyEphemeral(c.Session, c.Event, "🏓 Pong!")
	return nil
}

func (r *Router) cmdPatrolTime(ctx context.Context, c *Ctx) error {
	ic := c.Event
	rawID, ok := optUserID(ic, "officer")
	if !ok {
		ReplyEphemeral(c.Session, ic, "Usa `/patrol_time officer:@oficial`.")
		return nil
	}
	officerID, err := parseSnowflake(rawID)
	if err != nil {
		return err
	}

	var req service.RangeRequest
	req.From, _ = optStr(ic, "from")
	req.To, _ = optStr(ic, "to")
	req.Days, _ = optInt(ic, "days")
	list, _ := optBool(ic, "list")

	msg, err := r.query.PatrolTimeMessage(ctx, officerID, req, list)
	if errors.Is(err, service.ErrBadRange) {
		ReplyEphemeral(c.Session, ic, "⚠️ "+err.Error())
		return nil
	}
	if err != nil {
		return err
	}
	ReplyLong(c.Session, ic, msg)
	return nil
}

// rtv: quién tiene el rol. Compara contra el nombre sin adornos.
func (r *Router) cmdRoleMembers(ctx context.Context, c *Ctx) error {
	ic := c.Event
	name, _ := optStr(ic, "role_name")
	name = strings.TrimSpace(name)

	roles, err := r.guildRoles()
	if err != nil {
		c.Log.Warn("guild roles", "err", err)
		ReplyEphemeral(c.Session, ic, r.guildErrorText)
		return nil
	}
	var role *discordgo.Role
	for _, ro := range roles {
		if stripRoleDecoration(ro.Name) == name {
			role = ro
			break
		}
	}
	if role == nil {
		ReplyEphemeral(c.Session, ic, fmt.Sprintf("No encontré el rol `%s`", name))
		return nil
	}

	members, err := r.guildMembers(ctx)
	if err != nil {
		return fmt.Errorf("guild members: %w", err)
	}
	var lines []string
	for _, m := range members {
		if slices.Contains(m.Roles, role.ID) {
			lines = append(lines, displayName(m))
		}
	}
	header := fmt.Sprintf("Todos en el rol `%s` (%d):\n", name, len(lines))
	for _, part := range codeBlocks(header, lines, maxMessageLen) {
		ReplyEphemeral(c.Session, ic, part)
	}
	return nil
}

func (r *Router) guildRoles() ([]*discordgo.Role, error) {
	if g, err := r.s.State.Guild(r.guildID); err == nil && g != nil && len(g.Roles) > 0 {
		return g.Roles, nil
	}
	return r.s.GuildRoles(r.guildID)
}

// guildMembers pagina de a 1000 (máximo de la API).
func (r *Router) guildMembers(ctx context.Context) ([]*discordgo.Member, error) {
	var all []*discordgo.Member
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.s.GuildMembers(r.guildID, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < 1000 {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}
