package discord

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/jose-valero/patrol-time-bot/internal/app/service"
	"github.com/jose-valero/patrol-time-bot/internal/domain"
)

const (
	eventTimeout   = 30 * time.Second
	commandTimeout = 12 * time.Second
	cmdCooldown    = 2 * time.Second
)

type Router struct {
	s              *discordgo.Session
	guildID        string
	guildErrorText string
	log            *slog.Logger

	roster  *service.Roster
	tracker *service.Tracker
	query   *service.QueryService

	commands   map[string]Command
	cmdLimiter *userLimiter
}

type RouterDeps struct {
	GuildID        int64
	GuildErrorText string
	Roster         *service.Roster
	Tracker        *service.Tracker
	Query          *service.QueryService
	Log            *slog.Logger
}

func NewRouter(s *discordgo.Session, d RouterDeps) *Router {
	r := &Router{
		s:              s,
		guildID:        formatSnowflake(d.GuildID),
		guildErrorText: d.GuildErrorText,
		log:            d.Log,
		roster:         d.Roster,
		tracker:        d.Tracker,
		query:          d.Query,
		cmdLimiter:     newUserLimiter(cmdCooldown),
	}
	r.commands = map[string]Command{}
	for _, c := range r.commandSet() {
		r.commands[c.Def.Name] = c
	}
	return r
}

// Register crea los slash commands en el guild (necesita la sesión abierta).
func (r *Router) Register() error {
	appID := r.s.State.User.ID
	for _, c := range r.commands {
		if _, err := r.s.ApplicationCommandCreate(appID, r.guildID, c.Def); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Handlers() {
	r.s.AddHandler(r.onReady)
	r.s.AddHandler(r.onMemberUpdate)
	r.s.AddHandler(r.onMemberRemove)
	r.s.AddHandler(r.onVoiceStateUpdate)
	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic.Type == discordgo.InteractionApplicationCommand {
			r.handleSlashCommand(s, ic)
		}
	})
}

// eventLog: logger con correlation id por evento.
func (r *Router) eventLog(kind string) *slog.Logger {
	return r.log.With("evt", uuid.NewString(), "kind", kind)
}

func (r *Router) onReady(s *discordgo.Session, ev *discordgo.Ready) {
	active, total := r.roster.Counts()
	r.eventLog("ready").Info("connected",
		"user", ev.User.Username, "guilds", len(ev.Guilds), "officers", active, "known", total)
}

func (r *Router) onMemberUpdate(s *discordgo.Session, ev *discordgo.GuildMemberUpdate) {
	if ev.Member == nil || ev.User == nil || ev.GuildID != r.guildID {
		return
	}
	log := r.eventLog("member_update")
	uid, err := parseSnowflake(ev.User.ID)
	if err != nil {
		log.Warn("bad user id", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	action, err := r.roster.HandleMemberUpdate(ctx, uid, parseSnowflakes(ev.Roles))
	if err != nil {
		logHandlerError(log, "roster", uid, err)
		return
	}
	if action != service.RosterNoop {
		log.Info("roster changed", "officer", uid, "action", action.String())
	}
}

func (r *Router) onMemberRemove(s *discordgo.Session, ev *discordgo.GuildMemberRemove) {
	if ev.Member == nil || ev.User == nil || ev.GuildID != r.guildID {
		return
	}
	log := r.eventLog("member_remove")
	uid, err := parseSnowflake(ev.User.ID)
	if err != nil {
		log.Warn("bad user id", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	action, err := r.roster.HandleMemberRemoval(ctx, uid)
	if err != nil {
		logHandlerError(log, "roster", uid, err)
		return
	}
	if action != service.RosterNoop {
		log.Info("officer left the guild", "officer", uid)
	}
}

func (r *Router) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || vs.GuildID != r.guildID {
		return
	}
	uid, err := parseSnowflake(vs.UserID)
	if err != nil {
		return
	}
	// sólo oficiales, o quien ya tiene un patrol abierto (lo degradaron en medio del turno)
	if !r.roster.IsOfficer(uid) && !r.tracker.IsOnPatrol(uid) {
		return
	}
	log := r.eventLog("voice_state")
	guildID, err := parseSnowflake(vs.GuildID)
	if err != nil {
		log.Warn("bad guild id", "err", err)
		return
	}
	var channelID *int64
	if vs.ChannelID != "" {
		c, err := parseSnowflake(vs.ChannelID)
		if err != nil {
			log.Warn("bad channel id", "err", err)
			return
		}
		channelID = &c
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	tr, err := r.tracker.HandleVoiceState(ctx, uid, guildID, channelID)
	if err != nil {
		logHandlerError(log, "tracker", uid, err)
		return
	}
	if tr != service.TransitionNone {
		log.Info("patrol transition", "officer", uid, "transition", tr.String(), "channel", vs.ChannelID)
	}
}

// logHandlerError: los errores lógicos son estado corrupto en memoria, los de DB ya
// pasaron por el retry. En ambos casos seguimos con el próximo evento.
func logHandlerError(log *slog.Logger, handler string, officer int64, err error) {
	switch {
	case errors.Is(err, domain.ErrInvariantViolation), errors.Is(err, domain.ErrAlreadyOnDuty):
		log.Error("invariant violation, state dropped", "handler", handler, "officer", officer, "err", err)
	case service.IsLogicError(err):
		log.Warn("handler rejected event", "handler", handler, "officer", officer, "err", err)
	default:
		log.Error("handler failed", "handler", handler, "officer", officer, "err", err)
	}
}
