package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	discordrouter "github.com/jose-valero/patrol-time-bot/internal/adapters/discord"
	"github.com/jose-valero/patrol-time-bot/internal/app/service"
	"github.com/jose-valero/patrol-time-bot/internal/infra/config"
	"github.com/jose-valero/patrol-time-bot/internal/infra/storage"
)

func main() {
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := pflag.StringP("config", "c", envOr("LOM_CONFIG", config.DefaultPath), "ruta al YAML base (local.yaml al lado lo pisa)")
	debug := pflag.Bool("debug", false, "logs de nivel debug (incluye trazas)")
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := storage.Open(ctx, cfg.DatabaseURL, storage.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
		Timeout:  cfg.Database.ConnTimeout,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		log.Fatal("migrate:", err)
	}
	log.Println("✅ DB lista y migrada")

	// Repos
	officers := storage.NewOfficerRepo(db)
	channels := storage.NewChannelRepo(db)
	patrols := storage.NewPatrolRepo(db)

	clock := service.RealClock()
	roster, err := service.NewRoster(ctx, officers, cfg.Roles.LPD, clock, logger.With("component", "roster"))
	if err != nil {
		log.Fatal(err)
	}
	active, total := roster.Counts()
	log.Printf("✅ roster cargado: %d oficiales activos (%d conocidos)", active, total)

	// Discord session (antes del tracker, que usa su State como cache de canales)
	auth := strings.TrimSpace(cfg.Token)
	if !strings.HasPrefix(strings.ToLower(auth), "bot ") {
		auth = "Bot " + auth
	}
	s, err := discordgo.New(auth)
	if err != nil {
		log.Fatal(err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMembers

	tracker := service.NewTracker(
		service.TrackerConfig{
			GuildID:              cfg.GuildID,
			MonitoredCategories:  config.Set(cfg.PatrolTime.MonitoredCategories),
			MonitoredChannels:    config.Set(cfg.PatrolTime.MonitoredChannels),
			IgnoredChannels:      config.Set(cfg.PatrolTime.IgnoredChannels),
			BadMainChannelStarts: cfg.PatrolTime.BadMainChannelStarts,
		},
		discordrouter.NewStateChannels(s),
		service.NewChannelResolver(channels, logger.With("component", "resolver")),
		patrols,
		clock,
		logger.With("component", "tracker"),
	)
	query := service.NewQueryService(patrols, clock)

	// Router: handlers antes de Open para no perder el Ready
	r := discordrouter.NewRouter(s, discordrouter.RouterDeps{
		GuildID:        cfg.GuildID,
		GuildErrorText: cfg.GuildErrorText,
		Roster:         roster,
		Tracker:        tracker,
		Query:          query,
		Log:            logger.With("component", "router"),
	})
	r.Handlers()

	if err := s.Open(); err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	log.Printf("✅ Conectado como %s (%s)", s.State.User.Username, s.State.User.ID)

	if err := r.Register(); err != nil {
		log.Fatalf("registrando comandos: %v", err)
	}
	log.Printf("✅ comandos registrados en guild %d", cfg.GuildID)

	// Esperar señal
	<-ctx.Done()
	if n := tracker.OnDutyCount(); n > 0 {
		// los patrols abiertos se pierden al apagar
		log.Printf("⚠️ apagando con %d oficiales de servicio", n)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
