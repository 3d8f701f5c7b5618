package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"invite_service/internal/config"
	"invite_service/internal/gate"
	"invite_service/internal/gate/apiclient"
	"invite_service/internal/gate/discord"
	sl "invite_service/internal/lib/logger"

	"github.com/bwmarrin/discordgo"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := setupLogger(cfg.Env)

	if cfg.Discord.BotToken == "" {
		log.Error("discord bot token is required")
		os.Exit(1)
	}

	log.Info("starting verification bot",
		slog.String("env", cfg.Env),
		slog.Duration("verification_timeout", cfg.Discord.VerificationTimeout),
	)

	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		log.Error("failed to create discord session", sl.Err(err))
		os.Exit(1)
	}

	actions := discord.NewActions(session)
	notifier := discord.NewNotifier(session, cfg.Discord.VerificationChannel)
	verifier := apiclient.New(cfg.Discord.APIEndpoint, cfg.SecretKey)

	manager := gate.NewManager(log, gate.Config{
		MemberRole:     cfg.Discord.MemberRole,
		UnverifiedRole: cfg.Discord.UnverifiedRole,
		Timeout:        cfg.Discord.VerificationTimeout,
		KickGrace:      cfg.Discord.KickGrace,
	}, actions, notifier, verifier)

	bot := discord.NewBot(log, session, manager, notifier, cfg.Discord.MemberRole)

	if err := bot.Start(); err != nil {
		log.Error("failed to open discord session", sl.Err(err))
		os.Exit(1)
	}
	defer bot.Stop()

	sweeper := gate.NewSweeper(manager, log, cfg.Discord.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("Shutdown signal received")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
