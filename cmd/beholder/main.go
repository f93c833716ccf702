package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/beholderbot/beholder/internal/announce"
	"github.com/beholderbot/beholder/internal/bot"
	"github.com/beholderbot/beholder/internal/config"
	"github.com/beholderbot/beholder/internal/irc"
	"github.com/beholderbot/beholder/internal/observability"
	"github.com/beholderbot/beholder/internal/stats"
	"github.com/beholderbot/beholder/internal/store"
	"github.com/beholderbot/beholder/internal/turncount"
	"github.com/beholderbot/beholder/internal/variant"
)

const version = "0.3.0"

func main() {
	// A missing .env is fine; the environment itself may be configured
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("version", version).
		Str("nick", cfg.IRCNick).
		Msg("Starting beholder")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "beholder",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		Protocol:       cfg.OTLPProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdownTracer(context.Background())
	}

	table, err := variant.Load(cfg.VariantsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load variant table")
	}

	db, err := store.NewBoltStore(cfg.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer db.Close()

	st := stats.NewStore()
	filter := turncount.New(db)
	ann := announce.New(st, filter, announce.NewResolver())

	var b *bot.Bot
	client := irc.NewClient(irc.Config{
		Server:   cfg.IRCServer,
		Nick:     cfg.IRCNick,
		User:     cfg.IRCUser,
		Channel:  cfg.IRCChannel,
		UseTLS:   cfg.IRCUseTLS,
		Password: cfg.IRCPassword,
	}, func(m irc.Message) {
		b.OnMessage(m)
	})

	b = bot.New(cfg, client, table, st, filter, ann, db, db)

	if err := client.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to IRC")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := b.Run(ctx); err != nil && err != context.Canceled {
			errChan <- err
		}
	}()

	log.Info().Msg("Bot started successfully")

	select {
	case <-sigChan:
		log.Info().Msg("Received shutdown signal")
	case err := <-errChan:
		log.Error().Err(err).Msg("Bot error")
	}

	log.Info().Msg("Shutting down gracefully...")
	cancel()
	client.Close()

	log.Info().Msg("Bot stopped")
}
