package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"facebot-go/internal/api"
	"facebot-go/internal/bot"
	"facebot-go/internal/config"
	"facebot-go/internal/core/pipeline"
	"facebot-go/internal/db"
	"facebot-go/internal/db/repository"
	"facebot-go/internal/logger"
	"facebot-go/internal/mqtt"
	"facebot-go/internal/recognizer"
	"facebot-go/internal/services/cleanup"
	"facebot-go/internal/util/timezone"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the HTTP API and the MQTT ingest channel",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	timezone.Initialize()

	gormDB, err := db.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	repo := repository.NewSQLiteRepository(gormDB)

	rec := recognizer.NewClient(cfg.Recognizer)
	if ok, err := rec.Ping(cmd.Context()); err != nil || !ok {
		log.Warnf("Face encoder at %s is not reachable yet: %v", cfg.Recognizer.URL, err)
	}

	pipe := pipeline.New(cfg, repo, rec)
	defer pipe.Shutdown()
	svc := pipe.Service()

	tgBot, err := bot.New(cfg.Telegram, repo, svc)
	if err != nil {
		return err
	}

	apiServer := api.NewServer(cfg, repo, svc, pipe.Pool(), rec)
	mqttClient := mqtt.NewClient(cfg.MQTT, svc)
	cleaner := cleanup.NewCleanupService(repo, cfg.Cleanup, cfg.Server.ImageDir, cfg.Backup.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Broker downtime is tolerated; the client reconnects on its own.
	if err := mqttClient.Start(); err != nil {
		log.Errorf("MQTT startup failed: %v", err)
	}
	defer mqttClient.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Start(ctx)
	})
	g.Go(func() error {
		tgBot.Start()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		tgBot.Stop()
		return nil
	})
	g.Go(func() error {
		cleaner.Start(ctx)
		return nil
	})

	log.Info("Service started, press Ctrl+C to stop")
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	log.Info("Service stopped")
	return nil
}
