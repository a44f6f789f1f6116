package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/packforge/packforge/packforge"
	"github.com/packforge/packforge/packforge/alerting"
	"github.com/packforge/packforge/packforge/bus"
	"github.com/packforge/packforge/packforge/database"
	"github.com/packforge/packforge/packforge/database/repositories"
	"github.com/packforge/packforge/packforge/fulfillment"
	"github.com/packforge/packforge/packforge/logger"
	"github.com/packforge/packforge/packforge/trading"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler(slog.LevelInfo)
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting PackForge fulfillment service",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := packforge.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	slog.Info("Initializing database schema...")
	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	app := packforge.New(*cfg, version, commit)
	app.DB = db
	defer app.Close()

	busClient, err := bus.NewClient(ctx, cfg.AWS.Key, cfg.AWS.Secret, cfg.AWS.Region, cfg.AWS.Endpoint)
	if err != nil {
		slog.Error("Message bus client failed", slog.Any("error", err))
		os.Exit(-1)
	}
	app.Bus = busClient
	app.Publisher = bus.NewPublisher(busClient, cfg.Queues.GrantPack, cfg.Queues.TradeAccepted)

	app.RarityRepository = repositories.NewRarityRepository(db.BunDB())
	app.CardDesignRepository = repositories.NewCardDesignRepository(db.BunDB())
	app.CardInstanceRepository = repositories.NewCardInstanceRepository(db.BunDB())
	app.PackTypeRepository = repositories.NewPackTypeRepository(db.BunDB())
	app.PackRepository = repositories.NewPackRepository(db.BunDB())
	app.UserRepository = repositories.NewUserRepository(db.BunDB())
	app.TradeRepository = repositories.NewTradeRepository(db.BunDB())
	app.DeadLetterRepository = repositories.NewDeadLetterRepository(db.BunDB())
	app.EventRepository = repositories.NewFulfillmentEventRepository(db.BunDB())

	if err := app.LoadRarities(ctx); err != nil {
		slog.Error("Failed to load rarity catalog", slog.Any("error", err))
		os.Exit(-1)
	}

	resolver := fulfillment.NewResolver(app.CardDesignRepository, app.CardInstanceRepository, app.Rarities)
	allocator := fulfillment.NewAllocator(app.CardDesignRepository, app.CardInstanceRepository, app.Rarities)
	factory := fulfillment.NewInstanceFactory(app.CardDesignRepository, app.CardInstanceRepository, allocator, app.Rarities)
	policy := fulfillment.NewProportionalPolicy()

	packWorker := fulfillment.NewWorker(
		app.PackTypeRepository,
		app.UserRepository,
		app.PackRepository,
		app.EventRepository,
		resolver,
		allocator,
		factory,
		policy,
	)
	settlementWorker := trading.NewSettlementWorker(trading.NewBunSettlementStore(db.BunDB()))

	var notifier alerting.AlertNotifier
	if cfg.Alerts.WebhookID != 0 && cfg.Alerts.WebhookToken != "" {
		notifier = alerting.NewNotifier(cfg.Alerts.WebhookID, cfg.Alerts.WebhookToken)
	}
	var archive alerting.ArchiveStore
	if cfg.Alerts.ArchiveBucket != "" {
		archiver, err := alerting.NewArchiver(ctx, cfg.AWS.Key, cfg.AWS.Secret, cfg.AWS.Region, cfg.AWS.Endpoint, cfg.Alerts.ArchiveBucket)
		if err != nil {
			slog.Error("Dead-letter archiver failed", slog.Any("error", err))
			os.Exit(-1)
		}
		archive = archiver
	}
	grantDLQHandler := alerting.NewHandler(cfg.Queues.GrantPackDLQ, app.DeadLetterRepository, archive, notifier)
	tradeDLQHandler := alerting.NewHandler(cfg.Queues.TradeAcceptedDLQ, app.DeadLetterRepository, archive, notifier)

	app.Consumers = []*bus.Consumer{
		bus.NewConsumer("grant-pack", busClient, cfg.Queues.GrantPack, cfg.Queues.MaxInFlight, packWorker.Handle),
		bus.NewConsumer("trade-settlement", busClient, cfg.Queues.TradeAccepted, cfg.Queues.MaxInFlight, settlementWorker.Handle),
		bus.NewConsumer("grant-pack-dlq", busClient, cfg.Queues.GrantPackDLQ, 1, grantDLQHandler.Handle),
		bus.NewConsumer("trade-settlement-dlq", busClient, cfg.Queues.TradeAcceptedDLQ, 1, tradeDLQHandler.Handle),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("PackForge is now running. Press CTRL-C to exit.")
	if err := app.Run(runCtx); err != nil && runCtx.Err() == nil {
		slog.Error("Service stopped with error", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Shutdown complete")
}
