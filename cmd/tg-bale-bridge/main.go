package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"tg-bale-bridge/internal/bale"
	"tg-bale-bridge/internal/bridge"
	"tg-bale-bridge/internal/command"
	"tg-bale-bridge/internal/config"
	"tg-bale-bridge/internal/crash"
	"tg-bale-bridge/internal/logger"
	"tg-bale-bridge/internal/models"
	"tg-bale-bridge/internal/storage"
	"tg-bale-bridge/internal/telegram"
)

func main() {
	defer crash.RecoverWithStackAndExit("main")

	// Define command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging first
	if err := logger.Setup(cfg); err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	// Pick the store: persistent when the database is enabled, otherwise
	// everything lives in memory and is lost on restart.
	var store bridge.Store
	if cfg.Database.Enabled {
		if err := storage.Initialize(cfg); err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		if err := storage.Migrate(storage.GetDB()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		store = storage.NewGormStore(storage.GetDB())
		log.Println("Database connection established")
	} else {
		store = bridge.NewMemoryStore()
		log.Println("Database disabled, using in-memory store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wire the bridge core
	pairing := bridge.NewPairingEngine(store)
	registry := bridge.NewLinkRegistry(store, pairing)
	verification := bridge.NewVerificationEngine(store, registry)

	if err := pairing.LoadRoutes(ctx); err != nil {
		log.Fatalf("Failed to load routes: %v", err)
	}

	// Platform clients
	telegramClient, err := telegram.NewClient(ctx, cfg.Telegram)
	if err != nil {
		log.Fatalf("Failed to initialize telegram client: %v", err)
	}
	baleClient, err := bale.NewClient(ctx, cfg.Bale)
	if err != nil {
		log.Fatalf("Failed to initialize bale client: %v", err)
	}

	// Command surface
	commands := command.NewHandler(verification, registry, pairing, store)
	commands.RegisterClient(telegramClient)
	commands.RegisterClient(baleClient)

	// Dispatcher
	dispatcher := bridge.NewDispatcher(pairing, bridge.DispatcherConfig{
		MirrorDMsToOperator: cfg.Bridge.MirrorDMsToOperator,
		OperatorChatIDs: map[models.Platform]int64{
			models.PlatformTelegram: cfg.Bridge.OperatorTelegramChatID,
			models.PlatformBale:     cfg.Bridge.OperatorBaleChatID,
		},
		SenderAttribution: cfg.Bridge.SenderAttribution,
		DeliveryTimeout:   time.Duration(cfg.Bridge.DeliveryTimeoutSeconds) * time.Second,
	})
	dispatcher.RegisterClient(telegramClient)
	dispatcher.RegisterClient(baleClient)
	dispatcher.SetCommandHandler(commands)

	logger.Infof("Bridge starting")
	if err := dispatcher.Run(ctx); err != nil {
		log.Fatalf("Dispatcher error: %v", err)
	}
	logger.Infof("Bridge gracefully stopped")
}
