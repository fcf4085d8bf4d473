package bootstrap

import (
	"context"
	"log"

	"crewtalk-be/internal/config"
	"crewtalk-be/internal/controller"
	"crewtalk-be/internal/engine"
	"crewtalk-be/internal/pkg/logger"
	"crewtalk-be/internal/repository/memory"
	"crewtalk-be/internal/repository/unitofwork"
	"crewtalk-be/internal/service"
	"crewtalk-be/internal/websocket"
	"crewtalk-be/pkg/llm/factory"

	pktNats "crewtalk-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	SessionController controller.ISessionController

	// Background Services (Exposed for main.go to run)
	CheckpointService service.ICheckpointService

	// WebSockets
	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// Initialize LLM Provider based on Config
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.Provider,
		cfg.Ai.Model,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.OpenAIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.Provider, cfg.Ai.Model)

	// 2.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		natsPub = nil
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v (single-instance fan-out only)", err)
		rdb = nil
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/stream.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. Session Core
	shortTermMemory := memory.NewShortTermMemory()
	registry := engine.NewRegistry()

	publisherService := service.NewPublisherService(cfg.Session.CheckpointTopic, pubSub)
	checkpointer := service.NewNotepadCheckpointer(publisherService)
	checkpointService := service.NewCheckpointService(
		pubSub,
		cfg.Session.CheckpointTopic,
		uowFactory,
		sysLogger,
	)

	sessionService := service.NewSessionService(
		uowFactory,
		registry,
		shortTermMemory,
		llmProvider,
		wsHub,
		natsPub,
		checkpointer,
		cfg.Session,
		sysLogger,
	)

	sessionController := controller.NewSessionController(sessionService, wsHub, sysLogger)

	return &Container{
		SessionController: sessionController,
		CheckpointService: checkpointService,
		WebSocketHub:      wsHub,
	}
}
