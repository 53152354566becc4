package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"eirbridge/internal/browser"
	"eirbridge/internal/config"
	"eirbridge/internal/connector"
	"eirbridge/internal/connectors/se1177"
	"eirbridge/internal/handlers"
	"eirbridge/internal/handoff"
	"eirbridge/internal/logging"
	"eirbridge/internal/metrics"
	"eirbridge/internal/pipeline"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting eirbridge...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Viewer: %s)", cfg.Port, cfg.ViewerOrigin)

	// Transfer store: Redis when configured, in-memory otherwise
	var store handoff.Store
	if cfg.RedisURL != "" {
		redisStore, err := handoff.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		log.Println("⚠️  No REDIS_URL set, using in-memory transfer store")
		store = handoff.NewMemoryStore()
	}

	clock := clockwork.NewRealClock()
	transport := handoff.NewWebSocketTransport()
	transfer := handoff.NewManager(store, transport, cfg.ViewerOrigin, clock)

	// Connector registry; providers register their descriptors here
	extractionLogger := logging.NewExtractionLogger()
	registry := connector.NewRegistry()
	registry.Register(se1177.Descriptor(clock, extractionLogger))

	m := metrics.Init()
	transfer.SetMetrics(m)
	pipe := pipeline.New(registry, transfer, m, clock)

	// Browser session, created lazily on the first export request
	var (
		sessionMu sync.Mutex
		session   *browser.Session
	)
	sessionFn := func(ctx context.Context) (*browser.Session, error) {
		sessionMu.Lock()
		defer sessionMu.Unlock()
		if session != nil {
			return session, nil
		}
		var err error
		if cfg.DevToolsURL != "" {
			session, err = browser.NewRemoteSession(context.Background(), cfg.DevToolsURL, extractionLogger)
		} else {
			session, err = browser.NewSession(context.Background(), extractionLogger)
		}
		if err != nil {
			return nil, err
		}
		if cfg.PortalURL != "" {
			if navErr := session.Navigate(ctx, cfg.PortalURL); navErr != nil {
				log.Printf("⚠️  Failed to open portal URL: %v", navErr)
			}
		}
		return session, nil
	}

	app := fiber.New(fiber.Config{
		AppName:      "eirbridge v1.0",
		ReadTimeout:  0, // extraction of a heavily paginated journal takes minutes
		WriteTimeout: 0,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.ViewerOrigin,
	}))

	prometheus := fiberprometheus.New("eirbridge")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	exportHandler := handlers.NewExportHandler(pipe, sessionFn)
	healthHandler := handlers.NewHealthHandler(registry)

	app.Get("/health", healthHandler.Handle)
	app.Post("/api/export/full", exportHandler.HandleFull)
	app.Post("/api/export/files", exportHandler.HandleFiles)
	app.Post("/api/handoff", exportHandler.HandleHandoff)
	app.Get("/api/debug/screenshot", exportHandler.HandleScreenshot)

	// Viewer websocket: the remote viewer connects here to run the handoff
	// handshake.
	app.Use("/ws/viewer", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/viewer", transport.Handler())

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		sessionMu.Lock()
		if session != nil {
			session.Close()
		}
		sessionMu.Unlock()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
