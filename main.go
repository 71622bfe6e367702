package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"devxp-progression-system/handlers"
	"devxp-progression-system/models"
	"devxp-progression-system/providers"
	"devxp-progression-system/services"
	"devxp-progression-system/utils"
	"devxp-progression-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB — webhook payloads are small
	})

	// CORS for browser clients hitting the read API through the gateway
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	// TranslateError maps driver unique-violation errors to
	// gorm.ErrDuplicatedKey; the dedup paths depend on it.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.GameAction{},
		&models.WebhookEvent{},
		&models.UserMapping{},
		&models.ProgressionState{},
		&models.ActivityStat{},
		&models.Activity{},
		&models.BadgeType{},
		&models.UserBadge{},
		&models.Notification{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Redis fan-out is optional; without it events stay in-process.
	var rdb *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL:", err)
		}
		rdb = redis.NewClient(opts)
	} else {
		log.Println("⚠️  REDIS_URL not set — progression events will not be published to redis")
	}

	// R2 audit storage is optional; without it raw payloads are not archived.
	var audit services.AuditStore
	if os.Getenv("R2_BUCKET_NAME") != "" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		audit = utils.R2AuditStore{}
	} else {
		log.Println("⚠️  R2_BUCKET_NAME not set — webhook audit storage disabled")
	}

	registry := providers.NewRegistry()
	registry.Register(providers.NewGitHubAdapter(), os.Getenv("GITHUB_WEBHOOK_SECRET"))
	registry.Register(providers.NewAzureDevOpsAdapter(), os.Getenv("AZURE_WEBHOOK_SECRET"))
	registry.Register(providers.NewBitbucketAdapter(), os.Getenv("BITBUCKET_WEBHOOK_SECRET"))
	registry.Register(providers.NewBitbucketServerAdapter(), os.Getenv("BITBUCKET_SERVER_WEBHOOK_SECRET"))

	bus := services.NewEventBus(rdb)
	notificationService := services.NewNotificationService(db)
	badgeService := services.NewBadgeService(db, bus, notificationService)
	progressionService := services.NewProgressionService(db, bus)
	handlerSet := services.NewActionHandlerSet()
	pipeline := services.NewWebhookPipeline(db, registry, handlerSet, progressionService, audit)

	// Badge and notification engines react to committed progression events
	bus.Subscribe(badgeService.HandleEvent)
	bus.Subscribe(notificationService.HandleEvent)

	if err := badgeService.SeedCatalog(); err != nil {
		log.Fatal("failed to seed badge catalog:", err)
	}

	profileServiceURL := os.Getenv("PROFILE_SERVICE_URL")
	if profileServiceURL == "" {
		log.Fatal("PROFILE_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("PROGRESSION_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("PROGRESSION_SERVICE_TOKEN environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker := workers.NewIdentitySyncWorker(db, profileServiceURL, "/api/v1/internal/identities", serviceToken)
	syncWorker.Start(ctx)

	maintenance := &services.MaintenanceService{DB: db}
	maintenance.StartMaintenanceScheduler()

	// Webhook ingestion stays outside gateway auth; providers sign their own
	// requests. Read and admin routes enforce user context per group.
	handlers.SetupWebhookRoutes(app, pipeline)
	handlers.SetupProgressionRoutes(app, progressionService, badgeService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Printf("✅ Webhook providers registered: %v", registry.Supported())
	log.Println("✅ Identity Sync Worker running")
	log.Println("✅ Maintenance scheduler running")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
