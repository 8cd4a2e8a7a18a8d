package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	jsoniter "github.com/json-iterator/go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"gorm.io/gorm"

	"library/internal/config"
	"library/internal/database"
	"library/internal/handlers"
	"library/internal/metrics"
	"library/internal/middleware"
	"library/internal/repositories"
	"library/internal/retry"
	"library/internal/services"
	"library/pkg/rabbitmq"
	"library/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	a, err := newApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	if a.mq != nil {
		if err := a.mq.ConsumeEvents(handleBorrowingEvent); err != nil {
			log.Printf("Failed to start RabbitMQ consumer: %v", err)
		}
	}

	log.Printf("Starting server on port %s", cfg.AppPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := a.app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := a.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	log.Println("Server gracefully stopped")
}

// application owns the HTTP app and every connection it was built on.
type application struct {
	app     *fiber.App
	db      *gorm.DB
	redis   *goredis.Client
	mq      *rabbitmq.Client
	metrics *metrics.Metrics
}

func newApplication(cfg *config.Config) (*application, error) {
	a := &application{metrics: metrics.NewMetrics("library")}

	// --- Database ---
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := database.Migrate(db); err != nil {
		a.Close()
		return nil, err
	}

	// --- Token revocation ---
	var blacklist repositories.TokenBlacklist
	if cfg.RedisURL != "" {
		client, err := redis.NewClientFromURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		blacklist = repositories.NewRedisTokenBlacklist(client)
	} else {
		log.Println("REDIS_URL not set, keeping revoked tokens in memory")
		blacklist = repositories.NewMockTokenBlacklist()
	}

	// --- Events ---
	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mq, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: services.EventsExchange})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mq = mq
		publisher = mq
	} else {
		log.Println("RABBITMQ_URL not set, borrowing events are not published")
	}

	// --- Store ---
	store := repositories.NewRetryingStore(
		repositories.NewGormStore(db),
		retry.WithMaxAttempts(cfg.BorrowMaxAttempts),
		retry.WithOnRetry(func(attempt int, err error) {
			a.metrics.RecordRetry()
			log.Printf("Retrying transaction (attempt %d): %v", attempt+1, err)
		}),
	)

	// --- Services ---
	authService := services.NewAuthService(store.Users(), blacklist, cfg.JWTSecret, cfg.JWTTTL)
	borrowingService := services.NewBorrowingService(store,
		services.WithLoanPeriodDays(cfg.LoanPeriodDays),
		services.WithMaxActiveBorrowings(cfg.MaxActiveBorrowings),
		services.WithEventPublisher(publisher),
		services.WithMetrics(a.metrics),
	)
	overdueService := services.NewOverdueService(store, services.SystemClock, a.metrics)
	bookService := services.NewBookService(store)
	userService := services.NewUserService(store)

	if cfg.BootstrapLibrarianEmail != "" {
		err := authService.EnsureLibrarian(context.Background(), "Librarian", cfg.BootstrapLibrarianEmail, cfg.BootstrapLibrarianPassword)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to seed librarian: %w", err)
		}
	}

	// --- Fiber App ---
	app := fiber.New(fiber.Config{
		AppName:     "library",
		JSONEncoder: jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
		JSONDecoder: jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
	})
	app.Use(logger.New())
	app.Use(a.metrics.Middleware())

	app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	handlers.NewHealthHandler(a.healthChecks()).RegisterRoutes(app)

	apiV1 := app.Group("/api/v1")

	// Authentication routes (public)
	handlers.NewAuthHandler(authService).RegisterRoutes(apiV1)

	// Protected routes (require JWT authentication)
	protected := apiV1.Group("", middleware.AuthRequired(authService))
	handlers.NewUserHandler(userService).RegisterRoutes(protected)
	handlers.NewBookHandler(bookService, handlers.StreamConfig{Interval: cfg.AvailabilityStreamInterval}, a.metrics).RegisterRoutes(protected)
	handlers.NewBorrowingHandler(borrowingService, overdueService).RegisterRoutes(protected)

	a.app = app
	return a, nil
}

func (a *application) healthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	if a.mq != nil {
		checks["rabbitmq"] = func(context.Context) error {
			return a.mq.Ping()
		}
	}
	return checks
}

// Close releases every connection the application opened.
func (a *application) Close() {
	if a.mq != nil {
		if err := a.mq.Close(); err != nil {
			log.Printf("Error closing RabbitMQ client: %v", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// handleBorrowingEvent logs borrowing lifecycle events from the queue.
func handleBorrowingEvent(msg amqp.Delivery) error {
	var event services.BorrowingEvent
	if err := jsoniter.Unmarshal(msg.Body, &event); err != nil {
		return fmt.Errorf("failed to decode borrowing event: %w", err)
	}
	log.Printf("Received %s event: borrowing %s, user %s, book %s, due %s",
		msg.RoutingKey, event.BorrowingID, event.UserID, event.BookID, event.DueDate.Format("2006-01-02"))
	return nil
}
