package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CourseGate/app/controllers"
	"github.com/ManuelReschke/CourseGate/app/repository"
	"github.com/ManuelReschke/CourseGate/internal/pkg/cache"
	"github.com/ManuelReschke/CourseGate/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseGate/internal/pkg/clock"
	"github.com/ManuelReschke/CourseGate/internal/pkg/database"
	"github.com/ManuelReschke/CourseGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseGate/internal/pkg/env"
	"github.com/ManuelReschke/CourseGate/internal/pkg/events"
	"github.com/ManuelReschke/CourseGate/internal/pkg/ledger"
	"github.com/ManuelReschke/CourseGate/internal/pkg/mail"
	"github.com/ManuelReschke/CourseGate/internal/pkg/payments"
	"github.com/ManuelReschke/CourseGate/internal/pkg/ratelimit"
	"github.com/ManuelReschke/CourseGate/internal/pkg/reminder"
	"github.com/ManuelReschke/CourseGate/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		shutdown()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

// NewApplication wires storage, services and routes. The returned function
// stops background work.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()
	clk := clock.System()

	publisher := newPublisher()
	engine := entitlements.NewEngine(repos.Purchase, repos.Combo, clk)
	ledgerSvc := ledger.NewService(repos, publisher, clk)
	cacheStore := cache.Default()

	controllers.Configure(&controllers.Services{
		Ledger:        ledgerSvc,
		Engine:        engine,
		Pricer:        catalog.NewCachedResolver(catalog.NewResolver(repos.Combo, repos.Course), repos.Combo, cacheStore),
		Payments:      payments.NewService(repos, ledgerSvc),
		WebhookSecret: env.GetEnv("PAYMENT_WEBHOOK_SECRET", ""),
	})

	scheduler := newReminderScheduler(repos, engine, cacheStore, publisher)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "CourseGate",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if path := findProjectFile("public/docs/v1/openapi.yml"); path != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: path,
			Path:     "v1",
		}))
	} else {
		log.Println("openapi.yml not found, API docs disabled")
	}

	// ROUTER
	router.InstallRouter(app, router.NewApiRouter(
		repos.User,
		ratelimit.NewStorage(),
		env.GetEnvInt("API_RATE_LIMIT_PER_MINUTE", 120),
	))

	if scheduler != nil {
		scheduler.Start()
	}

	return app, func() {
		if scheduler != nil {
			scheduler.Stop()
		}
		if err := publisher.Close(); err != nil {
			log.Printf("Closing event publisher: %v", err)
		}
	}
}

func newPublisher() events.Publisher {
	url := env.GetEnv("AMQP_URL", "")
	if url == "" {
		log.Println("AMQP_URL not set, domain events are discarded")
		return events.Noop{}
	}
	p, err := events.NewAMQPPublisher(url, env.GetEnv("AMQP_EXCHANGE", events.DefaultExchangeName))
	if err != nil {
		log.Printf("Warning: Could not connect to message broker: %v", err)
		return events.Noop{}
	}
	return p
}

func newReminderScheduler(repos *repository.Repositories, engine *entitlements.Engine, dedup reminder.Deduper, publisher events.Publisher) *reminder.Scheduler {
	mailer := mail.NewSMTPMailer(mail.ConfigFromEnv())
	if !mailer.Enabled() {
		log.Println("SMTP_HOST not set, renewal reminders disabled")
		return nil
	}
	job := reminder.NewJob(repos, engine, dedup, mailer, publisher)
	scheduler, err := reminder.NewScheduler(job, env.GetEnv("REMINDER_CRON", reminder.DefaultSchedule))
	if err != nil {
		log.Fatalf("Invalid REMINDER_CRON: %v", err)
	}
	return scheduler
}

func findProjectFile(rel string) string {
	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/coursegate to project root
		"../../../", // Fallback
	}
	for _, base := range basePaths {
		if _, err := os.Stat(base + rel); err == nil {
			return base + rel
		}
	}
	return ""
}
