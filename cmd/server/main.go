package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/cashdesk/cashdesk-backend/config"
	"github.com/cashdesk/cashdesk-backend/internal/adapter/audit"
	"github.com/cashdesk/cashdesk-backend/internal/adapter/httpapi"
	"github.com/cashdesk/cashdesk-backend/internal/adapter/notify"
	"github.com/cashdesk/cashdesk-backend/internal/adapter/repository/postgres"
	"github.com/cashdesk/cashdesk-backend/internal/clock"
	"github.com/cashdesk/cashdesk-backend/internal/domain"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/allocator"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/autocancel"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/deadline"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/escalation"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/inventory"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/issues"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/monitor"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/requests"
	"github.com/cashdesk/cashdesk-backend/internal/usecase/seeder"
)

func main() {
	// .env is optional; container environments inject vars directly
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// 1. Database
	db, err := postgres.NewDB(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure database schema")
	}

	// 2. Repositories
	requestRepo := postgres.NewRequestRepository(db)
	inventoryRepo := postgres.NewInventoryRepository(db)
	issueRepo := postgres.NewIssueRepository(db)

	// 3. Seed the stock grid
	inventorySeeder := seeder.NewInventorySeeder(inventoryRepo)
	if err := inventorySeeder.Seed(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to seed inventory")
	}
	log.Info().Msg("inventory stock grid seeded")

	// 4. Use cases
	clk := clock.NewSystem()
	auditSink := audit.NewLogger(log)
	hub := notify.NewHub(log.With().Str("component", "notify").Logger())

	calc := deadline.NewCalculator(cfg.Deadline.Hour, cfg.Deadline.Minute)
	stockAllocator := allocator.New(inventoryRepo, seriesPriority(cfg.Inventory.SeriesPriority))

	requestService := requests.NewService(requestRepo, stockAllocator, calc, auditSink, clk,
		log.With().Str("component", "requests").Logger())
	inventoryService := inventory.NewService(inventoryRepo, lowStockThresholds(cfg.Inventory.LowStockThresholds), auditSink,
		log.With().Str("component", "inventory").Logger())
	issueService := issues.NewService(issueRepo, auditSink, clk,
		log.With().Str("component", "issues").Logger())

	tracker := escalation.New(cfg.Monitoring.WarningStages, hub, auditSink, clk)
	engine := autocancel.New(requestRepo, stockAllocator, calc, hub, auditSink, clk,
		log.With().Str("component", "autocancel").Logger())

	scheduler := monitor.New(
		monitor.Config{
			CheckInterval: time.Duration(cfg.Monitoring.CheckIntervalSeconds) * time.Second,
			PulseInterval: time.Duration(cfg.Monitoring.PulseIntervalSeconds) * time.Second,
		},
		requestRepo, calc, tracker, engine, hub, auditSink, clk,
		log.With().Str("component", "monitor").Logger(),
	)
	scheduler.Start()

	// 5. HTTP server
	router := httpapi.SetupRouter(requestService, inventoryService, issueService, scheduler, hub)
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	waitForShutdown(server, scheduler, log)
}

// waitForShutdown waits for SIGTERM or SIGINT, then stops the scheduler and
// drains the HTTP server
func waitForShutdown(server *http.Server, scheduler *monitor.Scheduler, log zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("server stopped")
}

func seriesPriority(names []string) []domain.NoteSeries {
	priority := make([]domain.NoteSeries, 0, len(names))
	for _, name := range names {
		priority = append(priority, domain.NoteSeries(name))
	}
	return priority
}

func lowStockThresholds(raw map[string]int) map[domain.Denomination]int {
	if len(raw) == 0 {
		return nil
	}
	thresholds := make(map[domain.Denomination]int, len(raw))
	for _, denomination := range domain.Denominations {
		if v, ok := raw[strconv.Itoa(int(denomination))]; ok {
			thresholds[denomination] = v
		}
	}
	return thresholds
}
