package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tcgbazaar/escrow-backend/internal/config"
	"github.com/tcgbazaar/escrow-backend/internal/db"
	"github.com/tcgbazaar/escrow-backend/internal/goroutine"
	httpHandlers "github.com/tcgbazaar/escrow-backend/internal/http/handlers"
	httpRouter "github.com/tcgbazaar/escrow-backend/internal/http/router"
	"github.com/tcgbazaar/escrow-backend/internal/logger"
	"github.com/tcgbazaar/escrow-backend/internal/repository"
	"github.com/tcgbazaar/escrow-backend/internal/service"
	"github.com/tcgbazaar/escrow-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	transactionRepo := repository.NewTransactionRepository(dbConn)
	escrowRepo := repository.NewEscrowRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	releaseRepo := repository.NewReleaseRepository(dbConn)
	packageRepo := repository.NewPackageRepository(dbConn)
	revenueRepo := repository.NewRevenueRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	notificationService := service.NewNotificationService(notificationRepo)

	scorer := service.NewHeuristicRiskScorer(transactionRepo)
	escrowService := service.NewEscrowService(escrowRepo, transactionRepo, scorer, cfg.RiskThreshold)
	releaseService := service.NewReleaseService(releaseRepo, escrowRepo, cfg.ConfirmTokenTTL, cfg.ReleaseRetention)
	disputeService := service.NewDisputeService(disputeRepo, transactionRepo, escrowRepo, releaseService, cfg.DisputeResponseWindow)
	packageService := service.NewPackageService(packageRepo, transactionRepo, escrowRepo, releaseService)
	transactionService := service.NewTransactionService(transactionRepo, userRepo, escrowRepo, escrowRepo, disputeRepo, packageRepo, releaseService)
	revenueService := service.NewRevenueService(revenueRepo, cfg.SplitEligibleAfter)

	// Вебсокеты: события ядра дублируются в сохранённые уведомления.
	hub := ws.NewHub(ctx)
	hub.SetNotificationSaver(ws.NewNotificationServiceAdapter(notificationService))
	go hub.Run()

	escrowService.SetHub(hub)
	releaseService.SetHub(hub)
	disputeService.SetHub(hub)
	packageService.SetHub(hub)
	transactionService.SetHub(hub)
	revenueService.SetHub(hub)

	// Фоновые задачи: закрытие просроченных заявок и созревание долей.
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		releaseService.RunExpirySweeper(ctx, cfg.ExpirySweepInterval)
	})
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(cfg.ExpirySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := revenueService.SweepEligible(ctx); err != nil {
					logger.Log.WithError(err).Error("revenue eligibility sweep failed")
				}
			}
		}
	})

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	transactionHandler := httpHandlers.NewTransactionHandler(transactionService)
	escrowHandler := httpHandlers.NewEscrowHandler(escrowService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	releaseHandler := httpHandlers.NewReleaseHandler(releaseService)
	packageHandler := httpHandlers.NewPackageHandler(packageService)
	revenueHandler := httpHandlers.NewRevenueHandler(revenueService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, transactionHandler, escrowHandler, disputeHandler, releaseHandler, packageHandler, revenueHandler, notificationHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
