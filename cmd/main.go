package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/database/minio"
	"settlement-service/internal/database/postgres"
	redisdb "settlement-service/internal/database/redis"
	"settlement-service/internal/event"
	"settlement-service/internal/evidence"
	"settlement-service/internal/gateway"
	"settlement-service/internal/handlers"
	"settlement-service/internal/repository"
	"settlement-service/internal/settlement"
	"settlement-service/internal/worker"

	"github.com/gofiber/fiber/v3"
)

func setupLogging() (*os.File, error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Recovered from panic: %v\n", r)
		}
	}()

	logDir := filepath.Join("/settlement", "log", "settlement_service")
	fmt.Println("Log directory:", logDir)
	err := os.MkdirAll(logDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	cfg := config.New()

	db, err := postgres.ConnectAndCreateDB(cfg.PostgresCfg)
	if err != nil {
		log.Printf("error connecting to database: %s", err)
		go postgres.RetryConnectOnFailed(30*time.Second, &db, cfg.PostgresCfg)
	}

	redisClient, err := redisdb.NewRedisClient(cfg.RedisCfg.Host, cfg.RedisCfg.Port, cfg.RedisCfg.Password, cfg.RedisCfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	minioClient, err := minio.NewClient(cfg.MinioCfg)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}
	defer minioClient.Close()

	rabbitConn, err := event.ConnectRabbitMQ(cfg.RabbitMQCfg)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitConn.Close()

	// Repositories and the settlement ledger
	policyRepo := repository.NewPolicyRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	ledger := repository.NewSettlementLedger(db, policyRepo, assessmentRepo, payoutRepo)

	locker := redisdb.NewPolicyLocker(redisClient, 30*time.Second)
	archiver := evidence.NewArchiver(minioClient)
	gatewayClient := gateway.NewClient(cfg.GatewayCfg)

	publisher, err := event.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("Failed to setup queue publisher: %v", err)
	}

	orchestrator := settlement.NewOrchestrator(ledger, locker, archiver, publisher, cfg.Currency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	damageConsumer := event.NewDamageConsumer(rabbitConn, orchestrator)
	if err := damageConsumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start damage calculation consumer: %v", err)
	}

	disbursementConsumer := event.NewDisbursementConsumer(rabbitConn, payoutRepo, gatewayClient)
	if err := disbursementConsumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start disbursement consumer: %v", err)
	}

	reconciler := worker.NewReconciler(payoutRepo, gatewayClient, publisher)
	reconciler.Start(ctx)

	app := fiber.New()
	app.Get("/checkhealth", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("Settlement service is healthy")
	})

	settlementHandler := handlers.NewSettlementHandler(orchestrator, publisher, policyRepo, assessmentRepo, payoutRepo)
	settlementHandler.Register(app)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := app.Listen(fmt.Sprintf("0.0.0.0:%s", cfg.Port)); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutting down server...")
	cancel()
	if err := app.Shutdown(); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
}
