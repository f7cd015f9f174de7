package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/api"
	"greendrake/marketdesk/internal/cache"
	"greendrake/marketdesk/internal/captcha"
	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/db"
	"greendrake/marketdesk/internal/email"
	"greendrake/marketdesk/internal/logger"
	"greendrake/marketdesk/internal/presence"
	"greendrake/marketdesk/internal/seed"
	"greendrake/marketdesk/internal/services"
	"greendrake/marketdesk/internal/storage"
	"greendrake/marketdesk/internal/tasks"
)

var (
	runMode   = flag.StringP("mode", "m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default), 'migrate', 'seed'")
	seedCount = flag.Int("seed-listings", 25, "Number of demo listings created in seed mode")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.MustSetupLogger(&logger.Config{
		Level:      cfg.LogLevel,
		FormatJSON: cfg.LogFormatJSON,
		Rotation: logger.Rotation{
			File:       cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
		},
	})
	defer func() { _ = log.Sync() }()

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient, log); err != nil {
			log.Error("Error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	if cfg.RunMode == "migrate" || cfg.MigrateOnStart {
		if err := db.Migrate(mongoClient, cfg.MongoDbName, log); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		if cfg.RunMode == "migrate" {
			return
		}
	}

	if cfg.RunMode == "seed" {
		if err := seed.Run(context.Background(), mongoDb, *seedCount, log); err != nil {
			log.Fatal("Seeding failed", zap.Error(err))
		}
		return
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient, log); err != nil {
			log.Error("Error disconnecting from Redis", zap.Error(err))
		}
	}()

	var objects storage.IObjectStorage = storage.Disabled{}
	if cfg.AwsS3Bucket != "" {
		if objects, err = storage.NewS3Storage(cfg, log.Named("storage")); err != nil {
			log.Fatal("Failed to initialize S3 storage", zap.Error(err))
		}
	} else {
		log.Warn("AWS_S3_BUCKET not set, attachments are disabled")
	}

	// Primary transport, then the optional file fallback.
	transports := email.NewFallbackSender(log.Named("email"))
	if cfg.MockServices {
		log.Info("MOCK_SERVICES enabled, capturing email in Redis")
		transports.Add("redis", email.NewRedisSender(redisClient, cfg.SmtpFromAddress, log))
	} else {
		transports.Add("smtp", email.NewSMTPSender(cfg, log))
	}
	if cfg.EmailFallbackFile != "" {
		fileSender, err := email.NewFileEmailSender(cfg.EmailFallbackFile)
		if err != nil {
			log.Warn("File email fallback unavailable", zap.String("path", cfg.EmailFallbackFile), zap.Error(err))
		} else {
			transports.Add("file", fileSender)
		}
	}
	log.Info("Notification transports", zap.Strings("providers", transports.Providers()))

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()

	templateService, err := services.NewEmailTemplateService(mongoDb)
	if err != nil {
		log.Fatal("Failed to load notification templates", zap.Error(err))
	}
	userService := services.NewUserService(mongoDb)
	notificationService := services.NewNotificationService(mongoDb, cfg, userService, templateService,
		tasks.NewNotificationScheduler(taskClient), log.Named("notifications"))

	hub := presence.NewHub(log.Named("presence"))
	listingService := services.NewListingService(mongoDb, cfg)
	threadStore := services.NewThreadStore(mongoDb)
	messageLog := services.NewMessageLog(mongoDb)
	fanout := services.NewDeliveryFanout(messageLog, threadStore, hub, log.Named("fanout"))
	inquiryService := services.NewInquiryService(cfg, listingService, threadStore, messageLog, fanout, notificationService, log.Named("inquiry"))
	moderationService := services.NewModerationService(mongoDb, cfg, listingService, notificationService, objects, log.Named("moderation"))

	taskProcessor := tasks.NewTaskProcessor(cfg, transports, notificationService, log.Named("tasks"))

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(redisClient, shutdownChan, log),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Service API listening", zap.String("port", cfg.ServiceApiPort))
		if err := serviceSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Service API ListenAndServe error", zap.Error(err))
		}
	}()

	var (
		mainApiSrv        *http.Server
		backgroundTaskSrv *asynq.Server
		scheduler         *asynq.Scheduler
	)

	log.Info("Starting application", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		router := api.SetupRouter(cfg, api.Services{
			Listings:      listingService,
			Moderation:    moderationService,
			Inquiries:     inquiryService,
			Notifications: notificationService,
			Objects:       objects,
			Presence:      hub,
			Captcha:       captcha.NewTurnstileVerifier(cfg, log),
		}, log)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("Main API listening", zap.String("port", cfg.ApiPort))
			if err := mainApiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("Main API ListenAndServe error", zap.Error(err))
			}
		}()
	}

	bgMode := func() {
		srv, mux := tasks.SetupServer(redisClient, taskProcessor, log.Named("asynq"))
		backgroundTaskSrv = srv
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(mux); err != nil {
				log.Fatal("Background task server error", zap.Error(err))
			}
		}()

		if scheduler, err = tasks.SetupScheduler(redisClient, log.Named("scheduler")); err != nil {
			log.Fatal("Failed to set up task scheduler", zap.Error(err))
		}
		if err := scheduler.Start(); err != nil {
			log.Fatal("Failed to start task scheduler", zap.Error(err))
		}
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatal("Invalid run mode", zap.String("mode", cfg.RunMode))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case <-shutdownChan:
		log.Info("Shutdown requested via service API")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Error("Service API shutdown error", zap.Error(err))
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Error("Main API shutdown error", zap.Error(err))
		}
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}

	wg.Wait()
	log.Info("Server gracefully stopped")
}
