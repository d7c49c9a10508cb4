package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wishlane/api/internal/app"
	"wishlane/api/internal/authpw"
	"wishlane/api/internal/browser"
	"wishlane/api/internal/config"
	"wishlane/api/internal/email"
	"wishlane/api/internal/images"
	"wishlane/api/internal/jobs"
	"wishlane/api/internal/llm"
	"wishlane/api/internal/parse"
	"wishlane/api/internal/session"
	"wishlane/api/internal/store"
	"wishlane/api/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Setup()
	log := slog.Default()

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	dataStore := store.NewPostgresStore(db)

	// Refresh sessions live in Redis when configured, postgres otherwise.
	var sessions authpw.SessionStore = dataStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		sessions = redisStore
		log.Info("using redis for refresh sessions")
	} else {
		log.Info("using postgres for refresh sessions")
	}

	var sender email.Sender
	switch strings.ToUpper(cfg.EmailService) {
	case "SES":
		sesSender, err := email.NewSESSender(ctx, cfg.AWSRegion, cfg.EmailFrom)
		if err != nil {
			log.Error("ses setup failed", "error", err)
			os.Exit(1)
		}
		sender = sesSender
	case "SMTP":
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		})
	default:
		log.Info("email delivery disabled")
	}
	mailer := email.NewService(sender)

	authSvc := authpw.NewService(dataStore, sessions, mailer,
		cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, cfg.FrontendURL)

	// Import pipeline: renderer, parser, image pipeline, job engine.
	renderer := browser.New(cfg.BrowserExecPath, log)
	defer renderer.Close()

	parser := parse.NewParser(llm.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel), log)

	var blobs images.BlobStore
	if cfg.ImageStore == "s3" {
		minioStore, err := images.NewMinioStore(ctx, images.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Error("object storage setup failed", "error", err)
			os.Exit(1)
		}
		blobs = minioStore
	}
	pipeline := images.NewPipeline(dataStore, blobs, log)

	engine := jobs.NewEngine(dataStore, log)
	runner := jobs.NewRunner(renderer, parser, pipeline, log)
	worker := jobs.NewWorker(dataStore, runner, log)
	reaper := jobs.NewReaper(dataStore, log)

	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	go worker.Start(jobCtx)
	go reaper.Start(jobCtx)

	service := app.NewService(dataStore, authSvc, engine, mailer, cfg.FrontendURL, log)
	service.SetImageLoader(pipeline)
	if redisSessions, ok := sessions.(*session.RedisStore); ok {
		service.AddReadinessCheck("redis", redisSessions.Ping)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("wishlane api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stopJobs()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
}
