package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	accountcmd "github.com/studyhub/account-service/internal/command"
	"github.com/studyhub/account-service/internal/config"
	"github.com/studyhub/account-service/internal/handler"
	"github.com/studyhub/account-service/internal/logging"
	"github.com/studyhub/account-service/internal/metrics"
	accountqry "github.com/studyhub/account-service/internal/query"
	"github.com/studyhub/account-service/internal/repository"
	"github.com/studyhub/account-service/shared/cqrs"
	"github.com/studyhub/account-service/shared/events"
	"github.com/studyhub/account-service/shared/middleware"
	redisClient "github.com/studyhub/account-service/shared/redis"
)

const shutdownTimeout = 10 * time.Second

var (
	app = kingpin.New("account-service", "Account registration, authentication and role management.")

	envFile = app.Flag("env-file", "Optional .env file to seed the environment from.").
		Envar("ENV_FILE").Default(".env").String()

	serveCmd   = app.Command("serve", "Run migrations and serve the HTTP API.").Default()
	migrateCmd = app.Command("migrate", "Apply database migrations and exit.")

	grantCmd      = app.Command("grant-moderator", "Give an existing account the moderator role.")
	grantUsername = grantCmd.Arg("username", "Account to promote.").Required().String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*envFile)
	kingpin.FatalIfError(err, "Unable to load configuration.")

	logger, err := logging.New(logging.Options{
		GlobalPath:  cfg.Log.Global,
		SummaryPath: cfg.Log.Summary,
		Level:       cfg.Log.Level,
	})
	kingpin.FatalIfError(err, "Unable to set up logging.")
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case serveCmd.FullCommand():
		err = serve(ctx, cfg, logger.Logger)
	case migrateCmd.FullCommand():
		err = migrate(ctx, cfg, logger.Logger)
	case grantCmd.FullCommand():
		err = grantModerator(ctx, cfg, logger.Logger, *grantUsername)
	}
	if err != nil {
		logger.WithError(err).Error("command failed")
		logger.Close()
		os.Exit(1)
	}
}

// openDatabase connects to the write store and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := repository.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("migrations applied")
	return nil
}

// services wires the CQRS stack shared by serve and grant-moderator.
func services(db *sql.DB, redis *redisClient.Client, cfg *config.Config, logger *logrus.Logger) (*accountcmd.AccountCommandService, *accountqry.AccountQueryService) {
	publisher := events.NewPublisher(redis.Client)

	writeRepo := repository.NewAccountWriteRepository(db)
	readRepo := repository.NewAccountReadRepository(db, redis.Client, cfg.TokenCacheTTL, logger)

	querySvc := accountqry.NewAccountQueryService(readRepo, logger)
	commandSvc := accountcmd.NewAccountCommandService(writeRepo, readRepo, publisher, querySvc, logger)
	return commandSvc, querySvc
}

func grantModerator(ctx context.Context, cfg *config.Config, logger *logrus.Logger, username string) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redis, err := redisClient.NewClient(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer redis.Close()

	commandSvc, _ := services(db, redis, cfg, logger)
	view, err := commandSvc.GrantModerator(ctx, cqrs.GrantModeratorCommand{Username: username})
	if err != nil {
		return fmt.Errorf("failed to grant moderator to %q: %w", username, err)
	}
	logger.WithFields(logrus.Fields{"account_id": view.ID, "username": view.Username}).Info("moderator granted")
	return nil
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis connection (read model store + event streaming)
	redis, err := redisClient.NewClient(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer redis.Close()

	commandSvc, querySvc := services(db, redis, cfg, logger)
	accountHandler := handler.NewAccountHandler(commandSvc, querySvc, logger)

	gin.SetMode(cfg.GinMode())
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logger), metrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	limiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)
	handler.SetupRoutes(router, cfg.APIPrefix(), accountHandler, limiter)

	subscriberCtx, cancelSubscriber := context.WithCancel(ctx)
	defer cancelSubscriber()
	go func() {
		hostname, _ := os.Hostname()
		subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    cfg.AppName + "-audit",
			Consumer: "audit-" + hostname,
			Stream:   events.AccountEventsStream,
			Handler:  commandSvc.HandleAccountEvent,
			Logger:   logger,
		})
		if err := subscriber.Start(subscriberCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("audit subscriber stopped")
		}
	}()

	srv := &http.Server{
		Addr:    cfg.WebAddr(),
		Handler: router,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":        cfg.WebAddr(),
			"prefix":      cfg.APIPrefix(),
			"environment": cfg.Environment,
			"gin_mode":    gin.Mode(),
		}).Info("account service starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancelSubscriber()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
