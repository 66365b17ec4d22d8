package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/lipsync/internal/auth"
	"github.com/makeasinger/lipsync/internal/client"
	"github.com/makeasinger/lipsync/internal/config"
	"github.com/makeasinger/lipsync/internal/handler"
	"github.com/makeasinger/lipsync/internal/logger"
	"github.com/makeasinger/lipsync/internal/middleware"
	"github.com/makeasinger/lipsync/internal/observability"
	"github.com/makeasinger/lipsync/internal/server"
	"github.com/makeasinger/lipsync/internal/service"
	"github.com/makeasinger/lipsync/internal/store"
	ws "github.com/makeasinger/lipsync/internal/websocket"
	"github.com/makeasinger/lipsync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitOTel(ctx, log, cfg.OTel, cfg.Server.Env)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("otel shutdown failed", "error", err)
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	redisUp := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisUp = false
		log.Warn("redis not available", "addr", cfg.Redis.Addr, "error", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	// External clients
	lipsyncClient := client.NewLipsyncClient(&cfg.Lipsync, log)
	captionsClient := client.NewCaptionsClient(&cfg.Captions, log)
	mailer := client.NewSendGridClient(&cfg.SendGrid, log)
	if !lipsyncClient.IsConfigured() {
		log.Warn("lipsync renderer not configured, intake will fail")
	}
	if !captionsClient.IsConfigured() {
		log.Warn("captions renderer not configured, chaining will fail")
	}
	if !mailer.IsConfigured() {
		log.Warn("sendgrid not configured, notifications will fail")
	}

	opts := []service.Option{service.WithBroadcaster(hub)}
	r2Client, err := client.NewR2Client(&cfg.R2)
	if err != nil {
		log.Info("R2 not configured, sources must be URLs", "reason", err)
	} else {
		opts = append(opts, service.WithPresigner(r2Client))
	}
	if cfg.Pipeline.AsyncSideEffects {
		opts = append(opts, service.WithQueue(asynqClient))
	}

	pipeline := service.NewPipelineService(
		store.NewJobStore(redisClient),
		lipsyncClient,
		captionsClient,
		mailer,
		log,
		service.PipelineConfig{
			PublicURL:      cfg.Server.PublicURL,
			NotifySubject:  cfg.Pipeline.NotifySubject,
			ChainMaxRetry:  cfg.Pipeline.ChainMaxRetry,
			NotifyMaxRetry: cfg.Pipeline.NotifyMaxRetry,
			PresignTTL:     time.Duration(cfg.R2.PresignTTL) * time.Minute,
		},
		opts...,
	)

	// Auth: gateway headers, Zitadel JWKS with legacy fallback, or legacy only
	var verifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		v, err := auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Warn("JWKS verifier unavailable, using legacy tokens only", "error", err)
		} else {
			verifier = v
			defer v.Close()
		}
	}

	var authenticate fiber.Handler
	switch {
	case cfg.Gateway.Enabled:
		authenticate = middleware.GatewayAuthMiddleware()
	case verifier != nil:
		authenticate = middleware.NewAuthMiddlewareWithFallback(verifier, cfg.JWT.Secret).Authenticate()
	default:
		authenticate = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}

	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	app := server.NewApp(server.Deps{
		Log:            log,
		Authenticate:   authenticate,
		JobsRateLimit:  rateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour),
		Jobs:           handler.NewJobHandler(pipeline, validate, log),
		Webhooks:       handler.NewWebhookHandler(pipeline, validate, log),
		Auth:           handler.NewAuthHandler(verifier, cfg.JWT.Secret),
		Hub:            hub,
		LipsyncSecret:  cfg.Lipsync.WebhookSecret,
		CaptionsSecret: cfg.Captions.WebhookSecret,
		Services: map[string]bool{
			"redis":    redisUp,
			"lipsync":  lipsyncClient.IsConfigured(),
			"captions": captionsClient.IsConfigured(),
			"sendgrid": mailer.IsConfigured(),
			"r2":       r2Client != nil,
			"jwks":     verifier != nil,
			"gateway":  cfg.Gateway.Enabled,
		},
	})

	var workers *asynq.Server
	if cfg.Pipeline.AsyncSideEffects {
		workers = startWorkerServer(cfg, redisOpt, pipeline, log)
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "env", cfg.Server.Env, "asyncSideEffects", cfg.Pipeline.AsyncSideEffects)
	if err := app.Listen(addr); err != nil {
		log.Error("server error", "error", err)
	}

	if workers != nil {
		workers.Shutdown()
	}
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, pipeline *service.PipelineService, log *logger.Logger) *asynq.Server {
	concurrency := cfg.Pipeline.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			service.QueueChain:  6,
			service.QueueNotify: 4,
		},
		Logger:   log.With("component", "asynq").SugaredLogger,
		LogLevel: asynq.InfoLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeChain, worker.NewChainWorker(pipeline, log).ProcessTask)
	mux.HandleFunc(service.TaskTypeNotify, worker.NewNotifyWorker(pipeline, log).ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Error("asynq worker failed to start", "error", err)
		return nil
	}
	return srv
}
