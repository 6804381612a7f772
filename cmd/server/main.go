package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mimi/internal/ai"
	"mimi/internal/api"
	"mimi/internal/config"
	"mimi/internal/db"
	"mimi/internal/diagnostics"
	"mimi/internal/events"
	"mimi/internal/jobs"
	"mimi/internal/logging"
	"mimi/internal/media"
	"mimi/internal/metrics"
	"mimi/internal/repository"
	"mimi/internal/stt"
	"mimi/internal/transcribe"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.DefaultConfig())
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	if envErr != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.DefaultMetrics

	var conn *sql.DB
	var repo repository.JobRepository
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer conn.Close()
		repo = repository.NewPostgresRepository(conn)
		log.Info().Msg("Database and repository initialized successfully")
	} else {
		repo = repository.NewMemoryRepository()
		log.Warn().Msg("DATABASE_URL not set, jobs are kept in memory only")
	}

	provider, err := stt.NewProvider(ctx, cfg, logging.WithComponent("stt"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create STT provider")
	}
	log.Info().Str("provider", provider.Name()).Msg("STT provider initialized")

	segmenter := media.NewSegmenter(cfg.Media.FFmpegPath, cfg.Media.ScratchDir, logging.WithComponent("segmenter"))
	orchestrator := transcribe.New(segmenter, provider, transcribe.Options{
		SegmentSeconds:    cfg.Media.SegmentSeconds,
		ProcessTimeout:    cfg.Timeouts.Process,
		SegmentTimeout:    cfg.Timeouts.Transcribe,
		TranscoderTimeout: cfg.Timeouts.Segment,
	}, m, logging.WithComponent("transcribe"))

	chat := ai.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.OrgID, cfg.OpenAI.BaseURL)
	summarizer := ai.NewSummarizer(
		chat,
		ai.SummarizerOptions{Model: cfg.OpenAI.SummaryModel, Timeout: cfg.Timeouts.Summarize},
		logging.WithComponent("summarizer"),
	)

	publisher := events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.TopicJobs,
		Principal: cfg.Kafka.Principal,
	}, m, logging.WithComponent("events"))
	defer publisher.Close()

	manager := jobs.NewManager(repo, orchestrator, summarizer, publisher, m, jobs.Options{
		Model:           cfg.TranscriptionModel(),
		DefaultLanguage: cfg.STT.DefaultLanguage,
	}, logging.WithComponent("jobs"))

	checker := diagnostics.NewChecker(diagnostics.Tools{
		FFmpeg:     cfg.Media.FFmpegPath,
		FFprobe:    cfg.Media.FFprobePath,
		ScratchDir: cfg.Media.ScratchDir,
		Chat:       chat,
		ChatModel:  cfg.OpenAI.SummaryModel,
	})
	if report := checker.Run(ctx); !report.OK {
		log.Warn().Interface("checks", report.Checks).Msg("Startup diagnostics reported failures")
	}

	handler := api.NewHandler(manager, repo, checker, api.Options{
		UploadDir: cfg.Media.UploadDir,
		Limits: api.Limits{
			MaxUploadBytes: cfg.Media.MaxUploadBytes,
			Process:        cfg.Timeouts.Process,
			Transcribe:     cfg.Timeouts.Transcribe,
			Summarize:      cfg.Timeouts.Summarize,
		},
	}, logging.WithComponent("api"))

	r := gin.New()
	r.Use(gin.Recovery())

	// Add CORS middleware for browser and mobile clients
	r.Use(corsMiddleware())

	handler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// no write timeout: /api/process holds the connection for the whole run
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("MimiNote backend running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
}

// corsMiddleware adds CORS headers for browser and mobile clients
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
