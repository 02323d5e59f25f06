// Navai interview server: real-time multimodal technical interviews.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"

	"github.com/navai/interview-server/internal/api"
	"github.com/navai/interview-server/internal/brain"
	"github.com/navai/interview-server/internal/config"
	"github.com/navai/interview-server/internal/identity"
	"github.com/navai/interview-server/internal/middleware"
	"github.com/navai/interview-server/internal/session"
	"github.com/navai/interview-server/internal/speech"
	"github.com/navai/interview-server/internal/store"
	"github.com/navai/interview-server/internal/transcribe"
	"github.com/navai/interview-server/internal/vision"
)

// devPhrases feed the fake transcriber when no Deepgram key is set, so
// a local run still produces a conversation.
var devPhrases = []string{
	"I'm showing you the service dashboard I built last quarter.",
	"This part handles retries with exponential backoff.",
	"We moved the queue to a separate process to isolate failures.",
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	slog.Info("Starting interview server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize persistence.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	writer := store.NewAsyncWriter(repo, logger)

	// Capability wiring. Missing vendor keys degrade to fakes so the
	// whole pipeline still runs in development.
	transcriber := newTranscriber(cfg, logger)
	analyzer, generator := newBrain(cfg, logger)
	synthesizer := newSynthesizer(cfg)

	registry := session.NewRegistry()
	gateway := session.NewGateway(
		session.Deps{
			Transcriber: transcriber,
			Analyzer:    analyzer,
			Generator:   generator,
			Synthesizer: synthesizer,
			History:     writer,
			Logger:      logger,
		},
		session.GatewayConfig{
			AllowedOrigin:     cfg.FrontendURL,
			DevMode:           cfg.IsDevelopment(),
			KeepaliveInterval: cfg.KeepaliveInterval,
			Session: session.Options{
				VisionGate: vision.GateConfig{
					ChangeThreshold: cfg.VisionChangeThreshold,
					MinInterval:     cfg.VisionMinInterval,
				},
				GracePeriod:        cfg.ScreenShareGrace,
				TranscriberRetries: cfg.TranscriberRetries,
			},
		},
		registry,
		logger,
	)

	// HTTP surface.
	baseHandler := api.NewHandler(repo, cfg)
	interviewHandler := api.NewInterviewHandler(baseHandler, generator)
	healthHandler := api.NewHealthHandler(repo, registry)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(corsOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	interviewHandler.RegisterRoutes(r)
	r.Get("/ws/interview", gateway.ServeHTTP)

	// WriteTimeout stays 0: interview WebSocket connections are
	// long-lived and paced by the session keepalive.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RetentionDays > 0 {
		store.StartRetentionWorker(ctx, repo, cfg.RetentionDays)
		slog.Info("Retention worker started", "retention_days", cfg.RetentionDays)
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Sessions first so their final history writes reach the async
	// writer, then the writer so those writes reach the store.
	registry.CloseAll()
	writer.Close()

	slog.Info("Server stopped successfully")
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogPretty {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newTranscriber(cfg *config.Config, logger *slog.Logger) transcribe.Transcriber {
	if cfg.DeepgramAPIKey == "" {
		slog.Info("DEEPGRAM_API_KEY not set, using fake transcriber")
		return transcribe.NewFake(devPhrases, 0)
	}
	slog.Info("Transcriber ready", "model", cfg.DeepgramModel, "sample_rate", cfg.SampleRate)
	return transcribe.NewDeepgram(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.SampleRate, logger)
}

func newBrain(cfg *config.Config, logger *slog.Logger) (vision.Analyzer, brain.Generator) {
	if cfg.GroqAPIKey == "" {
		slog.Info("GROQ_API_KEY not set, using fake vision and question generation")
		return vision.NewFakeAnalyzer(), brain.NewFakeGenerator()
	}

	clientCfg := openai.DefaultConfig(cfg.GroqAPIKey)
	clientCfg.BaseURL = cfg.GroqBaseURL
	client := openai.NewClientWithConfig(clientCfg)

	slog.Info("LLM ready", "base_url", cfg.GroqBaseURL, "llm_model", cfg.LLMModel, "vision_model", cfg.VisionModel)
	return vision.NewGroqAnalyzer(client, cfg.VisionModel),
		brain.NewGroqGenerator(client, cfg.LLMModel, logger)
}

func newSynthesizer(cfg *config.Config) speech.Synthesizer {
	switch cfg.TTSProvider {
	case "elevenlabs":
		if cfg.ElevenLabsAPIKey == "" {
			slog.Info("ELEVENLABS_API_KEY not set, using fake speech synthesis")
			return speech.NewFake(4)
		}
		slog.Info("Speech synthesis ready", "provider", "elevenlabs", "voice", cfg.ElevenLabsVoice)
		return speech.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoice)
	default:
		if cfg.OpenAIAPIKey == "" {
			slog.Info("OPENAI_API_KEY not set, using fake speech synthesis")
			return speech.NewFake(4)
		}
		slog.Info("Speech synthesis ready", "provider", "openai", "voice", cfg.TTSVoice)
		return speech.NewOpenAI(openai.NewClient(cfg.OpenAIAPIKey), cfg.TTSVoice)
	}
}

func corsOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
