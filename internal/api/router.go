package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/dissent/internal/analyst"
	"github.com/Harshitk-cp/dissent/internal/api/handlers"
	mw "github.com/Harshitk-cp/dissent/internal/api/middleware"
	"github.com/Harshitk-cp/dissent/internal/artifact"
	"github.com/Harshitk-cp/dissent/internal/buildconfig"
	"github.com/Harshitk-cp/dissent/internal/config"
	"github.com/Harshitk-cp/dissent/internal/convergence"
	"github.com/Harshitk-cp/dissent/internal/domain"
	"github.com/Harshitk-cp/dissent/internal/llm"
	"github.com/Harshitk-cp/dissent/internal/metrics"
	"github.com/Harshitk-cp/dissent/internal/service"
	"github.com/Harshitk-cp/dissent/internal/store"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Analysis  *service.AnalysisService
	Replay    *service.ReplayService
	Retention *service.RetentionService
	Metrics   *metrics.Collector
}

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Analysis       *service.AnalysisService
	Replay         *service.ReplayService
	Store          *artifact.Store
	Recorder       domain.AnalysisRecorder
	Metrics        *metrics.Collector
	DB             *pgxpool.Pool
	ExportDir      string
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *zap.Logger
}

// NewApp wires the full application from configuration. db may be nil, in
// which case analyses are not mirrored to Postgres and /v1/stats is absent.
func NewApp(db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	artifacts, err := artifact.NewStore(config.ArtifactDir())
	if err != nil {
		return nil, err
	}

	provider := config.LLMProvider()
	llmClient, err := llm.NewClient(provider, config.LLMAPIKey(), config.LLMModel())
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	logger.Info("LLM client initialized", zap.String("provider", provider))

	panel, err := BuildPanel(llmClient, logger)
	if err != nil {
		return nil, err
	}

	var recorder domain.AnalysisRecorder
	if db != nil {
		recorder = store.NewAnalysisStore(db)
	}

	collector := metrics.New()
	engine := convergence.New(config.ConvergenceThresholds())
	analysisSvc := service.NewAnalysisService(panel, engine, artifacts, recorder, collector, logger, service.AnalysisOptions{
		Calibrate:         config.EnableCalibration(),
		CalibrationFactor: config.CalibrationFactor(),
	})
	replaySvc := service.NewReplayService(artifacts, config.ConvergenceThresholds(), collector, logger)

	var retention *service.RetentionService
	if days := config.RetentionDays(); days > 0 {
		retention = service.NewRetentionService(artifacts, days, logger)
	}

	router := NewRouter(Deps{
		Analysis:       analysisSvc,
		Replay:         replaySvc,
		Store:          artifacts,
		Recorder:       recorder,
		Metrics:        collector,
		DB:             db,
		ExportDir:      config.ExportDir(),
		APIKey:         config.APIKey(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
		Logger:         logger,
	})

	return &App{
		Router:    router,
		Analysis:  analysisSvc,
		Replay:    replaySvc,
		Retention: retention,
		Metrics:   collector,
	}, nil
}

// BuildPanel builds the configured analyst panel over client.
func BuildPanel(client domain.LLMClient, logger *zap.Logger) ([]domain.Analyst, error) {
	rps, burst := config.LLMRateLimit()
	opts := analyst.DefaultOptions()
	opts.Temperature = config.Temperature()
	opts.Timeout = config.AgentTimeout()
	opts.MaxAttempts = config.MaxRetries()
	opts.BackoffBase = config.BackoffBase()
	opts.BackoffMax = config.BackoffMax()
	return analyst.BuildPanel(analyst.PanelConfig{
		RolesFile: config.RolesFile(),
		Roles:     config.AgentRoles(),
		RateRPS:   rps,
		RateBurst: burst,
		Options:   opts,
	}, client, logger)
}

// NewRouter builds the HTTP surface over already constructed services.
func NewRouter(d Deps) *chi.Mux {
	events := handlers.NewEventHandler(d.Replay, d.Store, d.ExportDir)
	analyses := handlers.NewAnalysisHandler(d.Analysis)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics(d.Metrics))
	r.Use(mw.Logging(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(d.RateLimitRPS, d.RateLimitBurst))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(d.DB, d.Store))
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(d.APIKey))

		r.Post("/analyses", analyses.Create)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", events.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", events.Get)
				r.Post("/replay", events.Replay)
				r.Get("/validate", events.Validate)
				r.Post("/export", events.Export)
			})
		})

		r.Post("/replays/batch", events.BatchReplay)

		if d.Recorder != nil {
			r.Get("/stats", handlers.NewStatsHandler(d.Recorder).Get)
		}
	})

	return r
}

func healthHandler(db *pgxpool.Pool, artifacts *artifact.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := buildconfig.VersionInfo(convergence.EngineHash())
		status["status"] = "ok"
		code := http.StatusOK

		if _, err := os.Stat(artifacts.Root()); err != nil {
			status["status"], status["error"] = "error", "artifact directory unavailable"
			code = http.StatusServiceUnavailable
		} else if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				status["status"], status["error"] = "error", err.Error()
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.AnalysisRecorder = (*store.AnalysisStore)(nil)
	_ domain.Analyst          = (*analyst.Agent)(nil)
	_ domain.LLMClient        = (*llm.OpenAIClient)(nil)
	_ domain.LLMClient        = (*llm.AnthropicClient)(nil)
	_ domain.LLMClient        = (*llm.GeminiClient)(nil)
	_ domain.LLMClient        = (*llm.CerebrasClient)(nil)
	_ domain.LLMClient        = (*llm.MockClient)(nil)
	_ service.ArtifactPruner  = (*artifact.Store)(nil)
)
