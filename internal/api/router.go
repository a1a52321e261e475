package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/api/handlers"
	mw "github.com/Harshitk-cp/healthmem/internal/api/middleware"
	"github.com/Harshitk-cp/healthmem/internal/buildconfig"
	"github.com/Harshitk-cp/healthmem/internal/cache"
	"github.com/Harshitk-cp/healthmem/internal/config"
	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/Harshitk-cp/healthmem/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	metricsNamespace = "healthmem"
	healthTimeout    = 2 * time.Second
)

// Deps are the collaborators the HTTP app is built from.
type Deps struct {
	Backend    domain.MemoryBackend
	Summarizer domain.Summarizer
	// Pruner enables turn retention when RETENTION_DAYS is set.
	Pruner service.TurnPruner
	// Registry receives all collectors. A fresh one is created when nil.
	Registry *prometheus.Registry
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Cache     *cache.Cache
	Context   *service.ContextService
	Retention *service.RetentionService
	startTime time.Time
}

func NewApp(deps Deps, logger *zap.Logger) *App {
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := cache.New(cache.Config{
		Capacity:   config.CacheCapacity(),
		DefaultTTL: config.CacheDefaultTTL(),
	})
	reg.MustRegister(cache.NewCollector(c, metricsNamespace))

	// Services
	contextSvc := service.NewContextService(c,
		deps.Backend, deps.Backend, deps.Backend,
		deps.Summarizer, logger,
		service.WithContextTTL(config.ContextCacheTTL()),
		service.WithSearchTTL(config.SearchCacheTTL()),
		service.WithProviderTimeout(config.ProviderTimeout()),
		service.WithDefaultMaxContextLength(config.MaxContextLength()),
	)
	conversationSvc := service.NewConversationService(deps.Backend, contextSvc, logger)

	var retentionSvc *service.RetentionService
	if deps.Pruner != nil && config.RetentionDays() > 0 {
		retentionSvc = service.NewRetentionService(deps.Pruner, config.RetentionDays(), logger)
	}

	// Handlers
	contextHandler := handlers.NewContextHandler(contextSvc)
	conversationHandler := handlers.NewConversationHandler(conversationSvc)
	cacheHandler := handlers.NewCacheHandler(c, contextSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Cache:     c,
		Context:   contextSvc,
		Retention: retentionSvc,
		startTime: time.Now(),
	}

	metrics := mw.NewMetrics(reg, metricsNamespace)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", app.healthHandler(deps.Backend))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		r.Post("/context", contextHandler.Get)
		r.Post("/conversations", conversationHandler.Update)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", cacheHandler.Stats)
			r.Delete("/sessions/{userID}/{sessionID}", cacheHandler.InvalidateSession)
		})

		if idx, ok := deps.Backend.(domain.MemoryIndexer); ok {
			analysisHandler := handlers.NewAnalysisHandler(service.NewAnalysisRecorder(idx, contextSvc, logger))
			r.Post("/analyses", analysisHandler.Record)
		}

		if pw, ok := deps.Backend.(domain.ProfileWriter); ok {
			profileHandler := handlers.NewProfileHandler(pw, contextSvc)
			r.Route("/users/{userID}", func(r chi.Router) {
				r.Put("/preferences", profileHandler.PutPreferences)
				r.Put("/goals", profileHandler.PutGoals)
			})
		}
	})

	return app
}

// Start launches background services.
func (app *App) Start() {
	if app.Retention != nil {
		app.Retention.Start()
	}
}

// Stop halts background services.
func (app *App) Stop() {
	if app.Retention != nil {
		app.Retention.Stop()
	}
}

func (app *App) healthHandler(backend domain.MemoryBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":         "ok",
			"backend":        "ok",
			"uptime_seconds": time.Since(app.startTime).Seconds(),
			"cache":          app.Cache.Stats(),
		}
		for k, v := range buildconfig.VersionInfo() {
			resp[k] = v
		}

		status := http.StatusOK
		if backend == nil {
			resp["status"] = "error"
			resp["backend"] = "not configured"
			status = http.StatusServiceUnavailable
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := backend.Ping(ctx); err != nil {
				resp["status"] = "error"
				resp["backend"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
