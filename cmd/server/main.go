package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	_ "github.com/lib/pq"

	"github.com/ash-vash90/production-companion/internal/automation"
	"github.com/ash-vash90/production-companion/internal/config"
	"github.com/ash-vash90/production-companion/internal/logger"
	"github.com/ash-vash90/production-companion/internal/query"
	"github.com/ash-vash90/production-companion/internal/store"
	"github.com/ash-vash90/production-companion/internal/workorders"
)

type stores struct {
	webhooks   store.WebhookStore
	rules      store.RuleStore
	workOrders store.WorkOrderStore
	items      store.ItemStore
	profiles   store.ProfileStore
	reports    store.ReportStore
	activity   store.ActivityStore
	deliveries store.DeliveryStore
}

type Server struct {
	cfg *config.Config
	db  *sql.DB // nil when running on in-memory stores

	stores  stores
	manager *automation.Manager
	engine  *automation.Engine
	harness *automation.Harness
	service *workorders.Service
	feed    query.ChangeFeed

	router *chi.Mux
}

func NewServer(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		s.db = db

		s.stores = stores{
			webhooks:   store.NewPostgresWebhookStore(db),
			rules:      store.NewPostgresRuleStore(db),
			workOrders: store.NewPostgresWorkOrderStore(db),
			items:      store.NewPostgresItemStore(db),
			profiles:   store.NewPostgresProfileStore(db),
			reports:    store.NewPostgresReportStore(db),
			activity:   store.NewPostgresActivityStore(db),
			deliveries: store.NewPostgresDeliveryStore(db),
		}

		feed, err := query.NewPGFeed(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to start change feed: %w", err)
		}
		s.feed = feed
	} else {
		logger.Warn("no database configured, running on in-memory stores")
		s.stores = stores{
			webhooks:   store.NewMemoryWebhookStore(),
			rules:      store.NewMemoryRuleStore(),
			workOrders: store.NewMemoryWorkOrderStore(),
			items:      store.NewMemoryItemStore(),
			profiles:   store.NewMemoryProfileStore(),
			reports:    store.NewMemoryReportStore(),
			activity:   store.NewMemoryActivityStore(),
			deliveries: store.NewMemoryDeliveryStore(),
		}
		s.feed = query.NewMemoryFeed()
	}

	manager, err := automation.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create expression manager: %w", err)
	}
	s.manager = manager
	s.engine = automation.NewEngine(manager)

	backend := store.NewBackend(s.stores.workOrders, s.stores.items, s.stores.activity)
	dispatcher := automation.NewBackendDispatcher(backend, cfg.Automation.OutboundTimeout)
	s.harness = automation.NewHarness(
		store.NewRuleSource(s.stores.rules),
		store.NewDeliverySink(s.stores.deliveries),
		s.engine,
		dispatcher,
	)

	if err := s.compileAllExpressions(context.Background()); err != nil {
		return nil, err
	}

	s.service = workorders.NewService(
		s.stores.workOrders, s.stores.items, s.stores.profiles, s.stores.reports,
		s.feed, workorders.Config{
			RetryCount:      cfg.Query.RetryCount,
			RetryDelay:      cfg.Query.RetryDelay,
			Timeout:         cfg.Query.Timeout,
			Debounce:        cfg.Query.Debounce,
			PageSize:        cfg.Query.PageSize,
			MaxQueries:      cfg.Query.MaxQueries,
			BreakerFailures: cfg.Query.BreakerFailures,
			BreakerCooldown: cfg.Query.BreakerCooldown,
		})

	s.setupRoutes()
	return s, nil
}

// compileAllExpressions warms the expression manager with every stored
// rule so ingestion never compiles on the hot path.
func (s *Server) compileAllExpressions(ctx context.Context) error {
	webhooks, err := s.stores.webhooks.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}
	for _, webhook := range webhooks {
		rules, err := s.stores.rules.ListByWebhook(ctx, webhook.ID)
		if err != nil {
			return fmt.Errorf("failed to list rules for webhook %s: %w", webhook.ID, err)
		}
		if err := s.manager.CompileRules(rules); err != nil {
			return fmt.Errorf("failed to compile rules for webhook %s: %w", webhook.ID, err)
		}
	}
	logger.Info("compiled rule expressions", "webhooks", len(webhooks))
	return nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	// Inbound payload ingestion. Authenticated by webhook token, not by a
	// user session.
	r.Post("/api/v1/hooks/{webhookID}", s.handleIngest)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Get("/", s.handleListWebhooks)
		r.Post("/", s.handleCreateWebhook)

		r.Route("/{webhookID}", func(r chi.Router) {
			r.Get("/", s.handleGetWebhook)
			r.Put("/", s.handleUpdateWebhook)
			r.Delete("/", s.handleDeleteWebhook)

			r.Post("/test", s.handleTestWebhook)
			r.Get("/deliveries", s.handleListDeliveries)

			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules", s.handleListRules)
		})
	})

	r.Route("/api/v1/rules/{ruleID}", func(r chi.Router) {
		r.Get("/", s.handleGetRule)
		r.Put("/", s.handleUpdateRule)
		r.Delete("/", s.handleDeleteRule)
		r.Post("/enabled", s.handleSetRuleEnabled)
	})

	r.Get("/api/v1/work-orders", s.handleListWorkOrders)
	r.Get("/api/v1/reports", s.handleListReports)
	r.Get("/api/v1/activity", s.handleListActivity)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Close releases the server's long-lived resources.
func (s *Server) Close() {
	s.service.Close()
	if feed, ok := s.feed.(*query.PGFeed); ok {
		if err := feed.Close(); err != nil {
			logger.Warn("failed to close change feed", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	if cfg.Logging.Level != "" {
		if level, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		}
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
