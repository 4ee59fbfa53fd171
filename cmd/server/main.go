package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/auth"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/classify"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/config"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/handlers"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/model"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/notify"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/ratelimit"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/reputation"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/server"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/sse"
	linktls "github.com/Rohithstu/FakeLinkBuster-Pro/internal/tls"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/ws"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("LINKBUSTER_CONFIG", "linkbuster.yaml"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL
	database, err := db.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	sm := auth.NewSessionManager(database, auth.SessionConfig{
		TTL:             cfg.Session.TTL,
		CleanupInterval: cfg.Session.CleanupInterval,
		Secure:          cfg.Production(),
	}, logger)
	authHandler := auth.NewHandler(database, sm, logger)

	// Scoring pipeline
	var openPhish *reputation.OpenPhish
	pipelineCfg := classify.DefaultPipelineConfig()
	pipelineCfg.ReputationTimeout = cfg.Reputation.Timeout
	pipelineCfg.ModelMinConfidence = cfg.Model.MinConfidence
	opts := []classify.Option{classify.WithConfig(pipelineCfg)}

	lookup := &reputation.Lookup{Logger: logger}
	if cfg.Reputation.SafeBrowsingKey != "" {
		lookup.SafeBrowsing = reputation.NewSafeBrowsing(cfg.Reputation.SafeBrowsingKey)
	} else {
		logger.Warn("safe browsing disabled: SAFE_BROWSING_API_KEY not set")
	}
	if cfg.Reputation.OpenPhish {
		openPhish = reputation.NewOpenPhish(cfg.Reputation.OpenPhishFeed, logger)
		lookup.OpenPhish = openPhish
	}
	if cfg.Reputation.Whois {
		lookup.Whois = reputation.NewWhoisAge(cfg.Reputation.Timeout)
	}
	if cfg.Reputation.DNS {
		lookup.Resolver = reputation.NewResolver(2 * time.Second)
	}
	opts = append(opts, classify.WithReputation(lookup))

	var adapter *model.Adapter
	if cfg.Model.Enabled {
		adapter = model.NewAdapter(cfg.Model.Path, logger)
		if err := adapter.Available(); err != nil {
			logger.Warn("classifier unavailable, scoring heuristics only", "path", cfg.Model.Path, "err", err)
		} else {
			logger.Info("classifier loaded", "path", cfg.Model.Path, "version", adapter.Artifact().Version)
		}
		opts = append(opts, classify.WithModel(adapter))
	}

	if cfg.Advisor.Enabled {
		if adv := classify.NewClaudeAdvisor(ctx, cfg.Advisor.Model, logger); adv != nil {
			opts = append(opts, classify.WithAdvisor(adv))
		}
	}

	pipeline := classify.NewPipeline(nil, logger, opts...)

	// Alerts
	var sinks []notify.Sink
	if cfg.SMTP.Host != "" {
		email, err := notify.NewEmailSink(notify.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			logger.Warn("email alerts disabled", "err", err)
		} else {
			sinks = append(sinks, email)
		}
	}
	if cfg.Alerts.WebhookURL != "" {
		hook, err := notify.NewWebhookSink(ctx, cfg.Alerts.WebhookURL, 5*time.Second)
		if err != nil {
			logger.Warn("webhook alerts disabled", "err", err)
		} else {
			sinks = append(sinks, hook)
		}
	}
	if len(sinks) == 0 {
		logger.Warn("no alert sinks configured, alerts are logged and audited locally")
	}
	emitter := notify.NewEmitter(notify.EmitterConfig{
		QueueSize: cfg.Alerts.QueueSize,
		Workers:   cfg.Alerts.Workers,
	}, sinks, database, logger)

	sseHub := sse.NewHub(logger)
	pgListener := sse.NewPGListener(database.Pool, sseHub, logger)
	limiter := ratelimit.New()

	wsManager := ws.NewManager(func(ctx context.Context, url string) any {
		return handlers.NewQuickScanResponse(pipeline.Score(ctx, url))
	}, limiter, "scan", logger)

	// HTTP handlers
	scanHandler := handlers.NewScanHandler(pipeline, database, emitter, handlers.ScanConfig{
		AlertThreshold: cfg.Alerts.Threshold,
		PageSize:       cfg.History.PageSize,
		KeepOnClear:    cfg.History.KeepOnClear,
	}, logger)
	extHandler := handlers.NewExtensionHandler(pipeline, emitter, wsManager, cfg.Alerts.Recipient, logger)
	demoHandler := handlers.NewDemoHandler(pipeline)
	alertsHandler := handlers.NewAlertsHandler(database, emitter, logger)
	streamHandler := handlers.NewStreamHandler(sseHub, database, logger)

	// Build router
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	// Health check
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	})

	// Auth routes (no auth middleware)
	r.Group(func(ar chi.Router) {
		ar.Use(limiter.Middleware("auth"))
		ar.Post("/auth/signup", authHandler.Signup)
		ar.Post("/auth/login", authHandler.Login)
	})
	r.Get("/auth/me", authHandler.Me)
	r.Post("/auth/logout", authHandler.Logout)
	r.Get("/auth/logout", authHandler.Logout)

	// Extension API (public)
	r.Group(func(er chi.Router) {
		er.Use(limiter.Middleware("scan"))
		er.Post("/api/quick-scan", extHandler.QuickScan)
		er.Post("/api/emergency-alert", extHandler.EmergencyAlert)
		er.Get("/ws/scan", wsManager.HandleScan)
	})
	r.With(limiter.Middleware("batch")).Post("/api/batch-scan", extHandler.BatchScan)
	r.Get("/api/extension-status", extHandler.Status)
	r.Get("/api/test-connection", extHandler.TestConnection)

	// Demo routes (public, nothing persisted)
	r.Route("/demo", func(dr chi.Router) {
		dr.Use(limiter.Middleware("scan"))
		dr.Get("/scan", demoHandler.Scan)
		dr.Get("/test-dangerous", demoHandler.TestDangerous)
		dr.Get("/quick-test", demoHandler.QuickTest)
	})

	// API routes (require auth)
	r.Group(func(api chi.Router) {
		api.Use(auth.RequireAuth(sm))
		api.Use(limiter.Middleware("api"))

		api.With(limiter.Middleware("scan")).Post("/api/scan", scanHandler.Scan)
		api.Get("/api/history", scanHandler.History)
		api.Get("/api/dashboard-stats", scanHandler.Stats)
		api.Post("/api/clear-history", scanHandler.ClearHistory)
		api.Post("/api/clear-all-history", scanHandler.ClearAllHistory)
		api.Get("/api/alerts", alertsHandler.List)

		// SSE stream
		api.Get("/api/stream/events", streamHandler.HandleSSE)
	})

	// Start background goroutines
	go server.RunWithRecovery(ctx, logger, "session-cleanup", sm.CleanupLoop)
	go server.RunWithRecovery(ctx, logger, "history-retention", func(ctx context.Context) {
		database.RetentionLoop(ctx, cfg.History.Retention)
	})
	go server.RunWithRecovery(ctx, logger, "pg-listener", pgListener.Listen)
	go server.RunWithRecovery(ctx, logger, "ratelimit-cleanup", func(ctx context.Context) {
		limiter.CleanupLoop(ctx, 5*time.Minute)
	})
	if openPhish != nil {
		go server.RunWithRecovery(ctx, logger, "openphish-refresh", openPhish.RefreshLoop)
	}

	var handler http.Handler = r
	var tlsSrv *http.Server
	if len(cfg.TLS.Domains) > 0 {
		cm, err := linktls.NewCertManager(linktls.Config{
			Domains: cfg.TLS.Domains,
			Email:   cfg.TLS.ACMEEmail,
			Staging: cfg.TLS.Staging,
		}, logger)
		if err != nil {
			logger.Error("tls setup failed", "err", err)
			os.Exit(1)
		}
		tlsSrv, err = cm.Server(ctx, r)
		if err != nil {
			logger.Error("tls certificates failed", "err", err)
			os.Exit(1)
		}
		handler = cm.HTTPChallengeHandler(r)
		go func() {
			if err := cm.ListenAndServe(tlsSrv); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("https server failed", "err", err)
				cancel()
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE + WebSocket need unlimited write time
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			logger.Info("shutdown signal received")
		case <-ctx.Done():
		}
		cancel() // stop background goroutines
		server.Shutdown(logger, 10*time.Second, srv, tlsSrv)
	}()

	logger.Info("server starting", "port", cfg.Server.Port, "env", cfg.Server.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	emitter.Close(closeCtx)
	if adapter != nil {
		adapter.Close()
	}
	logger.Info("server stopped")
}

// corsMiddleware allows the browser extension and dashboard origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
