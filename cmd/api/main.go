package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-grocer/internal/app"
	"github.com/noah-isme/backend-grocer/internal/catalog"
	"github.com/noah-isme/backend-grocer/internal/checkout"
	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/config"
	"github.com/noah-isme/backend-grocer/internal/customer"
	"github.com/noah-isme/backend-grocer/internal/events"
	"github.com/noah-isme/backend-grocer/internal/health"
	"github.com/noah-isme/backend-grocer/internal/notify"
	"github.com/noah-isme/backend-grocer/internal/obs"
	"github.com/noah-isme/backend-grocer/internal/order"
	"github.com/noah-isme/backend-grocer/internal/pricing"
	"github.com/noah-isme/backend-grocer/internal/queue"
	"github.com/noah-isme/backend-grocer/internal/ratelimit"
	"github.com/noah-isme/backend-grocer/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "grocer")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "grocer-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := app.New(startCtx, cfg, logger, app.Options{AppName: "grocer-api", RedisMetrics: metricsEnabled})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	customerStore := customer.NewStore(deps.DB)
	catalogStore := catalog.NewStore(deps.DB)
	orderStore := order.NewPGStore(deps.DB)

	sessions, err := customer.NewSessions(customer.SessionsConfig{Secret: cfg.SessionSecret, TTL: cfg.SessionTTL})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise sessions")
	}
	customerService, err := customer.NewService(customer.ServiceConfig{
		Store:     customerStore,
		Sessions:  sessions,
		Validator: deps.Validator,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise customer service")
	}
	customerHandler := &customer.Handler{
		Service:        customerService,
		CookieName:     cfg.SessionCookieName,
		CookieDomain:   cfg.CookieDomain,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: cfg.CookieSameSite,
	}
	sessionMiddleware := customer.Middleware{
		Sessions:   sessions,
		Customers:  customerStore,
		CookieName: cfg.SessionCookieName,
	}

	calculator := pricing.Calculator{Fallback: pricing.ParseFallback(cfg.PriceFallback)}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Products: catalogStore,
		Prices:   calculator,
		Cache:    catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogAdmin, err := catalog.NewAdmin(catalog.AdminConfig{
		Store:     catalogStore,
		Listing:   catalogService,
		Validator: deps.Validator,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog admin")
	}
	catalogAdminHandler := &catalog.AdminHandler{Admin: catalogAdmin}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{
		Service: catalogService,
		Classes: customer.Classifier{Customers: customerStore},
	})

	bus := &events.Bus{
		Store: events.PGStore{DB: deps.DB},
		Notifiers: []events.Notifier{
			notify.OrderEmailNotifier{
				Tasks:    queue.Enqueuer{Client: deps.TaskClient},
				Enabled:  cfg.NotifyEmailEnabled,
				MaxRetry: cfg.NotifyMaxRetry,
			},
		},
	}

	checkoutService, err := checkout.NewService(checkout.ServiceConfig{
		Calculator:    calculator,
		Catalog:       catalogStore,
		Customers:     customerStore,
		Orders:        orderStore,
		Events:        bus,
		Validator:     deps.Validator,
		LookupTimeout: cfg.CatalogLookupTimeout,
		Logger:        logger.With().Str("component", "checkout").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout service")
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutService}

	orderService, err := order.NewService(order.ServiceConfig{
		Store:  orderStore,
		Events: bus,
		Logger: logger.With().Str("component", "order").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise order service")
	}
	orderHandler := &order.Handler{Svc: orderService, Customers: customerStore}
	orderAdmin := &order.AdminHandler{Svc: orderService, Validate: deps.Validator}
	queueAdmin := &queue.AdminHandler{Inspector: deps.TaskInspector}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	checkoutLimit, err := ratelimit.New(deps.LimiterStore, cfg.RateLimitCheckout)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout rate limit")
	}
	checkoutLimit.OnError = func(err error) {
		logger.Warn().Err(err).Msg("rate limit store unavailable")
	}
	bodyLimit := security.BodyLimit{Max: cfg.BodyLimitBytes}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(sessionMiddleware.Attach)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		HSTS:            cfg.IsProduction(),
		NoStorePrefixes: []string{"/api/v1/auth", "/api/v1/account", "/api/v1/checkout", "/api/v1/orders", "/api/v1/admin"},
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Total-Count", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Dependencies{DB: deps.DB, Redis: deps.Redis},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)

		v.Route("/auth", func(a chi.Router) {
			a.Use(bodyLimit.Middleware)
			a.With(checkoutLimit.Middleware).Post("/register", customerHandler.Register)
			a.With(checkoutLimit.Middleware).Post("/login", customerHandler.Login)
			a.Post("/logout", customerHandler.Logout)
		})

		v.Route("/account", func(a chi.Router) {
			a.Use(sessionMiddleware.RequireCustomer)
			a.Get("/me", customerHandler.Me)
			a.With(bodyLimit.Middleware).Patch("/profile", customerHandler.UpdateProfile)
			a.Get("/orders", orderHandler.List)
		})

		v.With(sessionMiddleware.RequireCustomer).Get("/orders/{id}", orderHandler.Get)

		v.Route("/checkout", func(c chi.Router) {
			c.Use(bodyLimit.Middleware)
			c.Use(checkoutLimit.Middleware)
			c.Post("/preview", checkoutHandler.Preview)
			c.With(idem.Middleware).Post("/", checkoutHandler.Place)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(sessionMiddleware.RequireAdmin)
			admin.Get("/orders", orderAdmin.List)
			admin.Get("/orders/export", orderAdmin.Export)
			admin.With(bodyLimit.Middleware).Patch("/orders/{id}/status", orderAdmin.PatchStatus)
			admin.Get("/products", catalogAdminHandler.ListProducts)
			admin.Get("/products/{id}", catalogAdminHandler.GetProduct)
			admin.Delete("/products/{id}", catalogAdminHandler.DeleteProduct)
			admin.Get("/categories", catalogAdminHandler.ListCategories)
			admin.Delete("/categories/{id}", catalogAdminHandler.DeleteCategory)
			admin.Group(func(write chi.Router) {
				write.Use(bodyLimit.Middleware)
				write.Post("/products", catalogAdminHandler.CreateProduct)
				write.Put("/products/{id}", catalogAdminHandler.UpdateProduct)
				write.Patch("/products/{id}/active", catalogAdminHandler.SetProductActive)
				write.Post("/categories", catalogAdminHandler.CreateCategory)
				write.Put("/categories/{id}", catalogAdminHandler.UpdateCategory)
			})
			admin.Get("/queues", queueAdmin.Stats)
			admin.Post("/queues/{queue}/replay", queueAdmin.ReplayArchived)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
