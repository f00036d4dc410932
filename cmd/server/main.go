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

	"bastion/internal/admission/engine"
	"bastion/internal/admission/handler"
	"bastion/internal/admission/metrics"
	admw "bastion/internal/admission/middleware"
	"bastion/internal/admission/models"
	"bastion/internal/admission/policy"
	"bastion/internal/admission/store"
	"bastion/internal/admission/workers/janitor"
	"bastion/internal/platform/config"
	"bastion/internal/platform/database"
	"bastion/internal/platform/logger"
	"bastion/internal/platform/redis"
	"bastion/pkg/platform/audit"
	"bastion/pkg/platform/audit/publisher"
	"bastion/pkg/platform/requesttime"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// main wires dependencies and keeps the server lifecycle small. Decision
// logic lives in the internal admission packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing bastion",
		"addr", cfg.Addr,
		"policy_cache_ttl", cfg.PolicyCacheTTL,
		"janitor_interval", cfg.JanitorInterval,
	)

	policyStore, cleanup, err := buildPolicyStore(cfg, log)
	if err != nil {
		log.Error("policy store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	m := metrics.New()
	cache := policy.NewCache(policyStore,
		policy.WithTTL(cfg.PolicyCacheTTL),
		policy.WithLogger(log),
		policy.WithMetrics(m),
	)
	counters := store.New()

	auditPub := publisher.New(audit.NewSlogStore(log),
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
	)
	defer auditPub.Close()

	eng, err := engine.New(cache, counters,
		engine.WithLogger(log),
		engine.WithAuditPublisher(auditPub),
		engine.WithMetrics(m),
	)
	if err != nil {
		log.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	jan := janitor.New(counters,
		janitor.WithLogger(log),
		janitor.WithInterval(cfg.JanitorInterval),
		janitor.WithIdleEvictionAge(cfg.IdleEvictionAge),
		janitor.WithMetrics(m),
	)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      newRouter(eng, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := jan.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func newRouter(eng *engine.Engine, log *slog.Logger) http.Handler {
	h := handler.New(eng, log)
	mw := admw.New(eng, log)

	r := chi.NewRouter()
	r.Use(requesttime.Middleware)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/v1/admission", h.Routes())
	// Operator endpoints are themselves admission-protected: support
	// tooling is an administrative-action endpoint family like any other.
	r.With(mw.Admit(models.ClassAdminAction)).Mount("/admin/admission", h.AdminRoutes())
	return r
}

// buildPolicyStore selects the configured policy source: postgres, then
// redis, then a YAML file. With none configured the engine runs entirely on
// the built-in default policy.
func buildPolicyStore(cfg config.Service, log *slog.Logger) (policy.Store, func(), error) {
	noop := func() {}

	if cfg.DatabaseURL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		pool, err := database.New(dbCfg)
		if err != nil {
			return nil, noop, err
		}
		log.Info("policy source: postgres")
		return policy.NewPostgres(pool.DB()), func() { _ = pool.Close() }, nil
	}

	if cfg.RedisURL != "" {
		client, err := redis.New(redis.DefaultConfig(cfg.RedisURL))
		if err != nil {
			return nil, noop, err
		}
		log.Info("policy source: redis")
		return policy.NewRedis(client), func() { _ = client.Close() }, nil
	}

	if cfg.PolicyFile != "" {
		fileStore, err := policy.NewFile(cfg.PolicyFile)
		if err != nil {
			return nil, noop, err
		}
		log.Info("policy source: file", "path", cfg.PolicyFile)
		return fileStore, noop, nil
	}

	log.Warn("no policy source configured, serving built-in defaults")
	return policy.NewStaticStore(nil), noop, nil
}
