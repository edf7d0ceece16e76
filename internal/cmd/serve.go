package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsportal/portal/internal/api"
	"github.com/opsportal/portal/internal/api/handler"
	"github.com/opsportal/portal/internal/core/service"
	mongodb "github.com/opsportal/portal/internal/infrastructure/db/mongo"
	"github.com/opsportal/portal/internal/infrastructure/db/postgres"
	redisdb "github.com/opsportal/portal/internal/infrastructure/db/redis"
	"github.com/opsportal/portal/internal/infrastructure/identity"
	"github.com/opsportal/portal/internal/infrastructure/queue"
	"github.com/opsportal/portal/internal/infrastructure/ratelimit"
	"github.com/opsportal/portal/internal/pkg/config"
	"github.com/opsportal/portal/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: !cfg.IsProduction(), Service: "portal"})

	// --- Datastores ---
	store, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	mc, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mc.Close(closeCtx)
	}()

	caseRepo := mongodb.NewCaseRepository(mc.DB)
	if err := caseRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure case indexes: %w", err)
	}
	evidence, err := mongodb.NewEvidenceStore(mc.DB, mongodb.EvidenceConfig{
		BaseURL: strings.TrimRight(cfg.PublicURL, "/") + "/v1/evidence",
		Secret:  []byte(cfg.Evidence.SigningSecret),
		LinkTTL: cfg.Evidence.LinkTTL,
	})
	if err != nil {
		return err
	}

	health := map[string]handler.Pinger{
		"postgres": store.Ping,
		"mongodb":  mc.Ping,
	}

	// --- Rate limits ---
	originLocal := ratelimit.NewMemory(ratelimit.Config{Limit: cfg.RateLimit.OriginLimit, Window: cfg.RateLimit.OriginWindow})
	defer originLocal.Stop()
	sessionLocal := ratelimit.NewMemory(ratelimit.Config{Limit: cfg.RateLimit.SessionLimit, Window: cfg.RateLimit.SessionWindow})
	defer sessionLocal.Stop()

	limits := service.Limiters{PerOrigin: originLocal, PerSession: sessionLocal}
	if cfg.Redis.Addr != "" {
		rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer rdb.Close()

		rlLog := logger.Component("ratelimit")
		limits.PerOrigin = redisdb.NewLimiter(rdb, cfg.RateLimit.OriginLimit, cfg.RateLimit.OriginWindow, originLocal, rlLog)
		limits.PerSession = redisdb.NewLimiter(rdb, cfg.RateLimit.SessionLimit, cfg.RateLimit.SessionWindow, sessionLocal, rlLog)
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		log.Warn().Msg("REDIS_ADDR not set, rate limits are per instance")
	}

	// --- Notifications ---
	dispatcher := queue.NewDispatcher(cfg.Notify.Workers, cfg.Notify.Buffer,
		queue.LogSink{Log: logger.Component("notifications")}, logger.Component("dispatcher"))
	dispatcher.Start(ctx)

	// --- Core ---
	idp := identity.NewClient(identity.Config{
		BaseURL:    cfg.Identity.BaseURL,
		AnonKey:    cfg.Identity.AnonKey,
		ServiceKey: cfg.Identity.ServiceKey,
		JWTSecret:  []byte(cfg.Identity.JWTSecret),
		Timeout:    cfg.Identity.Timeout,
	})

	tenants := postgres.NewTenantRepository(store)
	users := postgres.NewUserRepository(store)
	sessionRepo := postgres.NewSessionRepository(store)
	relationships := postgres.NewRelationshipRepository(store)
	invitations := postgres.NewInvitationRepository(store)

	sessions := service.NewSessionService(idp, users, sessionRepo, limits, service.SessionConfig{
		TTL:              cfg.Session.TTL,
		RefreshThreshold: cfg.Session.RefreshThreshold,
		MaxRefreshJitter: cfg.Session.MaxRefreshJitter,
	}, logger.Component("sessions"))
	contexts := service.NewContextService(relationships, tenants, sessionRepo, logger.Component("contexts"))

	e := api.NewRouter(api.Services{
		Sessions: sessions,
		Contexts: contexts,
		Guard:    service.NewAccessGuard(contexts),
		Cases:    service.NewCaseService(caseRepo, relationships, tenants, evidence, dispatcher, logger.Component("cases")),
		Ledger:   service.NewLedgerService(postgres.NewPaymentRepository(store), postgres.NewInvoiceRepository(store)),
		Relationships: service.NewRelationshipService(relationships, invitations, tenants, users, idp, sessions,
			dispatcher, cfg.Invitation.TTL, logger.Component("relationships")),
		Evidence: evidence,
	}, api.RouterConfig{
		CookieName:       cfg.Session.CookieName,
		CookieSecure:     cfg.Session.CookieSecure,
		ResetRedirectURL: strings.TrimRight(cfg.PublicURL, "/") + "/reset-password",
		MaxEvidenceBytes: cfg.Evidence.MaxBytes,
		Health:           health,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("portal listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("stopped")
	return nil
}
