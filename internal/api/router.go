package api

import (
	"fmt"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/opsportal/portal/docs"
	"github.com/opsportal/portal/internal/api/handler"
	"github.com/opsportal/portal/internal/api/middleware"
	"github.com/opsportal/portal/internal/core/domain"
	"github.com/opsportal/portal/internal/core/ports"
)

const evidenceUploadPath = "/v1/cases/:id/evidence"

// Services are the core services the HTTP surface is built on.
type Services struct {
	Sessions      ports.SessionService
	Contexts      ports.ContextService
	Guard         ports.AccessGuard
	Cases         ports.CaseService
	Ledger        ports.LedgerService
	Relationships ports.RelationshipService
	Evidence      ports.EvidenceStore
}

// RouterConfig carries the HTTP-level settings.
type RouterConfig struct {
	CookieName       string
	CookieSecure     bool
	ResetRedirectURL string
	MaxEvidenceBytes int64
	Health           map[string]handler.Pinger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(svc Services, cfg RouterConfig, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echoprometheus.NewMiddleware("portal"))
	e.Use(echomiddleware.BodyLimitWithConfig(echomiddleware.BodyLimitConfig{
		Limit: "1M",
		Skipper: func(c echo.Context) bool {
			return c.Path() == evidenceUploadPath
		},
	}))

	cookie := handler.CookieConfig{Name: cfg.CookieName, Secure: cfg.CookieSecure}

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(svc.Sessions, cookie, cfg.ResetRedirectURL)
	contextHandler := handler.NewContextHandler(svc.Contexts, svc.Sessions)
	caseHandler := handler.NewCaseHandler(svc.Cases, cfg.MaxEvidenceBytes)
	evidenceHandler := handler.NewEvidenceHandler(svc.Evidence)
	ledgerHandler := handler.NewLedgerHandler(svc.Ledger)
	relationshipHandler := handler.NewRelationshipHandler(svc.Relationships, cookie)
	healthHandler := handler.NewHealthHandler(cfg.Health)

	service := middleware.ServiceClaims()
	evidenceLimit := echomiddleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxEvidenceBytes+(1<<20)))

	// --- Auth routes (no session) ---
	e.POST("/auth/login", authHandler.Login, service)
	e.POST("/auth/oauth/callback", authHandler.OAuthCallback, service)
	e.POST("/auth/logout", authHandler.Logout, service)
	e.POST("/auth/password-reset", authHandler.PasswordReset, service)

	// The signed token is the credential for these two.
	e.GET("/v1/evidence", evidenceHandler.Download, service)
	e.POST("/v1/invitations/accept", relationshipHandler.Accept,
		middleware.OptionalSession(svc.Sessions, cfg.CookieName))

	// --- Session routes ---
	v1 := e.Group("/v1", middleware.Session(svc.Sessions, cfg.CookieName))
	scoped := middleware.Scope(svc.Guard)
	managers := middleware.RBAC(domain.RoleOwner, domain.RoleAdmin)

	v1.GET("/context", contextHandler.Get)
	v1.POST("/context/switch", contextHandler.Switch)
	v1.POST("/realtime/token", contextHandler.RealtimeToken)

	v1.POST("/cases", caseHandler.Create, scoped)
	v1.GET("/cases", caseHandler.List, scoped)
	v1.GET("/cases/:id", caseHandler.Get, scoped)
	v1.POST("/cases/:id/transitions", caseHandler.Transition, scoped)
	v1.POST("/cases/:id/notes", caseHandler.AddNote, scoped)
	v1.POST("/cases/:id/evidence", caseHandler.AttachEvidence, evidenceLimit, scoped)
	v1.GET("/cases/:id/evidence-url", caseHandler.EvidenceURL, scoped)

	v1.GET("/payments", ledgerHandler.ListPayments, scoped)
	v1.GET("/payments/:id", ledgerHandler.GetPayment, scoped)
	v1.GET("/invoices", ledgerHandler.ListInvoices, scoped)
	v1.GET("/invoices/:id", ledgerHandler.GetInvoice, scoped)

	v1.POST("/invitations", relationshipHandler.Invite, managers)
	v1.DELETE("/invitations/:id", relationshipHandler.Revoke, managers)
	v1.PATCH("/relationships/:id", relationshipHandler.ChangeStatus, managers)

	// --- Health probes, metrics and docs (no auth required) ---
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
