package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/escrowledger/api/controllers"
	"github.com/angelmondragon/escrowledger/api/middleware"
	"github.com/angelmondragon/escrowledger/internal/observability"
	"github.com/angelmondragon/escrowledger/internal/remediation"
	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/logger"
)

// NewRouter wires the health probes, the prometheus endpoint and the admin API.
// Every admin route requires an operator token with the admin role.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	observabilityService observability.Service,
	remediationService remediation.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.OperatorRoleAdmin, logg))

		r.Get("/ledger/snapshot", controllers.LedgerSnapshot(observabilityService, logg))
		r.Get("/ledger/aggregate", controllers.LedgerAggregate(observabilityService, logg))
		r.Get("/trace/{id}", controllers.Trace(observabilityService, logg))
		r.Get("/audit-logs", controllers.AuditLogs(observabilityService, logg))

		r.Route("/remediation", func(r chi.Router) {
			r.Use(middleware.RequireIdempotencyKey(logg))
			r.Post("/payouts/{payoutId}/force-transition", controllers.ForceTransitionPayout(remediationService, logg))
			r.Post("/ledger-corrections", controllers.ApplyLedgerCorrection(remediationService, logg))
			r.Post("/anomalies/resolve", controllers.ResolveAnomaly(remediationService, logg))
		})
	})

	return r
}
