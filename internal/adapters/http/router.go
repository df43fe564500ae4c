package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
)

// Services are the inbound ports served over HTTP.
type Services struct {
	Auditor   ports.Auditor
	Ingestor  ports.FilingIngestor
	Catalog   ports.FilingCatalog
	Vault     ports.VaultPurger
	Citations ports.CitationLocator
	Drafter   ports.ReportDrafter
	Exporter  ports.WorkpaperExporter
}

type Options struct {
	Logger         *zap.Logger
	RateLimitRPS   float64
	RateLimitBurst int
	MaxUploadBytes int64
	// Metrics wraps the router when set. MetricsHandler is served at /metrics.
	Metrics        func(http.Handler) http.Handler
	MetricsHandler http.Handler
}

type Router struct {
	svc  Services
	opts Options
}

func NewRouter(svc Services, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	return &Router{svc: svc, opts: opts}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverMiddleware(rt.opts.Logger))
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.opts.Logger))

	r.Get("/healthz", rt.healthz)
	if rt.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", rt.opts.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if rt.opts.RateLimitRPS > 0 {
			burst := rt.opts.RateLimitBurst
			if burst <= 0 {
				burst = 1
			}
			r.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(rt.opts.RateLimitRPS), burst)))
		}

		r.Post("/audit/query", rt.auditQuery)
		r.Post("/audit/export", rt.exportWorkpaper)
		r.Post("/audit/draft", rt.draftReport)

		r.Post("/filings", rt.submitFiling)
		r.Get("/filings", rt.listFilings)
		r.Get("/filings/{id}", rt.getFiling)
		r.Delete("/vault", rt.purgeVault)

		r.Get("/evidence/{id}/overlay", rt.evidenceOverlay)
	})

	var h http.Handler = r
	if rt.opts.Metrics != nil {
		h = rt.opts.Metrics(h)
	}
	return h
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
