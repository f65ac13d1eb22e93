// Package handlers serves the pool ledger over HTTP. Reads are public;
// mutations require a signed request and are rate limited per account.
package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
)

// Config holds the handler dependencies.
type Config struct {
	Logger *slog.Logger
	Ledger *pool.Ledger
	Clock  clockwork.Clock

	// MaxClockSkew bounds how far a signed request's timestamp may drift
	// from server time in either direction. Defaults to 5 minutes.
	MaxClockSkew time.Duration

	// MutationRate and MutationBurst shape the per-account rate limit on
	// mutating routes. Defaults allow 60 mutations/minute with a burst
	// of 10.
	MutationRate  rate.Limit
	MutationBurst int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxClockSkew == 0 {
		cfg.MaxClockSkew = 5 * time.Minute
	}
	if cfg.MutationRate == 0 {
		cfg.MutationRate = rate.Every(time.Minute / 60)
	}
	if cfg.MutationBurst == 0 {
		cfg.MutationBurst = 10
	}
	return nil
}

// Handlers bundles the HTTP handlers around one ledger.
type Handlers struct {
	log     *slog.Logger
	ledger  *pool.Ledger
	clock   clockwork.Clock
	maxSkew time.Duration
	limiter *RateLimiter
}

func New(cfg Config) (*Handlers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Handlers{
		log:     cfg.Logger,
		ledger:  cfg.Ledger,
		clock:   cfg.Clock,
		maxSkew: cfg.MaxClockSkew,
		limiter: NewRateLimiter(cfg.Clock, cfg.MutationRate, cfg.MutationBurst),
	}, nil
}

// Routes returns the versioned API router.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/periods/{number}", h.GetPeriod)
	r.Get("/periods/{number}/tappable", h.GetTappable)
	r.Get("/periods/{number}/contributions/{account}", h.GetContribution)
	r.Get("/periods/{number}/share/{account}", h.GetShare)
	r.Get("/pools/{owner}/periods/latest", h.GetLatestPeriod)
	r.Get("/pools/{owner}/periods/active", h.GetActivePeriod)
	r.Get("/pools/{owner}/periods/upcoming", h.GetUpcomingPeriod)
	r.Get("/accounts/{account}/pools", h.GetSustainedPools)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireSignature)
		r.Use(RateLimitMiddleware(h.limiter))
		r.Post("/pools/{owner}/configure", h.PostConfigure)
		r.Post("/pools/{owner}/contributions", h.PostContribute)
		r.Post("/periods/{number}/tap", h.PostTap)
		r.Post("/claims", h.PostClaim)
	})

	return r
}
