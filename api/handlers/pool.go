package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
)

// ConfigureRequest sets a pool's funding configuration.
type ConfigureRequest struct {
	Target       uint64 `json:"target"`
	DurationSecs uint64 `json:"durationSecs"`
	WantAsset    string `json:"wantAsset"`
}

// ConfigureResponse reports the period the configuration landed on.
type ConfigureResponse struct {
	Period uint64 `json:"period"`
}

// ContributeRequest moves funds from the caller into an owner's pool.
// Beneficiary defaults to the caller.
type ContributeRequest struct {
	Amount      uint64 `json:"amount"`
	Beneficiary string `json:"beneficiary,omitempty"`
}

// ContributeResponse reports the period that received the contribution.
type ContributeResponse struct {
	Period uint64 `json:"period"`
}

// TapRequest withdraws committed funds from a period the caller owns.
type TapRequest struct {
	Amount uint64 `json:"amount"`
}

// ClaimRequest settles the caller's redistribution shares. An empty owner
// list claims across every pool the caller has sustained.
type ClaimRequest struct {
	Owners []string `json:"owners,omitempty"`
}

// ClaimResponse reports the total paid out across all settled periods.
type ClaimResponse struct {
	Total uint64 `json:"total"`
}

// PostConfigure applies a funding configuration to the caller's own pool.
func (h *Handlers) PostConfigure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, _ := AccountFromContext(ctx)

	owner, err := identity.ParseAccount(chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_owner", "owner is not a valid account key")
		return
	}
	if account != owner {
		writeError(w, http.StatusForbidden, "forbidden", "only the pool owner may configure it")
		return
	}

	var req ConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	number, err := h.ledger.Configure(ctx, owner, pool.ConfigureParams{
		Target:   req.Target,
		Duration: time.Duration(req.DurationSecs) * time.Second,
		Asset:    identity.Asset(req.WantAsset),
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ConfigureResponse{Period: number})
}

// PostContribute moves funds from the caller into an owner's open period.
func (h *Handlers) PostContribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, _ := AccountFromContext(ctx)

	owner, err := identity.ParseAccount(chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_owner", "owner is not a valid account key")
		return
	}

	var req ContributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	beneficiary := account
	if req.Beneficiary != "" {
		beneficiary, err = identity.ParseAccount(req.Beneficiary)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_beneficiary", "beneficiary is not a valid account key")
			return
		}
	}

	span := sentry.StartSpan(ctx, "pool.contribute", sentry.WithDescription(owner.String()))
	span.SetData("pool.amount", req.Amount)
	span.SetTag("pool.owner", owner.String())
	ctx = span.Context()
	defer span.Finish()

	number, err := h.ledger.Contribute(ctx, account, owner, req.Amount, beneficiary)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		h.writeLedgerError(w, r, err)
		return
	}
	span.Status = sentry.SpanStatusOK

	writeJSON(w, http.StatusOK, ContributeResponse{Period: number})
}

// PostTap withdraws committed funds from a period the caller owns.
func (h *Handlers) PostTap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, _ := AccountFromContext(ctx)

	number, ok := parseNumber(w, r)
	if !ok {
		return
	}

	var req TapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	span := sentry.StartSpan(ctx, "pool.tap", sentry.WithDescription(account.String()))
	span.SetData("pool.amount", req.Amount)
	span.SetData("pool.period", number)
	ctx = span.Context()
	defer span.Finish()

	if err := h.ledger.Tap(ctx, account, number, req.Amount); err != nil {
		span.Status = sentry.SpanStatusInternalError
		h.writeLedgerError(w, r, err)
		return
	}
	span.Status = sentry.SpanStatusOK

	writeJSON(w, http.StatusOK, struct{}{})
}

// PostClaim settles the caller's unclaimed redistribution shares and pays
// them out.
func (h *Handlers) PostClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, _ := AccountFromContext(ctx)

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	owners := make([]identity.Account, 0, len(req.Owners))
	for _, raw := range req.Owners {
		owner, err := identity.ParseAccount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_owner", "owners must be valid account keys")
			return
		}
		owners = append(owners, owner)
	}

	span := sentry.StartSpan(ctx, "pool.claim", sentry.WithDescription(account.String()))
	span.SetData("pool.owners", len(owners))
	ctx = span.Context()
	defer span.Finish()

	var total uint64
	var err error
	if len(owners) == 0 {
		total, err = h.ledger.ClaimAll(ctx, account)
	} else {
		total, err = h.ledger.Claim(ctx, account, owners)
	}
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		h.writeLedgerError(w, r, err)
		return
	}
	span.SetData("pool.total", total)
	span.Status = sentry.SpanStatusOK

	writeJSON(w, http.StatusOK, ClaimResponse{Total: total})
}
