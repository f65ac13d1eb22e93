package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
)

// PeriodResponse is a period plus its computed window state.
type PeriodResponse struct {
	pool.Period
	State string    `json:"state"`
	End   time.Time `json:"end"`
}

// AmountResponse carries a single amount.
type AmountResponse struct {
	Amount uint64 `json:"amount"`
}

// OwnersResponse lists pool owners.
type OwnersResponse struct {
	Owners []identity.Account `json:"owners"`
}

func (h *Handlers) periodResponse(p *pool.Period) PeriodResponse {
	return PeriodResponse{
		Period: *p,
		State:  p.StateAt(h.clock.Now()).String(),
		End:    p.End(),
	}
}

// GetPeriod returns one period by number.
func (h *Handlers) GetPeriod(w http.ResponseWriter, r *http.Request) {
	number, ok := parseNumber(w, r)
	if !ok {
		return
	}
	period, err := h.ledger.PeriodByNumber(r.Context(), number)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.periodResponse(period))
}

// GetTappable returns how much the owner can still withdraw from a period.
func (h *Handlers) GetTappable(w http.ResponseWriter, r *http.Request) {
	number, ok := parseNumber(w, r)
	if !ok {
		return
	}
	amount, err := h.ledger.TappableOf(r.Context(), number)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Amount: amount})
}

// GetContribution returns an account's contribution to a period.
func (h *Handlers) GetContribution(w http.ResponseWriter, r *http.Request) {
	number, ok := parseNumber(w, r)
	if !ok {
		return
	}
	account, ok := parseAccountParam(w, r, "account")
	if !ok {
		return
	}
	amount, err := h.ledger.ContributionOf(r.Context(), number, account)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Amount: amount})
}

// GetShare returns an account's unclaimed redistribution share of a period.
func (h *Handlers) GetShare(w http.ResponseWriter, r *http.Request) {
	number, ok := parseNumber(w, r)
	if !ok {
		return
	}
	account, ok := parseAccountParam(w, r, "account")
	if !ok {
		return
	}
	amount, err := h.ledger.UnclaimedShare(r.Context(), number, account)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Amount: amount})
}

// GetLatestPeriod returns the newest period in an owner's chain.
func (h *Handlers) GetLatestPeriod(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAccountParam(w, r, "owner")
	if !ok {
		return
	}
	period, err := h.ledger.LatestPeriod(r.Context(), owner)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.periodResponse(period))
}

// GetActivePeriod returns the owner's currently open period, if any.
func (h *Handlers) GetActivePeriod(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAccountParam(w, r, "owner")
	if !ok {
		return
	}
	period, err := h.ledger.ActivePeriod(r.Context(), owner)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.periodResponse(period))
}

// GetUpcomingPeriod returns the owner's queued successor period, if any.
func (h *Handlers) GetUpcomingPeriod(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAccountParam(w, r, "owner")
	if !ok {
		return
	}
	period, err := h.ledger.UpcomingPeriod(r.Context(), owner)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.periodResponse(period))
}

// GetSustainedPools lists the pool owners an account has contributed to.
func (h *Handlers) GetSustainedPools(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAccountParam(w, r, "account")
	if !ok {
		return
	}
	owners, err := h.ledger.SustainedOwnersOf(r.Context(), account)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if owners == nil {
		owners = []identity.Account{}
	}
	writeJSON(w, http.StatusOK, OwnersResponse{Owners: owners})
}

func parseNumber(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	number, err := strconv.ParseUint(chi.URLParam(r, "number"), 10, 64)
	if err != nil || number == 0 {
		writeError(w, http.StatusBadRequest, "invalid_period", "period number must be a positive integer")
		return 0, false
	}
	return number, true
}

func parseAccountParam(w http.ResponseWriter, r *http.Request, name string) (identity.Account, bool) {
	account, err := identity.ParseAccount(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" is not a valid account key")
		return "", false
	}
	return account, true
}
