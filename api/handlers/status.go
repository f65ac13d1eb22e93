package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wellspringlabs/wellspring/api/handlers/dberror"
	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// StatusForError maps a ledger error onto an HTTP status code.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, pool.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, pool.ErrNoPeriod):
		return http.StatusNotFound
	case errors.Is(err, pool.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, pool.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, pool.ErrNothingToClaim):
		return http.StatusConflict
	case errors.Is(err, pool.ErrTransferFailed):
		return http.StatusBadGateway
	case dberror.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadGateway:
		return "transfer_failed"
	case http.StatusServiceUnavailable:
		return "store_unavailable"
	default:
		return "internal_error"
	}
}

// writeLedgerError renders a ledger error. Sentinel errors carry their own
// message; everything else is logged and hidden behind a generic reply so
// store internals never leak to clients.
func (h *Handlers) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusForError(err)
	switch status {
	case http.StatusInternalServerError:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, errorCode(status), "An unexpected error occurred. Please try again.")
	case http.StatusServiceUnavailable:
		h.log.Warn("store unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, status, errorCode(status), dberror.UserMessage(err))
	default:
		writeError(w, status, errorCode(status), err.Error())
	}
}
