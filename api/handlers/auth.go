package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wellspringlabs/wellspring/api/metrics"
	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
)

// Headers carried by signed requests.
const (
	HeaderAccount   = "X-Account"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// maxBodyBytes caps the signed request body size.
const maxBodyBytes = 1 << 20 // 1MB

type accountContextKey struct{}

// ContextWithAccount returns a new context carrying the authenticated account.
func ContextWithAccount(ctx context.Context, account identity.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// AccountFromContext returns the authenticated account from the context.
func AccountFromContext(ctx context.Context) (identity.Account, bool) {
	account, ok := ctx.Value(accountContextKey{}).(identity.Account)
	return account, ok
}

// SigningMessage builds the canonical bytes a client signs for a request:
// the RFC3339 timestamp, HTTP method, URL path, and hex SHA-256 of the
// body, newline separated.
func SigningMessage(timestamp, method, path string, body []byte) []byte {
	sum := sha256.Sum256(body)
	return []byte(fmt.Sprintf("%s\n%s\n%s\n%s", timestamp, method, path, hex.EncodeToString(sum[:])))
}

// RequireSignature authenticates mutating requests. The caller signs
// SigningMessage with the Ed25519 key behind its account and sends the
// account, timestamp, and base64 signature as headers. On success the
// verified account is stored in the request context.
func (h *Handlers) RequireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountHdr := r.Header.Get(HeaderAccount)
		timestamp := r.Header.Get(HeaderTimestamp)
		signature := r.Header.Get(HeaderSignature)
		if accountHdr == "" || timestamp == "" || signature == "" {
			metrics.RecordAuthFailure("missing")
			writeError(w, http.StatusUnauthorized, "missing_signature",
				"Request must carry X-Account, X-Timestamp, and X-Signature headers.")
			return
		}

		account, err := identity.ParseAccount(accountHdr)
		if err != nil {
			metrics.RecordAuthFailure("account")
			writeError(w, http.StatusUnauthorized, "invalid_account", "X-Account is not a valid account key.")
			return
		}

		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			metrics.RecordAuthFailure("stale")
			writeError(w, http.StatusUnauthorized, "invalid_timestamp", "X-Timestamp must be RFC3339.")
			return
		}
		if skew := h.clock.Since(ts); skew > h.maxSkew || skew < -h.maxSkew {
			metrics.RecordAuthFailure("stale")
			writeError(w, http.StatusUnauthorized, "stale_timestamp",
				"Request timestamp is outside the accepted window.")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable_body", "Failed to read request body.")
			return
		}
		if len(body) > maxBodyBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body exceeds 1MB.")
			return
		}
		// The body was consumed to hash it; hand the handler a fresh reader.
		r.Body = io.NopCloser(bytes.NewReader(body))

		msg := SigningMessage(timestamp, r.Method, r.URL.Path, body)
		if err := identity.VerifySignature(account, msg, signature); err != nil {
			metrics.RecordAuthFailure("signature")
			h.log.Debug("rejected request signature",
				"account", account, "method", r.Method, "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "bad_signature", "Signature verification failed.")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithAccount(r.Context(), account)))
	})
}
