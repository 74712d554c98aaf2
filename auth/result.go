package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Error codes surfaced to clients in the structured error body.
const (
	CodeAuthError       = "AuthError"
	CodeAuthUIRequired  = "AuthUIRequired"
	CodeAccessDenied    = "AccessDenied"
	CodeTooManyRequests = "TooManyRequests"
	CodeInternalError   = "InternalError"
)

// ErrorResponse is the machine-readable error body written by WriteError.
type ErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// WriteError maps an error from this core to a structured HTTP response.
// ConsentRequiredError additionally emits the WWW-Authenticate challenge.
// Errors outside the taxonomy become a generic 500: full detail goes to the
// log, never to the client.
func WriteError(ctx context.Context, w http.ResponseWriter, log *slog.Logger, err error) {
	var consent *ConsentRequiredError
	if errors.As(err, &consent) {
		log.ErrorContext(ctx, "interactive consent required", "err", err)
		w.Header().Set("WWW-Authenticate", consent.WWWAuthenticate())
		writeJSONError(w, http.StatusUnauthorized, CodeAuthUIRequired, consent.Reason)
		return
	}

	switch {
	case errors.Is(err, ErrMissingAuthHeader),
		errors.Is(err, ErrMissingTenantHeader),
		errors.Is(err, ErrMissingSubjectToken),
		errors.Is(err, ErrMalformedHeader),
		errors.Is(err, ErrClaimMismatch),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrSignatureKeyNotFound),
		errors.Is(err, ErrUnsupportedTokenVersion),
		errors.Is(err, ErrShapeViolation),
		errors.Is(err, ErrInvalidClaims),
		errors.Is(err, ErrAccessTokenMissing),
		errors.Is(err, ErrAuthenticationFailed):
		log.ErrorContext(ctx, "authentication failed", "err", err)
		writeJSONError(w, http.StatusUnauthorized, CodeAuthError, err.Error())
	case errors.Is(err, ErrInsufficientScope), errors.Is(err, ErrPermissionDenied):
		log.ErrorContext(ctx, "access denied", "err", err)
		writeJSONError(w, http.StatusForbidden, CodeAccessDenied, err.Error())
	case errors.Is(err, ErrRateLimited):
		log.WarnContext(ctx, "rate limited by upstream", "err", err)
		writeJSONError(w, http.StatusTooManyRequests, CodeTooManyRequests, err.Error())
	case errors.Is(err, ErrUpstreamUnavailable):
		log.ErrorContext(ctx, "upstream unavailable", "err", err)
		writeJSONError(w, http.StatusBadGateway, CodeInternalError, "upstream service unavailable")
	default:
		log.ErrorContext(ctx, "unclassified error", "err", err)
		writeJSONError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{ErrorCode: code, Message: msg})
}
