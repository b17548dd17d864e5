package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/observability"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	writeErrorBody(w, status, ErrorResponse{Error: message})
}

func writeErrorBody(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	writeErrorBody(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: apperr.KindValidation.String()})
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	writeErrorBody(w, http.StatusTooManyRequests, ErrorResponse{Error: message, Code: "rate_limited"})
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Bodies shared by kinds that must be indistinguishable to the client
var (
	notFoundBody  = ErrorResponse{Error: "not found", Code: apperr.KindNotFound.String()}
	forbiddenBody = ErrorResponse{Error: "forbidden", Code: apperr.KindForbidden.String()}
)

// StatusOf maps an error to its HTTP status
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated, apperr.KindInvalidSession:
		return http.StatusUnauthorized
	case apperr.KindCrossTenant, apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindNoTenant, apperr.KindInsufficientRole, apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err as a JSON reply and logs it. Cross-tenant reads
// share the not-found body, and role denials share the forbidden body, so a
// client cannot tell which rule fired. Faults never expose their cause.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := StatusOf(err)
	log := observability.FromContext(r.Context()).WithError(err).WithField("kind", kind.String())

	var body ErrorResponse
	switch kind {
	case apperr.KindCrossTenant, apperr.KindNotFound:
		body = notFoundBody
		log.Debug("Request denied")
	case apperr.KindNoTenant, apperr.KindInsufficientRole, apperr.KindForbidden:
		body = forbiddenBody
		log.Debug("Request denied")
	case apperr.KindUnauthenticated:
		body = ErrorResponse{Error: messageOr(err, "authentication required"), Code: kind.String()}
		log.Debug("Request unauthenticated")
	case apperr.KindInvalidSession:
		body = ErrorResponse{Error: "session is no longer valid", Code: kind.String()}
		log.Info("Session rejected")
	case apperr.KindValidation, apperr.KindConflict:
		body = ErrorResponse{Error: messageOr(err, kind.String()), Code: kind.String()}
	case apperr.KindTransient:
		w.Header().Set("Retry-After", "1")
		body = ErrorResponse{Error: "service temporarily unavailable", Code: kind.String()}
		log.Warn("Transient store error")
	default:
		body = ErrorResponse{Error: "internal error", Code: apperr.KindInternal.String()}
		log.Error("Request failed")
	}

	writeErrorBody(w, status, body)
}

func messageOr(err error, fallback string) string {
	if msg := apperr.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}
