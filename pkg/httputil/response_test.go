package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusAccepted, map[string]string{"status": "ok"}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.E(apperr.KindUnauthenticated, "op", ""), http.StatusUnauthorized},
		{apperr.E(apperr.KindInvalidSession, "op", ""), http.StatusUnauthorized},
		{apperr.E(apperr.KindCrossTenant, "op", ""), http.StatusNotFound},
		{apperr.E(apperr.KindNotFound, "op", ""), http.StatusNotFound},
		{apperr.E(apperr.KindNoTenant, "op", ""), http.StatusForbidden},
		{apperr.E(apperr.KindInsufficientRole, "op", ""), http.StatusForbidden},
		{apperr.E(apperr.KindForbidden, "op", ""), http.StatusForbidden},
		{apperr.Validationf("op", "bad"), http.StatusBadRequest},
		{apperr.E(apperr.KindConflict, "op", ""), http.StatusConflict},
		{apperr.Wrap(apperr.KindTransient, "op", errors.New("busy")), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(apperr.KindOf(tt.err).String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestWriteAppError_CrossTenantLooksLikeNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/7", nil)

	cross := httptest.NewRecorder()
	WriteAppError(cross, req, apperr.E(apperr.KindCrossTenant, "get project", "organization mismatch"))

	missing := httptest.NewRecorder()
	WriteAppError(missing, req, apperr.E(apperr.KindNotFound, "get project", "project 7"))

	assert.Equal(t, http.StatusNotFound, cross.Code)
	assert.Equal(t, missing.Code, cross.Code)
	assert.Equal(t, missing.Body.String(), cross.Body.String())
	assert.NotContains(t, cross.Body.String(), "organization")
}

func TestWriteAppError_RoleDenialsShareBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/7/review", nil)

	role := httptest.NewRecorder()
	WriteAppError(role, req, apperr.E(apperr.KindInsufficientRole, "review", "reviewer required"))
	owner := httptest.NewRecorder()
	WriteAppError(owner, req, apperr.E(apperr.KindForbidden, "review", "not owner"))

	assert.Equal(t, http.StatusForbidden, role.Code)
	assert.Equal(t, owner.Body.String(), role.Body.String())
	assert.Equal(t, "forbidden", decodeError(t, role).Error)
}

func TestWriteAppError_Validation(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, httptest.NewRequest(http.MethodPost, "/", nil), apperr.Validationf("create project", "title is required"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "title is required", body.Error)
	assert.Equal(t, "validation", body.Code)
}

func TestWriteAppError_TransientSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperr.Wrap(apperr.KindTransient, "list", errors.New("database is locked")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "locked")
}

func TestWriteAppError_InternalHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: relation does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "internal error", body.Error)
	assert.Equal(t, "internal", body.Code)
}

func TestWriteTooManyRequests(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTooManyRequests(rec, "slow down")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Code)
}
