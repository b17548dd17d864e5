package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"email":"a@b.c","password":"pw"}`},
		{name: "malformed", body: `{"email":`, wantErr: "invalid JSON"},
		{name: "unknown field", body: `{"email":"a@b.c","role":"admin"}`, wantErr: "unknown field"},
		{name: "trailing object", body: `{"email":"a"}{"email":"b"}`, wantErr: "single object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dest loginBody
			err := ParseJSON(httptest.NewRecorder(), req, &dest)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "a@b.c", dest.Email)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseJSON_TooLarge(t *testing.T) {
	body := `{"email":"` + strings.Repeat("x", MaxJSONBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	err := ParseJSON(httptest.NewRecorder(), req, &loginBody{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestParseJSONOrError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("nope"))
	assert.False(t, ParseJSONOrError(rec, req, &loginBody{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{value: "42", want: 42},
		{value: "0", wantErr: true},
		{value: "-3", wantErr: true},
		{value: "abc", wantErr: true},
		{value: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": tt.value})
			got, err := ParsePathInt64(req, "id")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathInt64OrError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "x"})
	_, ok := ParsePathInt64OrError(rec, req, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&unread=true&bad=x", nil)

	limit, err := ParseQueryInt(req, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	missing, err := ParseQueryInt(req, "offset", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, missing)

	_, err = ParseQueryInt(req, "bad", 0)
	assert.Error(t, err)

	unread, err := ParseQueryBool(req, "unread", false)
	require.NoError(t, err)
	assert.True(t, unread)

	_, err = ParseQueryBool(req, "bad", false)
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:51234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Real-IP", "198.51.100.2")

	assert.Equal(t, "10.0.0.5", ClientIP(req, false))
	assert.Equal(t, "203.0.113.9", ClientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.2", ClientIP(req, true))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", ClientIP(req, false))
}
