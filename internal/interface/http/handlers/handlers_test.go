package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("1.0.0")
	c.AddCheck("database", func(context.Context) error { return nil })
	c.AddOptionalCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready, "optional failure keeps the service ready")
	assert.Equal(t, "Some checks failed: redis", status.Message)
	assert.True(t, status.Checks["database"].Healthy)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)

	c.AddCheck("database", func(context.Context) error { return errors.New("down") })
	status = c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: database, redis", status.Message)

	c.RemoveCheck("database")
	c.RemoveCheck("redis")
	status = c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-key"), bcrypt.MinCost)
	require.NoError(t, err)
	auth := NewAPIKeyAuth([]string{" ", string(hash)})
	require.True(t, auth.Enabled())

	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
		code   string
	}{
		{"missing", "", "", http.StatusUnauthorized, "missing_api_key"},
		{"wrong", APIKeyHeader, "nope", http.StatusUnauthorized, "invalid_api_key"},
		{"header", APIKeyHeader, "secret-key", http.StatusNoContent, ""},
		{"bearer", "Authorization", "Bearer secret-key", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.code != "" {
				assert.Contains(t, rec.Body.String(), tt.code)
			}
		})
	}
}

func TestAPIKeyAuth_DisabledPassesThrough(t *testing.T) {
	auth := NewAPIKeyAuth(nil)
	assert.False(t, auth.Enabled())

	rec := httptest.NewRecorder()
	auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHashKey(t *testing.T) {
	hash, err := HashKey("k")
	require.NoError(t, err)
	assert.True(t, NewAPIKeyAuth([]string{hash}).IsValid("k"))
	assert.False(t, NewAPIKeyAuth([]string{hash}).IsValid("other"))
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimitMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("outer"), mw("inner"), SecurityHeadersMiddleware)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
