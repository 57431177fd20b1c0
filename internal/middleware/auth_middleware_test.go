package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(v *DefaultTokenValidator, scopes ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(logger.NewNop()))
	router.GET("/me", NewJWTMiddleware(v, logger.NewNop()).RequireAuth(scopes...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "wallet": Wallet(c)})
	})
	return router
}

func TestRequireAuth(t *testing.T) {
	v := &DefaultTokenValidator{Secret: []byte("test-secret")}
	other := &DefaultTokenValidator{Secret: []byte("other-secret")}

	valid, err := v.Sign("user-1", "Wa11et", "payments", time.Hour)
	require.NoError(t, err)
	admin, err := v.Sign("admin-1", "", "payments admin", time.Hour)
	require.NoError(t, err)
	expired, err := v.Sign("user-1", "", "payments", -time.Minute)
	require.NoError(t, err)
	forged, err := other.Sign("user-1", "", "admin", time.Hour)
	require.NoError(t, err)
	noSubject, err := v.Sign("", "", "payments", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		scopes []string
		want   int
	}{
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + valid, want: http.StatusOK},
		{name: "expired", header: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "wrong signature", header: "Bearer " + forged, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not-a-token", want: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + noSubject, want: http.StatusUnauthorized},
		{name: "missing scope", header: "Bearer " + valid, scopes: []string{ScopeAdmin}, want: http.StatusForbidden},
		{name: "admin scope", header: "Bearer " + admin, scopes: []string{ScopeAdmin}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			newRouter(v, tt.scopes...).ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireAuth_SetsContext(t *testing.T) {
	v := &DefaultTokenValidator{Secret: []byte("test-secret")}
	token, err := v.Sign("user-1", "Wa11et", "payments", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	newRouter(v).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"user-1","wallet":"Wa11et"}`, w.Body.String())
}

func TestHasRequiredScope(t *testing.T) {
	assert.True(t, hasRequiredScope("", nil))
	assert.True(t, hasRequiredScope("payments admin", []string{ScopeAdmin}))
	assert.False(t, hasRequiredScope("payments administrator", []string{ScopeAdmin}))
	assert.False(t, hasRequiredScope("", []string{ScopeAdmin}))
}
