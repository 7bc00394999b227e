package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"npcshop-be/internal/auth"
	"npcshop-be/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestCors(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CORS("http://localhost:3000")(nextHandler)

	t.Run("OPTIONS request", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/api/checkout", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Normal request", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/orders", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuth(t *testing.T) {
	mw := Auth(testSecret)

	t.Run("Missing Token", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := utils.GetUserIDFromContext(r.Context())
			assert.False(t, ok, "Context should not contain user ID")
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/api/orders", nil)
		w := httptest.NewRecorder()

		mw(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Invalid Token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		mw(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"invalid or expired token"}`, w.Body.String())
	})

	t.Run("Valid Token", func(t *testing.T) {
		tokenString, err := auth.SignAccessToken(testSecret, 1, "budi@example.com", utils.RoleAdmin, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := utils.GetUserIDFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, int64(1), userID)
			assert.Equal(t, "budi@example.com", utils.GetUserEmailFromContext(r.Context()))
			assert.True(t, utils.IsAdmin(r.Context()))
			w.WriteHeader(http.StatusOK)
		})

		mw(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Cookie Token", func(t *testing.T) {
		tokenString, err := auth.SignAccessToken(testSecret, 9, "", "USER", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/orders", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: tokenString})
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := utils.GetUserIDFromContext(r.Context())
			assert.Equal(t, int64(9), userID)
		})

		mw(next).ServeHTTP(w, req)
	})

	t.Run("Expired Token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": float64(1),
			"exp":     time.Now().Add(-time.Hour).Unix(), // Expired
		})
		tokenString, err := token.SignedString(testSecret)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		mw(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/orders", nil)
		req.Header.Set("Authorization", "Basic user:pass") // Wrong scheme
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := utils.GetUserIDFromContext(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		})

		mw(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireUserAndAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name      string
		userID    int64
		role      string
		wantUser  int
		wantAdmin int
	}{
		{"Anonymous", 0, "", http.StatusUnauthorized, http.StatusUnauthorized},
		{"Customer", 7, "USER", http.StatusOK, http.StatusForbidden},
		{"Admin", 1, utils.RoleAdmin, http.StatusOK, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.userID > 0 {
				req = req.WithContext(utils.SetUserContext(req.Context(), tt.userID, "", tt.role))
			}

			w := httptest.NewRecorder()
			RequireUser(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.wantUser, w.Code)

			w = httptest.NewRecorder()
			RequireAdmin(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.wantAdmin, w.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("StrictTierOnRecovery", func(t *testing.T) {
		handler := NewRateLimiter("").Middleware(ok)

		var codes []int
		for i := 0; i < burstStrict+1; i++ {
			req := httptest.NewRequest("GET", "/api/orders/recover?ref=TMP-1", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}

		assert.Equal(t, http.StatusOK, codes[0])
		assert.Equal(t, http.StatusTooManyRequests, codes[burstStrict])
	})

	t.Run("TiersHaveSeparateBuckets", func(t *testing.T) {
		handler := NewRateLimiter("").Middleware(ok)

		for i := 0; i < burstStrict; i++ {
			req := httptest.NewRequest("POST", "/api/checkout", nil)
			req.Header.Set("X-Device-ID", "dev-1")
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}

		req := httptest.NewRequest("GET", "/api/orders", nil)
		req.Header.Set("X-Device-ID", "dev-1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ResolveTier", func(t *testing.T) {
		l := NewRateLimiter("svc-key")

		req := httptest.NewRequest("POST", "/webhook/payment", nil)
		_, _, tier := l.resolveRateTier(req)
		assert.Equal(t, "strict", tier)

		req.Header.Set("X-Service-Auth", "svc-key")
		_, _, tier = l.resolveRateTier(req)
		assert.Equal(t, "internal", tier)

		_, _, tier = l.resolveRateTier(httptest.NewRequest("GET", "/api/orders/12", nil))
		assert.Equal(t, "general", tier)
	})

	t.Run("SweepDropsIdleVisitors", func(t *testing.T) {
		l := NewRateLimiter("")
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		l.now = func() time.Time { return now }

		l.getVisitor("ip:1:general", limitGeneral, burstGeneral)
		now = now.Add(visitorIdle + time.Second)
		l.getVisitor("ip:2:general", limitGeneral, burstGeneral)

		l.sweep()

		assert.NotContains(t, l.visitors, "ip:1:general")
		assert.Contains(t, l.visitors, "ip:2:general")
	})
}
