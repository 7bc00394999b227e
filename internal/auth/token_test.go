package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAccessToken(t *testing.T) {
	t.Run("Cookie Preferred", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie_token"})
		// Add header as well to ensure cookie takes precedence
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "cookie_token", token)
	})

	t.Run("Header Fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "header_token", token)
	})

	t.Run("Empty Cookie Falls Back to Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: ""})
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "header_token", token)
	})

	t.Run("No Token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		token := ExtractAccessToken(req)
		assert.Empty(t, token)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic user:pass")

		token := ExtractAccessToken(req)
		assert.Empty(t, token)
	})
}

func TestParseAccessToken(t *testing.T) {
	secret := []byte("test-secret")

	t.Run("Valid", func(t *testing.T) {
		tok, err := SignAccessToken(secret, 7, "budi@example.com", "USER", time.Hour)
		require.NoError(t, err)

		claims, err := ParseAccessToken(tok, secret)
		require.NoError(t, err)
		assert.Equal(t, int64(7), claims.UserID)
		assert.Equal(t, "budi@example.com", claims.Email)
		assert.Equal(t, "USER", claims.Role)
	})

	t.Run("Expired", func(t *testing.T) {
		tok, err := SignAccessToken(secret, 7, "", "USER", -time.Hour)
		require.NoError(t, err)

		_, err = ParseAccessToken(tok, secret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		tok, err := SignAccessToken([]byte("other"), 7, "", "USER", time.Hour)
		require.NoError(t, err)

		_, err = ParseAccessToken(tok, secret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("NoUser", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"role": "USER",
			"exp":  time.Now().Add(time.Hour).Unix(),
		}).SignedString(secret)
		require.NoError(t, err)

		_, err = ParseAccessToken(tok, secret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("NoSecret", func(t *testing.T) {
		_, err := ParseAccessToken("x", nil)
		assert.ErrorIs(t, err, ErrMissingSecret)
	})
}
