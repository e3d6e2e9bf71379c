package auth_test

import (
	"net/http"
	"testing"

	auth "github.com/goliatone/go-auth-guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginGuard_IsAllowed(t *testing.T) {
	guard, err := auth.NewOriginGuard([]string{
		"https://admin.example.com/",
		"http://localhost:3000",
		"https://*.example.org",
		`re:^https://preview-[0-9]+\.example\.net$`,
		"  ",
	})
	require.NoError(t, err)

	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "", want: true},
		{origin: "https://admin.example.com", want: true},
		{origin: "http://localhost:3000", want: true},
		{origin: "http://localhost:3001", want: false},
		{origin: "https://app.example.org", want: true},
		{origin: "https://deep.app.example.org", want: false},
		{origin: "https://example.org", want: false},
		{origin: "https://preview-42.example.net", want: true},
		{origin: "https://preview-x.example.net", want: false},
		{origin: "https://evil.com", want: false},
		{origin: "https://admin.example.com.evil.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.IsAllowed(tt.origin))
		})
	}
}

func TestOriginGuard_InvalidPatterns(t *testing.T) {
	_, err := auth.NewOriginGuard([]string{"re:(unclosed"})
	assert.Error(t, err)

	assert.Panics(t, func() {
		auth.MustOriginGuard("re:(unclosed")
	})
}

func TestOriginGuard_Guard(t *testing.T) {
	guard := auth.MustOriginGuard("https://admin.example.com")

	t.Run("allowed origin is echoed", func(t *testing.T) {
		h := http.Header{}

		ok := guard.Guard("https://admin.example.com", h)

		assert.True(t, ok)
		assert.Equal(t, "https://admin.example.com", h.Get(auth.HeaderAllowOrigin))
		assert.Equal(t, "Origin", h.Get("Vary"))
		assert.Equal(t, "true", h.Get(auth.HeaderAllowCredentials))
		assert.Contains(t, h.Get(auth.HeaderAllowMethods), "POST")
		assert.Contains(t, h.Get(auth.HeaderAllowHeaders), "Authorization")
		assert.Contains(t, h.Get("Cache-Control"), "no-store")
		assert.Equal(t, "no-cache", h.Get("Pragma"))
		assert.Equal(t, "0", h.Get("Expires"))
	})

	t.Run("disallowed origin gets null", func(t *testing.T) {
		h := http.Header{}

		ok := guard.Guard("https://evil.com", h)

		assert.False(t, ok)
		assert.Equal(t, "null", h.Get(auth.HeaderAllowOrigin))
		assert.Empty(t, h.Get("Vary"))
		assert.Contains(t, h.Get("Cache-Control"), "no-store")
	})

	t.Run("no origin sets no allow origin", func(t *testing.T) {
		h := http.Header{}

		ok := guard.Guard("", h)

		assert.True(t, ok)
		assert.Empty(t, h.Values(auth.HeaderAllowOrigin))
		assert.Equal(t, "no-cache", h.Get("Pragma"))
	})
}

func TestOriginGuard_EmptyListRejectsBrowsers(t *testing.T) {
	guard := auth.MustOriginGuard()

	assert.True(t, guard.IsAllowed(""))
	assert.False(t, guard.IsAllowed("https://admin.example.com"))
}
