package cursor

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)

	tests := []struct {
		name string
		at   time.Time
	}{
		{"utc seconds", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"microseconds", time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)},
		{"nanoseconds", time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)},
		{"non-utc zone", time.Date(2025, 12, 31, 23, 59, 59, 0, moscow)},
		{"far past", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := Encode(Key{PublishedAt: tt.at})
			got := Decode(token)
			require.NotNil(t, got)
			assert.True(t, got.PublishedAt.Equal(tt.at), "got %v, want %v", got.PublishedAt, tt.at)
		})
	}
}

func TestEncodeIsURLSafe(t *testing.T) {
	token := Encode(Key{PublishedAt: time.Date(2026, 10, 16, 8, 30, 0, 999999999, time.UTC)})

	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
}

func TestDecodeGarbage(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not a token", "not-a-valid-token"},
		{"base64 of non-json", base64.RawURLEncoding.EncodeToString([]byte("hello"))},
		{"json without key", base64.RawURLEncoding.EncodeToString([]byte(`{"id":"42"}`))},
		{"json with bad date", base64.RawURLEncoding.EncodeToString([]byte(`{"publishedAt":"yesterday"}`))},
		{"json with wrong type", base64.RawURLEncoding.EncodeToString([]byte(`{"publishedAt":12}`))},
		{"json null", base64.RawURLEncoding.EncodeToString([]byte(`null`))},
		{"zero time", base64.RawURLEncoding.EncodeToString([]byte(`{"publishedAt":"0001-01-01T00:00:00Z"}`))},
		{"oversized", strings.Repeat("A", maxTokenLen+1)},
		{"binary noise", "\x00\xff\xfe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Nil(t, Decode(tt.token))
			})
		})
	}
}

func TestDecodeLegacyStandardBase64(t *testing.T) {
	// Tokens issued before the switch to the URL alphabet were padded
	// standard base64 of the same JSON body.
	legacy := base64.StdEncoding.EncodeToString([]byte(`{"publishedAt":"2026-02-03T04:05:06.000Z"}`))

	got := Decode(legacy)
	require.NotNil(t, got)
	assert.True(t, got.PublishedAt.Equal(time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)))
}

func TestTokenDoesNotLeakIDs(t *testing.T) {
	token := Encode(Key{PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.JSONEq(t, `{"publishedAt":"2026-01-01T00:00:00Z"}`, string(raw))
}
