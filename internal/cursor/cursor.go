// Package cursor encodes and decodes the opaque pagination tokens handed
// to feed clients. A token carries only the sort key of the last item on
// the previous page, never an internal id.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// maxTokenLen bounds the input accepted by Decode. Real tokens are well
// under 100 bytes.
const maxTokenLen = 512

// Key is the resume point of a feed page.
type Key struct {
	PublishedAt time.Time
}

// payload is the JSON body inside a token. The field name matches tokens
// issued by earlier versions of the API so old cursors keep working.
type payload struct {
	PublishedAt string `json:"publishedAt"`
}

// Encode returns a URL-safe token for k.
func Encode(k Key) string {
	b, _ := json.Marshal(payload{PublishedAt: k.PublishedAt.UTC().Format(time.RFC3339Nano)})
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a token produced by Encode. It returns nil for an empty,
// malformed or tampered token so callers can fall back to the first page.
func Decode(token string) *Key {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLen {
		return nil
	}

	raw, ok := decodeBase64(token)
	if !ok {
		return nil
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	if p.PublishedAt == "" {
		return nil
	}

	ts, err := time.Parse(time.RFC3339Nano, p.PublishedAt)
	if err != nil || ts.IsZero() {
		return nil
	}
	return &Key{PublishedAt: ts.UTC()}
}

// decodeBase64 accepts the unpadded URL alphabet used by Encode as well as
// the padded standard alphabet of legacy tokens.
func decodeBase64(s string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, true
		}
	}
	return nil, false
}
