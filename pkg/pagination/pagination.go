// Package pagination carries keyset cursors over (created_at, id).
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxPageSize caps a single keyset read.
const MaxPageSize = 500

// Page asks for at most Limit rows strictly after the After token.
type Page struct {
	Limit int
	After string
}

// Keyset is the last (created_at, id) pair a page returned.
type Keyset struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// ClampLimit maps non-positive limits to MaxPageSize and caps the rest.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// Token renders the keyset as an opaque URL-safe string.
func (k Keyset) Token() string {
	raw, _ := json.Marshal(Keyset{CreatedAt: k.CreatedAt.UTC(), ID: k.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseToken reverses Token. An empty token means the first page.
func ParseToken(token string) (*Keyset, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode page token: %w", err)
	}
	var k Keyset
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("parse page token: %w", err)
	}
	if k.ID == uuid.Nil || k.CreatedAt.IsZero() {
		return nil, fmt.Errorf("page token missing keyset fields")
	}
	return &k, nil
}
