// Package persistence holds helpers shared by the storage layer and the HTTP API.
package persistence

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/activitymonitor/internal/domain"
)

var errMalformedCursor = errors.New("malformed cursor")

// cursorToken is the JSON body of an opaque page token.
type cursorToken struct {
	StartedAt int64  `json:"s"`
	ID        string `json:"i"`
}

// EncodeCursor renders c as a URL safe token. A nil cursor encodes to "".
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw, _ := json.Marshal(cursorToken{StartedAt: c.StartedAt.UnixNano(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor reverses EncodeCursor. The empty token means "first page" and decodes to nil.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}

	var decoded cursorToken
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	if decoded.ID == "" || decoded.StartedAt == 0 {
		return nil, fmt.Errorf("%w: incomplete position", errMalformedCursor)
	}
	return &domain.Cursor{StartedAt: time.Unix(0, decoded.StartedAt).UTC(), ID: decoded.ID}, nil
}
