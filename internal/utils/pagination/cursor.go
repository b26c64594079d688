package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is the opaque pagination state we encode/decode.
// CreatedUnix (in nanos) + ID establish a stable position in a creation-ordered listing.
type Cursor struct {
	CreatedUnix int64  `json:"created_unix,omitempty"`
	ID          string `json:"id"`
}

// After builds the cursor pointing just past an item.
func After(created time.Time, id string) Cursor {
	return Cursor{CreatedUnix: created.UnixNano(), ID: id}
}

// Empty reports whether c is the first-page cursor.
func (c Cursor) Empty() bool { return c.ID == "" && c.CreatedUnix == 0 }

// Precedes reports whether an item at (created, id) sorts strictly after c.
func (c Cursor) Precedes(created time.Time, id string) bool {
	n := created.UnixNano()
	if n != c.CreatedUnix {
		return n > c.CreatedUnix
	}
	return id > c.ID
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}
	return c, nil
}
