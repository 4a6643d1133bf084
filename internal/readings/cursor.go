package readings

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor wraps a store continuation key for use in a URL query.
func EncodeCursor(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

func DecodeCursor(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(v, "="))
	if err != nil || len(b) == 0 {
		return nil, ErrInvalidCursor
	}
	return b, nil
}
