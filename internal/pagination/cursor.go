// Package pagination implements keyset (cursor) pagination over any ordered source.
//
// A cursor is an opaque, URL-safe token wrapping a Marker: the sort-key value and id of the
// row the next page starts after. Clients must treat cursors as opaque; the encoding is not
// guaranteed to be stable across releases.
package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// sortKeyTimeLayout is a fixed-width UTC layout so encoded timestamps compare lexically.
const sortKeyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Marker is the decoded position carried by a cursor.
type Marker struct {
	// SortKey is the primary sort value of the anchor row: a string or a float64.
	// Decoding always yields float64 for numbers, so markers built with other numeric
	// types only compare equal to their decoded form after conversion.
	SortKey any `json:"sortKey"`
	// ID is the tie-breaker of the anchor row.
	ID string `json:"id"`
	// Before asks for the page that ends just before the anchor row.
	Before bool `json:"before,omitempty"`
}

// EncodeCursor serialises m as JSON and base64 (URL alphabet, unpadded) encodes it.
func EncodeCursor(m Marker) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses a cursor token. Any malformed, tampered or empty token yields nil,
// which callers treat as "start from the beginning".
func DecodeCursor(token string) *Marker {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	raw, ok := decodeBase64(token)
	if !ok {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload struct {
		SortKey any  `json:"sortKey"`
		ID      any  `json:"id"`
		Before  bool `json:"before"`
	}
	if err := dec.Decode(&payload); err != nil {
		return nil
	}
	if dec.More() {
		return nil
	}

	id, ok := payload.ID.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return nil
	}
	key, ok := normalizeSortKey(payload.SortKey)
	if !ok {
		return nil
	}

	return &Marker{SortKey: key, ID: id, Before: payload.Before}
}

// decodeBase64 accepts both the URL alphabet and the padded standard alphabet used by older clients.
func decodeBase64(token string) ([]byte, bool) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}
	for _, enc := range encodings {
		if raw, err := enc.DecodeString(token); err == nil {
			return raw, true
		}
	}
	return nil, false
}

func normalizeSortKey(v any) (any, bool) {
	switch key := v.(type) {
	case string:
		return key, true
	case json.Number:
		f, err := key.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// FormatTimeKey renders t as a sort key that orders lexically the same way it orders in time.
func FormatTimeKey(t time.Time) string {
	return t.UTC().Format(sortKeyTimeLayout)
}

// ParseTimeKey parses a sort key produced by FormatTimeKey. RFC 3339 values are accepted as well.
func ParseTimeKey(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("time sort key must be a string, got %T", v)
	}
	if t, err := time.Parse(sortKeyTimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time sort key: %w", err)
	}
	return t.UTC(), nil
}

// FloatKey returns v as a float64 sort key.
func FloatKey(v any) (float64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("numeric sort key must be a number, got %T", v)
	}
	return f, nil
}

// StringKey returns v as a string sort key.
func StringKey(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("text sort key must be a string, got %T", v)
	}
	return s, nil
}
