package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		marker Marker
	}{
		{name: "string sort key", marker: Marker{SortKey: "2024-01-02T03:04:05.000000000Z", ID: "b"}},
		{name: "numeric sort key", marker: Marker{SortKey: 19.99, ID: "c"}},
		{name: "zero numeric sort key", marker: Marker{SortKey: 0.0, ID: "d"}},
		{name: "empty string sort key", marker: Marker{SortKey: "", ID: "e"}},
		{name: "backward marker", marker: Marker{SortKey: 4.0, ID: "f", Before: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, err := EncodeCursor(tt.marker)
			require.NoError(t, err)
			assert.NotContains(t, token, "=")

			got := DecodeCursor(token)
			require.NotNil(t, got)
			assert.Equal(t, tt.marker, *got)
		})
	}
}

func TestDecodeCursor_NumbersComeBackAsFloat64(t *testing.T) {
	t.Parallel()

	token, err := EncodeCursor(Marker{SortKey: 5, ID: "a"})
	require.NoError(t, err)

	got := DecodeCursor(token)
	require.NotNil(t, got)
	assert.Equal(t, float64(5), got.SortKey)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	t.Parallel()

	b64 := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "whitespace", token: "   "},
		{name: "garbage", token: "garbage-not-base64-json"},
		{name: "not json", token: b64("hello")},
		{name: "json array", token: b64(`[1,2]`)},
		{name: "missing id", token: b64(`{"sortKey":1}`)},
		{name: "blank id", token: b64(`{"sortKey":1,"id":"  "}`)},
		{name: "numeric id", token: b64(`{"sortKey":1,"id":7}`)},
		{name: "object sort key", token: b64(`{"sortKey":{"a":1},"id":"x"}`)},
		{name: "null sort key", token: b64(`{"sortKey":null,"id":"x"}`)},
		{name: "trailing data", token: b64(`{"sortKey":1,"id":"x"}{}`)},
		{name: "truncated", token: b64(`{"sortKey":1,"id":"x"`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotPanics(t, func() {
				assert.Nil(t, DecodeCursor(tt.token))
			})
		})
	}
}

func TestDecodeCursor_AcceptsStandardBase64(t *testing.T) {
	t.Parallel()

	token := base64.StdEncoding.EncodeToString([]byte(`{"sortKey":"2024-05-01T00:00:00Z","id":"p-1"}`))
	got := DecodeCursor(token)
	require.NotNil(t, got)
	assert.Equal(t, "p-1", got.ID)
	assert.Equal(t, "2024-05-01T00:00:00Z", got.SortKey)
}

func TestTimeKeyOrdersLexically(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := FormatTimeKey(base)
	later := FormatTimeKey(base.Add(1500 * time.Millisecond))
	assert.Less(t, earlier, later)

	parsed, err := ParseTimeKey(later)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(base.Add(1500*time.Millisecond)))

	parsed, err = ParseTimeKey("2024-03-01T13:00:00+01:00")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(base))

	_, err = ParseTimeKey(12.0)
	assert.Error(t, err)
}
