package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/activitymonitor/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{StartedAt: time.Date(2025, time.October, 27, 8, 0, 0, 123, time.UTC), ID: "abc"}

	token := EncodeCursor(in)
	require.NotContains(t, token, "=")

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))

	encode := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	for name, token := range map[string]string{
		"not base64":  "%%%",
		"not json":    encode("yesterday|id"),
		"missing id":  encode(`{"s": 1761552000000000000}`),
		"missing ts":  encode(`{"i": "abc"}`),
		"wrong types": encode(`{"s": "now", "i": "abc"}`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCursor(token)
			require.ErrorIs(t, err, errMalformedCursor)
		})
	}
}
