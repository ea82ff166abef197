package secretbox

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	raw := make([]byte, RequiredKeyLength)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	box, err := New(testKey(t), "session")
	require.NoError(t, err)

	msg := `{"access_token":"shcat_abc123","exp":1735689600}`
	sealed, err := box.Seal(msg)
	require.NoError(t, err)
	require.NotContains(t, sealed, "shcat_abc123")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, msg, plain)
}

func TestOpen_DetectsTamper(t *testing.T) {
	box, err := New(testKey(t), "session")
	require.NoError(t, err)

	sealed, err := box.Seal("top secret")
	require.NoError(t, err)

	parts := strings.SplitN(sealed, ".", 2)
	require.Len(t, parts, 2)

	ct, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	ct[0] ^= 0x01
	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString(ct)

	_, err = box.Open(tampered)
	require.ErrorIs(t, err, ErrOpenFailed)
}

func TestOpen_Malformed(t *testing.T) {
	box, err := New(testKey(t), "session")
	require.NoError(t, err)

	for _, raw := range []string{"", "noseparator", ".leading", "trailing.", "!!.!!"} {
		_, err := box.Open(raw)
		require.Error(t, err, "input %q", raw)
	}
}

func TestPurposeSeparation(t *testing.T) {
	key := testKey(t)
	session, err := New(key, "session")
	require.NoError(t, err)
	state, err := New(key, "oauth-state")
	require.NoError(t, err)

	sealed, err := session.Seal("hello")
	require.NoError(t, err)

	// A different purpose must not open the value even with the same master key.
	_, err = state.Open(sealed)
	require.ErrorIs(t, err, ErrOpenFailed)
}

func TestParseMasterKey(t *testing.T) {
	raw := testKey(t)
	got, err := ParseMasterKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, got)

	got, err = ParseMasterKey(base64.RawStdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, got)

	_, err = ParseMasterKey("")
	require.Error(t, err)

	_, err = ParseMasterKey(base64.StdEncoding.EncodeToString(raw[:16]))
	require.ErrorIs(t, err, ErrBadKey)
}
