package credstore

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintToken(t *testing.T, payload string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return header + "." + body + ".signature"
}

func TestIsExpired_FutureExp(t *testing.T) {
	s := NewMemStore()
	token := mintToken(t, fmt.Sprintf(`{"sub":"user1","exp":%d}`, time.Now().Add(time.Hour).Unix()))
	assert.False(t, s.IsExpired(token))
}

func TestIsExpired_PastExp(t *testing.T) {
	s := NewMemStore()
	token := mintToken(t, fmt.Sprintf(`{"exp":%d}`, time.Now().Add(-time.Hour).Unix()))
	assert.True(t, s.IsExpired(token))
}

func TestIsExpired_ExpExactlyNow(t *testing.T) {
	now := time.Now()
	s := NewMemStore()
	s.Now = func() time.Time { return now }
	token := mintToken(t, fmt.Sprintf(`{"exp":%d}`, now.Unix()))
	// exp at the current second is already unusable
	assert.True(t, s.IsExpired(token))
}

func TestIsExpired_DegenerateTokens(t *testing.T) {
	s := NewMemStore()

	cases := map[string]string{
		"empty":            "",
		"whitespace":       "   ",
		"two segments":     "abc.def",
		"four segments":    "a.b.c.d",
		"garbage payload":  "aGVhZGVy.!!!notbase64!!!.c2ln",
		"payload not json": mintToken(t, `this is not json`),
		"missing exp":      mintToken(t, `{"sub":"user1"}`),
		"string exp":       mintToken(t, `{"exp":"soon"}`),
		"zero exp":         mintToken(t, `{"exp":0}`),
	}
	for name, token := range cases {
		assert.True(t, s.IsExpired(token), "case %q should be treated as expired", name)
	}
}

func TestIsExpired_UsesStoredTokenWhenNoneGiven(t *testing.T) {
	s := NewMemStore()
	assert.True(t, s.IsExpired(), "no stored token means expired")

	require.NoError(t, s.Set(mintToken(t, fmt.Sprintf(`{"exp":%d}`, time.Now().Add(time.Hour).Unix()))))
	assert.False(t, s.IsExpired())

	require.NoError(t, s.Clear())
	assert.True(t, s.IsExpired())
}

func TestIsExpired_PaddedBase64Payload(t *testing.T) {
	s := NewMemStore()
	payload := fmt.Sprintf(`{"exp":%d}`, time.Now().Add(time.Hour).Unix())
	token := "header." + base64.URLEncoding.EncodeToString([]byte(payload)) + ".sig"
	assert.False(t, s.IsExpired(token))
}

func TestMemStore_SetGetClear(t *testing.T) {
	s := NewMemStore()

	_, ok := s.Get()
	assert.False(t, ok)

	require.NoError(t, s.Set("tok-1"))
	got, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", got)

	// replaced wholesale
	require.NoError(t, s.Set("tok-2"))
	got, _ = s.Get()
	assert.Equal(t, "tok-2", got)

	require.NoError(t, s.Clear())
	_, ok = s.Get()
	assert.False(t, ok)
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadger(dir)
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.Get()
	assert.False(t, ok)

	require.NoError(t, s.Set("persisted-token"))
	got, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, "persisted-token", got)

	require.NoError(t, s.Clear())
	_, ok = s.Get()
	assert.False(t, ok)

	// clearing twice is fine
	require.NoError(t, s.Clear())
}
