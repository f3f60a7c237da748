package urlnorm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertador/internal/domain"
)

func TestNormalizeEquivalentForms(t *testing.T) {
	variants := []string{
		"http://Scam.Example/login",
		"http://scam.example:80/login",
		"http://scam.example/login/",
		"http://scam.example/login#frag",
	}
	base, err := Normalize(variants[0])
	require.NoError(t, err)

	for _, v := range variants[1:] {
		n, err := Normalize(v)
		require.NoError(t, err, v)
		assert.Equal(t, base.Fingerprint, n.Fingerprint, v)
		assert.Equal(t, "http://scam.example/login", n.Canonical, v)
	}
}

func TestNormalizeQuerySorting(t *testing.T) {
	a, err := Normalize("https://example.com/p?b=2&a=1")
	require.NoError(t, err)
	b, err := Normalize("https://example.com/p?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, "https://example.com/p?a=1&b=2", a.Canonical)
}

func TestNormalizeDefang(t *testing.T) {
	n, err := Normalize("http://scam[.]example/login,")
	require.NoError(t, err)
	assert.Equal(t, "http://scam.example/login", n.Canonical)
}

func TestNormalizeSchemelessInput(t *testing.T) {
	n, err := Normalize("scam.example/login")
	require.NoError(t, err)
	assert.Equal(t, "http://scam.example/login", n.Canonical)
}

func TestNormalizeKeepsNonDefaultPort(t *testing.T) {
	n, err := Normalize("https://scam.example:8443/x")
	require.NoError(t, err)
	assert.Equal(t, "https://scam.example:8443/x", n.Canonical)
	assert.Equal(t, "scam.example:8443", n.Host)
}

func TestNormalizeRegistrableDomain(t *testing.T) {
	n, err := Normalize("https://login.paypal.com.scam.example.co.uk/verify")
	require.NoError(t, err)
	assert.Equal(t, "example.co.uk", n.Domain)
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/x", "ssh://example.com", "javascript://alert(1)", "http://", "   "} {
		_, err := Normalize(raw)
		require.Error(t, err, "raw=%q", raw)
		assert.True(t, errors.Is(err, domain.ErrInvalidURL), "raw=%q err=%v", raw, err)
	}
}

func TestNormalizePercentEncoding(t *testing.T) {
	a, err := Normalize("http://example.com/a%2fb c")
	require.NoError(t, err)
	b, err := Normalize("http://example.com/a%2Fb%20c")
	require.NoError(t, err)
	assert.Equal(t, b.Fingerprint, a.Fingerprint)
	assert.Equal(t, "http://example.com/a%2Fb%20c", a.Canonical)
}

func TestExtractURLs(t *testing.T) {
	text := "beware http://scam.example/login and http://Scam.Example/login/ also https://other.example/x."
	got := ExtractURLs(text)
	require.Len(t, got, 2)
	assert.Equal(t, "http://scam.example/login", got[0].Canonical)
	assert.Equal(t, "https://other.example/x", got[1].Canonical)
}
