// Package urlnorm canonicalizes raw URL strings into a stable identity:
// a fingerprint plus the registrable domain. Two raw strings with the same
// fingerprint are the same entity for everything downstream.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"alertador/internal/domain"
)

// Normalized is the canonical identity derived from a raw URL.
type Normalized struct {
	Fingerprint string
	Canonical   string
	Host        string
	Domain      string
	Raw         string
}

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"']+`)
	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
)

// Defanged URLs and trailing punctuation glued on by chat clients.
const trailingJunk = ".),;>\"]}"

// Normalize canonicalizes raw into a Normalized identity. It is pure: no
// I/O, no blocking. Inputs that do not parse as absolute http(s) URLs fail
// with domain.ErrInvalidURL.
func Normalize(raw string) (Normalized, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "[.]", ".")
	s = strings.TrimRight(s, trailingJunk)
	if s == "" {
		return Normalized{}, fmt.Errorf("%w: empty input", domain.ErrInvalidURL)
	}
	// Default the scheme only when none is present at all; an explicit
	// non-http(s) scheme must fail below, not turn into a bogus host.
	if !schemePattern.MatchString(s) {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Normalized{}, fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Normalized{}, fmt.Errorf("%w: missing host", domain.ErrInvalidURL)
	}

	// Strip default ports, keep explicit non-default ones.
	if port := u.Port(); port != "" {
		if !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
			host = host + ":" + port
		}
	}

	// Prefer RawPath: EscapedPath discards it when the raw form holds
	// bytes that still need escaping, silently collapsing %2F into a real
	// segment separator.
	p := u.EscapedPath()
	if u.RawPath != "" {
		p = u.RawPath
	}
	canonical := scheme + "://" + host + canonicalPath(p)
	if q := canonicalQuery(u.Query()); q != "" {
		canonical += "?" + q
	}
	// Fragment is dropped by construction.

	registrable, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
	if err != nil {
		registrable = strings.ToLower(u.Hostname())
	}

	sum := sha256.Sum256([]byte(canonical))
	return Normalized{
		Fingerprint: hex.EncodeToString(sum[:]),
		Canonical:   canonical,
		Host:        host,
		Domain:      strings.ToLower(registrable),
		Raw:         raw,
	}, nil
}

// ExtractURLs pulls candidate URLs out of free text, normalizes each and
// de-dupes by fingerprint, preserving first-seen order.
func ExtractURLs(text string) []Normalized {
	seen := make(map[string]struct{})
	var out []Normalized
	for _, m := range urlPattern.FindAllString(strings.ReplaceAll(text, "[.]", "."), -1) {
		n, err := Normalize(m)
		if err != nil {
			continue
		}
		if _, ok := seen[n.Fingerprint]; ok {
			continue
		}
		seen[n.Fingerprint] = struct{}{}
		out = append(out, n)
	}
	return out
}

// canonicalPath re-encodes each segment to a single percent-encoded form and
// trims the trailing slash.
func canonicalPath(escaped string) string {
	if escaped == "" || escaped == "/" {
		return ""
	}
	segs := strings.Split(escaped, "/")
	for i, seg := range segs {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			continue // keep the original encoding if it is malformed
		}
		segs[i] = url.PathEscape(dec)
	}
	p := strings.Join(segs, "/")
	return strings.TrimSuffix(p, "/")
}

// canonicalQuery sorts parameters lexicographically by key, then value.
func canonicalQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
