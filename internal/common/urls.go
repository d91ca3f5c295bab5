// -----------------------------------------------------------------------
// URL Canonicalizer - normalized URLs and stable cache fingerprints
// -----------------------------------------------------------------------

package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// ignoredQueryParams are tracking parameters that never change what a
// post URL identifies. They are stripped before fingerprinting so shares
// of the same video collapse to one cache entry.
var ignoredQueryParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"share_id":     true,
	"timestamp":    true,
	"ref":          true,
	"source":       true,
}

// NormalizeURL maps equivalent input URLs to one canonical form:
// lowercased host without a leading "www.", tracking parameters dropped,
// remaining query re-encoded in key order, no trailing slash, no scheme.
// Inputs that do not parse as URLs fall back to trimmed lowercase.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parseable := raw
	if !strings.Contains(parseable, "://") {
		parseable = "https://" + parseable
	}

	parsed, err := url.Parse(parseable)
	if err != nil || parsed.Host == "" {
		return strings.ToLower(raw)
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	normalized := host + parsed.Path

	if parsed.RawQuery != "" {
		if query := normalizeQuery(parsed.Query()); query != "" {
			normalized += "?" + query
		}
	}

	return strings.TrimSuffix(normalized, "/")
}

// normalizeQuery re-encodes query parameters in deterministic key order
// with the ignored set removed.
func normalizeQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if !ignoredQueryParams[strings.ToLower(key)] {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	kept := url.Values{}
	for _, key := range keys {
		for _, v := range values[key] {
			kept.Add(key, v)
		}
	}
	return kept.Encode()
}

// Fingerprint derives the 16-hex-char cache key for a (URL, locale)
// pair: the first 16 hex chars of SHA-256 over the normalized URL,
// optionally salted with "|" + lowercased locale.
func Fingerprint(rawURL, locale string) string {
	input := NormalizeURL(rawURL)
	if locale = strings.ToLower(strings.TrimSpace(locale)); locale != "" {
		input += "|" + locale
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:8])
}
