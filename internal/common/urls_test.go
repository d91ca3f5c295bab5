package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "strips scheme and www", in: "https://www.tiktok.com/@user/video/123", want: "tiktok.com/@user/video/123"},
		{name: "lowercases host only", in: "HTTPS://WWW.TikTok.COM/@User/video/123", want: "tiktok.com/@User/video/123"},
		{name: "drops tracking params", in: "https://tiktok.com/@u/video/1?utm_source=share&utm_medium=ios&share_id=9", want: "tiktok.com/@u/video/1"},
		{name: "keeps meaningful params sorted", in: "https://tiktok.com/@u/video/1?b=2&a=1", want: "tiktok.com/@u/video/1?a=1&b=2"},
		{name: "mixed params", in: "https://instagram.com/reel/abc?igsh=xyz&utm_campaign=summer", want: "instagram.com/reel/abc?igsh=xyz"},
		{name: "strips trailing slash", in: "https://www.instagram.com/reel/abc/", want: "instagram.com/reel/abc"},
		{name: "missing scheme", in: "www.tiktok.com/@user/video/123", want: "tiktok.com/@user/video/123"},
		{name: "whitespace trimmed", in: "  https://tiktok.com/@u/video/1  ", want: "tiktok.com/@u/video/1"},
		{name: "non-url falls back to lowercase", in: "NOT A URL", want: "not a url"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestFingerprintCollapsesEquivalentURLs(t *testing.T) {
	base := Fingerprint("https://www.tiktok.com/@user/video/123", "")

	equivalents := []string{
		"https://tiktok.com/@user/video/123",
		"http://www.tiktok.com/@user/video/123",
		"www.tiktok.com/@user/video/123",
		"https://www.tiktok.com/@user/video/123/",
		"https://www.tiktok.com/@user/video/123?utm_source=share&utm_campaign=x",
		"  https://www.tiktok.com/@user/video/123  ",
	}
	for _, url := range equivalents {
		assert.Equal(t, base, Fingerprint(url, ""), "url %q must collapse to the base fingerprint", url)
	}
}

func TestFingerprintFormat(t *testing.T) {
	fp := Fingerprint("https://www.tiktok.com/@user/video/123", "")
	assert.Len(t, fp, 16)
	assert.Regexp(t, "^[0-9a-f]{16}$", fp)
}

func TestFingerprintLocaleSalt(t *testing.T) {
	url := "https://www.tiktok.com/@user/video/123"

	plain := Fingerprint(url, "")
	en := Fingerprint(url, "en")
	de := Fingerprint(url, "de")

	assert.NotEqual(t, plain, en, "locale must change the fingerprint")
	assert.NotEqual(t, en, de, "different locales must not collide")
	assert.Equal(t, en, Fingerprint(url, "EN"), "locale is case-insensitive")
	assert.Equal(t, en, Fingerprint(url, " en "), "locale is trimmed")
}

func TestFingerprintDistinctURLs(t *testing.T) {
	a := Fingerprint("https://www.tiktok.com/@user/video/123", "")
	b := Fingerprint("https://www.tiktok.com/@user/video/124", "")
	assert.NotEqual(t, a, b)
}
