package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkhunter/config"
	"pkhunter/models"
)

// combined log format, verbose regex
const testLogPattern = `^\S+\s\S+\s\S+\s
    \[([^\]]+)\]\s
    "[A-Z]+\s([^\s"]+)[^"]*"\s
    \d{3}\s\S+\s
    "([^"]*)"`

func testPatterns(t *testing.T) *config.PatternSet {
	t.Helper()
	p, err := config.CompilePatterns(config.DefaultConfig{
		TrackingFileRequest: `/static/logo\.png`,
		LegitimateReferer:   `^https?://([a-z0-9-]+\.)*good\.example\.com`,
		LogPattern:          testLogPattern,
	})
	require.NoError(t, err)
	return p
}

func logLine(path, referer string) string {
	return `203.0.113.7 - - [10/Oct/2023:13:55:36 +0000] "GET ` + path + ` HTTP/1.1" 200 2326 "` +
		referer + `" "Mozilla/5.0"` + "\n"
}

func TestLineParser(t *testing.T) {
	p := NewLineParser(testPatterns(t))

	t.Run("Groups", func(t *testing.T) {
		rec, err := p.Parse(logLine("/static/logo.png", "http://evil.tld/clone"))
		require.NoError(t, err)
		assert.Equal(t, "10/Oct/2023:13:55:36 +0000", rec.Timestamp)
		assert.Equal(t, "/static/logo.png", rec.RequestedPath)
		assert.Equal(t, "http://evil.tld/clone", rec.RefererURL)
		assert.True(t, rec.HasReferer())
	})

	t.Run("NoReferer", func(t *testing.T) {
		rec, err := p.Parse(logLine("/static/logo.png", "-"))
		require.NoError(t, err)
		assert.Equal(t, "", rec.RefererURL)
		assert.False(t, rec.HasReferer())
	})

	t.Run("Mismatch", func(t *testing.T) {
		for _, line := range []string{"", "\n", "garbage line", "\x00\xff\xfe binary"} {
			_, err := p.Parse(line)
			assert.True(t, errors.Is(err, models.ErrLineMismatch), "line %q", line)
		}
	})

	t.Run("MatchMustStartAtLineStart", func(t *testing.T) {
		_, err := p.Parse("junk " + logLine("/static/logo.png", "http://evil.tld/"))
		// the leading token shifts every field, so the anchored pattern fails
		assert.True(t, errors.Is(err, models.ErrLineMismatch))
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		rec, err := p.Parse(logLine("/static/logo.png", "http://evil.tld/\xff"))
		require.NoError(t, err)
		assert.Equal(t, "http://evil.tld/\uFFFD", rec.RefererURL)
	})
}

func TestNormalizeReferer(t *testing.T) {
	assert.Equal(t, "", normalizeReferer("-"))
	assert.Equal(t, "", normalizeReferer(`"-"`))
	assert.Equal(t, "", normalizeReferer(" "))
	assert.Equal(t, "http://a.tld/", normalizeReferer("http://a.tld/"))
}

func TestRefererFilter(t *testing.T) {
	f := NewRefererFilter(testPatterns(t))

	tests := []struct {
		name     string
		rec      models.LogRecord
		want     bool
		wantHost string
	}{
		{
			name: "Legitimate",
			rec:  models.LogRecord{RequestedPath: "/static/logo.png", RefererURL: "http://good.example.com/x"},
		},
		{
			name: "LegitimateSubdomain",
			rec:  models.LogRecord{RequestedPath: "/static/logo.png", RefererURL: "https://www.good.example.com/"},
		},
		{
			name: "NoReferer",
			rec:  models.LogRecord{RequestedPath: "/static/logo.png"},
		},
		{
			name: "OtherFile",
			rec:  models.LogRecord{RequestedPath: "/index.html", RefererURL: "http://evil.tld/clone"},
		},
		{
			name:     "Candidate",
			rec:      models.LogRecord{Timestamp: "ts", RequestedPath: "/static/logo.png", RefererURL: "http://evil.tld/clone"},
			want:     true,
			wantHost: "evil.tld",
		},
		{
			name:     "CandidateWithPortAndCredentials",
			rec:      models.LogRecord{RequestedPath: "/static/logo.png?v=2", RefererURL: "https://user:pw@Login.Evil.TLD:8443/a?b=c"},
			want:     true,
			wantHost: "login.evil.tld",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok, err := f.Candidate(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, tt.rec.RefererURL, c.RefererURL)
				assert.Equal(t, tt.wantHost, c.Domain)
				assert.Equal(t, tt.rec.Timestamp, c.Timestamp)
			}
		})
	}
}

func TestRefererFilterMalformed(t *testing.T) {
	f := NewRefererFilter(testPatterns(t))

	for _, ref := range []string{"http://[::1", "not a url", "/relative/path"} {
		_, ok, err := f.Candidate(models.LogRecord{RequestedPath: "/static/logo.png", RefererURL: ref})
		assert.False(t, ok, ref)
		assert.True(t, errors.Is(err, models.ErrRefererExtract), "ref %q: %v", ref, err)
	}
}

func TestExtractDomain(t *testing.T) {
	host, err := ExtractDomain("http://evil.tld/clone?x=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "evil.tld", host)

	host, err = ExtractDomain("http://[2001:db8::1]:8080/")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", host)
}

func TestRegistrableDomain(t *testing.T) {
	tests := map[string]string{
		"login.secure-bank.co.uk": "secure-bank.co.uk",
		"a.b.evil.com":            "evil.com",
		"evil.com.":               "evil.com",
		"203.0.113.9":             "203.0.113.9",
		"localhost":               "localhost",
	}
	for in, want := range tests {
		assert.Equal(t, want, RegistrableDomain(in), in)
	}
}
