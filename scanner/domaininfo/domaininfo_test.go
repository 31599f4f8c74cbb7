package domaininfo

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkhunter/models"
	"pkhunter/scanner/kitprobe"
)

const verisignResponse = `   Domain Name: SECURE-BANK-LOGIN.COM
   Registry Domain ID: 2786510001_DOMAIN_COM-VRSN
   Registrar WHOIS Server: whois.namecheap.com
   Registrar URL: http://www.namecheap.com
   Updated Date: 2024-03-02T10:11:12Z
   Creation Date: 2024-03-01T08:00:00Z
   Registry Expiry Date: 2025-03-01T08:00:00Z
   Registrar: NameCheap, Inc.
   Registrar IANA ID: 1068
   Registrar Abuse Contact Email: abuse@namecheap.com
   Domain Status: clientTransferProhibited https://icann.org/epp#clientTransferProhibited
   Name Server: DNS1.REGISTRAR-SERVERS.COM
   Name Server: DNS2.REGISTRAR-SERVERS.COM
   DNSSEC: unsigned
`

const notFoundResponse = `No match for "NOPE-NOPE-NOPE.COM".
>>> Last update of whois database: 2024-03-02T10:11:12Z <<<
`

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(bytes.NewBuffer(nil))
	return l
}

type mapCache struct {
	entries map[string]models.DomainInfo
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]models.DomainInfo)}
}

func (c *mapCache) Get(_ context.Context, domain string) (models.DomainInfo, bool) {
	info, ok := c.entries[domain]
	return info, ok
}

func (c *mapCache) Set(_ context.Context, domain string, info models.DomainInfo) {
	c.sets++
	c.entries[domain] = info
}

func TestParse(t *testing.T) {
	info, err := Parse(verisignResponse)
	require.NoError(t, err)

	assert.True(t, info.LookupOK)
	assert.Equal(t, "NameCheap, Inc.", info.Registrar)
	assert.Contains(t, info.CreationDate, "2024-03-01")
	assert.Contains(t, info.ExpirationDate, "2025-03-01")
}

func TestParseNotFound(t *testing.T) {
	_, err := Parse(notFoundResponse)
	assert.Error(t, err)
}

func TestCanonicalDate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"Empty", "", ""},
		{"Blank", "   ", ""},
		{"Single", "2024-03-01T08:00:00Z", "2024-03-01T08:00:00Z"},
		{"Trimmed", "  2024-03-01 ", "2024-03-01"},
		{"Several", "2024-03-01T08:00:00Z, 2024-03-02T08:00:00Z", "2024-03-01T08:00:00Z"},
		{"RFC1123", "Fri, 01 Mar 2024 08:00:00 GMT", "Fri, 01 Mar 2024 08:00:00 GMT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalDate(tt.value))
		})
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("QueriesRegistrableDomain", func(t *testing.T) {
		var queried []string
		cache := newMapCache()
		e := newEnricher(func(_ context.Context, domain string) (string, error) {
			queried = append(queried, domain)
			return verisignResponse, nil
		}, cache, quietLogger())

		info := e.Lookup(ctx, "login.secure-bank-login.com")
		assert.True(t, info.LookupOK)
		assert.Equal(t, "NameCheap, Inc.", info.Registrar)
		assert.Equal(t, []string{"secure-bank-login.com"}, queried)
		assert.Equal(t, 1, cache.sets)

		// second lookup for another subdomain is served from cache
		info = e.Lookup(ctx, "www.secure-bank-login.com")
		assert.Equal(t, "NameCheap, Inc.", info.Registrar)
		assert.Len(t, queried, 1)
	})

	t.Run("QueryFailure", func(t *testing.T) {
		cache := newMapCache()
		e := newEnricher(func(context.Context, string) (string, error) {
			return "", errors.New("connection refused")
		}, cache, quietLogger())

		info := e.Lookup(ctx, "kit.example.net")
		assert.False(t, info.LookupOK)
		assert.Equal(t, models.RegistrarNotFound, info.Registrar)
		assert.Equal(t, models.DateNotFound, info.CreationDate)
		assert.Equal(t, models.DateNotFound, info.ExpirationDate)
		assert.True(t, errors.Is(info.Err, models.ErrEnrichment))
		assert.Zero(t, cache.sets)
	})

	t.Run("UnparseableResponse", func(t *testing.T) {
		e := newEnricher(func(context.Context, string) (string, error) {
			return notFoundResponse, nil
		}, nil, quietLogger())

		info := e.Lookup(ctx, "nope-nope-nope.com")
		assert.False(t, info.LookupOK)
		assert.Equal(t, models.RegistrarNotFound, info.Registrar)
		assert.True(t, errors.Is(info.Err, models.ErrEnrichment))
	})

	t.Run("EmptyHost", func(t *testing.T) {
		called := false
		e := newEnricher(func(context.Context, string) (string, error) {
			called = true
			return "", nil
		}, nil, quietLogger())

		info := e.Lookup(ctx, "")
		assert.False(t, info.LookupOK)
		assert.False(t, called)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		e := newEnricher(func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}, nil, quietLogger())

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		info := e.Lookup(cctx, "kit.example.net")
		assert.False(t, info.LookupOK)
	})
}

func TestNewEnricher(t *testing.T) {
	for _, raw := range []string{"", "http://proxy.local:3128", "socks://127.0.0.1:9050"} {
		tr, err := kitprobe.ParseTransport(raw)
		require.NoError(t, err)
		e, err := NewEnricher(tr, 0, nil, nil)
		require.NoError(t, err, raw)
		assert.NotNil(t, e.query)
		assert.IsType(t, NopCache{}, e.cache)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCache(client, time.Hour, quietLogger())

	_, ok := cache.Get(ctx, "example.com")
	assert.False(t, ok)

	want := models.DomainInfo{
		Registrar:      "NameCheap, Inc.",
		CreationDate:   "2024-03-01",
		ExpirationDate: "2025-03-01",
		LookupOK:       true,
	}
	cache.Set(ctx, "example.com", want)

	assert.True(t, mr.Exists(cacheKeyPrefix+"example.com"))
	assert.Equal(t, time.Hour, mr.TTL(cacheKeyPrefix+"example.com"))

	got, ok := cache.Get(ctx, "example.com")
	require.True(t, ok)
	assert.Equal(t, want, got)

	t.Run("FailedLookupsNotStored", func(t *testing.T) {
		cache.Set(ctx, "down.example", models.NotFoundDomainInfo(errors.New("timeout")))
		assert.False(t, mr.Exists(cacheKeyPrefix+"down.example"))
	})

	t.Run("CorruptEntry", func(t *testing.T) {
		require.NoError(t, mr.Set(cacheKeyPrefix+"bad.example", "{not json"))
		_, ok := cache.Get(ctx, "bad.example")
		assert.False(t, ok)
	})

	t.Run("ServerGone", func(t *testing.T) {
		mr.Close()
		_, ok := cache.Get(ctx, "example.com")
		assert.False(t, ok)
		cache.Set(ctx, "example.com", want)
	})
}
