// Package domaininfo enriches confirmed kit domains with WHOIS registration data.
package domaininfo

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/sirupsen/logrus"

	"pkhunter/models"
	"pkhunter/scanner/core"
	"pkhunter/scanner/kitprobe"
)

const DefaultTimeout = 10 * time.Second

var yearPattern = regexp.MustCompile(`\d{4}`)

// queryFunc returns the raw WHOIS response for a domain.
type queryFunc func(ctx context.Context, domain string) (string, error)

// Enricher performs best-effort WHOIS lookups.
type Enricher struct {
	query queryFunc
	cache Cache
	log   *logrus.Entry
}

// NewEnricher creates an enricher. WHOIS connections go through the SOCKS5
// proxy when t selects one; HTTP proxies cannot carry WHOIS so those dial
// directly. cache may be nil.
func NewEnricher(t kitprobe.Transport, timeout time.Duration, cache Cache, log *logrus.Logger) (*Enricher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	dialer, err := t.Dialer(timeout)
	if err != nil {
		return nil, err
	}
	client := whois.NewClient()
	client.SetTimeout(timeout)
	client.SetDialer(dialer)

	return newEnricher(clientQuery(client, timeout), cache, log), nil
}

func newEnricher(q queryFunc, cache Cache, log *logrus.Logger) *Enricher {
	if cache == nil {
		cache = NopCache{}
	}
	return &Enricher{
		query: q,
		cache: cache,
		log:   log.WithField("component", "whois"),
	}
}

// clientQuery adapts the blocking WHOIS client to a context. The client's
// own timeout bounds the abandoned goroutine.
func clientQuery(client *whois.Client, timeout time.Duration) queryFunc {
	return func(ctx context.Context, domain string) (string, error) {
		type reply struct {
			raw string
			err error
		}
		ch := make(chan reply, 1)
		go func() {
			raw, err := client.Whois(domain)
			ch <- reply{raw, err}
		}()

		select {
		case r := <-ch:
			return r.raw, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * timeout):
			return "", fmt.Errorf("whois query for %s timed out", domain)
		}
	}
}

// Lookup returns registration data for host's registrable domain. It never
// fails: any error yields LookupOK=false and the "not found" sentinels.
func (e *Enricher) Lookup(ctx context.Context, host string) models.DomainInfo {
	domain := core.RegistrableDomain(host)
	if domain == "" {
		return models.NotFoundDomainInfo(fmt.Errorf("%w: empty domain", models.ErrEnrichment))
	}

	if info, ok := e.cache.Get(ctx, domain); ok {
		return info
	}

	raw, err := e.query(ctx, domain)
	if err != nil {
		e.log.WithError(err).WithField("domain", domain).Warn("whois query failed")
		return models.NotFoundDomainInfo(fmt.Errorf("%w: query %s: %v", models.ErrEnrichment, domain, err))
	}

	info, err := Parse(raw)
	if err != nil {
		e.log.WithError(err).WithField("domain", domain).Warn("whois response not parsed")
		return models.NotFoundDomainInfo(fmt.Errorf("%w: parse %s: %v", models.ErrEnrichment, domain, err))
	}

	e.cache.Set(ctx, domain, info)
	return info
}

// Parse extracts registrar, creation and expiration dates from a raw WHOIS
// response. Missing values are replaced with the sentinels.
func Parse(raw string) (models.DomainInfo, error) {
	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		return models.DomainInfo{}, err
	}

	info := models.DomainInfo{
		Registrar:      models.RegistrarNotFound,
		CreationDate:   models.DateNotFound,
		ExpirationDate: models.DateNotFound,
		LookupOK:       true,
	}
	if parsed.Registrar != nil && strings.TrimSpace(parsed.Registrar.Name) != "" {
		info.Registrar = strings.TrimSpace(parsed.Registrar.Name)
	}
	if parsed.Domain != nil {
		if d := CanonicalDate(parsed.Domain.CreatedDate); d != "" {
			info.CreationDate = d
		}
		if d := CanonicalDate(parsed.Domain.ExpirationDate); d != "" {
			info.ExpirationDate = d
		}
	}
	return info, nil
}

// CanonicalDate returns the first date when a registry reports several
// comma separated values. A single value, including RFC 1123 style dates
// that contain a comma, is returned unchanged.
func CanonicalDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parts := strings.Split(value, ",")
	if len(parts) < 2 {
		return value
	}
	for _, part := range parts {
		if !yearPattern.MatchString(part) {
			return value
		}
	}
	return strings.TrimSpace(parts[0])
}
