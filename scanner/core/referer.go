package core

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"pkhunter/config"
	"pkhunter/models"
)

// RefererFilter decides which referers are worth probing.
type RefererFilter struct {
	patterns *config.PatternSet
}

func NewRefererFilter(patterns *config.PatternSet) *RefererFilter {
	return &RefererFilter{patterns: patterns}
}

// Candidate returns a candidate when the record requested the tracking file,
// carried a referer and that referer is not allow-listed. ok is false for
// records that are simply not candidates. err is set when the referer could
// not be turned into a domain (models.ErrRefererExtract) or a pattern timed out.
func (f *RefererFilter) Candidate(rec models.LogRecord) (c models.Candidate, ok bool, err error) {
	tracked, err := f.patterns.MatchTracking(rec.RequestedPath)
	if err != nil {
		return models.Candidate{}, false, fmt.Errorf("%w: tracking_file_request: %v", models.ErrLineTimeout, err)
	}
	if !tracked || !rec.HasReferer() {
		return models.Candidate{}, false, nil
	}

	legit, err := f.patterns.MatchLegitimate(rec.RefererURL)
	if err != nil {
		return models.Candidate{}, false, fmt.Errorf("%w: legitimate_referer: %v", models.ErrLineTimeout, err)
	}
	if legit {
		return models.Candidate{}, false, nil
	}

	domain, err := ExtractDomain(rec.RefererURL)
	if err != nil {
		return models.Candidate{}, false, err
	}

	return models.Candidate{
		RefererURL: rec.RefererURL,
		Domain:     domain,
		Timestamp:  rec.Timestamp,
	}, true, nil
}

// ExtractDomain returns the lowercased host of a referer URL. Scheme, port,
// credentials, path and query are discarded.
func ExtractDomain(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrRefererExtract, err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", models.ErrRefererExtract, ref)
	}
	return host, nil
}

// RegistrableDomain 从完整域名中提取可注册域名 (eTLD+1)
// 例如: login.secure-bank.co.uk -> secure-bank.co.uk
// IP addresses and hosts without a known suffix are returned unchanged.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}
