// prober.go - 钓鱼工具包探测器
// 获取候选页面，判断是否仍在引用追踪文件，并计算页面指纹

package kitprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"pkhunter/config"
	"pkhunter/models"
	"pkhunter/utils"
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxTitleLength = 100
)

// Options tunes a Prober. Zero values fall back to the defaults above.
type Options struct {
	Timeout     time.Duration
	RetryCount  int
	RetryDelay  time.Duration
	FaviconHash bool
	UserAgent   string
}

// Prober fetches candidate pages through a fixed Transport.
type Prober struct {
	client     *http.Client
	transport  Transport
	patterns   *config.PatternSet
	userAgent  string
	retryCount int
	retryDelay time.Duration
	favicon    bool
	log        *logrus.Entry
}

// NewProber creates a prober bound to one transport for its whole lifetime.
func NewProber(t Transport, patterns *config.PatternSet, opts Options, log *logrus.Logger) (*Prober, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	client, err := t.NewHTTPClient(opts.Timeout)
	if err != nil {
		return nil, err
	}

	return &Prober{
		client:     client,
		transport:  t,
		patterns:   patterns,
		userAgent:  opts.UserAgent,
		retryCount: opts.RetryCount,
		retryDelay: opts.RetryDelay,
		favicon:    opts.FaviconHash,
		log:        log.WithField("component", "kitprobe"),
	}, nil
}

// Transport returns the transport the prober was built with.
func (p *Prober) Transport() Transport {
	return p.transport
}

// Probe fetches target and classifies it. Network failures never surface as
// errors; they are reported as StatusUnreachable with Err set. Only
// unreachable results are retried.
func (p *Prober) Probe(ctx context.Context, target string) models.ProbeResult {
	backoff := p.retryDelay
	var result models.ProbeResult

	for attempt := 1; ; attempt++ {
		result = p.probeOnce(ctx, target)
		result.Attempts = attempt

		if result.Status != models.StatusUnreachable || attempt > p.retryCount || ctx.Err() != nil {
			return result
		}

		p.log.WithFields(logrus.Fields{
			"url":     target,
			"attempt": attempt,
			"error":   result.Err,
		}).Debug("probe unreachable, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (p *Prober) probeOnce(ctx context.Context, target string) models.ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return unreachable(err)
	}

	// 模拟浏览器请求头
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := p.client.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Classify(resp.StatusCode, nil, p.patterns)
	}

	body, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"))
	truncated := errors.Is(err, errBodyTruncated) && body != nil
	if err != nil && !truncated {
		return unreachable(fmt.Errorf("read body: %w", err))
	}

	result := Classify(resp.StatusCode, body, p.patterns)
	if truncated {
		// the hash covers only the first maxBodySize bytes
		p.log.WithField("url", target).Warnf("body larger than %d bytes, classified on the truncated body", maxBodySize)
		if result.Err == nil {
			result.Err = fmt.Errorf("%w: %v, hashed first %d bytes", models.ErrProbe, errBodyTruncated, maxBodySize)
		}
	}

	text := decodeUTF8(body)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(text))
	if err != nil {
		doc = nil
	}
	result.Title = pageTitle(doc)

	if result.IsUp() && p.favicon {
		result.FaviconHash = p.fetchFaviconHash(ctx, resp.Request.URL.String(), doc)
	}
	return result
}

// Classify maps an HTTP status and body to a probe result:
// non-200 is DOWN, 200 with the tracking file referenced is UP (with the
// SHA-256 of the UTF-8 decoded body), 200 without it is REMOVED.
func Classify(statusCode int, body []byte, patterns *config.PatternSet) models.ProbeResult {
	if statusCode != http.StatusOK {
		return models.ProbeResult{Status: models.StatusDown, StatusCode: statusCode}
	}

	text := decodeUTF8(body)
	found, err := patterns.MatchTracking(string(text))
	if err != nil {
		return models.ProbeResult{
			Status:     models.StatusRemoved,
			StatusCode: statusCode,
			Err:        fmt.Errorf("%w: tracking pattern on body: %v", models.ErrProbe, err),
		}
	}
	if !found {
		return models.ProbeResult{Status: models.StatusRemoved, StatusCode: statusCode}
	}

	return models.ProbeResult{
		Status:      models.StatusUp,
		StatusCode:  statusCode,
		ContentHash: ContentHash(text),
	}
}

func unreachable(err error) models.ProbeResult {
	return models.ProbeResult{
		Status: models.StatusUnreachable,
		Err:    fmt.Errorf("%w: %v", models.ErrProbe, err),
	}
}

func pageTitle(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	return utils.Truncate(title, maxTitleLength)
}
