package kitprobe

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spaolacci/murmur3"
)

// maxFaviconSize 限制 favicon 读取 100KB
const maxFaviconSize = 100 << 10

// FaviconHash 计算 favicon 的 mmh3 hash
// The icon is base64 encoded with a newline every 76 characters, the form
// Shodan and FOFA index as http.favicon.hash.
func FaviconHash(data []byte) string {
	b64 := base64.StdEncoding.EncodeToString(data)
	var buf bytes.Buffer
	for len(b64) > 76 {
		buf.WriteString(b64[:76])
		buf.WriteByte('\n')
		b64 = b64[76:]
	}
	buf.WriteString(b64)
	buf.WriteByte('\n')

	return fmt.Sprintf("%d", int32(murmur3.Sum32(buf.Bytes())))
}

// faviconURL returns the icon declared by the page, or /favicon.ico on the
// page's origin.
func faviconURL(pageURL string, doc *goquery.Document) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	if doc != nil {
		var href string
		doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			rel := strings.ToLower(s.AttrOr("rel", ""))
			for _, r := range strings.Fields(rel) {
				if r == "icon" {
					href = strings.TrimSpace(s.AttrOr("href", ""))
					return false
				}
			}
			return true
		})
		if href != "" {
			ref, err := url.Parse(href)
			if err == nil {
				return base.ResolveReference(ref).String(), nil
			}
		}
	}
	return base.ResolveReference(&url.URL{Path: "/favicon.ico"}).String(), nil
}

// fetchFaviconHash downloads the icon and returns its hash. Failures return "".
func (p *Prober) fetchFaviconHash(ctx context.Context, pageURL string, doc *goquery.Document) string {
	iconURL, err := faviconURL(pageURL, doc)
	if err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Referer", pageURL)

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.WithError(err).Debugf("favicon fetch failed: %s", iconURL)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFaviconSize))
	if err != nil || len(data) == 0 {
		return ""
	}
	return FaviconHash(data)
}
