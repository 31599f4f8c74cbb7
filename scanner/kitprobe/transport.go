package kitprobe

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"pkhunter/models"
)

// TransportKind selects how probes leave the host.
type TransportKind int

const (
	Direct TransportKind = iota
	HTTPProxy
	SOCKS5Proxy
)

const defaultSocksPort = 1080

func (k TransportKind) String() string {
	switch k {
	case HTTPProxy:
		return "http-proxy"
	case SOCKS5Proxy:
		return "socks5-proxy"
	default:
		return "direct"
	}
}

// Transport is decided once from CONNECT.http_proxy and handed to every
// component that opens outbound connections. It is never modified afterwards.
type Transport struct {
	Kind     TransportKind
	ProxyURL *url.URL    // HTTPProxy only
	Host     string      // SOCKS5Proxy only
	Port     int         // SOCKS5Proxy only
	Auth     *proxy.Auth // SOCKS5Proxy only, optional
}

// ParseTransport turns the configured proxy URL into a Transport. An empty
// value means a direct connection. socks, socks5 and socks5h select SOCKS5
// with remote name resolution; http and https select an HTTP proxy.
func ParseTransport(raw string) (Transport, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Transport{Kind: Direct}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Transport{}, fmt.Errorf("%w: invalid CONNECT.http_proxy %q: %v", models.ErrConfig, raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "socks", "socks5", "socks5h":
		host := u.Hostname()
		if host == "" {
			return Transport{}, fmt.Errorf("%w: SOCKS proxy %q has no host", models.ErrConfig, raw)
		}
		port := defaultSocksPort
		if p := u.Port(); p != "" {
			port, err = strconv.Atoi(p)
			if err != nil || port <= 0 || port > 65535 {
				return Transport{}, fmt.Errorf("%w: SOCKS proxy %q has invalid port", models.ErrConfig, raw)
			}
		}
		t := Transport{Kind: SOCKS5Proxy, Host: host, Port: port}
		if u.User != nil {
			pass, _ := u.User.Password()
			t.Auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		return t, nil
	case "http", "https":
		if u.Host == "" {
			return Transport{}, fmt.Errorf("%w: HTTP proxy %q has no host", models.ErrConfig, raw)
		}
		return Transport{Kind: HTTPProxy, ProxyURL: u}, nil
	default:
		return Transport{}, fmt.Errorf("%w: unsupported proxy scheme %q", models.ErrConfig, u.Scheme)
	}
}

// SocksAddr returns host:port of the SOCKS5 endpoint.
func (t Transport) SocksAddr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Transport) String() string {
	switch t.Kind {
	case HTTPProxy:
		return fmt.Sprintf("%s(%s)", t.Kind, t.ProxyURL.Redacted())
	case SOCKS5Proxy:
		return fmt.Sprintf("%s(%s)", t.Kind, t.SocksAddr())
	default:
		return t.Kind.String()
	}
}

// Dialer returns a dialer for raw TCP connections (used by WHOIS). HTTP
// proxies cannot carry WHOIS traffic, so they dial directly.
func (t Transport) Dialer(timeout time.Duration) (proxy.Dialer, error) {
	base := &net.Dialer{Timeout: timeout, KeepAlive: 10 * time.Second}
	if t.Kind != SOCKS5Proxy {
		return base, nil
	}
	// x/net/proxy hands hostnames to the proxy unresolved.
	d, err := proxy.SOCKS5("tcp", t.SocksAddr(), t.Auth, base)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}
	return d, nil
}

// NewHTTPClient builds the client used for kit probes.
func (t Transport) NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: timeout,
	}

	switch t.Kind {
	case HTTPProxy:
		transport.Proxy = http.ProxyURL(t.ProxyURL)
		transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 10 * time.Second}).DialContext
	case SOCKS5Proxy:
		d, err := t.Dialer(timeout)
		if err != nil {
			return nil, err
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer does not support contexts")
		}
		transport.DialContext = cd.DialContext
	default:
		transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 10 * time.Second}).DialContext
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}
