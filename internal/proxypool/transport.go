package proxypool

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// NewTransport clones base and routes it through proxyURL. An empty proxyURL
// yields a direct transport.
func NewTransport(base *http.Transport, proxyURL string) (*http.Transport, error) {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	t := base.Clone()
	if proxyURL == "" {
		t.Proxy = nil
		return t, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, &net.Dialer{Timeout: 30 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("socks dialer: %w", err)
		}
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer for %s does not support contexts", u.Host)
		}
		t.Proxy = nil
		t.DialContext = cd.DialContext
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSpec, u.Scheme)
	}
	return t, nil
}
