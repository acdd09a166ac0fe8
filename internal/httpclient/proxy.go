package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// newTransport builds the HTTP transport for a client. With no proxyURL
// the transport connects directly unless envProxy is set, which defers to
// HTTP_PROXY/HTTPS_PROXY from the environment. http/https proxies tunnel
// via CONNECT; socks5 proxies dial through x/net/proxy.
func newTransport(proxyURL string, envProxy bool) (*http.Transport, error) {
	transport := &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyURL == "" {
		if envProxy {
			transport.Proxy = http.ProxyFromEnvironment
		}
		return transport, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("httpclient: invalid proxy URL %q: %w", proxyURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		dialer, err := xproxy.FromURL(u, &net.Dialer{Timeout: 30 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("httpclient: socks5 proxy %q: %w", proxyURL, err)
		}
		transport.Dial = dialer.Dial
	default:
		return nil, fmt.Errorf("httpclient: unsupported proxy scheme %q", u.Scheme)
	}
	return transport, nil
}
