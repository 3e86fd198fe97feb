package upstream

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// Transport timeouts apply to connection setup and header reception only,
// never to body reads, so long-running streams are not cut off.
const (
	dialTimeout           = 30 * time.Second
	keepAlive             = 30 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 60 * time.Second
	idleConnTimeout       = 90 * time.Second
)

// newTransport builds the shared upstream transport, routed through proxyURL
// when one is configured. Invalid proxy URLs fall back to a direct transport.
func newTransport(proxyURL string) *http.Transport {
	if proxyURL == "" {
		return directTransport(nil)
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		log.WithError(err).Error("invalid proxy url, using direct transport")
		return directTransport(nil)
	}

	switch parsed.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if parsed.User != nil {
			password, _ := parsed.User.Password()
			auth = &proxy.Auth{User: parsed.User.Username(), Password: password}
		}
		dialer, errDial := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
		if errDial != nil {
			log.WithError(errDial).Error("socks5 dialer setup failed, using direct transport")
			return directTransport(nil)
		}
		t := directTransport(nil)
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
		return t
	case "http", "https":
		return directTransport(http.ProxyURL(parsed))
	default:
		log.WithField("scheme", parsed.Scheme).Error("unsupported proxy scheme, using direct transport")
		return directTransport(nil)
	}
}

func directTransport(proxyFunc func(*http.Request) (*url.URL, error)) *http.Transport {
	return &http.Transport{
		Proxy: proxyFunc,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: keepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
	}
}
