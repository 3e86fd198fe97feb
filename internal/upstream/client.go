// Package upstream implements the HTTP client for the Anthropic messages
// API: credential-aware headers, optional proxy routing, streaming-safe
// transport timeouts, and response body decoding.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/gagmm/claude-code-to-openai/internal/config"
)

const (
	anthropicVersion = "2023-06-01"
	anthropicBeta    = "oauth-2025-04-20"
	oauthTokenPrefix = "sk-ant-oat"
)

// StatusError carries a non-2xx upstream response so the HTTP layer can
// relay the body verbatim with the original status.
type StatusError struct {
	Code int
	Body string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// Client issues messages-API calls.
type Client struct {
	cfg          config.UpstreamConfig
	unaryClient  *http.Client
	streamClient *http.Client
}

// NewClient builds a client. proxyURL, when non-empty, routes all upstream
// traffic through a SOCKS5 or HTTP proxy.
func NewClient(cfg config.UpstreamConfig, proxyURL string) *Client {
	transport := newTransport(proxyURL)
	return &Client{
		cfg: cfg,
		// Unary calls are bounded end to end; streaming must not time out
		// on body reads, so it relies on transport-level timeouts only.
		unaryClient:  &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		streamClient: &http.Client{Transport: transport},
	}
}

// Messages posts body to the messages endpoint using accessToken. Non-2xx
// responses are drained and returned as StatusError. The returned body is
// already content-decoded; the caller owns closing it.
func (c *Client) Messages(ctx context.Context, accessToken string, body []byte, stream bool) (*http.Response, error) {
	url := c.cfg.BaseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	applyHeaders(req, accessToken, stream)

	client := c.unaryClient
	if stream {
		client = c.streamClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b := drainBody(resp)
		log.WithFields(log.Fields{
			"status": resp.StatusCode,
		}).Debug("messages call failed")
		return nil, StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	decoded, err := decodeResponseBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	resp.Body = decoded
	return resp, nil
}

// applyHeaders sets the protocol markers and picks the auth header by token
// shape: OAuth access tokens ride the Authorization header, plain API keys
// use x-api-key.
func applyHeaders(req *http.Request, accessToken string, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Anthropic-Version", anthropicVersion)
	req.Header.Set("Anthropic-Beta", anthropicBeta)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	if strings.HasPrefix(accessToken, oauthTokenPrefix) {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("x-api-key", accessToken)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	} else {
		req.Header.Set("Accept", "application/json")
	}
}

func drainBody(resp *http.Response) []byte {
	defer resp.Body.Close()
	decoded, err := decodeResponseBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(decoded)
	_ = decoded.Close()
	return buf.Bytes()
}
