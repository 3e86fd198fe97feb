package api

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/gagmm/claude-code-to-openai/internal/credential"
	"github.com/gagmm/claude-code-to-openai/internal/logging"
	"github.com/gagmm/claude-code-to-openai/internal/metrics"
	"github.com/gagmm/claude-code-to-openai/internal/refresh"
	"github.com/gagmm/claude-code-to-openai/internal/translator/claude"
	"github.com/gagmm/claude-code-to-openai/internal/upstream"
)

// refreshNotice is prepended to unary responses whose credential was
// refreshed inline while serving the request.
const refreshNotice = "[Access token was refreshed automatically]\n\n"

func (s *Server) handleChatCompletions(c *gin.Context) {
	cfg := s.Config()
	body := logging.GetRequestBody(c)

	if !gjson.ValidBytes(body) {
		errorJSON(c, http.StatusBadRequest, "invalid_request_error", "request body is not valid JSON")
		return
	}
	if !gjson.GetBytes(body, "messages").IsArray() {
		errorJSON(c, http.StatusBadRequest, "invalid_request_error", "messages must be an array")
		return
	}

	requestedModel := gjson.GetBytes(body, "model").String()
	modelID := claude.ResolveModel(requestedModel, cfg.Upstream.DefaultModel)
	echoModel := requestedModel
	if echoModel == "" {
		echoModel = modelID
	}
	stream := gjson.GetBytes(body, "stream").Bool()

	cred, err := s.manager.Select(c.Request.Context(), time.Now())
	if err != nil {
		metrics.SelectorExhausted.Inc()
		metrics.RequestsTotal.WithLabelValues("pool_exhausted").Inc()
		errorJSON(c, http.StatusServiceUnavailable, "pool_exhausted", "no usable credential in the pool")
		return
	}
	metrics.SelectorPicks.Inc()
	c.Set("credentialLabel", cred.Label)

	notice := s.refreshInline(c.Request.Context(), cred, cfg.Refresh.SweepBuffer)

	upstreamBody := claude.ConvertChatRequest(modelID, body, stream)
	resp, err := s.client.Messages(c.Request.Context(), cred.AccessToken, upstreamBody, stream)
	if err != nil {
		s.manager.RecordUsage(c.Request.Context(), cred.Label, false)
		relayUpstreamError(c, err)
		return
	}
	defer resp.Body.Close()

	if stream {
		s.relayStream(c, resp.Body, echoModel, cred)
		return
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		s.manager.RecordUsage(c.Request.Context(), cred.Label, false)
		metrics.UpstreamErrors.WithLabelValues("network").Inc()
		metrics.RequestsTotal.WithLabelValues("upstream_error").Inc()
		errorJSON(c, http.StatusBadGateway, "upstream_error", "reading upstream response failed")
		return
	}
	s.manager.RecordUsage(c.Request.Context(), cred.Label, true)
	metrics.RequestsTotal.WithLabelValues("ok").Inc()
	c.Data(http.StatusOK, "application/json", claude.ConvertChatResponse(raw, echoModel, notice))
}

// refreshInline refreshes a near-expiry credential before using it. On any
// failure the stale token is used as-is; it may still have a short window of
// validity left and the sweep will retry. Returns the notice to surface on
// unary responses when a refresh happened.
func (s *Server) refreshInline(ctx context.Context, cred *credential.Credential, window time.Duration) string {
	if !cred.ExpiresWithin(time.Now(), window) {
		return ""
	}
	outcome := s.refresher.RefreshCredential(ctx, cred)
	if outcome.Kind != refresh.KindSuccess {
		log.WithFields(log.Fields{
			"label":  cred.Label,
			"detail": outcome.Detail,
		}).Warn("inline refresh failed, proceeding with current token")
		return ""
	}
	return refreshNotice
}

// relayUpstreamError maps a messages-call failure onto the caller's
// connection. Upstream protocol errors are relayed verbatim with their
// original status so the caller sees exactly what the API said.
func relayUpstreamError(c *gin.Context, err error) {
	var statusErr upstream.StatusError
	if errors.As(err, &statusErr) {
		metrics.UpstreamErrors.WithLabelValues("protocol").Inc()
		metrics.RequestsTotal.WithLabelValues("upstream_error").Inc()
		body := statusErr.Body
		if body == "" || !gjson.Valid(body) {
			errorJSON(c, statusErr.Code, "upstream_error", strings.TrimSpace(body))
			return
		}
		c.Data(statusErr.Code, "application/json", []byte(body))
		return
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		metrics.UpstreamErrors.WithLabelValues("timeout").Inc()
		metrics.RequestsTotal.WithLabelValues("upstream_timeout").Inc()
		errorJSON(c, http.StatusGatewayTimeout, "upstream_timeout", "upstream request timed out")
	default:
		metrics.UpstreamErrors.WithLabelValues("network").Inc()
		metrics.RequestsTotal.WithLabelValues("upstream_error").Inc()
		errorJSON(c, http.StatusBadGateway, "upstream_error", "upstream request failed")
	}
}

// relayStream reads the upstream SSE stream and re-frames it into OpenAI
// chunk events. Exactly one sentinel frame terminates the outbound stream on
// every path, including upstream aborts.
func (s *Server) relayStream(c *gin.Context, upstreamBody io.Reader, echoModel string, cred *credential.Credential) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	translator := claude.NewStreamTranslator(echoModel)
	scanner := bufio.NewScanner(upstreamBody)
	scanner.Buffer(make([]byte, 1024*1024), 50*1024*1024)

	success := true
	currentEvent := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			currentEvent = ""
		case strings.HasPrefix(line, "event:"):
			currentEvent = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimSpace(line[len("data:"):])
			for _, chunk := range translator.Translate(currentEvent, []byte(payload)) {
				writeSSE(c.Writer, flusher, chunk)
			}
		}
		if translator.Done() {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).WithField("label", cred.Label).Warn("upstream stream aborted")
		metrics.UpstreamErrors.WithLabelValues("stream").Inc()
		success = false
	}
	if translator.Failed() {
		log.WithField("label", cred.Label).Warn("upstream stream ended with error event")
		metrics.UpstreamErrors.WithLabelValues("stream").Inc()
		success = false
	}

	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}

	// The request context may already be canceled when the caller hung up;
	// accounting still has to land.
	s.manager.RecordUsage(context.WithoutCancel(c.Request.Context()), cred.Label, success)
	if success {
		metrics.RequestsTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.RequestsTotal.WithLabelValues("stream_aborted").Inc()
	}
}

func writeSSE(w gin.ResponseWriter, flusher http.Flusher, chunk []byte) {
	_, _ = w.WriteString("data: ")
	_, _ = w.Write(chunk)
	_, _ = w.WriteString("\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}
