package logging

import (
	"bytes"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const requestBodyKey = "__gin_request_body__"

// GinLogrusLogger returns Gin middleware that logs each request through
// logrus. Chat requests additionally get the model name appended so the
// access log reads like the upstream call it produced.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		var requestBody []byte
		if isChatPath(path) && c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
			c.Set(requestBodyKey, requestBody)
		}

		c.Next()

		latency := time.Since(start)
		if latency > time.Minute {
			latency = latency.Truncate(time.Second)
		} else {
			latency = latency.Truncate(time.Millisecond)
		}

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"status":  status,
			"latency": latency.String(),
			"ip":      c.ClientIP(),
			"method":  c.Request.Method,
			"path":    path,
		})
		if model := gjson.GetBytes(requestBody, "model").String(); model != "" {
			entry = entry.WithField("model", strings.TrimSpace(model))
		}
		if label, ok := c.Get("credentialLabel"); ok {
			entry = entry.WithField("credential", label)
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

// GinLogrusRecovery recovers panics, logging the stack before answering 500.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.WithFields(log.Fields{
			"panic": recovered,
			"stack": string(debug.Stack()),
			"path":  c.Request.URL.Path,
		}).Error("recovered from panic")
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

// GetRequestBody returns the buffered request body, reading and caching it
// if the logger middleware did not already do so.
func GetRequestBody(c *gin.Context) []byte {
	if body, exists := c.Get(requestBodyKey); exists {
		if b, ok := body.([]byte); ok {
			return b
		}
	}
	if c.Request.Body == nil {
		return nil
	}
	body, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	c.Set(requestBodyKey, body)
	return body
}

func isChatPath(path string) bool {
	return strings.HasPrefix(path, "/v1/chat/completions")
}
