package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireAPIKey enforces the caller allow-list. An empty allow-list rejects
// every request; the gateway never runs open by accident.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" || !s.Config().HasAPIKey(token) {
			errorJSON(c, http.StatusUnauthorized, "authentication_error", "invalid or missing API key")
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireAdminKey guards the admin channel. Requests carry the key in
// X-Admin-Key or as a bearer token; a blank configured key disables the
// channel entirely.
func (s *Server) requireAdminKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		adminKey := s.Config().AdminKey
		if adminKey == "" {
			errorJSON(c, http.StatusNotFound, "not_found", "admin channel disabled")
			c.Abort()
			return
		}
		supplied := c.GetHeader("X-Admin-Key")
		if supplied == "" {
			supplied = bearerToken(c.GetHeader("Authorization"))
		}
		if supplied != adminKey {
			errorJSON(c, http.StatusUnauthorized, "authentication_error", "invalid admin key")
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// errorJSON writes an OpenAI-shaped error envelope.
func errorJSON(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"type":    errType,
			"message": message,
		},
	})
}
