package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gagmm/claude-code-to-openai/internal/translator/claude"
)

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   claude.SupportedModels(),
	})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": Version,
		"name":    "claude-code-to-openai",
	})
}
