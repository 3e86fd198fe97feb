package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gagmm/claude-code-to-openai/internal/credential"
	"github.com/gagmm/claude-code-to-openai/internal/refresh"
)

// keyStatus is the per-credential view exposed on the admin channel. Token
// material never leaves the process.
type keyStatus struct {
	Label            string `json:"label"`
	Enabled          bool   `json:"enabled"`
	ExpiresAt        string `json:"expiresAt,omitempty"`
	MinutesRemaining int64  `json:"minutesRemaining"`
	UseCount         int64  `json:"useCount"`
	ErrorCount       int64  `json:"errorCount"`
	LastUsed         string `json:"lastUsed,omitempty"`
	LastErrorAt      string `json:"lastErrorAt,omitempty"`
	LastRefreshed    string `json:"lastRefreshed,omitempty"`
	SubscriptionType string `json:"subscriptionType,omitempty"`
	RateLimitTier    string `json:"rateLimitTier,omitempty"`
}

func newKeyStatus(cred *credential.Credential, now time.Time) keyStatus {
	status := keyStatus{
		Label:            cred.Label,
		Enabled:          cred.Enabled,
		UseCount:         cred.UseCount,
		ErrorCount:       cred.ErrorCount,
		SubscriptionType: cred.SubscriptionType,
		RateLimitTier:    cred.RateLimitTier,
	}
	if expiry := cred.Expiry(); !expiry.IsZero() {
		status.ExpiresAt = expiry.Format(time.RFC3339)
		if remaining := expiry.Sub(now); remaining > 0 {
			status.MinutesRemaining = int64(remaining / time.Minute)
		}
	}
	if cred.LastUsed != nil {
		status.LastUsed = cred.LastUsed.Format(time.RFC3339)
	}
	if cred.LastErrorAt != nil {
		status.LastErrorAt = cred.LastErrorAt.Format(time.RFC3339)
	}
	if cred.LastRefreshed != nil {
		status.LastRefreshed = cred.LastRefreshed.Format(time.RFC3339)
	}
	return status
}

func (s *Server) handleAdminStatus(c *gin.Context) {
	now := time.Now()
	records := s.manager.List(c.Request.Context())
	keys := make([]keyStatus, 0, len(records))
	enabled := 0
	for _, cred := range records {
		if cred.Enabled {
			enabled++
		}
		keys = append(keys, newKeyStatus(cred, now))
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   len(records),
		"enabled": enabled,
		"keys":    keys,
	})
}

func (s *Server) handleAdminStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Stats(c.Request.Context()))
}

func (s *Server) handleAdminRefreshAll(c *gin.Context) {
	summary := s.sweeper.Sweep(c.Request.Context(), true)
	c.JSON(http.StatusOK, summary)
}

type addKeyRequest struct {
	Label        string `json:"label" binding:"required"`
	AccessToken  string `json:"accessToken" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
	// ExpiresAt is epoch milliseconds; zero means unknown and the record
	// is refreshed before first use.
	ExpiresAt        int64  `json:"expiresAt"`
	SubscriptionType string `json:"subscriptionType"`
	RateLimitTier    string `json:"rateLimitTier"`
	AddedBy          string `json:"addedBy"`
}

func (s *Server) handleAdminAddKey(c *gin.Context) {
	var req addKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	cred := &credential.Credential{
		Label:            req.Label,
		AccessToken:      req.AccessToken,
		RefreshToken:     req.RefreshToken,
		ExpiresAt:        req.ExpiresAt,
		Enabled:          true,
		SubscriptionType: req.SubscriptionType,
		RateLimitTier:    req.RateLimitTier,
		AddedBy:          req.AddedBy,
	}
	if err := s.manager.Add(c.Request.Context(), cred); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	c.JSON(http.StatusCreated, newKeyStatus(cred, time.Now()))
}

func (s *Server) handleAdminRemoveKey(c *gin.Context) {
	if err := s.manager.Remove(c.Request.Context(), c.Param("label")); err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("label")})
}

func (s *Server) handleAdminToggleKey(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		label := c.Param("label")
		if err := s.manager.SetEnabled(c.Request.Context(), label, enabled); err != nil {
			adminError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"label": label, "enabled": enabled})
	}
}

func (s *Server) handleAdminRefreshKey(c *gin.Context) {
	label := c.Param("label")
	cred, err := s.manager.Get(c.Request.Context(), label)
	if err != nil {
		adminError(c, err)
		return
	}
	outcome := s.refresher.RefreshCredential(c.Request.Context(), cred)
	if outcome.Kind != refresh.KindSuccess {
		c.JSON(http.StatusBadGateway, gin.H{
			"label":  label,
			"result": outcome.Kind.String(),
			"detail": outcome.Detail,
		})
		return
	}
	c.JSON(http.StatusOK, newKeyStatus(cred, time.Now()))
}

type renameKeyRequest struct {
	NewLabel string `json:"newLabel" binding:"required"`
}

func (s *Server) handleAdminRenameKey(c *gin.Context) {
	var req renameKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	oldLabel := c.Param("label")
	if err := s.manager.Rename(c.Request.Context(), oldLabel, req.NewLabel); err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"label": req.NewLabel, "renamed_from": oldLabel})
}

func adminError(c *gin.Context, err error) {
	if errors.Is(err, credential.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "not_found", err.Error())
		return
	}
	errorJSON(c, http.StatusBadRequest, "invalid_request_error", err.Error())
}
