// Package refresh implements the token lifecycle manager: exchanging refresh
// tokens for new access tokens, deduplicating concurrent exchanges, and
// applying the results back to stored credentials.
package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/gagmm/claude-code-to-openai/internal/config"
	"github.com/gagmm/claude-code-to-openai/internal/credential"
	"github.com/gagmm/claude-code-to-openai/internal/metrics"
)

// Kind classifies a refresh outcome. Permanent failures mean the refresh
// token was rejected outright and the credential must leave the pool;
// transient failures may be retried on a later sweep.
type Kind int

const (
	KindSuccess Kind = iota
	KindTransient
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// Outcome is the result of one token exchange. On success RefreshToken is
// empty when the upstream kept the old one valid.
type Outcome struct {
	Kind         Kind
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds
	Detail       string
}

// Refresher performs token exchanges against the OAuth endpoint. Concurrent
// refreshes for the same refresh-token value collapse into one upstream call;
// the in-flight registry lives only for the duration of that call.
type Refresher struct {
	cfg    config.RefreshConfig
	token  config.UpstreamConfig
	store  credential.Store
	client *http.Client
	group  singleflight.Group
}

// NewRefresher builds a refresher persisting into store.
func NewRefresher(upstream config.UpstreamConfig, cfg config.RefreshConfig, store credential.Store) *Refresher {
	return &Refresher{
		cfg:    cfg,
		token:  upstream,
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Refresh exchanges refreshToken for a new access token. Callers racing on
// the same token value all receive the outcome of a single upstream call;
// distinct token values refresh concurrently.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) Outcome {
	// The exchange serves every deduped caller, so it must not die with the
	// first caller's request context; the exchange timeout still bounds it.
	exchangeCtx := context.WithoutCancel(ctx)
	v, _, _ := r.group.Do(refreshToken, func() (interface{}, error) {
		return r.exchange(exchangeCtx, refreshToken), nil
	})
	outcome := v.(Outcome)
	metrics.RefreshOutcomes.WithLabelValues(outcome.Kind.String()).Inc()
	return outcome
}

func (r *Refresher) exchange(ctx context.Context, refreshToken string) Outcome {
	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     r.token.ClientID,
	})
	if err != nil {
		return Outcome{Kind: KindTransient, Detail: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.token.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Kind: KindTransient, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		log.WithError(err).Debug("token exchange network error")
		return Outcome{Kind: KindTransient, Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Kind: KindTransient, Detail: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(body))
		if isPermanentRejection(resp.StatusCode, detail) {
			log.WithField("status", resp.StatusCode).Warn("refresh token rejected")
			return Outcome{Kind: KindPermanent, Detail: detail}
		}
		log.WithField("status", resp.StatusCode).Debug("token exchange failed")
		return Outcome{Kind: KindTransient, Detail: detail}
	}

	accessToken := gjson.GetBytes(body, "access_token").String()
	if accessToken == "" {
		return Outcome{Kind: KindTransient, Detail: "token exchange returned no access token"}
	}
	expiresIn := gjson.GetBytes(body, "expires_in").Int()
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return Outcome{
		Kind:         KindSuccess,
		AccessToken:  accessToken,
		RefreshToken: gjson.GetBytes(body, "refresh_token").String(),
		ExpiresIn:    expiresIn,
	}
}

// isPermanentRejection reports whether the upstream confirmed the grant is
// invalid, as opposed to a transient service failure.
func isPermanentRejection(status int, body string) bool {
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return true
	}
	return strings.Contains(body, "invalid_grant")
}

// RefreshCredential refreshes one stored record and persists the result.
// On success the record gets the new token pair and expiry; a refresh
// response without a refresh token keeps the old one. A permanent rejection
// disables the record so it silently exits the pool.
func (r *Refresher) RefreshCredential(ctx context.Context, cred *credential.Credential) Outcome {
	outcome := r.Refresh(ctx, cred.RefreshToken)
	now := time.Now()

	switch outcome.Kind {
	case KindSuccess:
		cred.AccessToken = outcome.AccessToken
		if outcome.RefreshToken != "" {
			cred.RefreshToken = outcome.RefreshToken
		}
		cred.ExpiresAt = now.UnixMilli() + outcome.ExpiresIn*1000
		cred.LastRefreshed = &now
		if err := r.store.Put(ctx, cred); err != nil {
			log.WithError(err).WithField("label", cred.Label).Error("persist refreshed credential failed")
		}
		log.WithFields(log.Fields{
			"label":      cred.Label,
			"expires_at": cred.Expiry().Format(time.RFC3339),
		}).Info("credential refreshed")
	case KindPermanent:
		cred.Enabled = false
		if err := r.store.Put(ctx, cred); err != nil {
			log.WithError(err).WithField("label", cred.Label).Error("persist disabled credential failed")
		}
		log.WithField("label", cred.Label).Warn("credential disabled: refresh token permanently rejected")
	default:
		log.WithFields(log.Fields{
			"label":  cred.Label,
			"detail": outcome.Detail,
		}).Warn("credential refresh failed, will retry next sweep")
	}
	return outcome
}
