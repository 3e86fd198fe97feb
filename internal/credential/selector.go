package credential

import (
	"errors"
	"math/rand/v2"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gagmm/claude-code-to-openai/internal/config"
)

// ErrPoolExhausted is returned when no credential is eligible for selection.
// It is a distinct condition from store failures so the HTTP layer can answer
// service-unavailable instead of a generic error.
var ErrPoolExhausted = errors.New("credential pool exhausted")

// Selector picks a credential for an incoming request, balancing usage count
// against recent error history. Scoring is weighted least-used with an error
// penalty; the final pick is uniform among the best few so a burst of
// concurrent requests does not hot-spot the single lowest-score credential.
type Selector struct {
	cfg  config.SelectorConfig
	intn func(n int) int
}

// NewSelector builds a selector with the given tuning.
func NewSelector(cfg config.SelectorConfig) *Selector {
	return &Selector{cfg: cfg, intn: rand.IntN}
}

type scored struct {
	cred  *Credential
	score int64
}

// Select returns an eligible credential or ErrPoolExhausted.
func (s *Selector) Select(records []*Credential, now time.Time) (*Credential, error) {
	eligible := make([]scored, 0, len(records))
	cutoff := now.Add(s.cfg.ExpiryBuffer).UnixMilli()
	for _, c := range records {
		if c == nil || !c.Enabled || c.AccessToken == "" || c.ExpiresAt <= cutoff {
			continue
		}
		eligible = append(eligible, scored{cred: c, score: s.score(c, now)})
	}
	if len(eligible) == 0 {
		return nil, ErrPoolExhausted
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].score < eligible[j].score
	})

	topN := s.cfg.TopN
	if topN > len(eligible) {
		topN = len(eligible)
	}
	picked := eligible[s.intn(topN)]

	log.WithFields(log.Fields{
		"label":    picked.cred.Label,
		"score":    picked.score,
		"eligible": len(eligible),
	}).Debug("credential selected")
	return picked.cred, nil
}

func (s *Selector) score(c *Credential, now time.Time) int64 {
	score := c.UseCount + c.ErrorCount*s.cfg.ErrorWeight
	if c.LastErrorAt != nil && now.Sub(*c.LastErrorAt) < s.cfg.RecentErrorWindow {
		score += s.cfg.RecentErrorPenalty
	}
	if c.LastUsed == nil {
		score -= s.cfg.FreshBonus
	}
	return score
}
