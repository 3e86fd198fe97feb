package refresh

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gagmm/claude-code-to-openai/internal/credential"
)

// Summary reports what one sweep did.
type Summary struct {
	Checked   int `json:"checked"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Notifier receives structured refresh events for out-of-band delivery.
// The gateway only produces the data; formatting and transport belong to
// the implementation.
type Notifier interface {
	RefreshSucceeded(cred *credential.Credential)
	RefreshFailed(label, detail string, permanent bool)
	SweepCompleted(summary Summary)
}

// LogNotifier is the default Notifier, writing events to the process log.
type LogNotifier struct{}

func (LogNotifier) RefreshSucceeded(cred *credential.Credential) {
	log.WithFields(log.Fields{
		"label":      cred.Label,
		"expires_at": cred.Expiry().Format(time.RFC3339),
	}).Info("refresh succeeded")
}

func (LogNotifier) RefreshFailed(label, detail string, permanent bool) {
	log.WithFields(log.Fields{
		"label":     label,
		"detail":    detail,
		"permanent": permanent,
	}).Warn("refresh failed")
}

func (LogNotifier) SweepCompleted(summary Summary) {
	log.WithFields(log.Fields{
		"checked":   summary.Checked,
		"refreshed": summary.Refreshed,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("refresh sweep completed")
}

// Sweeper proactively refreshes soon-to-expire credentials. Items are
// processed strictly one at a time with a fixed delay in between; the pacing
// protects the token endpoint from rate limiting and must stay.
type Sweeper struct {
	refresher *Refresher
	store     credential.Store
	notifier  Notifier

	buffer time.Duration
	delay  time.Duration
	sleep  func(time.Duration)
}

// NewSweeper builds a sweeper over the refresher's store.
func NewSweeper(refresher *Refresher, notifier Notifier) *Sweeper {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Sweeper{
		refresher: refresher,
		store:     refresher.store,
		notifier:  notifier,
		buffer:    refresher.cfg.SweepBuffer,
		delay:     refresher.cfg.SweepDelay,
		sleep:     time.Sleep,
	}
}

// Sweep walks all stored credentials, refreshing enabled ones that expire
// within the buffer (or all enabled ones when force is set). Disabled
// records are skipped; they can still be refreshed explicitly through the
// admin surface.
func (s *Sweeper) Sweep(ctx context.Context, force bool) Summary {
	records, err := s.store.List(ctx)
	if err != nil {
		log.WithError(err).Warn("sweep: list credentials failed")
		return Summary{}
	}

	summary := Summary{Checked: len(records)}
	now := time.Now()
	for _, cred := range records {
		if ctx.Err() != nil {
			break
		}
		if !cred.Enabled {
			summary.Skipped++
			continue
		}
		if !force && !cred.ExpiresWithin(now, s.buffer) {
			summary.Skipped++
			continue
		}

		outcome := s.refresher.RefreshCredential(ctx, cred)
		switch outcome.Kind {
		case KindSuccess:
			summary.Refreshed++
			s.notifier.RefreshSucceeded(cred)
		default:
			summary.Failed++
			s.notifier.RefreshFailed(cred.Label, outcome.Detail, outcome.Kind == KindPermanent)
		}

		s.sleep(s.delay)
	}

	s.notifier.SweepCompleted(summary)
	return summary
}
