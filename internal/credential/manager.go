package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Manager mediates all credential reads and writes. It owns the usage
// accounting rules; handlers and the refresher go through it rather than
// touching the store directly.
type Manager struct {
	store    Store
	selector *Selector
}

// NewManager wires a manager over the given store and selector.
func NewManager(store Store, selector *Selector) *Manager {
	return &Manager{store: store, selector: selector}
}

// Store exposes the underlying store for collaborators that persist records
// themselves (the refresher).
func (m *Manager) Store() Store { return m.store }

// Add creates or overwrites the record for cred.Label.
func (m *Manager) Add(ctx context.Context, cred *Credential) error {
	if err := cred.Normalize(); err != nil {
		return err
	}
	if cred.AccessToken == "" || cred.RefreshToken == "" {
		return errors.New("credential: access and refresh tokens are required")
	}
	if cred.AddedAt == nil {
		now := time.Now()
		cred.AddedAt = &now
	}
	return m.store.Put(ctx, cred)
}

// Remove hard-deletes the record. Missing labels are reported as ErrNotFound.
func (m *Manager) Remove(ctx context.Context, label string) error {
	if _, err := m.store.Get(ctx, label); err != nil {
		return err
	}
	return m.store.Delete(ctx, label)
}

// Rename moves a record to a new label, rejecting occupied targets.
// Two concurrent renames onto the same target are last-write-wins.
func (m *Manager) Rename(ctx context.Context, oldLabel, newLabel string) error {
	cred, err := m.store.Get(ctx, oldLabel)
	if err != nil {
		return err
	}
	if _, err = m.store.Get(ctx, newLabel); err == nil {
		return fmt.Errorf("credential: label %q already in use", newLabel)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	cred.Label = newLabel
	if err = m.store.Put(ctx, cred); err != nil {
		return err
	}
	return m.store.Delete(ctx, oldLabel)
}

// SetEnabled toggles a record in or out of the selection pool.
func (m *Manager) SetEnabled(ctx context.Context, label string, enabled bool) error {
	cred, err := m.store.Get(ctx, label)
	if err != nil {
		return err
	}
	cred.Enabled = enabled
	return m.store.Put(ctx, cred)
}

// Get returns one record.
func (m *Manager) Get(ctx context.Context, label string) (*Credential, error) {
	return m.store.Get(ctx, label)
}

// List returns all records. Store failures degrade to an empty list so the
// caller sees an exhausted pool rather than an internal error.
func (m *Manager) List(ctx context.Context) []*Credential {
	records, err := m.store.List(ctx)
	if err != nil {
		log.WithError(err).Warn("credential list failed, treating pool as empty")
		return nil
	}
	return records
}

// Select picks a credential from the current pool.
func (m *Manager) Select(ctx context.Context, now time.Time) (*Credential, error) {
	return m.selector.Select(m.List(ctx), now)
}

// RecordUsage bumps the per-credential counters and the global stats after a
// completed upstream call. Failures here are logged, never surfaced: usage
// accounting must not fail the request that produced it.
func (m *Manager) RecordUsage(ctx context.Context, label string, success bool) {
	now := time.Now()
	cred, err := m.store.Get(ctx, label)
	if err != nil {
		log.WithError(err).WithField("label", label).Warn("record usage: load failed")
	} else {
		cred.UseCount++
		cred.LastUsed = &now
		if !success {
			cred.ErrorCount++
			cred.LastErrorAt = &now
		}
		if err = m.store.Put(ctx, cred); err != nil {
			log.WithError(err).WithField("label", label).Warn("record usage: save failed")
		}
	}

	stats, err := m.store.GetStats(ctx)
	if err != nil {
		log.WithError(err).Warn("record usage: stats load failed")
		return
	}
	stats.Record(now)
	if err = m.store.PutStats(ctx, stats); err != nil {
		log.WithError(err).Warn("record usage: stats save failed")
	}
}

// Stats returns the global usage record, zeroed when the store is unavailable.
func (m *Manager) Stats(ctx context.Context) *UsageStats {
	stats, err := m.store.GetStats(ctx)
	if err != nil {
		log.WithError(err).Warn("stats load failed")
		return &UsageStats{}
	}
	return stats
}
