// Package credential holds the stored upstream identity records, the pool
// selector that load-balances across them, and the manager that mediates all
// reads and writes against the durable store.
package credential

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store errors. Implementations wrap ErrUnavailable for backend failures so
// callers can degrade to "no credential" instead of failing the request.
var (
	ErrNotFound    = errors.New("credential not found")
	ErrUnavailable = errors.New("credential store unavailable")
)

// Store is the durable label→record mapping the gateway persists into.
// Last-write-wins at label granularity; the gateway does not layer optimistic
// concurrency control on top.
type Store interface {
	Get(ctx context.Context, label string) (*Credential, error)
	Put(ctx context.Context, cred *Credential) error
	Delete(ctx context.Context, label string) error
	List(ctx context.Context) ([]*Credential, error)
	GetStats(ctx context.Context) (*UsageStats, error)
	PutStats(ctx context.Context, stats *UsageStats) error
}

// Credential is one stored upstream identity. JSON tags match the documents
// the store keeps, so records survive round-trips unchanged.
type Credential struct {
	Label        string `json:"label"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is an absolute epoch-millisecond expiry. Zero means already
	// expired.
	ExpiresAt int64 `json:"expiresAt"`
	Enabled   bool  `json:"enabled"`

	UseCount   int64 `json:"useCount"`
	ErrorCount int64 `json:"errorCount"`

	LastUsed      *time.Time `json:"lastUsed,omitempty"`
	LastErrorAt   *time.Time `json:"lastErrorAt,omitempty"`
	LastRefreshed *time.Time `json:"lastRefreshed,omitempty"`

	Scopes           []string   `json:"scopes,omitempty"`
	SubscriptionType string     `json:"subscriptionType,omitempty"`
	RateLimitTier    string     `json:"rateLimitTier,omitempty"`
	AddedAt          *time.Time `json:"addedAt,omitempty"`
	AddedBy          string     `json:"addedBy,omitempty"`
}

// Normalize applies the defaulting rules at the store boundary.
func (c *Credential) Normalize() error {
	if strings.TrimSpace(c.Label) == "" {
		return errors.New("credential: label is required")
	}
	if c.ExpiresAt < 0 {
		c.ExpiresAt = 0
	}
	if c.SubscriptionType == "" {
		c.SubscriptionType = "unknown"
	}
	if c.RateLimitTier == "" {
		c.RateLimitTier = "default"
	}
	return nil
}

// Expiry returns the expiry as a time. Zero ExpiresAt yields the zero time,
// which every comparison treats as long past.
func (c *Credential) Expiry() time.Time {
	if c.ExpiresAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.ExpiresAt)
}

// ExpiresWithin reports whether the credential expires before now+window.
func (c *Credential) ExpiresWithin(now time.Time, window time.Duration) bool {
	return c.ExpiresAt <= now.Add(window).UnixMilli()
}

// Clone returns a deep copy so callers can mutate without racing the pool.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	if c.LastUsed != nil {
		t := *c.LastUsed
		cp.LastUsed = &t
	}
	if c.LastErrorAt != nil {
		t := *c.LastErrorAt
		cp.LastErrorAt = &t
	}
	if c.LastRefreshed != nil {
		t := *c.LastRefreshed
		cp.LastRefreshed = &t
	}
	if len(c.Scopes) > 0 {
		cp.Scopes = append([]string(nil), c.Scopes...)
	}
	if c.AddedAt != nil {
		t := *c.AddedAt
		cp.AddedAt = &t
	}
	return &cp
}

// UsageStats is the single global usage record, mutated once per completed
// upstream call regardless of outcome.
type UsageStats struct {
	TotalRequests int64  `json:"totalRequests"`
	Today         string `json:"today"`
	TodayRequests int64  `json:"todayRequests"`
}

// Record bumps the counters for one completed call, rolling the daily
// counter over when the date key changes.
func (s *UsageStats) Record(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	s.TotalRequests++
	if s.Today == day {
		s.TodayRequests++
		return
	}
	s.Today = day
	s.TodayRequests = 1
}
