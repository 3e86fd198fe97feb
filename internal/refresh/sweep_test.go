package refresh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagmm/claude-code-to-openai/internal/credential"
)

type recordingNotifier struct {
	succeeded []string
	failed    []string
	summaries []Summary
}

func (n *recordingNotifier) RefreshSucceeded(cred *credential.Credential) {
	n.succeeded = append(n.succeeded, cred.Label)
}

func (n *recordingNotifier) RefreshFailed(label, _ string, _ bool) {
	n.failed = append(n.failed, label)
}

func (n *recordingNotifier) SweepCompleted(summary Summary) {
	n.summaries = append(n.summaries, summary)
}

func seedSweepPool(t *testing.T, s credential.Store, now time.Time) {
	t.Helper()
	ctx := context.Background()
	records := []*credential.Credential{
		{Label: "near", AccessToken: "at", RefreshToken: "rt1", Enabled: true,
			ExpiresAt: now.Add(5 * time.Minute).UnixMilli()},
		{Label: "far", AccessToken: "at", RefreshToken: "rt2", Enabled: true,
			ExpiresAt: now.Add(2 * time.Hour).UnixMilli()},
		{Label: "off", AccessToken: "at", RefreshToken: "rt3", Enabled: false,
			ExpiresAt: now.Add(time.Minute).UnixMilli()},
	}
	for _, cred := range records {
		if err := s.Put(ctx, cred); err != nil {
			t.Fatalf("Put(%q) error = %v", cred.Label, err)
		}
	}
}

func TestSweepRefreshesExpiring(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	}))
	defer server.Close()

	r, fileStore := testRefresher(t, server.URL)
	seedSweepPool(t, fileStore, time.Now())

	notifier := &recordingNotifier{}
	sweeper := NewSweeper(r, notifier)
	sweeper.buffer = 10 * time.Minute
	sweeper.delay = time.Second
	var sleeps int
	sweeper.sleep = func(time.Duration) { sleeps++ }

	summary := sweeper.Sweep(context.Background(), false)

	want := Summary{Checked: 3, Refreshed: 1, Skipped: 2}
	if summary != want {
		t.Fatalf("Sweep() = %+v, want %+v", summary, want)
	}
	if len(notifier.succeeded) != 1 || notifier.succeeded[0] != "near" {
		t.Fatalf("succeeded = %v, want [near]", notifier.succeeded)
	}
	if sleeps != 1 {
		t.Fatalf("sleeps = %d, want one pause per processed record", sleeps)
	}
	if len(notifier.summaries) != 1 {
		t.Fatalf("SweepCompleted called %d times, want 1", len(notifier.summaries))
	}
}

func TestSweepForceRefreshesAllEnabled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	}))
	defer server.Close()

	r, fileStore := testRefresher(t, server.URL)
	seedSweepPool(t, fileStore, time.Now())

	notifier := &recordingNotifier{}
	sweeper := NewSweeper(r, notifier)
	sweeper.sleep = func(time.Duration) {}

	summary := sweeper.Sweep(context.Background(), true)

	// Force still skips disabled records.
	want := Summary{Checked: 3, Refreshed: 2, Skipped: 1}
	if summary != want {
		t.Fatalf("Sweep(force) = %+v, want %+v", summary, want)
	}
}

func TestSweepCountsFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r, fileStore := testRefresher(t, server.URL)
	seedSweepPool(t, fileStore, time.Now())

	notifier := &recordingNotifier{}
	sweeper := NewSweeper(r, notifier)
	sweeper.sleep = func(time.Duration) {}

	summary := sweeper.Sweep(context.Background(), true)
	want := Summary{Checked: 3, Failed: 2, Skipped: 1}
	if summary != want {
		t.Fatalf("Sweep() = %+v, want %+v", summary, want)
	}
	if len(notifier.failed) != 2 {
		t.Fatalf("failed notifications = %v, want 2 entries", notifier.failed)
	}
}

func TestSweepStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	}))
	defer server.Close()

	r, fileStore := testRefresher(t, server.URL)
	seedSweepPool(t, fileStore, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sweeper := NewSweeper(r, &recordingNotifier{})
	sweeper.sleep = func(time.Duration) {}

	summary := sweeper.Sweep(ctx, true)
	if summary.Refreshed != 0 {
		t.Fatalf("Refreshed = %d after canceled context, want 0", summary.Refreshed)
	}
}
