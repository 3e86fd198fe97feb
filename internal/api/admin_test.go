package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestAdminRequiresKey(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, "http://unused", "http://unused")

	if rec := g.do(http.MethodGet, "/admin/status", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", rec.Code)
	}
	wrong := map[string]string{"X-Admin-Key": "nope"}
	if rec := g.do(http.MethodGet, "/admin/status", "", wrong); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", rec.Code)
	}
	if rec := g.do(http.MethodGet, "/admin/status", "", adminAuth()); rec.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d, want 200", rec.Code)
	}
}

func TestAdminKeyLifecycle(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, "http://unused", "http://unused")

	rec := g.do(http.MethodPost, "/admin/keys",
		`{"label":"team-a","accessToken":"sk-ant-oat-x","refreshToken":"rt-x"}`, adminAuth())
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	// Token material must not appear in admin responses.
	if body := rec.Body.String(); gjson.Get(body, "accessToken").Exists() ||
		gjson.Get(body, "refreshToken").Exists() {
		t.Fatalf("admin response leaks token material: %s", body)
	}

	rec = g.do(http.MethodGet, "/admin/status", "", adminAuth())
	if got := gjson.GetBytes(rec.Body.Bytes(), "total").Int(); got != 1 {
		t.Fatalf("status total = %d, want 1", got)
	}
	if got := gjson.GetBytes(rec.Body.Bytes(), "keys.0.label").String(); got != "team-a" {
		t.Fatalf("status label = %q, want team-a", got)
	}

	rec = g.do(http.MethodPost, "/admin/keys/team-a/disable", "", adminAuth())
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: status = %d", rec.Code)
	}
	stored, err := g.store.Get(context.Background(), "team-a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Enabled {
		t.Fatal("credential still enabled after disable")
	}

	rec = g.do(http.MethodPost, "/admin/keys/team-a/rename", `{"newLabel":"team-b"}`, adminAuth())
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if _, err = g.store.Get(context.Background(), "team-b"); err != nil {
		t.Fatalf("renamed record missing: %v", err)
	}

	rec = g.do(http.MethodDelete, "/admin/keys/team-b", "", adminAuth())
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = g.do(http.MethodDelete, "/admin/keys/team-b", "", adminAuth())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: status = %d, want 404", rec.Code)
	}
}

func TestAdminAddKeyValidation(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, "http://unused", "http://unused")
	rec := g.do(http.MethodPost, "/admin/keys", `{"label":"x"}`, adminAuth())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing tokens", rec.Code)
	}
}

func TestAdminRefreshAll(t *testing.T) {
	t.Parallel()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"sk-ant-oat-new","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	g := newTestGateway(t, "http://unused", tokenSrv.URL)
	g.addCredential(t, "a", time.Hour)
	g.addCredential(t, "b", time.Hour)

	rec := g.do(http.MethodPost, "/admin/refresh-all", "", adminAuth())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	out := rec.Body.Bytes()
	if got := gjson.GetBytes(out, "checked").Int(); got != 2 {
		t.Fatalf("checked = %d, want 2", got)
	}
	if got := gjson.GetBytes(out, "refreshed").Int(); got != 2 {
		t.Fatalf("refreshed = %d, want 2", got)
	}
}

func TestAdminRefreshSingleKey(t *testing.T) {
	t.Parallel()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenSrv.Close()

	g := newTestGateway(t, "http://unused", tokenSrv.URL)
	g.addCredential(t, "a", time.Hour)

	rec := g.do(http.MethodPost, "/admin/keys/a/refresh", "", adminAuth())
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 for rejected refresh", rec.Code)
	}
	if got := gjson.GetBytes(rec.Body.Bytes(), "result").String(); got != "permanent" {
		t.Fatalf("result = %q, want permanent", got)
	}
}

func TestAdminStats(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, "http://unused", "http://unused")
	g.manager.RecordUsage(context.Background(), "ghost", true)

	rec := g.do(http.MethodGet, "/admin/stats", "", adminAuth())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := gjson.GetBytes(rec.Body.Bytes(), "totalRequests").Int(); got != 1 {
		t.Fatalf("totalRequests = %d, want 1", got)
	}
}

func TestVersionEndpointOpen(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, "http://unused", "http://unused")
	rec := g.do(http.MethodGet, "/debug/version", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without auth", rec.Code)
	}
	if got := gjson.GetBytes(rec.Body.Bytes(), "version").String(); got != Version {
		t.Fatalf("version = %q, want %q", got, Version)
	}
}
