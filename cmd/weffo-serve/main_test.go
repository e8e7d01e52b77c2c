package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacoelho/weffo/internal/config"
	"github.com/jacoelho/weffo/internal/logging"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func get(t *testing.T, h http.Handler, target string, wantStatus int) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != wantStatus {
		t.Fatalf("GET %s = %d, want %d: %s", target, rec.Code, wantStatus, rec.Body.String())
	}
	return rec.Body.String()
}

func baseConfig() config.Config {
	return config.Config{
		SchemaVersion: config.SchemaVersion,
		Server:        config.ServerConfig{Addr: "127.0.0.1:0", MetricsPath: "/metrics", ShutdownTimeout: time.Second},
		Redis:         config.RedisConfig{Prefix: "weffo:doc:"},
	}
}

func startServer(t *testing.T, cfg config.Config) *server {
	t.Helper()
	srv, err := newServer(cfg, logging.NewNop(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestServerRendersRoutes(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Routes = []config.Route{
		{
			Pattern: "/users/{name}",
			View:    writeFile(t, dir, "user.xml", `<p><?weffo-param name?><?weffo-param site?><b id="greeting">x</b> <?weffo-value $name?>@<?weffo-value $site?></p>`),
			Model:   writeFile(t, dir, "model.xml", `<m><greeting>hi</greeting></m>`),
			Params:  map[string]string{"site": "home"},
		},
		{
			Pattern: "/static",
			View:    writeFile(t, dir, "static.xml", `<p id="missing">fallback</p>`),
		},
	}
	h := startServer(t, cfg).Handler()

	if diff := cmp.Diff(`<p><b id="greeting">hi</b> ada@home</p>`, get(t, h, "/users/ada?site=ignored", http.StatusOK)); diff != "" {
		t.Errorf("/users/ada mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(`<p id="missing">fallback</p>`, get(t, h, "/static", http.StatusOK)); diff != "" {
		t.Errorf("/static mismatch (-want +got):\n%s", diff)
	}
	if body := get(t, h, "/metrics", http.StatusOK); !strings.Contains(body, `weffo_transitions_total{state="OUTPUT_WRITTEN"} 2`) {
		t.Errorf("/metrics lacks two written outputs:\n%s", body)
	}
}

func TestServerResolvesFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Routes = []config.Route{{
		Pattern: "/prefs",
		View:    writeFile(t, dir, "prefs.xml", `<p><?weffo-value document('urn:prefs:ada')/prefs/color?></p>`),
	}}
	if err := mr.Set("weffo:doc:urn:prefs:ada", `<prefs><color>teal</color></prefs>`); err != nil {
		t.Fatal(err)
	}
	h := startServer(t, cfg).Handler()

	if got := get(t, h, "/prefs", http.StatusOK); got != "<p>teal</p>" {
		t.Errorf("/prefs = %q, want %q", got, "<p>teal</p>")
	}

	mr.SetError("down")
	get(t, h, "/prefs", http.StatusBadGateway)
}

func TestServerRejectsBrokenView(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Routes = []config.Route{{Pattern: "/broken", View: writeFile(t, dir, "broken.xml", "<p>")}}

	_, err := newServer(cfg, logging.NewNop(), prometheus.NewRegistry())
	if err == nil {
		t.Fatal("newServer() err = nil, want compile failure")
	}
	for _, want := range []string{"route /broken", "broken.xml"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("newServer() error = %v, want it to mention %q", err, want)
		}
	}
}

func TestRunWithArgsConfigErrors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]struct {
		path string
		want string
	}{
		"unsupported schema": {path: writeFile(t, dir, "weffo.yaml", "schema_version: v9\n"), want: "schema_version"},
		"named file missing": {path: filepath.Join(dir, "missing.yaml"), want: "missing.yaml"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := runWithArgs([]string{"--config", tt.path}, &stdout, &stderr); code != 1 {
				t.Errorf("runWithArgs() = %d, want 1", code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.want)
			}
			if stdout.Len() != 0 {
				t.Errorf("stdout = %q, want empty", stdout.String())
			}
		})
	}
}
