package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidcast/internal/api"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`[paths]
staging_dir = %q
log_dir = %q

[platform]
base_url = "https://upload.example.test"

[accounts]
credential_key = %q
`, filepath.Join(dir, "staging"), filepath.Join(dir, "logs"), testKey)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func newFakeDaemon(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestQueueListEmpty(t *testing.T) {
	cfg := writeTestConfig(t)
	server := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]api.Task{})
	})

	out, err := runCommand(t, "--config", cfg, "--server", server.URL, "--token", "x", "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("output = %q", out)
	}
}

func TestQueueListRendersTable(t *testing.T) {
	cfg := writeTestConfig(t)
	server := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]api.Task{
			{ID: "t-1", Title: "First Upload", Status: "queued", Priority: "high", Progress: 0},
			{ID: "t-2", Title: "Second Upload", Status: "processing", Priority: "normal", Progress: 40},
		})
	})

	out, err := runCommand(t, "--config", cfg, "--server", server.URL, "--token", "x", "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	for _, want := range []string{"First Upload", "Second Upload", "Queued", "Processing", "40%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestQueueListPassesStatusFilter(t *testing.T) {
	cfg := writeTestConfig(t)
	var gotFilter string
	server := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("status")
		json.NewEncoder(w).Encode([]api.Task{})
	})

	if _, err := runCommand(t, "--config", cfg, "--server", server.URL, "--token", "x",
		"queue", "list", "--status", "failed", "--status", "queued"); err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if gotFilter != "failed,queued" {
		t.Fatalf("status filter = %q", gotFilter)
	}
}

func TestSubmitRejectsMissingFile(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCommand(t, "--config", cfg, "--server", "127.0.0.1:1", "--token", "x",
		"submit", filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil {
		t.Fatal("expected error for missing source file")
	}
}

func TestSubmitDefaultsTitleFromFileName(t *testing.T) {
	cfg := writeTestConfig(t)
	source := filepath.Join(t.TempDir(), "beach trip.mp4")
	if err := os.WriteFile(source, []byte("data"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	var got api.SubmitTaskRequest
	server := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.Task{ID: "t-9", Title: got.Title, Priority: "normal", Status: "queued"})
	})

	out, err := runCommand(t, "--config", cfg, "--server", server.URL, "--token", "x",
		"submit", source, "--tag", "travel", "--priority", "high")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Title != "beach trip" {
		t.Fatalf("title = %q, want file stem", got.Title)
	}
	if got.Priority != "high" || len(got.Tags) != 1 || got.Tags[0] != "travel" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if !strings.Contains(out, "t-9") {
		t.Fatalf("output should mention the task id:\n%s", out)
	}
}

func TestCancelPrintsConfirmation(t *testing.T) {
	cfg := writeTestConfig(t)
	server := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	out, err := runCommand(t, "--config", cfg, "--server", server.URL, "--token", "x", "cancel", "t-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(out, "t-1") {
		t.Fatalf("output = %q", out)
	}
}

func TestAccountsListRendersHealth(t *testing.T) {
	cfg := writeTestConfig(t)
	server := newFakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]api.Account{
			{ID: "a-1", Label: "primary", HealthStatus: "healthy", Level: 5, VIP: true},
		})
	})

	out, err := runCommand(t, "--config", cfg, "--server", server.URL, "--token", "x", "accounts", "list")
	if err != nil {
		t.Fatalf("accounts list: %v", err)
	}
	for _, want := range []string{"primary", "Healthy", "yes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAccountsAddRequiresLabel(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCommand(t, "--config", cfg, "--server", "127.0.0.1:1", "--token", "x",
		"accounts", "add", "--session", "s", "--csrf", "c", "--user-id", "u")
	if err == nil || !strings.Contains(err.Error(), "label") {
		t.Fatalf("err = %v, want missing label complaint", err)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output = %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
}

func TestDisplayLabel(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"queued":     "Queued",
		"processing": "Processing",
		"urgent":     "Urgent",
	}
	for in, want := range cases {
		if got := displayLabel(in); got != want {
			t.Fatalf("displayLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
