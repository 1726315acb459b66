package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidcast/internal/services"
)

func newFakeDaemon(t *testing.T) (*httptest.Server, *http.Request) {
	t.Helper()
	var last http.Request
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		last = *r
		json.NewEncoder(w).Encode(Status{Running: true, ActiveUploads: 2})
	})
	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		last = *r
		var req SubmitTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Task{ID: "t-1", Title: req.Title, Status: "queued"})
	})
	mux.HandleFunc("/api/tasks/missing", func(w http.ResponseWriter, r *http.Request) {
		last = *r
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "task not found"})
	})
	mux.HandleFunc("/api/queue", func(w http.ResponseWriter, r *http.Request) {
		last = *r
		json.NewEncoder(w).Encode([]Task{{ID: "t-1"}, {ID: "t-2"}})
	})
	mux.HandleFunc("/api/queue/retry", func(w http.ResponseWriter, r *http.Request) {
		last = *r
		json.NewEncoder(w).Encode(RetryResult{Retried: 3})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &last
}

func TestClientSendsBearerToken(t *testing.T) {
	server, last := newFakeDaemon(t)
	client := NewClient(server.URL, "sekrit")

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running || status.ActiveUploads != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if got := last.Header.Get("Authorization"); got != "Bearer sekrit" {
		t.Fatalf("authorization header = %q", got)
	}
}

func TestClientAcceptsBareHostPort(t *testing.T) {
	server, _ := newFakeDaemon(t)
	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "")

	if _, err := client.Status(context.Background()); err != nil {
		t.Fatalf("status over bare host:port: %v", err)
	}
}

func TestClientSubmitTask(t *testing.T) {
	server, last := newFakeDaemon(t)
	client := NewClient(server.URL, "")

	task, err := client.SubmitTask(context.Background(), SubmitTaskRequest{
		SourcePath: "/videos/demo.mp4",
		Title:      "Demo",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.ID != "t-1" || task.Title != "Demo" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if ct := last.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestClientMapsNotFound(t *testing.T) {
	server, _ := newFakeDaemon(t)
	client := NewClient(server.URL, "")

	_, err := client.GetTask(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "task not found") {
		t.Fatalf("error should carry the daemon message, got %q", err.Error())
	}
}

func TestClientQueueFilter(t *testing.T) {
	server, last := newFakeDaemon(t)
	client := NewClient(server.URL, "")

	tasks, err := client.ListQueue(context.Background(), "queued", "processing")
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if got := last.URL.Query().Get("status"); got != "queued,processing" {
		t.Fatalf("status filter = %q", got)
	}
}

func TestClientDaemonUnreachable(t *testing.T) {
	client := NewClient("127.0.0.1:1", "")
	_, err := client.Status(context.Background())
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !strings.Contains(err.Error(), "daemon unreachable") {
		t.Fatalf("error = %q", err.Error())
	}
}
