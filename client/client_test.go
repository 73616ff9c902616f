package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// scriptedServer answers GET status requests with a fixed sequence of states
// and records the trigger POSTs it receives.
type scriptedServer struct {
	mu       sync.Mutex
	statuses []Status
	index    int
	triggers int
	trigger  Status
}

func (s *scriptedServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}

		if r.Method == http.MethodPost {
			s.triggers++
			_ = json.NewEncoder(w).Encode(s.trigger)
			return
		}

		status := s.statuses[len(s.statuses)-1]
		if s.index < len(s.statuses) {
			status = s.statuses[s.index]
			s.index++
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}

func newScriptedClient(t *testing.T, script *scriptedServer) *Client {
	t.Helper()
	server := httptest.NewServer(script.handler())
	t.Cleanup(server.Close)

	c := New(server.URL, "tok")
	c.PollInterval = time.Millisecond
	c.MaxAttempts = 5
	return c
}

func TestAwaitReturnsImmediatelyWhenCompleted(t *testing.T) {
	script := &scriptedServer{
		statuses: []Status{{Status: "completed", DownloadURL: "https://example.com/a.csv"}},
	}
	c := newScriptedClient(t, script)

	status, err := c.Await(context.Background(), "grp_1", "csv")
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if status.DownloadURL != "https://example.com/a.csv" {
		t.Errorf("downloadUrl = %s", status.DownloadURL)
	}
	if script.triggers != 0 {
		t.Errorf("completed status must not trigger, triggers = %d", script.triggers)
	}
}

func TestAwaitTriggersWhenPendingThenPolls(t *testing.T) {
	script := &scriptedServer{
		statuses: []Status{
			{Status: "pending"},
			{Status: "processing"},
			{Status: "processing"},
			{Status: "completed", DownloadURL: "https://example.com/a.csv"},
		},
		trigger: Status{Status: "processing"},
	}
	c := newScriptedClient(t, script)

	status, err := c.Await(context.Background(), "grp_1", "csv")
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if status.Status != "completed" {
		t.Errorf("status = %s", status.Status)
	}
	if script.triggers != 1 {
		t.Errorf("expected exactly one trigger, got %d", script.triggers)
	}
}

func TestAwaitTriggerShortCircuit(t *testing.T) {
	script := &scriptedServer{
		statuses: []Status{{Status: "pending"}},
		trigger:  Status{Status: "completed", DownloadURL: "https://example.com/a.vcf"},
	}
	c := newScriptedClient(t, script)

	status, err := c.Await(context.Background(), "grp_1", "vcf")
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if status.DownloadURL != "https://example.com/a.vcf" {
		t.Errorf("downloadUrl = %s", status.DownloadURL)
	}
}

func TestAwaitSurfacesExportFailure(t *testing.T) {
	script := &scriptedServer{
		statuses: []Status{
			{Status: "pending"},
			{Status: "processing"},
			{Status: "error", Error: "generation blew up"},
		},
		trigger: Status{Status: "processing"},
	}
	c := newScriptedClient(t, script)

	_, err := c.Await(context.Background(), "grp_1", "csv")
	if !errors.Is(err, ErrExportFailed) {
		t.Fatalf("expected ErrExportFailed, got %v", err)
	}
}

func TestAwaitExhaustsAttemptBudget(t *testing.T) {
	script := &scriptedServer{
		statuses: []Status{{Status: "processing"}},
	}
	c := newScriptedClient(t, script)
	c.MaxAttempts = 3

	status, err := c.Await(context.Background(), "grp_1", "csv")
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if status.Status != "processing" {
		t.Errorf("last observed status = %s", status.Status)
	}
}

func TestAwaitHonorsContextCancellation(t *testing.T) {
	script := &scriptedServer{
		statuses: []Status{{Status: "processing"}},
	}
	c := newScriptedClient(t, script)
	c.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if _, err := c.Await(ctx, "grp_1", "csv"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoRejectsTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "INVALID_FORMAT", "error": "format must be csv or vcf"})
	}))
	defer server.Close()

	c := New(server.URL, "tok")
	if _, err := c.ExportStatus(context.Background(), "grp_1", "pdf"); err == nil {
		t.Fatal("4xx without a terminal error status must fail")
	}
}
