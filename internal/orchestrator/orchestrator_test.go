package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/devsquad/squadron/internal/coral"
	"github.com/devsquad/squadron/internal/policy"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func demoConfig() *policy.Config {
	cfg := policy.DefaultConfig()
	cfg.Demo = policy.DemoConfig{
		Project: "E-Commerce Platform",
		Tasks: []string{
			"Create user authentication system with JWT",
			"Build product catalog with search functionality",
		},
		DelaySeconds: 0,
	}
	return cfg
}

func TestCheckServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agents" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]coral.AgentInfo{})
	}))
	defer srv.Close()

	o := New(coral.NewClient(srv.URL, testLogger()), demoConfig(), testLogger())
	if err := o.CheckServer(context.Background()); err != nil {
		t.Fatalf("CheckServer: %v", err)
	}
}

func TestCheckServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o := New(coral.NewClient(srv.URL, testLogger()), demoConfig(), testLogger())
	if err := o.CheckServer(context.Background()); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestRunDemo(t *testing.T) {
	var mu sync.Mutex
	var threadName string
	var participants []string
	var messages []map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Name         string         `json:"name"`
			Participants []string       `json:"participants"`
			Metadata     map[string]any `json:"metadata"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		threadName = payload.Name
		participants = payload.Participants
		mu.Unlock()
		if payload.Metadata["project"] != "E-Commerce Platform" {
			t.Errorf("metadata = %v", payload.Metadata)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "th-demo"})
	})
	mux.HandleFunc("/api/v1/threads/th-demo/messages", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		messages = append(messages, payload)
		mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := New(coral.NewClient(srv.URL, testLogger()), demoConfig(), testLogger())
	squad := []string{"ai_frontend_001", "ai_backend_001"}

	threadID, err := o.RunDemo(context.Background(), squad)
	if err != nil {
		t.Fatalf("RunDemo: %v", err)
	}
	if threadID != "th-demo" {
		t.Errorf("thread id = %q", threadID)
	}

	mu.Lock()
	defer mu.Unlock()
	if threadName != "Project: E-Commerce Platform" {
		t.Errorf("thread name = %q", threadName)
	}
	if len(participants) != 2 {
		t.Errorf("participants = %v", participants)
	}
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[0]["content"] != "Create user authentication system with JWT" {
		t.Errorf("first task = %v", messages[0]["content"])
	}
	if messages[0]["sender"] != "orchestrator" {
		t.Errorf("sender = %v", messages[0]["sender"])
	}
	mentions, _ := messages[0]["mentions"].([]any)
	if len(mentions) != 2 {
		t.Errorf("mentions = %v", messages[0]["mentions"])
	}
}

func TestRunDemoSkipsFailedTask(t *testing.T) {
	var posts int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "th-1"})
	})
	mux.HandleFunc("/api/v1/threads/th-1/messages", func(w http.ResponseWriter, r *http.Request) {
		posts++
		if posts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := New(coral.NewClient(srv.URL, testLogger()), demoConfig(), testLogger())
	if _, err := o.RunDemo(context.Background(), nil); err != nil {
		t.Fatalf("RunDemo should survive a failed post: %v", err)
	}
	if posts != 2 {
		t.Errorf("posts = %d, want both tasks attempted", posts)
	}
}

func TestRunDemoThreadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := New(coral.NewClient(srv.URL, testLogger()), demoConfig(), testLogger())
	if _, err := o.RunDemo(context.Background(), nil); err == nil {
		t.Fatal("expected error when thread creation fails")
	}
}

func TestRunDemoDelayBetweenTasks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "th-1"})
	})
	mux.HandleFunc("/api/v1/threads/th-1/messages", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := demoConfig()
	cfg.Demo.DelaySeconds = 3

	o := New(coral.NewClient(srv.URL, testLogger()), cfg, testLogger())
	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if _, err := o.RunDemo(context.Background(), nil); err != nil {
		t.Fatalf("RunDemo: %v", err)
	}
	// Two tasks, one pause between them.
	if len(slept) != 1 || slept[0] != 3*time.Second {
		t.Errorf("sleeps = %v", slept)
	}
}
