package respond

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func completionResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "llama-3.3-70b-versatile",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func TestLLMProviderSuccess(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionResponse("Use bcrypt for password hashing."))
	}))
	defer srv.Close()

	p := NewLLMProvider("test-key", srv.URL, "AI Backend Developer",
		"an expert backend developer", discard())

	reply, err := p.GetResponse(context.Background(), "how should we store passwords?", "thread th-1")
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if reply != "Use bcrypt for password hashing." {
		t.Errorf("reply = %q", reply)
	}

	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want system+user", len(msgs))
	}
	system := msgs[0].(map[string]any)
	if system["role"] != "system" || !strings.Contains(system["content"].(string), "AI Backend Developer") {
		t.Errorf("system message = %v", system)
	}
	user := msgs[1].(map[string]any)
	if !strings.Contains(user["content"].(string), "thread th-1") {
		t.Errorf("user message lost context framing: %v", user["content"])
	}
}

func TestLLMProviderFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	canned := NewCannedProvider("backend")
	p := NewLLMProvider("test-key", srv.URL, "AI Backend Developer",
		"an expert backend developer", discard(), WithFallback(canned))

	reply, err := p.GetResponse(context.Background(), "design the auth flow", "")
	if err != nil {
		t.Fatalf("GetResponse with fallback: %v", err)
	}
	want := "I'll create REST API endpoints for user registration, login, and JWT token management."
	if reply != want {
		t.Errorf("reply = %q, want canned %q", reply, want)
	}
}

func TestLLMProviderNoFallbackReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewLLMProvider("test-key", srv.URL, "AI Frontend Developer", "a frontend developer", discard())
	if _, err := p.GetResponse(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected error without fallback")
	}
}

func TestLLMProviderBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	canned := NewCannedProvider("security")
	p := NewLLMProvider("test-key", srv.URL, "AI Security Auditor",
		"a security expert", discard(), WithFallback(canned))

	// Trip the breaker, then keep asking. Replies must keep coming from
	// the fallback, and the dead upstream must stop seeing traffic.
	for i := 0; i < 10; i++ {
		reply, err := p.GetResponse(context.Background(), "audit the login flow", "")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if reply == "" {
			t.Fatalf("call %d: empty reply", i)
		}
	}

	// The client retries server errors internally (up to 2 retries), so
	// 10 executes that all reached the upstream mean 30 requests.
	if n := calls.Load(); n >= 30 {
		t.Errorf("upstream saw %d calls, breaker never opened", n)
	}
}
