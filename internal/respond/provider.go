// Package respond generates agent replies. The canned provider answers
// deterministically by keyword, good enough for demos and as the fallback
// when the language model is unreachable; the LLM provider wraps an
// OpenAI-compatible chat API behind a circuit breaker.
package respond

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Provider produces one reply for a prompt. Context carries conversational
// framing such as which thread the prompt came from.
type Provider interface {
	GetResponse(ctx context.Context, prompt, context string) (string, error)
}

// Exchange is one prompt/response pair kept by providers that record
// history.
type Exchange struct {
	Prompt   string
	Response string
	At       time.Time
}

var cannedByRole = map[string]map[string]string{
	"frontend": {
		"auth":    "I'll create a React authentication component with JWT token handling and form validation.",
		"catalog": "I'll build a responsive product catalog using React with filtering and search functionality.",
		"cart":    "I'll implement a shopping cart with local storage persistence and real-time updates.",
		"default": "I'll help you build the frontend components using React and modern UI patterns.",
	},
	"backend": {
		"auth":    "I'll create REST API endpoints for user registration, login, and JWT token management.",
		"catalog": "I'll design the database schema and API endpoints for product management.",
		"cart":    "I'll implement cart persistence API with session management and order processing.",
		"default": "I'll help you build scalable REST APIs with proper authentication and database design.",
	},
	"security": {
		"auth":    "I'll audit the authentication flow for SQL injection, XSS, and JWT vulnerabilities.",
		"catalog": "I'll check for input validation, rate limiting, and data exposure risks.",
		"cart":    "I'll review payment processing security and PCI compliance requirements.",
		"default": "I'll perform a comprehensive security audit and provide recommendations.",
	},
	"devops": {
		"auth":    "I'll set up secrets management and secure deployment for the authentication service.",
		"catalog": "I'll provision the catalog service with autoscaling and a CDN in front of it.",
		"cart":    "I'll configure session affinity and health checks for the cart service.",
		"default": "I'll help you automate builds, deployments, and infrastructure provisioning.",
	},
	"datascience": {
		"auth":    "I'll analyze login patterns to detect anomalous authentication behavior.",
		"catalog": "I'll build a recommendation model from product browsing data.",
		"cart":    "I'll model cart abandonment and suggest interventions to reduce it.",
		"default": "I'll help you analyze the data and build predictive models from it.",
	},
}

// CannedProvider answers from a fixed per-role response table using keyword
// matching. It is deterministic and never returns an error.
type CannedProvider struct {
	role string

	mu      sync.Mutex
	history []Exchange
}

// NewCannedProvider returns a canned provider for the given role. Roles
// without a table fall back to the frontend one.
func NewCannedProvider(role string) *CannedProvider {
	return &CannedProvider{role: role}
}

// GetResponse picks a reply by keyword. The error is always nil.
func (p *CannedProvider) GetResponse(_ context.Context, prompt, _ string) (string, error) {
	table, ok := cannedByRole[p.role]
	if !ok {
		table = cannedByRole["frontend"]
	}

	lower := strings.ToLower(prompt)
	var reply string
	switch {
	case strings.Contains(lower, "auth") || strings.Contains(lower, "login"):
		reply = table["auth"]
	case strings.Contains(lower, "catalog") || strings.Contains(lower, "product"):
		reply = table["catalog"]
	case strings.Contains(lower, "cart") || strings.Contains(lower, "shopping"):
		reply = table["cart"]
	default:
		reply = table["default"]
	}

	p.mu.Lock()
	p.history = append(p.history, Exchange{Prompt: prompt, Response: reply, At: time.Now()})
	p.mu.Unlock()
	return reply, nil
}

// History returns a copy of every exchange so far, oldest first.
func (p *CannedProvider) History() []Exchange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Exchange, len(p.history))
	copy(out, p.history)
	return out
}
