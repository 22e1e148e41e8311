package respond

import (
	"context"
	"testing"
)

func TestCannedProviderKeywords(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		prompt string
		want   string
	}{
		{
			name:   "frontend auth",
			role:   "frontend",
			prompt: "Create user authentication system with JWT",
			want:   "I'll create a React authentication component with JWT token handling and form validation.",
		},
		{
			name:   "frontend login keyword",
			role:   "frontend",
			prompt: "We need a login page",
			want:   "I'll create a React authentication component with JWT token handling and form validation.",
		},
		{
			name:   "backend catalog",
			role:   "backend",
			prompt: "Build product catalog with search functionality",
			want:   "I'll design the database schema and API endpoints for product management.",
		},
		{
			name:   "security cart",
			role:   "security",
			prompt: "Implement shopping cart and checkout",
			want:   "I'll review payment processing security and PCI compliance requirements.",
		},
		{
			name:   "default fallthrough",
			role:   "backend",
			prompt: "What's the weather like",
			want:   "I'll help you build scalable REST APIs with proper authentication and database design.",
		},
		{
			name:   "unknown role uses frontend table",
			role:   "librarian",
			prompt: "set up auth",
			want:   "I'll create a React authentication component with JWT token handling and form validation.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewCannedProvider(tt.role)
			got, err := p.GetResponse(context.Background(), tt.prompt, "")
			if err != nil {
				t.Fatalf("GetResponse: %v", err)
			}
			if got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCannedProviderDeterministic(t *testing.T) {
	p := NewCannedProvider("devops")
	a, _ := p.GetResponse(context.Background(), "containerize the cart service", "")
	b, _ := p.GetResponse(context.Background(), "containerize the cart service", "")
	if a != b {
		t.Errorf("replies differ: %q vs %q", a, b)
	}
}

func TestCannedProviderHistory(t *testing.T) {
	p := NewCannedProvider("frontend")
	p.GetResponse(context.Background(), "auth please", "")
	p.GetResponse(context.Background(), "product page", "")

	h := p.History()
	if len(h) != 2 {
		t.Fatalf("history = %d, want 2", len(h))
	}
	if h[0].Prompt != "auth please" || h[1].Prompt != "product page" {
		t.Errorf("history order wrong: %+v", h)
	}
	if h[0].Response == "" || h[0].At.IsZero() {
		t.Errorf("exchange not filled: %+v", h[0])
	}
}
