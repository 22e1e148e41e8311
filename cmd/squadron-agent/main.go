// squadron-agent runs a single AI agent: it connects the agent's event
// stream to the coordination server and serves capability requests until
// the stream closes or the process is signalled.
//
// Usage: squadron-agent <role>
//
// The role must be one of the built-in agent roles. Server location,
// application, and session come from SQUADRON_SERVER_URL,
// SQUADRON_APPLICATION, and SQUADRON_SESSION; set SQUADRON_LLM_API_KEY (or
// GROQ_API_KEY) to enable model-generated replies instead of canned ones.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/devsquad/squadron/internal/agent"
	"github.com/devsquad/squadron/internal/capability"
	"github.com/devsquad/squadron/internal/coral"
	"github.com/devsquad/squadron/internal/respond"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var roleDescriptions = map[string]struct {
	name string
	desc string
}{
	"frontend":    {"AI Frontend Developer", "an expert frontend developer specializing in React, TypeScript, and modern UI/UX design"},
	"backend":     {"AI Backend Developer", "an expert backend developer specializing in REST APIs, databases, and scalable architecture"},
	"security":    {"AI Security Auditor", "a cybersecurity expert specializing in vulnerability assessment, penetration testing, and secure coding practices"},
	"devops":      {"AI DevOps Engineer", "a DevOps expert specializing in CI/CD pipelines, containerization, infrastructure as code, and cloud deployments"},
	"datascience": {"AI Data Scientist", "a data science expert specializing in machine learning, data analysis, visualization, and predictive modeling"},
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Println("squadron-agent " + Version)
			return
		}
	}
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <role>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "roles: %s\n", strings.Join(capability.Roles, ", "))
		os.Exit(2)
	}
	role := os.Args[1]

	logger := log.New(os.Stdout, fmt.Sprintf("[%s] ", role), log.LstdFlags)

	if err := run(role, logger); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(role string, logger *log.Logger) error {
	meta, ok := roleDescriptions[role]
	if !ok {
		return fmt.Errorf("unknown agent role %q (want one of %s)", role, strings.Join(capability.Roles, ", "))
	}

	serverURL := envOr("SQUADRON_SERVER_URL", "http://localhost:5555")
	session := envOr("SQUADRON_SESSION", "session1")
	application := envOr("SQUADRON_APPLICATION", "aiDevSquad")

	provider := buildProvider(role, meta.name, meta.desc, logger)
	registry, err := capability.ForRole(role, provider)
	if err != nil {
		return err
	}

	client := coral.NewClient(serverURL, logger)
	identity := agent.Identity{
		ID:          fmt.Sprintf("ai_%s_001", role),
		Role:        role,
		DisplayName: meta.name,
	}
	engine := agent.NewEngine(client, application, session, identity, registry, logger,
		agent.WithResponder(provider))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Printf("connecting %s to %s", meta.name, serverURL)
	if err := engine.Connect(ctx); err != nil {
		return err
	}
	defer engine.Close()

	return engine.Run(ctx)
}

// buildProvider wires the reply provider: a language model over the Groq
// OpenAI-compatible API when a key is present, canned responses otherwise.
// The model provider keeps the canned one as its fallback.
func buildProvider(role, name, desc string, logger *log.Logger) respond.Provider {
	canned := respond.NewCannedProvider(role)

	// The supervisor exports the resolved key as SQUADRON_LLM_API_KEY;
	// standalone runs can still set GROQ_API_KEY directly.
	apiKey := envOr("SQUADRON_LLM_API_KEY", os.Getenv("GROQ_API_KEY"))
	if apiKey == "" {
		logger.Printf("no API key set, using canned responses")
		return canned
	}

	baseURL := envOr("SQUADRON_LLM_BASE_URL", "https://api.groq.com/openai/v1")
	opts := []respond.LLMOption{respond.WithFallback(canned)}
	if model := os.Getenv("SQUADRON_LLM_MODEL"); model != "" {
		opts = append(opts, respond.WithModel(model))
	}
	return respond.NewLLMProvider(apiKey, baseURL, name, desc, logger, opts...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
