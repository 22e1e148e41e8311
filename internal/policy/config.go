// Package policy holds squadron's configuration: which server to talk to,
// which agent roles to run, and how the supervisor treats their processes.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalStateDir returns the default global state directory (~/.config/squadron).
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "squadron")
}

// GlobalJournalFile returns the default supervisor journal path.
func GlobalJournalFile() string {
	return filepath.Join(GlobalStateDir(), "journal.sqlite")
}

// RestartConfig controls how the supervisor restarts a dead agent process.
// The zero value restarts immediately and without limit, which is what the
// demo wants: agents come back no matter how they died.
type RestartConfig struct {
	MaxRestarts    int `yaml:"max_restarts"`    // 0 = unlimited
	BackoffSeconds int `yaml:"backoff_seconds"` // delay before each restart, 0 = immediate
}

// Backoff returns the restart delay as a duration.
func (r RestartConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffSeconds) * time.Second
}

// ProviderConfig configures the language-model reply provider. With no API
// key (inline or via the env var) agents use canned responses only.
type ProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
}

// ResolveAPIKey returns the configured key, falling back to the env var.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// DemoConfig drives the collaboration demo: which project thread to open
// and which tasks to seed into it.
type DemoConfig struct {
	Project      string   `yaml:"project"`
	Tasks        []string `yaml:"tasks"`
	DelaySeconds int      `yaml:"task_delay_seconds"`
}

// Config is the full squadron configuration.
type Config struct {
	ServerURL   string `yaml:"server_url"`
	Application string `yaml:"application"`
	Session     string `yaml:"session"`

	// Roles lists the agent roles the supervisor runs. Each role becomes
	// one child process executing AgentCommand with the role appended.
	Roles        []string `yaml:"roles"`
	AgentCommand []string `yaml:"agent_command"`

	Restart                RestartConfig `yaml:"restart"`
	GracePeriodSeconds     int           `yaml:"grace_period_seconds"`
	MonitorIntervalSeconds int           `yaml:"monitor_interval_seconds"`

	JournalFile string `yaml:"journal_file"`
	LogFile     string `yaml:"log_file"`

	Provider ProviderConfig `yaml:"provider"`
	Demo     DemoConfig     `yaml:"demo"`
}

// DefaultConfig returns the demo defaults: a local coordination server and
// the three core development roles.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:   "http://localhost:5555",
		Application: "aiDevSquad",
		Session:     "session1",
		Roles:       []string{"frontend", "backend", "security"},
		AgentCommand: []string{
			"squadron-agent",
		},
		Restart:                RestartConfig{},
		GracePeriodSeconds:     5,
		MonitorIntervalSeconds: 1,
		Provider: ProviderConfig{
			APIKeyEnv: "GROQ_API_KEY",
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "llama-3.3-70b-versatile",
		},
		Demo: DemoConfig{
			Project: "E-Commerce Platform",
			Tasks: []string{
				"Create user authentication system with JWT",
				"Build product catalog with search functionality",
				"Implement shopping cart and checkout",
				"Perform security audit on authentication",
			},
			DelaySeconds: 3,
		},
	}
}

// LoadConfig reads a YAML config file over the defaults, then applies
// environment overrides. SQUADRON_SERVER_URL and SQUADRON_SESSION always
// win, so one shell export can redirect a whole deployment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SQUADRON_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("SQUADRON_SESSION"); v != "" {
		c.Session = v
	}
}

// Validate rejects configurations the supervisor cannot run with.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("config: server_url is required")
	}
	if c.Application == "" {
		return fmt.Errorf("config: application is required")
	}
	if c.Session == "" {
		return fmt.Errorf("config: session is required")
	}
	if len(c.AgentCommand) == 0 {
		return fmt.Errorf("config: agent_command is required")
	}
	if c.MonitorIntervalSeconds <= 0 {
		return fmt.Errorf("config: monitor_interval_seconds must be positive")
	}
	if c.GracePeriodSeconds < 0 {
		return fmt.Errorf("config: grace_period_seconds must not be negative")
	}
	seen := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r == "" {
			return fmt.Errorf("config: empty role name")
		}
		if seen[r] {
			return fmt.Errorf("config: duplicate role %q", r)
		}
		seen[r] = true
	}
	return nil
}

// ChildEnv returns the environment variables a supervised agent process
// needs beyond the parent's: the server coordinates and the provider
// settings, so a YAML provider section reaches every child.
func (c *Config) ChildEnv() []string {
	env := []string{
		"SQUADRON_SERVER_URL=" + c.ServerURL,
		"SQUADRON_APPLICATION=" + c.Application,
		"SQUADRON_SESSION=" + c.Session,
	}
	if c.Provider.BaseURL != "" {
		env = append(env, "SQUADRON_LLM_BASE_URL="+c.Provider.BaseURL)
	}
	if c.Provider.Model != "" {
		env = append(env, "SQUADRON_LLM_MODEL="+c.Provider.Model)
	}
	if key := c.Provider.ResolveAPIKey(); key != "" {
		env = append(env, "SQUADRON_LLM_API_KEY="+key)
	}
	return env
}

// MonitorInterval returns the supervisor poll interval as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSeconds) * time.Second
}

// GracePeriod returns how long StopAll waits between terminate and kill.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// JournalPath returns the configured journal file, defaulting to the
// global one so every supervisor on the machine shares history.
func (c *Config) JournalPath() string {
	if c.JournalFile == "" {
		return GlobalJournalFile()
	}
	return c.JournalFile
}

// LogPath returns the log file path, defaulting into the global state dir.
// Set to "none" or "off" to disable file logging.
func (c *Config) LogPath() string {
	if c.LogFile == "" {
		return filepath.Join(GlobalStateDir(), "squadron.log")
	}
	return c.LogFile
}
