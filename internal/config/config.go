// ABOUTME: Configuration loading and parsing for relay-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete relay-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bot      BotConfig      `yaml:"bot"`
	Triggers TriggersConfig `yaml:"triggers"`
	Mailbox  MailboxConfig  `yaml:"mailbox"`
	Runner   RunnerConfig   `yaml:"runner"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds listener address configuration
type ServerConfig struct {
	MailboxAddr string `yaml:"mailbox_addr"`
	BridgeAddr  string `yaml:"bridge_addr"`
}

// BotConfig holds chat platform identity and rendering configuration
type BotConfig struct {
	AppID       string `yaml:"app_id"`
	AppPassword string `yaml:"app_password"`
	TenantID    string `yaml:"tenant_id"`

	// ServiceURL overrides the per-conversation service URL when set.
	// Normally the service URL comes from the inbound activity.
	ServiceURL string `yaml:"service_url"`

	// SignaturePrefix marks the bot's own echoed messages so the bridge
	// can ignore them instead of re-enqueuing its own output.
	SignaturePrefix string `yaml:"signature_prefix"`

	// TextFormat selects outbound rendering: plain, markdown, or html.
	TextFormat string `yaml:"text_format"`

	// Greeting is sent once when a new member joins a conversation.
	Greeting string `yaml:"greeting"`

	// AckMessage is sent before a trigger starts a remote job.
	AckMessage string `yaml:"ack_message"`
}

// TriggersConfig holds the keyword list that routes a message to the
// job-start path instead of the mailbox.
type TriggersConfig struct {
	Keywords []string `yaml:"-"`

	// Raw comma-separated value for YAML unmarshaling
	KeywordsRaw string `yaml:"keywords"`
}

// MailboxConfig holds mailbox keying and capacity configuration
type MailboxConfig struct {
	// Mode selects the deployment mode: "single" uses one global queue
	// keyed by default_key, "keyed" buckets by caller-supplied id.
	Mode       string `yaml:"mode"`
	DefaultKey string `yaml:"default_key"`

	// Capacity bounds the number of queued messages per key. Zero means
	// unbounded, which is the accepted operational risk of this design.
	Capacity int    `yaml:"capacity"`
	Policy   string `yaml:"policy"` // "reject" or "drop-oldest"
}

// RunnerConfig holds RPA orchestrator connection configuration
type RunnerConfig struct {
	BaseURL      string `yaml:"base_url"`
	AppID        string `yaml:"app_id"`
	AppSecret    string `yaml:"app_secret"`
	Organization string `yaml:"organization"`
	Tenant       string `yaml:"tenant"`
	FolderID     string `yaml:"folder_id"`
	ProcessName  string `yaml:"process_name"`
	TaskOwnerID  string `yaml:"task_owner_id"`

	PollingInterval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	PollingIntervalRaw string `yaml:"polling_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Mailbox key modes
const (
	ModeSingle = "single"
	ModeKeyed  = "keyed"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDerived(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config populated with defaults for everything that has
// a sensible one. Identity and orchestrator fields stay empty and are caught
// by Validate.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			MailboxAddr: "0.0.0.0:8080",
			BridgeAddr:  "0.0.0.0:3978",
		},
		Bot: BotConfig{
			TextFormat: "markdown",
			Greeting:   "Hello! I am the vendor desk agent. How can I help?",
			AckMessage: "Checking whether a previously requested task is still in progress. One moment please.",
		},
		Triggers: TriggersConfig{
			KeywordsRaw: "거래처,거래선",
		},
		Mailbox: MailboxConfig{
			Mode:       ModeSingle,
			DefaultKey: "default",
		},
		Runner: RunnerConfig{
			BaseURL:            "https://cloud.uipath.com",
			PollingIntervalRaw: "3s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDerived converts raw string fields into their typed counterparts.
func parseDerived(cfg *Config) error {
	if cfg.Runner.PollingIntervalRaw != "" {
		d, err := time.ParseDuration(cfg.Runner.PollingIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing polling_interval %q: %w", cfg.Runner.PollingIntervalRaw, err)
		}
		cfg.Runner.PollingInterval = d
	}

	cfg.Triggers.Keywords = nil
	for _, kw := range strings.Split(cfg.Triggers.KeywordsRaw, ",") {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			cfg.Triggers.Keywords = append(cfg.Triggers.Keywords, kw)
		}
	}

	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.MailboxAddr == "" {
		return fmt.Errorf("server.mailbox_addr is required")
	}
	if c.Server.BridgeAddr == "" {
		return fmt.Errorf("server.bridge_addr is required")
	}

	if c.Bot.AppID == "" {
		return fmt.Errorf("bot.app_id is required")
	}
	if c.Bot.AppPassword == "" {
		return fmt.Errorf("bot.app_password is required")
	}

	switch c.Bot.TextFormat {
	case "plain", "markdown", "html":
	default:
		return fmt.Errorf("bot.text_format must be plain, markdown, or html (got %q)", c.Bot.TextFormat)
	}

	switch c.Mailbox.Mode {
	case ModeSingle, ModeKeyed:
	default:
		return fmt.Errorf("mailbox.mode must be %q or %q (got %q)", ModeSingle, ModeKeyed, c.Mailbox.Mode)
	}
	if c.Mailbox.DefaultKey == "" {
		return fmt.Errorf("mailbox.default_key is required")
	}
	if c.Mailbox.Capacity < 0 {
		return fmt.Errorf("mailbox.capacity must not be negative")
	}
	switch c.Mailbox.Policy {
	case "":
		if c.Mailbox.Capacity > 0 {
			return fmt.Errorf("mailbox.policy is required when capacity is set")
		}
	case "reject", "drop-oldest":
		if c.Mailbox.Capacity == 0 {
			return fmt.Errorf("mailbox.policy requires a non-zero capacity")
		}
	default:
		return fmt.Errorf("mailbox.policy must be reject or drop-oldest (got %q)", c.Mailbox.Policy)
	}

	if c.Runner.AppID == "" {
		return fmt.Errorf("runner.app_id is required")
	}
	if c.Runner.AppSecret == "" {
		return fmt.Errorf("runner.app_secret is required")
	}
	if c.Runner.Organization == "" {
		return fmt.Errorf("runner.organization is required")
	}
	if c.Runner.Tenant == "" {
		return fmt.Errorf("runner.tenant is required")
	}
	if c.Runner.FolderID == "" {
		return fmt.Errorf("runner.folder_id is required")
	}
	if c.Runner.ProcessName == "" {
		return fmt.Errorf("runner.process_name is required")
	}
	if c.Runner.PollingInterval <= 0 {
		return fmt.Errorf("runner.polling_interval must be positive")
	}

	if len(c.Triggers.Keywords) == 0 {
		return fmt.Errorf("triggers.keywords is required")
	}

	return nil
}
