package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

const EnvPrefix = "ODOOAGENT_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Models    ModelsConfig    `koanf:"models"`
	Odoo      OdooConfig      `koanf:"odoo"`
	Retry     RetryConfig     `koanf:"retry"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Cache     CacheConfig     `koanf:"cache"`
	Agents    AgentsConfig    `koanf:"agents"`
	Commands  CommandsConfig  `koanf:"commands"`
	Daemon    DaemonConfig    `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int      `koanf:"port"`
	LogLevel        string   `koanf:"log_level"`
	ReadTimeout     string   `koanf:"read_timeout"`
	WriteTimeout    string   `koanf:"write_timeout"`
	IdleTimeout     string   `koanf:"idle_timeout"`
	ShutdownTimeout string   `koanf:"shutdown_timeout"`
	RequestTimeout  string   `koanf:"request_timeout"`
	APIKeys         []string `koanf:"api_keys"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default"`
	Fallback            string          `koanf:"fallback"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts"`
	MaxTokens           int             `koanf:"max_tokens"`
	Registry            []ModelRegistry `koanf:"registry"`
}

type ModelRegistry struct {
	Name           string `koanf:"name"`
	Provider       string `koanf:"provider"`
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	RequestTimeout string `koanf:"request_timeout"`
}

type OdooConfig struct {
	URL            string `koanf:"url"`
	Database       string `koanf:"database"`
	Username       string `koanf:"username"`
	Password       string `koanf:"password"`
	CallTimeout    string `koanf:"call_timeout"`
	ConnectTimeout string `koanf:"connect_timeout"`
}

type RetryConfig struct {
	MaxAttempts   int     `koanf:"max_attempts"`
	BaseDelay     string  `koanf:"base_delay"`
	BackoffFactor float64 `koanf:"backoff_factor"`
	MaxDelay      string  `koanf:"max_delay"`
}

type RateLimitConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Requests int    `koanf:"requests"`
	Window   string `koanf:"window"`
}

type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	TTL     string `koanf:"ttl"`
	Size    int    `koanf:"size"`
}

type AgentsConfig struct {
	HistoryLimit int           `koanf:"history_limit"`
	Greeting     string        `koanf:"greeting"`
	Prompts      PromptsConfig `koanf:"prompts"`
}

type PromptsConfig struct {
	Main  string `koanf:"main"`
	Sales string `koanf:"sales"`
	CRM   string `koanf:"crm"`
}

type CommandsConfig struct {
	AllowedMethods []string `koanf:"allowed_methods"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
}

const (
	DefaultServerPort                   = 8080
	DefaultServerLogLevel               = "info"
	DefaultServerReadTimeout            = "10s"
	DefaultServerWriteTimeout           = "120s"
	DefaultServerIdleTimeout            = "60s"
	DefaultServerShutdownTimeout        = "5s"
	DefaultServerRequestTimeout         = "120s"
	DefaultModelDefault                 = "claude-3-5-haiku-20241022"
	DefaultModelFallback                = "gpt-4o-mini"
	DefaultModelMaxFallbackAttempts     = 2
	DefaultModelMaxTokens               = 2000
	DefaultModelRequestTimeout          = "60s"
	DefaultOpenAIBaseURL                = "https://api.openai.com/v1"
	DefaultOllamaBaseURL                = "http://localhost:11434/v1"
	DefaultOllamaAPIKey                 = "ollama"
	DefaultOdooURL                      = "http://localhost:8069"
	DefaultOdooDatabase                 = "odoo"
	DefaultOdooUsername                 = "admin"
	DefaultOdooCallTimeout              = "30s"
	DefaultOdooConnectTimeout           = "10s"
	DefaultRetryMaxAttempts             = 3
	DefaultRetryBaseDelay               = "1s"
	DefaultRetryBackoffFactor           = 2.0
	DefaultRetryMaxDelay                = "30s"
	DefaultRateLimitEnabled             = true
	DefaultRateLimitRequests            = 100
	DefaultRateLimitWindow              = "1h"
	DefaultCacheEnabled                 = true
	DefaultCacheTTL                     = "5m"
	DefaultCacheSize                    = 512
	DefaultAgentsHistoryLimit           = 20
	DefaultAgentsGreeting               = "I am an AI assistant for Odoo ERP. How can I help you today?"
	DefaultDaemonShutdownTimeout        = "30s"
	DefaultDaemonHealthCheckInterval    = "30s"
	DefaultDaemonStartupShutdownTimeout = "10s"
)

const DefaultMainPrompt = `You are the main AI assistant for an Odoo ERP system. You can:
1. Answer questions about the system
2. Make database operations
3. Delegate tasks to the sales agent or the CRM agent
4. Coordinate between different system components

When delegating to the sales agent, use the format:
DELEGATE_TO_SALES_AGENT:{"instruction": "your instruction here", "customer_id": 123}

When delegating to the CRM agent, use the format:
DELEGATE_TO_CRM_AGENT:{"instruction": "your instruction here", "customer_id": 123}

When making database operations, use the format:
DATABASE_OPERATION:{"model": "model.name", "method": "method_name", "args": [...], "kwargs": {...}}

Put each marker on its own line. Emit at most one database operation and at most one delegation per reply.`

const DefaultSalesPrompt = `You are a sales agent in an Odoo ERP system. You can:
1. Send emails to customers
2. Schedule follow-ups
3. Manage customer communications
4. Track customer interactions

When sending emails, use the format:
DATABASE_OPERATION:{"model": "mail.mail", "method": "create", "args": [{"subject": "subject", "body_html": "body", "email_to": "customer@example.com"}]}

When scheduling follow-ups, use the format:
DATABASE_OPERATION:{"model": "mail.activity", "method": "create", "args": [{"res_model": "res.partner", "res_id": 123, "date_deadline": "2024-03-20", "note": "notes"}]}

Emit at most one database operation per reply, on its own line.`

const DefaultCRMPrompt = `You are a CRM agent in an Odoo ERP system. You can:
1. Create and qualify leads and opportunities
2. Move opportunities between pipeline stages
3. Look up customers and their history
4. Hand customer communication to the sales agent

When delegating to the sales agent, use the format:
DELEGATE_TO_SALES_AGENT:{"instruction": "your instruction here", "customer_id": 123}

When making database operations, use the format:
DATABASE_OPERATION:{"model": "crm.lead", "method": "search_read", "args": [[["type", "=", "opportunity"]]], "kwargs": {"fields": ["name", "stage_id"], "limit": 10}}

Put each marker on its own line. Emit at most one database operation and at most one delegation per reply.`

// sections lists the top-level keys so environment variables like
// ODOOAGENT_RATE_LIMIT_REQUESTS resolve to rate_limit.requests.
var sections = []string{"server", "models", "odoo", "retry", "rate_limit", "cache", "agents", "commands", "daemon"}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":                  DefaultServerPort,
		"server.log_level":             DefaultServerLogLevel,
		"server.read_timeout":          DefaultServerReadTimeout,
		"server.write_timeout":         DefaultServerWriteTimeout,
		"server.idle_timeout":          DefaultServerIdleTimeout,
		"server.shutdown_timeout":      DefaultServerShutdownTimeout,
		"server.request_timeout":       DefaultServerRequestTimeout,
		"server.api_keys":              []string{},
		"models.default":               DefaultModelDefault,
		"models.fallback":              DefaultModelFallback,
		"models.max_fallback_attempts": DefaultModelMaxFallbackAttempts,
		"models.max_tokens":            DefaultModelMaxTokens,
		"models.registry": []ModelRegistry{
			{Name: DefaultModelDefault, Provider: "anthropic"},
			{Name: DefaultModelFallback, Provider: "openai"},
			{Name: "local-llama", Provider: "ollama", BaseURL: DefaultOllamaBaseURL},
		},
		"odoo.url":                        DefaultOdooURL,
		"odoo.database":                   DefaultOdooDatabase,
		"odoo.username":                   DefaultOdooUsername,
		"odoo.call_timeout":               DefaultOdooCallTimeout,
		"odoo.connect_timeout":            DefaultOdooConnectTimeout,
		"retry.max_attempts":              DefaultRetryMaxAttempts,
		"retry.base_delay":                DefaultRetryBaseDelay,
		"retry.backoff_factor":            DefaultRetryBackoffFactor,
		"retry.max_delay":                 DefaultRetryMaxDelay,
		"rate_limit.enabled":              DefaultRateLimitEnabled,
		"rate_limit.requests":             DefaultRateLimitRequests,
		"rate_limit.window":               DefaultRateLimitWindow,
		"cache.enabled":                   DefaultCacheEnabled,
		"cache.ttl":                       DefaultCacheTTL,
		"cache.size":                      DefaultCacheSize,
		"agents.history_limit":            DefaultAgentsHistoryLimit,
		"agents.greeting":                 DefaultAgentsGreeting,
		"agents.prompts.main":             DefaultMainPrompt,
		"agents.prompts.sales":            DefaultSalesPrompt,
		"agents.prompts.crm":              DefaultCRMPrompt,
		"commands.allowed_methods":        []string{},
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdownTimeout,
	}
}

// DefaultPath returns the global configuration file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".odoo-agent", "config.yaml"), nil
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		expanded, err := ExpandPath(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(expanded), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", expanded, err)
		}
	} else if globalPath, err := DefaultPath(); err == nil {
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	k.Load(env.Provider(EnvPrefix, ".", envKey), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "openai"
		}
	}

	injectStandardEnv(&cfg)

	return &cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return strings.Replace(key, "_", ".", -1)
}

// injectStandardEnv back-fills secrets and endpoints from the conventional
// variables when the layered configuration left them empty.
func injectStandardEnv(cfg *Config) {
	providerKeys := map[string]string{
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"gemini":    os.Getenv("GEMINI_API_KEY"),
	}
	for i, m := range cfg.Models.Registry {
		if key := providerKeys[m.Provider]; key != "" && m.APIKey == "" {
			cfg.Models.Registry[i].APIKey = key
		}
	}

	if v := os.Getenv("ODOO_URL"); v != "" && os.Getenv(EnvPrefix+"ODOO_URL") == "" {
		cfg.Odoo.URL = v
	}
	if v := os.Getenv("ODOO_DB"); v != "" && os.Getenv(EnvPrefix+"ODOO_DATABASE") == "" {
		cfg.Odoo.Database = v
	}
	if v := os.Getenv("ODOO_USERNAME"); v != "" && os.Getenv(EnvPrefix+"ODOO_USERNAME") == "" {
		cfg.Odoo.Username = v
	}
	if v := os.Getenv("ODOO_PASSWORD"); v != "" && cfg.Odoo.Password == "" {
		cfg.Odoo.Password = v
	}

	if len(cfg.Server.APIKeys) == 0 {
		for _, key := range strings.Split(os.Getenv("API_KEYS"), ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.Server.APIKeys = append(cfg.Server.APIKeys, key)
			}
		}
	}
}
