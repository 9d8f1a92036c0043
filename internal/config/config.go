// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danielolaszy/poker/pkg/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration parameters for the application.
type Config struct {
	Poker  PokerConfig
	Server ServerConfig
	Jira   JiraConfig
	GitHub GitHubConfig
}

// PokerConfig holds the voting client configuration.
type PokerConfig struct {
	URL         string
	Username    string
	Token       string
	Cards       models.CardSet
	ReloadDelay time.Duration
}

// ServerConfig holds the reference server configuration.
type ServerConfig struct {
	Listen     string
	DBPath     string
	SessionTTL time.Duration
	CSRFKey    string
	// Users maps login to token. Empty accepts any login.
	Users map[string]string
}

// JiraConfig holds JIRA specific configuration.
type JiraConfig struct {
	URL           string
	Username      string
	Token         string
	EstimateField string
}

// GitHubConfig holds GitHub specific configuration.
type GitHubConfig struct {
	Token      string
	Domain     string
	Repository string
}

// Enabled reports whether estimate write-back to JIRA is configured.
func (c JiraConfig) Enabled() bool {
	return c.URL != ""
}

// Enabled reports whether the GitHub estimate mirror is configured.
func (c GitHubConfig) Enabled() bool {
	return c.Repository != ""
}

// LoadConfig initializes and loads configuration from environment variables.
// A .env file in the working directory is read first if present; variables
// already set in the environment take precedence.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("poker.url", "http://localhost:8090")
	v.SetDefault("poker.reload_delay", 1500*time.Millisecond)
	v.SetDefault("server.listen", ":8090")
	v.SetDefault("server.db_path", "./data/poker.db")
	v.SetDefault("server.session_ttl", time.Hour)
	v.SetDefault("jira.estimate_field", "customfield_10205")
	v.SetDefault("github.domain", "github.com")

	// Map specific environment variables
	v.BindEnv("poker.url", "POKER_URL")
	v.BindEnv("poker.username", "POKER_USERNAME")
	v.BindEnv("poker.token", "POKER_TOKEN")
	v.BindEnv("poker.cards", "POKER_CARDS")
	v.BindEnv("poker.reload_delay", "POKER_RELOAD_DELAY")
	v.BindEnv("server.listen", "POKER_LISTEN")
	v.BindEnv("server.db_path", "POKER_DB_PATH")
	v.BindEnv("server.session_ttl", "POKER_SESSION_TTL")
	v.BindEnv("server.csrf_key", "POKER_CSRF_KEY")
	v.BindEnv("server.users", "POKER_USERS")
	v.BindEnv("jira.url", "JIRA_URL")
	v.BindEnv("jira.username", "JIRA_USERNAME")
	v.BindEnv("jira.token", "JIRA_TOKEN")
	v.BindEnv("jira.estimate_field", "JIRA_ESTIMATE_FIELD")
	v.BindEnv("github.token", "GITHUB_TOKEN")
	v.BindEnv("github.domain", "GITHUB_DOMAIN")
	v.BindEnv("github.repository", "GITHUB_REPOSITORY")

	users, err := ParseUsers(v.GetString("server.users"))
	if err != nil {
		return nil, err
	}

	domain := v.GetString("github.domain")
	if domain == "" {
		domain = "github.com"
	}

	config := &Config{
		Poker: PokerConfig{
			URL:         strings.TrimRight(v.GetString("poker.url"), "/"),
			Username:    v.GetString("poker.username"),
			Token:       v.GetString("poker.token"),
			Cards:       models.ParseCardSet(v.GetString("poker.cards")),
			ReloadDelay: v.GetDuration("poker.reload_delay"),
		},
		Server: ServerConfig{
			Listen:     v.GetString("server.listen"),
			DBPath:     v.GetString("server.db_path"),
			SessionTTL: v.GetDuration("server.session_ttl"),
			CSRFKey:    v.GetString("server.csrf_key"),
			Users:      users,
		},
		Jira: JiraConfig{
			URL:           v.GetString("jira.url"),
			Username:      v.GetString("jira.username"),
			Token:         v.GetString("jira.token"),
			EstimateField: v.GetString("jira.estimate_field"),
		},
		GitHub: GitHubConfig{
			Token:      v.GetString("github.token"),
			Domain:     domain,
			Repository: v.GetString("github.repository"),
		},
	}

	if config.Poker.ReloadDelay < 0 {
		return nil, fmt.Errorf("POKER_RELOAD_DELAY must not be negative")
	}
	if config.Server.SessionTTL <= 0 {
		return nil, fmt.Errorf("POKER_SESSION_TTL must be positive")
	}

	return config, nil
}

// ParseUsers parses "login:token" pairs separated by commas.
func ParseUsers(s string) (map[string]string, error) {
	users := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		login, token, ok := strings.Cut(pair, ":")
		if !ok || login == "" || token == "" {
			return nil, fmt.Errorf("invalid POKER_USERS entry %q, expected login:token", pair)
		}
		users[login] = token
	}
	return users, nil
}

// ValidateClientConfig validates the configuration needed by voting commands.
func ValidateClientConfig(config *Config) error {
	var missingVars []string

	if config.Poker.URL == "" {
		missingVars = append(missingVars, "POKER_URL")
	}
	if config.Poker.Username == "" {
		missingVars = append(missingVars, "POKER_USERNAME")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// ValidateServerConfig validates the configuration needed by the server.
func ValidateServerConfig(config *Config) error {
	var missingVars []string

	if config.Server.Listen == "" {
		missingVars = append(missingVars, "POKER_LISTEN")
	}
	if config.Server.DBPath == "" {
		missingVars = append(missingVars, "POKER_DB_PATH")
	}
	if config.Server.CSRFKey == "" {
		missingVars = append(missingVars, "POKER_CSRF_KEY")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	if len(config.Server.CSRFKey) != 32 {
		return fmt.Errorf("POKER_CSRF_KEY must be exactly 32 bytes, got %d", len(config.Server.CSRFKey))
	}

	return nil
}

// ValidateJiraConfig validates JIRA-specific configuration.
func ValidateJiraConfig(config *Config) error {
	var missingVars []string

	if config.Jira.URL == "" {
		missingVars = append(missingVars, "JIRA_URL")
	}
	if config.Jira.Username == "" {
		missingVars = append(missingVars, "JIRA_USERNAME")
	}
	if config.Jira.Token == "" {
		missingVars = append(missingVars, "JIRA_TOKEN")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}

// ValidateGitHubConfig validates GitHub-specific configuration.
func ValidateGitHubConfig(config *Config) error {
	var missingVars []string

	if config.GitHub.Token == "" {
		missingVars = append(missingVars, "GITHUB_TOKEN")
	}
	if config.GitHub.Repository == "" {
		missingVars = append(missingVars, "GITHUB_REPOSITORY")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	if parts := strings.Split(config.GitHub.Repository, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid repository format: %s, expected format: owner/repo", config.GitHub.Repository)
	}

	return nil
}
