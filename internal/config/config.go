package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "FORUM"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "forum.db"
	defaultLogLevel      = "info"
	defaultCookieName    = "forum_session"
	defaultSessionIssuer = "forum-auth"
	defaultRootName      = "Forum"
	defaultCalendarID    = "default"
	defaultSyncInterval  = 15 * time.Minute
	defaultSyncTimeout   = 30 * time.Second
)

// AppConfig captures runtime configuration for the forum API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	SessionSecret    string
	SessionIssuer    string
	SessionCookie    string
	TelegramBotToken string
	SyncSharedSecret string
	CalendarID       string
	ForumRootName    string
}

// SyncConfig captures runtime configuration for the calendar sync companion.
type SyncConfig struct {
	MainAppURL       string
	SyncSharedSecret string
	CalendarID       string
	GoogleAPIKey     string
	SyncInterval     time.Duration
	HTTPTimeout      time.Duration
	LogLevel         string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("forum.root_name", defaultRootName)
	configViper.SetDefault("calendar.id", defaultCalendarID)
	configViper.SetDefault("sync.interval", defaultSyncInterval)
	configViper.SetDefault("sync.http_timeout", defaultSyncTimeout)
	configViper.SetDefault("sync.main_app_url", "http://127.0.0.1:8080")
}

// Load parses forum API configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		SessionSecret:    configViper.GetString("session.signing_secret"),
		SessionIssuer:    configViper.GetString("session.issuer"),
		SessionCookie:    configViper.GetString("session.cookie_name"),
		TelegramBotToken: configViper.GetString("telegram.bot_token"),
		SyncSharedSecret: configViper.GetString("sync.shared_secret"),
		CalendarID:       configViper.GetString("calendar.id"),
		ForumRootName:    configViper.GetString("forum.root_name"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadSync parses calendar sync companion configuration from viper.
func LoadSync(configViper *viper.Viper) (SyncConfig, error) {
	cfg := SyncConfig{
		MainAppURL:       configViper.GetString("sync.main_app_url"),
		SyncSharedSecret: configViper.GetString("sync.shared_secret"),
		CalendarID:       configViper.GetString("calendar.id"),
		GoogleAPIKey:     configViper.GetString("google.api_key"),
		SyncInterval:     configViper.GetDuration("sync.interval"),
		HTTPTimeout:      configViper.GetDuration("sync.http_timeout"),
		LogLevel:         configViper.GetString("log.level"),
	}

	if strings.TrimSpace(cfg.MainAppURL) == "" {
		return SyncConfig{}, fmt.Errorf("sync.main_app_url is required")
	}
	if strings.TrimSpace(cfg.SyncSharedSecret) == "" {
		return SyncConfig{}, fmt.Errorf("sync.shared_secret is required")
	}
	if strings.TrimSpace(cfg.GoogleAPIKey) == "" {
		return SyncConfig{}, fmt.Errorf("google.api_key is required")
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = defaultSyncInterval
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultSyncTimeout
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookie) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.TelegramBotToken) == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if strings.TrimSpace(c.SyncSharedSecret) == "" {
		return fmt.Errorf("sync.shared_secret is required")
	}
	return nil
}
