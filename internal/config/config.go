package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "PATIENTDESK"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "patientdesk.db"
	defaultLogLevel      = "info"
	defaultCookieName    = "app_session"
	defaultSessionIssuer = "patientdesk-login"
	defaultTokenIssuer   = "patientdesk-auth"
	defaultTokenAudience = "patientdesk-api"
	defaultTokenTTL      = 30 * time.Minute
	defaultNamespace     = "forms/patient-intake"
	defaultStoreMode     = StoreModeLocal
)

// Store modes select where submissions and collection data live.
const (
	StoreModePlatform = "platform"
	StoreModeLocal    = "local"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	SessionSigningKey string
	SessionCookieName string
	SessionIssuer     string
	TokenIssuer       string
	TokenAudience     string
	TokenTTL          time.Duration
	PlatformBaseURL   string
	PlatformAPIKey    string
	FormsNamespace    string
	StoreMode         string
	DatabasePath      string
	LogLevel          string
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
	configViper.SetDefault("token.issuer", defaultTokenIssuer)
	configViper.SetDefault("token.audience", defaultTokenAudience)
	configViper.SetDefault("token.ttl", defaultTokenTTL)
	configViper.SetDefault("forms.namespace", defaultNamespace)
	configViper.SetDefault("store.mode", defaultStoreMode)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		SessionSigningKey: configViper.GetString("session.signing_secret"),
		SessionCookieName: configViper.GetString("session.cookie_name"),
		SessionIssuer:     configViper.GetString("session.issuer"),
		TokenIssuer:       configViper.GetString("token.issuer"),
		TokenAudience:     configViper.GetString("token.audience"),
		TokenTTL:          configViper.GetDuration("token.ttl"),
		PlatformBaseURL:   configViper.GetString("platform.base_url"),
		PlatformAPIKey:    configViper.GetString("platform.api_key"),
		FormsNamespace:    configViper.GetString("forms.namespace"),
		StoreMode:         configViper.GetString("store.mode"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl must be positive")
	}
	// Staff identities live in SQLite regardless of the store mode, and the
	// forms and file services always talk to the hosted platform. store.mode
	// only selects where the Notes/Labels/SignatureCache collections live.
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.PlatformBaseURL) == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if strings.TrimSpace(c.PlatformAPIKey) == "" {
		return fmt.Errorf("platform.api_key is required")
	}
	if c.StoreMode != StoreModePlatform && c.StoreMode != StoreModeLocal {
		return fmt.Errorf("store.mode must be %q or %q", StoreModePlatform, StoreModeLocal)
	}
	return nil
}
