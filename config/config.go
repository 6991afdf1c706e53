package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	SMTP     SMTPConfig     `yaml:"smtp" mapstructure:"smtp"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp" mapstructure:"whatsapp"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	AI       AIConfig       `yaml:"ai" mapstructure:"ai"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	PublicURL      string   `yaml:"public_url" mapstructure:"public_url"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	StaticDir      string   `yaml:"static_dir" mapstructure:"static_dir"`
}

// DatabaseConfig selects the SQL driver: "sqlite3" (mattn, cgo), "sqlite"
// (modernc, pure Go) or "pgx" (PostgreSQL).
type DatabaseConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
	LinkTTL     time.Duration `yaml:"link_ttl" mapstructure:"link_ttl"`
	AdminEmails []string      `yaml:"admin_emails" mapstructure:"admin_emails"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
}

// WhatsAppConfig points at the HTTP function that relays WhatsApp messages.
type WhatsAppConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Token    string `yaml:"token" mapstructure:"token"`
}

type StorageConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	MaxSize int64  `yaml:"max_size" mapstructure:"max_size"`
}

type AIConfig struct {
	APIKey         string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Model          string        `yaml:"model" mapstructure:"model"`
	EmbeddingModel string        `yaml:"embedding_model" mapstructure:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

const defaultJWTSecret = "your-default-secret-key-change-in-production"

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			StaticDir:      "./public",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "./begtask.db",
		},
		Auth: AuthConfig{
			JWTSecret: defaultJWTSecret,
			TokenTTL:  7 * 24 * time.Hour,
			LinkTTL:   30 * time.Minute,
		},
		Storage: StorageConfig{
			Dir:     "./uploads",
			BaseURL: "/files",
			MaxSize: 10 << 20,
		},
		AI: AIConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        30 * time.Second,
		},
	}
}

// legacyEnv maps config keys to the unprefixed variable names older .env
// files use.
var legacyEnv = map[string]string{
	"auth.jwt_secret": "JWT_SECRET",
	"smtp.host":       "SMTP_HOST",
	"smtp.port":       "SMTP_PORT",
	"smtp.username":   "SMTP_USERNAME",
	"smtp.password":   "SMTP_PASSWORD",
	"smtp.from":       "SMTP_FROM",
	"ai.api_key":      "OPENAI_API_KEY",
}

// Load reads the optional YAML file at path and overlays BEGTASK_* environment
// variables on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix("BEGTASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "BEGTASK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// PORT is what most hosting platforms inject.
	_, explicit := os.LookupEnv("BEGTASK_SERVER_ADDR")
	if port := os.Getenv("PORT"); port != "" && !explicit && !v.InConfig("server.addr") {
		cfg.Server.Addr = ":" + port
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.public_url", cfg.Server.PublicURL)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.static_dir", cfg.Server.StaticDir)
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
	v.SetDefault("auth.link_ttl", cfg.Auth.LinkTTL)
	v.SetDefault("auth.admin_emails", cfg.Auth.AdminEmails)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", "")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("whatsapp.endpoint", "")
	v.SetDefault("whatsapp.token", "")
	v.SetDefault("storage.dir", cfg.Storage.Dir)
	v.SetDefault("storage.base_url", cfg.Storage.BaseURL)
	v.SetDefault("storage.max_size", cfg.Storage.MaxSize)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", cfg.AI.BaseURL)
	v.SetDefault("ai.model", cfg.AI.Model)
	v.SetDefault("ai.embedding_model", cfg.AI.EmbeddingModel)
	v.SetDefault("ai.timeout", cfg.AI.Timeout)
}

// UsesDefaultSecret reports whether the JWT secret was never configured.
func (c *Config) UsesDefaultSecret() bool {
	return c.Auth.JWTSecret == defaultJWTSecret
}
