package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Token    TokenConfig    `mapstructure:"token"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// WhatsAppConfig holds WhatsApp Cloud API configuration
type WhatsAppConfig struct {
	AccessToken   string        `mapstructure:"access_token"`
	PhoneNumberID string        `mapstructure:"phone_number_id"`
	AppSecret     string        `mapstructure:"app_secret"`
	VerifyToken   string        `mapstructure:"verify_token"`
	WebhookPath   string        `mapstructure:"webhook_path"`
	APITimeout    time.Duration `mapstructure:"api_timeout"`
}

// TokenConfig holds action token configuration
type TokenConfig struct {
	SigningKey    string        `mapstructure:"signing_key"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/approvalflow.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// WhatsApp defaults
	viper.SetDefault("whatsapp.webhook_path", "/webhook/whatsapp")
	viper.SetDefault("whatsapp.api_timeout", 30*time.Second)

	// Token defaults
	viper.SetDefault("token.sweep_interval", time.Hour)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("whatsapp.access_token", "WHATSAPP_ACCESS_TOKEN")
	viper.BindEnv("whatsapp.phone_number_id", "WHATSAPP_PHONE_NUMBER_ID")
	viper.BindEnv("whatsapp.app_secret", "WHATSAPP_APP_SECRET")
	viper.BindEnv("whatsapp.verify_token", "WHATSAPP_VERIFY_TOKEN")
	viper.BindEnv("token.signing_key", "ACTION_TOKEN_SIGNING_KEY")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate WhatsApp credentials
	if c.WhatsApp.AccessToken == "" {
		return fmt.Errorf("whatsapp.access_token is required")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp.phone_number_id is required")
	}
	if c.WhatsApp.VerifyToken == "" {
		return fmt.Errorf("whatsapp.verify_token is required")
	}

	// Validate token signing key
	if c.Token.SigningKey == "" {
		return fmt.Errorf("token.signing_key is required")
	}
	if len(c.Token.SigningKey) < 32 {
		return fmt.Errorf("token.signing_key must be at least 32 bytes")
	}

	return nil
}
