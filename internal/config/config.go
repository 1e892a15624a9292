package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Redis    Redis    `mapstructure:"redis"`
	Quotes   Quotes   `mapstructure:"quotes"`
	Auth     Auth     `mapstructure:"auth"`
	Broker   Broker   `mapstructure:"broker"`
	Logger   Logger   `mapstructure:"logger"`
}

// Server holds the configuration for the HTTP server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the relational store.
type Database struct {
	Driver string `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN    string `mapstructure:"dsn"`
}

// Redis holds the configuration for the session token store.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Quotes holds the configuration for the stock quote provider.
type Quotes struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Auth holds the configuration for token issuing and verification.
type Auth struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	AccessTTLHours  int    `mapstructure:"access_ttl_hours"`
	RefreshTTLHours int    `mapstructure:"refresh_ttl_hours"`
}

// Broker holds the configuration for the brokerage core.
type Broker struct {
	InitialCash string `mapstructure:"initial_cash"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "brokerage.db")
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("quotes.base_url", "https://www.alphavantage.co")
	viper.SetDefault("quotes.rate_limit", 5) // requests per second
	viper.SetDefault("quotes.rate_limit_burst", 5)
	viper.SetDefault("auth.access_ttl_hours", 24)
	viper.SetDefault("auth.refresh_ttl_hours", 168)
	viper.SetDefault("broker.initial_cash", "10000.00")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
