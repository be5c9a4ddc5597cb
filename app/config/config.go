package config

import (
	"errors"
	"os"
	"strconv"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs    LogConfig
	DB      PostgresConfig
	Search  SearchConfig
	Payment PaymentConfig
}

type LogConfig struct {
	Style string
	Level string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Database string
}

type SearchConfig struct {
	// BackendURL is the external search/AI backend base URL.
	BackendURL string
	// RatePerSecond and RateBurst bound per-identity submissions at the edge.
	RatePerSecond int
	RateBurst     int
}

type PaymentConfig struct {
	// GatewayURL is the payment gateway base URL for create-transaction calls.
	GatewayURL string
	// ServerKey signs webhook notifications; never sent to clients.
	ServerKey string
	// Description is the default order description.
	Description string
}

func LoadConfig() (*Config, error) {
	backendURL := os.Getenv("SEARCH_BACKEND_URL")
	if backendURL == "" {
		return nil, errors.New("SEARCH_BACKEND_URL must be set")
	}

	cfg := &Config{
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
			Database: os.Getenv("POSTGRES_DB"),
		},
		Search: SearchConfig{
			BackendURL:    backendURL,
			RatePerSecond: intFromEnv("SEARCH_RATE_PER_SECOND", 2),
			RateBurst:     intFromEnv("SEARCH_RATE_BURST", 5),
		},
		Payment: PaymentConfig{
			GatewayURL:  os.Getenv("PAYMENT_GATEWAY_URL"),
			ServerKey:   os.Getenv("PAYMENT_SERVER_KEY"),
			Description: os.Getenv("PAYMENT_DESCRIPTION"),
		},
	}
	if cfg.Payment.Description == "" {
		cfg.Payment.Description = "Referensiku Premium Subscription"
	}

	return cfg, nil
}

func intFromEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
