package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Telemetry   TelemetryConfig
	Poll        PollConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection, exchange and queue settings
type RabbitMQConfig struct {
	URL                 string
	CommandExchange     string
	CommandQueue        string
	CreateRoutingKey    string
	DeleteRoutingKey    string
	PullStateRoutingKey string
	EventExchange       string
	EventRoutingKey     string
	DLQQueue            string
	PrefetchCount       int
}

// TelemetryConfig holds the external telemetry provider settings
type TelemetryConfig struct {
	BaseURL        string
	Credentials    string
	TimeoutSeconds int
}

// PollConfig holds the measurement poller settings
type PollConfig struct {
	IntervalSeconds int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "flat-telemetry-worker"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8082),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                 getEnv("RABBITMQ_URL", ""),
			CommandExchange:     getEnv("RABBITMQ_COMMAND_EXCHANGE", "flat-telemetry.commands.exchange"),
			CommandQueue:        getEnv("RABBITMQ_COMMAND_QUEUE", "flat-telemetry.commands.queue"),
			CreateRoutingKey:    getEnv("RABBITMQ_CREATE_ROUTING_KEY", "device.create"),
			DeleteRoutingKey:    getEnv("RABBITMQ_DELETE_ROUTING_KEY", "device.delete"),
			PullStateRoutingKey: getEnv("RABBITMQ_PULLSTATE_ROUTING_KEY", "device.pullstate"),
			EventExchange:       getEnv("RABBITMQ_EVENT_EXCHANGE", "flat-telemetry.events.exchange"),
			EventRoutingKey:     getEnv("RABBITMQ_EVENT_ROUTING_KEY", "device.created"),
			DLQQueue:            getEnv("RABBITMQ_DLQ_QUEUE", "flat-telemetry.commands.dlq"),
			PrefetchCount:       getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Telemetry: TelemetryConfig{
			BaseURL:        getEnv("TELEMETRY_BASE_URL", "https://applik-d18.iee.fraunhofer.de:8443"),
			Credentials:    getEnv("TELEMETRY_CREDENTIALS", ""),
			TimeoutSeconds: getEnvAsInt("TELEMETRY_TIMEOUT_SECONDS", 5),
		},
		Poll: PollConfig{
			IntervalSeconds: getEnvAsInt("POLL_INTERVAL_SECONDS", 10),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if cfg.Telemetry.Credentials == "" {
		return nil, fmt.Errorf("TELEMETRY_CREDENTIALS is required but not set in environment variables")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
