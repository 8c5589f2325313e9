package config

import (
	"os"
	"strconv"
	"time"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Gateway Configuration
	GatewayWSURL   string
	GatewayAPIBase string

	// Connection Configuration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	OpenWaitTimeout      time.Duration

	// Turn Configuration
	StallTimeout   time.Duration
	CanvasDebounce time.Duration

	// Observability Configuration
	OTLPEndpoint string
	HealthPort   string

	// Service Configuration
	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string
}

// Load loads configuration from environment variables with defaults
func Load() *AppConfig {
	return &AppConfig{
		// Gateway
		GatewayWSURL:   getEnv("AGENTSTREAM_WS_URL", "ws://localhost:8000/ws/chat"),
		GatewayAPIBase: getEnv("AGENTSTREAM_API_BASE", "http://localhost:8000/api"),

		// Connection
		MaxReconnectAttempts: getEnvAsInt("AGENTSTREAM_MAX_RECONNECTS", 8),
		HeartbeatInterval:    getEnvAsDuration("AGENTSTREAM_HEARTBEAT_INTERVAL", 25*time.Second),
		OpenWaitTimeout:      getEnvAsDuration("AGENTSTREAM_OPEN_WAIT", 3*time.Second),

		// Turn
		StallTimeout:   getEnvAsDuration("AGENTSTREAM_STALL_TIMEOUT", 180*time.Second),
		CanvasDebounce: getEnvAsDuration("AGENTSTREAM_CANVAS_DEBOUNCE", 1500*time.Millisecond),

		// Observability
		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "127.0.0.1:4317"),
		HealthPort:   getEnv("AGENTSTREAM_HEALTH_PORT", "8080"),

		// Service
		ServiceName:    getEnv("SERVICE_NAME", "agentstream-client"),
		ServiceVersion: getEnv("SERVICE_VERSION", "1.0.0"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
	}
}

// HistoryURL returns the REST endpoint for a conversation's message history
func (c *AppConfig) HistoryURL(conversationID string) string {
	return c.GatewayAPIBase + "/conversations/" + conversationID + "/messages"
}

// CanvasURL returns the REST endpoint for a conversation's canvas document
func (c *AppConfig) CanvasURL(conversationID string) string {
	return c.GatewayAPIBase + "/conversations/" + conversationID + "/canvas"
}

// UploadURL returns the file upload endpoint
func (c *AppConfig) UploadURL() string {
	return c.GatewayAPIBase + "/documents/upload"
}

// ConversationWSURL returns the websocket URL for a given conversation
func (c *AppConfig) ConversationWSURL(conversationID string) string {
	return c.GatewayWSURL + "/" + conversationID
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as duration with a default fallback
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
