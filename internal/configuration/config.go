package configuration

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvAPIBaseURL     = "NESTCARE_API_BASE_URL"
	EnvToken          = "NESTCARE_TOKEN"
	EnvStreaming      = "NESTCARE_STREAMING"
	EnvConversationID = "NESTCARE_CONVERSATION_ID"
	EnvStatusPort     = "NESTCARE_STATUS_PORT"
	EnvLogLevel       = "NESTCARE_LOG_LEVEL"

	hubPath = "/hubs/chat"
)

var ErrMissingBaseURL = errors.New("api base url is required")

type APIConfig struct {
	BaseURL   string `json:"base_url"`
	Token     string `json:"token"`
	Streaming bool   `json:"streaming"`
}

type HubConfig struct {
	// URL overrides the address derived from the API base url.
	URL string `json:"url"`
}

type ServerConfig struct {
	// StatusPort of 0 disables the local status server.
	StatusPort int `json:"status_port"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type Config struct {
	API            APIConfig    `json:"api"`
	Hub            HubConfig    `json:"hub"`
	Server         ServerConfig `json:"server"`
	Log            LogConfig    `json:"log"`
	ConversationID int64        `json:"conversation_id"`
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{Streaming: true},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads the JSON file at configPath, when present, then applies
// overrides from the environment. A .env file in the working directory is
// loaded first.
func LoadConfig(configPath string) (*Config, error) {
	config := defaultConfig()

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("config file %s not found, using defaults", configPath)
		case err != nil:
			return nil, err
		default:
			if err := json.Unmarshal(file, &config); err != nil {
				return nil, fmt.Errorf("parse %s: %w", configPath, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	c.API.BaseURL = getEnv(EnvAPIBaseURL, c.API.BaseURL)
	c.API.Token = getEnv(EnvToken, c.API.Token)
	c.Log.Level = getEnv(EnvLogLevel, c.Log.Level)

	if v, ok := os.LookupEnv(EnvStreaming); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStreaming, err)
		}
		c.API.Streaming = b
	}
	if v, ok := os.LookupEnv(EnvConversationID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvConversationID, err)
		}
		c.ConversationID = id
	}
	if v, ok := os.LookupEnv(EnvStatusPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStatusPort, err)
		}
		c.Server.StatusPort = port
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	if c.Server.StatusPort < 0 || c.Server.StatusPort > 65535 {
		return fmt.Errorf("invalid status port %d", c.Server.StatusPort)
	}
	if c.ConversationID < 0 {
		return fmt.Errorf("invalid conversation id %d", c.ConversationID)
	}
	return nil
}

// HubURL is the websocket address of the chat hub. The hub is served next
// to the REST API, so a trailing /api is dropped.
func (c *Config) HubURL() string {
	if c.Hub.URL != "" {
		return c.Hub.URL
	}
	base := strings.TrimRight(c.API.BaseURL, "/")
	base = strings.TrimSuffix(base, "/api")

	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + hubPath
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
