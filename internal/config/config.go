package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the system-wide settings coordinator.
// ARCHITECTURAL DISCOVERY: Clean separation between configuration
// management and business logic - components receive typed sections
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Proctor   *ProctorConfig   `json:"proctor"`
}

// DatabaseConfig supports SQLite tuning.
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig balances performance and reliability.
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig tunes the realtime control channel.
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// ProctorConfig carries detector cadences and anomaly thresholds.
// FUNCTIONAL DISCOVERY: Thresholds live in configuration rather than in
// detector code so an institution can tune sensitivity per deployment
type ProctorConfig struct {
	FacePollInterval   time.Duration `json:"face_poll_interval"`
	AudioPollInterval  time.Duration `json:"audio_poll_interval"`
	AudioVolumeLimit   float64       `json:"audio_volume_limit"`
	AudioStdDevLimit   float64       `json:"audio_stddev_limit"`
	AudioWindowSize    int           `json:"audio_window_size"`
	MinFaceLandmarks   int           `json:"min_face_landmarks"`
	AutoSubmitSeconds  int           `json:"auto_submit_seconds"`
	FaceMatchThreshold float64       `json:"face_match_threshold"`
}

// DefaultConfig returns production-ready defaults for exam-scale deployments.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/proctor.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Proctor: &ProctorConfig{
			FacePollInterval:   3 * time.Second,
			AudioPollInterval:  3 * time.Second,
			AudioVolumeLimit:   45,
			AudioStdDevLimit:   10,
			AudioWindowSize:    10,
			MinFaceLandmarks:   5,
			AutoSubmitSeconds:  10,
			FaceMatchThreshold: 0.6,
		},
	}
}

// Validate ensures the configuration can run the system.
// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system
// configurations from surfacing as runtime failures mid-exam
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Proctor == nil {
		return fmt.Errorf("proctor configuration is required")
	}
	if c.Proctor.FacePollInterval <= 0 {
		return fmt.Errorf("face poll interval must be positive")
	}
	if c.Proctor.AudioPollInterval <= 0 {
		return fmt.Errorf("audio poll interval must be positive")
	}
	if c.Proctor.AudioWindowSize <= 1 {
		return fmt.Errorf("audio window size must be greater than 1")
	}
	if c.Proctor.MinFaceLandmarks <= 0 {
		return fmt.Errorf("minimum face landmarks must be positive")
	}
	if c.Proctor.AutoSubmitSeconds <= 0 {
		return fmt.Errorf("auto-submit countdown must be positive")
	}
	if c.Proctor.FaceMatchThreshold <= 0 || c.Proctor.FaceMatchThreshold >= 2 {
		return fmt.Errorf("face match threshold must be in (0, 2)")
	}

	return nil
}

// LoadFromEnv builds configuration from environment variables over defaults.
// FUNCTIONAL DISCOVERY: A .env file in the working directory is overlaid
// first so containerized and local runs read the same variables
func LoadFromEnv() *Config {
	// Missing .env is the normal production case, not an error.
	_ = godotenv.Load()

	config := DefaultConfig()

	if port := os.Getenv("PROCTOR_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("PROCTOR_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("PROCTOR_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if readTimeout := os.Getenv("PROCTOR_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("PROCTOR_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}
	if dbTimeout := os.Getenv("PROCTOR_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}
	if pingInterval := os.Getenv("PROCTOR_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if wsReadTimeout := os.Getenv("PROCTOR_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if wsWriteTimeout := os.Getenv("PROCTOR_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("PROCTOR_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}
	if facePoll := os.Getenv("PROCTOR_FACE_POLL_INTERVAL"); facePoll != "" {
		if interval, err := time.ParseDuration(facePoll); err == nil {
			config.Proctor.FacePollInterval = interval
		}
	}
	if audioPoll := os.Getenv("PROCTOR_AUDIO_POLL_INTERVAL"); audioPoll != "" {
		if interval, err := time.ParseDuration(audioPoll); err == nil {
			config.Proctor.AudioPollInterval = interval
		}
	}
	if volumeLimit := os.Getenv("PROCTOR_AUDIO_VOLUME_LIMIT"); volumeLimit != "" {
		if v, err := strconv.ParseFloat(volumeLimit, 64); err == nil {
			config.Proctor.AudioVolumeLimit = v
		}
	}
	if stddevLimit := os.Getenv("PROCTOR_AUDIO_STDDEV_LIMIT"); stddevLimit != "" {
		if v, err := strconv.ParseFloat(stddevLimit, 64); err == nil {
			config.Proctor.AudioStdDevLimit = v
		}
	}
	if threshold := os.Getenv("PROCTOR_FACE_MATCH_THRESHOLD"); threshold != "" {
		if v, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Proctor.FaceMatchThreshold = v
		}
	}

	return config
}

// ConfigFile is the JSON structure for file-based configuration.
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle
// duration strings
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Proctor   *ProctorConfigFile   `json:"proctor"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type ProctorConfigFile struct {
	FacePollInterval   string  `json:"face_poll_interval"`
	AudioPollInterval  string  `json:"audio_poll_interval"`
	AudioVolumeLimit   float64 `json:"audio_volume_limit"`
	AudioStdDevLimit   float64 `json:"audio_stddev_limit"`
	AudioWindowSize    int     `json:"audio_window_size"`
	MinFaceLandmarks   int     `json:"min_face_landmarks"`
	AutoSubmitSeconds  int     `json:"auto_submit_seconds"`
	FaceMatchThreshold float64 `json:"face_match_threshold"`
}

// LoadFromFile loads configuration from a JSON file over defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		if configFile.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(configFile.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if configFile.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if configFile.WebSocket.PingInterval != "" {
			if interval, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = interval
			}
		}
		if configFile.WebSocket.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = timeout
			}
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if configFile.Proctor != nil {
		if configFile.Proctor.FacePollInterval != "" {
			if interval, err := time.ParseDuration(configFile.Proctor.FacePollInterval); err == nil {
				config.Proctor.FacePollInterval = interval
			}
		}
		if configFile.Proctor.AudioPollInterval != "" {
			if interval, err := time.ParseDuration(configFile.Proctor.AudioPollInterval); err == nil {
				config.Proctor.AudioPollInterval = interval
			}
		}
		if configFile.Proctor.AudioVolumeLimit > 0 {
			config.Proctor.AudioVolumeLimit = configFile.Proctor.AudioVolumeLimit
		}
		if configFile.Proctor.AudioStdDevLimit > 0 {
			config.Proctor.AudioStdDevLimit = configFile.Proctor.AudioStdDevLimit
		}
		if configFile.Proctor.AudioWindowSize > 0 {
			config.Proctor.AudioWindowSize = configFile.Proctor.AudioWindowSize
		}
		if configFile.Proctor.MinFaceLandmarks > 0 {
			config.Proctor.MinFaceLandmarks = configFile.Proctor.MinFaceLandmarks
		}
		if configFile.Proctor.AutoSubmitSeconds > 0 {
			config.Proctor.AutoSubmitSeconds = configFile.Proctor.AutoSubmitSeconds
		}
		if configFile.Proctor.FaceMatchThreshold > 0 {
			config.Proctor.FaceMatchThreshold = configFile.Proctor.FaceMatchThreshold
		}
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence loads configuration: file > environment > defaults.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// Silently ignore file errors - environment/defaults still work
	}

	return config
}
