package config

import "time"

// Config holds every setting of the broker service and the session client.
type Config struct {
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`
	Broker   BrokerConfig  `mapstructure:"broker" yaml:"broker"`
	LiveKit  LiveKitConfig `mapstructure:"livekit" yaml:"livekit"`
	Session  SessionConfig `mapstructure:"session" yaml:"session"`
	Devices  DevicesConfig `mapstructure:"devices" yaml:"devices"`
}

// BrokerConfig configures the meeting broker HTTP service.
type BrokerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// RateLimit is the number of API requests allowed per user per minute; 0 disables it.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// LiveKitConfig configures the media backend.
type LiveKitConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	URL       string        `mapstructure:"url" yaml:"url"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	APISecret string        `mapstructure:"api_secret" yaml:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// SessionConfig configures the live session client.
type SessionConfig struct {
	BrokerURL    string `mapstructure:"broker_url" yaml:"broker_url"`
	Token        string `mapstructure:"token" yaml:"token"`
	SpaceID      string `mapstructure:"space_id" yaml:"space_id"`
	DiscussionID string `mapstructure:"discussion_id" yaml:"discussion_id"`
	UIAddr       string `mapstructure:"ui_addr" yaml:"ui_addr"`

	JoinAttempts       int           `mapstructure:"join_attempts" yaml:"join_attempts"`
	JoinInitialBackoff time.Duration `mapstructure:"join_initial_backoff" yaml:"join_initial_backoff"`
	JoinMaxBackoff     time.Duration `mapstructure:"join_max_backoff" yaml:"join_max_backoff"`
	JoinTimeout        time.Duration `mapstructure:"join_timeout" yaml:"join_timeout"`
	CallTimeout        time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	CleanupTimeout     time.Duration `mapstructure:"cleanup_timeout" yaml:"cleanup_timeout"`

	ChatTopic      string `mapstructure:"chat_topic" yaml:"chat_topic"`
	RecordingTopic string `mapstructure:"recording_topic" yaml:"recording_topic"`
}

// DevicesConfig describes the local capture devices visible to the client.
type DevicesConfig struct {
	AudioInputs     []string `mapstructure:"audio_inputs" yaml:"audio_inputs"`
	VideoInputs     []string `mapstructure:"video_inputs" yaml:"video_inputs"`
	GrantPermission bool     `mapstructure:"grant_permission" yaml:"grant_permission"`

	// Granted reports devices as visible before any permission request.
	Granted bool `mapstructure:"granted" yaml:"granted"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Broker: BrokerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			DatabasePath:      "wirechat-live.db",
			JWTSecret:         "change-me",
			JWTIssuer:         "wirechat-live",
			JWTAudience:       "wirechat-live",
			TokenTTL:          24 * time.Hour,
			RateLimit:         120,
		},
		LiveKit: LiveKitConfig{
			Enabled:  false,
			URL:      "ws://localhost:7880",
			TokenTTL: time.Hour,
		},
		Session: SessionConfig{
			BrokerURL:          "http://localhost:8080",
			UIAddr:             ":8090",
			JoinAttempts:       3,
			JoinInitialBackoff: 500 * time.Millisecond,
			JoinMaxBackoff:     5 * time.Second,
			JoinTimeout:        30 * time.Second,
			CallTimeout:        10 * time.Second,
			CleanupTimeout:     10 * time.Second,
			ChatTopic:          "chat",
			RecordingTopic:     "recording",
		},
		Devices: DevicesConfig{
			AudioInputs:     []string{"default-microphone"},
			VideoInputs:     []string{"default-camera"},
			GrantPermission: true,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Broker.Addr != "" {
		c.Broker.Addr = other.Broker.Addr
	}
	if other.Broker.DatabasePath != "" {
		c.Broker.DatabasePath = other.Broker.DatabasePath
	}
	if other.Broker.ShutdownTimeout != 0 {
		c.Broker.ShutdownTimeout = other.Broker.ShutdownTimeout
	}
	if other.Session.BrokerURL != "" {
		c.Session.BrokerURL = other.Session.BrokerURL
	}
	if other.Session.Token != "" {
		c.Session.Token = other.Session.Token
	}
	if other.Session.SpaceID != "" {
		c.Session.SpaceID = other.Session.SpaceID
	}
	if other.Session.DiscussionID != "" {
		c.Session.DiscussionID = other.Session.DiscussionID
	}
	if other.Session.UIAddr != "" {
		c.Session.UIAddr = other.Session.UIAddr
	}
}
