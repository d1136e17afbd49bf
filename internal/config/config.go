package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Server   ServerConfig `mapstructure:"server"`
	Peer     PeerConfig   `mapstructure:"peer"`
	ICE      ICEConfig    `mapstructure:"ice"`
}

type ServerConfig struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	Secret       string        `mapstructure:"secret"`
	RoomCapacity int           `mapstructure:"room_capacity"`
	JoinLimit    int           `mapstructure:"join_limit"`
	JoinInterval time.Duration `mapstructure:"join_interval"`
	SendQueue    int           `mapstructure:"send_queue"`
}

type PeerConfig struct {
	RelayURL    string        `mapstructure:"relay_url"`
	Room        string        `mapstructure:"room"`
	Name        string        `mapstructure:"name"`
	InboxSize   int           `mapstructure:"inbox_size"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	Video       bool          `mapstructure:"video"`
}

type ICEConfig struct {
	Servers []ICEServer `mapstructure:"servers"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads the yaml file at path. DUOCALL_* environment variables override it.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix("duocall")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	logger := log.With().Str("module", "config").Str("file", path).Logger()
	if err := v.ReadInConfig(); err != nil {
		logger.Warn().Err(err).Msg("config file not loaded, using defaults")
	} else {
		logger.Info().Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Info().Str("mode", cfg.Server.Mode).Int("port", cfg.Server.Port).Str("relay", cfg.Peer.RelayURL).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_limit", 65536)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.secret", "duocall-dev-secret")
	v.SetDefault("server.room_capacity", 2)
	v.SetDefault("server.join_limit", 5)
	v.SetDefault("server.join_interval", "10s")
	v.SetDefault("server.send_queue", 32)

	v.SetDefault("peer.relay_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("peer.room", "")
	v.SetDefault("peer.name", "")
	v.SetDefault("peer.inbox_size", 64)
	v.SetDefault("peer.send_timeout", "5s")
	v.SetDefault("peer.video", true)

	v.SetDefault("ice.servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.RoomCapacity < 2 {
		return fmt.Errorf("server.room_capacity must be at least 2, got %d", c.Server.RoomCapacity)
	}
	if c.Server.PingPeriod <= 0 {
		return fmt.Errorf("server.ping_period must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the configured zerolog level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
