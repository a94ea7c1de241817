package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	Secret   string `mapstructure:"secret"`
	LogLevel string `mapstructure:"log_level"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	// SendQueue bounds each session's outbound queue; 0 keeps it unbounded.
	SendQueue      int           `mapstructure:"send_queue"`
	DialRateLimit  int           `mapstructure:"dial_rate_limit"`
	DialRateWindow time.Duration `mapstructure:"dial_rate_window"`

	ICEServers       []string      `mapstructure:"ice_servers"`
	RingTimeout      time.Duration `mapstructure:"ring_timeout"`
	NegotiateTimeout time.Duration `mapstructure:"negotiate_timeout"`
}

// PongWait is how long a silent websocket stays open.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_queue", 0)
	v.SetDefault("dial_rate_limit", 0)
	v.SetDefault("dial_rate_window", "1m")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ring_timeout", "45s")
	v.SetDefault("negotiate_timeout", "30s")
}

// New prepares a viper instance: .env first, then config/config.<CONFIG_ENV>.yaml,
// then RELAY_* environment overrides.
func New() *viper.Viper {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigFile(fmt.Sprintf("config/config.%s.yaml", env))

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the file (missing file means defaults) and decodes it.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyLogLevel(cfg.LogLevel)
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("log_level", cfg.LogLevel).Msg("config ready")
	return &cfg, nil
}

// Watch re-applies the log level whenever the config file changes.
// Other keys need a restart.
func Watch(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := v.GetString("log_level")
		ApplyLogLevel(level)
		log.Info().Str("module", "config").Str("file", e.Name).Str("log_level", level).Msg("config reloaded")
	})
	v.WatchConfig()
}

func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
