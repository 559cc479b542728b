package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LogConfig controls the zap/lumberjack setup
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Dev        bool   `mapstructure:"dev"`
}

// AdminConfig is the operator account for the admin API
type AdminConfig struct {
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

// WSConfig bounds each websocket connection
type WSConfig struct {
	SendBuffer        int `mapstructure:"send_buffer"`
	MaxMessageSize    int `mapstructure:"max_message_size"`
	MaxMessagesPerSec int `mapstructure:"max_messages_per_sec"`
	MaxConnsPerIP     int `mapstructure:"max_conns_per_ip"`
	MaxTotalConns     int `mapstructure:"max_total_conns"`
}

// Config is the whole server configuration
type Config struct {
	Listen          string      `mapstructure:"listen"`
	PublicURL       string      `mapstructure:"public_url"`
	TickRate        int         `mapstructure:"tick_rate"`
	TankSpeed       float64     `mapstructure:"tank_speed"`
	CheckInvariants bool        `mapstructure:"check_invariants"`
	Games           []GameEntry `mapstructure:"games"`
	Log             LogConfig   `mapstructure:"log"`
	Admin           AdminConfig `mapstructure:"admin"`
	WS              WSConfig    `mapstructure:"ws"`
	Journal         struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"journal"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("tick_rate", DefaultTickRate)
	v.SetDefault("tank_speed", DefaultTankSpeed)
	v.SetDefault("check_invariants", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.token_ttl", defaultTokenTTL)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.max_message_size", 4096)
	v.SetDefault("ws.max_messages_per_sec", 50)
	v.SetDefault("ws.max_conns_per_ip", 5)
	v.SetDefault("ws.max_total_conns", 1000)
	v.SetDefault("journal.path", "tank2d.db")
}

// LoadConfig reads path (yaml/json/toml) with TANK2D_* environment
// overrides. Relative map paths are resolved against the config directory.
func LoadConfig(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("tank2d")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decodeConfig(v)
	if err != nil {
		return nil, nil, err
	}
	if path != "" {
		dir := filepath.Dir(path)
		for i, g := range cfg.Games {
			if g.Map != "" && !filepath.IsAbs(g.Map) {
				cfg.Games[i].Map = filepath.Join(dir, g.Map)
			}
		}
	}
	return cfg, v, nil
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("tick_rate must be positive, got %d", cfg.TickRate)
	}
	for i, g := range cfg.Games {
		if g.ID <= 0 {
			return nil, fmt.Errorf("games[%d]: id must be positive", i)
		}
		if g.Map == "" {
			return nil, fmt.Errorf("games[%d]: map is required", i)
		}
		if g.Name == "" {
			cfg.Games[i].Name = fmt.Sprintf("Game %d", g.ID)
		}
	}
	return &cfg, nil
}

// WatchConfig calls onChange with the re-decoded config whenever the file
// changes. Decode errors are handed to onError and the old config stays.
func WatchConfig(v *viper.Viper, onChange func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decodeConfig(v)
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
