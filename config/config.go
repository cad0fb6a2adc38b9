package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageFile   = "file"
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageTable  = "table"
)

type Config struct {
	Storage      string        `mapstructure:"storage"`
	DataDir      string        `mapstructure:"data_dir"`
	SnapshotKey  string        `mapstructure:"snapshot_key"`
	RedisConn    string        `mapstructure:"redis_connection_string"`
	TableConn    string        `mapstructure:"storage_connection_string"`
	TableName    string        `mapstructure:"table"`
	ListenAddr   string        `mapstructure:"listen_addr"`
	APISecret    string        `mapstructure:"api_secret"`
	Debug        bool          `mapstructure:"debug"`
	Pprof        bool          `mapstructure:"pprof"`
	ShutdownWait time.Duration `mapstructure:"shutdown_timeout"`

	// CacheTTL enables a redis cache in front of table storage when
	// RedisConn is also set.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// env maps config keys to the environment variables that set them.
var env = map[string]string{
	"storage":                   "BOARD_STORAGE",
	"data_dir":                  "BOARD_DATA_DIR",
	"snapshot_key":              "BOARD_SNAPSHOT_KEY",
	"redis_connection_string":   "REDIS_CONNECTION_STRING",
	"storage_connection_string": "STORAGE_CONNECTION_STRING",
	"table":                     "BOARD_TABLE",
	"listen_addr":               "LISTEN_ADDR",
	"api_secret":                "BOARD_API_SECRET",
	"debug":                     "DEBUG",
	"pprof":                     "PPROF",
	"shutdown_timeout":          "SHUTDOWN_TIMEOUT",
	"cache_ttl":                 "BOARD_CACHE_TTL",
	"config":                    "BOARD_CONFIG",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage", StorageFile)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("snapshot_key", "kanban-data")
	v.SetDefault("table", "board")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("debug", false)
	v.SetDefault("pprof", false)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("cache_ttl", time.Hour)
}

// Load resolves configuration from, in increasing priority: defaults, an
// optional YAML file named by BOARD_CONFIG or --config, the environment
// (after loading .env files when present) and flags that were set.
func Load(flags *pflag.FlagSet, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, err
		}
	}
	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env style files without overriding variables that are
// already set. A missing file is not an error.
func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// bindFlags binds flags whose name matches a config key with dashes in place
// of underscores.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, known := env[key]; !known || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

// Validate reports missing settings for the selected backend.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageFile:
		if c.DataDir == "" {
			return errors.New("BOARD_DATA_DIR must be set for file storage")
		}
	case StorageMemory:
	case StorageRedis:
		if c.RedisConn == "" {
			return errors.New("REDIS_CONNECTION_STRING must be set for redis storage")
		}
	case StorageTable:
		if c.TableConn == "" || c.TableName == "" {
			return errors.New("STORAGE_CONNECTION_STRING and BOARD_TABLE must be set for table storage")
		}
	default:
		return fmt.Errorf("unsupported BOARD_STORAGE %q", c.Storage)
	}
	if c.SnapshotKey == "" {
		return errors.New("BOARD_SNAPSHOT_KEY must not be empty")
	}
	if c.CacheTTL < 0 {
		return errors.New("BOARD_CACHE_TTL must not be negative")
	}
	if c.ShutdownWait <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}
