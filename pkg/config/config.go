// Package config provides configuration management for the grid core and
// its CLI driver.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Runtime     RuntimeConfig     `mapstructure:"runtime"`
	Xfer        XferConfig        `mapstructure:"xfer"`
	Info        InfoConfig        `mapstructure:"info"`
	Log         LogConfig         `mapstructure:"log"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Snapshot    SnapshotConfig    `mapstructure:"snapshot"`
}

// RuntimeConfig describes the simulated processor topology.
type RuntimeConfig struct {
	NumProcs int `mapstructure:"num_procs"`
	Rank     int `mapstructure:"rank"`
	Dim      int `mapstructure:"dim"` // 2 or 3
}

// XferConfig holds the OPT_XFER_* / OPT_CPLMGR_* / OPT_IDENT_* options
// enumerated in spec §6.
type XferConfig struct {
	PruneDelete       bool `mapstructure:"prune_delete"`
	WarnVarSizeObj    bool `mapstructure:"warn_varsize_obj"`
	WarnSmallSize     bool `mapstructure:"warn_smallsize"`
	WarnRefCollision  bool `mapstructure:"warn_ref_collision"`
	CplMgrUseFreelist bool `mapstructure:"cplmgr_use_freelist"`
	IdentOnlyNew      bool `mapstructure:"ident_only_new"`
}

// InfoConfig holds the OPT_INFO_XFER / OPT_DEBUG_XFERMESGS diagnostic
// verbosity flags.
type InfoConfig struct {
	ShowObsolete   bool `mapstructure:"show_obsolete"`
	ShowMsgsAll    bool `mapstructure:"show_msgs_all"`
	ShowMemUsage   bool `mapstructure:"show_memusage"`
	DebugXferMesgs bool `mapstructure:"debug_xfermesgs"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// DiagnosticsConfig configures the diagnostics recorder's backing store.
type DiagnosticsConfig struct {
	Type     string `mapstructure:"type"` // sqlite, mysql, or postgres
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Path     string `mapstructure:"path"` // sqlite file path
	MaxConns int    `mapstructure:"max_conns"`
}

// SnapshotConfig configures periodic grid census export.
type SnapshotConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
	LocalPath string `mapstructure:"local_path"`
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gridctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/griddist")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("runtime.num_procs", 1)
	v.SetDefault("runtime.rank", 0)
	v.SetDefault("runtime.dim", 3)

	v.SetDefault("xfer.prune_delete", false)
	v.SetDefault("xfer.cplmgr_use_freelist", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")

	v.SetDefault("diagnostics.type", "sqlite")
	v.SetDefault("diagnostics.path", "./griddist-diagnostics.db")
	v.SetDefault("diagnostics.max_conns", 10)

	v.SetDefault("snapshot.type", "local")
	v.SetDefault("snapshot.local_path", "./snapshots")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Runtime.NumProcs < 1 {
		return fmt.Errorf("runtime.num_procs must be at least 1")
	}
	if c.Runtime.Dim != 2 && c.Runtime.Dim != 3 {
		return fmt.Errorf("runtime.dim must be 2 or 3, got %d", c.Runtime.Dim)
	}
	if c.Runtime.Rank < 0 || c.Runtime.Rank >= c.Runtime.NumProcs {
		return fmt.Errorf("runtime.rank %d out of range [0,%d)", c.Runtime.Rank, c.Runtime.NumProcs)
	}

	switch c.Diagnostics.Type {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported diagnostics backend: %s", c.Diagnostics.Type)
	}

	return nil
}
