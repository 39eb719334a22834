package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "GARRISON"

type IndexConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type SnapshotConfig struct {
	LoadLatest bool   `mapstructure:"loadLatest"`
	LoadPath   string `mapstructure:"loadPath"`
}

// Config is the process configuration of garrisond.
type Config struct {
	LogLevel  string `mapstructure:"logLevel"`
	LogPretty bool   `mapstructure:"logPretty"`

	WorldID string `mapstructure:"worldId"`
	DataDir string `mapstructure:"dataDir"`
	Addr    string `mapstructure:"addr"`

	TuningPath   string `mapstructure:"tuningPath"`
	ScenarioPath string `mapstructure:"scenarioPath"`
	CatalogDir   string `mapstructure:"catalogDir"`
	SchemaDir    string `mapstructure:"schemaDir"`

	Index    IndexConfig    `mapstructure:"index"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`

	DisableTickLog bool `mapstructure:"disableTickLog"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logPretty", false)
	v.SetDefault("worldId", "garrison-1")
	v.SetDefault("dataDir", "./data")
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("tuningPath", "./configs/tuning.yaml")
	v.SetDefault("scenarioPath", "./configs/scenario.yaml")
	v.SetDefault("catalogDir", "./configs")
	v.SetDefault("schemaDir", "./schemas")
	v.SetDefault("index.enabled", true)
	v.SetDefault("index.path", "")
	v.SetDefault("snapshot.loadLatest", false)
	v.SetDefault("snapshot.loadPath", "")
	v.SetDefault("disableTickLog", false)
}

// Load reads defaults, then the optional file at path, then GARRISON_* environment overrides.
func Load(path string) (Config, error) {
	var cfg Config
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = cfg.DataDir + "/index/world.sqlite"
	}
	return cfg, nil
}
