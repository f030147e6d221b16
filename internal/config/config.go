package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no --config is given.
const DefaultFile = "riskloom.yaml"

// Global configuration structure.
type Global struct {
	DataDir   string `mapstructure:"data_dir" yaml:"data_dir"`
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir"`
	LogsDir   string `mapstructure:"logs_dir" yaml:"logs_dir"`
	// Debug is resolved separately so DEBUG=yes works.
	Debug bool `mapstructure:"-" yaml:"debug"`

	DashboardAddr string `mapstructure:"dashboard_addr" yaml:"dashboard_addr"`

	// Training
	BoostingEnabled bool    `mapstructure:"boosting_enabled" yaml:"boosting_enabled"`
	ForestTrees     int     `mapstructure:"forest_trees" yaml:"forest_trees"`
	RandomSeed      int64   `mapstructure:"random_seed" yaml:"random_seed"`
	TestSize        float64 `mapstructure:"test_size" yaml:"test_size"`

	// Artifact storage: "fs" or "minio"
	ArtifactBackend string `mapstructure:"artifact_backend" yaml:"artifact_backend"`
	MinioEndpoint   string `mapstructure:"minio_endpoint" yaml:"minio_endpoint"`
	MinioAccessKey  string `mapstructure:"minio_access_key" yaml:"minio_access_key"`
	MinioSecretKey  string `mapstructure:"minio_secret_key" yaml:"minio_secret_key"`
	MinioBucket     string `mapstructure:"minio_bucket" yaml:"minio_bucket"`
	MinioSecure     bool   `mapstructure:"minio_secure" yaml:"minio_secure"`
}

// Truthy reports whether s is one of 1, true, yes, y (any case).
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// Save writes the given configuration to cfgFile, or ./riskloom.yaml when empty.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		path = DefaultFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from defaults, the config file, a local .env and
// the environment. Precedence: env > config file > defaults. Variables set in
// .env never override the real environment.
func Load(cfgFile string) (*Global, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working dir: %w", err)
	}
	// optional
	_ = godotenv.Load(filepath.Join(root, ".env"))

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("data_dir", "")
	v.SetDefault("models_dir", "")
	v.SetDefault("logs_dir", "")
	v.SetDefault("debug", "")
	v.SetDefault("dashboard_addr", ":8501")
	v.SetDefault("boosting_enabled", false)
	v.SetDefault("forest_trees", 100)
	v.SetDefault("random_seed", 42)
	v.SetDefault("test_size", 0.2)
	v.SetDefault("artifact_backend", "fs")
	v.SetDefault("minio_endpoint", "")
	v.SetDefault("minio_access_key", "")
	v.SetDefault("minio_secret_key", "")
	v.SetDefault("minio_bucket", "riskloom-models")
	v.SetDefault("minio_secure", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(root)
		v.SetConfigName(strings.TrimSuffix(DefaultFile, filepath.Ext(DefaultFile)))
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Debug = Truthy(v.GetString("debug"))
	if c.DataDir == "" {
		c.DataDir = filepath.Join(root, "data")
	}
	if c.ModelsDir == "" {
		c.ModelsDir = filepath.Join(root, "models")
	}
	if c.LogsDir == "" {
		c.LogsDir = filepath.Join(root, "logs")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the values that cannot be defaulted.
func (c *Global) Validate() error {
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return fmt.Errorf("test_size must be in (0,1), got %v", c.TestSize)
	}
	if c.ForestTrees <= 0 {
		return fmt.Errorf("forest_trees must be positive, got %d", c.ForestTrees)
	}
	switch c.ArtifactBackend {
	case "fs":
	case "minio":
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return fmt.Errorf("artifact_backend minio needs minio_endpoint and minio_bucket")
		}
	default:
		return fmt.Errorf("unknown artifact_backend %q (want fs or minio)", c.ArtifactBackend)
	}
	return nil
}
