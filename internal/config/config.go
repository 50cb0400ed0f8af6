package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/hca"
	"github.com/KaramelBytes/mvlens-cli/internal/normalize"
	"github.com/KaramelBytes/mvlens-cli/internal/pca"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Dir is the directory under the user's home holding config and sessions.
const Dir = ".mvlens"

// Global configuration structure.
type Global struct {
	SessionsDir string `mapstructure:"sessions_dir" yaml:"sessions_dir"`

	// Analysis defaults
	PCAMethod         string `mapstructure:"pca_method" yaml:"pca_method"`
	DefaultDimensions int    `mapstructure:"default_dimensions" yaml:"default_dimensions"`
	PredictNormalize  string `mapstructure:"predict_normalize" yaml:"predict_normalize"`
	DistanceNormalize string `mapstructure:"distance_normalize" yaml:"distance_normalize"`
	ClusteringMethod  string `mapstructure:"clustering_method" yaml:"clustering_method"`
	ZeroSpread        string `mapstructure:"zero_spread" yaml:"zero_spread"`

	// Worker pool and local API
	Workers        int      `mapstructure:"workers" yaml:"workers"`
	ServeAddr      string   `mapstructure:"serve_addr" yaml:"serve_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"sessions_dir", "pca_method", "default_dimensions", "predict_normalize",
	"distance_normalize", "clustering_method", "zero_spread", "workers",
	"serve_addr", "allowed_origins",
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.mvlens/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, Dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
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

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("MVLENS")
	v.AutomaticEnv()

	// sessions_dir has an empty default so MVLENS_SESSIONS_DIR is picked up.
	v.SetDefault("sessions_dir", "")
	v.SetDefault("pca_method", string(pca.SVD))
	v.SetDefault("default_dimensions", 2)
	v.SetDefault("predict_normalize", string(normalize.Center))
	v.SetDefault("distance_normalize", string(normalize.None))
	v.SetDefault("clustering_method", string(hca.Complete))
	v.SetDefault("zero_spread", string(normalize.ZeroSpreadError))
	v.SetDefault("workers", 2)
	v.SetDefault("serve_addr", "127.0.0.1:8765")
	v.SetDefault("allowed_origins", []string{})

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, Dir))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.SessionsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		c.SessionsDir = filepath.Join(home, Dir, "sessions")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every enumerated setting names a known value.
func (c *Global) Validate() error {
	if _, err := pca.ParseMethod(c.PCAMethod); err != nil {
		return fmt.Errorf("pca_method: %w", err)
	}
	if _, err := normalize.ParseScheme(c.PredictNormalize); err != nil {
		return fmt.Errorf("predict_normalize: %w", err)
	}
	if _, err := normalize.ParseScheme(c.DistanceNormalize); err != nil {
		return fmt.Errorf("distance_normalize: %w", err)
	}
	if _, err := hca.ParseLinkage(c.ClusteringMethod); err != nil {
		return fmt.Errorf("clustering_method: %w", err)
	}
	if _, err := normalize.ParseZeroSpreadPolicy(c.ZeroSpread); err != nil {
		return fmt.Errorf("zero_spread: %w", err)
	}
	if c.DefaultDimensions < 1 {
		return fmt.Errorf("default_dimensions must be at least 1, got %d", c.DefaultDimensions)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Set assigns a value by key, normalising enumerated values to their
// canonical spelling.
func (c *Global) Set(key, val string) error {
	switch key {
	case "sessions_dir":
		c.SessionsDir = val
	case "pca_method":
		m, err := pca.ParseMethod(val)
		if err != nil {
			return err
		}
		c.PCAMethod = string(m)
	case "default_dimensions":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid int for default_dimensions: %v", val)
		}
		c.DefaultDimensions = i
	case "predict_normalize", "distance_normalize":
		s, err := normalize.ParseScheme(val)
		if err != nil {
			return err
		}
		if key == "predict_normalize" {
			c.PredictNormalize = string(s)
		} else {
			c.DistanceNormalize = string(s)
		}
	case "clustering_method":
		l, err := hca.ParseLinkage(val)
		if err != nil {
			return err
		}
		c.ClusteringMethod = string(l)
	case "zero_spread":
		p, err := normalize.ParseZeroSpreadPolicy(val)
		if err != nil {
			return err
		}
		c.ZeroSpread = string(p)
	case "workers":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid int for workers: %v", val)
		}
		c.Workers = i
	case "serve_addr":
		c.ServeAddr = val
	case "allowed_origins":
		c.AllowedOrigins = nil
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// Get returns the display value of key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "sessions_dir":
		return c.SessionsDir, nil
	case "pca_method":
		return c.PCAMethod, nil
	case "default_dimensions":
		return strconv.Itoa(c.DefaultDimensions), nil
	case "predict_normalize":
		return c.PredictNormalize, nil
	case "distance_normalize":
		return c.DistanceNormalize, nil
	case "clustering_method":
		return c.ClusteringMethod, nil
	case "zero_spread":
		return c.ZeroSpread, nil
	case "workers":
		return strconv.Itoa(c.Workers), nil
	case "serve_addr":
		return c.ServeAddr, nil
	case "allowed_origins":
		return strings.Join(c.AllowedOrigins, ","), nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}
