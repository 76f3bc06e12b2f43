package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full process configuration for both the API and worker
// binaries. Everything is overridable from the environment.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`

	PostgresDSN string `mapstructure:"postgres_dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`

	// Queue key prefix; lane names (gpu/cpu) are appended.
	QueueKeyPrefix string `mapstructure:"queue_key_prefix"`

	// GPUWorkers bounds concurrent GPU-stage execution. It defaults to 1
	// and should stay there: it is the admission-control knob that keeps
	// peak VRAM to a single job's working set.
	GPUWorkers int `mapstructure:"gpu_workers"`
	CPUWorkers int `mapstructure:"cpu_workers"`

	// Storage: "local" or "s3".
	StorageBackend string `mapstructure:"storage_backend"`
	StorageDir     string `mapstructure:"storage_dir"`
	S3Bucket       string `mapstructure:"s3_bucket"`
	S3Region       string `mapstructure:"s3_region"`
	S3Endpoint     string `mapstructure:"s3_endpoint"`
	S3PathStyle    bool   `mapstructure:"s3_path_style"`

	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// Printability bounds for scale validation.
	MinWallThicknessMM float64 `mapstructure:"min_wall_thickness_mm"`
	MaxBuildVolumeMM   float64 `mapstructure:"max_build_volume_mm"`
	MinScale           float64 `mapstructure:"min_scale"`
	MaxScale           float64 `mapstructure:"max_scale"`

	// GPUDevice is what the worker deployment claims to have ("cuda" or
	// "cpu"); surfaced by /health as gpu_available.
	GPUDevice string `mapstructure:"gpu_device"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("queue_key_prefix", "pipeline")
	v.SetDefault("gpu_workers", 1)
	v.SetDefault("cpu_workers", 4)
	v.SetDefault("storage_backend", "local")
	v.SetDefault("storage_dir", "./storage")
	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_region", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_path_style", false)
	v.SetDefault("max_upload_bytes", int64(16<<20))
	v.SetDefault("min_wall_thickness_mm", 1.2)
	v.SetDefault("max_build_volume_mm", 256.0)
	v.SetDefault("min_scale", 0.5)
	v.SetDefault("max_scale", 5.0)
	v.SetDefault("gpu_device", "cpu")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.GPUWorkers < 1 {
		return fmt.Errorf("gpu_workers must be >= 1, got %d", c.GPUWorkers)
	}
	if c.CPUWorkers < 1 {
		return fmt.Errorf("cpu_workers must be >= 1, got %d", c.CPUWorkers)
	}
	switch c.StorageBackend {
	case "local":
		if c.StorageDir == "" {
			return fmt.Errorf("storage_dir is required for local storage")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3_bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage_backend %q", c.StorageBackend)
	}
	if c.MinScale <= 0 || c.MaxScale < c.MinScale {
		return fmt.Errorf("invalid scale bounds [%v, %v]", c.MinScale, c.MaxScale)
	}
	return nil
}

func (c *Config) GPUAvailable() bool { return c.GPUDevice == "cuda" }
