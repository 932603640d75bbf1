// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted by StorageDriver.
const (
	StorageSQLite = "sqlite"
	StorageEtcd   = "etcd"
)

// Config holds all configuration for the scheduler.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	ServiceName         string        `mapstructure:"service_name"`
	StorageDriver       string        `mapstructure:"storage_driver"`
	SQLitePath          string        `mapstructure:"sqlite_path"`
	EtcdEndpoints       []string      `mapstructure:"etcd_endpoints"`
	EtcdTimeout         time.Duration `mapstructure:"etcd_timeout"`
	HttpListenAddr      string        `mapstructure:"http_listen_addr"`
	HttpProgramTimeout  time.Duration `mapstructure:"http_program_timeout"`
	ShellProgramTimeout time.Duration `mapstructure:"shell_program_timeout"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("service_name", "job-scheduler")
	v.SetDefault("storage_driver", StorageSQLite)
	v.SetDefault("sqlite_path", "scheduler.db")
	v.SetDefault("etcd_endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("http_program_timeout", "30s")
	v.SetDefault("shell_program_timeout", "5m")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("scheduler")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the %s driver", StorageSQLite)
		}
	case StorageEtcd:
		if len(c.EtcdEndpoints) == 0 {
			return fmt.Errorf("etcd_endpoints is required for the %s driver", StorageEtcd)
		}
	default:
		return fmt.Errorf("unknown storage_driver %q", c.StorageDriver)
	}
	if c.HttpListenAddr == "" {
		return fmt.Errorf("http_listen_addr is required")
	}
	return nil
}
