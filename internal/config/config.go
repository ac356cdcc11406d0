package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/NeonSludge/cluster-mgr/pkg/inventory"
)

type (
	// Config represents the cluster-mgr configuration.
	Config struct {
		// Inventory configuration.
		Inventory inventory.Config `mapstructure:"inventory"`
		// Logging configuration.
		Log struct {
			// Log level.
			Level string `mapstructure:"level"`
			// Optional log file, written in addition to stderr.
			File string `mapstructure:"file"`
		} `mapstructure:"log"`
		// Node drain configuration.
		Drain struct {
			// kubectl binary.
			Kubectl string `mapstructure:"kubectl"`
			// Drain timeout.
			Timeout time.Duration `mapstructure:"timeout"`
		} `mapstructure:"drain"`
	}
)

// Command line flags bound to configuration keys.
var flagKeys = map[string]string{
	"inventory": "inventory.path",
	"log-file":  "log.file",
}

// Load reads the configuration with Viper. An explicit config file path takes precedence over
// CMGR_CONFIG_FILE and the standard locations. Flags that were set override everything else.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if len(path) == 0 {
		path = os.Getenv("CMGR_CONFIG_FILE")
	}

	// Load YAML configuration.
	if len(path) > 0 {
		// Load a specific config file.
		v.SetConfigFile(path)
	} else {
		// Try to find the config file in standard locations.
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to determine user's home directory")
		}

		v.SetConfigName("cluster-mgr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(home + "/.config/cluster-mgr")
		v.AddConfigPath("/etc/cluster-mgr")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	// Setup environment variables handling.
	v.SetEnvPrefix("cmgr")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults.
	v.SetDefault("inventory.path", "ansible/inventory/hosts.yml")
	v.SetDefault("inventory.backup.enabled", true)
	v.SetDefault("inventory.backup.suffix", ".backup")
	v.SetDefault("inventory.write.conflictcheck", true)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")

	v.SetDefault("drain.kubectl", "kubectl")
	v.SetDefault("drain.timeout", "5m")

	// Bind command line flags.
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "failed to bind flag '%s'", name)
				}
			}
		}
	}

	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	return cfg, nil
}
