// Package config loads healthbridge settings from healthbridge.yaml,
// HEALTHBRIDGE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wondertwin-ai/healthbridge/internal/bridge"
	"github.com/wondertwin-ai/healthbridge/internal/device"
	"github.com/wondertwin-ai/healthbridge/internal/provider"
	"github.com/wondertwin-ai/healthbridge/internal/twincore"
)

// DefaultConfigDir is the directory under the user's home searched for a
// config file.
const DefaultConfigDir = ".healthbridge"

// DefaultConfigFile is the config file name.
const DefaultConfigFile = "healthbridge.yaml"

// EnvPrefix prefixes environment overrides, e.g. HEALTHBRIDGE_SERVER_PORT.
const EnvPrefix = "HEALTHBRIDGE"

// Config is the full healthbridge configuration.
type Config struct {
	Server    Server           `mapstructure:"server"`
	Provider  Provider         `mapstructure:"provider"`
	Companion bridge.Companion `mapstructure:"companion"`
	Device    Device           `mapstructure:"device"`
	Client    Client           `mapstructure:"client"`
}

type Server struct {
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	Latency        time.Duration `mapstructure:"latency" validate:"gte=0"`
	FailRate       float64       `mapstructure:"fail_rate" validate:"gte=0,lte=1"`
	Verbose        bool          `mapstructure:"verbose"`
	WebhookURL     string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	WebhookWorkers int           `mapstructure:"webhook_workers" validate:"gte=0"`
}

type Provider struct {
	Mode  string `mapstructure:"mode" validate:"oneof=mock cloud"`
	Seed  uint64 `mapstructure:"seed"`
	Cloud Cloud  `mapstructure:"cloud"`
}

type Cloud struct {
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type Device struct {
	// Profile is a built-in profile name or a path to a profile file.
	Profile string `mapstructure:"profile"`
}

type Client struct {
	URL     string        `mapstructure:"url" validate:"url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":           "server.port",
	"latency":        "server.latency",
	"fail-rate":      "server.fail_rate",
	"verbose":        "server.verbose",
	"webhook-url":    "server.webhook_url",
	"webhook-secret": "server.webhook_secret",
	"provider":       "provider.mode",
	"seed":           "provider.seed",
	"access-token":   "provider.cloud.access_token",
	"profile":        "device.profile",
	"url":            "client.url",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New returns a viper instance with defaults and environment overrides set.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults sets default values using Viper
func setDefaults(v *viper.Viper) {
	companion := bridge.DefaultCompanion()

	v.SetDefault("server.port", 4330)
	v.SetDefault("server.latency", "0s")
	v.SetDefault("server.fail_rate", 0.0)
	v.SetDefault("server.verbose", false)
	v.SetDefault("server.webhook_url", "")
	v.SetDefault("server.webhook_secret", "whsec_healthbridge_test")
	v.SetDefault("server.webhook_workers", 8)
	v.SetDefault("provider.mode", string(provider.ModeMock))
	v.SetDefault("provider.seed", 0)
	v.SetDefault("provider.cloud.base_url", provider.DefaultCloudURL)
	v.SetDefault("provider.cloud.access_token", "")
	v.SetDefault("provider.cloud.timeout", "15s")
	v.SetDefault("companion.package", companion.Package)
	v.SetDefault("companion.name", companion.Name)
	v.SetDefault("companion.store_uri", companion.StoreURI)
	v.SetDefault("companion.store_name", companion.StoreName)
	v.SetDefault("device.profile", device.DefaultProfile)
	v.SetDefault("client.url", "http://localhost:4330")
	v.SetDefault("client.timeout", "5s")
}

// Load reads configuration with the default search path and no flags.
func Load(path string) (*Config, error) {
	return LoadFrom(New(), path, nil)
}

// LoadFrom reads configuration into v. An explicit path must exist; with an
// empty path the working directory and ~/.healthbridge are searched and a
// missing file means defaults. Flags that were set on the command line
// override the file and the environment.
func LoadFrom(v *viper.Viper, path string, flags *pflag.FlagSet) (*Config, error) {
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
		}
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, filepath.Ext(DefaultConfigFile)))
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// TwinConfig returns the HTTP server settings.
func (c *Config) TwinConfig() twincore.Config {
	return twincore.Config{
		Name:       "healthbridge",
		Port:       c.Server.Port,
		Latency:    c.Server.Latency,
		FailRate:   c.Server.FailRate,
		WebhookURL: c.Server.WebhookURL,
		Verbose:    c.Server.Verbose,
	}
}

// ProviderConfig returns the provider selection.
func (c *Config) ProviderConfig() provider.Config {
	return provider.Config{
		Mode: provider.Mode(c.Provider.Mode),
		Seed: c.Provider.Seed,
		Cloud: provider.CloudConfig{
			BaseURL:     c.Provider.Cloud.BaseURL,
			AccessToken: c.Provider.Cloud.AccessToken,
			Timeout:     c.Provider.Cloud.Timeout,
		},
	}
}

// Save writes c to path as YAML.
func Save(c *Config, path string) error {
	if path == "" {
		path = DefaultConfigFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("server.port", c.Server.Port)
	v.Set("server.latency", c.Server.Latency.String())
	v.Set("server.fail_rate", c.Server.FailRate)
	v.Set("server.verbose", c.Server.Verbose)
	v.Set("server.webhook_url", c.Server.WebhookURL)
	v.Set("server.webhook_secret", c.Server.WebhookSecret)
	v.Set("server.webhook_workers", c.Server.WebhookWorkers)
	v.Set("provider.mode", c.Provider.Mode)
	v.Set("provider.seed", c.Provider.Seed)
	v.Set("provider.cloud.base_url", c.Provider.Cloud.BaseURL)
	v.Set("provider.cloud.access_token", c.Provider.Cloud.AccessToken)
	v.Set("provider.cloud.timeout", c.Provider.Cloud.Timeout.String())
	v.Set("companion.package", c.Companion.Package)
	v.Set("companion.name", c.Companion.Name)
	v.Set("companion.store_uri", c.Companion.StoreURI)
	v.Set("companion.store_name", c.Companion.StoreName)
	v.Set("device.profile", c.Device.Profile)
	v.Set("client.url", c.Client.URL)
	v.Set("client.timeout", c.Client.Timeout.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
