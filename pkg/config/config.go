// Package config loads the gateway configuration from YAML and overlays
// flags and STITCH_* environment variables.
package config

import (
	"os"
	"strings"
	"time"

	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const EnvPrefix = "STITCH"

const (
	defaultListen         = ":4000"
	defaultGraphQLPath    = "/graphql"
	defaultPlaygroundPath = "/playground"
	defaultLogLevel       = "info"
	defaultTimeout        = 10 * time.Second
)

// Keys that can be overridden by flags and the environment.
const (
	KeyListen         = "listen"
	KeyGraphQLPath    = "graphql_path"
	KeyPlaygroundPath = "playground_path"
	KeyLogLevel       = "log_level"
	KeyFixtures       = "fixtures"
)

type Config struct {
	Listen         string `yaml:"listen"`
	GraphQLPath    string `yaml:"graphql_path"`
	PlaygroundPath string `yaml:"playground_path"`
	LogLevel       string `yaml:"log_level"`

	// Fixtures is the fixture file of the local graph, the embedded fixtures
	// are used when empty.
	Fixtures string `yaml:"fixtures"`

	DocumentCacheSize int       `yaml:"document_cache_size"`
	Services          []Service `yaml:"services"`
}

// Service describes one sub-graph backend.
type Service struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// SchemaFile holds the backend SDL. The SDL is fetched from URL when empty.
	SchemaFile string `yaml:"schema_file"`
	Prefix     string `yaml:"prefix"`
	// Integration names the extension unit bound to this service.
	Integration string `yaml:"integration"`

	Denylist []string          `yaml:"denylist"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	config, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return config, nil
}

// Parse decodes data strictly and applies defaults.
func Parse(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	config.setDefaults()
	return config, nil
}

// Default is the configuration used without a config file.
func Default() *Config {
	config := &Config{}
	config.setDefaults()
	return config
}

func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.GraphQLPath == "" {
		c.GraphQLPath = defaultGraphQLPath
	}
	if c.PlaygroundPath == "" {
		c.PlaygroundPath = defaultPlaygroundPath
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	for i := range c.Services {
		if c.Services[i].Timeout == 0 {
			c.Services[i].Timeout = defaultTimeout
		}
	}
}

// NewViper returns a viper instance reading STITCH_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay copies non-empty values of v over c. Flags are bound to v by the
// CLI, environment variables are read by v itself.
func (c *Config) Overlay(v *viper.Viper) {
	overlay := func(key string, target *string) {
		if value := v.GetString(key); value != "" {
			*target = value
		}
	}
	overlay(KeyListen, &c.Listen)
	overlay(KeyGraphQLPath, &c.GraphQLPath)
	overlay(KeyPlaygroundPath, &c.PlaygroundPath)
	overlay(KeyLogLevel, &c.LogLevel)
	overlay(KeyFixtures, &c.Fixtures)
}

func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if !strings.HasPrefix(c.GraphQLPath, "/") {
		return errors.Errorf("graphql_path %q must start with /", c.GraphQLPath)
	}

	names := map[string]bool{}
	for i, service := range c.Services {
		if service.Name == "" {
			return errors.Errorf("service %d has no name", i)
		}
		if names[service.Name] {
			return errors.Errorf("service %s is declared twice", service.Name)
		}
		names[service.Name] = true
		if service.URL == "" {
			return errors.Errorf("service %s has no url", service.Name)
		}
		if err := validateIntegration(service); err != nil {
			return err
		}
	}
	return nil
}

// Level maps LogLevel to a logger level.
func (c *Config) Level() (log.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.DebugLevel, nil
	case "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	}
	return log.InfoLevel, errors.Errorf("unknown log level %q", c.LogLevel)
}
