package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/common/model"
	yaml "gopkg.in/yaml.v3"
)

var (
	// DefaultSMI is a default unless the user provides particular values.
	DefaultSMI = SMIConfig{
		Command: "nvidia-smi",
		Timeout: model.Duration(10 * time.Second),
	}
	// DefaultOutput is a default unless the user provides particular values.
	// An empty path means the rendered text goes to standard output.
	DefaultOutput = OutputConfig{}
	// DefaultConfig is used when no config file is given.
	DefaultConfig = Config{
		SMI:    DefaultSMI,
		Output: DefaultOutput,
	}
)

// SMIConfig controls how the nvidia-smi binary is invoked.
type SMIConfig struct {
	Command string         `yaml:"command"`
	Timeout model.Duration `yaml:"timeout"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (s *SMIConfig) UnmarshalYAML(unmarshal func(any) error) error {
	*s = DefaultSMI
	type plain SMIConfig

	if err := unmarshal((*plain)(s)); err != nil {
		return err
	}
	if s.Command == "" {
		return fmt.Errorf("nvidia_smi requires a command to be set")
	}

	return nil
}

// OutputConfig controls where the rendered exposition text goes.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (o *OutputConfig) UnmarshalYAML(unmarshal func(any) error) error {
	*o = DefaultOutput
	type plain OutputConfig

	return unmarshal((*plain)(o))
}

// Config represents the nvsmi-prometheus-textfile config file
type Config struct {
	Loglevel string       `yaml:"loglevel"`
	SMI      SMIConfig    `yaml:"nvidia_smi"`
	Output   OutputConfig `yaml:"output"`
}

// UnmarshalYAML is a custom YAML unmarshaler.
// It is heavily inspired by blackbox_exporter.
func (c *Config) UnmarshalYAML(unmarshal func(any) error) error {
	*c = DefaultConfig
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks the settings that UnmarshalYAML cannot, so a config
// built in code goes through the same gate as one read from a file.
func (c *Config) Validate() error {
	switch c.Loglevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown loglevel %q", c.Loglevel)
	}
	if c.SMI.Command == "" {
		return fmt.Errorf("nvidia_smi requires a command to be set")
	}
	if time.Duration(c.SMI.Timeout) < 0 {
		return fmt.Errorf("nvidia_smi timeout must not be negative")
	}
	return nil
}

// AppLogLevel applies a log level to the application.
func (c *Config) AppLogLevel() string {
	if c.Loglevel != "" {
		return c.Loglevel
	}
	return "info"
}

// NewConfigFromFile reads the config from an input file path.
func NewConfigFromFile(configFilePath string) (*Config, error) {
	file, err := os.Open(configFilePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readConfigFrom(file)
}

func readConfigFrom(r io.Reader) (*Config, error) {
	config := &Config{}
	if err := yaml.NewDecoder(r).Decode(config); err != nil {
		return config, err
	}

	return config, nil
}
