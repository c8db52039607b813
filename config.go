package stream

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultBufferSize is the write buffer size a stream starts with (8KB).
const DefaultBufferSize = 8192

// CloseMode selects how Close treats a resource shared by several handles.
type CloseMode string

const (
	// CloseRefcount releases the native resource when the last handle closes.
	CloseRefcount CloseMode = "refcount"

	// CloseEager releases the native resource on the first Close, for every
	// handle sharing it. Borrowers observe IsOpened() == false afterwards.
	CloseEager CloseMode = "eager"
)

// Config holds the runtime configuration.
type Config struct {
	// BufferSize is the initial write buffer size of every stream.
	BufferSize int `json:"bufferSize,omitempty" yaml:"bufferSize,omitempty"`

	// CloseMode is "refcount" (default) or "eager".
	CloseMode CloseMode `json:"closeMode,omitempty" yaml:"closeMode,omitempty"`

	// LogLevel is a zap level name: "debug", "info", "warn", "error".
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	// Contexts are declared up front, keyed by context id.
	Contexts map[string]ContextConfig `json:"contexts,omitempty" yaml:"contexts,omitempty"`

	// Wrappers holds per-protocol configuration handed to built-in wrapper factories.
	Wrappers map[string]WrapperConfig `json:"wrappers,omitempty" yaml:"wrappers,omitempty"`
}

// ContextConfig declares a context.
type ContextConfig struct {
	Wrapper    string         `json:"wrapper" yaml:"wrapper"`
	Options    map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// WrapperConfig holds the configuration of one built-in wrapper.
type WrapperConfig struct {
	// BasePath is the root directory for file-based wrappers.
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty"`

	// Options holds wrapper-specific configuration.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// String returns Options[key] when it is a string.
func (c *WrapperConfig) String(key string) string {
	if c == nil {
		return ""
	}
	s, _ := c.Options[key].(string)
	return s
}

// Int returns Options[key] as an int64, accepting the numeric types YAML
// and JSON decoders produce.
func (c *WrapperConfig) Int(key string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	switch n := c.Options[key].(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// DefaultConfig returns the configuration used by Default.
func DefaultConfig() *Config {
	return &Config{
		BufferSize: DefaultBufferSize,
		CloseMode:  CloseRefcount,
		LogLevel:   "warn",
	}
}

// LoadConfig reads a YAML (or JSON) configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML (or JSON) configuration on top of DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("stream: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.BufferSize < 0 {
		return newError("config", "bufferSize", ErrConfiguration, "must not be negative, got %d", c.BufferSize)
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	switch c.CloseMode {
	case "":
		c.CloseMode = CloseRefcount
	case CloseRefcount, CloseEager:
	default:
		return newError("config", "closeMode", ErrConfiguration, "unknown close mode %q", c.CloseMode)
	}
	for id, cc := range c.Contexts {
		if cc.Wrapper == "" {
			return newError("config", id, ErrConfiguration, "context needs a wrapper name")
		}
	}
	return nil
}
