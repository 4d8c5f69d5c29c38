package runtime

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// url_format validates URL structure
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})
}

// Config holds the interpreter runtime configuration with declarative
// default and validation tags.
type Config struct {
	// Addr is the listen address of the session HTTP surface.
	Addr string `yaml:"addr" default:":8080" validate:"required"`

	// DefinitionsURL is the base URL of the remote definition store.
	// Leave empty to use a local definitions directory instead.
	DefinitionsURL string `yaml:"definitions_url" validate:"url_format"`
	// DefinitionsDir is a local directory of YAML definitions, used when
	// DefinitionsURL is empty.
	DefinitionsDir string `yaml:"definitions_dir"`

	// GeneratorURL is the remote generation endpoint.
	GeneratorURL string `yaml:"generator_url" validate:"url_format"`
	// FeedbackURL is the agent feedback endpoint. Defaults to
	// GeneratorURL when empty.
	FeedbackURL string `yaml:"feedback_url" validate:"url_format"`

	// RequestTimeoutMS bounds every remote fetch and generator call.
	RequestTimeoutMS int `yaml:"request_timeout_ms" default:"30000" validate:"gt=0"`

	// MessageDelayMS is the display delay before a text step's message
	// appears. Pacing only, not correctness-relevant.
	MessageDelayMS int `yaml:"message_delay_ms" default:"800" validate:"gte=0"`
	// AdvanceDelayMS is the pacing delay between auto-advancing steps.
	AdvanceDelayMS int `yaml:"advance_delay_ms" default:"600" validate:"gte=0"`

	// WaitTimeoutMS bounds the completion wait for asynchronous
	// generation before a placeholder output is substituted.
	WaitTimeoutMS int `yaml:"wait_timeout_ms" default:"60000" validate:"gt=0"`
	// WaitIntervalMS is the re-check interval of the completion waiter.
	WaitIntervalMS int `yaml:"wait_interval_ms" default:"500" validate:"gt=0"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("applying config defaults: %v", err))
	}
	return cfg
}

// LoadConfig reads a YAML config file, applies defaults for unset fields
// and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := defaults.Set(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config against its declarative validation tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c Config) MessageDelay() time.Duration {
	return time.Duration(c.MessageDelayMS) * time.Millisecond
}

func (c Config) AdvanceDelay() time.Duration {
	return time.Duration(c.AdvanceDelayMS) * time.Millisecond
}

func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutMS) * time.Millisecond
}

func (c Config) WaitInterval() time.Duration {
	return time.Duration(c.WaitIntervalMS) * time.Millisecond
}
