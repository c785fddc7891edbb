// Package config provides YAML configuration parsing for the taskstatus
// binary.
//
// Example configuration:
//
//	title: Lab checks
//	port: 8080
//	retry_delay: 2s
//
//	pages:
//	  - name: lab 1
//	    url: https://lms.example.com/tasks/12
//	    timeout: 10s
//	    headers:
//	      Cookie: ${SESSION_COOKIE}
//
//	grids:
//	  - name: Go 101
//	    url_template: "https://lms.example.com/courses/go-101/tasks/{{.task}}"
//	    dimensions:
//	      task: ["1", "2", "3"]
//
//	redis:
//	  addr: localhost:6379
//	  password: ${REDIS_PASSWORD:-}
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort       = 8080
	defaultRetryDelay = 2 * time.Second

	// minRetryDelay keeps a config typo from hammering a backend.
	minRetryDelay = 100 * time.Millisecond

	defaultKeyPrefix = "taskstatus"
	defaultChannel   = "taskstatus:updates"
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Task status" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port for serve. Defaults to 8080.
	Port int `yaml:"port"`

	// RetryDelay is the fixed wait after a not-ready response.
	// Defaults to 2s.
	RetryDelay Duration `yaml:"retry_delay"`

	// MaxConcurrency limits how many pages are polled at once. Zero means
	// the board default.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Pages defines individual pages to watch.
	Pages []PageConfig `yaml:"pages"`

	// Grids defines page grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`

	// Redis optionally mirrors rendered content into Redis.
	Redis *RedisConfig `yaml:"redis"`
}

// PageConfig defines a single watched page.
type PageConfig struct {
	// Name is the display name shown in the dashboard.
	Name string `yaml:"name"`

	// URL is the page URL; its status route is URL + "/status".
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// ElementID is the element content is rendered into.
	// Defaults to "task-status".
	ElementID string `yaml:"element_id"`

	// Timeout is the per-request timeout.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with each status request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`
}

// GridConfig defines a page grid that expands via cartesian product.
//
// For example, with dimensions {course: [a, b], task: [1, 2]} the grid
// expands to 4 pages.
type GridConfig struct {
	// Name is the base name for generated watches.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for generating page URLs.
	// Dimension keys are available as template variables: {{.task}}
	// Supports environment variable substitution in the template.
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// ElementID is the element content is rendered into.
	ElementID string `yaml:"element_id"`

	// Timeout is the per-request timeout for all generated pages.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with each status request of all generated pages.
	Headers map[string]string `yaml:"headers"`
}

// RedisConfig configures the Redis render target.
type RedisConfig struct {
	// Addr is host:port of the Redis server.
	Addr string `yaml:"addr"`

	// Password supports environment variable substitution.
	Password string `yaml:"password"`

	// DB is the database number.
	DB int `yaml:"db"`

	// KeyPrefix prefixes content keys. Defaults to "taskstatus".
	KeyPrefix string `yaml:"key_prefix"`

	// Channel receives an update event per render.
	// Defaults to "taskstatus:updates".
	Channel string `yaml:"channel"`

	// TTL expires content keys. Zero keeps them.
	TTL Duration `yaml:"ttl"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in page URLs, URL templates, header
// values and the Redis address and password. Defaults are applied for
// Port (8080), RetryDelay (2s) and the Redis key prefix and channel.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = Duration(defaultRetryDelay)
	}
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.RetryDelay.Duration() < minRetryDelay {
		return fmt.Errorf("retry_delay must be at least %s, got %s", minRetryDelay, c.RetryDelay.Duration())
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}

	names := make(map[string]bool, len(c.Pages))
	for i := range c.Pages {
		p := &c.Pages[i]
		where := fmt.Sprintf("pages[%d] (%s)", i, p.Name)

		if p.Name == "" {
			return fmt.Errorf("pages[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("%s: duplicate name", where)
		}
		names[p.Name] = true

		if p.URL == "" {
			return fmt.Errorf("%s: url is required", where)
		}
		expanded, err := expandEnvVars(p.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", where, err)
		}
		p.URL = expanded
		if err := validatePageURL(p.URL); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}

		if err := expandHeaders(p.Headers, where); err != nil {
			return err
		}
		if err := validateTimeout(p.Timeout, where); err != nil {
			return err
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]
		where := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", where)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", where, err)
		}
		g.URLTemplate = expanded

		// fail fast before the SDK tries to use an invalid template
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", where, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", where)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", where, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", where, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		if err := expandHeaders(g.Headers, where); err != nil {
			return err
		}
		if err := validateTimeout(g.Timeout, where); err != nil {
			return err
		}
	}

	if len(c.Pages) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one page or grid must be defined")
	}

	if c.Redis != nil {
		if err := c.Redis.Prepare(); err != nil {
			return err
		}
	}

	return nil
}

// Prepare applies defaults, expands environment variables and validates
// the Redis settings. [Parse] calls it; callers that build a RedisConfig
// by hand should too.
func (r *RedisConfig) Prepare() error {
	if r.KeyPrefix == "" {
		r.KeyPrefix = defaultKeyPrefix
	}
	if r.Channel == "" {
		r.Channel = defaultChannel
	}

	addr, err := expandEnvVars(r.Addr)
	if err != nil {
		return fmt.Errorf("redis: addr: %w", err)
	}
	if addr == "" {
		return errors.New("redis: addr is required")
	}
	r.Addr = addr

	password, err := expandEnvVars(r.Password)
	if err != nil {
		return fmt.Errorf("redis: password: %w", err)
	}
	r.Password = password

	if r.DB < 0 {
		return fmt.Errorf("redis: db cannot be negative, got %d", r.DB)
	}
	if r.TTL.Duration() < 0 {
		return fmt.Errorf("redis: ttl cannot be negative, got %s", r.TTL.Duration())
	}
	return nil
}

func validatePageURL(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return nil
}

func expandHeaders(headers map[string]string, where string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", where, k, err)
		}
		headers[k] = expanded
	}
	return nil
}

func validateTimeout(d Duration, where string) error {
	if d == 0 {
		return nil
	}
	if d.Duration() < 0 {
		return fmt.Errorf("%s: timeout cannot be negative, got %s", where, d.Duration())
	}
	if d.Duration() < time.Second {
		return fmt.Errorf("%s: timeout must be at least 1s if specified, got %s", where, d.Duration())
	}
	return nil
}
