package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/internal/tools"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "dyson.yaml"
	// MaxBatchSize is the largest number of images a registry accepts in one delete call
	MaxBatchSize = 100
)

type Config struct {
	Registry     RegistryConfig      `mapstructure:"registry" yaml:"registry"`
	Scans        []ScanConfig        `mapstructure:"scans" yaml:"scans"`
	Notification *NotificationConfig `mapstructure:"notification" yaml:"notification,omitempty"`
	Settings     Settings            `mapstructure:"settings" yaml:"settings,omitempty"`
}

type RegistryConfig struct {
	Name        string         `mapstructure:"name" yaml:"name,omitempty"`
	ProfileName string         `mapstructure:"profile_name" yaml:"profile_name"`
	Region      string         `mapstructure:"region" yaml:"region,omitempty"`
	Excludes    []string       `mapstructure:"excludes" yaml:"excludes,omitempty"`
	Filters     []FilterConfig `mapstructure:"filters" yaml:"filters,omitempty"`
}

type FilterConfig struct {
	Pattern           string   `mapstructure:"pattern" yaml:"pattern"`
	DaysAfter         *int     `mapstructure:"days_after" yaml:"days_after,omitempty"`
	IgnoreTagPatterns []string `mapstructure:"ignore_tag_patterns" yaml:"ignore_tag_patterns,omitempty"`
}

type ScanConfig struct {
	Name         string   `mapstructure:"name" yaml:"name,omitempty"`
	ProfileName  string   `mapstructure:"profile_name" yaml:"profile_name"`
	Region       string   `mapstructure:"region" yaml:"region,omitempty"`
	Required     bool     `mapstructure:"required" yaml:"required,omitempty"`
	Repositories []string `mapstructure:"repositories" yaml:"repositories,omitempty"`
}

type NotificationConfig struct {
	Slack *SlackConfig `mapstructure:"slack" yaml:"slack,omitempty"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Username   string `mapstructure:"username" yaml:"username,omitempty"`
	Channel    string `mapstructure:"channel" yaml:"channel,omitempty"`
	IconURL    string `mapstructure:"icon_url" yaml:"icon_url,omitempty"`
}

// Settings tune concurrency, timeouts and retries. Zero values are replaced by defaults on load.
type Settings struct {
	Concurrency         int           `mapstructure:"concurrency" yaml:"concurrency,omitempty"`
	ScanTimeout         time.Duration `mapstructure:"scan_timeout" yaml:"scan_timeout,omitempty"`
	BatchSize           int           `mapstructure:"batch_size" yaml:"batch_size,omitempty"`
	MaxAttempts         int           `mapstructure:"max_attempts" yaml:"max_attempts,omitempty"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay,omitempty"`
	ApplyConcurrency    int           `mapstructure:"apply_concurrency" yaml:"apply_concurrency,omitempty"`
	DefinitionRevisions int           `mapstructure:"definition_revisions" yaml:"definition_revisions,omitempty"`
}

var defaults = map[string]any{
	"settings.concurrency":          4,
	"settings.scan_timeout":         2 * time.Minute,
	"settings.batch_size":           MaxBatchSize,
	"settings.max_attempts":         5,
	"settings.retry_base_delay":     500 * time.Millisecond,
	"settings.apply_concurrency":    1,
	"settings.definition_revisions": 2,
}

// ResolvePath returns the configuration file to read. The default file falls back
// to the XDG config directory when it is missing from the working directory.
func ResolvePath(path string) string {
	if path == "" {
		path = DefaultPath
	}
	if path != DefaultPath {
		return path
	}
	if tools.FileExists(path) {
		return path
	}
	if fallback := filepath.Join(xdg.ConfigHome, "dyson", DefaultPath); tools.FileExists(fallback) {
		return fallback
	}
	return path
}

// LoadConfig reads and validates the configuration file at path.
// Environment variables prefixed with DYSON_ override file values.
func LoadConfig(path string) (Config, error) {
	path = ResolvePath(path)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("DYSON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, &domain.ConfigurationError{Err: fmt.Errorf("read %s: %w", path, err)}
	}
	// older files name the section "notifier"
	if !v.IsSet("notification") && v.IsSet("notifier") {
		v.Set("notification", v.Get("notifier"))
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, &domain.ConfigurationError{Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem of the configuration at once.
func (c Config) Validate() error {
	var errs error
	if c.Registry.ProfileName == "" {
		errs = multierror.Append(errs, errors.New("registry.profile_name: required"))
	}
	errs = checkPatterns(errs, "registry.excludes", c.Registry.Excludes)
	for i, f := range c.Registry.Filters {
		field := fmt.Sprintf("registry.filters[%d]", i)
		if f.Pattern == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s.pattern: required", field))
		} else {
			errs = checkPatterns(errs, field+".pattern", []string{f.Pattern})
		}
		if f.DaysAfter != nil && *f.DaysAfter < 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s.days_after: must not be negative", field))
		}
		errs = checkPatterns(errs, field+".ignore_tag_patterns", f.IgnoreTagPatterns)
	}
	for i, s := range c.Scans {
		field := fmt.Sprintf("scans[%d]", i)
		if s.ProfileName == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s.profile_name: required", field))
		}
		errs = checkPatterns(errs, field+".repositories", s.Repositories)
	}
	if c.Notification != nil && c.Notification.Slack != nil && c.Notification.Slack.WebhookURL == "" {
		errs = multierror.Append(errs, errors.New("notification.slack.webhook_url: required"))
	}

	s := c.Settings
	if s.Concurrency < 1 {
		errs = multierror.Append(errs, errors.New("settings.concurrency: must be at least 1"))
	}
	if s.ScanTimeout <= 0 {
		errs = multierror.Append(errs, errors.New("settings.scan_timeout: must be positive"))
	}
	if s.BatchSize < 1 || s.BatchSize > MaxBatchSize {
		errs = multierror.Append(errs, fmt.Errorf("settings.batch_size: must be between 1 and %d", MaxBatchSize))
	}
	if s.MaxAttempts < 1 {
		errs = multierror.Append(errs, errors.New("settings.max_attempts: must be at least 1"))
	}
	if s.RetryBaseDelay < 0 {
		errs = multierror.Append(errs, errors.New("settings.retry_base_delay: must not be negative"))
	}
	if s.ApplyConcurrency < 1 {
		errs = multierror.Append(errs, errors.New("settings.apply_concurrency: must be at least 1"))
	}
	if s.DefinitionRevisions < 1 {
		errs = multierror.Append(errs, errors.New("settings.definition_revisions: must be at least 1"))
	}
	if errs != nil {
		return &domain.ConfigurationError{Err: errs}
	}
	return nil
}

func checkPatterns(errs error, field string, patterns []string) error {
	for _, p := range patterns {
		if _, err := domain.ParsePattern(p); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}
	return errs
}

func (c Config) RegistryDomain() domain.Registry {
	filters := make([]domain.Filter, 0, len(c.Registry.Filters))
	for _, f := range c.Registry.Filters {
		filters = append(filters, domain.Filter{
			Pattern:           f.Pattern,
			DaysAfter:         f.DaysAfter,
			IgnoreTagPatterns: f.IgnoreTagPatterns,
		})
	}
	name := c.Registry.Name
	if name == "" {
		name = c.Registry.ProfileName
	}
	return domain.Registry{
		Name:     name,
		Profile:  c.Registry.ProfileName,
		Region:   c.Registry.Region,
		Excludes: c.Registry.Excludes,
		Filters:  filters,
	}
}

func (c Config) ScanTargets() []domain.ScanTarget {
	targets := make([]domain.ScanTarget, 0, len(c.Scans))
	for _, s := range c.Scans {
		targets = append(targets, domain.ScanTarget{
			Name:         s.Name,
			Profile:      s.ProfileName,
			Region:       s.Region,
			Required:     s.Required,
			Repositories: s.Repositories,
		})
	}
	return targets
}

// Slack returns the Slack section, if any
func (c Config) Slack() (SlackConfig, bool) {
	if c.Notification == nil || c.Notification.Slack == nil {
		return SlackConfig{}, false
	}
	return *c.Notification.Slack, true
}

// ExampleConfig is the configuration scaffolded by init
func ExampleConfig() Config {
	days := 30
	return Config{
		Registry: RegistryConfig{
			Name:        "my-registry",
			ProfileName: "profile1",
			Excludes:    []string{"exclude/*"},
			Filters: []FilterConfig{{
				Pattern:           "*",
				DaysAfter:         &days,
				IgnoreTagPatterns: []string{"latest"},
			}},
		},
		Scans: []ScanConfig{{
			Name:        "scan-target",
			ProfileName: "profile2",
		}},
		Notification: &NotificationConfig{
			Slack: &SlackConfig{
				WebhookURL: "https://hooks.slack.com/services/xxx/yyy/zzz",
				Username:   "dyson-bot",
				Channel:    "random",
			},
		},
	}
}

// WriteExample encodes ExampleConfig as YAML
func WriteExample(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ExampleConfig()); err != nil {
		return err
	}
	return enc.Close()
}

// WriteExampleFile creates path with the example configuration. An existing file is left untouched.
func WriteExampleFile(path string) (bool, error) {
	if tools.FileExists(path) {
		return false, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return false, err
	}
	if err := WriteExample(f); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
