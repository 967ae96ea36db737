// Package config provides YAML configuration parsing for the exporter.
//
// Example configuration:
//
//	listen_addr: 127.0.0.1:9090
//	tick_interval: 15s
//	workers: 4
//
//	targets:
//	  - address: https://prod-mainnet.prod.findora.org:26657
//	    task: consensus_power
//	    registry:
//	      prefix: findora_mainnet
//	      labels: {env: mainnet}
//	  - address: https://prod-mainnet.prod.findora.org:8545
//	    task: bridged_supply
//	    options:
//	      token_address: "0x..."
//	      decimals: 6
//
//	groups:
//	  - name: validators
//	    addresses: [https://node-1:26657, https://node-2:26657]
//	    tasks: [network_functional, total_count_of_validators]
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FindoraNetwork/findora-exporter/target"
)

const (
	// minTickInterval prevents accidental DoS of nodes with overly aggressive polling.
	minTickInterval = 1 * time.Second

	minFrequency = 1 * time.Second
	maxFrequency = 1 * time.Hour

	defaultListenAddr   = "127.0.0.1:9090"
	defaultTickInterval = 15 * time.Second
	defaultWorkers      = 4
	defaultTimeout      = 10 * time.Second
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
	defaultMaxSizeMB    = 100
	defaultMaxBackups   = 3
	defaultMaxAgeDays   = 28
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// ListenAddr is the HTTP listen address. Defaults to 127.0.0.1:9090.
	ListenAddr string `yaml:"listen_addr"`

	// TickInterval is the polling cadence for targets without their own
	// frequency. Defaults to 15s; must be at least 1s.
	TickInterval Duration `yaml:"tick_interval"`

	// Workers is the size of the worker pool. Defaults to 4.
	Workers int `yaml:"workers"`

	// PushOnStart polls every target once at startup. Defaults to true.
	PushOnStart *bool `yaml:"push_on_start"`

	// Client tunes outgoing requests.
	Client ClientConfig `yaml:"client"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Targets are individual polling jobs.
	Targets []TargetConfig `yaml:"targets"`

	// Groups expand into one target per address and task.
	Groups []GroupConfig `yaml:"groups"`
}

// ClientConfig tunes the HTTP client used by collectors.
type ClientConfig struct {
	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// RequestsPerSecond caps requests to any single host. Zero disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the rate limiter burst. Defaults to 1 when limiting.
	Burst int `yaml:"burst"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is json or text. Defaults to json.
	Format string `yaml:"format"`

	// File, when set, sends logs to a rotating file instead of stderr.
	File string `yaml:"file"`

	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

// TargetConfig defines one polling job.
type TargetConfig struct {
	// Address is the node or API base URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Address string `yaml:"address"`

	// Task is the task kind, e.g. consensus_power.
	Task string `yaml:"task"`

	// Frequency is the target's own polling interval.
	// If not specified, uses the global tick_interval.
	// Must be between 1s and 1h.
	Frequency Duration `yaml:"frequency"`

	// Options are the task-specific parameters.
	Options *OptionsConfig `yaml:"options"`

	// Registry places the metric in its own prefixed, labelled registry.
	Registry *RegistryConfig `yaml:"registry"`
}

// OptionsConfig holds every task-specific option. Each task uses a subset;
// setting an option the task does not use is an error.
type OptionsConfig struct {
	HandlerAddress string `yaml:"handler_address"`
	TokenAddress   string `yaml:"token_address"`
	BridgeAddress  string `yaml:"bridge_address"`
	NativeAddress  string `yaml:"native_address"`
	CurrencyPair   string `yaml:"currency_pair"`
	Decimals       *int   `yaml:"decimals"`
}

// RegistryConfig is a registry namespace.
type RegistryConfig struct {
	Prefix string            `yaml:"prefix"`
	Labels map[string]string `yaml:"labels"`
}

// GroupConfig expands into the cartesian product of addresses and tasks.
//
// For example, with addresses [a, b] and tasks [consensus_power,
// network_functional], the group expands to 4 targets. Only tasks that take
// no options can be grouped.
type GroupConfig struct {
	// Name identifies the group in error messages.
	Name string `yaml:"name"`

	// Addresses are the node URLs. Each supports environment variables.
	Addresses []string `yaml:"addresses"`

	// Tasks are the task kinds applied to every address.
	Tasks []string `yaml:"tasks"`

	// Frequency applies to every generated target.
	Frequency Duration `yaml:"frequency"`

	// Registry applies to every generated target.
	Registry *RegistryConfig `yaml:"registry"`
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

// PushOnStartEnabled reports the effective push_on_start setting.
func (c *Config) PushOnStartEnabled() bool {
	return c.PushOnStart == nil || *c.PushOnStart
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
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in addresses, option values and
// registry label values. Defaults are applied before validation. Every
// validation error wraps [target.ErrConfig].
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", target.ErrConfig, err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, fmt.Errorf("%w: %v", target.ErrConfig, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.TickInterval == 0 {
		c.TickInterval = Duration(defaultTickInterval)
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = Duration(defaultTimeout)
	}
	if c.Client.RequestsPerSecond > 0 && c.Client.Burst == 0 {
		c.Client.Burst = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = defaultMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = defaultMaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = defaultMaxAgeDays
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.TickInterval.Duration() < minTickInterval {
		return fmt.Errorf("tick_interval must be at least %s, got %s", minTickInterval, c.TickInterval.Duration())
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Client.Timeout.Duration() < time.Second {
		return fmt.Errorf("client.timeout must be at least 1s, got %s", c.Client.Timeout.Duration())
	}
	if c.Client.RequestsPerSecond < 0 {
		return fmt.Errorf("client.requests_per_second cannot be negative, got %v", c.Client.RequestsPerSecond)
	}
	if c.Client.Burst < 0 {
		return fmt.Errorf("client.burst cannot be negative, got %d", c.Client.Burst)
	}
	if err := c.Log.validate(); err != nil {
		return err
	}

	for i := range c.Targets {
		tc := &c.Targets[i]
		if err := tc.expandAndValidate(); err != nil {
			return fmt.Errorf("targets[%d] (%s): %w", i, tc.Task, err)
		}
	}

	for i := range c.Groups {
		g := &c.Groups[i]
		if err := g.expandAndValidate(); err != nil {
			if g.Name == "" {
				return fmt.Errorf("groups[%d]: %w", i, err)
			}
			return fmt.Errorf("groups[%d] (%s): %w", i, g.Name, err)
		}
	}

	if len(c.Targets) == 0 && len(c.Groups) == 0 {
		return fmt.Errorf("at least one target or group must be defined")
	}

	return nil
}

func (l *LogConfig) validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
	}
	switch l.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", l.Format)
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits cannot be negative")
	}
	return nil
}

func (tc *TargetConfig) expandAndValidate() error {
	address, err := validateAddress(tc.Address)
	if err != nil {
		return err
	}
	tc.Address = address

	kind, err := target.ParseKind(tc.Task)
	if err != nil {
		return fmt.Errorf("unknown task %q (expected one of %s)", tc.Task, kindNames())
	}
	tc.Task = kind.String()

	if err := validateFrequency(tc.Frequency); err != nil {
		return err
	}

	if err := tc.validateOptions(kind); err != nil {
		return err
	}

	return validateRegistry(tc.Registry)
}

func (g *GroupConfig) expandAndValidate() error {
	if len(g.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}
	if len(g.Tasks) == 0 {
		return fmt.Errorf("at least one task is required")
	}

	for i, a := range g.Addresses {
		address, err := validateAddress(a)
		if err != nil {
			return fmt.Errorf("addresses[%d]: %w", i, err)
		}
		g.Addresses[i] = address
	}

	seen := make(map[target.Kind]struct{}, len(g.Tasks))
	for i, t := range g.Tasks {
		kind, err := target.ParseKind(t)
		if err != nil {
			return fmt.Errorf("tasks[%d]: unknown task %q (expected one of %s)", i, t, kindNames())
		}
		if kind.RequiresOptions() {
			return fmt.Errorf("tasks[%d]: task %s requires options and cannot be grouped", i, kind)
		}
		if _, dup := seen[kind]; dup {
			return fmt.Errorf("tasks[%d]: duplicate task %s", i, kind)
		}
		seen[kind] = struct{}{}
		g.Tasks[i] = kind.String()
	}

	if err := validateFrequency(g.Frequency); err != nil {
		return err
	}
	return validateRegistry(g.Registry)
}

func validateAddress(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("address is required")
	}
	expanded, err := expandEnvVars(raw)
	if err != nil {
		return "", fmt.Errorf("address: %w", err)
	}

	parsedURL, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("invalid address: %w", err)
	}
	if parsedURL.Scheme == "" {
		return "", fmt.Errorf("address must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("address scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return strings.TrimRight(expanded, "/"), nil
}

func validateFrequency(d Duration) error {
	if d == 0 {
		return nil
	}
	if d.Duration() < minFrequency {
		return fmt.Errorf("frequency must be at least %s, got %s", minFrequency, d.Duration())
	}
	if d.Duration() > maxFrequency {
		return fmt.Errorf("frequency must not exceed %s, got %s", maxFrequency, d.Duration())
	}
	return nil
}

func validateRegistry(r *RegistryConfig) error {
	if r == nil {
		return nil
	}
	if r.Prefix == "" {
		return fmt.Errorf("registry.prefix is required")
	}
	if err := target.ValidatePrefix(r.Prefix); err != nil {
		return fmt.Errorf("registry.prefix %q is not a valid metric name prefix", r.Prefix)
	}
	for name, value := range r.Labels {
		if err := target.ValidateLabelName(name); err != nil {
			return fmt.Errorf("registry.labels: %q is not a valid label name", name)
		}
		expanded, err := expandEnvVars(value)
		if err != nil {
			return fmt.Errorf("registry.labels[%s]: %w", name, err)
		}
		r.Labels[name] = expanded
	}
	return nil
}

// optionFields lists the options each task uses.
var optionFields = map[target.Kind][]string{
	target.BridgedBalance:         {"handler_address", "token_address", "decimals"},
	target.BridgedSupply:          {"token_address", "decimals"},
	target.TotalBalanceOfRelayers: {"bridge_address", "decimals"},
	target.NativeBalance:          {"native_address", "decimals"},
	target.GetPrice:               {"currency_pair"},
}

func (tc *TargetConfig) validateOptions(kind target.Kind) error {
	allowed := optionFields[kind]
	if tc.Options == nil {
		if len(allowed) > 0 {
			return fmt.Errorf("options are required (%s)", strings.Join(allowed, ", "))
		}
		return nil
	}

	o := tc.Options
	fields := map[string]*string{
		"handler_address": &o.HandlerAddress,
		"token_address":   &o.TokenAddress,
		"bridge_address":  &o.BridgeAddress,
		"native_address":  &o.NativeAddress,
		"currency_pair":   &o.CurrencyPair,
	}

	isAllowed := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		isAllowed[f] = true
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := fields[name]
		if *v == "" {
			if isAllowed[name] {
				return fmt.Errorf("options.%s is required", name)
			}
			continue
		}
		if !isAllowed[name] {
			return fmt.Errorf("options.%s is not used by task %s", name, kind)
		}
		expanded, err := expandEnvVars(*v)
		if err != nil {
			return fmt.Errorf("options.%s: %w", name, err)
		}
		*v = expanded
	}

	if o.Decimals == nil {
		if isAllowed["decimals"] {
			return fmt.Errorf("options.decimals is required")
		}
		return nil
	}
	if !isAllowed["decimals"] {
		return fmt.Errorf("options.decimals is not used by task %s", kind)
	}
	if *o.Decimals < 0 {
		return fmt.Errorf("options.decimals cannot be negative, got %d", *o.Decimals)
	}
	return nil
}

func kindNames() string {
	kinds := target.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}
