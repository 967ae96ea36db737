package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FindoraNetwork/findora-exporter/target"
)

const (
	tokenAddr   = "0x1111111111111111111111111111111111111111"
	handlerAddr = "0x2222222222222222222222222222222222222222"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
targets:
  - address: https://node.example.org:26657
    task: consensus_power
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.ListenAddr != "127.0.0.1:9090" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:9090", cfg.ListenAddr)
	}
	if cfg.TickInterval.Duration() != 15*time.Second {
		t.Errorf("TickInterval = %v, want 15s", cfg.TickInterval.Duration())
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if !cfg.PushOnStartEnabled() {
		t.Error("PushOnStartEnabled() = false, want true by default")
	}
	if cfg.Client.Timeout.Duration() != 10*time.Second {
		t.Errorf("Client.Timeout = %v, want 10s", cfg.Client.Timeout.Duration())
	}
	if cfg.Client.RequestsPerSecond != 0 || cfg.Client.Burst != 0 {
		t.Errorf("rate limit = %v/%d, want disabled", cfg.Client.RequestsPerSecond, cfg.Client.Burst)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %s/%s, want info/json", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Log.MaxSizeMB != 100 || cfg.Log.MaxBackups != 3 || cfg.Log.MaxAgeDays != 28 {
		t.Errorf("Log rotation = %d/%d/%d, want 100/3/28", cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays)
	}
	if len(cfg.Targets) != 1 {
		t.Errorf("len(Targets) = %d, want 1", len(cfg.Targets))
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
listen_addr: 0.0.0.0:9200
tick_interval: 5s
workers: 8
push_on_start: false

client:
  timeout: 3s
  requests_per_second: 20

log:
  level: debug
  format: text
  file: /var/log/exporter.log

targets:
  - address: https://rpc.example.org:8545/
    task: bridged_balance
    frequency: 30s
    options:
      handler_address: ` + handlerAddr + `
      token_address: ` + tokenAddr + `
      decimals: 6
    registry:
      prefix: findora_mainnet
      labels:
        env: mainnet
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9200" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.TickInterval.Duration() != 5*time.Second {
		t.Errorf("TickInterval = %v, want 5s", cfg.TickInterval.Duration())
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.PushOnStartEnabled() {
		t.Error("PushOnStartEnabled() = true, want false")
	}
	if cfg.Client.Timeout.Duration() != 3*time.Second {
		t.Errorf("Client.Timeout = %v, want 3s", cfg.Client.Timeout.Duration())
	}
	if cfg.Client.Burst != 1 {
		t.Errorf("Client.Burst = %d, want default of 1 when limiting", cfg.Client.Burst)
	}
	if cfg.Log.File != "/var/log/exporter.log" {
		t.Errorf("Log.File = %q", cfg.Log.File)
	}

	tc := cfg.Targets[0]
	if tc.Address != "https://rpc.example.org:8545" {
		t.Errorf("Address = %q, want trailing slash trimmed", tc.Address)
	}
	if tc.Frequency.Duration() != 30*time.Second {
		t.Errorf("Frequency = %v, want 30s", tc.Frequency.Duration())
	}
	if tc.Options == nil || tc.Options.Decimals == nil || *tc.Options.Decimals != 6 {
		t.Fatalf("Options = %+v, want decimals 6", tc.Options)
	}
	if tc.Registry == nil || tc.Registry.Prefix != "findora_mainnet" || tc.Registry.Labels["env"] != "mainnet" {
		t.Errorf("Registry = %+v", tc.Registry)
	}
}

func TestParse_TaskNameNormalised(t *testing.T) {
	yaml := `
targets:
  - address: https://node.example.org
    task: " Network_Functional "
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Targets[0].Task != "network_functional" {
		t.Errorf("Task = %q, want network_functional", cfg.Targets[0].Task)
	}
}

func TestParse_GroupConfig(t *testing.T) {
	yaml := `
groups:
  - name: validators
    addresses:
      - https://node-1.example.org:26657
      - https://node-2.example.org:26657
    tasks: [network_functional, total_count_of_validators]
    frequency: 1m
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(cfg.Groups) != 1 {
		t.Fatalf("len(Groups) = %d, want 1", len(cfg.Groups))
	}
	g := cfg.Groups[0]
	if len(g.Addresses) != 2 || len(g.Tasks) != 2 {
		t.Errorf("group = %+v", g)
	}
	if g.Frequency.Duration() != time.Minute {
		t.Errorf("Frequency = %v, want 1m", g.Frequency.Duration())
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("RPC_HOST", "rpc.example.org")
	t.Setenv("TOKEN", tokenAddr)
	t.Setenv("ENV_NAME", "staging")

	yaml := `
targets:
  - address: https://${RPC_HOST}:8545
    task: bridged_supply
    options:
      token_address: ${TOKEN}
      decimals: 18
    registry:
      prefix: findora
      labels:
        env: ${ENV_NAME}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tc := cfg.Targets[0]
	if tc.Address != "https://rpc.example.org:8545" {
		t.Errorf("Address = %q", tc.Address)
	}
	if tc.Options.TokenAddress != tokenAddr {
		t.Errorf("TokenAddress = %q", tc.Options.TokenAddress)
	}
	if tc.Registry.Labels["env"] != "staging" {
		t.Errorf("label env = %q, want staging", tc.Registry.Labels["env"])
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	yaml := `
targets:
  - address: ${UNSET_NODE_URL:-https://fallback.example.org}
    task: consensus_power
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Targets[0].Address != "https://fallback.example.org" {
		t.Errorf("Address = %q, want fallback", cfg.Targets[0].Address)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
targets:
  - address: ${DEFINITELY_NOT_SET_NODE_URL}
    task: consensus_power
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var")
	}
	if !strings.Contains(err.Error(), "DEFINITELY_NOT_SET_NODE_URL") {
		t.Errorf("error = %v, want variable name", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "no targets or groups",
			yaml:        `workers: 2`,
			wantErrLike: "at least one target or group",
		},
		{
			name: "target missing address",
			yaml: `
targets:
  - task: consensus_power
`,
			wantErrLike: "targets[0] (consensus_power): address is required",
		},
		{
			name: "target missing scheme",
			yaml: `
targets:
  - address: node.example.org:26657
    task: consensus_power
`,
			wantErrLike: "scheme",
		},
		{
			name: "target unsupported scheme",
			yaml: `
targets:
  - address: ws://node.example.org
    task: consensus_power
`,
			wantErrLike: "must be http or https",
		},
		{
			name: "unknown task",
			yaml: `
targets:
  - address: https://node.example.org
    task: block_height
`,
			wantErrLike: `unknown task "block_height"`,
		},
		{
			name: "missing options",
			yaml: `
targets:
  - address: https://node.example.org
    task: bridged_supply
`,
			wantErrLike: "options are required",
		},
		{
			name: "missing required option",
			yaml: `
targets:
  - address: https://node.example.org
    task: bridged_balance
    options:
      token_address: ` + tokenAddr + `
      decimals: 6
`,
			wantErrLike: "options.handler_address is required",
		},
		{
			name: "missing decimals",
			yaml: `
targets:
  - address: https://node.example.org
    task: bridged_supply
    options:
      token_address: ` + tokenAddr + `
`,
			wantErrLike: "options.decimals is required",
		},
		{
			name: "negative decimals",
			yaml: `
targets:
  - address: https://node.example.org
    task: bridged_supply
    options:
      token_address: ` + tokenAddr + `
      decimals: -1
`,
			wantErrLike: "cannot be negative",
		},
		{
			name: "option not used by task",
			yaml: `
targets:
  - address: https://node.example.org
    task: get_price
    options:
      currency_pair: FRA_USDT
      token_address: ` + tokenAddr + `
`,
			wantErrLike: "options.token_address is not used by task get_price",
		},
		{
			name: "decimals not used by price",
			yaml: `
targets:
  - address: https://api.example.org
    task: get_price
    options:
      currency_pair: FRA_USDT
      decimals: 6
`,
			wantErrLike: "options.decimals is not used",
		},
		{
			name: "options on option-less task",
			yaml: `
targets:
  - address: https://node.example.org
    task: consensus_power
    options:
      currency_pair: FRA_USDT
`,
			wantErrLike: "options.currency_pair is not used by task consensus_power",
		},
		{
			name: "registry without prefix",
			yaml: `
targets:
  - address: https://node.example.org
    task: consensus_power
    registry:
      labels: {env: prod}
`,
			wantErrLike: "registry.prefix is required",
		},
		{
			name: "registry invalid prefix",
			yaml: `
targets:
  - address: https://node.example.org
    task: consensus_power
    registry:
      prefix: 1bad
`,
			wantErrLike: "not a valid metric name prefix",
		},
		{
			name: "registry invalid label",
			yaml: `
targets:
  - address: https://node.example.org
    task: consensus_power
    registry:
      prefix: findora
      labels:
        bad-label: x
`,
			wantErrLike: "not a valid label name",
		},
		{
			name: "registry reserved label",
			yaml: `
targets:
  - address: https://node.example.org
    task: consensus_power
    registry:
      prefix: findora
      labels:
        __name: x
`,
			wantErrLike: "not a valid label name",
		},
		{
			name: "group without addresses",
			yaml: `
groups:
  - name: empty
    tasks: [consensus_power]
`,
			wantErrLike: "groups[0] (empty): at least one address",
		},
		{
			name: "group without tasks",
			yaml: `
groups:
  - addresses: [https://node.example.org]
`,
			wantErrLike: "groups[0]: at least one task",
		},
		{
			name: "group with option task",
			yaml: `
groups:
  - addresses: [https://node.example.org]
    tasks: [native_balance]
`,
			wantErrLike: "requires options and cannot be grouped",
		},
		{
			name: "group with duplicate task",
			yaml: `
groups:
  - addresses: [https://node.example.org]
    tasks: [consensus_power, CONSENSUS_POWER]
`,
			wantErrLike: "duplicate task consensus_power",
		},
		{
			name: "group bad address",
			yaml: `
groups:
  - addresses: [https://node.example.org, ftp://node.example.org]
    tasks: [consensus_power]
`,
			wantErrLike: "addresses[1]",
		},
		{
			name: "workers negative",
			yaml: `
workers: -1
targets:
  - address: https://node.example.org
    task: consensus_power
`,
			wantErrLike: "workers must be at least 1",
		},
		{
			name: "client timeout too short",
			yaml: `
client:
  timeout: 500ms
targets:
  - address: https://node.example.org
    task: consensus_power
`,
			wantErrLike: "client.timeout must be at least 1s",
		},
		{
			name: "negative rate",
			yaml: `
client:
  requests_per_second: -1
targets:
  - address: https://node.example.org
    task: consensus_power
`,
			wantErrLike: "requests_per_second cannot be negative",
		},
		{
			name: "bad log level",
			yaml: `
log:
  level: trace
targets:
  - address: https://node.example.org
    task: consensus_power
`,
			wantErrLike: "log.level",
		},
		{
			name: "bad log format",
			yaml: `
log:
  format: xml
targets:
  - address: https://node.example.org
    task: consensus_power
`,
			wantErrLike: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !errors.Is(err, target.ErrConfig) {
				t.Errorf("Parse() error = %v, want it to wrap ErrConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("Parse() error = %q, want it to contain %q", err.Error(), tt.wantErrLike)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("targets: [unclosed"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML")
	}
	if !errors.Is(err, target.ErrConfig) {
		t.Errorf("error = %v, want ErrConfig", err)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
tick_interval: often
targets:
  - address: https://node.example.org
    task: consensus_power
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want invalid duration", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"1s", time.Second},
		{"30s", 30 * time.Second},
		{"1m30s", 90 * time.Second},
		{"2h", 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			yaml := "tick_interval: " + tt.input + "\ntargets:\n  - address: https://node.example.org\n    task: consensus_power\n"
			cfg, err := Parse([]byte(yaml))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.TickInterval.Duration() != tt.want {
				t.Errorf("TickInterval = %v, want %v", cfg.TickInterval.Duration(), tt.want)
			}
		})
	}
}

func TestParse_TickIntervalMinimum(t *testing.T) {
	tests := []struct {
		interval string
		wantErr  bool
	}{
		{"999ms", true},
		{"1s", false},
		{"10s", false},
	}

	for _, tt := range tests {
		t.Run(tt.interval, func(t *testing.T) {
			yaml := "tick_interval: " + tt.interval + "\ntargets:\n  - address: https://node.example.org\n    task: consensus_power\n"
			_, err := Parse([]byte(yaml))
			if tt.wantErr && err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if tt.wantErr && !strings.Contains(err.Error(), "tick_interval must be at least 1s") {
				t.Errorf("error = %v", err)
			}
		})
	}
}

func TestParse_FrequencyValidation(t *testing.T) {
	tests := []struct {
		name        string
		frequency   string
		wantErrLike string
	}{
		{"below minimum", "500ms", "frequency must be at least 1s"},
		{"at minimum", "1s", ""},
		{"typical", "2m", ""},
		{"at maximum", "1h", ""},
		{"above maximum", "61m", "frequency must not exceed 1h0m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := `
targets:
  - address: https://node.example.org
    task: consensus_power
    frequency: ` + tt.frequency + `
`
			_, err := Parse([]byte(yaml))
			if tt.wantErrLike == "" {
				if err != nil {
					t.Fatalf("Parse() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErrLike)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.yaml")
	data := "targets:\n  - address: https://node.example.org\n    task: total_count_of_validators\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Targets[0].Task != "total_count_of_validators" {
		t.Errorf("Task = %q", cfg.Targets[0].Task)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false}, // set var takes precedence
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// UNSET and MISSING are expected to not exist in environment
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "example", "exporter.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	targets, err := BuildTargets(cfg)
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}
	// 4 direct + 1 address x 3 tasks
	if len(targets) != 7 {
		t.Errorf("len(targets) = %d, want 7", len(targets))
	}
}
