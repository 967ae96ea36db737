package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// executeCmd runs the root command with args and returns captured stdout
// and any error.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exporter.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
tick_interval: 10s
targets:
  - address: https://rpc.example.org:8545
    task: bridged_supply
    options:
      token_address: "0x1111111111111111111111111111111111111111"
      decimals: 6
groups:
  - name: validators
    addresses: [https://node-1.example.org:26657, https://node-2.example.org:26657]
    tasks: [consensus_power, network_functional]
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Listen address: 127.0.0.1:9090",
		"Tick interval:  10s",
		"1 direct + 4 from groups = 5 total",
		"consensus_power",
		"bridged_supply",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
	if strings.Contains(output, "get_price") {
		t.Errorf("output lists a kind with no targets\nGot: %s", output)
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `
targets:
  - task: consensus_power
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}

	if !strings.Contains(err.Error(), "address is required") {
		t.Errorf("error should mention 'address is required', got: %v", err)
	}
}

func TestRunValidate_InvalidHexAddress(t *testing.T) {
	configPath := writeConfig(t, `
targets:
  - address: https://rpc.example.org:8545
    task: native_balance
    options:
      native_address: "0xnothex"
      decimals: 18
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for bad address, got nil")
	}
	if !strings.Contains(err.Error(), "not a valid hex address") {
		t.Errorf("error = %v", err)
	}
}

func TestRunValidate_Duplicate(t *testing.T) {
	configPath := writeConfig(t, `
targets:
  - address: https://node.example.org
    task: consensus_power
  - address: https://node.example.org
    task: consensus_power
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("validate command error = %v, want duplicate", err)
	}
}

func TestRunValidate_SameTargetDifferentFrequency(t *testing.T) {
	configPath := writeConfig(t, `
targets:
  - address: https://node.example.org
    task: network_functional
  - address: https://node.example.org
    task: network_functional
    frequency: 30s
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	if !strings.Contains(output, "2 direct + 0 from groups = 2 total") {
		t.Errorf("output = %q", output)
	}
}

func TestRunValidate_ConflictingSeries(t *testing.T) {
	configPath := writeConfig(t, `
targets:
  - address: https://node-1.example.org
    task: consensus_power
    registry:
      prefix: findora
      labels: {env: prod}
  - address: https://node-2.example.org
    task: consensus_power
    registry:
      prefix: findora
      labels: {env: prod}
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil || !strings.Contains(err.Error(), "conflicting metric series") {
		t.Fatalf("validate command error = %v, want conflicting metric series", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}

	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestVersion(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.Contains(output, "findora-exporter dev") {
		t.Errorf("output = %q", output)
	}
}
