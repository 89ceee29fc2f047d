package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/platform/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
database:
  path: %q
security:
  credential_secret: test-secret
providers:
  - provider_key: deepseek
    protocol_type: openai
    base_url: http://127.0.0.1:1/v1
    credential: sk-test
    enabled: true
  - provider_key: qwen
    protocol_type: openai
    base_url: http://127.0.0.1:1/v1
    enabled: false
`, filepath.Join(dir, "router.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile = ""
		os.Unsetenv("CONFIG_FILE")
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHashKey_FromArgAndStdin(t *testing.T) {
	out, err := run(t, "", "hash-key", "admin-1")
	require.NoError(t, err)
	assert.True(t, secrets.VerifyToken(strings.TrimSpace(out), "admin-1"))

	out, err = run(t, "admin-2\n", "hash-key")
	require.NoError(t, err)
	assert.True(t, secrets.VerifyToken(strings.TrimSpace(out), "admin-2"))

	_, err = run(t, "\n", "hash-key")
	assert.Error(t, err)
}

func TestProviders_ListsConfiguredProviders(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "", "--config", cfg, "providers")
	require.NoError(t, err)
	assert.Contains(t, out, "deepseek")
	assert.Contains(t, out, "qwen")
}

func TestApplyTemplate_ReportsMissingProviders(t *testing.T) {
	cfg := writeConfig(t)
	// qwen is disabled so its requirement cannot be met.
	_, err := run(t, "", "--config", cfg, "apply-template", "chat", "china-first-p0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qwen")

	_, err = run(t, "", "--config", cfg, "apply-template", "nope", "china-first-p0")
	assert.ErrorContains(t, err, "unknown capability")
}

func TestStats_RejectsBadWindow(t *testing.T) {
	_, err := run(t, "", "stats", "--hours", "0")
	assert.ErrorContains(t, err, "--hours")
	statsFlags.hours = 24
}

func TestExport_WritesHeaderForEmptyLog(t *testing.T) {
	cfg := writeConfig(t)
	target := filepath.Join(t.TempDir(), "attempts.csv")
	_, err := run(t, "", "--config", cfg, "export", "--output", target, "--since", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	exportFlags.output, exportFlags.since = "", ""

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "id,"))
}

func TestExportFilter(t *testing.T) {
	exportFlags.capability = "Vision"
	exportFlags.errorKind = "rate_limit"
	exportFlags.since = "2026-03-01T10:00:00Z"
	exportFlags.limit = 50
	t.Cleanup(func() {
		exportFlags.capability, exportFlags.errorKind, exportFlags.since, exportFlags.limit = "", "", "", 0
	})

	f, err := exportFilter()
	require.NoError(t, err)
	assert.Equal(t, domain.CapabilityVision, f.Capability)
	assert.Equal(t, domain.ErrorKindRateLimit, f.ErrorKind)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), f.Since.UTC())
	assert.Equal(t, 50, f.Limit)

	exportFlags.until = "yesterday"
	defer func() { exportFlags.until = "" }()
	_, err = exportFilter()
	assert.ErrorContains(t, err, "--until")
}
