package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("11", 32)

const yamlConfig = `
network:
  "0.0.3": "127.0.0.1:50211"
  "0.0.4": "127.0.0.1:50212"
mirror:
  - "127.0.0.1:5600"
operator:
  account_id: "0.0.1001"
  private_key: "%KEY%"
  algorithm: ed25519
execution:
  max_transaction_fee: 300000000
  request_timeout: 30s
  max_attempts: 5
log:
  level: debug
`

const tomlConfig = `
mirror = ["127.0.0.1:5600"]

[network]
"0.0.3" = "127.0.0.1:50211"

[operator]
account_id = "0.0.1001"
private_key = "%KEY%"
algorithm = "ecdsa"

[execution]
request_timeout = "45s"
min_backoff = "250ms"
max_backoff = "8s"

[chunk]
size = 512
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(body, "%KEY%", testKey)), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "client.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Len(t, cfg.Network, 2)
	assert.Equal(t, []string{"127.0.0.1:5600"}, cfg.Mirror)
	assert.Equal(t, int64(300_000_000), cfg.Execution.MaxTransactionFee)
	assert.Equal(t, 30*time.Second, cfg.Execution.RequestTimeout.Std())
	assert.Equal(t, 5, cfg.Execution.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)

	// untouched fields keep their defaults
	assert.Equal(t, 1024, cfg.Chunk.Size)
	assert.Equal(t, 60*time.Second, cfg.Execution.MaxBackoff.Std())

	addrs, err := cfg.Addresses()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:50211", addrs[types.NewAccountID(3)])

	payer, signer, err := cfg.OperatorSigner()
	require.NoError(t, err)
	assert.Equal(t, types.NewAccountID(1001), *payer)
	assert.NotNil(t, signer)
}

func TestLoad_TOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "client.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Execution.RequestTimeout.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.Execution.MinBackoff.Std())
	assert.Equal(t, 512, cfg.Chunk.Size)
	assert.Equal(t, "ecdsa", cfg.Operator.Algorithm)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "client.json", "{}"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = Load(writeConfig(t, "bad.yaml", "network: [oops"))
	assert.ErrorContains(t, err, "YAML")

	_, err = Load(writeConfig(t, "bad.toml", `[execution]
request_timeout = "soon"`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"bad node id", func(c *Config) { c.Network["node3"] = "x:1" }, "network"},
		{"empty address", func(c *Config) { c.Network["0.0.3"] = "" }, "no address"},
		{"bad operator key", func(c *Config) {
			c.Operator = &Operator{AccountID: "0.0.2", PrivateKey: "zz"}
		}, "operator"},
		{"negative attempts", func(c *Config) { c.Execution.MaxAttempts = -1 }, "max_attempts"},
		{"inverted backoff", func(c *Config) {
			c.Execution.MinBackoff = Duration(time.Minute)
			c.Execution.MaxBackoff = Duration(time.Second)
		}, "min_backoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HEDERA_NETWORK":         "0.0.3=10.0.0.1:50211, 0.0.4=10.0.0.2:50211",
		"HEDERA_OPERATOR_ID":     "0.0.77",
		"HEDERA_OPERATOR_KEY":    testKey,
		"HEDERA_MAX_ATTEMPTS":    "3",
		"HEDERA_REQUEST_TIMEOUT": "5s",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, lookup))

	assert.Equal(t, "10.0.0.2:50211", cfg.Network["0.0.4"])
	require.NotNil(t, cfg.Operator)
	assert.Equal(t, "0.0.77", cfg.Operator.AccountID)
	assert.Equal(t, testKey, cfg.Operator.PrivateKey)
	assert.Equal(t, 3, cfg.Execution.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Execution.RequestTimeout.Std())
	assert.NoError(t, cfg.Validate())

	env["HEDERA_MAX_ATTEMPTS"] = "many"
	assert.ErrorContains(t, ApplyEnv(&cfg, lookup), "HEDERA_MAX_ATTEMPTS")

	env = map[string]string{"HEDERA_NETWORK": "0.0.3"}
	assert.Error(t, ApplyEnv(&cfg, lookup))
}

func TestWatcher_ReloadsValidChanges(t *testing.T) {
	path := writeConfig(t, "client.yaml", yamlConfig)

	var reloads atomic.Int32
	var lastAttempts atomic.Int32
	w := NewWatcher(path, func(c *Config) {
		lastAttempts.Store(int32(c.Execution.MaxAttempts))
		reloads.Add(1)
	}, zerolog.Nop())
	w.delay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)

	// an invalid edit is skipped
	require.NoError(t, os.WriteFile(path, []byte("network: [oops"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, reloads.Load())

	updated := strings.ReplaceAll(strings.ReplaceAll(yamlConfig, "%KEY%", testKey), "max_attempts: 5", "max_attempts: 7")
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool { return lastAttempts.Load() == 7 }, 2*time.Second, 10*time.Millisecond)
}
