// Package config loads client settings from YAML or TOML files with
// HEDERA_* environment overrides, and watches the file for live changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hashgraph/hedera-sdk-core/internal/chunk"
	"github.com/hashgraph/hedera-sdk-core/internal/sign"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

// Duration reads "10s"-style strings from both YAML and TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Operator is the paying account and its key.
type Operator struct {
	AccountID  string `yaml:"account_id" toml:"account_id"`
	PrivateKey string `yaml:"private_key" toml:"private_key"`
	// Algorithm is "ed25519" or "ecdsa_secp256k1".
	Algorithm string `yaml:"algorithm" toml:"algorithm"`
}

// Config is the complete client configuration.
type Config struct {
	// Network maps node account ids ("0.0.3") to gRPC addresses.
	Network map[string]string `yaml:"network" toml:"network"`
	Mirror  []string          `yaml:"mirror" toml:"mirror"`

	Operator *Operator `yaml:"operator,omitempty" toml:"operator,omitempty"`

	Execution struct {
		MaxTransactionFee int64    `yaml:"max_transaction_fee" toml:"max_transaction_fee"`
		MaxQueryPayment   int64    `yaml:"max_query_payment" toml:"max_query_payment"`
		RequestTimeout    Duration `yaml:"request_timeout" toml:"request_timeout"`
		AttemptTimeout    Duration `yaml:"attempt_timeout" toml:"attempt_timeout"`
		MaxAttempts       int      `yaml:"max_attempts" toml:"max_attempts"`
		MinBackoff        Duration `yaml:"min_backoff" toml:"min_backoff"`
		MaxBackoff        Duration `yaml:"max_backoff" toml:"max_backoff"`
		SigningLimit      int      `yaml:"signing_limit" toml:"signing_limit"`
	} `yaml:"execution" toml:"execution"`

	Chunk struct {
		Size      int `yaml:"size" toml:"size"`
		MaxChunks int `yaml:"max_chunks" toml:"max_chunks"`
	} `yaml:"chunk" toml:"chunk"`

	Log struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`

	Metrics struct {
		Listen string `yaml:"listen" toml:"listen"`
	} `yaml:"metrics" toml:"metrics"`

	AddressBook struct {
		Path string `yaml:"path" toml:"path"`
	} `yaml:"address_book" toml:"address_book"`
}

// Default returns a config with every tunable set; Network and Operator
// are left for the file or environment.
func Default() Config {
	var c Config
	c.Network = map[string]string{}
	c.Execution.MaxTransactionFee = 0
	c.Execution.MaxQueryPayment = int64(types.HbarFrom(1))
	c.Execution.RequestTimeout = Duration(2 * time.Minute)
	c.Execution.AttemptTimeout = Duration(10 * time.Second)
	c.Execution.MaxAttempts = 10
	c.Execution.MinBackoff = Duration(500 * time.Millisecond)
	c.Execution.MaxBackoff = Duration(60 * time.Second)
	c.Chunk.Size = chunk.DefaultChunkSize
	c.Chunk.MaxChunks = chunk.DefaultMaxChunks
	c.Log.Level = "info"
	c.Log.Format = "console"
	return c
}

// Load reads path on top of Default(), picking the decoder from the
// extension, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	for node, addr := range c.Network {
		if _, err := types.ParseAccountID(node); err != nil {
			errs = append(errs, fmt.Errorf("network: %w", err))
		}
		if addr == "" {
			errs = append(errs, fmt.Errorf("network: node %s has no address", node))
		}
	}

	if op := c.Operator; op != nil {
		if _, err := types.ParseAccountID(op.AccountID); err != nil {
			errs = append(errs, fmt.Errorf("operator: %w", err))
		}
		alg, err := sign.ParseAlgorithm(op.Algorithm)
		if err != nil {
			errs = append(errs, fmt.Errorf("operator: %w", err))
		} else if _, err := sign.ParsePrivateKey(alg, op.PrivateKey); err != nil {
			errs = append(errs, fmt.Errorf("operator: %w", err))
		}
	}

	if c.Execution.MaxAttempts < 0 {
		errs = append(errs, errors.New("execution: max_attempts must not be negative"))
	}
	if c.Execution.MaxTransactionFee < 0 || c.Execution.MaxQueryPayment < 0 {
		errs = append(errs, errors.New("execution: fees must not be negative"))
	}
	if c.Execution.MinBackoff > c.Execution.MaxBackoff && c.Execution.MaxBackoff > 0 {
		errs = append(errs, fmt.Errorf("execution: min_backoff %s exceeds max_backoff %s",
			c.Execution.MinBackoff.Std(), c.Execution.MaxBackoff.Std()))
	}
	if c.Chunk.Size < 0 || c.Chunk.MaxChunks < 0 {
		errs = append(errs, errors.New("chunk: size and max_chunks must not be negative"))
	}

	return errors.Join(errs...)
}

// Addresses converts Network into the directory's address map.
func (c *Config) Addresses() (map[types.AccountID]string, error) {
	out := make(map[types.AccountID]string, len(c.Network))
	for node, addr := range c.Network {
		id, err := types.ParseAccountID(node)
		if err != nil {
			return nil, err
		}
		out[id] = addr
	}
	return out, nil
}

// OperatorSigner parses the operator account and key. It returns nil, nil
// when no operator is configured.
func (c *Config) OperatorSigner() (*types.AccountID, sign.Signer, error) {
	if c.Operator == nil {
		return nil, nil, nil
	}
	id, err := types.ParseAccountID(c.Operator.AccountID)
	if err != nil {
		return nil, nil, err
	}
	alg, err := sign.ParseAlgorithm(c.Operator.Algorithm)
	if err != nil {
		return nil, nil, err
	}
	key, err := sign.ParsePrivateKey(alg, c.Operator.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	return &id, key, nil
}
