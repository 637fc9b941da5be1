package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies HEDERA_* overrides on top of cfg. HEDERA_NETWORK takes
// "0.0.3=host:port,0.0.4=host:port"; HEDERA_MIRROR takes a comma list.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	s := envSetter{lookup: lookup}

	if v, ok := lookup("HEDERA_NETWORK"); ok && v != "" {
		network := map[string]string{}
		for _, pair := range strings.Split(v, ",") {
			node, addr, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				return fmt.Errorf("HEDERA_NETWORK: entry %q is not node=address", pair)
			}
			network[node] = addr
		}
		cfg.Network = network
	}
	if v, ok := lookup("HEDERA_MIRROR"); ok && v != "" {
		cfg.Mirror = strings.Split(v, ",")
	}

	if id, ok := lookup("HEDERA_OPERATOR_ID"); ok && id != "" {
		if cfg.Operator == nil {
			cfg.Operator = &Operator{}
		}
		cfg.Operator.AccountID = id
	}
	if cfg.Operator != nil {
		s.setString("HEDERA_OPERATOR_KEY", &cfg.Operator.PrivateKey)
		s.setString("HEDERA_OPERATOR_KEY_ALGORITHM", &cfg.Operator.Algorithm)
	}

	s.setInt64("HEDERA_MAX_TRANSACTION_FEE", &cfg.Execution.MaxTransactionFee)
	s.setInt64("HEDERA_MAX_QUERY_PAYMENT", &cfg.Execution.MaxQueryPayment)
	s.setInt("HEDERA_MAX_ATTEMPTS", &cfg.Execution.MaxAttempts)
	s.setDuration("HEDERA_REQUEST_TIMEOUT", &cfg.Execution.RequestTimeout)
	s.setString("HEDERA_LOG_LEVEL", &cfg.Log.Level)
	s.setString("HEDERA_METRICS_LISTEN", &cfg.Metrics.Listen)
	s.setString("HEDERA_ADDRESS_BOOK", &cfg.AddressBook.Path)

	return s.err
}

// envSetter keeps the first parse error so callers check once.
type envSetter struct {
	lookup LookupFunc
	err    error
}

func (s *envSetter) get(key string) (string, bool) {
	v, ok := s.lookup(key)
	return v, ok && v != "" && s.err == nil
}

func (s *envSetter) setString(key string, dst *string) {
	if v, ok := s.get(key); ok {
		*dst = v
	}
}

func (s *envSetter) setInt(key string, dst *int) {
	if v, ok := s.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = n
	}
}

func (s *envSetter) setInt64(key string, dst *int64) {
	if v, ok := s.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = n
	}
}

func (s *envSetter) setDuration(key string, dst *Duration) {
	if v, ok := s.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			s.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = Duration(d)
	}
}
