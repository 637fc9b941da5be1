// Package types defines the core domain model shared by the execution
// engine, the mirror subscription engine and the public SDK surface.
package types

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// entityID is the shard.realm.num triple shared by every ledger entity.
type entityID struct {
	Shard uint64 `json:"shard" yaml:"shard"`
	Realm uint64 `json:"realm" yaml:"realm"`
	Num   uint64 `json:"num" yaml:"num"`
}

func (e entityID) String() string {
	return fmt.Sprintf("%d.%d.%d", e.Shard, e.Realm, e.Num)
}

func parseEntityID(kind, s string) (entityID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return entityID{}, fmt.Errorf("invalid %s %q: expected shard.realm.num", kind, s)
	}

	var out [3]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return entityID{}, fmt.Errorf("invalid %s %q: %w", kind, s, err)
		}
		out[i] = n
	}

	return entityID{Shard: out[0], Realm: out[1], Num: out[2]}, nil
}

// AccountID identifies an account. Node identifiers are account ids too.
type AccountID entityID

// NewAccountID builds an account id in shard 0, realm 0.
func NewAccountID(num uint64) AccountID {
	return AccountID{Num: num}
}

// ParseAccountID parses "shard.realm.num".
func ParseAccountID(s string) (AccountID, error) {
	e, err := parseEntityID("account id", s)
	return AccountID(e), err
}

func (a AccountID) String() string { return entityID(a).String() }

// IsZero reports whether the id was never set.
func (a AccountID) IsZero() bool { return a == AccountID{} }

// MarshalText lets account ids be used as map keys in JSON and YAML.
func (a AccountID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AccountID) UnmarshalText(b []byte) error {
	id, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// Compare orders account ids by shard, realm, then number.
func (a AccountID) Compare(b AccountID) int {
	if c := cmp.Compare(a.Shard, b.Shard); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Realm, b.Realm); c != 0 {
		return c
	}
	return cmp.Compare(a.Num, b.Num)
}

// FileID identifies a file entity.
type FileID entityID

func ParseFileID(s string) (FileID, error) {
	e, err := parseEntityID("file id", s)
	return FileID(e), err
}

func (f FileID) String() string { return entityID(f).String() }

// TopicID identifies a consensus topic.
type TopicID entityID

func ParseTopicID(s string) (TopicID, error) {
	e, err := parseEntityID("topic id", s)
	return TopicID(e), err
}

func (t TopicID) String() string { return entityID(t).String() }

// Hbar is an amount in tinybars.
type Hbar int64

const TinybarsPerHbar Hbar = 100_000_000

// HbarFrom converts whole hbars to tinybars.
func HbarFrom(n int64) Hbar {
	return Hbar(n) * TinybarsPerHbar
}

func (h Hbar) Tinybars() int64 { return int64(h) }

func (h Hbar) String() string {
	if h%TinybarsPerHbar == 0 {
		return fmt.Sprintf("%d ℏ", int64(h/TinybarsPerHbar))
	}
	return fmt.Sprintf("%d tℏ", int64(h))
}

// RetryClass is the outcome of classifying one attempt.
type RetryClass int

const (
	RetryFatal RetryClass = iota
	RetryTransport
	RetryApplication
	RetrySuccess
	RetryNewIdentity
)

func (c RetryClass) String() string {
	switch c {
	case RetryFatal:
		return "fatal"
	case RetryTransport:
		return "retryable_transport"
	case RetryApplication:
		return "retryable_application"
	case RetrySuccess:
		return "success"
	case RetryNewIdentity:
		return "requires_new_identity"
	default:
		return fmt.Sprintf("RetryClass(%d)", int(c))
	}
}
