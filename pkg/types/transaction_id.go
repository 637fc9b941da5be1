package types

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// TransactionID names one submission lineage: payer plus valid start.
// Once a request has been signed against an id that id must not change;
// retries after a duplicate or expired rejection use a fresh id.
type TransactionID struct {
	AccountID  AccountID `json:"account_id"`
	ValidStart time.Time `json:"valid_start"`
	Scheduled  bool      `json:"scheduled,omitempty"`
	Nonce      int32     `json:"nonce,omitempty"`
}

// now is swapped in tests.
var now = time.Now

// GenerateTransactionID returns a new id for payer. The valid start is
// pushed 5 to 8 seconds into the past so that small clock drift between
// the client and the nodes does not produce INVALID_TRANSACTION_START.
func GenerateTransactionID(payer AccountID) TransactionID {
	skew := time.Duration(5_000_000_000 + rand.Int64N(3_000_000_000))
	return TransactionID{
		AccountID:  payer,
		ValidStart: now().Add(-skew).UTC(),
	}
}

// WithValidStartOffset returns the id whose valid start is n nanoseconds
// after this one. Chunked operations derive each chunk's id this way.
func (id TransactionID) WithValidStartOffset(n int) TransactionID {
	out := id
	out.ValidStart = id.ValidStart.Add(time.Duration(n))
	return out
}

func (id TransactionID) IsZero() bool {
	return id.AccountID.IsZero() && id.ValidStart.IsZero()
}

// String renders the id as "0.0.1001@1700000000.000000042", with the
// "?scheduled" and "/nonce" suffixes when present.
func (id TransactionID) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%d.%09d", id.AccountID, id.ValidStart.Unix(), id.ValidStart.Nanosecond())
	if id.Scheduled {
		b.WriteString("?scheduled")
	}
	if id.Nonce != 0 {
		fmt.Fprintf(&b, "/%d", id.Nonce)
	}
	return b.String()
}

// ParseTransactionID is the inverse of String.
func ParseTransactionID(s string) (TransactionID, error) {
	var id TransactionID

	account, rest, ok := strings.Cut(s, "@")
	if !ok {
		return id, fmt.Errorf("invalid transaction id %q: missing '@'", s)
	}

	payer, err := ParseAccountID(account)
	if err != nil {
		return id, fmt.Errorf("invalid transaction id %q: %w", s, err)
	}
	id.AccountID = payer

	if head, nonce, ok := strings.Cut(rest, "/"); ok {
		n, err := strconv.ParseInt(nonce, 10, 32)
		if err != nil {
			return id, fmt.Errorf("invalid transaction id %q: bad nonce: %w", s, err)
		}
		id.Nonce = int32(n)
		rest = head
	}

	if head, ok := strings.CutSuffix(rest, "?scheduled"); ok {
		id.Scheduled = true
		rest = head
	}

	secs, nanos, ok := strings.Cut(rest, ".")
	if !ok {
		return id, fmt.Errorf("invalid transaction id %q: valid start must be seconds.nanos", s)
	}
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return id, fmt.Errorf("invalid transaction id %q: %w", s, err)
	}
	nsec, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil || nsec < 0 || nsec > 999_999_999 {
		return id, fmt.Errorf("invalid transaction id %q: bad nanos", s)
	}
	id.ValidStart = time.Unix(sec, nsec).UTC()

	return id, nil
}

// TransactionHash is the SHA-384 digest of a fully encoded signed
// transaction. It is what receipt and record lookups are keyed on.
type TransactionHash [sha512.Size384]byte

// HashSignedTransaction computes the hash over the signed transaction bytes.
func HashSignedTransaction(signed []byte) TransactionHash {
	return TransactionHash(sha512.Sum384(signed))
}

func (h TransactionHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h TransactionHash) IsZero() bool {
	return h == TransactionHash{}
}

// ChunkInfo marks one sub-request of a chunked operation.
type ChunkInfo struct {
	InitialID     TransactionID `json:"initial_transaction_id"`
	Current       int           `json:"current"`
	Total         int           `json:"total"`
	NodeAccountID AccountID     `json:"node_account_id"`
}

// Validate enforces current < total.
func (c ChunkInfo) Validate() error {
	if c.Total < 1 {
		return fmt.Errorf("chunk info: total must be positive, got %d", c.Total)
	}
	if c.Current < 0 || c.Current >= c.Total {
		return fmt.Errorf("chunk info: current %d out of range [0, %d)", c.Current, c.Total)
	}
	return nil
}

// Transmitted reports whether the chunk info goes on the wire at all;
// a single-chunk operation is framed as a plain transaction.
func (c ChunkInfo) Transmitted() bool {
	return c.Total > 1
}
