package types

// ============================================================================
// Error taxonomy
// Every terminal error surfaced by the execution and subscription engines
// is one of the types below; transient conditions are absorbed internally.
// ============================================================================

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoPayerAccountOrTransactionID: the request needs an identity and
	// neither an explicit transaction id nor an operator payer is set.
	ErrNoPayerAccountOrTransactionID = errors.New("types: no payer account or transaction id")

	// ErrUnknownNode: a node id is not present in the node directory.
	ErrUnknownNode = errors.New("types: node account id unknown to the network")

	// ErrTimedOut: the overall deadline or a bounded backoff ran out.
	ErrTimedOut = errors.New("types: operation timed out")

	// ErrMaxAttemptsExceeded: the bounded retry budget is exhausted.
	ErrMaxAttemptsExceeded = errors.New("types: max attempts exceeded")

	// ErrMaxChunksExceeded: the payload needs more chunks than allowed.
	ErrMaxChunksExceeded = errors.New("types: payload requires more chunks than allowed")
)

// ConfigurationError is a user error detected before any network attempt.
type ConfigurationError struct {
	Reason string
	Cause  error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Cause)
	}
	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// UnknownNodeError names the node the directory could not resolve.
type UnknownNodeError struct {
	NodeID AccountID
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("node %s: unknown to the network", e.NodeID)
}

func (e *UnknownNodeError) Unwrap() error { return ErrUnknownNode }

// TransportError is a gRPC failure that was not absorbed by retries.
type TransportError struct {
	NodeID AccountID
	Cause  error
}

func (e *TransportError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("transport: %v", e.Cause)
	}
	return fmt.Sprintf("transport to node %s: %v", e.NodeID, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// PreCheckStatusError is a synchronous rejection by a node. Payment is set
// when the rejected identity belongs to the payment transaction of a paid
// query rather than the request itself.
type PreCheckStatusError struct {
	Status        Status
	TransactionID TransactionID
	NodeID        AccountID
	Payment       bool
}

func (e *PreCheckStatusError) Error() string {
	kind := "transaction"
	if e.Payment {
		kind = "query payment transaction"
	}
	if e.TransactionID.IsZero() {
		return fmt.Sprintf("%s failed pre-check with status %s", kind, e.Status)
	}
	return fmt.Sprintf("%s %s failed pre-check with status %s", kind, e.TransactionID, e.Status)
}

// ReceiptStatusError reports a final receipt that did not reach SUCCESS.
type ReceiptStatusError struct {
	Status        Status
	TransactionID TransactionID
}

func (e *ReceiptStatusError) Error() string {
	return fmt.Sprintf("receipt for transaction %s contained error status %s", e.TransactionID, e.Status)
}

// TimedOutError wraps the last concrete error observed before the deadline.
type TimedOutError struct {
	After time.Duration
	Last  error
}

func (e *TimedOutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("timed out after %s", e.After)
	}
	return fmt.Sprintf("timed out after %s: %v", e.After, e.Last)
}

func (e *TimedOutError) Is(target error) bool { return target == ErrTimedOut }

func (e *TimedOutError) Unwrap() error { return e.Last }

// MaxAttemptsExceededError wraps the last error after the bounded retry
// budget ran out.
type MaxAttemptsExceededError struct {
	Attempts int
	Last     error
}

func (e *MaxAttemptsExceededError) Error() string {
	return fmt.Sprintf("exceeded maximum attempts (%d): %v", e.Attempts, e.Last)
}

func (e *MaxAttemptsExceededError) Is(target error) bool { return target == ErrMaxAttemptsExceeded }

func (e *MaxAttemptsExceededError) Unwrap() error { return e.Last }

// SigningError is raised by a signer; it is never retried.
type SigningError struct {
	Signer string
	Cause  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signer %s: %v", e.Signer, e.Cause)
}

func (e *SigningError) Unwrap() error { return e.Cause }

// FromWireError indicates bytes that do not decode as the expected message.
type FromWireError struct {
	Message string
	Cause   error
}

func (e *FromWireError) Error() string {
	if e.Cause == nil {
		return "decode " + e.Message
	}
	return fmt.Sprintf("decode %s: %v", e.Message, e.Cause)
}

func (e *FromWireError) Unwrap() error { return e.Cause }

// MaxChunksExceededError is returned before any network attempt.
type MaxChunksExceededError struct {
	Required int
	Max      int
}

func (e *MaxChunksExceededError) Error() string {
	return fmt.Sprintf("message requires %d chunks but max chunks is %d", e.Required, e.Max)
}

func (e *MaxChunksExceededError) Unwrap() error { return ErrMaxChunksExceeded }

// MaxQueryPaymentExceededError: the node quoted more than the caller allows.
type MaxQueryPaymentExceededError struct {
	Cost Hbar
	Max  Hbar
}

func (e *MaxQueryPaymentExceededError) Error() string {
	return fmt.Sprintf("query cost of %s exceeds max set on client %s", e.Cost, e.Max)
}
