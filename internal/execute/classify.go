package execute

import (
	"context"
	"errors"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ClassifyTransport sorts a failed RPC. Unavailable and ResourceExhausted
// mean the node is unreachable or throttling; so does a per-attempt
// deadline that fired while the caller's context is still alive. All other
// codes are fatal.
func ClassifyTransport(ctx context.Context, err error) types.RetryClass {
	if err == nil {
		return types.RetrySuccess
	}
	if ctx.Err() != nil {
		return types.RetryFatal
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted:
		return types.RetryTransport
	case codes.DeadlineExceeded:
		return types.RetryTransport
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.RetryTransport
	}
	return types.RetryFatal
}

// ClassifyStatus sorts a pre-check code. canRegenerate is false when the
// caller pinned the transaction id, in which case expiry is fatal.
func ClassifyStatus(code types.Status, exec Executable, canRegenerate bool) types.RetryClass {
	switch code {
	case types.StatusOK:
		return types.RetrySuccess
	case types.StatusBusy, types.StatusPlatformTransactionNotCreated:
		return types.RetryApplication
	case types.StatusTransactionExpired, types.StatusDuplicateTransaction:
		if canRegenerate {
			return types.RetryNewIdentity
		}
		return types.RetryFatal
	}

	if exec != nil && exec.ShouldRetryPreCheck(code) {
		return types.RetryApplication
	}
	return types.RetryFatal
}
