package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Entity ids
// ============================================================================

func TestParseAccountID(t *testing.T) {
	tests := []struct {
		in      string
		want    AccountID
		wantErr bool
	}{
		{in: "0.0.3", want: AccountID{Num: 3}},
		{in: " 1.2.3 ", want: AccountID{Shard: 1, Realm: 2, Num: 3}},
		{in: "0.0", wantErr: true},
		{in: "0.0.x", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccountID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}

func TestAccountIDTextRoundTrip(t *testing.T) {
	id := AccountID{Shard: 0, Realm: 0, Num: 1001}
	text, err := id.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0.0.1001", string(text))

	var back AccountID
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, id, back)
}

// ============================================================================
// Transaction ids
// ============================================================================

func TestGenerateTransactionID_SkewsIntoThePast(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	id := GenerateTransactionID(NewAccountID(1001))
	assert.Equal(t, NewAccountID(1001), id.AccountID)

	skew := fixed.Sub(id.ValidStart)
	assert.GreaterOrEqual(t, skew, 5*time.Second)
	assert.Less(t, skew, 8*time.Second)
}

func TestTransactionID_StringAndParse(t *testing.T) {
	id := TransactionID{
		AccountID:  NewAccountID(1001),
		ValidStart: time.Unix(1700000000, 42).UTC(),
	}
	assert.Equal(t, "0.0.1001@1700000000.000000042", id.String())

	parsed, err := ParseTransactionID(id.String())
	require.NoError(t, err)
	assert.True(t, id.ValidStart.Equal(parsed.ValidStart))
	assert.Equal(t, id.AccountID, parsed.AccountID)

	scheduled := id
	scheduled.Scheduled = true
	scheduled.Nonce = 7
	parsed, err = ParseTransactionID(scheduled.String())
	require.NoError(t, err)
	assert.True(t, parsed.Scheduled)
	assert.Equal(t, int32(7), parsed.Nonce)

	_, err = ParseTransactionID("0.0.1001")
	assert.Error(t, err)
}

func TestTransactionID_WithValidStartOffset(t *testing.T) {
	id := TransactionID{AccountID: NewAccountID(2), ValidStart: time.Unix(10, 0)}
	next := id.WithValidStartOffset(3)

	assert.Equal(t, int64(3), next.ValidStart.Sub(id.ValidStart).Nanoseconds())
	assert.Equal(t, time.Unix(10, 0), id.ValidStart, "original must not change")
}

func TestHashSignedTransaction(t *testing.T) {
	a := HashSignedTransaction([]byte("signed"))
	b := HashSignedTransaction([]byte("signed"))
	c := HashSignedTransaction([]byte("signed!"))

	assert.Len(t, a, 48)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.String(), 96)
}

// ============================================================================
// Chunk info / status / errors
// ============================================================================

func TestChunkInfo(t *testing.T) {
	assert.NoError(t, ChunkInfo{Current: 0, Total: 1}.Validate())
	assert.False(t, ChunkInfo{Current: 0, Total: 1}.Transmitted())
	assert.True(t, ChunkInfo{Current: 2, Total: 3}.Transmitted())
	assert.Error(t, ChunkInfo{Current: 3, Total: 3}.Validate())
	assert.Error(t, ChunkInfo{Current: 0, Total: 0}.Validate())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "BUSY", StatusBusy.String())
	assert.Equal(t, "Status(9999)", Status(9999).String())

	s, ok := ParseStatus("DUPLICATE_TRANSACTION")
	assert.True(t, ok)
	assert.Equal(t, StatusDuplicateTransaction, s)
}

func TestErrorsUnwrap(t *testing.T) {
	last := &PreCheckStatusError{Status: StatusBusy}

	timedOut := error(&TimedOutError{After: time.Second, Last: last})
	assert.True(t, errors.Is(timedOut, ErrTimedOut))

	var pre *PreCheckStatusError
	require.True(t, errors.As(timedOut, &pre))
	assert.Equal(t, StatusBusy, pre.Status)

	maxed := error(&MaxAttemptsExceededError{Attempts: 10, Last: last})
	assert.True(t, errors.Is(maxed, ErrMaxAttemptsExceeded))

	assert.True(t, errors.Is(&UnknownNodeError{NodeID: NewAccountID(99)}, ErrUnknownNode))
	assert.True(t, errors.Is(&MaxChunksExceededError{Required: 30, Max: 20}, ErrMaxChunksExceeded))
}
