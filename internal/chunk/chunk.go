// Package chunk splits an oversize payload into ordered parts that are
// submitted one after another, each under its own transaction id.
package chunk

import (
	"context"
	"fmt"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

const (
	DefaultMaxChunks = 20
	DefaultChunkSize = 1024
)

// Data is the payload plus the limits to split it with. Zero limits fall
// back to the defaults.
type Data struct {
	Payload   []byte
	ChunkSize int
	MaxChunks int
}

// Plan is a validated split of a payload.
type Plan struct {
	payload []byte
	size    int
	total   int
}

// NewPlan computes total = max(1, ceil(len/size)) and rejects payloads
// that need more than MaxChunks parts. Nothing is sent before this check.
func NewPlan(d Data) (Plan, error) {
	size := d.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	maxChunks := d.MaxChunks
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}

	total := (len(d.Payload) + size - 1) / size
	if total == 0 {
		total = 1
	}
	if total > maxChunks {
		return Plan{}, &types.MaxChunksExceededError{Required: total, Max: maxChunks}
	}
	return Plan{payload: d.Payload, size: size, total: total}, nil
}

// Total is the number of parts.
func (p Plan) Total() int { return p.total }

// ChunkSize is the size of every part but the last.
func (p Plan) ChunkSize() int { return p.size }

// Chunk returns the bytes of part i (0-based). The slice aliases the
// payload.
func (p Plan) Chunk(i int) []byte {
	start := i * p.size
	if start >= len(p.payload) {
		return nil
	}
	end := min(start+p.size, len(p.payload))
	return p.payload[start:end]
}

// Sizes lists the byte length of every part.
func (p Plan) Sizes() []int {
	out := make([]int, p.total)
	for i := range out {
		out[i] = len(p.Chunk(i))
	}
	return out
}

// Part is one chunk ready to be built into a request.
type Part struct {
	// Index is 0-based.
	Index int
	Total int
	// InitialID is the id of part 0; the ledger groups parts by it.
	InitialID types.TransactionID
	// TransactionID is InitialID shifted by Index nanoseconds.
	TransactionID types.TransactionID
	Bytes         []byte
}

// Info is the chunk header carried by multi-part messages.
func (p Part) Info(node types.AccountID) types.ChunkInfo {
	return types.ChunkInfo{
		InitialID:     p.InitialID,
		Current:       p.Index,
		Total:         p.Total,
		NodeAccountID: node,
	}
}

// Transmitted reports whether the part is framed as a chunk on the wire.
// A one-part plan is sent as a plain transaction under a free identity.
func (p Part) Transmitted() bool {
	return p.Info(types.AccountID{}).Transmitted()
}

// Part returns part i of the plan under initialID.
func (p Plan) Part(i int, initialID types.TransactionID) Part {
	return Part{
		Index:         i,
		Total:         p.total,
		InitialID:     initialID,
		TransactionID: initialID.WithValidStartOffset(i),
		Bytes:         p.Chunk(i),
	}
}

// ExecFunc submits one part.
type ExecFunc[R any] func(ctx context.Context, part Part) (R, error)

// ConfirmFunc waits until a submitted part is final. The next part is
// built only after it returns nil.
type ConfirmFunc[R any] func(ctx context.Context, part Part, result R) error

// Run submits every part strictly in order and returns one result per
// submitted part. On error it returns the results gathered so far;
// later parts are never sent. confirm may be nil.
func Run[R any](ctx context.Context, plan Plan, initialID types.TransactionID, exec ExecFunc[R], confirm ConfirmFunc[R]) ([]R, error) {
	results := make([]R, 0, plan.total)

	for i := range plan.total {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("chunk %d/%d: %w", i+1, plan.total, err)
		}

		part := plan.Part(i, initialID)
		res, err := exec(ctx, part)
		if err != nil {
			return results, fmt.Errorf("chunk %d/%d: %w", i+1, plan.total, err)
		}
		results = append(results, res)

		if confirm != nil {
			if err := confirm(ctx, part, res); err != nil {
				return results, fmt.Errorf("confirm chunk %d/%d: %w", i+1, plan.total, err)
			}
		}
	}
	return results, nil
}
