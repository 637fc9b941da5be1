package sdk

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"io"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashgraph/hedera-sdk-core/internal/mirror"
	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"google.golang.org/grpc/codes"
)

// ErrSubscriptionClosed is returned by Recv after the subscription has
// reported its terminal error or been closed.
var ErrSubscriptionClosed = mirror.ErrClosed

// TopicMessageQuery subscribes to the messages of a topic.
type TopicMessageQuery struct {
	TopicID   types.TopicID
	StartTime time.Time
	EndTime   time.Time
	// Limit stops the stream after that many messages; zero is unlimited.
	Limit uint64
	// Timeout bounds how long a missing topic is retried; zero uses
	// mirror.DefaultTimeout.
	Timeout time.Duration
}

func (q *TopicMessageQuery) Name() string   { return "TopicMessageQuery" }
func (q *TopicMessageQuery) Method() string { return network.MethodMirrorSubscribe }

func (q *TopicMessageQuery) Request() []byte {
	return (&wire.TopicQuery{
		TopicID:   q.TopicID,
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Limit:     q.Limit,
	}).Marshal()
}

// ShouldRetry retries NotFound: a freshly created topic may not have
// reached the mirror yet.
func (q *TopicMessageQuery) ShouldRetry(code codes.Code) bool {
	return code == codes.NotFound
}

// Subscribe opens the subscription. Nothing is sent until the first Recv.
func (q *TopicMessageQuery) Subscribe(ctx context.Context, client *Client) *TopicSubscription {
	return &TopicSubscription{
		sub:     mirror.Subscribe(ctx, client.mirror, q, client.mirrorOptions(q.Timeout)),
		pending: map[string]map[int32]*wire.TopicResponse{},
	}
}

// TopicMessageChunk is one received part of a message.
type TopicMessageChunk struct {
	ConsensusTimestamp time.Time
	ContentSize        int
	RunningHash        []byte
	SequenceNumber     uint64
}

// TopicMessage is a complete message. For chunked messages the metadata
// of the last chunk is promoted and every chunk is listed in Chunks.
type TopicMessage struct {
	ConsensusTimestamp time.Time
	Contents           []byte
	RunningHash        []byte
	SequenceNumber     uint64
	Chunks             []TopicMessageChunk
	// TransactionID is the initial id of a chunked message, nil otherwise.
	TransactionID *types.TransactionID
}

// TopicSubscription yields whole messages, holding back the chunks of a
// multi-part message until every part has arrived.
type TopicSubscription struct {
	sub *mirror.Subscription
	// pending chunks by initial id, then by chunk number; a chunk replayed
	// after a reconnect replaces its earlier copy.
	pending map[string]map[int32]*wire.TopicResponse
}

func (s *TopicSubscription) ID() uuid.UUID { return s.sub.ID() }

func (s *TopicSubscription) State() mirror.State { return s.sub.State() }

// Recv returns the next complete message, io.EOF when the stream ended
// cleanly, or the subscription's terminal error.
func (s *TopicSubscription) Recv(ctx context.Context) (*TopicMessage, error) {
	for {
		raw, err := s.sub.Recv(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := wire.UnmarshalTopicResponse(raw)
		if err != nil {
			s.sub.Close()
			return nil, err
		}
		if msg := s.assemble(resp); msg != nil {
			return msg, nil
		}
	}
}

func (s *TopicSubscription) assemble(resp *wire.TopicResponse) *TopicMessage {
	info := resp.ChunkInfo
	if info == nil || info.Total <= 1 {
		return &TopicMessage{
			ConsensusTimestamp: resp.ConsensusTimestamp,
			Contents:           resp.Message,
			RunningHash:        resp.RunningHash,
			SequenceNumber:     resp.SequenceNumber,
			Chunks:             []TopicMessageChunk{chunkOf(resp)},
		}
	}

	if info.Number < 1 || info.Number > info.Total {
		return nil
	}

	key := info.InitialID.String()
	byNumber, ok := s.pending[key]
	if !ok {
		byNumber = make(map[int32]*wire.TopicResponse, info.Total)
		s.pending[key] = byNumber
	}
	byNumber[info.Number] = resp
	if len(byNumber) < int(info.Total) {
		return nil
	}
	delete(s.pending, key)

	parts := slices.SortedFunc(maps.Values(byNumber), func(a, b *wire.TopicResponse) int {
		return cmp.Compare(a.ChunkInfo.Number, b.ChunkInfo.Number)
	})

	var contents bytes.Buffer
	chunks := make([]TopicMessageChunk, len(parts))
	for i, p := range parts {
		contents.Write(p.Message)
		chunks[i] = chunkOf(p)
	}
	last := parts[len(parts)-1]
	id := info.InitialID
	return &TopicMessage{
		ConsensusTimestamp: last.ConsensusTimestamp,
		Contents:           contents.Bytes(),
		RunningHash:        last.RunningHash,
		SequenceNumber:     last.SequenceNumber,
		Chunks:             chunks,
		TransactionID:      &id,
	}
}

func chunkOf(r *wire.TopicResponse) TopicMessageChunk {
	return TopicMessageChunk{
		ConsensusTimestamp: r.ConsensusTimestamp,
		ContentSize:        len(r.Message),
		RunningHash:        r.RunningHash,
		SequenceNumber:     r.SequenceNumber,
	}
}

// Close ends the subscription. Safe to call from any goroutine.
func (s *TopicSubscription) Close() { s.sub.Close() }

// All ranges over complete messages until the stream ends or fails, and
// closes the subscription when the loop exits.
func (s *TopicSubscription) All(ctx context.Context) iter.Seq2[*TopicMessage, error] {
	return func(yield func(*TopicMessage, error) bool) {
		defer s.Close()
		for {
			msg, err := s.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}
