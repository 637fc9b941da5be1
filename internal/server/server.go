// Package server is a small in-process ledger ("devnet") that speaks the
// same raw gRPC methods as real consensus and mirror nodes. It backs the
// CLI's devnet command and the end-to-end tests of the SDK.
//
// Every method can be scripted: queued Steps are consumed one per call
// before normal handling, so tests can inject pre-check statuses and
// transport errors in a fixed order.
package server

import (
	"context"
	"crypto/sha512"
	"fmt"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/sign"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Step is one scripted outcome. A non-OK Code fails the RPC with that
// gRPC status; otherwise a non-OK Status is returned as the pre-check
// code. The zero Step lets the call through to normal handling.
type Step struct {
	Code    codes.Code
	Message string
	Status  types.Status
}

// Request is a recorded call.
type Request struct {
	ID     uuid.UUID
	Node   types.AccountID
	Method string
	Body   []byte
	At     time.Time
}

type receipt struct {
	wire.Receipt
	pending int
}

type topicMessage struct {
	resp wire.TopicResponse
}

type topic struct {
	messages []topicMessage
	// changed is closed and replaced whenever a message is appended.
	changed chan struct{}
}

// Ledger holds the state shared by every node of the devnet.
type Ledger struct {
	mu  sync.Mutex
	log zerolog.Logger
	now func() time.Time

	balances map[types.AccountID]int64
	keys     map[types.AccountID]sign.PublicKey
	receipts map[string]*receipt
	files    map[types.FileID][]byte
	topics   map[types.TopicID]*topic
	book     types.AddressBook

	fileCost       types.Hbar
	receiptPending int

	scripts  map[string][]Step
	requests []Request
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(l zerolog.Logger) Option {
	return func(ld *Ledger) { ld.log = l }
}

// WithClock replaces time.Now for valid-start and consensus timestamps.
func WithClock(now func() time.Time) Option {
	return func(ld *Ledger) { ld.now = now }
}

// WithReceiptPending makes every receipt report UNKNOWN for n polls
// before its final status.
func WithReceiptPending(n int) Option {
	return func(ld *Ledger) { ld.receiptPending = n }
}

// WithFileCost sets what a file contents query costs.
func WithFileCost(cost types.Hbar) Option {
	return func(ld *Ledger) { ld.fileCost = cost }
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		log:      zerolog.Nop(),
		now:      time.Now,
		balances: make(map[types.AccountID]int64),
		keys:     make(map[types.AccountID]sign.PublicKey),
		receipts: make(map[string]*receipt),
		files:    make(map[types.FileID][]byte),
		topics:   make(map[types.TopicID]*topic),
		fileCost: 25,
		scripts:  make(map[string][]Step),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ============================================================================
// Setup
// ============================================================================

// CreateAccount funds account and, when key is non-nil, requires its
// signature on every transaction it pays for.
func (l *Ledger) CreateAccount(account types.AccountID, balance types.Hbar, key *sign.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = balance.Tinybars()
	if key != nil {
		l.keys[account] = *key
	}
}

func (l *Ledger) CreateFile(id types.FileID, contents []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files[id] = append([]byte(nil), contents...)
}

func (l *Ledger) CreateTopic(id types.TopicID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.topics[id]; !ok {
		l.topics[id] = &topic{changed: make(chan struct{})}
	}
}

// SetAddressBook is what getNodes streams.
func (l *Ledger) SetAddressBook(book types.AddressBook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.book = book
}

// Script queues steps for method. They apply across all nodes in order.
func (l *Ledger) Script(method string, steps ...Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scripts[method] = append(l.scripts[method], steps...)
}

// ============================================================================
// Inspection
// ============================================================================

func (l *Ledger) Balance(account types.AccountID) types.Hbar {
	l.mu.Lock()
	defer l.mu.Unlock()
	return types.Hbar(l.balances[account])
}

func (l *Ledger) File(id types.FileID) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.files[id]...)
}

// Requests returns the recorded calls of method, or every call when
// method is empty.
func (l *Ledger) Requests(method string) []Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Request
	for _, r := range l.requests {
		if method == "" || r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// ============================================================================
// gRPC plumbing
// ============================================================================

// NodeServer returns a gRPC server answering as consensus node `node`.
func (l *Ledger) NodeServer(node types.AccountID, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ForceServerCodec(network.Codec()),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			return l.serveUnary(node, stream)
		}),
	)
	return grpc.NewServer(opts...)
}

// MirrorServer returns a gRPC server answering as a mirror node.
func (l *Ledger) MirrorServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ForceServerCodec(network.Codec()),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			return l.serveMirror(stream)
		}),
	)
	return grpc.NewServer(opts...)
}

func (l *Ledger) record(node types.AccountID, method string, body []byte) (Request, *Step) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req := Request{ID: uuid.New(), Node: node, Method: method, Body: body, At: l.now()}
	l.requests = append(l.requests, req)

	if steps := l.scripts[method]; len(steps) > 0 {
		step := steps[0]
		l.scripts[method] = steps[1:]
		return req, &step
	}
	return req, nil
}

func (l *Ledger) serveUnary(node types.AccountID, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)

	var body []byte
	if err := stream.RecvMsg(&body); err != nil {
		return err
	}

	req, step := l.record(node, method, body)
	log := l.log.With().Str("request_id", req.ID.String()).Str("node", node.String()).Str("method", method).Logger()

	var (
		resp []byte
		err  error
	)
	switch {
	case step != nil && step.Code != codes.OK:
		log.Debug().Stringer("code", step.Code).Msg("scripted rpc error")
		return status.Error(step.Code, step.Message)
	case step != nil && step.Status != types.StatusOK:
		log.Debug().Stringer("status", step.Status).Msg("scripted pre-check")
		resp = scriptedReply(method, step.Status)
	default:
		resp, err = l.handle(node, method, body)
		if err != nil {
			log.Warn().Err(err).Msg("request rejected")
			return err
		}
	}

	return stream.SendMsg(&resp)
}

func scriptedReply(method string, code types.Status) []byte {
	header := wire.ResponseHeader{PreCheckCode: code}
	switch method {
	case network.MethodCryptoGetBalance:
		return (&wire.Response{Kind: wire.QueryAccountBalance, Header: header}).Marshal()
	case network.MethodGetReceipt:
		return (&wire.Response{Kind: wire.QueryReceipt, Header: header}).Marshal()
	case network.MethodFileGetContents:
		return (&wire.Response{Kind: wire.QueryFileContents, Header: header}).Marshal()
	default:
		return (&wire.TransactionResponse{PreCheckCode: code}).Marshal()
	}
}

func (l *Ledger) handle(node types.AccountID, method string, body []byte) ([]byte, error) {
	switch method {
	case network.MethodCryptoTransfer, network.MethodFileAppend, network.MethodSubmitMessage:
		code := l.submit(node, body)
		return (&wire.TransactionResponse{PreCheckCode: code}).Marshal(), nil
	case network.MethodCryptoGetBalance, network.MethodGetReceipt, network.MethodFileGetContents:
		q, err := wire.UnmarshalQuery(body)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return l.query(node, q).Marshal(), nil
	default:
		return nil, status.Errorf(codes.Unimplemented, "method %s not served by devnet", method)
	}
}

// ============================================================================
// Transactions
// ============================================================================

// decodeSigned unwraps a Transaction envelope and checks the payer's
// signature when the payer has a registered key.
func (l *Ledger) decodeSigned(node types.AccountID, raw []byte) (*wire.TransactionBody, types.Status) {
	signed, err := wire.UnmarshalTransaction(raw)
	if err != nil {
		return nil, types.StatusInvalidTransaction
	}
	st, err := wire.UnmarshalSignedTransaction(signed)
	if err != nil {
		return nil, types.StatusInvalidTransaction
	}
	body, err := wire.UnmarshalTransactionBody(st.BodyBytes)
	if err != nil {
		return nil, types.StatusInvalidTransaction
	}

	if body.NodeAccountID != node {
		return body, types.StatusInvalidNodeAccount
	}

	payer := body.TransactionID.AccountID
	if _, ok := l.balances[payer]; !ok {
		return body, types.StatusPayerAccountNotFound
	}
	if key, ok := l.keys[payer]; ok && !signedBy(key, st) {
		return body, types.StatusInvalidSignature
	}

	now := l.now()
	start := body.TransactionID.ValidStart
	if start.After(now) {
		return body, types.StatusInvalidTransactionStart
	}
	if start.Add(body.ValidDuration).Before(now) {
		return body, types.StatusTransactionExpired
	}
	return body, types.StatusOK
}

func signedBy(key sign.PublicKey, st *wire.SignedTransaction) bool {
	for _, pair := range st.SigPairs {
		if string(pair.PubKeyPrefix) != string(key.Bytes) {
			continue
		}
		sig := pair.Ed25519
		if key.Algorithm == sign.ECDSASecp256k1 {
			sig = pair.ECDSASecp256k1
		}
		if key.Verify(st.BodyBytes, sig) {
			return true
		}
	}
	return false
}

func (l *Ledger) submit(node types.AccountID, raw []byte) types.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	body, code := l.decodeSigned(node, raw)
	if code != types.StatusOK {
		return code
	}

	key := body.TransactionID.String()
	if _, dup := l.receipts[key]; dup {
		return types.StatusDuplicateTransaction
	}

	r := &receipt{pending: l.receiptPending}
	r.Status = l.apply(body, &r.Receipt)
	l.receipts[key] = r

	l.log.Debug().Str("transaction_id", key).Stringer("status", r.Status).Msg("transaction reached consensus")
	return types.StatusOK
}

// apply runs the transaction against the state. Called with mu held.
func (l *Ledger) apply(body *wire.TransactionBody, out *wire.Receipt) types.Status {
	switch data := body.Data.(type) {
	case *wire.CryptoTransfer:
		return l.transfer(data.Transfers)

	case *wire.FileAppend:
		if _, ok := l.files[data.FileID]; !ok {
			return types.StatusInvalidFileID
		}
		l.files[data.FileID] = append(l.files[data.FileID], data.Contents...)
		id := data.FileID
		out.FileID = &id
		return types.StatusSuccess

	case *wire.ConsensusSubmitMessage:
		t, ok := l.topics[data.TopicID]
		if !ok {
			return types.StatusInvalidTopicID
		}
		seq, hash := l.appendMessage(t, data)
		id := data.TopicID
		out.TopicID = &id
		out.TopicSequenceNumber = seq
		out.TopicRunningHash = hash
		return types.StatusSuccess

	default:
		return types.StatusNotSupported
	}
}

func (l *Ledger) transfer(legs []wire.AccountAmount) types.Status {
	var sum int64
	for _, leg := range legs {
		if _, ok := l.balances[leg.AccountID]; !ok {
			return types.StatusInvalidAccountID
		}
		if l.balances[leg.AccountID]+leg.Amount < 0 {
			return types.StatusInsufficientPayerBalance
		}
		sum += leg.Amount
	}
	if sum != 0 {
		return types.StatusFailInvalid
	}
	for _, leg := range legs {
		l.balances[leg.AccountID] += leg.Amount
	}
	return types.StatusSuccess
}

func (l *Ledger) appendMessage(t *topic, data *wire.ConsensusSubmitMessage) (uint64, []byte) {
	seq := uint64(len(t.messages)) + 1

	var prev []byte
	if n := len(t.messages); n > 0 {
		prev = t.messages[n-1].resp.RunningHash
	}
	h := sha512.New384()
	h.Write(prev)
	h.Write([]byte(strconv.FormatUint(seq, 10)))
	h.Write(data.Message)

	t.messages = append(t.messages, topicMessage{resp: wire.TopicResponse{
		ConsensusTimestamp: l.now().UTC(),
		Message:            append([]byte(nil), data.Message...),
		RunningHash:        h.Sum(nil),
		SequenceNumber:     seq,
		RunningHashVersion: 3,
		ChunkInfo:          data.ChunkInfo,
	}})

	close(t.changed)
	t.changed = make(chan struct{})
	return seq, t.messages[len(t.messages)-1].resp.RunningHash
}

// ============================================================================
// Queries
// ============================================================================

func (l *Ledger) query(node types.AccountID, q *wire.Query) *wire.Response {
	l.mu.Lock()
	defer l.mu.Unlock()

	resp := &wire.Response{Kind: q.Kind, Header: wire.ResponseHeader{ResponseType: q.Header.ResponseType}}
	fail := func(code types.Status) *wire.Response {
		resp.Header.PreCheckCode = code
		return resp
	}

	switch q.Kind {
	case wire.QueryAccountBalance:
		bal, ok := l.balances[q.AccountID]
		if !ok {
			return fail(types.StatusInvalidAccountID)
		}
		resp.AccountID = q.AccountID
		resp.Balance = uint64(bal)

	case wire.QueryReceipt:
		r, ok := l.receipts[q.TransactionID.String()]
		if !ok {
			return fail(types.StatusReceiptNotFound)
		}
		if r.pending > 0 {
			r.pending--
			resp.Receipt = &wire.Receipt{Status: types.StatusUnknown}
			return resp
		}
		final := r.Receipt
		resp.Receipt = &final

	case wire.QueryFileContents:
		if code := l.checkPayment(node, q.Header); code != types.StatusOK {
			return fail(code)
		}
		if q.Header.ResponseType == wire.CostAnswer {
			resp.Header.Cost = uint64(l.fileCost.Tinybars())
			return resp
		}
		contents, ok := l.files[q.FileID]
		if !ok {
			return fail(types.StatusInvalidFileID)
		}
		resp.FileID = q.FileID
		resp.FileContents = append([]byte(nil), contents...)
	}
	return resp
}

// checkPayment validates the payment transaction of a paid query. Cost
// lookups must carry one too, but may pay zero. Called with mu held.
func (l *Ledger) checkPayment(node types.AccountID, h wire.QueryHeader) types.Status {
	if len(h.Payment) == 0 {
		return types.StatusInvalidTransaction
	}
	body, code := l.decodeSigned(node, h.Payment)
	if code != types.StatusOK {
		return code
	}
	transfer, ok := body.Data.(*wire.CryptoTransfer)
	if !ok {
		return types.StatusInvalidTransaction
	}
	if h.ResponseType == wire.CostAnswer {
		return types.StatusOK
	}

	var paid int64
	for _, leg := range transfer.Transfers {
		if leg.AccountID == node {
			paid += leg.Amount
		}
	}
	if paid < l.fileCost.Tinybars() {
		return types.StatusInsufficientTxFee
	}
	if code := l.transfer(transfer.Transfers); code != types.StatusSuccess {
		return code
	}
	return types.StatusOK
}

// ============================================================================
// Mirror
// ============================================================================

func (l *Ledger) serveMirror(stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)

	var body []byte
	if err := stream.RecvMsg(&body); err != nil {
		return err
	}

	_, step := l.record(types.AccountID{}, method, body)
	if step != nil && step.Code != codes.OK {
		return status.Error(step.Code, step.Message)
	}

	switch method {
	case network.MethodMirrorSubscribe:
		q, err := wire.UnmarshalTopicQuery(body)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		return l.streamTopic(stream, q)

	case network.MethodMirrorAddressBook:
		q, err := wire.UnmarshalAddressBookQuery(body)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		return l.streamNodes(stream, q)

	default:
		return status.Errorf(codes.Unimplemented, "method %s not served by devnet mirror", method)
	}
}

// streamTopic sends stored messages from StartTime on, then follows new
// ones until Limit, EndTime or the client goes away.
func (l *Ledger) streamTopic(stream grpc.ServerStream, q *wire.TopicQuery) error {
	ctx := stream.Context()
	var sent uint64
	next := 0

	for {
		l.mu.Lock()
		t, ok := l.topics[q.TopicID]
		if !ok {
			l.mu.Unlock()
			return status.Errorf(codes.NotFound, "topic %s does not exist", q.TopicID)
		}
		batch := t.messages[next:]
		next = len(t.messages)
		changed := t.changed
		l.mu.Unlock()

		for _, m := range batch {
			ts := m.resp.ConsensusTimestamp
			if !q.StartTime.IsZero() && ts.Before(q.StartTime) {
				continue
			}
			if !q.EndTime.IsZero() && !ts.Before(q.EndTime) {
				return nil
			}
			out := m.resp.Marshal()
			if err := stream.SendMsg(&out); err != nil {
				return err
			}
			sent++
			if q.Limit > 0 && sent >= q.Limit {
				return nil
			}
		}

		if !q.EndTime.IsZero() && !l.now().Before(q.EndTime) {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		}
	}
}

func (l *Ledger) streamNodes(stream grpc.ServerStream, q *wire.AddressBookQuery) error {
	l.mu.Lock()
	nodes := append([]types.NodeAddress(nil), l.book.Nodes...)
	l.mu.Unlock()

	for i, n := range nodes {
		if q.Limit > 0 && i >= int(q.Limit) {
			break
		}
		out, err := nodeAddress(n)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		msg := out.Marshal()
		if err := stream.SendMsg(&msg); err != nil {
			return err
		}
	}
	return nil
}

func nodeAddress(n types.NodeAddress) (*wire.NodeAddress, error) {
	out := &wire.NodeAddress{
		NodeID:        n.NodeID,
		NodeAccountID: n.AccountID,
		Description:   n.Description,
		Stake:         n.Stake,
	}
	for _, ep := range n.Endpoints {
		ap, err := netip.ParseAddrPort(ep)
		if err == nil && ap.Addr().Is4() {
			out.Endpoints = append(out.Endpoints, wire.ServiceEndpoint{IPv4: ap.Addr(), Port: int32(ap.Port())})
			continue
		}
		host, port, err := splitHostPort(ep)
		if err != nil {
			return nil, fmt.Errorf("node %s endpoint %q: %w", n.AccountID, ep, err)
		}
		out.Endpoints = append(out.Endpoints, wire.ServiceEndpoint{DomainName: host, Port: port})
	}
	return out, nil
}

// Serve runs the devnet on TCP until ctx is done.
func (l *Ledger) Serve(ctx context.Context, nodes map[types.AccountID]string, mirrorAddr string) error {
	return serveTCP(ctx, l, nodes, mirrorAddr)
}
