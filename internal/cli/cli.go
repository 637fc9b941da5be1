// ============================================================================
// ledgerctl - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra front end over the client execution layer
//
// Command Structure:
//   ledgerctl                      # Root command
//   ├── --config, -c               # Config file (YAML or TOML)
//   ├── --log-level                # Override log.level from the config
//   ├── --metrics-addr             # Serve /metrics on this address
//   ├── transfer                   # Move hbar from the operator
//   ├── submit-message             # Submit a (possibly chunked) topic message
//   ├── append-file                # Append (possibly chunked) file contents
//   ├── balance                    # Query an account balance
//   ├── file-contents              # Paid query for a file's contents
//   ├── receipt                    # Fetch a transaction receipt
//   ├── subscribe                  # Follow a topic through the mirror
//   ├── network refresh            # Fetch the address book, cache it
//   ├── devnet                     # Run an in-process ledger on TCP
//   └── status                     # Show config, network and cache state
//
// Configuration Management:
//   See internal/config. HEDERA_* environment variables override the file.
//   When address_book.path points at a cached address book written by
//   "network refresh", the node list is seeded from it and entries in the
//   config's network section take precedence.
//
// Long-running commands (subscribe, devnet):
//   - Stop on SIGINT / SIGTERM
//   - subscribe watches the config file and applies fee and network
//     changes to the live client
//   - Metrics are served while the command runs
//
// Examples:
//   ledgerctl devnet -c devnet.yaml --topics 0.0.5
//   ledgerctl transfer -c devnet.yaml --to 0.0.1002 --tinybars 1000 --wait
//   ledgerctl submit-message -c devnet.yaml --topic 0.0.5 --message-file big.txt
//   ledgerctl subscribe -c devnet.yaml --topic 0.0.5 --limit 10
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/hashgraph/hedera-sdk-core/internal/config"
	"github.com/hashgraph/hedera-sdk-core/internal/metrics"
	"github.com/hashgraph/hedera-sdk-core/internal/server"
	"github.com/hashgraph/hedera-sdk-core/internal/snapshot"
	"github.com/hashgraph/hedera-sdk-core/pkg/sdk"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

var (
	configFile  string
	logLevel    string
	metricsAddr string
)

// BuildCLI creates the root command and all subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Submit transactions and queries to a ledger network",
		Long: `ledgerctl drives the client execution layer from the command line:
node selection, retries, chunking, signing and mirror subscriptions.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides log.level)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(buildTransferCommand())
	rootCmd.AddCommand(buildSubmitMessageCommand())
	rootCmd.AddCommand(buildAppendFileCommand())
	rootCmd.AddCommand(buildBalanceCommand())
	rootCmd.AddCommand(buildFileContentsCommand())
	rootCmd.AddCommand(buildReceiptCommand())
	rootCmd.AddCommand(buildSubscribeCommand())
	rootCmd.AddCommand(buildNetworkCommand())
	rootCmd.AddCommand(buildDevnetCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

// ============================================================================
// Session
// ============================================================================

// session is what every network command runs against.
type session struct {
	cfg       *config.Config
	log       zerolog.Logger
	client    *sdk.Client
	snapshots *snapshot.Manager
	metrics   string
	out       io.Writer
}

var (
	collectorOnce sync.Once
	collector     *metrics.Collector
)

// sharedCollector registers the metrics once per process.
func sharedCollector() *metrics.Collector {
	collectorOnce.Do(func() { collector = metrics.NewCollector() })
	return collector
}

func openSession(cmd *cobra.Command, dial ...grpc.DialOption) (*session, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg, logLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	addrs, err := cfg.Addresses()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log, out: cmd.OutOrStdout(), metrics: metricsAddr}
	if s.metrics == "" {
		s.metrics = cfg.Metrics.Listen
	}

	if cfg.AddressBook.Path != "" {
		s.snapshots = snapshot.NewManager(cfg.AddressBook.Path)
		addrs, err = seedAddresses(s.snapshots, addrs, log)
		if err != nil {
			return nil, err
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("no consensus nodes configured (set network or refresh the address book)")
	}

	opts := []sdk.Option{sdk.WithLogger(log)}
	if s.metrics != "" {
		opts = append(opts, sdk.WithObserver(sharedCollector()))
	}

	client, err := sdk.NewClientWithAddresses(cfg, addrs, dial, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	s.client = client
	return s, nil
}

func (s *session) Close() error {
	return s.client.Close()
}

// seedAddresses merges the cached address book under the configured nodes.
func seedAddresses(m *snapshot.Manager, configured map[types.AccountID]string, log zerolog.Logger) (map[types.AccountID]string, error) {
	data, err := m.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load address book cache: %w", err)
	}

	merged := data.Book.Addresses()
	for node, addr := range configured {
		merged[node] = addr
	}
	if len(data.Book.Nodes) > 0 {
		log.Debug().
			Int("cached", len(data.Book.Nodes)).
			Dur("age", data.Age(time.Now())).
			Msg("seeded network from address book cache")
	}
	return merged, nil
}

// serveMetrics runs the metrics endpoint in g when an address is set.
func (s *session) serveMetrics(ctx context.Context, g *errgroup.Group) {
	if s.metrics == "" {
		return
	}
	g.Go(func() error {
		s.log.Info().Str("addr", s.metrics).Msg("serving metrics")
		return metrics.Serve(ctx, s.metrics)
	})
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the zerolog logger described by cfg.Log; a non-empty
// level overrides the configured one.
func newLogger(cfg *config.Config, level string, w io.Writer) (zerolog.Logger, error) {
	if level == "" {
		level = cfg.Log.Level
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch cfg.Log.Format {
	case "json":
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// withSession opens a session, runs fn, and closes it.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(cmd.Context(), s)
}

// ============================================================================
// Flag helpers
// ============================================================================

// entityFlag is a pflag.Value for "shard.realm.num" ids.
type entityFlag[T any] struct {
	parse func(string) (T, error)
	value T
	raw   string
}

func (f *entityFlag[T]) String() string { return f.raw }
func (f *entityFlag[T]) Type() string   { return "entity" }

func (f *entityFlag[T]) Set(s string) error {
	v, err := f.parse(s)
	if err != nil {
		return err
	}
	f.value, f.raw = v, s
	return nil
}

func accountFlag(fs *pflag.FlagSet, name, usage string) *entityFlag[types.AccountID] {
	f := &entityFlag[types.AccountID]{parse: types.ParseAccountID}
	fs.Var(f, name, usage)
	return f
}

func topicFlag(fs *pflag.FlagSet, name, usage string) *entityFlag[types.TopicID] {
	f := &entityFlag[types.TopicID]{parse: types.ParseTopicID}
	fs.Var(f, name, usage)
	return f
}

func fileFlag(fs *pflag.FlagSet, name, usage string) *entityFlag[types.FileID] {
	f := &entityFlag[types.FileID]{parse: types.ParseFileID}
	fs.Var(f, name, usage)
	return f
}

// feeFlag adds --max-fee in tinybars; zero leaves the client default.
func feeFlag(fs *pflag.FlagSet) *int64 {
	return fs.Int64("max-fee", 0, "Max transaction fee in tinybars (0 uses the client default)")
}

func applyFee(p *sdk.TransactionParams, tinybars int64) {
	if tinybars > 0 {
		fee := types.Hbar(tinybars)
		p.MaxTransactionFee = &fee
	}
}

// readPayload returns inline text or the contents of a file.
func readPayload(inline, path string) ([]byte, error) {
	switch {
	case inline != "" && path != "":
		return nil, errors.New("use either the inline flag or the file flag, not both")
	case path != "":
		return os.ReadFile(path)
	default:
		return []byte(inline), nil
	}
}

// ============================================================================
// Transactions
// ============================================================================

func buildTransferCommand() *cobra.Command {
	var (
		tinybars int64
		wait     bool
		maxFee   *int64
		to       *entityFlag[types.AccountID]
	)

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer hbar from the operator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				return runTransfer(ctx, s, to.value, tinybars, *maxFee, wait)
			})
		},
	}

	to = accountFlag(cmd.Flags(), "to", "Receiving account")
	cmd.Flags().Int64Var(&tinybars, "tinybars", 0, "Amount in tinybars")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the receipt")
	maxFee = feeFlag(cmd.Flags())
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("tinybars")

	return cmd
}

func runTransfer(ctx context.Context, s *session, to types.AccountID, tinybars, maxFee int64, wait bool) error {
	payer := s.client.OperatorAccountID()
	if payer == nil {
		return errors.New("transfer needs an operator in the config")
	}
	if tinybars <= 0 {
		return fmt.Errorf("amount must be positive, got %d", tinybars)
	}

	amount := types.Hbar(tinybars)
	tx := sdk.NewTransferTransaction().
		AddHbarTransfer(*payer, -amount).
		AddHbarTransfer(to, amount)
	applyFee(&tx.TransactionParams, maxFee)

	resp, err := tx.Execute(ctx, s.client)
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	printResponse(s.out, resp)

	if wait {
		return printReceipt(ctx, s, resp)
	}
	return nil
}

func buildSubmitMessageCommand() *cobra.Command {
	var (
		message     string
		messageFile string
		chunkSize   int
		maxChunks   int
		wait        bool
		maxFee      *int64
		topic       *entityFlag[types.TopicID]
	)

	cmd := &cobra.Command{
		Use:   "submit-message",
		Short: "Submit a message to a topic, chunking it when large",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(message, messageFile)
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, s *session) error {
				tx := sdk.NewTopicMessageSubmitTransaction(topic.value, payload)
				tx.ChunkSize, tx.MaxChunks = chunkSize, maxChunks
				applyFee(&tx.TransactionParams, *maxFee)
				return runChunked(ctx, s, tx.ExecuteAll, wait)
			})
		},
	}

	topic = topicFlag(cmd.Flags(), "topic", "Topic id")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message text")
	cmd.Flags().StringVarP(&messageFile, "message-file", "f", "", "Read the message from a file")
	addChunkFlags(cmd.Flags(), &chunkSize, &maxChunks)
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the receipt of the last chunk")
	maxFee = feeFlag(cmd.Flags())
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func buildAppendFileCommand() *cobra.Command {
	var (
		contents     string
		contentsFile string
		chunkSize    int
		maxChunks    int
		maxFee       *int64
		file         *entityFlag[types.FileID]
	)

	cmd := &cobra.Command{
		Use:   "append-file",
		Short: "Append contents to a file, one confirmed chunk at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(contents, contentsFile)
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, s *session) error {
				tx := sdk.NewFileAppendTransaction(file.value, payload)
				tx.ChunkSize, tx.MaxChunks = chunkSize, maxChunks
				applyFee(&tx.TransactionParams, *maxFee)
				// Every chunk is already confirmed by its receipt.
				return runChunked(ctx, s, tx.ExecuteAll, false)
			})
		},
	}

	file = fileFlag(cmd.Flags(), "file-id", "File id")
	cmd.Flags().StringVar(&contents, "contents", "", "Contents text")
	cmd.Flags().StringVarP(&contentsFile, "contents-file", "f", "", "Read the contents from a file")
	addChunkFlags(cmd.Flags(), &chunkSize, &maxChunks)
	maxFee = feeFlag(cmd.Flags())
	_ = cmd.MarkFlagRequired("file-id")

	return cmd
}

func addChunkFlags(fs *pflag.FlagSet, size, max *int) {
	fs.IntVar(size, "chunk-size", 0, "Bytes per chunk (0 uses the config)")
	fs.IntVar(max, "max-chunks", 0, "Refuse payloads needing more chunks (0 uses the config)")
}

type executeAll func(context.Context, *sdk.Client) ([]*sdk.TransactionResponse, error)

func runChunked(ctx context.Context, s *session, exec executeAll, wait bool) error {
	resps, err := exec(ctx, s.client)
	for i, resp := range resps {
		fmt.Fprintf(s.out, "chunk %d/%d  ", i+1, len(resps))
		printResponse(s.out, resp)
	}
	if err != nil {
		return fmt.Errorf("submitted %d chunks before failing: %w", len(resps), err)
	}
	if wait && len(resps) > 0 {
		return printReceipt(ctx, s, resps[len(resps)-1])
	}
	return nil
}

func printResponse(w io.Writer, resp *sdk.TransactionResponse) {
	fmt.Fprintf(w, "transaction %s  node %s  hash %s\n", resp.TransactionID, resp.NodeID, resp.Hash)
}

func printReceipt(ctx context.Context, s *session, resp *sdk.TransactionResponse) error {
	receipt, err := resp.GetReceipt(ctx, s.client)
	if receipt != nil {
		fmt.Fprintf(s.out, "receipt %s: %s\n", receipt.TransactionID, receipt.Status)
		if receipt.TopicSequenceNumber > 0 {
			fmt.Fprintf(s.out, "  └─ topic sequence %d\n", receipt.TopicSequenceNumber)
		}
	}
	return err
}

// ============================================================================
// Queries
// ============================================================================

func buildBalanceCommand() *cobra.Command {
	var account *entityFlag[types.AccountID]

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show an account balance (free query)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				return runBalance(ctx, s, account.value)
			})
		},
	}

	account = accountFlag(cmd.Flags(), "account", "Account id")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func runBalance(ctx context.Context, s *session, account types.AccountID) error {
	balance, err := (&sdk.AccountBalanceQuery{AccountID: account}).Execute(ctx, s.client)
	if err != nil {
		return fmt.Errorf("balance query failed: %w", err)
	}
	fmt.Fprintf(s.out, "%s: %s\n", balance.AccountID, balance.Hbars)
	return nil
}

func buildFileContentsCommand() *cobra.Command {
	var (
		maxPayment int64
		costOnly   bool
		file       *entityFlag[types.FileID]
	)

	cmd := &cobra.Command{
		Use:   "file-contents",
		Short: "Print a file's contents (paid query)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				q := &sdk.FileContentsQuery{FileID: file.value}
				q.MaxQueryPayment = types.Hbar(maxPayment)
				if costOnly {
					cost, err := q.GetCost(ctx, s.client)
					if err != nil {
						return err
					}
					fmt.Fprintf(s.out, "cost: %s\n", cost)
					return nil
				}
				contents, err := q.Execute(ctx, s.client)
				if err != nil {
					return err
				}
				_, err = s.out.Write(contents)
				return err
			})
		},
	}

	file = fileFlag(cmd.Flags(), "file-id", "File id")
	cmd.Flags().Int64Var(&maxPayment, "max-payment", 0, "Refuse if the cost exceeds this many tinybars (0 uses the client limit)")
	cmd.Flags().BoolVar(&costOnly, "cost", false, "Only print the cost")
	_ = cmd.MarkFlagRequired("file-id")
	return cmd
}

func buildReceiptCommand() *cobra.Command {
	var txID string

	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Fetch the receipt of a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.ParseTransactionID(txID)
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, s *session) error {
				receipt, err := (&sdk.TransactionReceiptQuery{TransactionID: id}).Execute(ctx, s.client)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "receipt %s: %s\n", receipt.TransactionID, receipt.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&txID, "transaction-id", "", "Transaction id (payer@seconds.nanos)")
	_ = cmd.MarkFlagRequired("transaction-id")
	return cmd
}

// ============================================================================
// Mirror
// ============================================================================

func buildSubscribeCommand() *cobra.Command {
	var (
		limit   uint64
		start   string
		timeout time.Duration
		topic   *entityFlag[types.TopicID]
	)

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Follow a topic's messages through the mirror network",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := &sdk.TopicMessageQuery{TopicID: topic.value, Limit: limit, Timeout: timeout}
			if start != "" {
				t, err := time.Parse(time.RFC3339Nano, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				q.StartTime = t
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return runSubscribe(ctx, s, q, configFile)
		},
	}

	topic = topicFlag(cmd.Flags(), "topic", "Topic id")
	cmd.Flags().Uint64Var(&limit, "limit", 0, "Stop after this many messages (0 follows forever)")
	cmd.Flags().StringVar(&start, "start", "", "Only messages at or after this RFC 3339 time")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to wait for a missing topic (0 uses the default)")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

// runSubscribe prints messages until the stream ends or ctx is done. The
// config file is watched meanwhile so fee and network edits reach the
// client without a restart.
func runSubscribe(ctx context.Context, s *session, q *sdk.TopicMessageQuery, watchPath string) error {
	g, gctx := errgroup.WithContext(ctx)
	background, stopBackground := context.WithCancel(gctx)
	defer stopBackground()

	s.serveMetrics(background, g)
	if watchPath != "" {
		w := config.NewWatcher(watchPath, func(cfg *config.Config) {
			if err := s.client.ApplyConfig(cfg); err != nil {
				s.log.Warn().Err(err).Msg("config reload not applied")
			}
		}, s.log)
		g.Go(func() error { return w.Run(background) })
	}

	g.Go(func() error {
		defer stopBackground()
		sub := q.Subscribe(gctx, s.client)
		s.log.Info().Str("subscription", sub.ID().String()).Str("topic", q.TopicID.String()).Msg("subscribed")

		for msg, err := range sub.All(gctx) {
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			fmt.Fprintf(s.out, "#%d %s (%d chunks): %s\n",
				msg.SequenceNumber, msg.ConsensusTimestamp.Format(time.RFC3339Nano), len(msg.Chunks), msg.Contents)
		}
		return nil
	})

	return g.Wait()
}

func buildNetworkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Manage the consensus node list",
	}

	var limit int32
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the address book from the mirror and cache it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				return runRefresh(ctx, s, limit)
			})
		},
	}
	refresh.Flags().Int32Var(&limit, "limit", 0, "Fetch at most this many nodes")

	cmd.AddCommand(refresh)
	return cmd
}

func runRefresh(ctx context.Context, s *session, limit int32) error {
	if s.snapshots == nil {
		return errors.New("address_book.path is not configured")
	}

	book, err := (&sdk.NodeAddressBookQuery{Limit: limit}).Execute(ctx, s.client)
	if err != nil {
		return fmt.Errorf("address book query failed: %w", err)
	}
	if len(book.Nodes) == 0 {
		return errors.New("mirror returned an empty address book")
	}

	if err := s.snapshots.Write(snapshot.Data{
		SchemaVer: snapshot.SchemaVersion,
		SavedAt:   time.Now().UTC(),
		Book:      book,
	}); err != nil {
		return err
	}
	s.client.UpdateNetwork(book.Addresses())

	for _, n := range book.Nodes {
		fmt.Fprintf(s.out, "node %d  %s  %s\n", n.NodeID, n.AccountID, strings.Join(n.Endpoints, ","))
	}
	fmt.Fprintf(s.out, "cached %d nodes in %s\n", len(book.Nodes), s.snapshots.GetPath())
	return nil
}

// ============================================================================
// Devnet
// ============================================================================

func buildDevnetCommand() *cobra.Command {
	var (
		mirrorAddr string
		operatorHb int64
		topics     []string
		files      []string
	)

	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Run an in-process ledger serving the configured network",
		Long: `Serve every node in the config's network section plus a mirror, backed by
one in-memory ledger. The configured operator is funded and its key enforced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg, logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if mirrorAddr == "" && len(cfg.Mirror) > 0 {
				mirrorAddr = cfg.Mirror[0]
			}

			ledger, nodes, err := buildDevnet(cfg, log, types.HbarFrom(operatorHb), topics, files)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			s := &session{log: log, metrics: metricsAddr}
			if s.metrics == "" {
				s.metrics = cfg.Metrics.Listen
			}
			s.serveMetrics(gctx, g)
			g.Go(func() error { return ledger.Serve(gctx, nodes, mirrorAddr) })

			log.Info().Int("nodes", len(nodes)).Str("mirror", mirrorAddr).Msg("devnet started")
			err = g.Wait()
			log.Info().Msg("devnet stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&mirrorAddr, "mirror", "", "Mirror listen address (defaults to the first config mirror)")
	cmd.Flags().Int64Var(&operatorHb, "operator-balance", 1_000_000, "Operator starting balance in hbar")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "Topics to create")
	cmd.Flags().StringSliceVar(&files, "files", nil, "Empty files to create")
	return cmd
}

// buildDevnet creates the ledger for cfg: node accounts, a funded operator
// holding the configured key, the requested topics and files, and an
// address book listing every node.
func buildDevnet(cfg *config.Config, log zerolog.Logger, operatorBalance types.Hbar, topics, files []string) (*server.Ledger, map[types.AccountID]string, error) {
	nodes, err := cfg.Addresses()
	if err != nil {
		return nil, nil, err
	}
	if len(nodes) == 0 {
		return nil, nil, errors.New("devnet needs at least one node in the network section")
	}

	ledger := server.NewLedger(server.WithLogger(log))

	var book types.AddressBook
	nodeID := int64(0)
	for _, node := range sortedAccounts(nodes) {
		ledger.CreateAccount(node, 0, nil)
		book.Nodes = append(book.Nodes, types.NodeAddress{
			NodeID:    nodeID,
			AccountID: node,
			Endpoints: []string{nodes[node]},
		})
		nodeID++
	}
	ledger.SetAddressBook(book)

	payer, signer, err := cfg.OperatorSigner()
	if err != nil {
		return nil, nil, err
	}
	if payer != nil {
		pub := signer.PublicKey()
		ledger.CreateAccount(*payer, operatorBalance, &pub)
	}

	for _, t := range topics {
		id, err := types.ParseTopicID(t)
		if err != nil {
			return nil, nil, err
		}
		ledger.CreateTopic(id)
	}
	for _, f := range files {
		id, err := types.ParseFileID(f)
		if err != nil {
			return nil, nil, err
		}
		ledger.CreateFile(id, nil)
	}
	return ledger, nodes, nil
}

func sortedAccounts(m map[types.AccountID]string) []types.AccountID {
	out := make([]types.AccountID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.SortFunc(out, types.AccountID.Compare)
	return out
}

// ============================================================================
// Status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and address book cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			return showStatus(cmd.OutOrStdout(), configFile, cfg, time.Now())
		},
	}
	return cmd
}

func showStatus(w io.Writer, path string, cfg *config.Config, now time.Time) error {
	fmt.Fprintln(w, "\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║           ledgerctl status                                ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "📋 Configuration:")
	fmt.Fprintf(w, "  ├─ Config File:      %s\n", path)
	if cfg.Operator != nil {
		fmt.Fprintf(w, "  ├─ Operator:         %s (%s)\n", cfg.Operator.AccountID, cfg.Operator.Algorithm)
	} else {
		fmt.Fprintln(w, "  ├─ Operator:         none")
	}
	fmt.Fprintf(w, "  ├─ Max Attempts:     %d\n", cfg.Execution.MaxAttempts)
	fmt.Fprintf(w, "  ├─ Request Timeout:  %s\n", cfg.Execution.RequestTimeout.Std())
	fmt.Fprintf(w, "  ├─ Backoff:          %s .. %s\n", cfg.Execution.MinBackoff.Std(), cfg.Execution.MaxBackoff.Std())
	fmt.Fprintf(w, "  └─ Chunking:         %d bytes x %d\n", cfg.Chunk.Size, cfg.Chunk.MaxChunks)
	fmt.Fprintln(w)

	addrs, err := cfg.Addresses()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "🌐 Network:")
	for i, node := range sortedAccounts(addrs) {
		branch := "├─"
		if i == len(addrs)-1 {
			branch = "└─"
		}
		fmt.Fprintf(w, "  %s %-10s %s\n", branch, node, addrs[node])
	}
	if len(addrs) == 0 {
		fmt.Fprintln(w, "  └─ no nodes configured")
	}
	fmt.Fprintf(w, "  Mirror: %s\n", strings.Join(cfg.Mirror, ", "))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "💾 Address Book Cache:")
	if cfg.AddressBook.Path == "" {
		fmt.Fprintln(w, "  └─ Status: ⚠️  Not configured")
	} else {
		m := snapshot.NewManager(cfg.AddressBook.Path)
		data, err := m.Load()
		switch {
		case err != nil:
			fmt.Fprintf(w, "  └─ Status: ❌ %v\n", err)
		case len(data.Book.Nodes) == 0:
			fmt.Fprintf(w, "  └─ Status: empty (%s)\n", m.GetPath())
		default:
			fmt.Fprintf(w, "  ├─ Path:   %s\n", m.GetPath())
			fmt.Fprintf(w, "  ├─ Nodes:  %d\n", len(data.Book.Nodes))
			fmt.Fprintf(w, "  └─ Age:    %s\n", data.Age(now).Truncate(time.Second))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "📡 Metrics:")
	if cfg.Metrics.Listen != "" {
		fmt.Fprintf(w, "  └─ Status: ✅ Enabled on http://%s/metrics\n", cfg.Metrics.Listen)
	} else {
		fmt.Fprintln(w, "  └─ Status: ⚠️  Disabled")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	return nil
}
