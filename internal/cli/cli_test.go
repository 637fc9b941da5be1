package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hashgraph/hedera-sdk-core/internal/config"
	"github.com/hashgraph/hedera-sdk-core/internal/server"
	"github.com/hashgraph/hedera-sdk-core/internal/sign"
	"github.com/hashgraph/hedera-sdk-core/internal/snapshot"
	"github.com/hashgraph/hedera-sdk-core/pkg/sdk"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

var (
	operatorID = types.NewAccountID(1001)
	aliceID    = types.NewAccountID(1002)
	node3      = types.NewAccountID(3)
	topic5     = types.TopicID{Num: 5}
)

// operatorSeed is a fixed ed25519 seed so configs can carry the key.
var operatorSeed = strings.Repeat("ab", 32)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd)
	assert.Equal(t, "ledgerctl", cmd.Use)
	assert.Equal(t, "1.0.0", cmd.Version)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"transfer", "submit-message", "append-file", "balance", "file-contents",
		"receipt", "subscribe", "network", "devnet", "status",
	} {
		assert.True(t, names[want], "missing %q command", want)
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("metrics-addr"))
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		build    func() *cobra.Command
		required []string
		optional []string
	}{
		{buildTransferCommand, []string{"to", "tinybars"}, []string{"wait", "max-fee"}},
		{buildSubmitMessageCommand, []string{"topic"}, []string{"message", "message-file", "chunk-size", "max-chunks", "wait"}},
		{buildAppendFileCommand, []string{"file-id"}, []string{"contents", "contents-file", "chunk-size", "max-chunks"}},
		{buildBalanceCommand, []string{"account"}, nil},
		{buildFileContentsCommand, []string{"file-id"}, []string{"max-payment", "cost"}},
		{buildReceiptCommand, []string{"transaction-id"}, nil},
		{buildSubscribeCommand, []string{"topic"}, []string{"limit", "start", "timeout"}},
		{buildDevnetCommand, nil, []string{"mirror", "operator-balance", "topics", "files"}},
	}

	for _, tt := range tests {
		cmd := tt.build()
		t.Run(cmd.Name(), func(t *testing.T) {
			assert.NotNil(t, cmd.RunE)
			for _, name := range tt.required {
				f := cmd.Flags().Lookup(name)
				require.NotNil(t, f, "missing --%s", name)
				assert.Contains(t, f.Annotations, cobra.BashCompOneRequiredFlag, "--%s should be required", name)
			}
			for _, name := range tt.optional {
				assert.NotNil(t, cmd.Flags().Lookup(name), "missing --%s", name)
			}
		})
	}
}

func TestNetworkCommand_HasRefresh(t *testing.T) {
	cmd := buildNetworkCommand()
	refresh, _, err := cmd.Find([]string{"refresh"})
	require.NoError(t, err)
	assert.Equal(t, "refresh", refresh.Name())
	assert.NotNil(t, refresh.Flags().Lookup("limit"))
}

func TestEntityFlag_RejectsMalformedIDs(t *testing.T) {
	cmd := buildBalanceCommand()
	assert.Error(t, cmd.Flags().Set("account", "0.0"))
	assert.Error(t, cmd.Flags().Set("account", "a.b.c"))
	require.NoError(t, cmd.Flags().Set("account", "0.0.42"))
	assert.Equal(t, "0.0.42", cmd.Flags().Lookup("account").Value.String())
}

func TestReadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msg.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0644))

	got, err := readPayload("inline", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("inline"), got)

	got, err = readPayload("", path)
	require.NoError(t, err)
	assert.Equal(t, []byte("from file"), got)

	_, err = readPayload("inline", path)
	assert.Error(t, err)
}

// ============================================================================
// Config and logging
// ============================================================================

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	content := `
network:
  "0.0.3": "127.0.0.1:50211"
mirror: ["127.0.0.1:5600"]
operator:
  account_id: "0.0.1001"
  private_key: "` + operatorSeed + `"
execution:
  max_attempts: 4
  request_timeout: 30s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:50211", cfg.Network["0.0.3"])
	assert.Equal(t, 4, cfg.Execution.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Execution.RequestTimeout.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: [not, a, map"), 0644))
	_, err = loadConfig(path)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	log, err := newLogger(&cfg, "", &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	log, err = newLogger(&cfg, "WARN", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	_, err = newLogger(&cfg, "loud", io.Discard)
	assert.Error(t, err)

	cfg.Log.Format = "xml"
	_, err = newLogger(&cfg, "", io.Discard)
	assert.Error(t, err)
}

// ============================================================================
// Status
// ============================================================================

func TestShowStatus(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Network = map[string]string{"0.0.3": "127.0.0.1:50211", "0.0.4": "127.0.0.1:50212"}
	cfg.Mirror = []string{"127.0.0.1:5600"}
	cfg.Metrics.Listen = "127.0.0.1:9090"
	cfg.AddressBook.Path = filepath.Join(dir, "book.json")

	saved := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, snapshot.NewManager(cfg.AddressBook.Path).Write(snapshot.Data{
		SchemaVer: snapshot.SchemaVersion,
		SavedAt:   saved,
		Book: types.AddressBook{Nodes: []types.NodeAddress{
			{NodeID: 0, AccountID: node3, Endpoints: []string{"127.0.0.1:50211"}},
		}},
	}))

	var buf bytes.Buffer
	require.NoError(t, showStatus(&buf, "ledger.yaml", &cfg, saved.Add(90*time.Minute)))

	out := buf.String()
	assert.Contains(t, out, "ledger.yaml")
	assert.Contains(t, out, "Operator:         none")
	assert.Contains(t, out, "├─ 0.0.3")
	assert.Contains(t, out, "└─ 0.0.4")
	assert.Contains(t, out, "Nodes:  1")
	assert.Contains(t, out, "Age:    1h30m0s")
	assert.Contains(t, out, "http://127.0.0.1:9090/metrics")
}

func TestStatusCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Network = map[string]string{"0.0.3": "127.0.0.1:50211"}
	path := writeConfig(t, &cfg)

	root := BuildCLI()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"status", "-c", path})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ledgerctl status")
	assert.Contains(t, out.String(), "Not configured")
	assert.Contains(t, out.String(), "Disabled")
}

// ============================================================================
// Against an in-memory devnet
// ============================================================================

type cliDevnet struct {
	ledger  *server.Ledger
	mem     *server.InMemory
	session *session
	out     *bytes.Buffer
	cfg     *config.Config
}

func newCLIDevnet(t *testing.T, mutate ...func(*config.Config)) *cliDevnet {
	t.Helper()

	signer, err := sign.ParsePrivateKey(sign.Ed25519, operatorSeed)
	require.NoError(t, err)
	pub := signer.PublicKey()

	ledger := server.NewLedger()
	ledger.CreateAccount(operatorID, types.HbarFrom(100), &pub)
	ledger.CreateAccount(aliceID, 0, nil)
	ledger.CreateAccount(node3, 0, nil)
	ledger.CreateTopic(topic5)

	mem := server.StartInMemory(ledger, node3)
	t.Cleanup(mem.Stop)

	cfg := config.Default()
	cfg.Network = map[string]string{node3.String(): mem.Nodes[node3]}
	cfg.Mirror = []string{mem.Mirror}
	cfg.Operator = &config.Operator{AccountID: operatorID.String(), PrivateKey: operatorSeed, Algorithm: "ed25519"}
	cfg.Log.Level = "error"
	for _, m := range mutate {
		m(&cfg)
	}
	configFile = writeConfig(t, &cfg)
	t.Cleanup(func() { configFile = "" })

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	s, err := openSession(cmd, mem.DialOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return &cliDevnet{ledger: ledger, mem: mem, session: s, out: &out, cfg: &cfg}
}

func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRunTransfer(t *testing.T) {
	d := newCLIDevnet(t)

	require.NoError(t, runTransfer(testContext(t), d.session, aliceID, 1500, 0, true))

	assert.Equal(t, types.Hbar(1500), d.ledger.Balance(aliceID))
	assert.Contains(t, d.out.String(), "node 0.0.3")
	assert.Contains(t, d.out.String(), ": SUCCESS")
}

func TestRunTransfer_RejectsNonPositiveAmount(t *testing.T) {
	d := newCLIDevnet(t)

	err := runTransfer(testContext(t), d.session, aliceID, 0, 0, false)
	assert.Error(t, err)
	assert.Empty(t, d.ledger.Requests(""))
}

func TestRunChunked_SubmitsEveryChunk(t *testing.T) {
	d := newCLIDevnet(t)

	tx := sdk.NewTopicMessageSubmitTransaction(topic5, bytes.Repeat([]byte("x"), 2500))
	require.NoError(t, runChunked(testContext(t), d.session, tx.ExecuteAll, true))

	out := d.out.String()
	assert.Contains(t, out, "chunk 1/3")
	assert.Contains(t, out, "chunk 3/3")
	assert.Contains(t, out, "topic sequence 3")
}

func TestRunChunked_ReportsPartialFailure(t *testing.T) {
	d := newCLIDevnet(t)

	tx := sdk.NewTopicMessageSubmitTransaction(topic5, bytes.Repeat([]byte("x"), 5000))
	tx.MaxChunks = 2
	err := runChunked(testContext(t), d.session, tx.ExecuteAll, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "submitted 0 chunks")
}

func TestRunBalance(t *testing.T) {
	d := newCLIDevnet(t)

	require.NoError(t, runBalance(testContext(t), d.session, operatorID))
	assert.True(t, strings.HasPrefix(d.out.String(), "0.0.1001: "))

	err := runBalance(testContext(t), d.session, types.NewAccountID(9999))
	var status *types.PreCheckStatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, types.StatusInvalidAccountID, status.Status)
}

func TestRunSubscribe_StopsAtLimit(t *testing.T) {
	d := newCLIDevnet(t)
	ctx := testContext(t)

	for _, msg := range []string{"first", "second"} {
		_, err := sdk.NewTopicMessageSubmitTransaction(topic5, []byte(msg)).Execute(ctx, d.session.client)
		require.NoError(t, err)
	}

	q := &sdk.TopicMessageQuery{TopicID: topic5, Limit: 2}
	require.NoError(t, runSubscribe(ctx, d.session, q, ""))

	out := d.out.String()
	assert.Contains(t, out, "#1 ")
	assert.Contains(t, out, ": first")
	assert.Contains(t, out, "#2 ")
	assert.Contains(t, out, ": second")
}

func TestRunSubscribe_AppliesConfigEdits(t *testing.T) {
	d := newCLIDevnet(t)
	ctx, cancel := context.WithCancel(testContext(t))

	q := &sdk.TopicMessageQuery{TopicID: topic5}
	done := make(chan error, 1)
	go func() { done <- runSubscribe(ctx, d.session, q, configFile) }()

	// Give the watcher time to register before editing.
	time.Sleep(200 * time.Millisecond)
	d.cfg.Execution.MaxTransactionFee = int64(types.HbarFrom(7))
	data, err := yaml.Marshal(d.cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configFile, data, 0644))

	assert.Eventually(t, func() bool {
		return d.session.client.MaxTransactionFee() == types.HbarFrom(7)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe did not stop after cancel")
	}
}

func TestRunRefresh_CachesAndSeeds(t *testing.T) {
	book := filepath.Join(t.TempDir(), "book.json")
	d := newCLIDevnet(t, func(c *config.Config) { c.AddressBook.Path = book })
	d.ledger.SetAddressBook(types.AddressBook{Nodes: []types.NodeAddress{
		{NodeID: 0, AccountID: node3, Endpoints: []string{"10.0.0.3:50211"}},
		{NodeID: 1, AccountID: types.NewAccountID(4), Endpoints: []string{"10.0.0.4:50211"}},
	}})

	require.NoError(t, runRefresh(testContext(t), d.session, 0))
	assert.Contains(t, d.out.String(), "cached 2 nodes")
	assert.ElementsMatch(t,
		[]types.AccountID{node3, types.NewAccountID(4)},
		d.session.client.Network().KnownNodeIDs())

	data, err := snapshot.NewManager(book).Load()
	require.NoError(t, err)
	assert.Len(t, data.Book.Nodes, 2)

	// Configured nodes win over cached ones.
	seeded, err := seedAddresses(snapshot.NewManager(book),
		map[types.AccountID]string{node3: "127.0.0.1:50211"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:50211", seeded[node3])
	assert.Equal(t, "10.0.0.4:50211", seeded[types.NewAccountID(4)])
}

func TestRunRefresh_NeedsCachePath(t *testing.T) {
	d := newCLIDevnet(t)
	assert.Error(t, runRefresh(testContext(t), d.session, 0))
}

// ============================================================================
// Devnet command
// ============================================================================

func TestBuildDevnet(t *testing.T) {
	cfg := config.Default()
	cfg.Network = map[string]string{"0.0.4": "127.0.0.1:50212", "0.0.3": "127.0.0.1:50211"}
	cfg.Operator = &config.Operator{AccountID: "0.0.1001", PrivateKey: operatorSeed}

	ledger, nodes, err := buildDevnet(&cfg, zerolog.Nop(), types.HbarFrom(50), []string{"0.0.5"}, []string{"0.0.150"})
	require.NoError(t, err)

	assert.Len(t, nodes, 2)
	assert.Equal(t, types.HbarFrom(50), ledger.Balance(operatorID))
	assert.Empty(t, ledger.File(types.FileID{Num: 150}))

	_, _, err = buildDevnet(&cfg, zerolog.Nop(), 0, []string{"five"}, nil)
	assert.Error(t, err)

	cfg.Network = nil
	_, _, err = buildDevnet(&cfg, zerolog.Nop(), 0, nil, nil)
	assert.Error(t, err)
}
