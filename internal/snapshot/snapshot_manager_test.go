package snapshot

// ============================================================================
// Snapshot manager tests
// Covers atomic writes, loading, version checks and error handling
// ============================================================================

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBook(n int) types.AddressBook {
	var book types.AddressBook
	for i := 0; i < n; i++ {
		book.Nodes = append(book.Nodes, types.NodeAddress{
			NodeID:      int64(i),
			AccountID:   types.NewAccountID(uint64(3 + i)),
			Endpoints:   []string{fmt.Sprintf("10.0.0.%d:50211", i+1)},
			Description: fmt.Sprintf("node %d", i),
			Stake:       int64(1000 * (i + 1)),
		})
	}
	return book
}

// ============================================================================
// Basics
// ============================================================================

func TestNewManager(t *testing.T) {
	manager := NewManager("test_snapshot.json")
	assert.NotNil(t, manager)
	assert.Equal(t, "test_snapshot.json", manager.GetPath())
}

func TestWriteAndLoad(t *testing.T) {
	snapshotPath := filepath.Join(t.TempDir(), "address_book.json")
	manager := NewManager(snapshotPath)

	saved := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	original := Data{Network: "testnet", SavedAt: saved, Book: testBook(3)}
	require.NoError(t, manager.Write(original))

	loaded, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, loaded.SchemaVer)
	assert.Equal(t, "testnet", loaded.Network)
	assert.True(t, saved.Equal(loaded.SavedAt))
	assert.Equal(t, original.Book, loaded.Book)
	assert.Equal(t, "10.0.0.2:50211", loaded.Book.Addresses()[types.NewAccountID(4)])
	assert.Equal(t, time.Hour, loaded.Age(saved.Add(time.Hour)))
}

func TestAtomicWrite(t *testing.T) {
	snapshotPath := filepath.Join(t.TempDir(), "address_book.json")
	manager := NewManager(snapshotPath)
	require.NoError(t, manager.Write(Data{Book: testBook(1)}))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		assert.NoError(t, manager.Write(Data{Book: testBook(5)}))
	}()

	go func() {
		defer wg.Done()
		data, err := manager.Load()
		assert.NoError(t, err)
		// either the old or the new book, never a torn one
		assert.Contains(t, []int{1, 5}, len(data.Book.Nodes))
	}()

	wg.Wait()

	_, err := os.Stat(snapshotPath + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestExists(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "address_book.json"))
	assert.False(t, manager.Exists())

	require.NoError(t, manager.Write(Data{}))
	assert.True(t, manager.Exists())
}

// ============================================================================
// Error handling
// ============================================================================

func TestFirstBoot(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "missing.json"))

	data, err := manager.Load()
	require.NoError(t, err, "a missing snapshot is not an error")
	assert.Equal(t, SchemaVersion, data.SchemaVer)
	assert.Empty(t, data.Book.Nodes)
	assert.Zero(t, data.Age(time.Now()))
}

func TestVersionMismatch(t *testing.T) {
	snapshotPath := filepath.Join(t.TempDir(), "address_book.json")
	raw, err := json.Marshal(map[string]any{"schema_version": 99})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(snapshotPath, raw, 0o644))

	_, err = NewManager(snapshotPath).Load()
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestCorrupted(t *testing.T) {
	snapshotPath := filepath.Join(t.TempDir(), "address_book.json")
	require.NoError(t, os.WriteFile(snapshotPath, []byte("{not json"), 0o644))

	_, err := NewManager(snapshotPath).Load()
	assert.ErrorIs(t, err, ErrCorruptedSnapshot)
}

func TestWriteFailure(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "no", "such", "dir", "book.json"))
	err := manager.Write(Data{Book: testBook(1)})
	assert.Error(t, err)
}

func TestConcurrentWrites(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "address_book.json"))

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, manager.Write(Data{Book: testBook(n)}))
		}(i)
	}
	wg.Wait()

	data, err := manager.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, data.Book.Nodes)
}
