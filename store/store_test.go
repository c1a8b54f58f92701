package store

import (
	"bytes"
	"github.com/chaintrail/go-chaintrail-sdk/asymkey"
	"github.com/chaintrail/go-chaintrail-sdk/codec"
	"github.com/chaintrail/go-chaintrail-sdk/ledger"
	"github.com/chaintrail/go-chaintrail-sdk/symmetric_key"
	"github.com/chaintrail/go-chaintrail-sdk/test_utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ztrue/tracerr"
	"os"
	"path/filepath"
	"testing"
)

func testKey(t *testing.T) *asymkey.PrivateKey {
	key, err := asymkey.Generate(1024)
	require.NoError(t, err)
	return key
}

func testChainOptions() *ledger.ChainOptions {
	return &ledger.ChainOptions{LogLevel: zerolog.Disabled}
}

func fixtureChain(t *testing.T, key *asymkey.PrivateKey) *ledger.Chain[ledger.StringPayload] {
	chain, err := ledger.NewChain[ledger.StringPayload](testChainOptions(), "genesis", "genesis payload", 100, key)
	require.NoError(t, err)
	chain.RegisterParticipant("p1", "active", nil)
	require.NoError(t, chain.GrantCapability("p1", "WRITE"))
	require.NoError(t, chain.AppendRecord("t1", "first entry", 50, key))
	require.True(t, chain.IsValid())
	return chain
}

func assertLoaded(t *testing.T, loaded *ledger.Chain[ledger.StringPayload], original *ledger.Chain[ledger.StringPayload], key *asymkey.PrivateKey) {
	assert.Equal(t, original.ID(), loaded.ID())
	assert.Equal(t, original.Length(), loaded.Length())
	assert.True(t, loaded.IsValid())
	err := loaded.AppendRecord("t1", "replayed", 1, key)
	assert.ErrorIs(t, err, ledger.ErrorChainAppendDuplicateRecord)
	assert.True(t, loaded.HasCapability("p1", "WRITE"))
}

type failingCodec struct{}

func (failingCodec) Name() string {
	return "failing"
}

func (failingCodec) Encode(*ledger.ChainState[ledger.StringPayload]) ([]byte, error) {
	return nil, tracerr.Wrap(test_utils.ErrorSyntheticTestError)
}

func (failingCodec) Decode([]byte) (*ledger.ChainState[ledger.StringPayload], error) {
	return nil, tracerr.Wrap(test_utils.ErrorSyntheticTestError)
}

func TestSaveLoadChain(t *testing.T) {
	key := testKey(t)

	t.Parallel()
	t.Run("memory store with the JSON codec", func(t *testing.T) {
		chain := fixtureChain(t, key)
		memoryStore := &MemoryStore{}
		require.NoError(t, memoryStore.Open())

		require.NoError(t, SaveChain(memoryStore, "main", chain, codec.JSON[ledger.StringPayload]{}))
		loaded, err := LoadChain[ledger.StringPayload](memoryStore, "main", codec.JSON[ledger.StringPayload]{}, testChainOptions())
		require.NoError(t, err)
		assertLoaded(t, loaded, chain, key)
	})
	t.Run("encrypted file store with the binary codec", func(t *testing.T) {
		chain := fixtureChain(t, key)
		dir := testStoreDir(t)
		encryptionKey, err := symmetric_key.Generate()
		require.NoError(t, err)
		fileStore := &FileStore{Dir: dir, EncryptionKey: encryptionKey}
		require.NoError(t, fileStore.Open())
		defer func() { require.NoError(t, fileStore.Close()) }()

		require.NoError(t, SaveChain(fileStore, "main", chain, codec.Binary[ledger.StringPayload]{}))

		// record payloads never reach the disk in clear
		raw, err := os.ReadFile(filepath.Join(dir, "main"))
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "first entry")

		loaded, err := LoadChain[ledger.StringPayload](fileStore, "main", codec.Binary[ledger.StringPayload]{}, testChainOptions())
		require.NoError(t, err)
		assertLoaded(t, loaded, chain, key)
	})
	t.Run("unencrypted entries carry the payloads in clear", func(t *testing.T) {
		chain := fixtureChain(t, key)
		dir := testStoreDir(t)
		fileStore := &FileStore{Dir: dir}
		require.NoError(t, fileStore.Open())
		defer func() { require.NoError(t, fileStore.Close()) }()

		require.NoError(t, SaveChain(fileStore, "main", chain, codec.Binary[ledger.StringPayload]{}))
		raw, err := os.ReadFile(filepath.Join(dir, "main"))
		require.NoError(t, err)
		assert.Contains(t, string(raw), "first entry")
	})
	t.Run("tampered snapshot loads but fails validation", func(t *testing.T) {
		chain := fixtureChain(t, key)
		memoryStore := &MemoryStore{}
		require.NoError(t, memoryStore.Open())
		require.NoError(t, SaveChain(memoryStore, "main", chain, codec.JSON[ledger.StringPayload]{}))

		data, err := memoryStore.Get("main")
		require.NoError(t, err)
		tampered := bytes.Replace(data, []byte("first entry"), []byte("f1rst entry"), 1)
		require.NotEqual(t, data, tampered)
		require.NoError(t, memoryStore.Put("main", tampered))

		loaded, err := LoadChain[ledger.StringPayload](memoryStore, "main", codec.JSON[ledger.StringPayload]{}, testChainOptions())
		require.NoError(t, err)
		assert.False(t, loaded.IsValid())
	})
	t.Run("save propagates codec failures", func(t *testing.T) {
		chain := fixtureChain(t, key)
		memoryStore := &MemoryStore{}
		require.NoError(t, memoryStore.Open())
		err := SaveChain(memoryStore, "main", chain, failingCodec{})
		assert.ErrorIs(t, err, test_utils.ErrorSyntheticTestError)
	})
	t.Run("load propagates codec failures", func(t *testing.T) {
		memoryStore := &MemoryStore{}
		require.NoError(t, memoryStore.Open())
		require.NoError(t, memoryStore.Put("main", []byte("whatever")))
		_, err := LoadChain[ledger.StringPayload](memoryStore, "main", failingCodec{}, testChainOptions())
		assert.ErrorIs(t, err, test_utils.ErrorSyntheticTestError)
	})
	t.Run("nil chain", func(t *testing.T) {
		memoryStore := &MemoryStore{}
		require.NoError(t, memoryStore.Open())
		err := SaveChain(memoryStore, "main", nil, codec.JSON[ledger.StringPayload]{})
		assert.ErrorIs(t, err, ErrorStoreSaveNilChain)
	})
	t.Run("missing entry", func(t *testing.T) {
		memoryStore := &MemoryStore{}
		require.NoError(t, memoryStore.Open())
		_, err := LoadChain[ledger.StringPayload](memoryStore, "main", codec.JSON[ledger.StringPayload]{}, testChainOptions())
		assert.ErrorIs(t, err, ErrorStoreEntryNotFound)
	})
}

func TestChainFiles(t *testing.T) {
	key := testKey(t)

	t.Parallel()
	t.Run("write then read", func(t *testing.T) {
		chain := fixtureChain(t, key)
		dir := testStoreDir(t)
		require.NoError(t, os.MkdirAll(dir, 0700))
		path := filepath.Join(dir, "chain.bin")

		require.NoError(t, WriteChainFile(path, chain, codec.Binary[ledger.StringPayload]{}))
		loaded, err := ReadChainFile[ledger.StringPayload](path, codec.Binary[ledger.StringPayload]{}, testChainOptions())
		require.NoError(t, err)
		assertLoaded(t, loaded, chain, key)
	})
	t.Run("nil codec sniffs the serialization", func(t *testing.T) {
		chain := fixtureChain(t, key)
		dir := testStoreDir(t)
		require.NoError(t, os.MkdirAll(dir, 0700))

		binaryPath := filepath.Join(dir, "chain.bin")
		require.NoError(t, WriteChainFile(binaryPath, chain, codec.Binary[ledger.StringPayload]{}))
		loaded, err := ReadChainFile[ledger.StringPayload](binaryPath, nil, testChainOptions())
		require.NoError(t, err)
		assert.True(t, loaded.IsValid())

		jsonPath := filepath.Join(dir, "chain.json")
		require.NoError(t, WriteChainFile(jsonPath, chain, codec.JSON[ledger.StringPayload]{}))
		loaded, err = ReadChainFile[ledger.StringPayload](jsonPath, nil, testChainOptions())
		require.NoError(t, err)
		assert.True(t, loaded.IsValid())
	})
	t.Run("missing file", func(t *testing.T) {
		dir := testStoreDir(t)
		_, err := ReadChainFile[ledger.StringPayload](filepath.Join(dir, "nope.json"), nil, testChainOptions())
		assert.Error(t, err)
	})
	t.Run("tampered file fails validation", func(t *testing.T) {
		chain := fixtureChain(t, key)
		dir := testStoreDir(t)
		require.NoError(t, os.MkdirAll(dir, 0700))
		path := filepath.Join(dir, "chain.json")
		require.NoError(t, WriteChainFile(path, chain, codec.JSON[ledger.StringPayload]{}))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		tampered := bytes.Replace(raw, []byte("first entry"), []byte("f1rst entry"), 1)
		require.NotEqual(t, raw, tampered)
		require.NoError(t, os.WriteFile(path, tampered, 0600))

		loaded, err := ReadChainFile[ledger.StringPayload](path, codec.JSON[ledger.StringPayload]{}, testChainOptions())
		require.NoError(t, err)
		assert.False(t, loaded.IsValid())
	})
}
