// Package store persists serialized chains. A Store is a flat namespace of
// named byte entries with an explicit open/close lifecycle; FileStore backs
// it with a locked directory, MemoryStore with a map. SaveChain and LoadChain
// compose a store with a codec. Loading never validates: callers run
// Chain.IsValid on what came back.
package store

import (
	"github.com/chaintrail/go-chaintrail-sdk/codec"
	"github.com/chaintrail/go-chaintrail-sdk/ledger"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/ztrue/tracerr"
	"os"
)

var (
	// ErrorStoreLocked is returned when another instance is already using this store directory
	ErrorStoreLocked = utils.NewChainTrailError("STORE_LOCKED", "another instance is already using this store")
	// ErrorStoreClosed is returned when trying to use a store which is not open
	ErrorStoreClosed = utils.NewChainTrailError("STORE_CLOSED", "store closed")
	// ErrorStoreAlreadyOpen is returned when trying to open a store which is already open
	ErrorStoreAlreadyOpen = utils.NewChainTrailError("STORE_ALREADY_OPEN", "store already open")
	// ErrorStoreEntryNotFound is returned when getting an entry which does not exist
	ErrorStoreEntryNotFound = utils.NewChainTrailError("STORE_ENTRY_NOT_FOUND", "store entry not found")
	// ErrorStoreInvalidEntryName is returned when an entry name cannot be used as a file name
	ErrorStoreInvalidEntryName = utils.NewChainTrailError("STORE_INVALID_ENTRY_NAME", "invalid store entry name")
	// ErrorStoreSaveNilChain is returned when trying to save a nil chain
	ErrorStoreSaveNilChain = utils.NewChainTrailError("STORE_SAVE_NIL_CHAIN", "cannot save nil chain")
)

// Store is a named-entry byte store. Open must be called before any Put or
// Get, and a closed store returns ErrorStoreClosed on every call.
type Store interface {
	Open() error
	Close() error
	Put(name string, data []byte) error
	Get(name string) ([]byte, error)
}

// SaveChain snapshots the chain, encodes it with the given codec and writes
// it to the store under name.
func SaveChain[T ledger.Payload](s Store, name string, chain *ledger.Chain[T], c codec.Codec[T]) error {
	if chain == nil {
		return tracerr.Wrap(ErrorStoreSaveNilChain)
	}
	data, err := c.Encode(chain.Snapshot())
	if err != nil {
		return tracerr.Wrap(err)
	}
	err = s.Put(name, data)
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

// LoadChain reads the entry, decodes it with the given codec and restores the
// chain. Nothing is validated on the way in: run IsValid on the result to
// detect tampering with the stored snapshot.
func LoadChain[T ledger.Payload](s Store, name string, c codec.Codec[T], options *ledger.ChainOptions) (*ledger.Chain[T], error) {
	data, err := s.Get(name)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	state, err := c.Decode(data)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	chain, err := ledger.RestoreChain(state, options)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return chain, nil
}

// WriteChainFile is a one-shot helper writing a chain straight to a file
// path, atomically, without going through a Store.
func WriteChainFile[T ledger.Payload](path string, chain *ledger.Chain[T], c codec.Codec[T]) error {
	if chain == nil {
		return tracerr.Wrap(ErrorStoreSaveNilChain)
	}
	data, err := c.Encode(chain.Snapshot())
	if err != nil {
		return tracerr.Wrap(err)
	}
	err = writeFileAtomic(path, data)
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

// ReadChainFile is the inverse of WriteChainFile. A nil codec sniffs the
// serialization with codec.Detect.
func ReadChainFile[T ledger.Payload](path string, c codec.Codec[T], options *ledger.ChainOptions) (*ledger.Chain[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if c == nil {
		c, err = codec.Detect[T](data)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	state, err := c.Decode(data)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	chain, err := ledger.RestoreChain(state, options)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return chain, nil
}
