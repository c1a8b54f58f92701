package ledger

import (
	"github.com/chaintrail/go-chaintrail-sdk/merkle"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/gibson042/canonicaljson-go"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorBlockRecordProofInvalid is returned when a record's inclusion proof does not verify against the stored Merkle root.
	ErrorBlockRecordProofInvalid = utils.NewChainTrailError("BLOCK_RECORD_PROOF_INVALID", "record inclusion proof does not match the stored merkle root")
)

// GenesisPreviousHash is the previous-hash sentinel carried by a chain's first block.
const GenesisPreviousHash = "GENESIS"

// Block groups records under a Merkle root and a content hash. Candidate
// blocks are built unlinked (index 0, genesis sentinel); Chain.Append re-links
// them to the tail.
type Block[T Payload] struct {
	Index        int64        `json:"index" bson:"index"`
	Timestamp    Timestamp    `json:"timestamp" bson:"timestamp"`
	PreviousHash string       `json:"previous_hash" bson:"previous_hash"`
	ContentHash  string       `json:"content_hash" bson:"content_hash"`
	MerkleRoot   string       `json:"merkle_root" bson:"merkle_root"`
	Nonce        int64        `json:"nonce" bson:"nonce"` // reserved: carried and hashed, never interpreted
	Records      []*Record[T] `json:"records" bson:"records"`

	hasher merkle.Hasher
}

// NewBlock builds an unlinked candidate block over the given records: Merkle
// root and content hash are computed, index is 0 and the previous hash is the
// genesis sentinel until the block is appended to a chain. Blocks with zero
// records are representable (empty-tree sentinel root).
func NewBlock[T Payload](records []*Record[T]) (*Block[T], error) {
	block := Block[T]{
		Index:        0,
		Timestamp:    Now(),
		PreviousHash: GenesisPreviousHash,
		Nonce:        0,
		Records:      records,
		hasher:       merkle.DefaultHasher,
	}
	err := block.rehash()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &block, nil
}

type blockHeader struct {
	Index        int64     `json:"index"`
	MerkleRoot   string    `json:"merkle_root"`
	Nonce        int64     `json:"nonce"`
	PreviousHash string    `json:"previous_hash"`
	Timestamp    Timestamp `json:"timestamp"`
}

// ComputeHash returns the hash of the block header's canonical JSON encoding.
// It covers index, timestamp, previous hash, nonce and Merkle root, and does
// not modify the block.
func (block *Block[T]) ComputeHash() (string, error) {
	serializedHeader, err := canonicaljson.Marshal(blockHeader{
		Index:        block.Index,
		MerkleRoot:   block.MerkleRoot,
		Nonce:        block.Nonce,
		PreviousHash: block.PreviousHash,
		Timestamp:    block.Timestamp,
	})
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	return block.hasherOrDefault().Hash(serializedHeader), nil
}

// VerifyRecord generates the inclusion proof for the record at the given
// index and verifies it against the stored Merkle root.
func (block *Block[T]) VerifyRecord(index int) error {
	tree, err := block.merkleTree()
	if err != nil {
		return tracerr.Wrap(err)
	}
	proof, err := tree.Proof(index)
	if err != nil {
		return tracerr.Wrap(err)
	}
	leaf, err := tree.Leaf(index)
	if err != nil {
		return tracerr.Wrap(err)
	}
	if !merkle.VerifyProof(leaf, proof, block.MerkleRoot, block.hasherOrDefault()) {
		return tracerr.Wrap(ErrorBlockRecordProofInvalid)
	}
	return nil
}

// IsValid checks the block's structure: non-negative index, non-empty
// previous hash, every record valid, and the stored Merkle root and content
// hash both matching recomputation. Pure and idempotent.
func (block *Block[T]) IsValid() bool {
	if block.Index < 0 {
		return false
	}
	if block.PreviousHash == "" {
		return false
	}
	for _, record := range block.Records {
		if !record.IsValid() {
			return false
		}
	}
	tree, err := block.merkleTree()
	if err != nil {
		return false
	}
	if block.MerkleRoot != tree.Root() {
		return false
	}
	contentHash, err := block.ComputeHash()
	if err != nil {
		return false
	}
	if block.ContentHash != contentHash {
		return false
	}
	return true
}

func (block *Block[T]) hasherOrDefault() merkle.Hasher {
	if block.hasher == nil {
		return merkle.DefaultHasher
	}
	return block.hasher
}

func (block *Block[T]) merkleTree() (*merkle.Tree, error) {
	items := make([]string, len(block.Records))
	for i, record := range block.Records {
		canonical, err := record.CanonicalString()
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		items[i] = canonical
	}
	return merkle.NewTree(items, block.hasherOrDefault()), nil
}

// rehash rebuilds the Merkle root from the records and recomputes the content
// hash.
func (block *Block[T]) rehash() error {
	tree, err := block.merkleTree()
	if err != nil {
		return tracerr.Wrap(err)
	}
	block.MerkleRoot = tree.Root()
	contentHash, err := block.ComputeHash()
	if err != nil {
		return tracerr.Wrap(err)
	}
	block.ContentHash = contentHash
	return nil
}

// relink attaches the block behind a predecessor: only Chain.Append calls
// this, on a clone of the caller's candidate.
func (block *Block[T]) relink(index int64, previousHash string, hasher merkle.Hasher) error {
	block.Index = index
	block.PreviousHash = previousHash
	if hasher != nil {
		block.hasher = hasher
	}
	err := block.rehash()
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

// clone copies the block header and its records, so that admission never
// mutates the caller's candidate.
func (block *Block[T]) clone() *Block[T] {
	blockCopy := *block
	blockCopy.Records = make([]*Record[T], len(block.Records))
	for i, record := range block.Records {
		recordCopy := *record
		recordCopy.Signature = append([]byte(nil), record.Signature...)
		blockCopy.Records[i] = &recordCopy
	}
	return &blockCopy
}
