// Package merkle implements the Merkle tree backing block record summaries,
// with inclusion proofs that carry explicit sibling directions.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorLeafIndexOutOfRange is returned when requesting a proof or a leaf for an index outside the tree
	ErrorLeafIndexOutOfRange = utils.NewChainTrailError("MERKLE_LEAF_INDEX_OUT_OF_RANGE", "leaf index out of range")
)

// EmptyRoot is the root of a tree built over zero items.
const EmptyRoot = ""

// Hasher computes hex-encoded digests. A tree uses exactly one Hasher for
// leaves and internal nodes, and the chain reuses the same Hasher for block
// content hashes.
type Hasher interface {
	Hash(data []byte) string
}

// SHA256Hasher is the default Hasher, producing hex-encoded SHA-256 digests.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// DefaultHasher is used whenever a nil Hasher is given.
var DefaultHasher Hasher = SHA256Hasher{}

// ProofStep is one step of an inclusion proof. Sibling is the hex digest to
// combine with, Left tells whether it sits on the left of the running hash.
type ProofStep struct {
	Sibling string `json:"sibling" bson:"sibling"`
	Left    bool   `json:"left" bson:"left"`
}

// Tree is an immutable Merkle tree. Leaves are the digests of the item
// strings given at construction; each internal node is the digest of the
// concatenated hex digests of its children. A level with an odd node count
// combines its last node with itself.
type Tree struct {
	hasher Hasher
	levels [][]string
}

// NewTree hashes each item to form the leaf level, then builds the tree
// bottom-up. A nil hasher falls back to DefaultHasher.
func NewTree(items []string, hasher Hasher) *Tree {
	if hasher == nil {
		hasher = DefaultHasher
	}

	leaves := utils.SliceMap(items, func(item string) string {
		return hasher.Hash([]byte(item))
	})

	tree := &Tree{hasher: hasher, levels: [][]string{leaves}}
	current := leaves
	for len(current) > 1 {
		next := make([]string, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, combine(hasher, current[i], current[i+1]))
			} else {
				next = append(next, combine(hasher, current[i], current[i]))
			}
		}
		tree.levels = append(tree.levels, next)
		current = next
	}
	return tree
}

func combine(hasher Hasher, left string, right string) string {
	return hasher.Hash([]byte(left + right))
}

// Root returns the root digest, or EmptyRoot for a tree over zero items.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return EmptyRoot
	}
	return top[0]
}

// Size returns the number of leaves.
func (t *Tree) Size() int {
	return len(t.levels[0])
}

// Leaves returns a copy of the leaf digests.
func (t *Tree) Leaves() []string {
	leaves := make([]string, len(t.levels[0]))
	copy(leaves, t.levels[0])
	return leaves
}

// Leaf returns the digest of the leaf at the given index.
func (t *Tree) Leaf(index int) (string, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return "", tracerr.Wrap(ErrorLeafIndexOutOfRange)
	}
	return t.levels[0][index], nil
}

// Proof returns the inclusion proof for the leaf at the given index, ordered
// from the leaf level up. Verification needs no index bookkeeping: every step
// records on which side its sibling goes.
func (t *Tree) Proof(index int) ([]ProofStep, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, tracerr.Wrap(ErrorLeafIndexOutOfRange)
	}

	proof := []ProofStep{}
	for _, level := range t.levels[:len(t.levels)-1] {
		siblingIndex := utils.Ternary(index%2 == 0, index+1, index-1)
		if siblingIndex >= len(level) {
			siblingIndex = index // odd level end: the node is combined with itself
		}
		proof = append(proof, ProofStep{
			Sibling: level[siblingIndex],
			Left:    siblingIndex < index,
		})
		index = index / 2
	}
	return proof, nil
}

// VerifyProof recomputes the root from a leaf digest and a proof, and checks
// it against the expected root. It is a pure function: it needs no tree, only
// the same Hasher the tree was built with.
func VerifyProof(leafHash string, proof []ProofStep, root string, hasher Hasher) bool {
	if hasher == nil {
		hasher = DefaultHasher
	}
	current := leafHash
	for _, step := range proof {
		if step.Left {
			current = combine(hasher, step.Sibling, current)
		} else {
			current = combine(hasher, current, step.Sibling)
		}
	}
	return current == root
}
