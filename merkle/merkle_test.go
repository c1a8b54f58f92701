package merkle

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

type sha512Hasher struct{}

func (sha512Hasher) Hash(data []byte) string {
	digest := sha512.Sum512(data)
	return hex.EncodeToString(digest[:])
}

func items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", i)
	}
	return out
}

func TestTreeRoot(t *testing.T) {
	t.Parallel()
	t.Run("empty tree has the empty sentinel root", func(t *testing.T) {
		tree := NewTree(nil, nil)
		assert.Equal(t, EmptyRoot, tree.Root())
		assert.Equal(t, 0, tree.Size())
	})

	t.Run("single leaf root is the leaf digest", func(t *testing.T) {
		tree := NewTree([]string{"only"}, nil)
		assert.Equal(t, DefaultHasher.Hash([]byte("only")), tree.Root())
		assert.Equal(t, 1, tree.Size())
	})

	t.Run("two leaves combine", func(t *testing.T) {
		tree := NewTree([]string{"a", "b"}, nil)
		left := DefaultHasher.Hash([]byte("a"))
		right := DefaultHasher.Hash([]byte("b"))
		assert.Equal(t, DefaultHasher.Hash([]byte(left+right)), tree.Root())
	})

	t.Run("odd level duplicates its last node", func(t *testing.T) {
		tree := NewTree([]string{"a", "b", "c"}, nil)
		la := DefaultHasher.Hash([]byte("a"))
		lb := DefaultHasher.Hash([]byte("b"))
		lc := DefaultHasher.Hash([]byte("c"))
		ab := DefaultHasher.Hash([]byte(la + lb))
		cc := DefaultHasher.Hash([]byte(lc + lc))
		assert.Equal(t, DefaultHasher.Hash([]byte(ab+cc)), tree.Root())
	})

	t.Run("deterministic, and sensitive to any item", func(t *testing.T) {
		base := items(5)
		root := NewTree(base, nil).Root()
		assert.Equal(t, root, NewTree(items(5), nil).Root())

		for i := range base {
			changed := items(5)
			changed[i] = changed[i] + "x"
			assert.NotEqual(t, root, NewTree(changed, nil).Root(), "changing item %d must change the root", i)
		}
	})
}

func TestProofs(t *testing.T) {
	t.Parallel()
	t.Run("every leaf proves inclusion, odd and even sizes", func(t *testing.T) {
		for size := 1; size <= 8; size++ {
			tree := NewTree(items(size), nil)
			for i := 0; i < size; i++ {
				proof, err := tree.Proof(i)
				require.NoError(t, err)
				leaf, err := tree.Leaf(i)
				require.NoError(t, err)
				assert.True(t, VerifyProof(leaf, proof, tree.Root(), nil), "size %d leaf %d", size, i)
			}
		}
	})

	t.Run("single leaf has an empty proof", func(t *testing.T) {
		tree := NewTree([]string{"only"}, nil)
		proof, err := tree.Proof(0)
		require.NoError(t, err)
		assert.Empty(t, proof)
		assert.True(t, VerifyProof(tree.Root(), proof, tree.Root(), nil))
	})

	t.Run("flipped leaf fails", func(t *testing.T) {
		tree := NewTree(items(6), nil)
		proof, err := tree.Proof(2)
		require.NoError(t, err)
		wrongLeaf := DefaultHasher.Hash([]byte("item-2 tampered"))
		assert.False(t, VerifyProof(wrongLeaf, proof, tree.Root(), nil))
	})

	t.Run("tampered sibling fails", func(t *testing.T) {
		tree := NewTree(items(6), nil)
		proof, err := tree.Proof(3)
		require.NoError(t, err)
		leaf, err := tree.Leaf(3)
		require.NoError(t, err)
		proof[1].Sibling = DefaultHasher.Hash([]byte("evil"))
		assert.False(t, VerifyProof(leaf, proof, tree.Root(), nil))
	})

	t.Run("wrong root fails", func(t *testing.T) {
		tree := NewTree(items(4), nil)
		proof, err := tree.Proof(0)
		require.NoError(t, err)
		leaf, err := tree.Leaf(0)
		require.NoError(t, err)
		assert.False(t, VerifyProof(leaf, proof, DefaultHasher.Hash([]byte("other")), nil))
	})

	t.Run("out of range", func(t *testing.T) {
		tree := NewTree(items(3), nil)
		_, err := tree.Proof(-1)
		assert.ErrorIs(t, err, ErrorLeafIndexOutOfRange)
		_, err = tree.Proof(3)
		assert.ErrorIs(t, err, ErrorLeafIndexOutOfRange)
		_, err = tree.Leaf(3)
		assert.ErrorIs(t, err, ErrorLeafIndexOutOfRange)

		empty := NewTree(nil, nil)
		_, err = empty.Proof(0)
		assert.ErrorIs(t, err, ErrorLeafIndexOutOfRange)
	})
}

func TestCustomHasher(t *testing.T) {
	t.Parallel()
	tree := NewTree(items(5), sha512Hasher{})
	assert.Len(t, tree.Root(), 128)

	proof, err := tree.Proof(4)
	require.NoError(t, err)
	leaf, err := tree.Leaf(4)
	require.NoError(t, err)

	assert.True(t, VerifyProof(leaf, proof, tree.Root(), sha512Hasher{}))
	// proof verification must use the tree's own hasher
	assert.False(t, VerifyProof(leaf, proof, tree.Root(), nil))

	assert.NotEqual(t, tree.Root(), NewTree(items(5), nil).Root())
}

func TestLeaves(t *testing.T) {
	t.Parallel()
	tree := NewTree([]string{"a", "b"}, nil)
	leaves := tree.Leaves()
	assert.Equal(t, []string{DefaultHasher.Hash([]byte("a")), DefaultHasher.Hash([]byte("b"))}, leaves)

	// mutating the returned slice must not touch the tree
	leaves[0] = "tampered"
	fresh, err := tree.Leaf(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultHasher.Hash([]byte("a")), fresh)
}
