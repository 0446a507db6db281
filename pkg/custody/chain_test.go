package custody

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytes(t *testing.T) {
	data := []byte("frame-0001")
	want := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(want[:]), HashBytes(data))
}

func TestChain_LinksUnits(t *testing.T) {
	chain := NewChain()

	first := chain.Next([]byte("alpha"))
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, GenesisHash, first.PrevHash)
	assert.Equal(t, HashBytes([]byte("alpha")), first.Hash)
	assert.Equal(t, 5, first.Size)

	second := chain.Next([]byte("beta"))
	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, first.Hash, second.PrevHash)

	assert.Equal(t, second.Hash, chain.Tip())
	assert.Equal(t, 2, chain.Length())
}

func TestResume_ContinuesFromTip(t *testing.T) {
	chain := NewChain()
	first := chain.Next([]byte("alpha"))

	resumed := Resume(chain.Tip(), chain.Length())
	second := resumed.Next([]byte("beta"))

	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, first.Hash, second.PrevHash)
}

func TestResume_EmptyTipAnchorsAtGenesis(t *testing.T) {
	chain := Resume("", 0)
	assert.Equal(t, GenesisHash, chain.Tip())
}

func TestVerify(t *testing.T) {
	chain := NewChain()
	units := []Unit{
		chain.Next([]byte("alpha")),
		chain.Next([]byte("beta")),
		chain.Next([]byte("gamma")),
	}

	require.NoError(t, Verify(units))

	t.Run("empty chain is valid", func(t *testing.T) {
		assert.NoError(t, Verify(nil))
	})

	t.Run("tampered payload breaks the link", func(t *testing.T) {
		tampered := make([]Unit, len(units))
		copy(tampered, units)
		tampered[1].Hash = HashBytes([]byte("evil"))

		assert.Error(t, Verify(tampered))
	})

	t.Run("sequence gap is rejected", func(t *testing.T) {
		gapped := make([]Unit, len(units))
		copy(gapped, units)
		gapped[2].Sequence = 5

		assert.Error(t, Verify(gapped))
	})

	t.Run("wrong anchor is rejected", func(t *testing.T) {
		wrong := make([]Unit, len(units))
		copy(wrong, units)
		wrong[0].PrevHash = HashBytes([]byte("not genesis"))

		assert.Error(t, Verify(wrong))
	})
}
