// Package custody maintains a hash chain over captured media units.
//
// Each unit is hashed with SHA-256 and linked to its predecessor by carrying
// the predecessor's hash, so any later tampering with a stored unit breaks
// the chain from that point forward.
package custody

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenesisHash anchors the first unit of every chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Unit is a single chained media unit.
type Unit struct {
	// Sequence is the 1-based position of the unit in the chain.
	Sequence int `json:"sequence"`

	// Hash is the lowercase hex SHA-256 digest of the unit's bytes.
	Hash string `json:"hash"`

	// PrevHash is the hash of the preceding unit, or GenesisHash for the
	// first unit.
	PrevHash string `json:"prevHash"`

	// Size is the unit's byte length.
	Size int `json:"size"`
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Chain threads hashes through a sequence of units.
// It is not safe for concurrent use.
type Chain struct {
	lastHash string
	length   int
}

// NewChain returns an empty chain anchored at the genesis hash.
func NewChain() *Chain {
	return &Chain{lastHash: GenesisHash}
}

// Resume returns a chain continuing from the given tip. It is used when a
// capture is picked up again after a restart.
func Resume(lastHash string, length int) *Chain {
	if lastHash == "" {
		lastHash = GenesisHash
	}
	return &Chain{lastHash: lastHash, length: length}
}

// Next hashes data and appends it to the chain, returning the resulting
// unit.
func (c *Chain) Next(data []byte) Unit {
	unit := Unit{
		Sequence: c.length + 1,
		Hash:     HashBytes(data),
		PrevHash: c.lastHash,
		Size:     len(data),
	}
	c.lastHash = unit.Hash
	c.length++
	return unit
}

// Tip returns the hash of the most recent unit, or GenesisHash if the chain
// is empty.
func (c *Chain) Tip() string {
	return c.lastHash
}

// Length returns the number of units appended so far.
func (c *Chain) Length() int {
	return c.length
}

// Verify checks that units form a contiguous chain: sequences increase by
// one, each unit's PrevHash matches its predecessor's Hash, and the first
// unit is anchored at the genesis hash.
func Verify(units []Unit) error {
	prev := GenesisHash
	for i, u := range units {
		if u.Sequence != i+1 {
			return fmt.Errorf("unit %d: expected sequence %d, got %d", i, i+1, u.Sequence)
		}
		if !strings.EqualFold(u.PrevHash, prev) {
			return fmt.Errorf("unit %d: chain broken, prevHash %s does not match %s", u.Sequence, u.PrevHash, prev)
		}
		prev = u.Hash
	}
	return nil
}
