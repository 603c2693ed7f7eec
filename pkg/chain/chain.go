// Package chain implements the per-player append-only log of executed
// commands. Every block is hash-linked to its predecessor and Ed25519
// signed by the player key pinned at genesis.
package chain

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// Chain holds one player's blocks plus the signing key.
type Chain struct {
	playerID string
	priv     ed25519.PrivateKey
	pubHex   string
	blocks   []types.Block
}

// hashBlock recomputes the canonical hash of a block: sha256 over the
// canonical encoding of every field except hash and signature.
func hashBlock(b types.Block) string {
	pre := map[string]any{
		"prevHash":  b.PrevHash,
		"index":     b.Index,
		"playerId":  b.PlayerID,
		"command":   b.Command,
		"stateHash": b.StateHash,
		"timestamp": b.Timestamp,
		"publicKey": b.PublicKey,
	}
	return core.HashObject(pre)
}

// HashBlock is the exported recompute used by the validator and the
// broadcaster pipeline.
func HashBlock(b types.Block) string {
	return hashBlock(b)
}

// New starts a chain with a genesis block recording the player's
// immutable origin: name, biome, and world seed.
func New(playerID, playerName, biome, seed string, priv ed25519.PrivateKey, now int64) *Chain {
	c := &Chain{
		playerID: playerID,
		priv:     priv,
		pubHex:   hex.EncodeToString(priv.Public().(ed25519.PublicKey)),
	}
	genesis := types.Block{
		PrevHash: "",
		Index:    0,
		PlayerID: playerID,
		Command: types.Command{
			Type: types.CmdGenesis,
			Args: map[string]any{"playerName": playerName, "biome": biome, "seed": seed},
			Tick: 0,
		},
		StateHash: "",
		Timestamp: now,
		PublicKey: c.pubHex,
	}
	c.seal(&genesis)
	c.blocks = []types.Block{genesis}
	return c
}

// Load rebuilds a chain from persisted blocks (ordered by index).
func Load(playerID string, priv ed25519.PrivateKey, blocks []types.Block) *Chain {
	return &Chain{
		playerID: playerID,
		priv:     priv,
		pubHex:   hex.EncodeToString(priv.Public().(ed25519.PublicKey)),
		blocks:   blocks,
	}
}

func (c *Chain) seal(b *types.Block) {
	b.Hash = hashBlock(*b)
	raw, _ := hex.DecodeString(b.Hash)
	b.Signature = core.SignHex(c.priv, raw)
}

// Append records an executed command with its post-command state hash.
func (c *Chain) Append(cmdType string, args map[string]any, tick int64, stateHash string, now int64) types.Block {
	last := c.blocks[len(c.blocks)-1]
	b := types.Block{
		PrevHash:  last.Hash,
		Index:     last.Index + 1,
		PlayerID:  c.playerID,
		Command:   types.Command{Type: cmdType, Args: args, Tick: tick},
		StateHash: stateHash,
		Timestamp: now,
		PublicKey: c.pubHex,
	}
	c.seal(&b)
	c.blocks = append(c.blocks, b)
	return b
}

// Blocks returns a copy of the chain.
func (c *Chain) Blocks() []types.Block {
	out := make([]types.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Tail returns the newest n blocks.
func (c *Chain) Tail(n int) []types.Block {
	if n <= 0 || n > len(c.blocks) {
		n = len(c.blocks)
	}
	out := make([]types.Block, n)
	copy(out, c.blocks[len(c.blocks)-n:])
	return out
}

func (c *Chain) Length() int { return len(c.blocks) }

func (c *Chain) Latest() types.Block { return c.blocks[len(c.blocks)-1] }

func (c *Chain) PlayerID() string { return c.playerID }

func (c *Chain) PublicKeyHex() string { return c.pubHex }

// Status summarises the chain for queries.
func (c *Chain) Status() types.ChainStatus {
	return types.ChainStatus{
		PlayerID:   c.playerID,
		Length:     len(c.blocks),
		LatestHash: c.Latest().Hash,
		PublicKey:  c.pubHex,
	}
}
