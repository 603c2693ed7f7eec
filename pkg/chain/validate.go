package chain

import (
	"encoding/hex"
	"fmt"

	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// --- Chain Validator ---
//
// Pure: no state, no IO. A chain is valid iff it is non-empty, starts at
// a well-formed genesis, links hashes sequentially, and every block's
// hash and signature check out under the pinned key.

func fail(i int, format string, args ...any) types.ValidationResult {
	return types.ValidationResult{Valid: false, FailedAtIndex: i, Error: fmt.Sprintf(format, args...)}
}

// Validate checks the structural and cryptographic integrity of blocks.
func Validate(blocks []types.Block) types.ValidationResult {
	if len(blocks) == 0 {
		return fail(0, "empty chain")
	}
	genesis := blocks[0]
	if genesis.Index != 0 {
		return fail(0, "genesis index is %d, want 0", genesis.Index)
	}
	if genesis.PrevHash != "" {
		return fail(0, "genesis prevHash must be empty")
	}
	for i, b := range blocks {
		if b.Index != i {
			return fail(i, "index %d out of sequence, want %d", b.Index, i)
		}
		if b.PlayerID != genesis.PlayerID {
			return fail(i, "playerId %q differs from genesis %q", b.PlayerID, genesis.PlayerID)
		}
		if b.PublicKey != genesis.PublicKey {
			return fail(i, "publicKey differs from genesis")
		}
		if i > 0 && b.PrevHash != blocks[i-1].Hash {
			return fail(i, "prevHash does not link to block %d", i-1)
		}
		if recomputed := HashBlock(b); recomputed != b.Hash {
			return fail(i, "hash mismatch: recomputed %s, stored %s", recomputed, b.Hash)
		}
		raw, err := hex.DecodeString(b.Hash)
		if err != nil {
			return fail(i, "hash is not hex: %v", err)
		}
		if !core.VerifyHex(b.PublicKey, raw, b.Signature) {
			return fail(i, "signature does not verify")
		}
	}
	return types.ValidationResult{Valid: true, FailedAtIndex: -1}
}

// VerifyBlock checks one block in isolation (hash + signature), the
// broadcaster's per-block pipeline steps.
func VerifyBlock(b types.Block) error {
	if recomputed := HashBlock(b); recomputed != b.Hash {
		return fmt.Errorf("hash mismatch")
	}
	raw, err := hex.DecodeString(b.Hash)
	if err != nil {
		return fmt.Errorf("hash is not hex: %v", err)
	}
	if !core.VerifyHex(b.PublicKey, raw, b.Signature) {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}
