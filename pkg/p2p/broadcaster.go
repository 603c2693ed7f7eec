package p2p

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/hugoguerrap/nodecoin/pkg/chain"
	"github.com/hugoguerrap/nodecoin/pkg/store"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// --- Chain Broadcaster ---
//
// Subscribes to the commands topic and runs every inbound block through
// the verification pipeline: self-filter, rate limit, clock skew, hash,
// signature, identity binding, idempotency, linkage. Accepted blocks are
// persisted, appended to the in-memory remote chain, and handed to the
// remote-block callback. Gaps trigger a ChainRequest; we only answer
// requests for our own chain, since each player is the authoritative
// source for their own history.

const (
	maxClockSkew  = 5 * time.Minute
	seenCacheSize = 4096
)

// remoteChain is the per-player sync state machine: Unknown until a
// genesis arrives, then growing in strict index order, Lagging while a
// gap is outstanding.
type remoteChain struct {
	blocks  []types.Block
	pubKey  string
	lagging bool
}

type Broadcaster struct {
	bus      Bus
	store    *store.Store
	log      *log.Logger
	selfID   string
	now      func() int64

	// LocalChain answers ChainRequests for our own player.
	localPlayerID string
	localBlocks   func(fromIndex int) []types.Block

	onRemoteBlock func(b types.Block, senderID string)

	mu      sync.Mutex
	remotes map[string]*remoteChain
	pinned  map[string]string // playerID -> publicKey hex, fixed at genesis

	limiter *senderLimiter
	seen    *lru.Cache
}

func NewBroadcaster(bus Bus, st *store.Store, logger *log.Logger, selfID string, now func() int64) *Broadcaster {
	seen, _ := lru.New(seenCacheSize)
	return &Broadcaster{
		bus:     bus,
		store:   st,
		log:     logger,
		selfID:  selfID,
		now:     now,
		remotes: map[string]*remoteChain{},
		pinned:  map[string]string{},
		limiter: newSenderLimiter(),
		seen:    seen,
	}
}

// SetLocalChain wires the authoritative source for our own blocks.
func (b *Broadcaster) SetLocalChain(playerID string, blocks func(fromIndex int) []types.Block) {
	b.localPlayerID = playerID
	b.localBlocks = blocks
}

// OnRemoteBlock registers the callback invoked after acceptance.
func (b *Broadcaster) OnRemoteBlock(fn func(block types.Block, senderID string)) {
	b.onRemoteBlock = fn
}

// Start subscribes to the commands topic.
func (b *Broadcaster) Start() {
	b.bus.Subscribe(types.TopicCommands, b.handleMessage)
}

// Broadcast publishes one of our own blocks.
func (b *Broadcaster) Broadcast(block types.Block) error {
	env, err := NewEnvelope(types.MsgChainBlock, b.selfID, b.now(), types.ChainBlockPayload{Block: block})
	if err != nil {
		return err
	}
	return b.bus.Publish(types.TopicCommands, env)
}

// RemoteChain returns a copy of the accepted blocks for a player.
func (b *Broadcaster) RemoteChain(playerID string) []types.Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	rc, ok := b.remotes[playerID]
	if !ok {
		return nil
	}
	out := make([]types.Block, len(rc.blocks))
	copy(out, rc.blocks)
	return out
}

// KnownPlayers lists player ids with at least a genesis accepted.
func (b *Broadcaster) KnownPlayers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.remotes))
	for id := range b.remotes {
		out = append(out, id)
	}
	return out
}

func (b *Broadcaster) handleMessage(env types.Envelope) {
	if env.SenderID == b.selfID {
		return
	}
	if !b.limiter.allow(env.SenderID) {
		return
	}
	switch env.Type {
	case types.MsgChainBlock:
		var p types.ChainBlockPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		b.processBlock(p.Block, env.SenderID)
	case types.MsgChainRequest:
		var p types.ChainRequestPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		b.handleChainRequest(p)
	case types.MsgChainResponse:
		var p types.ChainResponsePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		for _, blk := range p.Blocks {
			b.processBlock(blk, env.SenderID)
		}
	}
}

// processBlock is the per-block pipeline. Integrity failures drop the
// block silently per the error policy; only linkage gaps produce
// outbound traffic. Publishes and the remote-block callback run after
// the lock is released, so a synchronous bus cannot re-enter it.
func (b *Broadcaster) processBlock(block types.Block, senderID string) {
	if block.PlayerID == b.localPlayerID {
		return
	}
	if block.Timestamp > b.now()+maxClockSkew.Milliseconds() {
		return
	}
	if err := chain.VerifyBlock(block); err != nil {
		b.log.Printf("rejected block %s from %s: %v", block.Hash, senderID, err)
		return
	}

	requestFrom := -1
	accepted := false

	b.mu.Lock()
	func() {
		// Identity binding: the key seen at genesis is pinned for life.
		if pinned, ok := b.pinned[block.PlayerID]; ok {
			if pinned != block.PublicKey {
				b.log.Printf("identity mismatch for %s: rejecting block %s", block.PlayerID, block.Hash)
				return
			}
		} else if block.Index != 0 {
			// Non-genesis from an unknown player: ask for history.
			requestFrom = 0
			return
		}

		if b.seen.Contains(block.Hash) {
			return
		}
		if has, err := b.store.HasBlock(block.Hash); err != nil || has {
			return
		}

		rc, ok := b.remotes[block.PlayerID]
		if !ok {
			rc = &remoteChain{}
			b.remotes[block.PlayerID] = rc
		}
		expected := len(rc.blocks)

		switch {
		case block.Index == 0:
			if expected > 0 {
				// First-seen genesis wins locally; competing histories
				// are dropped.
				return
			}
		case block.Index == expected:
			if block.PrevHash != rc.blocks[expected-1].Hash {
				requestFrom = expected
				return
			}
		case block.Index > expected:
			rc.lagging = true
			requestFrom = expected
			return
		default:
			// Older than our tail: already have it or a fork; drop.
			return
		}

		if err := b.store.SaveBlock(block); err != nil {
			b.log.Printf("persist block %s: %v", block.Hash, err)
			return
		}
		if block.Index == 0 {
			b.pinned[block.PlayerID] = block.PublicKey
			rc.pubKey = block.PublicKey
		}
		rc.blocks = append(rc.blocks, block)
		rc.lagging = false
		b.seen.Add(block.Hash, struct{}{})
		accepted = true
	}()
	b.mu.Unlock()

	if requestFrom >= 0 {
		b.requestChain(block.PlayerID, requestFrom)
	}
	if accepted && block.Index > 0 && b.onRemoteBlock != nil {
		b.onRemoteBlock(block, senderID)
	}
}

func (b *Broadcaster) requestChain(playerID string, fromIndex int) {
	env, err := NewEnvelope(types.MsgChainRequest, b.selfID, b.now(), types.ChainRequestPayload{
		PlayerID:    playerID,
		FromIndex:   fromIndex,
		RequesterID: b.selfID,
	})
	if err != nil {
		return
	}
	b.bus.Publish(types.TopicCommands, env)
}

// handleChainRequest answers only for our own chain. An empty playerId
// means "send me your chain" and is what fresh peers broadcast on
// connect, before they know who is listening.
func (b *Broadcaster) handleChainRequest(p types.ChainRequestPayload) {
	if b.localBlocks == nil {
		return
	}
	if p.PlayerID != "" && p.PlayerID != b.localPlayerID {
		return
	}
	blocks := b.localBlocks(p.FromIndex)
	if len(blocks) == 0 {
		return
	}
	env, err := NewEnvelope(types.MsgChainResponse, b.selfID, b.now(), types.ChainResponsePayload{
		PlayerID: p.PlayerID,
		Blocks:   blocks,
	})
	if err != nil {
		return
	}
	b.bus.Publish(types.TopicCommands, env)
}
