package p2p

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hugoguerrap/nodecoin/pkg/store"
	"github.com/hugoguerrap/nodecoin/pkg/types"
	"github.com/hugoguerrap/nodecoin/pkg/world"
)

// --- Coordinator ---
//
// Owns the gossip stack for one node: registry, chain broadcaster, state
// syncer, and the announce/prune loops. On a new peer connection it saves
// the multiaddr as a reconnection hint, announces itself, pushes the full
// shared document, and asks for the peer's chain from index zero.

const (
	announceInterval = 30 * time.Second
	peerStaleAfter   = 5 * time.Minute
)

type Coordinator struct {
	bus    Bus
	store  *store.Store
	log    *log.Logger
	selfID string
	name   string
	era    func() int
	now    func() int64

	Registry    *Registry
	Broadcaster *Broadcaster
	Syncer      *Syncer

	cancel context.CancelFunc
}

func NewCoordinator(bus Bus, st *store.Store, view *world.View, logger *log.Logger,
	selfID, playerName string, era func() int, now func() int64) *Coordinator {
	return &Coordinator{
		bus:         bus,
		store:       st,
		log:         logger,
		selfID:      selfID,
		name:        playerName,
		era:         era,
		now:         now,
		Registry:    NewRegistry(),
		Broadcaster: NewBroadcaster(bus, st, logger, selfID, now),
		Syncer:      NewSyncer(bus, view, logger, selfID, now),
	}
}

// Start subscribes everything and launches the background loops.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.Broadcaster.Start()
	c.Syncer.Start(ctx)
	c.bus.Subscribe(types.TopicAnnounce, c.handleAnnounce)

	go func() {
		ticker := time.NewTicker(announceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.PublishAnnounce()
				for _, id := range c.Registry.Prune(time.Now(), peerStaleAfter) {
					c.log.Printf("pruning stale peer %s", id)
				}
			}
		}
	}()
}

// Stop halts the loops. The bus is closed by the owner.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// PeerConnected is wired to the transport's connect notifier.
func (c *Coordinator) PeerConnected(peerID, multiaddr string) {
	now := time.Now()
	c.Registry.Connected(peerID, multiaddr, now)
	if err := c.store.UpsertPeer(types.KnownPeer{
		Multiaddr: multiaddr,
		PeerID:    peerID,
		LastSeen:  now.UnixMilli(),
	}); err != nil {
		c.log.Printf("save known peer %s: %v", multiaddr, err)
	}
	c.PublishAnnounce()
	c.Syncer.BroadcastFull()
	c.requestAllChains()
}

// requestAllChains asks every known remote player for history from zero.
// The playerId is empty, so every peer with a local chain answers with
// its own blocks.
func (c *Coordinator) requestAllChains() {
	env, err := NewEnvelope(types.MsgChainRequest, c.selfID, c.now(), types.ChainRequestPayload{
		PlayerID:    "",
		FromIndex:   0,
		RequesterID: c.selfID,
	})
	if err != nil {
		return
	}
	c.bus.Publish(types.TopicCommands, env)
}

// PublishAnnounce emits this node's presence on the announce topic.
func (c *Coordinator) PublishAnnounce() {
	env, err := NewEnvelope(types.MsgAnnounce, c.selfID, c.now(), types.AnnouncePayload{
		PlayerID:   c.selfID,
		PlayerName: c.name,
		Era:        c.era(),
	})
	if err != nil {
		return
	}
	if err := c.bus.Publish(types.TopicAnnounce, env); err != nil {
		c.log.Printf("announce failed: %v", err)
	}
}

func (c *Coordinator) handleAnnounce(env types.Envelope) {
	if env.SenderID == c.selfID {
		return
	}
	var p types.AnnouncePayload
	if json.Unmarshal(env.Payload, &p) != nil {
		return
	}
	c.Registry.Announce(p.PlayerID, p.PlayerName, p.Era, p.Address, time.Now())
}
