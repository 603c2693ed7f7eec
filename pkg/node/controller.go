// Package node glues the engine, chain, store and network together. The
// controller owns the single mutable GameState; every state-touching path
// enters through its mutex, so one command is one critical section.
package node

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hugoguerrap/nodecoin/pkg/chain"
	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/game"
	"github.com/hugoguerrap/nodecoin/pkg/p2p"
	"github.com/hugoguerrap/nodecoin/pkg/rng"
	"github.com/hugoguerrap/nodecoin/pkg/store"
	"github.com/hugoguerrap/nodecoin/pkg/types"
	"github.com/hugoguerrap/nodecoin/pkg/world"
)

// Config is everything the controller needs to boot a settlement.
type Config struct {
	PlayerID   string
	PlayerName string
	Biome      string
	Seed       string
	Now        func() int64 // unix millis; defaults to wall clock
}

type Controller struct {
	mu sync.Mutex

	log   *log.Logger
	state *types.PlayerState
	chain *chain.Chain
	store *store.Store
	view  *world.View
	clock *rng.Clock
	priv  ed25519.PrivateKey
	coord *p2p.Coordinator

	seed string
	now  func() int64
}

// New restores identity, state and chain from the store, creating all
// three on first boot (teacher-style first-boot detection via meta keys).
func New(cfg Config, st *store.Store, logger *log.Logger) (*Controller, error) {
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixMilli() }
	}
	c := &Controller{log: logger, store: st, now: cfg.Now, seed: cfg.Seed}

	privHex, err := st.GetMeta("private_key")
	if err != nil {
		return nil, errors.Wrap(err, "load identity")
	}
	if privHex == "" {
		logger.Println("First boot detected. Generating identity...")
		pub, priv, err := core.GenerateKeypair()
		if err != nil {
			return nil, errors.Wrap(err, "generate keypair")
		}
		c.priv = priv
		if err := st.SetMeta("private_key", hex.EncodeToString(priv)); err != nil {
			return nil, err
		}
		if err := st.SetMeta("public_key", hex.EncodeToString(pub)); err != nil {
			return nil, err
		}
		if err := st.SetMeta("address", core.DeriveAddress(pub)); err != nil {
			return nil, err
		}
	} else {
		raw, err := hex.DecodeString(privHex)
		if err != nil || len(raw) != ed25519.PrivateKeySize {
			return nil, errors.New("corrupt private key in store")
		}
		c.priv = ed25519.PrivateKey(raw)
	}

	// State: resume from the latest snapshot or create the settlement.
	snap, _, err := st.LatestSnapshot(cfg.PlayerID)
	if err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}
	if snap != nil {
		c.state, err = game.Deserialize(snap)
		if err != nil {
			return nil, errors.Wrap(err, "decode snapshot")
		}
	} else {
		if !game.ValidBiome(cfg.Biome) {
			return nil, errors.Errorf("unknown biome %q", cfg.Biome)
		}
		c.state = game.NewPlayerState(cfg.PlayerID, cfg.PlayerName, cfg.Biome, cfg.Now())
	}

	// Clock anchors at creation so ticks are stable across restarts.
	startMeta, _ := st.GetMeta("start_time")
	var start int64
	if startMeta != "" {
		fmt.Sscanf(startMeta, "%d", &start)
	} else {
		start = c.state.CreatedAt
		st.SetMeta("start_time", fmt.Sprintf("%d", start))
	}
	c.clock = rng.NewClock(start)

	// Chain: resume or write genesis.
	blocks, err := st.LoadChain(cfg.PlayerID)
	if err != nil {
		return nil, errors.Wrap(err, "load chain")
	}
	if len(blocks) > 0 {
		c.chain = chain.Load(cfg.PlayerID, c.priv, blocks)
	} else {
		c.chain = chain.New(cfg.PlayerID, cfg.PlayerName, cfg.Biome, cfg.Seed, c.priv, cfg.Now())
		if err := st.SaveBlock(c.chain.Latest()); err != nil {
			return nil, errors.Wrap(err, "persist genesis")
		}
	}

	// World view: restore the persisted doc when present.
	if docBytes, err := st.LoadWorldDoc(); err == nil && docBytes != nil {
		if v, err := world.LoadView(docBytes, c.priv); err == nil {
			c.view = v
		}
	}
	if c.view == nil {
		c.view = world.NewView(c.priv)
	}
	return c, nil
}

func (c *Controller) PlayerID() string       { return c.chain.PlayerID() }
func (c *Controller) View() *world.View      { return c.view }
func (c *Controller) Clock() *rng.Clock      { return c.clock }
func (c *Controller) PrivateKey() ed25519.PrivateKey { return c.priv }

// Era reads the current era without copying the whole state.
func (c *Controller) Era() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Era
}

// SetNetwork wires the gossip coordinator after boot and registers the
// remote-block dispatcher and local-chain provider.
func (c *Controller) SetNetwork(coord *p2p.Coordinator) {
	c.coord = coord
	coord.Broadcaster.SetLocalChain(c.PlayerID(), func(fromIndex int) []types.Block {
		c.mu.Lock()
		defer c.mu.Unlock()
		blocks := c.chain.Blocks()
		if fromIndex < 0 || fromIndex >= len(blocks) {
			return nil
		}
		return blocks[fromIndex:]
	})
	coord.Broadcaster.OnRemoteBlock(c.HandleRemoteBlock)
}

// --- Tick Catch-Up ---

func (c *Controller) catchUpLocked() {
	current := c.clock.CurrentTick(c.now())
	if current <= c.state.LastTickProcessed {
		return
	}
	from := c.state.LastTickProcessed + 1
	game.ProcessTickRange(c.state, from, current)
	c.persistSnapshotLocked()
}

func (c *Controller) persistSnapshotLocked() {
	data, err := game.Serialize(c.state)
	if err != nil {
		c.fatal(errors.Wrap(err, "serialize state"))
		return
	}
	if err := c.store.SaveSnapshot(c.state.ID, c.state.Tick, data, game.StateHash(c.state)); err != nil {
		c.fatal(errors.Wrap(err, "persist snapshot"))
	}
}

// journalLocked records an executed action in the opaque journal
// (teacher's transaction_log). Journal failures never block commands.
func (c *Controller) journalLocked(actionType string, args map[string]any) {
	payload, err := json.Marshal(args)
	if err != nil {
		return
	}
	if err := c.store.AppendJournal(c.state.Tick, actionType, payload); err != nil {
		c.log.Printf("journal %s: %v", actionType, err)
	}
}

// fatal is the escalation path: the critical section can no longer
// maintain invariants, so surface and stop writing.
func (c *Controller) fatal(err error) {
	c.log.Printf("FATAL: %v", err)
	panic(err)
}

// CatchUpTicks drains pending ticks and returns how many ran.
func (c *Controller) CatchUpTicks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.state.LastTickProcessed
	c.catchUpLocked()
	return c.state.LastTickProcessed - before
}

// --- Command Envelope ---

// executeAndRecord is the single write path for local commands: catch up,
// run the handler, persist snapshot+block atomically, broadcast, publish
// derived world mutations.
func (c *Controller) executeAndRecord(cmdType string, args map[string]any, fn func(s *types.PlayerState) types.Result) types.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.catchUpLocked()
	res := fn(c.state)
	if !res.Success {
		return res
	}

	stateHash := game.StateHash(c.state)
	data, err := game.Serialize(c.state)
	if err != nil {
		c.fatal(errors.Wrap(err, "serialize state"))
	}
	block := c.chain.Append(cmdType, args, c.state.Tick, stateHash, c.now())
	if err := c.store.CommitCommand(c.state.ID, c.state.Tick, data, stateHash, block); err != nil {
		c.fatal(errors.Wrap(err, "commit command"))
	}
	c.journalLocked(cmdType, args)

	if c.coord != nil {
		if err := c.coord.Broadcaster.Broadcast(block); err != nil {
			c.log.Printf("broadcast %s failed: %v", block.Hash, err)
		}
	}
	c.publishDerivedLocked(cmdType, args, res)
	return res
}

// publishDerivedLocked folds command outcomes into the shared document.
// Ranking refreshes on every successful command.
func (c *Controller) publishDerivedLocked(cmdType string, args map[string]any, res types.Result) {
	s := c.state
	c.view.UpdateRanking(s.ID, c.buildRankingLocked())

	switch cmdType {
	case types.CmdExplore:
		if zone, ok := args["zoneId"].(string); ok {
			c.view.AddZoneDiscovery(zone, s.ID)
		}
	case types.CmdClaim:
		if zone, ok := args["zoneId"].(string); ok {
			c.view.ClaimZone(zone, s.ID)
		}
	case types.CmdCreateTrade:
		if id, ok := res.Data["offerId"].(string); ok {
			for _, o := range s.TradeOffers {
				if o.ID == id {
					c.view.AddTradeOffer(types.WorldTradeOffer{
						ID:        o.ID,
						From:      s.ID,
						Offer:     o.Offering,
						Want:      o.Requesting,
						CreatedAt: o.CreatedAtTick,
					})
					break
				}
			}
		}
	case types.CmdCancelTrade, types.CmdAcceptTrade:
		if id, ok := args["offerId"].(string); ok {
			c.view.RemoveTradeOffer(id)
		}
	case types.CmdCreateAlliance, types.CmdJoinAlliance:
		if s.Alliance != nil {
			c.view.UpsertAlliance(types.WorldAlliance{
				ID:       s.Alliance.ID,
				Name:     s.Alliance.Name,
				LeaderID: s.Alliance.LeaderID,
				Members:  s.Alliance.MemberIDs,
			})
		}
	case types.CmdLeaveAlliance:
		if disbanded, _ := res.Data["disbanded"].(bool); disbanded {
			if id, ok := args["allianceId"].(string); ok {
				c.view.RemoveAlliance(id)
			}
		}
	case types.CmdPvpAttack, types.CmdAttack:
		if report, ok := res.Data["report"].(game.BattleReport); ok {
			defender, _ := args["targetPlayerId"].(string)
			if defender == "" {
				defender, _ = args["target"].(string)
			}
			winner := s.ID
			if report.Winner == "defender" {
				winner = defender
			} else if report.Winner == "draw" {
				winner = ""
			}
			c.view.AddCombatLog(types.CombatLogEntry{
				Attacker: s.ID,
				Defender: defender,
				Winner:   winner,
				Tick:     s.Tick,
			})
		}
	}
}

func (c *Controller) buildRankingLocked() types.Ranking {
	s := c.state
	totalArmy := 0
	for _, n := range s.Army.Units {
		totalArmy += n
	}
	totalRes := 0
	for _, n := range s.Resources {
		totalRes += n
	}
	armyUnits := make(map[string]int, len(s.Army.Units))
	for k, v := range s.Army.Units {
		armyUnits[k] = v
	}
	r := types.Ranking{
		Name:           s.Name,
		Era:            s.Era,
		Prestige:       s.Prestige.Level,
		Tokens:         s.Tokens,
		TotalArmy:      totalArmy,
		TotalResources: totalRes,
		ArmyUnits:      armyUnits,
		Strategy:       s.Army.Strategy,
		DefenseBonus:   game.DefenseBonus(s),
	}
	if s.Alliance != nil {
		r.AllianceID = s.Alliance.ID
		r.AllianceName = s.Alliance.Name
	}
	return r
}

// --- Queries ---

// GetPlayerState catches up pending ticks, then returns a snapshot copy.
func (c *Controller) GetPlayerState() *types.PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catchUpLocked()
	return game.Clone(c.state)
}

func (c *Controller) GetChainStatus() types.ChainStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain.Status()
}

func (c *Controller) VerifyChain() types.ValidationResult {
	c.mu.Lock()
	blocks := c.chain.Blocks()
	c.mu.Unlock()
	return chain.Validate(blocks)
}

func (c *Controller) GetChainBlocks(n int) []types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain.Tail(n)
}

// Persist flushes the current state snapshot and world document.
func (c *Controller) Persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := game.Serialize(c.state)
	if err != nil {
		return err
	}
	if err := c.store.SaveSnapshot(c.state.ID, c.state.Tick, data, game.StateHash(c.state)); err != nil {
		return err
	}
	return c.store.SaveWorldDoc(c.view.Save(), time.Now())
}

// Shutdown is cooperative: stop network loops, flush, done.
func (c *Controller) Shutdown() error {
	if c.coord != nil {
		c.coord.Stop()
	}
	if err := c.Persist(); err != nil {
		return err
	}
	c.log.Println("controller shut down cleanly")
	return nil
}
