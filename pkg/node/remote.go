package node

import (
	"math"

	"github.com/hugoguerrap/nodecoin/pkg/game"
	"github.com/hugoguerrap/nodecoin/pkg/rng"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// --- Remote-Action Dispatcher ---
//
// Invoked by the chain broadcaster after a remote block passes the full
// verification pipeline, so every field here is authenticated by the
// sender's pinned key. Only three command types target other players;
// everything else is ignored. Remote effects mutate local state but never
// append to our own chain.

func (c *Controller) HandleRemoteBlock(block types.Block, senderID string) {
	switch block.Command.Type {
	case types.CmdAcceptTrade:
		c.remoteAcceptTrade(block)
	case types.CmdPvpAttack:
		c.remotePvpAttack(block)
	case types.CmdSetDiplomacy:
		c.remoteSetDiplomacy(block)
	}
}

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// argUnitMap decodes a unit-count map from block args, either straight
// from the wire (numbers arrive as float64) or as built in-process.
func argUnitMap(args map[string]any, key string) map[string]int {
	switch raw := args[key].(type) {
	case map[string]int:
		out := make(map[string]int, len(raw))
		for k, v := range raw {
			out[k] = v
		}
		return out
	case map[string]any:
		out := make(map[string]int, len(raw))
		for k, v := range raw {
			switch n := v.(type) {
			case float64:
				out[k] = int(n)
			case int:
				out[k] = n
			}
		}
		return out
	}
	return nil
}

func argFloat(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// remoteAcceptTrade settles the seller side: a buyer elsewhere accepted
// one of our open offers, so mark it and pocket the requested resources.
// Two accepts for the same offer resolve first-observed; the second finds
// the offer non-open and is a no-op.
func (c *Controller) remoteAcceptTrade(block types.Block) {
	offerID := argString(block.Command.Args, "offerId")
	if offerID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.state.TradeOffers {
		o := &c.state.TradeOffers[i]
		if o.ID != offerID {
			continue
		}
		if o.Status != types.OfferOpen {
			return
		}
		o.Status = types.OfferAccepted
		game.CreditResources(c.state, o.Requesting)
		c.log.Printf("offer %s accepted by %s", offerID, block.PlayerID)
		c.journalLocked("remote-"+block.Command.Type, block.Command.Args)
		c.persistSnapshotLocked()
		c.view.RemoveTradeOffer(offerID)
		return
	}
}

// remotePvpAttack replays an attack against us with our real defender
// state. Blocks without the attacker's army snapshot are rejected: the
// attacker does not get to make us fight a self-reported defender.
func (c *Controller) remotePvpAttack(block types.Block) {
	args := block.Command.Args
	if argString(args, "targetPlayerId") != c.PlayerID() {
		return
	}
	attackerArmy := argUnitMap(args, "attackerArmy")
	if attackerArmy == nil {
		c.log.Printf("rejecting pvp block %s: missing attackerArmy", block.Hash)
		return
	}
	attackerStrategy := argString(args, "attackerStrategy")
	if attackerStrategy == "" {
		attackerStrategy = types.StrategyBalanced
	}
	attackerCombatBonus := argFloat(args, "attackerCombatBonus")
	seed := argString(args, "rngSeed")
	if seed == "" {
		seed = rng.PvpSeed(block.PlayerID, c.PlayerID(), block.Command.Tick)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.catchUpLocked()

	// Combatant inputs mirror the attacker's exactly: their combat bonus
	// comes from the signed block, ours never enters the formula, and the
	// defense bonus is the same building-derived figure we publish in our
	// ranking row. With matching armies both nodes derive one report.
	report := game.ResolveBattle(
		game.Combatant{Units: attackerArmy, Strategy: attackerStrategy, CombatBonus: attackerCombatBonus},
		game.Combatant{
			Units:        c.state.Army.Units,
			Strategy:     c.state.Army.Strategy,
			DefenseBonus: game.DefenseBonus(c.state),
		},
		rng.New(seed),
	)

	for kind, n := range report.DefenderLosses {
		c.state.Army.Units[kind] -= n
		if c.state.Army.Units[kind] <= 0 {
			delete(c.state.Army.Units, kind)
		}
	}
	if report.Winner == "attacker" {
		// Loot leaves the defender, capped at zero.
		c.state.Tokens = math.Max(0, c.state.Tokens-report.LootTokens)
	}
	c.log.Printf("defended against %s: %s", block.PlayerID, report.Winner)
	c.journalLocked("remote-"+block.Command.Type, block.Command.Args)
	c.persistSnapshotLocked()
	c.view.AddCombatLog(types.CombatLogEntry{
		Attacker: block.PlayerID,
		Defender: c.PlayerID(),
		Winner:   battleWinnerID(report.Winner, block.PlayerID, c.PlayerID()),
		Tick:     block.Command.Tick,
	})
}

func battleWinnerID(winner, attackerID, defenderID string) string {
	switch winner {
	case "attacker":
		return attackerID
	case "defender":
		return defenderID
	}
	return ""
}

// remoteSetDiplomacy mirrors the sender's stance toward us.
func (c *Controller) remoteSetDiplomacy(block types.Block) {
	args := block.Command.Args
	if argString(args, "targetPlayerId") != c.PlayerID() {
		return
	}
	status := argString(args, "status")
	switch status {
	case types.DiploNeutral, types.DiploAllied, types.DiploWar, types.DiploPeace:
	default:
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catchUpLocked()
	game.SetDiplomacy(c.state, block.PlayerID, status)
	c.journalLocked("remote-"+block.Command.Type, block.Command.Args)
	c.persistSnapshotLocked()
}
