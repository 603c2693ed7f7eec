package node

import (
	"fmt"

	"github.com/hugoguerrap/nodecoin/pkg/game"
	"github.com/hugoguerrap/nodecoin/pkg/rng"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// --- Public Command Surface ---
//
// One method per command. Each wraps the engine handler in the
// executeAndRecord envelope, so success implies a persisted snapshot, an
// appended signed block, a broadcast, and derived world updates.

func (c *Controller) Build(buildingID string) types.Result {
	return c.executeAndRecord(types.CmdBuild, map[string]any{"buildingId": buildingID},
		func(s *types.PlayerState) types.Result { return game.Build(s, buildingID) })
}

func (c *Controller) Upgrade(buildingID string) types.Result {
	return c.executeAndRecord(types.CmdUpgrade, map[string]any{"buildingId": buildingID},
		func(s *types.PlayerState) types.Result { return game.Upgrade(s, buildingID) })
}

func (c *Controller) Demolish(buildingID string) types.Result {
	return c.executeAndRecord(types.CmdDemolish, map[string]any{"buildingId": buildingID},
		func(s *types.PlayerState) types.Result { return game.Demolish(s, buildingID) })
}

func (c *Controller) Recruit(unitType string, count int) types.Result {
	return c.executeAndRecord(types.CmdRecruit, map[string]any{"unitType": unitType, "count": count},
		func(s *types.PlayerState) types.Result { return game.Recruit(s, unitType, count) })
}

func (c *Controller) SetStrategy(strategy string) types.Result {
	return c.executeAndRecord(types.CmdSetStrategy, map[string]any{"strategy": strategy},
		func(s *types.PlayerState) types.Result { return game.SetStrategy(s, strategy) })
}

func (c *Controller) StartResearch(techID string) types.Result {
	return c.executeAndRecord(types.CmdStartResearch, map[string]any{"techId": techID},
		func(s *types.PlayerState) types.Result { return game.StartResearch(s, techID) })
}

func (c *Controller) Explore(zoneID string) types.Result {
	return c.executeAndRecord(types.CmdExplore, map[string]any{"zoneId": zoneID},
		func(s *types.PlayerState) types.Result { return game.Explore(s, zoneID) })
}

// Claim also consults the shared view: a zone someone else already holds
// cannot be claimed even if our local state never saw the claim.
func (c *Controller) Claim(zoneID string) types.Result {
	if z, ok := c.view.Zones()[zoneID]; ok && z.ClaimedBy != "" && z.ClaimedBy != c.PlayerID() {
		return types.Fail(fmt.Sprintf("zone %s already claimed by %s", zoneID, z.ClaimedBy))
	}
	return c.executeAndRecord(types.CmdClaim, map[string]any{"zoneId": zoneID},
		func(s *types.PlayerState) types.Result { return game.Claim(s, zoneID) })
}

func (c *Controller) AttackNPC(target string) types.Result {
	return c.executeAndRecord(types.CmdAttack, map[string]any{"target": target},
		func(s *types.PlayerState) types.Result { return game.AttackNPC(s, target) })
}

func (c *Controller) CreateAlliance(name string) types.Result {
	return c.executeAndRecord(types.CmdCreateAlliance, map[string]any{"name": name},
		func(s *types.PlayerState) types.Result { return game.CreateAlliance(s, name) })
}

func (c *Controller) JoinAlliance(id, name, leaderID string) types.Result {
	return c.executeAndRecord(types.CmdJoinAlliance,
		map[string]any{"allianceId": id, "name": name, "leaderId": leaderID},
		func(s *types.PlayerState) types.Result { return game.JoinAlliance(s, id, name, leaderID) })
}

func (c *Controller) LeaveAlliance() types.Result {
	args := map[string]any{}
	c.mu.Lock()
	if c.state.Alliance != nil {
		args["allianceId"] = c.state.Alliance.ID
	}
	c.mu.Unlock()
	return c.executeAndRecord(types.CmdLeaveAlliance, args,
		func(s *types.PlayerState) types.Result { return game.LeaveAlliance(s) })
}

func (c *Controller) SetDiplomacy(targetPlayerID, status string) types.Result {
	return c.executeAndRecord(types.CmdSetDiplomacy,
		map[string]any{"targetPlayerId": targetPlayerID, "status": status},
		func(s *types.PlayerState) types.Result { return game.SetDiplomacy(s, targetPlayerID, status) })
}

// Spy estimates a target from the shared rankings. The noise RNG is
// seeded per (us, target, tick) so repeated reports differ across ticks
// but replay identically.
func (c *Controller) Spy(targetPlayerID string) types.Result {
	ranking, ok := c.view.Rankings()[targetPlayerID]
	if !ok {
		return types.Fail(fmt.Sprintf("no intelligence on player %s", targetPlayerID))
	}
	resources := map[string]int{"wood": ranking.TotalResources}
	return c.executeAndRecord(types.CmdSpy, map[string]any{"targetPlayerId": targetPlayerID},
		func(s *types.PlayerState) types.Result {
			r := rng.New(fmt.Sprintf("spy-%s-%s-%d", s.ID, targetPlayerID, s.Tick))
			return game.Spy(s, targetPlayerID, ranking.Name, ranking.ArmyUnits, resources, ranking.Era, r)
		})
}

func (c *Controller) CreateTradeOffer(offering, requesting map[string]int, expiresInTicks int64) types.Result {
	return c.executeAndRecord(types.CmdCreateTrade,
		map[string]any{"offering": offering, "requesting": requesting, "expiresInTicks": expiresInTicks},
		func(s *types.PlayerState) types.Result {
			return game.CreateTradeOffer(s, offering, requesting, expiresInTicks)
		})
}

// AcceptTrade settles locally when we hold the offer, otherwise buys an
// offer observed on the shared trade board: pay the want, pocket the
// offer, broadcast the accept block so the seller settles their side.
func (c *Controller) AcceptTrade(offerID string) types.Result {
	c.mu.Lock()
	local := false
	for _, o := range c.state.TradeOffers {
		if o.ID == offerID {
			local = true
			break
		}
	}
	c.mu.Unlock()

	if local {
		return c.executeAndRecord(types.CmdAcceptTrade, map[string]any{"offerId": offerID},
			func(s *types.PlayerState) types.Result {
				return game.AcceptTrade(s, offerID, s.Resources)
			})
	}

	var offer *types.WorldTradeOffer
	for _, o := range c.view.TradeOffers() {
		if o.ID == offerID {
			oc := o
			offer = &oc
			break
		}
	}
	if offer == nil {
		return types.Fail(fmt.Sprintf("offer %s not found", offerID))
	}
	if offer.From == c.PlayerID() {
		return types.Fail("cannot accept your own offer")
	}
	return c.executeAndRecord(types.CmdAcceptTrade,
		map[string]any{"offerId": offerID, "sellerId": offer.From},
		func(s *types.PlayerState) types.Result {
			if !game.DeductResources(s, offer.Want) {
				return types.Fail("insufficient resources to pay for the offer")
			}
			game.CreditResources(s, offer.Offer)
			return types.OkData("trade accepted", map[string]any{"offerId": offerID})
		})
}

func (c *Controller) CancelTradeOffer(offerID string) types.Result {
	return c.executeAndRecord(types.CmdCancelTrade, map[string]any{"offerId": offerID},
		func(s *types.PlayerState) types.Result { return game.CancelTradeOffer(s, offerID) })
}

// PvpAttack resolves a battle against the target's published snapshot.
// Our own army snapshot travels in the block args so the defender can
// replay the identical battle with their real state.
func (c *Controller) PvpAttack(targetPlayerID string) types.Result {
	ranking, ok := c.view.Rankings()[targetPlayerID]
	if !ok {
		return types.Fail(fmt.Sprintf("no intelligence on player %s", targetPlayerID))
	}
	return c.PvpAttackSnapshot(targetPlayerID, ranking.ArmyUnits, ranking.Strategy, ranking.DefenseBonus)
}

// PvpAttackSnapshot attacks with an explicit target snapshot. The block
// args carry everything the defender needs to replay the identical
// battle: our army, strategy, combat bonus, and the RNG seed.
func (c *Controller) PvpAttackSnapshot(targetPlayerID string, targetArmy map[string]int, targetStrategy string, targetDefenseBonus float64) types.Result {
	c.mu.Lock()
	c.catchUpLocked()
	attackerArmy := make(map[string]int, len(c.state.Army.Units))
	for k, v := range c.state.Army.Units {
		attackerArmy[k] = v
	}
	attackerStrategy := c.state.Army.Strategy
	attackerCombatBonus := game.CombatTechBonus(c.state)
	tick := c.state.Tick
	c.mu.Unlock()

	seed := rng.PvpSeed(c.PlayerID(), targetPlayerID, tick)
	args := map[string]any{
		"targetPlayerId":      targetPlayerID,
		"attackerArmy":        attackerArmy,
		"attackerStrategy":    attackerStrategy,
		"attackerCombatBonus": attackerCombatBonus,
		"targetArmy":          targetArmy,
		"targetStrategy":      targetStrategy,
		"targetDefenseBonus":  targetDefenseBonus,
		"rngSeed":             seed,
	}
	return c.executeAndRecord(types.CmdPvpAttack, args,
		func(s *types.PlayerState) types.Result {
			return game.PvpAttack(s, targetPlayerID, targetArmy, targetStrategy, targetDefenseBonus, seed)
		})
}

func (c *Controller) Ascend() types.Result {
	return c.executeAndRecord(types.CmdAscend, map[string]any{},
		func(s *types.PlayerState) types.Result { return game.Ascend(s) })
}
