package game

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/hugoguerrap/nodecoin/pkg/rng"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// --- Command Handlers ---
//
// Each handler is a deferred mutation the controller executes inside its
// critical section. A failed precondition returns {success:false} with
// zero side effects; state is only touched after every check passes.

// Build starts construction of a new building at level 1.
func Build(s *types.PlayerState, buildingID string) types.Result {
	def, ok := Buildings[buildingID]
	if !ok {
		return types.Fail(fmt.Sprintf("unknown building %q", buildingID))
	}
	if GetBuilding(s, buildingID) != nil {
		return types.Fail(fmt.Sprintf("%s is already built", def.Name))
	}
	if s.Era < def.Era {
		return types.Fail(fmt.Sprintf("%s requires era %s", def.Name, types.EraNames[def.Era]))
	}
	if def.RequiresTech != "" && !HasCompletedTech(s, def.RequiresTech) {
		return types.Fail(fmt.Sprintf("%s requires tech %s", def.Name, def.RequiresTech))
	}
	if !DeductResources(s, def.BaseCost) {
		return types.Fail("insufficient resources")
	}
	AddBuilding(s, types.Building{
		ID:                         buildingID,
		Level:                      1,
		ConstructionTicksRemaining: def.ConstructionTicks,
	})
	return types.Ok(fmt.Sprintf("%s under construction (%d ticks)", def.Name, def.ConstructionTicks))
}

// Upgrade raises a completed building one level.
func Upgrade(s *types.PlayerState, buildingID string) types.Result {
	def, ok := Buildings[buildingID]
	if !ok {
		return types.Fail(fmt.Sprintf("unknown building %q", buildingID))
	}
	b := GetBuilding(s, buildingID)
	if b == nil {
		return types.Fail(fmt.Sprintf("%s is not built", def.Name))
	}
	if b.ConstructionTicksRemaining > 0 {
		return types.Fail(fmt.Sprintf("%s is still under construction", def.Name))
	}
	if b.Level >= def.MaxLevel {
		return types.Fail(fmt.Sprintf("%s is at max level", def.Name))
	}
	cost := BuildingCost(def.BaseCost, b.Level)
	if !DeductResources(s, cost) {
		return types.Fail("insufficient resources")
	}
	b.Level++
	b.ConstructionTicksRemaining = def.ConstructionTicks
	return types.Ok(fmt.Sprintf("%s upgrading to level %d", def.Name, b.Level))
}

// Demolish removes a building and refunds half its base cost.
func Demolish(s *types.PlayerState, buildingID string) types.Result {
	def, ok := Buildings[buildingID]
	if !ok {
		return types.Fail(fmt.Sprintf("unknown building %q", buildingID))
	}
	if GetBuilding(s, buildingID) == nil {
		return types.Fail(fmt.Sprintf("%s is not built", def.Name))
	}
	kept := s.Buildings[:0]
	for _, b := range s.Buildings {
		if b.ID != buildingID {
			kept = append(kept, b)
		}
	}
	s.Buildings = kept
	for kind, v := range def.BaseCost {
		AddResource(s, kind, int(math.Floor(0.5*float64(v))))
	}
	return types.Ok(fmt.Sprintf("%s demolished", def.Name))
}

// Recruit adds units; requires a completed Cuartel.
func Recruit(s *types.PlayerState, unitType string, count int) types.Result {
	def, ok := Units[unitType]
	if !ok {
		return types.Fail(fmt.Sprintf("unknown unit %q", unitType))
	}
	if count <= 0 {
		return types.Fail("count must be positive")
	}
	if CompletedLevel(s, "cuartel") == 0 {
		return types.Fail("recruiting requires a completed Cuartel")
	}
	if s.Era < def.Era {
		return types.Fail(fmt.Sprintf("%s requires era %s", def.Name, types.EraNames[def.Era]))
	}
	if def.RequiresTech != "" && !HasCompletedTech(s, def.RequiresTech) {
		return types.Fail(fmt.Sprintf("%s requires tech %s", def.Name, def.RequiresTech))
	}
	cost := map[string]int{}
	for k, v := range def.Cost {
		cost[k] = v * count
	}
	if !DeductResources(s, cost) {
		return types.Fail("insufficient resources")
	}
	s.Army.Units[unitType] += count
	return types.Ok(fmt.Sprintf("recruited %d %s", count, def.Name))
}

// SetStrategy updates the army posture.
func SetStrategy(s *types.PlayerState, strategy string) types.Result {
	switch strategy {
	case types.StrategyAggressive, types.StrategyDefensive, types.StrategyBalanced, types.StrategyGuerrilla:
	default:
		return types.Fail(fmt.Sprintf("unknown strategy %q", strategy))
	}
	s.Army.Strategy = strategy
	return types.Ok(fmt.Sprintf("strategy set to %s", strategy))
}

// StartResearch begins a tech.
func StartResearch(s *types.PlayerState, techID string) types.Result {
	def, ok := Techs[techID]
	if !ok {
		return types.Fail(fmt.Sprintf("unknown tech %q", techID))
	}
	if HasCompletedTech(s, techID) {
		return types.Fail(fmt.Sprintf("%s already completed", def.Name))
	}
	if s.Research.Current == techID {
		return types.Fail(fmt.Sprintf("%s already in progress", def.Name))
	}
	if s.Research.Current != "" {
		return types.Fail("another research is already in progress")
	}
	if s.Era < def.Era {
		return types.Fail(fmt.Sprintf("%s requires era %s", def.Name, types.EraNames[def.Era]))
	}
	for _, pre := range def.Prereqs {
		if !HasCompletedTech(s, pre) {
			return types.Fail(fmt.Sprintf("%s requires %s first", def.Name, pre))
		}
	}
	if !DeductResources(s, def.Cost) {
		return types.Fail("insufficient resources")
	}
	s.Research.Current = techID
	s.Research.Progress = 0
	return types.Ok(fmt.Sprintf("researching %s (%d ticks)", def.Name, def.ResearchTicks))
}

// Explore marks a zone as explored.
func Explore(s *types.PlayerState, zoneID string) types.Result {
	if zoneID == "" {
		return types.Fail("zone id required")
	}
	for _, z := range s.ExploredZones {
		if z == zoneID {
			return types.Fail(fmt.Sprintf("zone %s already explored", zoneID))
		}
	}
	s.ExploredZones = append(s.ExploredZones, zoneID)
	return types.Ok(fmt.Sprintf("zone %s explored", zoneID))
}

// Claim takes an explored, unclaimed zone.
func Claim(s *types.PlayerState, zoneID string) types.Result {
	explored := false
	for _, z := range s.ExploredZones {
		if z == zoneID {
			explored = true
			break
		}
	}
	if !explored {
		return types.Fail(fmt.Sprintf("zone %s not explored yet", zoneID))
	}
	for _, z := range s.ClaimedZones {
		if z == zoneID {
			return types.Fail(fmt.Sprintf("zone %s already claimed", zoneID))
		}
	}
	s.ClaimedZones = append(s.ClaimedZones, zoneID)
	return types.Ok(fmt.Sprintf("zone %s claimed", zoneID))
}

// AttackNPC battles a fixed camp. Deterministic per (player, target, tick).
func AttackNPC(s *types.PlayerState, target string) types.Result {
	npc, ok := NPCs[target]
	if !ok {
		return types.Fail(fmt.Sprintf("unknown target %q", target))
	}
	if totalUnits(s.Army.Units) == 0 {
		return types.Fail("no army to attack with")
	}
	r := rng.New(fmt.Sprintf("npc-%s-%s-%d", target, s.ID, s.Tick))
	report := ResolveBattle(
		Combatant{Units: s.Army.Units, Strategy: s.Army.Strategy, CombatBonus: CombatTechBonus(s)},
		Combatant{Units: npc.Army, Strategy: npc.Strategy},
		r,
	)
	applyLosses(s.Army.Units, report.AttackerLosses)
	if report.Winner == "attacker" {
		award := report.LootTokens + npc.RewardTokens
		s.Tokens += award
		s.PendingTokenAwards += award
		return types.OkData(fmt.Sprintf("victory against %s, %.0f tokens won", npc.Name, award),
			map[string]any{"report": report})
	}
	return types.OkData(fmt.Sprintf("defeated by %s", npc.Name), map[string]any{"report": report})
}

func applyLosses(units map[string]int, losses map[string]int) {
	for kind, n := range losses {
		units[kind] -= n
		if units[kind] <= 0 {
			delete(units, kind)
		}
	}
}

// CreateAlliance founds an alliance led by this player.
func CreateAlliance(s *types.PlayerState, name string) types.Result {
	if s.Alliance != nil {
		return types.Fail("already in an alliance")
	}
	if name == "" {
		return types.Fail("alliance name required")
	}
	s.Alliance = &types.Alliance{
		ID:            uuid.NewString(),
		Name:          name,
		LeaderID:      s.ID,
		MemberIDs:     []string{s.ID},
		CreatedAtTick: s.Tick,
	}
	return types.OkData(fmt.Sprintf("alliance %s founded", name), map[string]any{"allianceId": s.Alliance.ID})
}

// JoinAlliance enrolls in an existing alliance observed in the world view.
func JoinAlliance(s *types.PlayerState, id, name, leaderID string) types.Result {
	if s.Alliance != nil {
		return types.Fail("already in an alliance")
	}
	if id == "" || leaderID == "" {
		return types.Fail("alliance id and leader required")
	}
	s.Alliance = &types.Alliance{
		ID:            id,
		Name:          name,
		LeaderID:      leaderID,
		MemberIDs:     []string{leaderID, s.ID},
		CreatedAtTick: s.Tick,
	}
	return types.Ok(fmt.Sprintf("joined alliance %s", name))
}

// LeaveAlliance exits; the leader leaving disbands.
func LeaveAlliance(s *types.PlayerState) types.Result {
	if s.Alliance == nil {
		return types.Fail("not in an alliance")
	}
	name := s.Alliance.Name
	disbanded := s.Alliance.LeaderID == s.ID
	s.Alliance = nil
	if disbanded {
		return types.OkData(fmt.Sprintf("alliance %s disbanded", name), map[string]any{"disbanded": true})
	}
	return types.Ok(fmt.Sprintf("left alliance %s", name))
}

// SetDiplomacy upserts the single relation toward a target.
func SetDiplomacy(s *types.PlayerState, target, status string) types.Result {
	if target == s.ID {
		return types.Fail("cannot set diplomacy with yourself")
	}
	if target == "" {
		return types.Fail("target player required")
	}
	switch status {
	case types.DiploNeutral, types.DiploAllied, types.DiploWar, types.DiploPeace:
	default:
		return types.Fail(fmt.Sprintf("unknown diplomacy status %q", status))
	}
	for i := range s.Diplomacy {
		if s.Diplomacy[i].TargetPlayerID == target {
			s.Diplomacy[i].Status = status
			s.Diplomacy[i].ChangedAtTick = s.Tick
			return types.Ok(fmt.Sprintf("diplomacy with %s set to %s", target, status))
		}
	}
	s.Diplomacy = append(s.Diplomacy, types.DiplomacyRelation{
		TargetPlayerID: target,
		Status:         status,
		ChangedAtTick:  s.Tick,
	})
	return types.Ok(fmt.Sprintf("diplomacy with %s set to %s", target, status))
}

// Spy estimates a target's army and resources with ±20% noise drawn from
// the caller's seeded RNG. Cooldown of 10 ticks; keeps the last 10 reports.
func Spy(s *types.PlayerState, targetID, targetName string, army map[string]int, resources map[string]int, era int, r *rng.Rng) types.Result {
	if s.Army.Units["espia"] < 1 {
		return types.Fail("spying requires at least one Espia")
	}
	if s.LastSpyTick > 0 && s.Tick-s.LastSpyTick < SpyCooldownTicks {
		wait := SpyCooldownTicks - (s.Tick - s.LastSpyTick)
		return types.Fail(fmt.Sprintf("spies need %d more ticks to regroup", wait))
	}
	estArmy := map[string]int{}
	for _, kind := range types.UnitOrder {
		if n, ok := army[kind]; ok && n > 0 {
			estArmy[kind] = int(math.Round(float64(n) * (1 + r.NextRange(-0.2, 0.2))))
		}
	}
	estRes := map[string]int{}
	for _, kind := range types.ResourceOrder {
		if n, ok := resources[kind]; ok && n > 0 {
			estRes[kind] = int(math.Round(float64(n) * (1 + r.NextRange(-0.2, 0.2))))
		}
	}
	s.SpyReports = append(s.SpyReports, types.SpyReport{
		TargetID:           targetID,
		TargetName:         targetName,
		Tick:               s.Tick,
		EstimatedArmy:      estArmy,
		EstimatedResources: estRes,
		Era:                era,
	})
	if len(s.SpyReports) > 10 {
		s.SpyReports = s.SpyReports[len(s.SpyReports)-10:]
	}
	s.LastSpyTick = s.Tick
	return types.OkData(fmt.Sprintf("spy report on %s filed", targetName),
		map[string]any{"army": estArmy, "resources": estRes})
}

// CreateTradeOffer escrows the offered resources and opens the offer.
func CreateTradeOffer(s *types.PlayerState, offering, requesting map[string]int, expiresInTicks int64) types.Result {
	if len(offering) == 0 || len(requesting) == 0 {
		return types.Fail("offer and request must both be non-empty")
	}
	if expiresInTicks <= 0 {
		expiresInTicks = 100
	}
	if !DeductResources(s, offering) {
		return types.Fail("insufficient resources to escrow")
	}
	offer := types.TradeOffer{
		ID:            uuid.NewString(),
		SellerID:      s.ID,
		Offering:      offering,
		Requesting:    requesting,
		CreatedAtTick: s.Tick,
		ExpiresAtTick: s.Tick + expiresInTicks,
		Status:        types.OfferOpen,
	}
	s.TradeOffers = append(s.TradeOffers, offer)
	return types.OkData("trade offer created", map[string]any{"offerId": offer.ID})
}

// AcceptTrade settles an open local offer: the buyer's resources must
// cover the request; the seller (this state) is credited with them.
func AcceptTrade(s *types.PlayerState, offerID string, buyerResources map[string]int) types.Result {
	var offer *types.TradeOffer
	for i := range s.TradeOffers {
		if s.TradeOffers[i].ID == offerID {
			offer = &s.TradeOffers[i]
			break
		}
	}
	if offer == nil {
		return types.Fail(fmt.Sprintf("offer %s not found", offerID))
	}
	if offer.Status != types.OfferOpen {
		return types.Fail(fmt.Sprintf("offer %s is not open", offerID))
	}
	for k, v := range offer.Requesting {
		if buyerResources[k] < v {
			return types.Fail("buyer resources insufficient")
		}
	}
	offer.Status = types.OfferAccepted
	CreditResources(s, offer.Requesting)
	return types.OkData("trade accepted", map[string]any{"offerId": offerID})
}

// CancelTradeOffer refunds the escrow of an own open offer.
func CancelTradeOffer(s *types.PlayerState, offerID string) types.Result {
	for i := range s.TradeOffers {
		o := &s.TradeOffers[i]
		if o.ID != offerID {
			continue
		}
		if o.SellerID != s.ID {
			return types.Fail("offer belongs to another player")
		}
		if o.Status != types.OfferOpen {
			return types.Fail(fmt.Sprintf("offer %s is not open", offerID))
		}
		o.Status = types.OfferCancelled
		CreditResources(s, o.Offering)
		return types.Ok("trade offer cancelled")
	}
	return types.Fail(fmt.Sprintf("offer %s not found", offerID))
}

// PvpAttack resolves a battle against a snapshot of another player's army.
// The same seeded RNG lets the defender reproduce the identical battle.
func PvpAttack(s *types.PlayerState, targetID string, targetArmy map[string]int, targetStrategy string, targetDefenseBonus float64, rngSeed string) types.Result {
	if targetID == s.ID {
		return types.Fail("cannot attack yourself")
	}
	if totalUnits(s.Army.Units) == 0 {
		return types.Fail("no army to attack with")
	}
	if last, ok := s.LastAttackTicks[targetID]; ok {
		elapsed := s.Tick - last
		if elapsed < PvpCooldownTicks {
			return types.Fail(fmt.Sprintf("must wait %d more ticks before attacking %s again",
				PvpCooldownTicks-elapsed, targetID))
		}
	}
	seed := rngSeed
	if seed == "" {
		seed = rng.PvpSeed(s.ID, targetID, s.Tick)
	}
	r := rng.New(seed)
	report := ResolveBattle(
		Combatant{Units: s.Army.Units, Strategy: s.Army.Strategy, CombatBonus: CombatTechBonus(s)},
		Combatant{Units: targetArmy, Strategy: targetStrategy, DefenseBonus: targetDefenseBonus},
		r,
	)
	applyLosses(s.Army.Units, report.AttackerLosses)
	s.LastAttackTicks[targetID] = s.Tick
	if report.Winner == "attacker" {
		s.Tokens += report.LootTokens
		s.PendingTokenAwards += report.LootTokens
	}
	return types.OkData(fmt.Sprintf("battle against %s: %s", targetID, report.Winner),
		map[string]any{"report": report})
}

// Ascend trades all progress for a permanent legacy multiplier.
func Ascend(s *types.PlayerState) types.Result {
	if s.Era < AscendMinEra {
		return types.Fail(fmt.Sprintf("ascension requires era %s", types.EraNames[AscendMinEra]))
	}
	if s.Tokens < AscendTokenCost {
		return types.Fail(fmt.Sprintf("ascension requires %.0f tokens", AscendTokenCost))
	}
	if s.Tick < AscendMinTick {
		return types.Fail(fmt.Sprintf("ascension requires tick %d", AscendMinTick))
	}
	s.Tokens -= AscendTokenCost
	s.Prestige.Level++
	s.Prestige.LegacyMultiplier = LegacyMultiplier(s.Prestige.Level)

	var bonus types.PrestigeBonus
	switch s.Prestige.Level % 4 {
	case 1:
		bonus = types.PrestigeBonus{Type: "combat", Value: 0.03}
	case 2:
		bonus = types.PrestigeBonus{Type: "production", Value: 0.05}
	case 3:
		bonus = types.PrestigeBonus{Type: "research", Value: 0.04}
	case 0:
		bonus = types.PrestigeBonus{Type: "resource", Value: 0.05}
	}
	s.Prestige.Bonuses = append(s.Prestige.Bonuses, bonus)

	// Reset progress; tokens, prestige, alliance, diplomacy, trade
	// history, zones and spy reports survive.
	s.Buildings = []types.Building{}
	s.BuildQueue = []types.Building{}
	s.Army = types.Army{Units: map[string]int{}, Strategy: types.StrategyBalanced}
	s.Research = types.Research{Completed: []string{}}
	s.ActiveEffects = []types.Effect{}
	s.Population = types.Population{
		Current:   InitialPopCurrent,
		Max:       InitialPopMax,
		Happiness: InitialHappiness,
	}
	s.Resources = map[string]int{}
	s.ResourceStorage = map[string]int{}
	for k, v := range InitialResources {
		s.Resources[k] = v
	}
	for k, v := range InitialStorage {
		s.ResourceStorage[k] = v
	}
	s.Era = types.EraAldea
	return types.OkData(fmt.Sprintf("ascended to prestige level %d", s.Prestige.Level),
		map[string]any{"level": s.Prestige.Level, "legacyMultiplier": s.Prestige.LegacyMultiplier})
}
