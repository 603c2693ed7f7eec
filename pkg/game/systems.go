package game

import (
	"math"

	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// --- Tick Loop ---
//
// ProcessTickRange advances the settlement through [from, to] inclusive.
// The ten systems run in a fixed order every tick; a building that
// completes at tick t cannot produce until t+1 because production runs
// before construction.

func ProcessTickRange(s *types.PlayerState, from, to int64) {
	for t := from; t <= to; t++ {
		if t <= s.LastTickProcessed {
			continue
		}
		processOneTick(s, t)
	}
}

func processOneTick(s *types.PlayerState, t int64) {
	resourceSystem(s)
	populationSystem(s)
	buildingSystem(s)
	researchSystem(s)
	eventSystem(s)
	upkeepSystem(s)
	tradeSystem(s, t)
	prestigeSystem(s)
	explorationSystem(s)
	miningSystem(s, t)
	s.Tick = t
	s.LastTickProcessed = t
}

// 1. Resource production, then population food upkeep.
func resourceSystem(s *types.PlayerState) {
	techBonus := ProductionTechBonus(s)
	legacy := s.Prestige.LegacyMultiplier
	biome := Biomes[s.Biome]

	for _, id := range buildingOrder {
		lvl := CompletedLevel(s, id)
		if lvl == 0 {
			continue
		}
		def := Buildings[id]
		for kind, base := range def.Production {
			mod := 1.0
			if biome != nil {
				if m, ok := biome[kind]; ok {
					mod = m
				}
			}
			amount := Production(base, lvl, techBonus, legacy, mod)
			AddResource(s, kind, int(amount))
		}
	}

	upkeep := s.Population.Current * 2
	if s.Resources["food"] >= upkeep {
		s.Resources["food"] -= upkeep
	} else {
		s.Resources["food"] = 0
		s.Population.Happiness -= 10
		if s.Population.Happiness < 0 {
			s.Population.Happiness = 0
		}
	}
}

// 2. Growth, starvation pressure, happiness recompute.
func populationSystem(s *types.PlayerState) {
	chozaLevels := 0
	for _, b := range s.Buildings {
		if b.ID == "choza" && b.ConstructionTicksRemaining == 0 {
			chozaLevels += b.Level
		}
	}
	s.Population.Max = 20 + 5*chozaLevels

	growthCost := FoodForGrowth(s.Population.Current)
	if s.Resources["food"] > growthCost && s.Population.Current < s.Population.Max {
		s.Resources["food"] -= growthCost
		s.Population.Current++
	}
	if s.Population.Happiness < 20 && s.Population.Current > 5 {
		s.Population.Current--
	}

	happiness := 50
	for _, b := range s.Buildings {
		if b.ConstructionTicksRemaining > 0 {
			continue
		}
		happiness += Buildings[b.ID].HappinessBonus * b.Level
	}
	if s.Resources["food"] < s.ResourceStorage["food"]/2 {
		happiness -= 5
	}
	if s.Population.Current > s.Population.Max {
		happiness -= 10
	}
	if happiness < 0 {
		happiness = 0
	}
	if happiness > 100 {
		happiness = 100
	}
	s.Population.Happiness = happiness
}

// 3. Construction progress, queue completion, storage recompute.
func buildingSystem(s *types.PlayerState) {
	for i := range s.Buildings {
		if s.Buildings[i].ConstructionTicksRemaining > 0 {
			s.Buildings[i].ConstructionTicksRemaining--
		}
	}

	remaining := s.BuildQueue[:0]
	for i := range s.BuildQueue {
		s.BuildQueue[i].ConstructionTicksRemaining--
		if s.BuildQueue[i].ConstructionTicksRemaining <= 0 {
			done := s.BuildQueue[i]
			done.ConstructionTicksRemaining = 0
			AddBuilding(s, done)
		} else {
			remaining = append(remaining, s.BuildQueue[i])
		}
	}
	s.BuildQueue = remaining

	bonus := 0
	for _, b := range s.Buildings {
		if b.ConstructionTicksRemaining > 0 {
			continue
		}
		bonus += Buildings[b.ID].StorageBonus * b.Level
	}
	for _, kind := range types.ResourceOrder {
		s.ResourceStorage[kind] = InitialStorage[kind] + bonus
		if s.Resources[kind] > s.ResourceStorage[kind] {
			s.Resources[kind] = s.ResourceStorage[kind]
		}
	}
}

// 4. Research progress and era advancement.
func researchSystem(s *types.PlayerState) {
	if s.Research.Current == "" {
		return
	}
	s.Research.Progress++
	def, ok := Techs[s.Research.Current]
	if !ok || s.Research.Progress < def.ResearchTicks {
		return
	}
	s.Research.Completed = append(s.Research.Completed, s.Research.Current)
	s.Research.Current = ""
	s.Research.Progress = 0

	if s.Era >= types.EraMetropolis {
		return
	}
	for _, id := range TechsForEra(s.Era) {
		if !HasCompletedTech(s, id) {
			return
		}
	}
	s.Era++
}

// 5. Effect expiry.
func eventSystem(s *types.PlayerState) {
	kept := s.ActiveEffects[:0]
	for i := range s.ActiveEffects {
		s.ActiveEffects[i].TicksRemaining--
		if s.ActiveEffects[i].TicksRemaining > 0 {
			kept = append(kept, s.ActiveEffects[i])
		}
	}
	s.ActiveEffects = kept
}

// 6. Army food upkeep; desertion hits the weakest kind first.
func upkeepSystem(s *types.PlayerState) {
	required := 0.0
	for _, kind := range types.UnitOrder {
		count := s.Army.Units[kind]
		if count > 0 {
			required += float64(count) * Units[kind].FoodPerTick
		}
	}
	if required == 0 {
		return
	}
	need := int(math.Ceil(required))
	if s.Resources["food"] >= need {
		s.Resources["food"] -= need
		return
	}
	s.Resources["food"] = 0

	weakest := ""
	for _, kind := range types.UnitOrder {
		if s.Army.Units[kind] <= 0 {
			continue
		}
		if weakest == "" || Units[kind].HP < Units[weakest].HP {
			weakest = kind
		}
	}
	if weakest != "" {
		s.Army.Units[weakest]--
		if s.Army.Units[weakest] <= 0 {
			delete(s.Army.Units, weakest)
		}
	}
}

// 7. Offer expiry with escrow refund; bounded non-open history.
func tradeSystem(s *types.PlayerState, t int64) {
	for i := range s.TradeOffers {
		o := &s.TradeOffers[i]
		if o.Status == types.OfferOpen && o.ExpiresAtTick <= t {
			o.Status = types.OfferExpired
			CreditResources(s, o.Offering)
		}
	}

	nonOpen := 0
	for _, o := range s.TradeOffers {
		if o.Status != types.OfferOpen {
			nonOpen++
		}
	}
	if nonOpen <= 20 {
		return
	}
	drop := nonOpen - 20
	kept := make([]types.TradeOffer, 0, len(s.TradeOffers)-drop)
	for _, o := range s.TradeOffers {
		if o.Status != types.OfferOpen && drop > 0 {
			drop--
			continue
		}
		kept = append(kept, o)
	}
	s.TradeOffers = kept
}

// 8. Fold pending token awards into prestige accounting.
func prestigeSystem(s *types.PlayerState) {
	if s.PendingTokenAwards > 0 {
		s.Prestige.TotalTokensEarned += s.PendingTokenAwards
		s.PendingTokenAwards = 0
	}
}

// 9. Background exploration passthrough.
func explorationSystem(s *types.PlayerState) {
	_ = s
}

// 10. Token mining with reward halving.
func miningSystem(s *types.PlayerState, t int64) {
	halvings := t / MiningHalvingInterval
	reward := MiningBaseReward / math.Pow(2, float64(halvings))
	reward = MiningReward(reward, 0, 1.0)
	s.Tokens += reward
	s.Prestige.TotalTokensEarned += reward
}
