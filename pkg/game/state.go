package game

import (
	"encoding/json"
	"math"

	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// --- State Construction & Helpers ---

// NewPlayerState creates a settlement with the fixed initial vector.
func NewPlayerState(id, name, biome string, createdAt int64) *types.PlayerState {
	res := make(map[string]int, len(InitialResources))
	sto := make(map[string]int, len(InitialStorage))
	for k, v := range InitialResources {
		res[k] = v
	}
	for k, v := range InitialStorage {
		sto[k] = v
	}
	return &types.PlayerState{
		ID:        id,
		Name:      name,
		Biome:     biome,
		CreatedAt: createdAt,
		Era:       types.EraAldea,
		Tokens:    InitialTokens,
		Resources: res,
		ResourceStorage: sto,
		Population: types.Population{
			Current:   InitialPopCurrent,
			Max:       InitialPopMax,
			Happiness: InitialHappiness,
		},
		Buildings:  []types.Building{},
		BuildQueue: []types.Building{},
		Army: types.Army{
			Units:    map[string]int{},
			Strategy: types.StrategyBalanced,
		},
		Research:        types.Research{Completed: []string{}},
		ActiveEffects:   []types.Effect{},
		TradeOffers:     []types.TradeOffer{},
		Diplomacy:       []types.DiplomacyRelation{},
		SpyReports:      []types.SpyReport{},
		LastAttackTicks: map[string]int64{},
		ExploredZones:   []string{},
		ClaimedZones:    []string{},
		Prestige: types.Prestige{
			Level:            0,
			LegacyMultiplier: 1.0,
			Bonuses:          []types.PrestigeBonus{},
		},
	}
}

// Serialize round-trips the state to bytes. Deserialize(Serialize(s))
// equals s on every observable attribute.
func Serialize(s *types.PlayerState) ([]byte, error) {
	return json.Marshal(s)
}

func Deserialize(data []byte) (*types.PlayerState, error) {
	var s types.PlayerState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Resources == nil {
		s.Resources = map[string]int{}
	}
	if s.ResourceStorage == nil {
		s.ResourceStorage = map[string]int{}
	}
	if s.Army.Units == nil {
		s.Army.Units = map[string]int{}
	}
	if s.LastAttackTicks == nil {
		s.LastAttackTicks = map[string]int64{}
	}
	return &s, nil
}

// Clone deep-copies via the serialization round trip. Snapshot reads use
// this so callers never hold a reference into guarded state.
func Clone(s *types.PlayerState) *types.PlayerState {
	data, err := Serialize(s)
	if err != nil {
		panic(err)
	}
	out, err := Deserialize(data)
	if err != nil {
		panic(err)
	}
	return out
}

// StateHash is the post-command digest recorded in chain blocks.
func StateHash(s *types.PlayerState) string {
	return core.HashObject(s)
}

// AddResource credits amount, capped at storage.
func AddResource(s *types.PlayerState, kind string, amount int) {
	cap := s.ResourceStorage[kind]
	v := s.Resources[kind] + amount
	if v > cap {
		v = cap
	}
	if v < 0 {
		v = 0
	}
	s.Resources[kind] = v
}

// RemoveResource debits amount; returns false and leaves state untouched
// on shortfall.
func RemoveResource(s *types.PlayerState, kind string, amount int) bool {
	if s.Resources[kind] < amount {
		return false
	}
	s.Resources[kind] -= amount
	return true
}

// HasResources reports whether every kind in cost is available.
func HasResources(s *types.PlayerState, cost map[string]int) bool {
	for k, v := range cost {
		if s.Resources[k] < v {
			return false
		}
	}
	return true
}

// DeductResources debits a whole cost map atomically; false on shortfall.
func DeductResources(s *types.PlayerState, cost map[string]int) bool {
	if !HasResources(s, cost) {
		return false
	}
	for k, v := range cost {
		s.Resources[k] -= v
	}
	return true
}

// CreditResources credits a whole map, each kind capped at storage.
func CreditResources(s *types.PlayerState, res map[string]int) {
	for k, v := range res {
		AddResource(s, k, v)
	}
}

// GetBuilding returns the entry for id, or nil.
func GetBuilding(s *types.PlayerState, id string) *types.Building {
	for i := range s.Buildings {
		if s.Buildings[i].ID == id {
			return &s.Buildings[i]
		}
	}
	return nil
}

// AddBuilding upserts by id, keeping at most one entry per id.
func AddBuilding(s *types.PlayerState, b types.Building) {
	for i := range s.Buildings {
		if s.Buildings[i].ID == b.ID {
			s.Buildings[i] = b
			return
		}
	}
	s.Buildings = append(s.Buildings, b)
}

// CompletedLevel returns the level of a completed building, 0 otherwise.
func CompletedLevel(s *types.PlayerState, id string) int {
	b := GetBuilding(s, id)
	if b == nil || b.ConstructionTicksRemaining > 0 {
		return 0
	}
	return b.Level
}

// HasCompletedTech reports research completion.
func HasCompletedTech(s *types.PlayerState, techID string) bool {
	for _, t := range s.Research.Completed {
		if t == techID {
			return true
		}
	}
	return false
}

// ProductionTechBonus sums production bonuses over completed techs.
func ProductionTechBonus(s *types.PlayerState) float64 {
	total := 0.0
	for _, id := range s.Research.Completed {
		total += Techs[id].ProductionBonus
	}
	for _, b := range s.Prestige.Bonuses {
		if b.Type == "production" || b.Type == "resource" {
			total += b.Value
		}
	}
	return total
}

// CombatTechBonus sums combat bonuses over completed techs and prestige.
func CombatTechBonus(s *types.PlayerState) float64 {
	total := 0.0
	for _, id := range s.Research.Completed {
		total += Techs[id].CombatBonus
	}
	for _, b := range s.Prestige.Bonuses {
		if b.Type == "combat" {
			total += b.Value
		}
	}
	return total
}

// DefenseBonus sums building defense bonuses over completed levels.
func DefenseBonus(s *types.PlayerState) float64 {
	total := 0.0
	for _, b := range s.Buildings {
		if b.ConstructionTicksRemaining > 0 {
			continue
		}
		total += Buildings[b.ID].DefenseBonus * float64(b.Level)
	}
	return total
}

// --- Authoritative Formulas ---

// Production for one resource of one building level.
func Production(base float64, level int, techBonus, legacy, biome float64) float64 {
	return base * float64(level) * (1 + techBonus) * legacy * biome
}

// BuildingCost grows the base cost geometrically per level.
func BuildingCost(baseCost map[string]int, level int) map[string]int {
	out := make(map[string]int, len(baseCost))
	mult := math.Pow(BuildingCostMultiplier, float64(level))
	for k, v := range baseCost {
		out[k] = int(math.Ceil(float64(v) * mult))
	}
	return out
}

// FoodForGrowth is the food price of the next settler.
func FoodForGrowth(pop int) int {
	if pop <= 0 {
		return 15
	}
	p := float64(pop - 1)
	return int(math.Ceil(15 + 8*p + math.Pow(p, 1.5)))
}

// RequiredAmenities is how many amenity points pop needs to stay content.
func RequiredAmenities(pop int) int {
	return int(math.Ceil(float64(pop) / 2))
}

// CombatDamage scales exponentially with the strength difference.
func CombatDamage(strengthDiff, rnd float64) float64 {
	return math.Round(30 * math.Pow(2, strengthDiff/17) * rnd)
}

// Survivors after a decisive engagement (Lanchester-style).
func Survivors(winner, loser float64) float64 {
	if winner <= loser {
		return 0
	}
	return math.Round(math.Sqrt(winner*winner - loser*loser))
}

// TransactionFee rounds up to cents.
func TransactionFee(amount float64, rate float64) float64 {
	return math.Ceil(amount*rate*100) / 100
}

// LegacyMultiplier from prestige level.
func LegacyMultiplier(prestigeLevel int) float64 {
	return 1 + float64(prestigeLevel)*PrestigeBonusStep
}

// MiningReward with validation and uptime factors.
func MiningReward(base, validationBonus, uptime float64) float64 {
	return base * (1 + validationBonus) * uptime
}
