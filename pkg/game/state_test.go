package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugoguerrap/nodecoin/pkg/types"
)

func newTestState() *types.PlayerState {
	return NewPlayerState("p1", "Test", "forest", 1000)
}

func TestNewPlayerStateInitialVector(t *testing.T) {
	s := newTestState()

	assert.Equal(t, 100, s.Resources["wood"])
	assert.Equal(t, 100, s.Resources["food"])
	assert.Equal(t, 50, s.Resources["stone"])
	assert.Equal(t, 20, s.Resources["iron"])
	assert.Equal(t, 5, s.Resources["gems"])
	assert.Equal(t, 0, s.Resources["mana"])

	assert.Equal(t, 500, s.ResourceStorage["wood"])
	assert.Equal(t, 500, s.ResourceStorage["food"])
	assert.Equal(t, 300, s.ResourceStorage["stone"])
	assert.Equal(t, 200, s.ResourceStorage["iron"])
	assert.Equal(t, 100, s.ResourceStorage["gems"])
	assert.Equal(t, 50, s.ResourceStorage["mana"])

	assert.Equal(t, 10, s.Population.Current)
	assert.Equal(t, 20, s.Population.Max)
	assert.Equal(t, 50, s.Population.Happiness)
	assert.Equal(t, 100.0, s.Tokens)
	assert.Equal(t, types.EraAldea, s.Era)
	assert.Equal(t, 1.0, s.Prestige.LegacyMultiplier)
}

func TestSerializeRoundTrip(t *testing.T) {
	s := newTestState()
	Build(s, "choza")
	s.Army.Units["milicia"] = 5
	s.TradeOffers = append(s.TradeOffers, types.TradeOffer{ID: "o1", Status: types.OfferOpen})
	s.Diplomacy = append(s.Diplomacy, types.DiplomacyRelation{TargetPlayerID: "p2", Status: types.DiploWar})

	data, err := Serialize(s)
	require.NoError(t, err)
	back, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, s, back)
	assert.Equal(t, StateHash(s), StateHash(back))
}

func TestResourceHelpers(t *testing.T) {
	s := newTestState()

	AddResource(s, "wood", 1000)
	assert.Equal(t, 500, s.Resources["wood"], "capped at storage")

	assert.False(t, RemoveResource(s, "iron", 25))
	assert.Equal(t, 20, s.Resources["iron"], "failed remove leaves state untouched")
	assert.True(t, RemoveResource(s, "iron", 5))
	assert.Equal(t, 15, s.Resources["iron"])

	assert.False(t, DeductResources(s, map[string]int{"wood": 100, "gems": 99}))
	assert.Equal(t, 500, s.Resources["wood"], "partial shortfall deducts nothing")
	assert.True(t, DeductResources(s, map[string]int{"wood": 100, "gems": 5}))
	assert.Equal(t, 400, s.Resources["wood"])
	assert.Equal(t, 0, s.Resources["gems"])
}

func TestAddBuildingUpserts(t *testing.T) {
	s := newTestState()
	AddBuilding(s, types.Building{ID: "granja", Level: 1})
	AddBuilding(s, types.Building{ID: "granja", Level: 3})
	require.Len(t, s.Buildings, 1)
	assert.Equal(t, 3, s.Buildings[0].Level)
}

func TestFormulas(t *testing.T) {
	assert.Equal(t, 15, FoodForGrowth(0))
	assert.Equal(t, 15, FoodForGrowth(-3))
	assert.Equal(t, 15, FoodForGrowth(1))
	// pop=10: ceil(15 + 72 + 27) = 114
	assert.Equal(t, 114, FoodForGrowth(10))

	assert.Equal(t, 5, RequiredAmenities(10))
	assert.Equal(t, 6, RequiredAmenities(11))

	cost := BuildingCost(map[string]int{"wood": 100}, 0)
	assert.Equal(t, 100, cost["wood"])
	cost = BuildingCost(map[string]int{"wood": 100}, 1)
	assert.Equal(t, 115, cost["wood"])
	cost = BuildingCost(map[string]int{"wood": 100}, 2)
	assert.Equal(t, 133, cost["wood"], "ceil(132.25)")

	assert.Equal(t, 30.0, CombatDamage(0, 1.0))
	assert.Equal(t, 60.0, CombatDamage(17, 1.0))

	assert.Equal(t, 0.0, Survivors(10, 10))
	assert.Equal(t, 0.0, Survivors(5, 10))
	assert.Equal(t, 4.0, Survivors(5, 3))

	assert.Equal(t, 0.3, TransactionFee(10, 0.03))
	assert.Equal(t, 0.01, TransactionFee(0.01, 0.03))

	assert.Equal(t, 1.0, LegacyMultiplier(0))
	assert.Equal(t, 1.1, LegacyMultiplier(1))
	assert.Equal(t, 1.5, LegacyMultiplier(5))

	assert.Equal(t, 2.0, MiningReward(1.0, 1.0, 1.0))
	assert.Equal(t, 0.5, MiningReward(1.0, 0, 0.5))
}

func TestProductionFormula(t *testing.T) {
	// base 6, level 2, +10% tech, 1.1 legacy, 1.25 biome
	got := Production(6, 2, 0.10, 1.1, 1.25)
	assert.InDelta(t, 18.15, got, 1e-9)
}
