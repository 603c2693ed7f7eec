package game

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugoguerrap/nodecoin/pkg/rng"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

func TestBuildDeductsAndInserts(t *testing.T) {
	s := NewPlayerState("p1", "Test", "forest", 0)
	res := Build(s, "choza")
	require.True(t, res.Success, res.Message)

	assert.Equal(t, 80, s.Resources["wood"])
	assert.Equal(t, 90, s.Resources["food"])
	require.Len(t, s.Buildings, 1)
	assert.Equal(t, types.Building{ID: "choza", Level: 1, ConstructionTicksRemaining: 3}, s.Buildings[0])
}

func TestBuildFailures(t *testing.T) {
	s := newTestState()

	assert.False(t, Build(s, "nope").Success)

	require.True(t, Build(s, "choza").Success)
	res := Build(s, "choza")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "already built")

	res = Build(s, "cuartel")
	assert.False(t, res.Success, "cuartel is a Pueblo building")
	assert.Contains(t, res.Message, "era")

	res = Build(s, "torre_mago")
	assert.False(t, res.Success)

	s.Resources["wood"] = 0
	res = Build(s, "granja")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "insufficient")
}

func TestUpgradeUnderConstructionFails(t *testing.T) {
	s := NewPlayerState("p1", "Test", "forest", 0)
	require.True(t, Build(s, "choza").Success)

	res := Upgrade(s, "choza")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "still under construction")
}

func TestUpgradeCostsGrow(t *testing.T) {
	s := newTestState()
	require.True(t, Build(s, "choza").Success)
	s.Buildings[0].ConstructionTicksRemaining = 0
	s.Resources["wood"] = 500
	s.Resources["food"] = 500

	res := Upgrade(s, "choza")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 2, s.Buildings[0].Level)
	assert.Equal(t, Buildings["choza"].ConstructionTicks, s.Buildings[0].ConstructionTicksRemaining)
	// level-1 upgrade: ceil(20·1.15) = 23 wood, ceil(10·1.15) = 12 food
	assert.Equal(t, 477, s.Resources["wood"])
	assert.Equal(t, 488, s.Resources["food"])
}

func TestDemolishRefundsHalf(t *testing.T) {
	s := newTestState()
	require.True(t, Build(s, "choza").Success)
	s.Buildings[0].ConstructionTicksRemaining = 0

	require.True(t, Demolish(s, "choza").Success)
	assert.Empty(t, s.Buildings)
	assert.Equal(t, 90, s.Resources["wood"], "80 + floor(0.5·20)")
	assert.Equal(t, 95, s.Resources["food"])

	assert.False(t, Demolish(s, "choza").Success)
}

func TestRecruitRequiresCuartel(t *testing.T) {
	s := newTestState()
	res := Recruit(s, "milicia", 5)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Cuartel")

	AddBuilding(s, types.Building{ID: "cuartel", Level: 1})
	require.True(t, Recruit(s, "milicia", 5).Success)
	assert.Equal(t, 5, s.Army.Units["milicia"])
	assert.Equal(t, 50, s.Resources["food"], "5 × 10 food")
	assert.Equal(t, 75, s.Resources["wood"], "5 × 5 wood")

	assert.False(t, Recruit(s, "milicia", 0).Success)
	assert.False(t, Recruit(s, "caballero", 1).Success, "era gated")
}

func TestStartResearch(t *testing.T) {
	s := newTestState()
	require.True(t, StartResearch(s, "agricultura").Success)
	assert.Equal(t, "agricultura", s.Research.Current)
	assert.Equal(t, 60, s.Resources["food"])

	assert.False(t, StartResearch(s, "tala").Success, "one research at a time")
	assert.False(t, StartResearch(s, "agricultura").Success)
	assert.False(t, StartResearch(s, "nope").Success)

	s.Research.Current = ""
	res := StartResearch(s, "herreria")
	assert.False(t, res.Success, "missing prereq and era")
}

func TestExploreAndClaim(t *testing.T) {
	s := newTestState()
	assert.False(t, Claim(s, "zone-7").Success, "must explore first")

	require.True(t, Explore(s, "zone-7").Success)
	assert.False(t, Explore(s, "zone-7").Success, "no duplicates")

	require.True(t, Claim(s, "zone-7").Success)
	assert.False(t, Claim(s, "zone-7").Success, "already claimed")
	assert.Equal(t, []string{"zone-7"}, s.ClaimedZones)
}

func TestTradeEscrowAndRefund(t *testing.T) {
	s := NewPlayerState("p1", "T", "forest", 0)
	require.Equal(t, 100, s.Resources["wood"])

	res := CreateTradeOffer(s, map[string]int{"wood": 40}, map[string]int{"iron": 10}, 50)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 60, s.Resources["wood"])
	offerID := res.Data["offerId"].(string)

	require.True(t, CancelTradeOffer(s, offerID).Success)
	assert.Equal(t, 100, s.Resources["wood"])
	require.Len(t, s.TradeOffers, 1)
	assert.Equal(t, types.OfferCancelled, s.TradeOffers[0].Status)

	assert.False(t, CancelTradeOffer(s, offerID).Success, "not open anymore")
}

func TestCreateTradeOfferFailures(t *testing.T) {
	s := newTestState()
	assert.False(t, CreateTradeOffer(s, map[string]int{"wood": 4000}, map[string]int{"iron": 1}, 10).Success)
	assert.False(t, CreateTradeOffer(s, nil, map[string]int{"iron": 1}, 10).Success)
	assert.Equal(t, 100, s.Resources["wood"])
}

func TestAcceptTradeCreditsSeller(t *testing.T) {
	s := newTestState()
	res := CreateTradeOffer(s, map[string]int{"wood": 40}, map[string]int{"iron": 10}, 50)
	require.True(t, res.Success)
	offerID := res.Data["offerId"].(string)

	assert.False(t, AcceptTrade(s, offerID, map[string]int{"iron": 5}).Success, "buyer short")
	assert.False(t, AcceptTrade(s, "missing", map[string]int{"iron": 10}).Success)

	require.True(t, AcceptTrade(s, offerID, map[string]int{"iron": 10}).Success)
	assert.Equal(t, 30, s.Resources["iron"], "seller credited with the request")
	assert.Equal(t, types.OfferAccepted, s.TradeOffers[0].Status)

	assert.False(t, AcceptTrade(s, offerID, map[string]int{"iron": 10}).Success, "second accept is a no-op")
}

func TestPvpCooldown(t *testing.T) {
	s := newTestState()
	s.Army.Units = map[string]int{"soldado": 20}
	s.Tick = 10
	s.LastTickProcessed = 10

	res := PvpAttack(s, "p2", map[string]int{"soldado": 20}, types.StrategyBalanced, 0, "s1")
	require.True(t, res.Success, res.Message)
	assert.EqualValues(t, 10, s.LastAttackTicks["p2"])

	s.Tick = 15
	res = PvpAttack(s, "p2", map[string]int{"soldado": 20}, types.StrategyBalanced, 0, "s1")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "15 more ticks")
}

func TestPvpSelfAttackForbidden(t *testing.T) {
	s := newTestState()
	s.Army.Units = map[string]int{"soldado": 1}
	assert.False(t, PvpAttack(s, "p1", nil, types.StrategyBalanced, 0, "").Success)
}

func TestPvpNoArmyForbidden(t *testing.T) {
	s := newTestState()
	assert.False(t, PvpAttack(s, "p2", map[string]int{"soldado": 1}, types.StrategyBalanced, 0, "").Success)
}

func TestAttackNPC(t *testing.T) {
	s := newTestState()
	assert.False(t, AttackNPC(s, "goblins").Success, "unknown target")
	assert.False(t, AttackNPC(s, "bandits").Success, "no army")

	s.Army.Units = map[string]int{"caballero": 60, "catapulta": 20}
	res := AttackNPC(s, "bandits")
	require.True(t, res.Success, res.Message)
	assert.Greater(t, s.Tokens, 100.0, "victory pays the bounty")
}

func TestAlliancesLifecycle(t *testing.T) {
	s := newTestState()
	assert.False(t, LeaveAlliance(s).Success)

	res := CreateAlliance(s, "Norte")
	require.True(t, res.Success)
	require.NotNil(t, s.Alliance)
	assert.Equal(t, "p1", s.Alliance.LeaderID)
	assert.Contains(t, s.Alliance.MemberIDs, "p1")

	assert.False(t, CreateAlliance(s, "Otra").Success, "at most one alliance")
	assert.False(t, JoinAlliance(s, "a2", "Otra", "p9").Success)

	res = LeaveAlliance(s)
	require.True(t, res.Success)
	assert.Equal(t, true, res.Data["disbanded"], "leader leaving disbands")
	assert.Nil(t, s.Alliance)

	require.True(t, JoinAlliance(s, "a2", "Otra", "p9").Success)
	res = LeaveAlliance(s)
	require.True(t, res.Success)
	assert.Nil(t, res.Data)
}

func TestSetDiplomacyUpserts(t *testing.T) {
	s := newTestState()
	assert.False(t, SetDiplomacy(s, "p1", types.DiploWar).Success, "no self diplomacy")
	assert.False(t, SetDiplomacy(s, "p2", "angry").Success)

	s.Tick = 5
	require.True(t, SetDiplomacy(s, "p2", types.DiploWar).Success)
	s.Tick = 9
	require.True(t, SetDiplomacy(s, "p2", types.DiploPeace).Success)

	require.Len(t, s.Diplomacy, 1, "one entry per target")
	assert.Equal(t, types.DiploPeace, s.Diplomacy[0].Status)
	assert.EqualValues(t, 9, s.Diplomacy[0].ChangedAtTick)
}

func TestSpyCooldownAndNoise(t *testing.T) {
	s := newTestState()
	army := map[string]int{"soldado": 100}
	resources := map[string]int{"wood": 1000}

	res := Spy(s, "p2", "Rival", army, resources, 2, rng.New("spy-1"))
	assert.False(t, res.Success, "needs an espia")

	s.Army.Units["espia"] = 1
	s.Tick = 20
	res = Spy(s, "p2", "Rival", army, resources, 2, rng.New("spy-1"))
	require.True(t, res.Success, res.Message)
	require.Len(t, s.SpyReports, 1)

	est := s.SpyReports[0].EstimatedArmy["soldado"]
	assert.GreaterOrEqual(t, est, 80)
	assert.LessOrEqual(t, est, 120)

	s.Tick = 25
	res = Spy(s, "p2", "Rival", army, resources, 2, rng.New("spy-2"))
	assert.False(t, res.Success, "cooldown")
	assert.Contains(t, res.Message, "more ticks")

	s.Tick = 30
	require.True(t, Spy(s, "p2", "Rival", army, resources, 2, rng.New("spy-3")).Success)
}

func TestSpyKeepsLastTen(t *testing.T) {
	s := newTestState()
	s.Army.Units["espia"] = 1
	for i := 0; i < 12; i++ {
		s.Tick = int64(10 + i*10)
		require.True(t, Spy(s, "p2", "Rival", map[string]int{"milicia": 10}, nil, 1, rng.New("spy")).Success)
	}
	assert.Len(t, s.SpyReports, 10)
}

func TestAscendResetsButPreservesTokens(t *testing.T) {
	s := newTestState()
	s.Era = types.EraPueblo
	s.Tokens = 600
	s.Tick = 100
	s.LastTickProcessed = 100
	AddBuilding(s, types.Building{ID: "granja", Level: 4})
	s.Army.Units["milicia"] = 10
	require.True(t, Explore(s, "zone-1").Success)

	res := Ascend(s)
	require.True(t, res.Success, res.Message)

	assert.Equal(t, 1, s.Prestige.Level)
	assert.Equal(t, 1.1, s.Prestige.LegacyMultiplier)
	require.Len(t, s.Prestige.Bonuses, 1)
	assert.Equal(t, types.PrestigeBonus{Type: "combat", Value: 0.03}, s.Prestige.Bonuses[0])
	assert.Equal(t, 100.0, s.Tokens)
	assert.Equal(t, types.EraAldea, s.Era)
	assert.Empty(t, s.Buildings)
	assert.Empty(t, s.Army.Units)
	assert.Equal(t, 100, s.Resources["wood"])
	assert.Equal(t, 100, s.Resources["food"])
	assert.Equal(t, 50, s.Resources["stone"])
	assert.Equal(t, 20, s.Resources["iron"])
	assert.Equal(t, 5, s.Resources["gems"])
	assert.Equal(t, 0, s.Resources["mana"])
	assert.Equal(t, []string{"zone-1"}, s.ExploredZones, "zones survive")
}

func TestAscendPreconditions(t *testing.T) {
	s := newTestState()
	s.Tokens = 600
	s.Tick = 100
	assert.False(t, Ascend(s).Success, "era too low")

	s.Era = types.EraPueblo
	s.Tokens = 400
	assert.False(t, Ascend(s).Success, "tokens too low")

	s.Tokens = 600
	s.Tick = 10
	assert.False(t, Ascend(s).Success, "too early")
}

func TestFailureLeavesStateUntouched(t *testing.T) {
	s := newTestState()
	before, err := Serialize(s)
	require.NoError(t, err)

	Build(s, "torre_mago")
	Upgrade(s, "choza")
	Recruit(s, "soldado", 5)
	StartResearch(s, "asedio")
	Claim(s, "unexplored")
	PvpAttack(s, "p2", nil, types.StrategyBalanced, 0, "")
	Ascend(s)

	after, err := Serialize(s)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestMessagesAreLowercaseish(t *testing.T) {
	s := newTestState()
	res := Build(s, "nope")
	assert.True(t, strings.Contains(res.Message, "unknown building"))
}
