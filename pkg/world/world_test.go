package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

func newTestView(t *testing.T) *View {
	t.Helper()
	_, priv, err := core.GenerateKeypair()
	require.NoError(t, err)
	return NewView(priv)
}

func TestRankingSignedAndReadable(t *testing.T) {
	v := newTestView(t)
	require.NoError(t, v.UpdateRanking("p1", types.Ranking{
		Name: "Ana", Era: 2, Tokens: 120.5,
		ArmyUnits: map[string]int{"soldado": 10}, Strategy: "balanced",
	}))

	rankings := v.Rankings()
	require.Contains(t, rankings, "p1")
	r := rankings["p1"]
	assert.Equal(t, "Ana", r.Name)
	assert.NotEmpty(t, r.Signature)
	assert.Equal(t, v.pubHex, r.SignedBy)
}

func TestVerifyRecord(t *testing.T) {
	v := newTestView(t)
	require.NoError(t, v.UpdateRanking("p1", types.Ranking{Name: "Ana", Era: 1}))

	raw := mapRecords(v.doc, "rankings")["p1"]
	assert.True(t, VerifyRecord(raw))

	// Tamper with a covered field.
	tampered := []byte(raw)
	tampered[len(`{"allianceId":`)] ^= 1
	assert.False(t, VerifyRecord(string(tampered)))

	assert.False(t, VerifyRecord(`{"name":"x"}`), "unsigned record")
	assert.False(t, VerifyRecord("not json"))
}

func TestZoneDiscoveryUnion(t *testing.T) {
	v := newTestView(t)
	require.NoError(t, v.AddZoneDiscovery("z1", "p1"))
	require.NoError(t, v.AddZoneDiscovery("z1", "p2"))
	require.NoError(t, v.AddZoneDiscovery("z1", "p1")) // no duplicate

	z := v.Zones()["z1"]
	assert.ElementsMatch(t, []string{"p1", "p2"}, z.DiscoveredBy)
	assert.Equal(t, "", z.ClaimedBy)

	require.NoError(t, v.ClaimZone("z1", "p2"))
	z = v.Zones()["z1"]
	assert.Equal(t, "p2", z.ClaimedBy)

	// Claiming an undiscovered zone records the claimer as discoverer.
	require.NoError(t, v.ClaimZone("z2", "p3"))
	z = v.Zones()["z2"]
	assert.Equal(t, []string{"p3"}, z.DiscoveredBy)
}

func TestCombatLogTrimsToHundred(t *testing.T) {
	v := newTestView(t)
	for i := 0; i < 110; i++ {
		require.NoError(t, v.AddCombatLog(types.CombatLogEntry{Attacker: "a", Defender: "b", Tick: int64(i)}))
	}
	logs := v.CombatLogs()
	require.Len(t, logs, 100)
	assert.EqualValues(t, 10, logs[0].Tick, "oldest entries dropped")
}

func TestTradeBoardTrimAndRemove(t *testing.T) {
	v := newTestView(t)
	for i := 0; i < 55; i++ {
		require.NoError(t, v.AddTradeOffer(types.WorldTradeOffer{
			ID: string(rune('A'+i%26)) + string(rune('a'+i/26)), From: "p1",
			Offer: map[string]int{"wood": i + 1}, Want: map[string]int{"iron": 1},
		}))
	}
	offers := v.TradeOffers()
	require.Len(t, offers, 50)

	id := offers[0].ID
	require.NoError(t, v.RemoveTradeOffer(id))
	for _, o := range v.TradeOffers() {
		assert.NotEqual(t, id, o.ID)
	}
}

func TestAllianceUpsertRemove(t *testing.T) {
	v := newTestView(t)
	require.NoError(t, v.UpsertAlliance(types.WorldAlliance{ID: "a1", Name: "Norte", LeaderID: "p1", Members: []string{"p1"}}))
	require.Contains(t, v.Alliances(), "a1")

	require.NoError(t, v.RemoveAlliance("a1"))
	assert.NotContains(t, v.Alliances(), "a1")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	v := newTestView(t)
	require.NoError(t, v.UpdateRanking("p1", types.Ranking{Name: "Ana", Era: 3}))
	require.NoError(t, v.AddZoneDiscovery("z1", "p1"))

	loaded, err := LoadView(v.Save(), v.priv)
	require.NoError(t, err)
	assert.Equal(t, "Ana", loaded.Rankings()["p1"].Name)
	assert.Contains(t, loaded.Zones(), "z1")
}

func TestIncrementalChangesApply(t *testing.T) {
	a := newTestView(t)
	b := newTestView(t)

	// b starts from a's full doc so they share history.
	require.NoError(t, a.UpdateRanking("pa", types.Ranking{Name: "A", Era: 1}))
	loaded, err := LoadView(a.Save(), b.priv)
	require.NoError(t, err)
	b.doc = loaded.doc

	a.SaveIncremental() // reset baseline
	require.NoError(t, a.UpdateRanking("pa", types.Ranking{Name: "A", Era: 2}))
	changes := a.SaveIncremental()
	require.NotEmpty(t, changes)

	require.NoError(t, b.ApplyChanges(changes))
	assert.Equal(t, 2, b.Rankings()["pa"].Era)
}

func TestMergeFullRemoteKeepsVerifiedAndLocal(t *testing.T) {
	local := newTestView(t)
	remote := newTestView(t)

	require.NoError(t, local.UpdateRanking("local-p", types.Ranking{Name: "Mine", Era: 1}))
	require.NoError(t, remote.UpdateRanking("remote-p", types.Ranking{Name: "Theirs", Era: 2}))
	require.NoError(t, remote.AddZoneDiscovery("z9", "remote-p"))
	require.NoError(t, local.AddZoneDiscovery("z9", "local-p"))

	// A forged row in the remote doc: valid shape, broken signature.
	forged := types.Ranking{Name: "Evil", Era: 4, Signature: "00", SignedBy: remote.pubHex}
	require.NoError(t, remote.doc.Path("rankings").Map().Set("forged-p",
		string(core.MustCanonicalEncode(forged))))

	require.NoError(t, local.MergeFullRemote(remote.Save()))

	rankings := local.Rankings()
	assert.Contains(t, rankings, "remote-p", "verified remote row kept")
	assert.Contains(t, rankings, "local-p", "local row replayed on top")
	assert.NotContains(t, rankings, "forged-p", "forged row dropped")

	z := local.Zones()["z9"]
	assert.ElementsMatch(t, []string{"local-p", "remote-p"}, z.DiscoveredBy, "zones union")
}

func TestMergeFullRemoteGarbage(t *testing.T) {
	v := newTestView(t)
	assert.Error(t, v.MergeFullRemote([]byte("definitely not a document")))
}
