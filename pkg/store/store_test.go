package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeBlock(hash, prev string, index int, playerID string) types.Block {
	return types.Block{
		Hash:      hash,
		PrevHash:  prev,
		Index:     index,
		PlayerID:  playerID,
		Command:   types.Command{Type: types.CmdBuild, Args: map[string]any{"buildingId": "choza"}, Tick: int64(index)},
		StateHash: "sh-" + hash,
		Timestamp: int64(1000 + index),
		Signature: "sig",
		PublicKey: "pub",
	}
}

func TestSnapshotLatestWins(t *testing.T) {
	s := newTestStore(t)

	data, tick, err := s.LatestSnapshot("p1")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.EqualValues(t, 0, tick)

	require.NoError(t, s.SaveSnapshot("p1", 1, []byte(`{"tick":1}`), "h1"))
	require.NoError(t, s.SaveSnapshot("p1", 5, []byte(`{"tick":5}`), "h5"))
	require.NoError(t, s.SaveSnapshot("p1", 3, []byte(`{"tick":3}`), "h3"))

	data, tick, err = s.LatestSnapshot("p1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, tick)
	assert.JSONEq(t, `{"tick":5}`, string(data))

	// Same (player, tick) replaces rather than duplicating.
	require.NoError(t, s.SaveSnapshot("p1", 5, []byte(`{"tick":5,"v":2}`), "h5b"))
	data, _, _ = s.LatestSnapshot("p1")
	assert.JSONEq(t, `{"tick":5,"v":2}`, string(data))
}

func TestCommitCommandIsAtomicGroup(t *testing.T) {
	s := newTestStore(t)
	b := makeBlock("aaa", "", 0, "p1")
	require.NoError(t, s.CommitCommand("p1", 7, []byte(`{"tick":7}`), "h7", b))

	data, tick, err := s.LatestSnapshot("p1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, tick)
	assert.NotNil(t, data)

	has, err := s.HasBlock("aaa")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestBlocksOrderAndRange(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveBlock(makeBlock("c", "b", 2, "p1")))
	require.NoError(t, s.SaveBlock(makeBlock("a", "", 0, "p1")))
	require.NoError(t, s.SaveBlock(makeBlock("b", "a", 1, "p1")))
	require.NoError(t, s.SaveBlock(makeBlock("z", "", 0, "p2")))

	blocks, err := s.LoadChain("p1")
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	for i, b := range blocks {
		assert.Equal(t, i, b.Index)
	}
	assert.Equal(t, "choza", blocks[0].Command.Args["buildingId"])

	mid, err := s.LoadBlockRange("p1", 1, 2)
	require.NoError(t, err)
	require.Len(t, mid, 2)
	assert.Equal(t, 1, mid[0].Index)

	latest, err := s.GetLatestBlock("p1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "c", latest.Hash)

	n, err := s.GetChainLength("p1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	latest, err = s.GetLatestBlock("p9")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSaveBlockIdempotent(t *testing.T) {
	s := newTestStore(t)
	b := makeBlock("dup", "", 0, "p1")
	require.NoError(t, s.SaveBlock(b))
	require.NoError(t, s.SaveBlock(b))
	n, _ := s.GetChainLength("p1")
	assert.Equal(t, 1, n)
}

func TestKnownPeersUpsertAndPrune(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	old := types.KnownPeer{Multiaddr: "/ip4/10.0.0.1/tcp/9650", PeerID: "old", LastSeen: now.Add(-8 * 24 * time.Hour).UnixMilli()}
	fresh := types.KnownPeer{Multiaddr: "/ip4/10.0.0.2/tcp/9650", PeerID: "fresh", PlayerName: "Ana", LastSeen: now.UnixMilli()}
	require.NoError(t, s.UpsertPeer(old))
	require.NoError(t, s.UpsertPeer(fresh))
	require.NoError(t, s.UpsertPeer(fresh)) // bumps success_count

	peers, err := s.LoadPeers(10)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "fresh", peers[0].PeerID, "most recent first")
	assert.Equal(t, 2, peers[0].SuccessCount)

	pruned, err := s.PrunePeers(now, KnownPeerMaxAge)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	peers, _ = s.LoadPeers(10)
	require.Len(t, peers, 1)
	assert.Equal(t, "fresh", peers[0].PeerID)
}

func TestWorldDocRoundTrip(t *testing.T) {
	s := newTestStore(t)

	data, err := s.LoadWorldDoc()
	require.NoError(t, err)
	assert.Nil(t, data)

	payload := []byte("not really a crdt doc but plenty of bytes to compress compress compress")
	require.NoError(t, s.SaveWorldDoc(payload, time.Now()))
	data, err = s.LoadWorldDoc()
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestJournalAppend(t *testing.T) {
	s := newTestStore(t)
	payload := []byte(`{"evt":"boot"}`)
	require.NoError(t, s.AppendJournal(4, "boot", payload))

	var digest string
	err := s.db.QueryRow("SELECT digest FROM journal WHERE tick=4").Scan(&digest)
	require.NoError(t, err)
	assert.Equal(t, core.HashBLAKE3(payload), digest)
}

func TestMetaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	v, err := s.GetMeta("missing")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.SetMeta("k", "v1"))
	require.NoError(t, s.SetMeta("k", "v2"))
	v, err = s.GetMeta("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}
