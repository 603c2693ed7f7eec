package p2p

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugoguerrap/nodecoin/pkg/chain"
	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/store"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestBroadcaster(t *testing.T, bus Bus, selfID string) *Broadcaster {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	now := func() int64 { return 1_000_000 }
	b := NewBroadcaster(bus, st, testLogger(), selfID, now)
	b.Start()
	return b
}

func newSignedChain(t *testing.T, playerID string) *chain.Chain {
	t.Helper()
	_, priv, err := core.GenerateKeypair()
	require.NoError(t, err)
	c := chain.New(playerID, playerID, "plains", "seed", priv, 999_000)
	return c
}

func TestInboundChainAcceptedInOrder(t *testing.T) {
	mem := NewMemBus()
	receiver := newTestBroadcaster(t, mem.Node("n1"), "n1")

	sender := mem.Node("n2")
	c := newSignedChain(t, "p2")
	b1 := c.Append(types.CmdBuild, map[string]any{"buildingId": "choza"}, 1, "h1", 999_100)
	b2 := c.Append(types.CmdBuild, map[string]any{"buildingId": "granja"}, 2, "h2", 999_200)

	for _, blk := range c.Blocks() {
		env, err := NewEnvelope(types.MsgChainBlock, "n2", 999_300, types.ChainBlockPayload{Block: blk})
		require.NoError(t, err)
		require.NoError(t, sender.Publish(types.TopicCommands, env))
	}

	got := receiver.RemoteChain("p2")
	require.Len(t, got, 3)
	assert.Equal(t, b1.Hash, got[1].Hash)
	assert.Equal(t, b2.Hash, got[2].Hash)
	assert.Equal(t, []string{"p2"}, receiver.KnownPlayers())
}

func TestDuplicateBlockIgnored(t *testing.T) {
	mem := NewMemBus()
	receiver := newTestBroadcaster(t, mem.Node("n1"), "n1")
	sender := mem.Node("n2")

	c := newSignedChain(t, "p2")
	genesis := c.Blocks()[0]
	env, _ := NewEnvelope(types.MsgChainBlock, "n2", 999_300, types.ChainBlockPayload{Block: genesis})
	sender.Publish(types.TopicCommands, env)
	sender.Publish(types.TopicCommands, env)

	assert.Len(t, receiver.RemoteChain("p2"), 1)
}

func TestTamperedBlockRejected(t *testing.T) {
	mem := NewMemBus()
	receiver := newTestBroadcaster(t, mem.Node("n1"), "n1")
	sender := mem.Node("n2")

	c := newSignedChain(t, "p2")
	bad := c.Blocks()[0]
	bad.StateHash = "tampered"
	env, _ := NewEnvelope(types.MsgChainBlock, "n2", 999_300, types.ChainBlockPayload{Block: bad})
	sender.Publish(types.TopicCommands, env)

	assert.Empty(t, receiver.RemoteChain("p2"))
}

func TestFutureTimestampRejected(t *testing.T) {
	mem := NewMemBus()
	receiver := newTestBroadcaster(t, mem.Node("n1"), "n1")
	sender := mem.Node("n2")

	_, priv, err := core.GenerateKeypair()
	require.NoError(t, err)
	// Block stamped 10 minutes past the receiver's clock.
	c := chain.New("p2", "p2", "plains", "seed", priv, 1_000_000+10*60*1000)
	env, _ := NewEnvelope(types.MsgChainBlock, "n2", 999_300, types.ChainBlockPayload{Block: c.Blocks()[0]})
	sender.Publish(types.TopicCommands, env)

	assert.Empty(t, receiver.RemoteChain("p2"))
}

func TestIdentityBindingRejectsSecondKey(t *testing.T) {
	mem := NewMemBus()
	receiver := newTestBroadcaster(t, mem.Node("n1"), "n1")
	sender := mem.Node("n2")

	// First chain pins the key.
	c1 := newSignedChain(t, "p2")
	env, _ := NewEnvelope(types.MsgChainBlock, "n2", 999_300, types.ChainBlockPayload{Block: c1.Blocks()[0]})
	sender.Publish(types.TopicCommands, env)
	require.Len(t, receiver.RemoteChain("p2"), 1)

	// A different keypair claiming the same player id.
	c2 := newSignedChain(t, "p2")
	impostor := c2.Append(types.CmdBuild, map[string]any{"buildingId": "choza"}, 1, "h1", 999_400)
	env, _ = NewEnvelope(types.MsgChainBlock, "n2", 999_500, types.ChainBlockPayload{Block: impostor})
	sender.Publish(types.TopicCommands, env)

	assert.Len(t, receiver.RemoteChain("p2"), 1, "impostor block dropped")
}

func TestGapTriggersChainRequestAndResponseFills(t *testing.T) {
	mem := NewMemBus()
	receiver := newTestBroadcaster(t, mem.Node("n1"), "n1")

	// The sender node answers chain requests for its own player.
	senderBus := mem.Node("n2")
	c := newSignedChain(t, "p2")
	c.Append(types.CmdBuild, map[string]any{"buildingId": "choza"}, 1, "h1", 999_100)
	b2 := c.Append(types.CmdBuild, map[string]any{"buildingId": "granja"}, 2, "h2", 999_200)
	senderSide := NewBroadcaster(senderBus, mustMemStore(t), testLogger(), "n2", func() int64 { return 1_000_000 })
	senderSide.SetLocalChain("p2", func(from int) []types.Block {
		blocks := c.Blocks()
		if from >= len(blocks) {
			return nil
		}
		return blocks[from:]
	})
	senderSide.Start()

	// Receiver sees only the tip; the gap makes it request 0.. and the
	// sender's response fills the whole chain.
	env, _ := NewEnvelope(types.MsgChainBlock, "n2", 999_300, types.ChainBlockPayload{Block: b2})
	senderBus.Publish(types.TopicCommands, env)

	got := receiver.RemoteChain("p2")
	require.Len(t, got, 3)
	assert.Equal(t, b2.Hash, got[2].Hash)
}

func mustMemStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSelfMessagesFiltered(t *testing.T) {
	mem := NewMemBus()
	b := newTestBroadcaster(t, mem.Node("n1"), "n1")

	c := newSignedChain(t, "p9")
	env, _ := NewEnvelope(types.MsgChainBlock, "n1", 999_300, types.ChainBlockPayload{Block: c.Blocks()[0]})
	mem.Node("n1").Publish(types.TopicCommands, env)

	assert.Empty(t, b.RemoteChain("p9"))
}

func TestRateLimiterDropsBurst(t *testing.T) {
	l := newSenderLimiter()
	allowed := 0
	for i := 0; i < 200; i++ {
		if l.allow("spammer") {
			allowed++
		}
	}
	assert.LessOrEqual(t, allowed, 61)
	assert.True(t, l.allow("someone-else"), "limits are per sender")
}

func TestFrameDeframeChanges(t *testing.T) {
	blobs := [][]byte{[]byte("alpha"), []byte("b")}
	framed := frameChanges(blobs)
	got := deframeChanges(framed)
	require.Len(t, got, 2)
	assert.Equal(t, []byte("alpha"), got[0])
	assert.Equal(t, []byte("b"), got[1])

	// Truncated payload stops cleanly at the last whole frame.
	got = deframeChanges(framed[:len(framed)-1])
	require.Len(t, got, 1)
}
