package p2p

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"log"
	"time"

	"github.com/hugoguerrap/nodecoin/pkg/types"
	"github.com/hugoguerrap/nodecoin/pkg/world"
)

// --- State Syncer ---
//
// Publishes the shared world document on the game-state topic: a full
// snapshot on the first broadcast and on new peer connects, incremental
// changes afterwards. Inbound full payloads go through the view's
// verified-replay merge; raw CRDT merge between independent peers is
// unsound (no common ancestor).

const DefaultSyncInterval = 5000 * time.Millisecond

type Syncer struct {
	bus      Bus
	view     *world.View
	log      *log.Logger
	selfID   string
	now      func() int64
	interval time.Duration

	sentFull bool
}

func NewSyncer(bus Bus, view *world.View, logger *log.Logger, selfID string, now func() int64) *Syncer {
	return &Syncer{
		bus:      bus,
		view:     view,
		log:      logger,
		selfID:   selfID,
		now:      now,
		interval: DefaultSyncInterval,
	}
}

// Start subscribes and launches the periodic broadcast loop.
func (s *Syncer) Start(ctx context.Context) {
	s.bus.Subscribe(types.TopicGameState, s.handleMessage)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.BroadcastChanges()
			}
		}
	}()
}

// BroadcastFull pushes the whole document; used on first contact.
func (s *Syncer) BroadcastFull() {
	s.publish(types.SyncPayload{
		SyncType: "full",
		Data:     base64.StdEncoding.EncodeToString(s.view.Save()),
	})
	s.sentFull = true
	// Reset the incremental baseline so the next delta follows the full.
	s.view.SaveIncremental()
}

// BroadcastChanges pushes changes since the last broadcast, falling back
// to a full snapshot when none was sent yet.
func (s *Syncer) BroadcastChanges() {
	if !s.sentFull {
		s.BroadcastFull()
		return
	}
	changes := s.view.SaveIncremental()
	if len(changes) == 0 {
		return
	}
	s.publish(types.SyncPayload{
		SyncType: "changes",
		Data:     base64.StdEncoding.EncodeToString(frameChanges([][]byte{changes})),
	})
}

func (s *Syncer) publish(p types.SyncPayload) {
	env, err := NewEnvelope(types.MsgGameState, s.selfID, s.now(), p)
	if err != nil {
		return
	}
	if err := s.bus.Publish(types.TopicGameState, env); err != nil {
		s.log.Printf("state broadcast failed: %v", err)
	}
}

func (s *Syncer) handleMessage(env types.Envelope) {
	if env.SenderID == s.selfID {
		return
	}
	var p types.SyncPayload
	if json.Unmarshal(env.Payload, &p) != nil {
		return
	}
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return
	}
	switch p.SyncType {
	case "full":
		if err := s.view.MergeFullRemote(data); err != nil {
			s.log.Printf("full sync from %s rejected: %v", env.SenderID, err)
		}
	case "changes":
		for _, blob := range deframeChanges(data) {
			if err := s.view.ApplyChanges(blob); err != nil {
				s.log.Printf("changes from %s rejected: %v", env.SenderID, err)
				return
			}
		}
	}
}

// --- Change Framing ---
//
// A changes payload is a sequence of 4-byte big-endian length-prefixed
// change blobs.

func frameChanges(blobs [][]byte) []byte {
	var buf bytes.Buffer
	for _, blob := range blobs {
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(blob)))
		buf.Write(hdr[:])
		buf.Write(blob)
	}
	return buf.Bytes()
}

func deframeChanges(data []byte) [][]byte {
	var out [][]byte
	for len(data) >= 4 {
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < n {
			break
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}
