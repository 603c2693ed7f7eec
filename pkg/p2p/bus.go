// Package p2p coordinates the node's networking: a topic-based gossip
// bus, the chain broadcaster with its verification pipeline, the shared
// world-state syncer, and the peer registry. The transport underneath the
// Bus interface is swappable; the libp2p gossipsub adapter is the
// production one and the in-memory bus backs tests.
package p2p

import (
	"encoding/json"
	"sync"

	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// Handler consumes one gossip envelope.
type Handler func(env types.Envelope)

// Bus is the gossip abstraction: publish/subscribe on the five
// well-known topics. Implementations must filter self-sent messages on
// receipt.
type Bus interface {
	Publish(topic string, env types.Envelope) error
	Subscribe(topic string, h Handler)
	Close() error
}

// NewEnvelope builds the wire envelope around a payload.
func NewEnvelope(msgType, senderID string, now int64, payload any) (types.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return types.Envelope{}, err
	}
	return types.Envelope{Type: msgType, SenderID: senderID, Timestamp: now, Payload: raw}, nil
}

// --- In-Memory Bus ---

// MemBus connects nodes inside one process. Handlers run synchronously on
// the publisher's goroutine; self-sent messages are filtered by SenderID
// like the real transport does.
type MemBus struct {
	mu   sync.Mutex
	subs map[string][]memSub
}

type memSub struct {
	selfID  string
	handler Handler
}

func NewMemBus() *MemBus {
	return &MemBus{subs: map[string][]memSub{}}
}

// Node returns a bus facade bound to one node id.
func (m *MemBus) Node(selfID string) Bus {
	return &memNode{bus: m, selfID: selfID}
}

type memNode struct {
	bus    *MemBus
	selfID string
}

func (n *memNode) Publish(topic string, env types.Envelope) error {
	n.bus.mu.Lock()
	subs := append([]memSub(nil), n.bus.subs[topic]...)
	n.bus.mu.Unlock()
	for _, s := range subs {
		if s.selfID == env.SenderID {
			continue
		}
		s.handler(env)
	}
	return nil
}

func (n *memNode) Subscribe(topic string, h Handler) {
	n.bus.mu.Lock()
	defer n.bus.mu.Unlock()
	n.bus.subs[topic] = append(n.bus.subs[topic], memSub{selfID: n.selfID, handler: h})
}

func (n *memNode) Close() error { return nil }
