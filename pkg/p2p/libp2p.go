package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"

	"github.com/hugoguerrap/nodecoin/pkg/types"
)

// --- libp2p Gossip Transport ---
//
// Implements Bus on top of gossipsub. Each well-known topic maps to one
// pubsub topic under the nodecoin namespace; a reader goroutine per topic
// fans envelopes out to subscribed handlers.

const (
	topicPrefix     = "nodecoin"
	topicVersion    = "1.0.0"
	mdnsServiceName = "nodecoin-local"
)

func pubsubTopic(topic string) string {
	return fmt.Sprintf("%s/%s/%s", topicPrefix, topic, topicVersion)
}

type Libp2pBus struct {
	ctx    context.Context
	cancel context.CancelFunc
	host   host.Host
	ps     *pubsub.PubSub
	log    *log.Logger
	selfID string

	mu       sync.Mutex
	topics   map[string]*pubsub.Topic
	handlers map[string][]Handler

	// OnPeerConnect fires for every new transport-level connection with
	// the dialled/observed multiaddr.
	OnPeerConnect func(peerID, multiaddr string)
}

// NewLibp2pBus starts the host, joins gossipsub, registers the connect
// notifier and local mDNS discovery, and dials the bootstrap multiaddrs.
func NewLibp2pBus(ctx context.Context, selfID string, port int, bootstrap []string, logger *log.Logger) (*Libp2pBus, error) {
	ctx, cancel := context.WithCancel(ctx)
	h, err := libp2p.New(libp2p.ListenAddrStrings(
		fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port),
	))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "create libp2p host")
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, errors.Wrap(err, "create gossipsub")
	}
	b := &Libp2pBus{
		ctx:      ctx,
		cancel:   cancel,
		host:     h,
		ps:       ps,
		log:      logger,
		selfID:   selfID,
		topics:   map[string]*pubsub.Topic{},
		handlers: map[string][]Handler{},
	}

	h.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			if b.OnPeerConnect != nil {
				b.OnPeerConnect(conn.RemotePeer().String(), conn.RemoteMultiaddr().String())
			}
		},
	})

	svc := mdns.NewMdnsService(h, mdnsServiceName, &mdnsNotifee{bus: b})
	if err := svc.Start(); err != nil {
		logger.Printf("mdns discovery unavailable: %v", err)
	}

	for _, addr := range bootstrap {
		if addr == "" {
			continue
		}
		if err := b.Dial(addr); err != nil {
			logger.Printf("bootstrap %s unreachable: %v", addr, err)
		}
	}
	return b, nil
}

type mdnsNotifee struct {
	bus *Libp2pBus
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(n.bus.ctx, 10*time.Second)
	defer cancel()
	if err := n.bus.host.Connect(ctx, pi); err != nil {
		n.bus.log.Printf("mdns peer %s unreachable: %v", pi.ID, err)
	}
}

// Dial connects to a peer multiaddr.
func (b *Libp2pBus) Dial(addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return errors.Wrapf(err, "parse multiaddr %s", addr)
	}
	ai, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return errors.Wrap(err, "peer info from multiaddr")
	}
	ctx, cancel := context.WithTimeout(b.ctx, 15*time.Second)
	defer cancel()
	return b.host.Connect(ctx, *ai)
}

// Addrs returns this host's listen multiaddrs including the peer id.
func (b *Libp2pBus) Addrs() []string {
	var out []string
	suffix := "/p2p/" + b.host.ID().String()
	for _, a := range b.host.Addrs() {
		out = append(out, a.String()+suffix)
	}
	return out
}

func (b *Libp2pBus) HostID() string { return b.host.ID().String() }

func (b *Libp2pBus) joinTopic(topic string) (*pubsub.Topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[topic]; ok {
		return t, nil
	}
	t, err := b.ps.Join(pubsubTopic(topic))
	if err != nil {
		return nil, errors.Wrapf(err, "join topic %s", topic)
	}
	b.topics[topic] = t
	return t, nil
}

func (b *Libp2pBus) Publish(topic string, env types.Envelope) error {
	t, err := b.joinTopic(topic)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return t.Publish(b.ctx, data)
}

func (b *Libp2pBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	first := len(b.handlers[topic]) == 0
	b.handlers[topic] = append(b.handlers[topic], h)
	b.mu.Unlock()

	if !first {
		return
	}
	t, err := b.joinTopic(topic)
	if err != nil {
		b.log.Printf("subscribe %s: %v", topic, err)
		return
	}
	sub, err := t.Subscribe()
	if err != nil {
		b.log.Printf("subscribe %s: %v", topic, err)
		return
	}
	go b.readLoop(topic, sub)
}

func (b *Libp2pBus) readLoop(topic string, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(b.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == b.host.ID() {
			continue
		}
		var env types.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			continue
		}
		if env.SenderID == b.selfID {
			continue
		}
		b.mu.Lock()
		handlers := append([]Handler(nil), b.handlers[topic]...)
		b.mu.Unlock()
		for _, h := range handlers {
			h(env)
		}
	}
}

func (b *Libp2pBus) Close() error {
	b.cancel()
	return b.host.Close()
}
