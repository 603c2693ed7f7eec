package p2p

import (
	"sync"
	"time"
)

// --- Peer Registry ---
//
// In-memory map of live peers, populated by connect events and refreshed
// by announce messages. Stale entries are pruned the way the teacher
// prunes dead federation peers.

type PeerInfo struct {
	PeerID      string
	Address     string
	Name        string
	Era         int
	ConnectedAt time.Time
	LastSeen    time.Time
}

type Registry struct {
	mu    sync.RWMutex
	peers map[string]*PeerInfo
}

func NewRegistry() *Registry {
	return &Registry{peers: map[string]*PeerInfo{}}
}

func (r *Registry) Connected(peerID, address string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[peerID]; ok {
		p.LastSeen = now
		if address != "" {
			p.Address = address
		}
		return
	}
	r.peers[peerID] = &PeerInfo{PeerID: peerID, Address: address, ConnectedAt: now, LastSeen: now}
}

func (r *Registry) Announce(peerID, name string, era int, address string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		p = &PeerInfo{PeerID: peerID, ConnectedAt: now}
		r.peers[peerID] = p
	}
	p.Name = name
	p.Era = era
	if address != "" {
		p.Address = address
	}
	p.LastSeen = now
}

func (r *Registry) Prune(now time.Time, maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []string
	for id, p := range r.peers {
		if now.Sub(p.LastSeen) > maxAge {
			delete(r.peers, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

func (r *Registry) List() []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
