// Package world maintains the replicated shared world document: rankings,
// zones, trade board, combat feed and alliances, gossiped between peers.
//
// Records are stored inside the CRDT as their canonical JSON encoding, so
// last-writer-wins applies per key and a record's bytes, minus its
// signature and signedBy fields, are exactly the pre-image its signature
// covers.
package world

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/automerge/automerge-go"
	"github.com/pkg/errors"

	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

const (
	maxTradeOffers = 50
	maxCombatLogs  = 100
)

// View wraps the automerge document plus this node's signing identity.
type View struct {
	mu     sync.Mutex
	doc    *automerge.Doc
	priv   ed25519.PrivateKey
	pubHex string
}

func NewView(priv ed25519.PrivateKey) *View {
	return &View{
		doc:    automerge.New(),
		priv:   priv,
		pubHex: hex.EncodeToString(priv.Public().(ed25519.PublicKey)),
	}
}

// LoadView restores a persisted document.
func LoadView(data []byte, priv ed25519.PrivateKey) (*View, error) {
	doc, err := automerge.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "load world doc")
	}
	return &View{
		doc:    doc,
		priv:   priv,
		pubHex: hex.EncodeToString(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// --- Signing ---

// signRecord canonically encodes v minus its signature fields, hashes,
// signs, and returns (signatureHex, signedBy).
func (w *View) signRecord(v any) (string, string) {
	pre := recordPreimage(v)
	hash := core.HashSHA256(pre)
	raw, _ := hex.DecodeString(hash)
	return core.SignHex(w.priv, raw), w.pubHex
}

func recordPreimage(v any) []byte {
	raw, _ := json.Marshal(v)
	var m map[string]any
	json.Unmarshal(raw, &m)
	delete(m, "signature")
	delete(m, "signedBy")
	return core.MustCanonicalEncode(m)
}

// VerifyRecord checks a signed record's signature over its canonical
// encoding minus signature/signedBy.
func VerifyRecord(recordJSON string) bool {
	var m map[string]any
	if err := json.Unmarshal([]byte(recordJSON), &m); err != nil {
		return false
	}
	sig, _ := m["signature"].(string)
	signedBy, _ := m["signedBy"].(string)
	if sig == "" || signedBy == "" {
		return false
	}
	delete(m, "signature")
	delete(m, "signedBy")
	hash := core.HashSHA256(core.MustCanonicalEncode(m))
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}
	return core.VerifyHex(signedBy, raw, sig)
}

// --- Mutations ---

// UpdateRanking signs and publishes this node's scoreboard row.
func (w *View) UpdateRanking(playerID string, r types.Ranking) error {
	r.Signature, r.SignedBy = w.signRecord(r)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.Path("rankings").Map().Set(playerID, string(core.MustCanonicalEncode(r)))
}

// AddZoneDiscovery unions playerID into the zone's discoverer set.
func (w *View) AddZoneDiscovery(zoneID, playerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	z := w.readZone(zoneID)
	for _, p := range z.DiscoveredBy {
		if p == playerID {
			return nil
		}
	}
	z.DiscoveredBy = append(z.DiscoveredBy, playerID)
	return w.writeZone(zoneID, z)
}

// ClaimZone overwrites the claim and keeps the claimer in discoveredBy.
func (w *View) ClaimZone(zoneID, playerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	z := w.readZone(zoneID)
	found := false
	for _, p := range z.DiscoveredBy {
		if p == playerID {
			found = true
			break
		}
	}
	if !found {
		z.DiscoveredBy = append(z.DiscoveredBy, playerID)
	}
	z.ClaimedBy = playerID
	return w.writeZone(zoneID, z)
}

func (w *View) readZone(zoneID string) types.Zone {
	z := types.Zone{DiscoveredBy: []string{}}
	v, err := w.doc.Path("zones").Map().Get(zoneID)
	if err == nil && v.Kind() == automerge.KindStr {
		json.Unmarshal([]byte(v.Str()), &z)
	}
	return z
}

func (w *View) writeZone(zoneID string, z types.Zone) error {
	return w.doc.Path("zones").Map().Set(zoneID, string(core.MustCanonicalEncode(z)))
}

// AddCombatLog appends to the feed, trimmed to the last 100.
func (w *View) AddCombatLog(entry types.CombatLogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	l := w.doc.Path("combatLogs").List()
	if err := l.Append(string(core.MustCanonicalEncode(entry))); err != nil {
		return err
	}
	for l.Len() > maxCombatLogs {
		if err := l.Delete(0); err != nil {
			return err
		}
	}
	return nil
}

// AddTradeOffer signs and appends to the board, trimmed to the last 50.
func (w *View) AddTradeOffer(o types.WorldTradeOffer) error {
	o.Signature, o.SignedBy = w.signRecord(o)
	w.mu.Lock()
	defer w.mu.Unlock()
	l := w.doc.Path("tradeOffers").List()
	if err := l.Append(string(core.MustCanonicalEncode(o))); err != nil {
		return err
	}
	for l.Len() > maxTradeOffers {
		if err := l.Delete(0); err != nil {
			return err
		}
	}
	return nil
}

// RemoveTradeOffer deletes the offer with the given id, if present.
func (w *View) RemoveTradeOffer(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	l := w.doc.Path("tradeOffers").List()
	for i := 0; i < l.Len(); i++ {
		v, err := l.Get(i)
		if err != nil || v.Kind() != automerge.KindStr {
			continue
		}
		var o types.WorldTradeOffer
		if json.Unmarshal([]byte(v.Str()), &o) == nil && o.ID == id {
			return l.Delete(i)
		}
	}
	return nil
}

// UpsertAlliance signs and publishes an alliance record.
func (w *View) UpsertAlliance(a types.WorldAlliance) error {
	a.Signature, a.SignedBy = w.signRecord(a)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.Path("alliances").Map().Set(a.ID, string(core.MustCanonicalEncode(a)))
}

// RemoveAlliance drops an alliance record.
func (w *View) RemoveAlliance(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.Path("alliances").Map().Delete(id)
}

// --- Reads ---

func mapRecords(doc *automerge.Doc, path string) map[string]string {
	out := map[string]string{}
	m := doc.Path(path).Map()
	keys, err := m.Keys()
	if err != nil {
		return out
	}
	for _, k := range keys {
		v, err := m.Get(k)
		if err == nil && v.Kind() == automerge.KindStr {
			out[k] = v.Str()
		}
	}
	return out
}

func listRecords(doc *automerge.Doc, path string) []string {
	var out []string
	l := doc.Path(path).List()
	for i := 0; i < l.Len(); i++ {
		v, err := l.Get(i)
		if err == nil && v.Kind() == automerge.KindStr {
			out = append(out, v.Str())
		}
	}
	return out
}

// Rankings decodes the scoreboard.
func (w *View) Rankings() map[string]types.Ranking {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := map[string]types.Ranking{}
	for k, raw := range mapRecords(w.doc, "rankings") {
		var r types.Ranking
		if json.Unmarshal([]byte(raw), &r) == nil {
			out[k] = r
		}
	}
	return out
}

// Zones decodes the zone map.
func (w *View) Zones() map[string]types.Zone {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := map[string]types.Zone{}
	for k, raw := range mapRecords(w.doc, "zones") {
		var z types.Zone
		if json.Unmarshal([]byte(raw), &z) == nil {
			out[k] = z
		}
	}
	return out
}

// TradeOffers decodes the trade board in list order.
func (w *View) TradeOffers() []types.WorldTradeOffer {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []types.WorldTradeOffer
	for _, raw := range listRecords(w.doc, "tradeOffers") {
		var o types.WorldTradeOffer
		if json.Unmarshal([]byte(raw), &o) == nil {
			out = append(out, o)
		}
	}
	return out
}

// CombatLogs decodes the combat feed in list order.
func (w *View) CombatLogs() []types.CombatLogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []types.CombatLogEntry
	for _, raw := range listRecords(w.doc, "combatLogs") {
		var e types.CombatLogEntry
		if json.Unmarshal([]byte(raw), &e) == nil {
			out = append(out, e)
		}
	}
	return out
}

// Alliances decodes the alliance registry.
func (w *View) Alliances() map[string]types.WorldAlliance {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := map[string]types.WorldAlliance{}
	for k, raw := range mapRecords(w.doc, "alliances") {
		var a types.WorldAlliance
		if json.Unmarshal([]byte(raw), &a) == nil {
			out[k] = a
		}
	}
	return out
}
