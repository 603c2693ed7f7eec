package world

import (
	"encoding/json"

	"github.com/automerge/automerge-go"
	"github.com/pkg/errors"
)

// --- Sync Surfaces ---
//
// Full payloads between independent peers cannot be raw-merged: the docs
// share no common ancestor, and a malicious full doc could carry forged
// records. MergeFullRemote rebuilds instead: verified remote signed
// records land on a fresh document, unsigned records are folded with
// union/append semantics, and every local record signed by us is replayed
// on top so local writes survive.

// Save serializes the full document.
func (w *View) Save() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.Save()
}

// SaveIncremental returns the changes since the previous call.
func (w *View) SaveIncremental() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.SaveIncremental()
}

// ApplyChanges folds an incremental change blob from a peer we already
// share history with.
func (w *View) ApplyChanges(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.doc.LoadIncremental(data); err != nil {
		return errors.Wrap(err, "apply changes")
	}
	return nil
}

// Heads returns the current document heads.
func (w *View) Heads() []automerge.ChangeHash {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.Heads()
}

// MergeFullRemote folds a full remote document using the replay approach.
func (w *View) MergeFullRemote(remoteBytes []byte) error {
	remote, err := automerge.Load(remoteBytes)
	if err != nil {
		return errors.Wrap(err, "decode remote doc")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	fresh := automerge.New()

	// Signed maps: keep only records whose signature verifies. Local
	// records signed by us win over the remote copy.
	for _, path := range []string{"rankings", "alliances"} {
		merged := map[string]string{}
		for k, raw := range mapRecords(remote, path) {
			if VerifyRecord(raw) {
				merged[k] = raw
			}
		}
		for k, raw := range mapRecords(w.doc, path) {
			if signedByUs(raw, w.pubHex) {
				merged[k] = raw
			}
		}
		m := fresh.Path(path).Map()
		for k, raw := range merged {
			if err := m.Set(k, raw); err != nil {
				return err
			}
		}
	}

	// Trade board: verified remote offers plus our own, deduped by id.
	seen := map[string]bool{}
	l := fresh.Path("tradeOffers").List()
	appendOffer := func(raw string) error {
		var probe struct {
			ID string `json:"id"`
		}
		if json.Unmarshal([]byte(raw), &probe) != nil || probe.ID == "" || seen[probe.ID] {
			return nil
		}
		seen[probe.ID] = true
		return l.Append(raw)
	}
	for _, raw := range listRecords(remote, "tradeOffers") {
		if VerifyRecord(raw) {
			if err := appendOffer(raw); err != nil {
				return err
			}
		}
	}
	for _, raw := range listRecords(w.doc, "tradeOffers") {
		if signedByUs(raw, w.pubHex) {
			if err := appendOffer(raw); err != nil {
				return err
			}
		}
	}
	for l.Len() > maxTradeOffers {
		if err := l.Delete(0); err != nil {
			return err
		}
	}

	// Zones: unsigned, union of both views.
	zones := map[string]string{}
	for k, raw := range mapRecords(w.doc, "zones") {
		zones[k] = raw
	}
	for k, remoteRaw := range mapRecords(remote, "zones") {
		if localRaw, ok := zones[k]; ok {
			zones[k] = unionZones(localRaw, remoteRaw)
		} else {
			zones[k] = remoteRaw
		}
	}
	zm := fresh.Path("zones").Map()
	for k, raw := range zones {
		if err := zm.Set(k, raw); err != nil {
			return err
		}
	}

	// Combat feed: unsigned, informational; remote then local, deduped,
	// trimmed to the last entries.
	cl := fresh.Path("combatLogs").List()
	seenLogs := map[string]bool{}
	for _, raw := range append(listRecords(remote, "combatLogs"), listRecords(w.doc, "combatLogs")...) {
		if seenLogs[raw] {
			continue
		}
		seenLogs[raw] = true
		if err := cl.Append(raw); err != nil {
			return err
		}
	}
	for cl.Len() > maxCombatLogs {
		if err := cl.Delete(0); err != nil {
			return err
		}
	}

	w.doc = fresh
	return nil
}

func signedByUs(recordJSON, pubHex string) bool {
	var probe struct {
		SignedBy string `json:"signedBy"`
	}
	if json.Unmarshal([]byte(recordJSON), &probe) != nil {
		return false
	}
	return probe.SignedBy == pubHex
}

func unionZones(localRaw, remoteRaw string) string {
	var local, remote struct {
		DiscoveredBy []string `json:"discoveredBy"`
		ClaimedBy    string   `json:"claimedBy"`
	}
	if json.Unmarshal([]byte(localRaw), &local) != nil {
		return remoteRaw
	}
	if json.Unmarshal([]byte(remoteRaw), &remote) != nil {
		return localRaw
	}
	seen := map[string]bool{}
	merged := local
	for _, p := range local.DiscoveredBy {
		seen[p] = true
	}
	for _, p := range remote.DiscoveredBy {
		if !seen[p] {
			merged.DiscoveredBy = append(merged.DiscoveredBy, p)
		}
	}
	if merged.ClaimedBy == "" {
		merged.ClaimedBy = remote.ClaimedBy
	}
	out, err := json.Marshal(map[string]any{
		"discoveredBy": merged.DiscoveredBy,
		"claimedBy":    merged.ClaimedBy,
	})
	if err != nil {
		return localRaw
	}
	return string(out)
}
