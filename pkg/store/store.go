// Package store is the sqlite persistence adapter: state snapshots, chain
// blocks, known peers, the action journal, and the persisted world
// document. Writes belonging to one logical command share one
// transaction.
package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/hugoguerrap/nodecoin/pkg/core"
	"github.com/hugoguerrap/nodecoin/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS state_snapshots (
	player_id TEXT NOT NULL,
	tick INTEGER NOT NULL,
	state_json TEXT NOT NULL,
	state_hash TEXT NOT NULL,
	PRIMARY KEY (player_id, tick)
);
CREATE TABLE IF NOT EXISTS chain_blocks (
	hash TEXT PRIMARY KEY,
	prev_hash TEXT,
	block_index INTEGER NOT NULL,
	player_id TEXT NOT NULL,
	command_type TEXT NOT NULL,
	command_args TEXT NOT NULL,
	command_tick INTEGER NOT NULL,
	state_hash TEXT,
	timestamp INTEGER NOT NULL,
	signature TEXT NOT NULL,
	public_key TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_blocks_player ON chain_blocks(player_id, block_index);
CREATE TABLE IF NOT EXISTS known_peers (
	multiaddr TEXT PRIMARY KEY,
	peer_id TEXT,
	player_name TEXT,
	last_seen INTEGER NOT NULL,
	success_count INTEGER DEFAULT 0
);
CREATE TABLE IF NOT EXISTS journal (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tick INTEGER NOT NULL,
	action_type TEXT NOT NULL,
	payload_blob BLOB,
	digest TEXT
);
CREATE INDEX IF NOT EXISTS idx_journal_tick ON journal(tick);
CREATE TABLE IF NOT EXISTS world_docs (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	doc_blob BLOB NOT NULL,
	saved_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS system_meta (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

// KnownPeerMaxAge prunes reconnection hints older than seven days.
const KnownPeerMaxAge = 7 * 24 * time.Hour

type Store struct {
	db *sql.DB
}

// Open creates the data dir, opens the sqlite file in WAL mode, and
// applies the schema.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}
	dsn := filepath.Join(dataDir, "nodecoin.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, errors.Wrap(err, "enable WAL")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "create schema")
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store, for tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- Meta ---

func (s *Store) GetMeta(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM system_meta WHERE key=?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO system_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// --- Snapshots ---

func insertSnapshot(tx *sql.Tx, playerID string, tick int64, stateJSON []byte, stateHash string) error {
	_, err := tx.Exec(
		"INSERT OR REPLACE INTO state_snapshots (player_id, tick, state_json, state_hash) VALUES (?, ?, ?, ?)",
		playerID, tick, string(stateJSON), stateHash)
	return err
}

func insertBlock(tx *sql.Tx, b types.Block) error {
	args, err := json.Marshal(b.Command.Args)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT OR IGNORE INTO chain_blocks
		(hash, prev_hash, block_index, player_id, command_type, command_args, command_tick,
		 state_hash, timestamp, signature, public_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Hash, b.PrevHash, b.Index, b.PlayerID, b.Command.Type, string(args), b.Command.Tick,
		b.StateHash, b.Timestamp, b.Signature, b.PublicKey)
	return err
}

// SaveSnapshot persists the latest state for (player, tick).
func (s *Store) SaveSnapshot(playerID string, tick int64, stateJSON []byte, stateHash string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := insertSnapshot(tx, playerID, tick, stateJSON, stateHash); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "save snapshot")
	}
	return tx.Commit()
}

// CommitCommand atomically persists a post-command snapshot together with
// the chain block recording the command. Either both land or neither.
func (s *Store) CommitCommand(playerID string, tick int64, stateJSON []byte, stateHash string, block types.Block) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := insertSnapshot(tx, playerID, tick, stateJSON, stateHash); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "commit snapshot")
	}
	if err := insertBlock(tx, block); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "commit block")
	}
	return tx.Commit()
}

// LatestSnapshot returns the newest persisted state, or nil when none.
func (s *Store) LatestSnapshot(playerID string) ([]byte, int64, error) {
	var stateJSON string
	var tick int64
	err := s.db.QueryRow(
		"SELECT state_json, tick FROM state_snapshots WHERE player_id=? ORDER BY tick DESC LIMIT 1",
		playerID).Scan(&stateJSON, &tick)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return []byte(stateJSON), tick, nil
}

// --- Chain Blocks ---

// SaveBlock is an idempotent insert-or-ignore.
func (s *Store) SaveBlock(b types.Block) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := insertBlock(tx, b); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "save block")
	}
	return tx.Commit()
}

func scanBlocks(rows *sql.Rows) ([]types.Block, error) {
	defer rows.Close()
	var out []types.Block
	for rows.Next() {
		var b types.Block
		var args string
		if err := rows.Scan(&b.Hash, &b.PrevHash, &b.Index, &b.PlayerID, &b.Command.Type, &args,
			&b.Command.Tick, &b.StateHash, &b.Timestamp, &b.Signature, &b.PublicKey); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(args), &b.Command.Args); err != nil {
			return nil, errors.Wrapf(err, "decode args of block %s", b.Hash)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const blockColumns = `hash, prev_hash, block_index, player_id, command_type, command_args,
	command_tick, state_hash, timestamp, signature, public_key`

// LoadChain returns a player's blocks ordered by index.
func (s *Store) LoadChain(playerID string) ([]types.Block, error) {
	rows, err := s.db.Query(
		"SELECT "+blockColumns+" FROM chain_blocks WHERE player_id=? ORDER BY block_index", playerID)
	if err != nil {
		return nil, err
	}
	return scanBlocks(rows)
}

// LoadBlockRange returns blocks with index in [from, to].
func (s *Store) LoadBlockRange(playerID string, from, to int) ([]types.Block, error) {
	rows, err := s.db.Query(
		"SELECT "+blockColumns+" FROM chain_blocks WHERE player_id=? AND block_index BETWEEN ? AND ? ORDER BY block_index",
		playerID, from, to)
	if err != nil {
		return nil, err
	}
	return scanBlocks(rows)
}

// GetLatestBlock returns the highest-index block of a player, or nil.
func (s *Store) GetLatestBlock(playerID string) (*types.Block, error) {
	rows, err := s.db.Query(
		"SELECT "+blockColumns+" FROM chain_blocks WHERE player_id=? ORDER BY block_index DESC LIMIT 1", playerID)
	if err != nil {
		return nil, err
	}
	blocks, err := scanBlocks(rows)
	if err != nil || len(blocks) == 0 {
		return nil, err
	}
	return &blocks[0], nil
}

func (s *Store) GetChainLength(playerID string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chain_blocks WHERE player_id=?", playerID).Scan(&n)
	return n, err
}

func (s *Store) HasBlock(hash string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chain_blocks WHERE hash=?", hash).Scan(&n)
	return n > 0, err
}

// --- Known Peers ---

// UpsertPeer records a reconnection hint, bumping success_count.
func (s *Store) UpsertPeer(p types.KnownPeer) error {
	_, err := s.db.Exec(`INSERT INTO known_peers (multiaddr, peer_id, player_name, last_seen, success_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(multiaddr) DO UPDATE SET
			peer_id=excluded.peer_id,
			player_name=excluded.player_name,
			last_seen=excluded.last_seen,
			success_count=known_peers.success_count+1`,
		p.Multiaddr, p.PeerID, p.PlayerName, p.LastSeen)
	return err
}

// LoadPeers returns hints ordered by recency then success count.
func (s *Store) LoadPeers(limit int) ([]types.KnownPeer, error) {
	rows, err := s.db.Query(
		"SELECT multiaddr, peer_id, player_name, last_seen, success_count FROM known_peers ORDER BY last_seen DESC, success_count DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.KnownPeer
	for rows.Next() {
		var p types.KnownPeer
		if err := rows.Scan(&p.Multiaddr, &p.PeerID, &p.PlayerName, &p.LastSeen, &p.SuccessCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PrunePeers drops hints not seen within maxAge. Runs at startup.
func (s *Store) PrunePeers(now time.Time, maxAge time.Duration) (int64, error) {
	cutoff := now.Add(-maxAge).UnixMilli()
	res, err := s.db.Exec("DELETE FROM known_peers WHERE last_seen < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Journal ---

// AppendJournal records an opaque event blob with a blake3 digest.
func (s *Store) AppendJournal(tick int64, actionType string, payload []byte) error {
	_, err := s.db.Exec("INSERT INTO journal (tick, action_type, payload_blob, digest) VALUES (?, ?, ?, ?)",
		tick, actionType, payload, core.HashBLAKE3(payload))
	return err
}

// JournalCount reports how many entries the journal holds.
func (s *Store) JournalCount() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM journal").Scan(&n)
	return n, err
}

// --- World Document ---

// SaveWorldDoc persists the lz4-compressed CRDT document.
func (s *Store) SaveWorldDoc(docBytes []byte, now time.Time) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO world_docs (id, doc_blob, saved_at) VALUES (1, ?, ?)",
		core.Compress(docBytes), now.UnixMilli())
	return err
}

// LoadWorldDoc returns the persisted document bytes, or nil when absent.
func (s *Store) LoadWorldDoc() ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT doc_blob FROM world_docs WHERE id=1").Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return core.Decompress(blob), nil
}
