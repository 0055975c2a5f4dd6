// Package cache is a content-addressed store memoizing expensive
// pipeline artifacts. Entries are keyed by (trajectory content hash,
// parameter fingerprint, artifact kind) and never expire; invalidation
// happens by the key changing.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/AoWangg/mrra/internal/graph"
	"github.com/AoWangg/mrra/internal/models"
)

// Well-known artifact kinds. Kind is an open string: derived JSON
// artifacts use their own kinds (e.g. "patterns", "chains").
const (
	KindActivities = "activities"
	KindGraph      = "graph"
	KindJSON       = "json"
)

// Key addresses one artifact.
type Key struct {
	TrajectoryHash string
	Fingerprint    string
	Kind           string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", shorten(k.TrajectoryHash), k.Fingerprint, k.Kind)
}

func shorten(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// ConsistencyError reports a save whose content diverges from what is
// already stored under the same key. With deterministic builders this
// signals a parameter-fingerprinting bug; the divergent write is
// rejected and the stored content stays authoritative.
type ConsistencyError struct {
	Key Key
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("cache: divergent content for key %s", e.Key)
}

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	trajectory_hash TEXT NOT NULL,
	fingerprint     TEXT NOT NULL,
	kind            TEXT NOT NULL,
	content         BLOB NOT NULL,
	content_sha     TEXT NOT NULL,
	created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (trajectory_hash, fingerprint, kind)
)`

// Store is the sqlite-backed artifact cache. WAL mode keeps concurrent
// readers safe while one writer commits; the pool is capped at a single
// connection so writes serialize instead of surfacing SQLITE_BUSY to
// racing savers.
type Store struct {
	db *sql.DB
}

// Open opens (and initializes) the cache store at path. Parent
// directories are created as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL mode for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}

	log.Printf("[ArtifactCache] Store opened: %s", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores content under key. Concurrent savers race on the insert
// and the first row wins; a saver whose content matches the stored row
// returns nil (idempotent save), so racing misses that computed the
// same artifact all succeed. Divergent content for an existing key
// returns a *ConsistencyError and leaves the stored entry untouched.
func (s *Store) Save(key Key, content []byte) error {
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO artifacts (trajectory_hash, fingerprint, kind, content, content_sha) VALUES (?, ?, ?, ?, ?)`,
		key.TrajectoryHash, key.Fingerprint, key.Kind, content, sha,
	)
	if err != nil {
		return fmt.Errorf("cache: insert: %w", err)
	}

	var stored string
	if err := s.db.QueryRow(
		`SELECT content_sha FROM artifacts WHERE trajectory_hash = ? AND fingerprint = ? AND kind = ?`,
		key.TrajectoryHash, key.Fingerprint, key.Kind,
	).Scan(&stored); err != nil {
		return fmt.Errorf("cache: lookup: %w", err)
	}
	if stored != sha {
		return &ConsistencyError{Key: key}
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[ArtifactCache] Saved %s (%d bytes)", key, len(content))
	}
	return nil
}

// Load fetches the content under key; ok is false on a miss.
func (s *Store) Load(key Key) (content []byte, ok bool, err error) {
	err = s.db.QueryRow(
		`SELECT content FROM artifacts WHERE trajectory_hash = ? AND fingerprint = ? AND kind = ?`,
		key.TrajectoryHash, key.Fingerprint, key.Kind,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: load: %w", err)
	}
	return content, true, nil
}

// SaveActivities stores an activities artifact.
func (s *Store) SaveActivities(trajHash, fingerprint string, acts []models.Activity) error {
	data, err := json.Marshal(acts)
	if err != nil {
		return fmt.Errorf("cache: marshal activities: %w", err)
	}
	return s.Save(Key{trajHash, fingerprint, KindActivities}, data)
}

// LoadActivities fetches an activities artifact; ok is false on a miss.
func (s *Store) LoadActivities(trajHash, fingerprint string) ([]models.Activity, bool, error) {
	data, ok, err := s.Load(Key{trajHash, fingerprint, KindActivities})
	if err != nil || !ok {
		return nil, ok, err
	}
	var acts []models.Activity
	if err := json.Unmarshal(data, &acts); err != nil {
		return nil, false, fmt.Errorf("cache: unmarshal activities: %w", err)
	}
	return acts, true, nil
}

// SaveGraph stores a graph artifact.
func (s *Store) SaveGraph(trajHash, fingerprint string, g *graph.MobilityGraph) error {
	data, err := g.Encode()
	if err != nil {
		return fmt.Errorf("cache: encode graph: %w", err)
	}
	return s.Save(Key{trajHash, fingerprint, KindGraph}, data)
}

// LoadGraph fetches a graph artifact; ok is false on a miss.
func (s *Store) LoadGraph(trajHash, fingerprint string) (*graph.MobilityGraph, bool, error) {
	data, ok, err := s.Load(Key{trajHash, fingerprint, KindGraph})
	if err != nil || !ok {
		return nil, ok, err
	}
	g, err := graph.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

// SaveJSON stores an arbitrary JSON artifact under the given kind.
func (s *Store) SaveJSON(trajHash, fingerprint, kind string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal json artifact: %w", err)
	}
	return s.Save(Key{trajHash, fingerprint, kind}, data)
}

// LoadJSON fetches a JSON artifact into v; ok is false on a miss.
func (s *Store) LoadJSON(trajHash, fingerprint, kind string, v interface{}) (bool, error) {
	data, ok, err := s.Load(Key{trajHash, fingerprint, kind})
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("cache: unmarshal json artifact: %w", err)
	}
	return true, nil
}
