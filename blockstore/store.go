package blockstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"honnef.co/go/safeish"
	_ "modernc.org/sqlite"
)

// Key identifies one block of one mipmap level of one setup (source).
type Key struct {
	Setup int
	Level int
	X     int
	Y     int
	Z     int
}

// hashKey mixes the key fields for shard selection.
func hashKey(k Key) uint64 {
	h := uint64(14695981039346656037)
	for _, v := range [...]int{k.Setup, k.Level, k.X, k.Y, k.Z} {
		h ^= uint64(v)
		h *= 1099511628211
	}
	return h
}

// ErrNotFound is returned by Store.LoadBlock when the block does not
// exist. Sparse datasets treat missing blocks as all-zero.
var ErrNotFound = errors.New("blockstore: block not found")

// Store is the backing storage blocks are fetched from.
//
// Implementations must be safe for concurrent use by multiple fetch
// workers.
type Store interface {
	// LoadBlock reads the voxel data of one block. Returns ErrNotFound
	// if the block does not exist.
	LoadBlock(key Key) ([]uint16, error)
}

// SQLStore persists blocks in a SQLite database, one row per block.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if needed) a block database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("blockstore: enable WAL: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS blocks (
			setup INTEGER NOT NULL,
			level INTEGER NOT NULL,
			bx INTEGER NOT NULL,
			by INTEGER NOT NULL,
			bz INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (setup, level, bx, by, bz)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("blockstore: create schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// LoadBlock reads the voxel data of one block.
func (s *SQLStore) LoadBlock(key Key) ([]uint16, error) {
	var blob []byte
	err := s.db.QueryRow(
		`SELECT data FROM blocks WHERE setup = ? AND level = ? AND bx = ? AND by = ? AND bz = ?`,
		key.Setup, key.Level, key.X, key.Y, key.Z).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blockstore: load %v: %w", key, err)
	}
	return safeish.SliceCast[[]uint16](blob), nil
}

// PutBlock writes the voxel data of one block, replacing any previous
// content.
func (s *SQLStore) PutBlock(key Key, data []uint16) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO blocks (setup, level, bx, by, bz, data) VALUES (?, ?, ?, ?, ?, ?)`,
		key.Setup, key.Level, key.X, key.Y, key.Z, safeish.SliceCast[[]byte](data))
	if err != nil {
		return fmt.Errorf("blockstore: put %v: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// MemStore is an in-memory Store, useful for tests and for staging
// generated datasets. An optional Delay hook simulates IO latency.
type MemStore struct {
	mu     sync.Mutex
	blocks map[Key][]uint16

	// Delay, if non-nil, is called before each load (e.g. to sleep).
	Delay func(Key)
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blocks: make(map[Key][]uint16)}
}

// LoadBlock reads the voxel data of one block.
func (s *MemStore) LoadBlock(key Key) ([]uint16, error) {
	if s.Delay != nil {
		s.Delay(key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blocks[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// PutBlock stores the voxel data of one block.
func (s *MemStore) PutBlock(key Key, data []uint16) error {
	s.mu.Lock()
	s.blocks[key] = data
	s.mu.Unlock()
	return nil
}
