// Package chunkdb persists edited chunks in a SQLite database.
package chunkdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"chunkstream/internal/world"
)

// ErrClosed is returned by Save after Close.
var ErrClosed = errors.New("chunkdb: store closed")

const (
	queueSize = 1024
	maxBatch  = 64
)

// Store writes chunks on a single background goroutine. Saves that have not
// reached the database yet are still visible to Load.
type Store struct {
	db     *sql.DB
	logger *log.Logger

	ch     chan req
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed against sends on ch
	closed bool

	pendingMu sync.Mutex
	pending   map[world.ChunkKey]*row
}

type req struct {
	row   *row
	flush chan struct{}
}

// Open creates or opens the database at path. A nil logger means log.Default().
func Open(path string, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("chunkdb: empty db path")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:      db,
		logger:  logger,
		ch:      make(chan req, queueSize),
		pending: make(map[world.ChunkKey]*row),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			payload BLOB NOT NULL,
			checksum INTEGER NOT NULL,
			last_modified INTEGER NOT NULL,
			PRIMARY KEY (cx, cz)
		);`,
		fmt.Sprintf(`INSERT OR REPLACE INTO meta(key,value) VALUES('chunk_size','%d');`, world.ChunkSize),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Save queues a snapshot of c for writing. The chunk is encoded before Save
// returns, so the caller may dispose it right away. Save blocks while the
// write queue is full.
func (s *Store) Save(c *world.Chunk) error {
	r, err := encodeChunk(c)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.pendingMu.Lock()
	s.pending[c.Key()] = r
	s.pendingMu.Unlock()
	s.ch <- req{row: r}
	return nil
}

// Flush waits until every Save issued before it has been written.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.ch <- req{flush: done}
	s.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load returns the stored chunk at coord. ok is false when nothing is stored.
// It is safe to call from several goroutines.
func (s *Store) Load(ctx context.Context, coord world.ChunkCoord) (c *world.Chunk, ok bool, err error) {
	s.pendingMu.Lock()
	r := s.pending[coord.Key()]
	s.pendingMu.Unlock()

	if r == nil {
		r = &row{cx: int32(coord.X), cz: int32(coord.Z)}
		err := s.db.QueryRowContext(ctx,
			`SELECT payload, checksum, last_modified FROM chunks WHERE cx=? AND cz=?`,
			r.cx, r.cz,
		).Scan(&r.payload, (*int64Checksum)(&r.checksum), &r.lastModified)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("chunkdb: load %s: %w", coord, err)
		}
	}
	c, err = decodeChunk(r)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Count returns the number of stored chunks, not counting unwritten saves.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close drains the write queue and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) loop() {
	for r := range s.ch {
		if r.flush != nil {
			close(r.flush)
			continue
		}
		batch := []*row{r.row}
		var flushes []chan struct{}
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-s.ch:
				if !ok {
					break drain
				}
				if next.flush != nil {
					flushes = append(flushes, next.flush)
					break drain
				}
				batch = append(batch, next.row)
			default:
				break drain
			}
		}
		if err := s.writeBatch(batch); err != nil {
			s.logger.Printf("chunkdb: write %d chunks: %v", len(batch), err)
		}
		s.release(batch)
		for _, f := range flushes {
			close(f)
		}
	}
}

func (s *Store) writeBatch(batch []*row) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO chunks(cx,cz,payload,checksum,last_modified) VALUES(?,?,?,?,?)
		ON CONFLICT(cx,cz) DO UPDATE SET payload=excluded.payload, checksum=excluded.checksum, last_modified=excluded.last_modified`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range batch {
		if _, err := stmt.Exec(r.cx, r.cz, r.payload, int64(r.checksum), r.lastModified); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// release drops written rows from the pending table unless a newer save replaced them.
func (s *Store) release(batch []*row) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for _, r := range batch {
		key := world.Key(int(r.cx), int(r.cz))
		if s.pending[key] == r {
			delete(s.pending, key)
		}
	}
}

// int64Checksum scans SQLite's signed INTEGER into an unsigned checksum.
type int64Checksum uint64

func (c *int64Checksum) Scan(src any) error {
	v, ok := src.(int64)
	if !ok {
		return fmt.Errorf("chunkdb: checksum column holds %T", src)
	}
	*c = int64Checksum(uint64(v))
	return nil
}
