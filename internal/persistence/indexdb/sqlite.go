package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"avatarsim.ai/internal/persistence/snapshot"
	"avatarsim.ai/internal/sim/world"
)

const schemaVersion = "1"

// SQLiteIndex is a secondary, queryable history of the world: every event
// log entry, every conversation with its messages, and every snapshot save.
// It is fed from store commits and writes on its own goroutine; the event
// archive files remain the source of truth when it drops work.
type SQLiteIndex struct {
	db  *sql.DB
	log *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once
	mu   sync.RWMutex

	closed atomic.Bool

	dropEvent atomic.Uint64
	dropConv  atomic.Uint64
	dropSave  atomic.Uint64
}

type reqKind int

const (
	reqEvents reqKind = iota + 1
	reqConversation
	reqSave
	reqBarrier
)

type req struct {
	kind reqKind

	events []world.LogEntry
	conv   world.Conversation
	save   saveRow
	done   chan struct{}
}

type saveRow struct {
	Seq           uint64
	Path          string
	SavedAt       time.Time
	Avatars       int
	Objects       int
	Obstacles     int
	Conversations int
}

// Stats describes the writer queue.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropEventTotal        uint64
	DropConversationTotal uint64
	DropSaveTotal         uint64
}

func OpenSQLite(path string, logger *zap.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = zap.NewNop()
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

	s := &SQLiteIndex{
		db:  db,
		log: logger.Named("indexdb"),
		ch:  make(chan req, 65536),
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
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY,
			id TEXT NOT NULL,
			at TEXT NOT NULL,
			level TEXT NOT NULL,
			avatar_id TEXT,
			message TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_avatar_seq ON events(avatar_id, seq);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			avatar_a TEXT NOT NULL,
			avatar_b TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_a ON conversations(avatar_a);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_b ON conversations(avatar_b);`,
		`CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT NOT NULL,
			at_ns INTEGER NOT NULL,
			avatar_id TEXT NOT NULL,
			text TEXT NOT NULL,
			PRIMARY KEY (conversation_id, at_ns, avatar_id)
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			avatars INTEGER NOT NULL,
			objects INTEGER NOT NULL,
			obstacles INTEGER NOT NULL,
			conversations INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:            len(s.ch),
		QueueCapacity:         cap(s.ch),
		DropEventTotal:        s.dropEvent.Load(),
		DropConversationTotal: s.dropConv.Load(),
		DropSaveTotal:         s.dropSave.Load(),
	}
}

// enqueue never blocks; it reports false when the request was dropped.
func (s *SQLiteIndex) enqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// Commit records new event log entries and conversation changes. It runs
// under the store lock, so it only diffs and enqueues.
func (s *SQLiteIndex) Commit(prev, next *world.World) {
	if s == nil || s.closed.Load() {
		return
	}
	var after uint64
	if prev != nil {
		after = prev.LogSeq
	}
	if entries := next.LogAfter(after); len(entries) > 0 {
		batch := append([]world.LogEntry(nil), entries...)
		if !s.enqueue(req{kind: reqEvents, events: batch}) {
			s.dropEvent.Add(uint64(len(batch)))
		}
	}
	for _, c := range changedConversations(prev, next) {
		if !s.enqueue(req{kind: reqConversation, conv: c}) {
			s.dropConv.Add(1)
		}
	}
}

func changedConversations(prev, next *world.World) []world.Conversation {
	type mark struct {
		n     int
		last  time.Time
		ended bool
	}
	seen := map[string]mark{}
	if prev != nil {
		for _, c := range prev.Conversations {
			m := mark{n: len(c.Messages), ended: !c.Active()}
			if m.n > 0 {
				m.last = c.Messages[m.n-1].Timestamp
			}
			seen[c.ID] = m
		}
	}
	var out []world.Conversation
	for _, c := range next.Conversations {
		m, ok := seen[c.ID]
		n := len(c.Messages)
		switch {
		case !ok:
		case m.ended != !c.Active():
		case m.n != n:
		case n > 0 && !m.last.Equal(c.Messages[n-1].Timestamp):
		default:
			continue
		}
		c.Messages = append([]world.Message(nil), c.Messages...)
		out = append(out, c)
	}
	return out
}

// RecordSave implements snapshot.Recorder.
func (s *SQLiteIndex) RecordSave(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := saveRow{
		Seq:           snap.Header.Seq,
		Path:          path,
		SavedAt:       snap.Header.SavedAt,
		Avatars:       len(snap.Avatars),
		Objects:       len(snap.Objects),
		Obstacles:     len(snap.Obstacles),
		Conversations: len(snap.Conversations),
	}
	if !s.enqueue(req{kind: reqSave, save: r}) {
		s.dropSave.Add(1)
	}
}

// Sync blocks until everything queued before the call is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqBarrier, done: done}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(seq,id,at,level,avatar_id,message) VALUES(?,?,?,?,?,?)`)
	upsertConv, _ := s.db.Prepare(`INSERT INTO conversations(id,avatar_a,avatar_b,started_at,ended_at) VALUES(?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET ended_at=excluded.ended_at`)
	insertMsg, _ := s.db.Prepare(`INSERT OR IGNORE INTO messages(conversation_id,at_ns,avatar_id,text) VALUES(?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(seq,path,saved_at,avatars,objects,obstacles,conversations) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, upsertConv, insertMsg, insertSave} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn("begin tx", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Warn("commit", zap.Error(err))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.Warn("index write failed", zap.Error(err))
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqBarrier {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvents:
			for _, e := range r.events {
				if _, err := tx.Stmt(insertEvent).Exec(int64(e.Seq), e.ID, formatTime(e.Time), string(e.Level), nullable(e.AvatarID), e.Message); err != nil {
					rollback(err)
					break
				}
				opCount++
			}

		case reqConversation:
			c := r.conv
			var ended any
			if c.EndedAt != nil {
				ended = formatTime(*c.EndedAt)
			}
			if _, err := tx.Stmt(upsertConv).Exec(c.ID, c.Participants[0], c.Participants[1], formatTime(c.StartedAt), ended); err != nil {
				rollback(err)
				continue
			}
			opCount++
			for _, m := range c.Messages {
				if _, err := tx.Stmt(insertMsg).Exec(c.ID, m.Timestamp.UnixNano(), m.AvatarID, m.Text); err != nil {
					rollback(err)
					break
				}
				opCount++
			}

		case reqSave:
			sv := r.save
			if _, err := tx.Stmt(insertSave).Exec(int64(sv.Seq), sv.Path, formatTime(sv.SavedAt), sv.Avatars, sv.Objects, sv.Obstacles, sv.Conversations); err != nil {
				rollback(err)
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
