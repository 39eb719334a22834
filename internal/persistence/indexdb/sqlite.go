package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"rtsgarrison.dev/internal/persistence/snapshot"
	"rtsgarrison.dev/internal/sim/catalogs"
	"rtsgarrison.dev/internal/sim/tuning"
	"rtsgarrison.dev/internal/sim/world"
)

// SQLiteIndex is a queryable read model fed asynchronously from the tick loop.
// The JSONL logs and snapshots stay the source of truth.
type SQLiteIndex struct {
	db  *sql.DB
	log zerolog.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Seed       int64
	Digest     string
	Objects    int
	Containers []containerRow
}

type containerRow struct {
	Owner     uint32
	Template  string
	Policy    string
	Occupants int
	Slotted   int
	Portable  uint32
}

func OpenSQLite(path string, log zerolog.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
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
		log: log,
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			events INTEGER NOT NULL,
			containers INTEGER NOT NULL,
			occupants INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			subject INTEGER NOT NULL,
			error TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS contain_events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			container INTEGER NOT NULL,
			occupant INTEGER NOT NULL,
			slot INTEGER NOT NULL,
			reason TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_contain_events_container_tick ON contain_events(container, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_contain_events_occupant_tick ON contain_events(occupant, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			digest TEXT NOT NULL,
			objects INTEGER NOT NULL,
			containers INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_containers (
			tick INTEGER NOT NULL,
			owner INTEGER NOT NULL,
			template TEXT NOT NULL,
			policy TEXT NOT NULL,
			occupants INTEGER NOT NULL,
			slotted INTEGER NOT NULL,
			portable INTEGER NOT NULL,
			PRIMARY KEY (tick, owner)
		);`,
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
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts requests discarded because the writer fell behind.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	templates := make(map[uint32]string, len(snap.Objects))
	for _, o := range snap.Objects {
		templates[o.ID] = o.Template
	}
	r := snapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		Seed:    snap.Seed,
		Digest:  snap.Header.Digest,
		Objects: len(snap.Objects),
	}
	for _, c := range snap.Containers {
		row := containerRow{
			Owner:     c.Owner,
			Template:  templates[c.Owner],
			Policy:    policyName(c.Policy),
			Occupants: len(c.Roster),
			Portable:  c.Portable,
		}
		if c.Garrison != nil {
			for _, sl := range c.Garrison.Slots {
				if sl.Occupant != 0 {
					row.Slotted++
				}
			}
		}
		if c.Station != nil {
			for _, id := range c.Station.Occupants {
				if id != 0 {
					row.Slotted++
				}
			}
		}
		r.Containers = append(r.Containers, row)
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r})
}

func policyName(p uint8) string {
	switch p {
	case 0:
		return "OPEN"
	case 1:
		return "GARRISON"
	case 2:
		return "PORTABLE"
	}
	return "UNKNOWN"
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	for name, digest := range cats.Digests() {
		b, err := os.ReadFile(filepath.Join(configDir, name))
		if err != nil {
			continue
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	{
		// Canonical container defs, sorted for stable diffs.
		names := make([]string, 0, len(cats.Containers.ByTemplate))
		for n := range cats.Containers.ByTemplate {
			names = append(names, n)
		}
		sort.Strings(names)
		defs := make([]any, 0, len(names))
		for _, n := range names {
			defs = append(defs, cats.Containers.ByTemplate[n])
		}
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "container_defs", digest: cats.Containers.Digest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,commands,events,containers,occupants,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,kind,subject,error,raw_json) VALUES(?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO contain_events(tick,seq,kind,container,occupant,slot,reason) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,digest,objects,containers) VALUES(?,?,?,?,?,?)`)
	insertSnapContainer, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshot_containers(tick,owner,template,policy,occupants,slotted,portable) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertEvent, insertSnapshot, insertSnapContainer} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn().Err(err).Msg("index begin failed")
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
			s.log.Warn().Err(err).Msg("index commit failed")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		if tx == nil {
			return
		}
		s.log.Warn().Err(err).Msg("index write failed; rolling back batch")
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback(err)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			b, _ := json.Marshal(t)
			if !exec(insertTick, int64(t.Tick), t.Digest, len(t.Commands), len(t.Events), t.Containers, t.Occupants, string(b)) {
				continue
			}
			for i, c := range t.Commands {
				raw, _ := json.Marshal(c)
				if !exec(insertCommand, int64(t.Tick), i, string(c.Cmd.Kind), int64(c.Cmd.Subject), c.Err, string(raw)) {
					break
				}
			}
			for i, e := range t.Events {
				if !exec(insertEvent, int64(t.Tick), i, string(e.Kind), int64(e.Container), int64(e.Occupant), e.Slot, e.Reason) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			if !exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Digest, sn.Objects, len(sn.Containers)) {
				continue
			}
			for _, c := range sn.Containers {
				if !exec(insertSnapContainer, int64(sn.Tick), int64(c.Owner), c.Template, c.Policy, c.Occupants, c.Slotted, int64(c.Portable)) {
					break
				}
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
