package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbQuery builds the SQL for one db subcommand.
func dbQuery(q string, tick uint64, object uint32, limit int) (string, []any, error) {
	if limit <= 0 {
		limit = 20
	}
	switch q {
	case "snapshots":
		return `SELECT tick,path,seed,digest,objects,containers FROM snapshots ORDER BY tick DESC LIMIT ?`, []any{limit}, nil
	case "containers":
		return `SELECT tick,owner,template,policy,occupants,slotted,portable FROM snapshot_containers WHERE tick=? ORDER BY owner`, []any{tick}, nil
	case "ticks":
		return `SELECT tick,digest,commands,events,containers,occupants FROM ticks ORDER BY tick DESC LIMIT ?`, []any{limit}, nil
	case "rejects":
		return `SELECT tick,seq,kind,subject,error FROM commands WHERE error IS NOT NULL AND error != '' ORDER BY tick DESC, seq LIMIT ?`, []any{limit}, nil
	case "events":
		if object != 0 {
			return `SELECT tick,seq,kind,container,occupant,slot,reason FROM contain_events WHERE container=? OR occupant=? ORDER BY tick DESC, seq LIMIT ?`, []any{object, object, limit}, nil
		}
		return `SELECT tick,seq,kind,container,occupant,slot,reason FROM contain_events ORDER BY tick DESC, seq LIMIT ?`, []any{limit}, nil
	}
	return "", nil, fmt.Errorf("unknown query %q (snapshots|containers|ticks|rejects|events)", q)
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "snapshot tick for containers (optional; defaults to latest)")
	object := fs.Uint("object", 0, "container or occupant id filter (events)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if q == "containers" && *tick == 0 {
		lt, err := latestSnapshotTick(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest tick:", err)
			os.Exit(1)
		}
		if lt == 0 {
			fmt.Fprintln(os.Stderr, "no snapshots found")
			os.Exit(2)
		}
		*tick = lt
	}

	query, qargs, err := dbQuery(q, *tick, uint32(*object), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	rows, err := queryRows(db, query, qargs...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

// queryRows returns every row keyed by column name.
func queryRows(db *sql.DB, query string, args ...any) ([]map[string]any, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				m[c] = string(b)
				continue
			}
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func latestSnapshotTick(db *sql.DB) (uint64, error) {
	var tick sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(tick) FROM snapshots`).Scan(&tick); err != nil {
		return 0, err
	}
	if !tick.Valid {
		return 0, nil
	}
	return uint64(tick.Int64), nil
}
