// Package store persists analysis snapshots in sqlite so a restart can serve
// queries without re-extracting the project.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeintel/internal/engine/changes"
	"codeintel/internal/engine/complexity"
	"codeintel/internal/engine/embedding"
	"codeintel/internal/engine/facts"
	"codeintel/internal/engine/graph"
	"codeintel/internal/engine/patterns"
	"codeintel/internal/engine/semantic"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5

	DefaultBusyTimeout = 2 * time.Second
	DefaultRetain      = 5
)

const (
	kindFile         = "file"
	kindNode         = "node"
	kindEdge         = "edge"
	kindComplexity   = "complexity"
	kindPattern      = "pattern"
	kindConcept      = "concept"
	kindRelationship = "relationship"
	kindEmbedding    = "embedding"
	kindAnalysis     = "analysis"
)

// Snapshot is the persisted form of one published analysis state. Every
// entity is stored under its stable id.
type Snapshot struct {
	ID        string    `json:"id"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	Files         []facts.FileFacts           `json:"files"`
	Nodes         []graph.Node                `json:"nodes"`
	Edges         []graph.Edge                `json:"edges"`
	Complexity    []complexity.FileComplexity `json:"complexity"`
	Patterns      []patterns.DetectedPattern  `json:"patterns"`
	Concepts      []semantic.Concept          `json:"concepts"`
	Relationships []semantic.Relationship     `json:"relationships"`
	Index         []embedding.IndexedConcept  `json:"index"`
	Analyses      []changes.ChangeAnalysis    `json:"analyses"`
}

type Options struct {
	BusyTimeout time.Duration
	// Retain is how many snapshots survive a save; older ones are deleted.
	Retain   int
	Compress bool
}

type Store struct {
	path   string
	db     *sql.DB
	codec  *codec
	retain int
	mu     sync.Mutex
}

func Open(path string, opts Options) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("store path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %q: %w", dir, err)
		}
	}

	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}
	if opts.Retain <= 0 {
		opts.Retain = DefaultRetain
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	c, err := newCodec(opts.Compress)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{path: cleanPath, db: db, codec: c, retain: opts.Retain}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.codec.close()
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

type entityRow struct {
	kind  string
	id    string
	value any
}

func edgeKey(source, target, typ string) string {
	return source + "|" + target + "|" + typ
}

func (snap Snapshot) rows() []entityRow {
	rows := make([]entityRow, 0, len(snap.Files)+len(snap.Nodes)+len(snap.Edges))
	for _, f := range snap.Files {
		rows = append(rows, entityRow{kindFile, f.Path, f})
	}
	for _, n := range snap.Nodes {
		rows = append(rows, entityRow{kindNode, n.ID, n})
	}
	for _, e := range snap.Edges {
		rows = append(rows, entityRow{kindEdge, edgeKey(e.Source, e.Target, string(e.Type)), e})
	}
	for _, fc := range snap.Complexity {
		rows = append(rows, entityRow{kindComplexity, fc.Path, fc})
	}
	for _, p := range snap.Patterns {
		rows = append(rows, entityRow{kindPattern, p.ID, p})
	}
	for _, c := range snap.Concepts {
		rows = append(rows, entityRow{kindConcept, c.ID, c})
	}
	for _, r := range snap.Relationships {
		rows = append(rows, entityRow{kindRelationship, edgeKey(r.Source, r.Target, string(r.Type)), r})
	}
	for _, e := range snap.Index {
		rows = append(rows, entityRow{kindEmbedding, e.ID, e})
	}
	for _, a := range snap.Analyses {
		rows = append(rows, entityRow{kindAnalysis, a.Path, a})
	}
	return rows
}

// SaveSnapshot writes snap in one transaction and then applies retention.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(snap.ID) == "" {
		return fmt.Errorf("snapshot id must not be empty")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	rows := snap.rows()
	type encoded struct {
		entityRow
		payload    []byte
		compressed bool
	}
	payloads := make([]encoded, 0, len(rows))
	for _, r := range rows {
		data, compressed, err := s.codec.encode(r.value)
		if err != nil {
			return fmt.Errorf("encode %s %q: %w", r.kind, r.id, err)
		}
		payloads = append(payloads, encoded{r, data, compressed})
	}

	return s.withRetry(ctx, "save snapshot", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, snap.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO snapshots (id, version, created_at_utc, file_count, node_count, edge_count, pattern_count, concept_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.Version, snap.CreatedAt.UTC().Format(time.RFC3339Nano),
			len(snap.Files), len(snap.Nodes), len(snap.Edges), len(snap.Patterns), len(snap.Concepts),
		); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO entities (snapshot_id, kind, entity_id, compressed, payload) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(snapshot_id, kind, entity_id) DO UPDATE SET compressed=excluded.compressed, payload=excluded.payload`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range payloads {
			if _, err := stmt.ExecContext(ctx, snap.ID, p.kind, p.id, boolInt(p.compressed), p.payload); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
DELETE FROM snapshots WHERE id NOT IN (
  SELECT id FROM snapshots ORDER BY version DESC, created_at_utc DESC LIMIT ?
)`, s.retain); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// LoadLatest returns the snapshot with the highest version. ok is false when
// the store is empty.
func (s *Store) LoadLatest(ctx context.Context) (snap Snapshot, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var createdRaw string
	err = s.withRetry(ctx, "load latest snapshot", func() error {
		return s.db.QueryRowContext(ctx, `
SELECT id, version, created_at_utc FROM snapshots ORDER BY version DESC, created_at_utc DESC LIMIT 1`,
		).Scan(&snap.ID, &snap.Version, &createdRaw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	created, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("parse snapshot timestamp %q: %w", createdRaw, err)
	}
	snap.CreatedAt = created.UTC()

	var rows *sql.Rows
	err = s.withRetry(ctx, "load snapshot entities", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, `
SELECT kind, entity_id, compressed, payload FROM entities WHERE snapshot_id = ? ORDER BY kind, entity_id`, snap.ID)
		return qErr
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind, id   string
			compressed int
			payload    []byte
		)
		if err := rows.Scan(&kind, &id, &compressed, &payload); err != nil {
			return Snapshot{}, false, fmt.Errorf("scan entity row: %w", err)
		}
		if err := s.decodeInto(&snap, kind, payload, compressed != 0); err != nil {
			return Snapshot{}, false, fmt.Errorf("decode %s %q: %w", kind, id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, false, fmt.Errorf("iterate entity rows: %w", err)
	}
	return snap, true, nil
}

func (s *Store) decodeInto(snap *Snapshot, kind string, payload []byte, compressed bool) error {
	switch kind {
	case kindFile:
		var v facts.FileFacts
		if err := s.codec.decode(payload, compressed, &v); err != nil {
			return err
		}
		snap.Files = append(snap.Files, v)
	case kindNode:
		var v graph.Node
		if err := s.codec.decode(payload, compressed, &v); err != nil {
			return err
		}
		snap.Nodes = append(snap.Nodes, v)
	case kindEdge:
		var v graph.Edge
		if err := s.codec.decode(payload, compressed, &v); err != nil {
			return err
		}
		snap.Edges = append(snap.Edges, v)
	case kindComplexity:
		var v complexity.FileComplexity
		if err := s.codec.decode(payload, compressed, &v); err != nil {
			return err
		}
		snap.Complexity = append(snap.Complexity, v)
	case kindPattern:
		var v patterns.DetectedPattern
		if err := s.codec.decode(payload, compressed, &v); err != nil {
			return err
		}
		snap.Patterns = append(snap.Patterns, v)
	case kindConcept:
		var v semantic.Concept
		if err := s.codec.decode(payload, compressed, &v); err != nil {
			return err
		}
		snap.Concepts = append(snap.Concepts, v)
	case kindRelationship:
		var v semantic.Relationship
		if err := s.codec.decode(payload, compressed, &v); err != nil {
			return err
		}
		snap.Relationships = append(snap.Relationships, v)
	case kindEmbedding:
		var v embedding.IndexedConcept
		if err := s.codec.decode(payload, compressed, &v); err != nil {
			return err
		}
		snap.Index = append(snap.Index, v)
	case kindAnalysis:
		var v changes.ChangeAnalysis
		if err := s.codec.decode(payload, compressed, &v); err != nil {
			return err
		}
		snap.Analyses = append(snap.Analyses, v)
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	return nil
}

// SnapshotCount returns how many snapshots are currently retained.
func (s *Store) SnapshotCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.withRetry(ctx, "count snapshots", func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	})
	return n, err
}

// RecordAnalyses appends committed change analyses to the analysis log.
func (s *Store) RecordAnalyses(ctx context.Context, list []changes.ChangeAnalysis) error {
	if len(list) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withRetry(ctx, "record change analyses", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO change_analyses
  (id, path, change_type, scope, impact_score, requires_relearning, analyzed_at_utc, compressed, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range list {
			payload, compressed, err := s.codec.encode(a)
			if err != nil {
				return fmt.Errorf("encode analysis %q: %w", a.ID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				a.ID, a.Path, string(a.Type), string(a.Scope), a.ImpactScore, boolInt(a.RequiresRelearning),
				a.AnalyzedAt.UTC().Format(time.RFC3339Nano), boolInt(compressed), payload,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// AnalysisHistory returns up to limit logged analyses of path, newest first.
func (s *Store) AnalysisHistory(ctx context.Context, path string, limit int) ([]changes.ChangeAnalysis, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry(ctx, "load analysis history", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, `
SELECT compressed, payload FROM change_analyses WHERE path = ?
ORDER BY analyzed_at_utc DESC, id ASC LIMIT ?`, path, limit)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []changes.ChangeAnalysis
	for rows.Next() {
		var (
			compressed int
			payload    []byte
			a          changes.ChangeAnalysis
		)
		if err := rows.Scan(&compressed, &payload); err != nil {
			return nil, fmt.Errorf("scan analysis row: %w", err)
		}
		if err := s.codec.decode(payload, compressed != 0, &a); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis rows: %w", err)
	}
	return out, nil
}

func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(time.Duration(attempt*25) * time.Millisecond):
		}
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
