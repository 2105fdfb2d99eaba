// Package snapshot exports a graph, its vulnerabilities and the computed risk
// table to a SQLite file, and reads graphs back from such files.
package snapshot

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abramin/callrisk/internal/analysis"
	"github.com/abramin/callrisk/internal/graph"
)

// Snapshot handles persistence of a graph to SQLite.
type Snapshot struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens a snapshot database at dbPath.
func Open(dbPath string) (*Snapshot, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Snapshot{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Snapshot) Close() error {
	return s.db.Close()
}

// DBPath returns the path to the database file.
func (s *Snapshot) DBPath() string {
	return s.dbPath
}

// DB returns the underlying database for ad hoc queries.
func (s *Snapshot) DB() *sql.DB {
	return s.db
}

// Write replaces the snapshot contents with st, its vulnerabilities and risks.
// Risks referencing vulnerabilities not in st are rejected by the schema.
func (s *Snapshot) Write(st *graph.Store, risks []analysis.Risk) error {
	b, err := s.BeginBatch()
	if err != nil {
		return fmt.Errorf("beginning batch: %w", err)
	}
	defer b.Rollback()

	if err := b.clear(); err != nil {
		return err
	}
	for _, f := range st.Functions() {
		if err := b.InsertFunction(f); err != nil {
			return fmt.Errorf("inserting function %s: %w", f.ID, err)
		}
	}
	for _, e := range st.Edges() {
		if err := b.InsertEdge(e); err != nil {
			return fmt.Errorf("inserting edge %s -> %s: %w", e.From, e.To, err)
		}
	}
	for _, v := range st.Vulnerabilities() {
		if err := b.InsertVulnerability(v); err != nil {
			return fmt.Errorf("inserting vulnerability %s: %w", v.ID, err)
		}
	}
	for _, r := range risks {
		if err := b.InsertRisk(r); err != nil {
			return fmt.Errorf("inserting risk %s: %w", r.Vulnerability.ID, err)
		}
	}

	meta := map[string]string{
		"revision":    st.Revision(),
		"exported_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if err := b.SetMetadata(k, v); err != nil {
			return fmt.Errorf("setting metadata %s: %w", k, err)
		}
	}
	return b.Commit()
}

// ReadGraph returns the stored functions and edges in insertion order.
func (s *Snapshot) ReadGraph() (graph.Graph, error) {
	var g graph.Graph

	rows, err := s.db.Query("SELECT id, name, is_entrypoint FROM functions ORDER BY rowid")
	if err != nil {
		return g, fmt.Errorf("querying functions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f graph.Function
		if err := rows.Scan(&f.ID, &f.Name, &f.IsEntrypoint); err != nil {
			return g, fmt.Errorf("scanning function: %w", err)
		}
		g.Functions = append(g.Functions, f)
	}
	if err := rows.Err(); err != nil {
		return g, fmt.Errorf("reading functions: %w", err)
	}

	edges, err := s.db.Query("SELECT caller_id, callee_id FROM call_edges ORDER BY rowid")
	if err != nil {
		return g, fmt.Errorf("querying call edges: %w", err)
	}
	defer edges.Close()
	for edges.Next() {
		var e graph.Edge
		if err := edges.Scan(&e.From, &e.To); err != nil {
			return g, fmt.Errorf("scanning call edge: %w", err)
		}
		g.Edges = append(g.Edges, e)
	}
	if err := edges.Err(); err != nil {
		return g, fmt.Errorf("reading call edges: %w", err)
	}
	return g, nil
}

// ReadVulnerabilities returns the stored vulnerabilities in insertion order.
func (s *Snapshot) ReadVulnerabilities() ([]graph.Vulnerability, error) {
	rows, err := s.db.Query(`
		SELECT id, func_id, severity, COALESCE(cwe_id, ''), COALESCE(package_name, ''), introduced_by_ai
		FROM vulnerabilities ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("querying vulnerabilities: %w", err)
	}
	defer rows.Close()

	var vulns []graph.Vulnerability
	for rows.Next() {
		var v graph.Vulnerability
		if err := rows.Scan(&v.ID, &v.FuncID, &v.Severity, &v.CWEID, &v.PackageName, &v.IntroducedByAI); err != nil {
			return nil, fmt.Errorf("scanning vulnerability: %w", err)
		}
		vulns = append(vulns, v)
	}
	return vulns, rows.Err()
}

// GetMetadata retrieves a value from the metadata table.
func (s *Snapshot) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	return value, err
}

// Stats holds row counts of a snapshot.
type Stats struct {
	Revision           string    `json:"revision"`
	FunctionCount      int       `json:"function_count"`
	CallEdgeCount      int       `json:"call_edge_count"`
	VulnerabilityCount int       `json:"vulnerability_count"`
	RiskCount          int       `json:"risk_count"`
	ExportedAt         time.Time `json:"exported_at"`
}

// GetStats returns statistics about the snapshot.
func (s *Snapshot) GetStats() (*Stats, error) {
	stats := &Stats{}

	rows := []struct {
		table string
		dest  *int
	}{
		{"functions", &stats.FunctionCount},
		{"call_edges", &stats.CallEdgeCount},
		{"vulnerabilities", &stats.VulnerabilityCount},
		{"risks", &stats.RiskCount},
	}
	for _, r := range rows {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + r.table).Scan(r.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", r.table, err)
		}
	}

	stats.Revision, _ = s.GetMetadata("revision")
	if ts, err := s.GetMetadata("exported_at"); err == nil {
		stats.ExportedAt, _ = time.Parse(time.RFC3339, ts)
	}
	return stats, nil
}

// BeginBatch starts a transaction for batch inserts.
// Call Commit() when done, or Rollback() on error.
func (s *Snapshot) BeginBatch() (*BatchTx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	return &BatchTx{tx: tx}, nil
}

// BatchTx wraps a transaction for batch operations.
type BatchTx struct {
	tx *sql.Tx
}

// Commit commits the batch transaction.
func (b *BatchTx) Commit() error {
	return b.tx.Commit()
}

// Rollback rolls back the batch transaction. It is a no-op after Commit.
func (b *BatchTx) Rollback() error {
	return b.tx.Rollback()
}

func (b *BatchTx) clear() error {
	tables := []string{"risks", "vulnerabilities", "call_edges", "functions", "metadata"}
	for _, table := range tables {
		if _, err := b.tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing table %s: %w", table, err)
		}
	}
	return nil
}

// InsertFunction inserts a function within the batch.
func (b *BatchTx) InsertFunction(f graph.Function) error {
	_, err := b.tx.Exec(`
		INSERT INTO functions (id, name, is_entrypoint)
		VALUES (?, ?, ?)
	`, string(f.ID), f.Name, f.IsEntrypoint)
	return err
}

// InsertEdge inserts a call edge within the batch.
func (b *BatchTx) InsertEdge(e graph.Edge) error {
	_, err := b.tx.Exec(`
		INSERT INTO call_edges (caller_id, callee_id)
		VALUES (?, ?)
	`, string(e.From), string(e.To))
	return err
}

// InsertVulnerability inserts a vulnerability within the batch.
func (b *BatchTx) InsertVulnerability(v graph.Vulnerability) error {
	_, err := b.tx.Exec(`
		INSERT INTO vulnerabilities (id, func_id, severity, cwe_id, package_name, introduced_by_ai)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.ID, string(v.FuncID), string(v.Severity), nullable(v.CWEID), nullable(v.PackageName), v.IntroducedByAI)
	return err
}

// InsertRisk inserts a computed risk within the batch.
func (b *BatchTx) InsertRisk(r analysis.Risk) error {
	v := r.Vulnerability
	_, err := b.tx.Exec(`
		INSERT INTO risks (vulnerability_id, func_id, function_name, severity, reachable, score,
			base_severity, reachability_bonus, package_risk, ai_risk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vulnerability_id) DO UPDATE SET
			reachable = excluded.reachable,
			score = excluded.score
	`, v.ID, string(v.FuncID), r.FunctionName, string(v.Severity), r.Reachable, r.Score,
		r.Breakdown.BaseSeverity, r.Breakdown.ReachabilityBonus, r.Breakdown.PackageRisk, r.Breakdown.AIRisk)
	return err
}

// SetMetadata stores a key-value pair within the batch.
func (b *BatchTx) SetMetadata(key, value string) error {
	_, err := b.tx.Exec(`
		INSERT INTO metadata (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
