package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"archdrift/internal/graph"
	"archdrift/internal/ir"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database with the default cgo driver.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(DriverCGO, path)
}

// Open creates or opens a SQLite database using the named driver.
// Writes are serialised over a single connection; WAL lets readers proceed.
func Open(driver, path string) (*SQLiteStore, error) {
	switch driver {
	case "":
		driver = DriverCGO
	case DriverCGO, DriverPureGo:
	default:
		return nil, fmt.Errorf("unknown sqlite driver %q", driver)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, opErr("open", "", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, opErr("open", "", err)
	}

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, opErr("open", "", fmt.Errorf("%s: %w", pragma, err))
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, opErr("open", "", fmt.Errorf("failed to init schema: %w", err))
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ModuleID is the store key of a graph node within a project.
func ModuleID(projectID, nodeID string) string {
	return projectID + ":" + nodeID
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// upsert looks the key up and either inserts or updates the row.
func upsert(ctx context.Context, tx *sql.Tx, table, id string, insert string, insertArgs []any, update string, updateArgs []any) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, insert, insertArgs...)
	case err == nil:
		_, err = tx.ExecContext(ctx, update, updateArgs...)
	}
	return err
}

func (s *SQLiteStore) UpsertProject(ctx context.Context, p Project) error {
	if err := CheckProjectID(p.ID); err != nil {
		return err
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	now := formatTime(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("upsert project", p.ID, err)
	}
	defer tx.Rollback()

	err = upsert(ctx, tx, "projects", p.ID,
		`INSERT INTO projects (id, name, language, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		[]any{p.ID, p.Name, p.Language, now, now},
		`UPDATE projects SET name = ?, language = ?, updated_at = ? WHERE id = ?`,
		[]any{p.Name, p.Language, now, p.ID})
	if err != nil {
		return opErr("upsert project", p.ID, err)
	}
	return opErr("upsert project", p.ID, tx.Commit())
}

// ensureProject inserts a placeholder project row when none exists.
func (s *SQLiteStore) ensureProject(ctx context.Context, projectID, now string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, language, created_at, updated_at) VALUES (?, ?, '', ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`, projectID, projectID, now, now)
	return err
}

func (s *SQLiteStore) Ingest(ctx context.Context, projectID string, g *graph.DependencyGraph, files []*ir.ParsedFile, layerOf LayerFunc) error {
	if err := CheckProjectID(projectID); err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	now := formatTime(s.now())
	if err := s.ensureProject(ctx, projectID, now); err != nil {
		return opErr("ingest", projectID, err)
	}

	byNode := map[string][]*ir.ParsedFile{}
	for _, f := range files {
		if n, ok := g.NodeFor(f.Path); ok {
			byNode[n.ID] = append(byNode[n.ID], f)
		}
	}
	edgesBySource := map[string][]graph.DependencyEdge{}
	for _, e := range g.Edges {
		edgesBySource[e.Source] = append(edgesBySource[e.Source], e)
	}

	for _, id := range g.NodeIDs() {
		node := g.Nodes[id]
		layer := ""
		if layerOf != nil {
			layer = layerOf(node)
		}
		if err := s.ingestModule(ctx, projectID, node, layer, byNode[id], edgesBySource[id], now); err != nil {
			return opErr("ingest", projectID, fmt.Errorf("module %s: %w", id, err))
		}
	}
	return nil
}

func (s *SQLiteStore) ingestModule(ctx context.Context, projectID string, node *graph.Node, layer string, files []*ir.ParsedFile, edges []graph.DependencyEdge, now string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	moduleID := ModuleID(projectID, node.ID)
	var loc, comments, blank int
	for _, f := range files {
		loc += f.Module.LinesOfCode
		comments += f.Module.CommentLines
		blank += f.Module.BlankLines
	}

	err = upsert(ctx, tx, "modules", moduleID,
		`INSERT INTO modules (id, project_id, node_id, name, path, type, language, loc, comment_lines, blank_lines, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{moduleID, projectID, node.ID, node.Name, node.Path, layer, node.Language, loc, comments, blank, now},
		`UPDATE modules SET node_id = ?, name = ?, path = ?, type = ?, language = ?, loc = ?, comment_lines = ?, blank_lines = ?, updated_at = ?
		 WHERE id = ?`,
		[]any{node.ID, node.Name, node.Path, layer, node.Language, loc, comments, blank, now, moduleID})
	if err != nil {
		return fmt.Errorf("upsert module: %w", err)
	}

	var classIDs, funcIDs []string
	for _, f := range files {
		for _, c := range f.Module.Classes {
			id := moduleID + "#" + c.Name
			bases, _ := json.Marshal(c.BaseClasses)
			err := upsert(ctx, tx, "classes", id,
				`INSERT INTO classes (id, module_id, name, base_classes, line) VALUES (?, ?, ?, ?, ?)`,
				[]any{id, moduleID, c.Name, string(bases), c.Line},
				`UPDATE classes SET name = ?, base_classes = ?, line = ? WHERE id = ?`,
				[]any{c.Name, string(bases), c.Line, id})
			if err != nil {
				return fmt.Errorf("upsert class %s: %w", c.Name, err)
			}
			classIDs = append(classIDs, id)

			for _, m := range c.Methods {
				id, err := upsertFunction(ctx, tx, moduleID, c.Name+"."+m.Name, m)
				if err != nil {
					return err
				}
				funcIDs = append(funcIDs, id)
			}
		}
		for _, fn := range f.Module.Functions {
			id, err := upsertFunction(ctx, tx, moduleID, fn.Name, fn)
			if err != nil {
				return err
			}
			funcIDs = append(funcIDs, id)
		}
	}

	if err := prune(ctx, tx, "classes", moduleID, classIDs); err != nil {
		return err
	}
	if err := prune(ctx, tx, "functions", moduleID, funcIDs); err != nil {
		return err
	}
	if err := replaceFiles(ctx, tx, moduleID, node); err != nil {
		return err
	}
	if err := replaceRelations(ctx, tx, projectID, moduleID, edges); err != nil {
		return err
	}
	return tx.Commit()
}

// replaceFiles rewrites the source files backing a module. Go packages span
// several files; other modules have one.
func replaceFiles(ctx context.Context, tx *sql.Tx, moduleID string, node *graph.Node) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM module_files WHERE module_id = ?`, moduleID); err != nil {
		return fmt.Errorf("clear module_files: %w", err)
	}
	files := node.Files
	if len(files) == 0 && node.Path != "" {
		files = []string{node.Path}
	}
	for _, p := range files {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO module_files (module_id, path) VALUES (?, ?) ON CONFLICT(module_id, path) DO NOTHING
		`, moduleID, p); err != nil {
			return fmt.Errorf("insert module_files: %w", err)
		}
	}
	return nil
}

func upsertFunction(ctx context.Context, tx *sql.Tx, moduleID, qualified string, fn ir.FunctionNode) (string, error) {
	id := moduleID + "#" + qualified
	err := upsert(ctx, tx, "functions", id,
		`INSERT INTO functions (id, module_id, name, complexity, nesting_depth, is_async, line) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		[]any{id, moduleID, fn.Name, fn.Complexity, fn.NestingDepth, fn.IsAsync, fn.Line},
		`UPDATE functions SET name = ?, complexity = ?, nesting_depth = ?, is_async = ?, line = ? WHERE id = ?`,
		[]any{fn.Name, fn.Complexity, fn.NestingDepth, fn.IsAsync, fn.Line, id})
	if err != nil {
		return "", fmt.Errorf("upsert function %s: %w", qualified, err)
	}
	return id, nil
}

// prune removes a module's rows that the current run no longer reports.
func prune(ctx context.Context, tx *sql.Tx, table, moduleID string, keep []string) error {
	query := "DELETE FROM " + table + " WHERE module_id = ?"
	args := []any{moduleID}
	if len(keep) > 0 {
		query += " AND id NOT IN (" + strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",") + ")"
		for _, id := range keep {
			args = append(args, id)
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("prune %s: %w", table, err)
	}
	return nil
}

type dependsKey struct {
	target, kind, match string
}

type callKey struct {
	callee, name string
}

// replaceRelations rewrites the module's outgoing DEPENDS_ON and CALLS rows.
// Call edges collapse into one row per callee with a frequency count.
func replaceRelations(ctx context.Context, tx *sql.Tx, projectID, moduleID string, edges []graph.DependencyEdge) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM depends_on WHERE source_id = ?`, moduleID); err != nil {
		return fmt.Errorf("clear depends_on: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM calls WHERE caller_module_id = ?`, moduleID); err != nil {
		return fmt.Errorf("clear calls: %w", err)
	}

	depends := map[dependsKey]graph.DependencyEdge{}
	var dependsOrder []dependsKey
	freq := map[callKey]int{}
	var callOrder []callKey
	for _, e := range edges {
		target := ModuleID(projectID, e.Target)
		dk := dependsKey{target: target, kind: string(e.Type), match: e.Match}
		if _, ok := depends[dk]; !ok {
			dependsOrder = append(dependsOrder, dk)
		}
		depends[dk] = e
		if e.Type == graph.EdgeCall {
			ck := callKey{callee: target, name: e.Match}
			if _, ok := freq[ck]; !ok {
				callOrder = append(callOrder, ck)
			}
			freq[ck]++
		}
	}

	for _, k := range dependsOrder {
		e := depends[k]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO depends_on (source_id, target_id, kind, match, weight, candidates) VALUES (?, ?, ?, ?, ?, ?)
		`, moduleID, k.target, k.kind, k.match, e.Weight, e.Candidates); err != nil {
			return fmt.Errorf("insert depends_on: %w", err)
		}
	}
	sort.SliceStable(callOrder, func(i, j int) bool {
		if callOrder[i].callee != callOrder[j].callee {
			return callOrder[i].callee < callOrder[j].callee
		}
		return callOrder[i].name < callOrder[j].name
	})
	for _, k := range callOrder {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO calls (caller_module_id, callee_module_id, callee_name, frequency) VALUES (?, ?, ?, ?)
		`, moduleID, k.callee, k.name, freq[k]); err != nil {
			return fmt.Errorf("insert calls: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) RemoveModules(ctx context.Context, projectID string, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	if err := CheckProjectID(projectID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("remove modules", projectID, err)
	}
	defer tx.Rollback()

	for _, nodeID := range nodeIDs {
		id := ModuleID(projectID, nodeID)
		for _, q := range []string{
			`DELETE FROM classes WHERE module_id = ?`,
			`DELETE FROM functions WHERE module_id = ?`,
			`DELETE FROM module_files WHERE module_id = ?`,
			`DELETE FROM depends_on WHERE source_id = ?1 OR target_id = ?1`,
			`DELETE FROM calls WHERE caller_module_id = ?1 OR callee_module_id = ?1`,
			`DELETE FROM modules WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return opErr("remove modules", projectID, fmt.Errorf("module %s: %w", nodeID, err))
			}
		}
	}
	return opErr("remove modules", projectID, tx.Commit())
}

func (s *SQLiteStore) RecordViolations(ctx context.Context, projectID string, violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("record violations", projectID, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO violations (id, project_id, source_id, target_id, type, severity, description, rule_id, file_path, line, suggested_fix, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return opErr("record violations", projectID, err)
	}
	defer stmt.Close()

	now := s.now()
	for _, v := range violations {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.DetectedAt.IsZero() {
			v.DetectedAt = now
		}
		if _, err := stmt.ExecContext(ctx, v.ID, projectID, v.SourceID, v.TargetID, v.Type, v.Severity,
			v.Description, v.RuleID, v.FilePath, v.Line, v.SuggestedFix, formatTime(v.DetectedAt)); err != nil {
			return opErr("record violations", projectID, err)
		}
	}
	return opErr("record violations", projectID, tx.Commit())
}
