package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"archdrift/internal/graph"
)

// severityOrder ranks severities for ORDER BY; unknown values sort last.
const severityOrder = `CASE severity
	WHEN 'critical' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 1
	WHEN 'info' THEN 0
	ELSE -1 END`

func (s *SQLiteStore) KnownSymbols(ctx context.Context, projectID string) (graph.KnownSymbols, error) {
	known := graph.KnownSymbols{
		Modules:   map[string][]string{},
		Functions: map[string][]string{},
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, node_id FROM modules WHERE project_id = ? ORDER BY node_id
	`, projectID)
	if err != nil {
		return known, opErr("known symbols", projectID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, nodeID string
		if err := rows.Scan(&name, &nodeID); err != nil {
			return known, opErr("known symbols", projectID, err)
		}
		known.Modules[name] = append(known.Modules[name], nodeID)
	}
	if err := rows.Err(); err != nil {
		return known, opErr("known symbols", projectID, err)
	}

	fnRows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT f.name, m.node_id
		FROM functions f JOIN modules m ON m.id = f.module_id
		WHERE m.project_id = ?
		ORDER BY f.name, m.node_id
	`, projectID)
	if err != nil {
		return known, opErr("known symbols", projectID, err)
	}
	defer fnRows.Close()
	for fnRows.Next() {
		var name, nodeID string
		if err := fnRows.Scan(&name, &nodeID); err != nil {
			return known, opErr("known symbols", projectID, err)
		}
		known.Functions[name] = append(known.Functions[name], nodeID)
	}
	return known, opErr("known symbols", projectID, fnRows.Err())
}

// DependencyEdges returns the persisted DEPENDS_ON relation between modules of
// the project, keyed by graph node id.
func (s *SQLiteStore) DependencyEdges(ctx context.Context, projectID string) ([]graph.DependencyEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src.node_id, dst.node_id, d.kind, d.weight, d.match, d.candidates
		FROM depends_on d
		JOIN modules src ON src.id = d.source_id
		JOIN modules dst ON dst.id = d.target_id
		WHERE src.project_id = ? AND dst.project_id = ?
		ORDER BY src.node_id, dst.node_id, d.kind, d.match
	`, projectID, projectID)
	if err != nil {
		return nil, opErr("dependency edges", projectID, err)
	}
	defer rows.Close()

	edges := []graph.DependencyEdge{}
	for rows.Next() {
		var e graph.DependencyEdge
		var kind string
		if err := rows.Scan(&e.Source, &e.Target, &kind, &e.Weight, &e.Match, &e.Candidates); err != nil {
			return nil, opErr("dependency edges", projectID, err)
		}
		e.Type = graph.EdgeType(kind)
		edges = append(edges, e)
	}
	return edges, opErr("dependency edges", projectID, rows.Err())
}

// LoadGraph rebuilds the module nodes and edges of a project from the store.
func (s *SQLiteStore) LoadGraph(ctx context.Context, projectID string) (*graph.DependencyGraph, error) {
	g := graph.NewGraph()

	files, err := s.moduleFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, name, path, language FROM modules WHERE project_id = ? ORDER BY node_id
	`, projectID)
	if err != nil {
		return nil, opErr("load graph", projectID, err)
	}
	defer rows.Close()
	for rows.Next() {
		n := &graph.Node{}
		if err := rows.Scan(&n.ID, &n.Name, &n.Path, &n.Language); err != nil {
			return nil, opErr("load graph", projectID, err)
		}
		n.Files = files[n.ID]
		if len(n.Files) == 0 {
			n.Files = []string{n.Path}
		}
		g.AddNode(n)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("load graph", projectID, err)
	}

	edges, err := s.DependencyEdges(ctx, projectID)
	if err != nil {
		return nil, err
	}
	g.Edges = edges
	return g, nil
}

// moduleFiles maps node ids to their source files in path order.
func (s *SQLiteStore) moduleFiles(ctx context.Context, projectID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.node_id, f.path
		FROM module_files f
		JOIN modules m ON m.id = f.module_id
		WHERE m.project_id = ?
		ORDER BY m.node_id, f.path
	`, projectID)
	if err != nil {
		return nil, opErr("load graph", projectID, err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var nodeID, p string
		if err := rows.Scan(&nodeID, &p); err != nil {
			return nil, opErr("load graph", projectID, err)
		}
		out[nodeID] = append(out[nodeID], p)
	}
	return out, opErr("load graph", projectID, rows.Err())
}

// CouplingRows counts distinct dependencies in both directions for every module.
// Self dependencies are ignored.
func (s *SQLiteStore) CouplingRows(ctx context.Context, projectID string) ([]CouplingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.node_id,
			(SELECT COUNT(DISTINCT d.target_id) FROM depends_on d
			 JOIN modules t ON t.id = d.target_id
			 WHERE d.source_id = m.id AND d.target_id <> m.id AND t.project_id = m.project_id) AS ce,
			(SELECT COUNT(DISTINCT d.source_id) FROM depends_on d
			 WHERE d.target_id = m.id AND d.source_id <> m.id) AS ca
		FROM modules m
		WHERE m.project_id = ?
		ORDER BY m.node_id
	`, projectID)
	if err != nil {
		return nil, opErr("coupling", projectID, err)
	}
	defer rows.Close()

	out := []CouplingRow{}
	for rows.Next() {
		var r CouplingRow
		if err := rows.Scan(&r.Module, &r.Ce, &r.Ca); err != nil {
			return nil, opErr("coupling", projectID, err)
		}
		out = append(out, r)
	}
	return out, opErr("coupling", projectID, rows.Err())
}

// RiskRows returns called functions with complexity above threshold together
// with the total frequency of calls matching them, highest complexity × frequency
// first. Functions nobody calls carry no risk and are left out.
func (s *SQLiteStore) RiskRows(ctx context.Context, projectID string, threshold, limit int) ([]RiskRow, error) {
	if limit <= 0 {
		return []RiskRow{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.name, m.node_id, m.path, f.complexity, COALESCE(SUM(c.frequency), 0) AS freq
		FROM functions f
		JOIN modules m ON m.id = f.module_id
		LEFT JOIN calls c ON c.callee_module_id = f.module_id AND c.callee_name = f.name
		WHERE m.project_id = ? AND f.complexity > ?
		GROUP BY f.id, f.name, m.node_id, m.path, f.complexity
		HAVING freq > 0
		ORDER BY f.complexity * COALESCE(SUM(c.frequency), 0) DESC, f.complexity DESC, m.node_id, f.name
		LIMIT ?
	`, projectID, threshold, limit)
	if err != nil {
		return nil, opErr("risk", projectID, err)
	}
	defer rows.Close()

	out := []RiskRow{}
	for rows.Next() {
		var r RiskRow
		if err := rows.Scan(&r.Function, &r.Module, &r.FilePath, &r.Complexity, &r.Frequency); err != nil {
			return nil, opErr("risk", projectID, err)
		}
		out = append(out, r)
	}
	return out, opErr("risk", projectID, rows.Err())
}

// ViolationRows returns violations detected at or after since, most severe and
// most recent first.
func (s *SQLiteStore) ViolationRows(ctx context.Context, projectID string, since time.Time) ([]Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, source_id, target_id, type, severity, description, rule_id, file_path, line, suggested_fix, detected_at
		FROM violations
		WHERE project_id = ? AND detected_at >= ?
		ORDER BY `+severityOrder+` DESC, detected_at DESC, id
	`, projectID, formatTime(since))
	if err != nil {
		return nil, opErr("violations", projectID, err)
	}
	defer rows.Close()

	out := []Violation{}
	for rows.Next() {
		var v Violation
		var detected string
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.SourceID, &v.TargetID, &v.Type, &v.Severity,
			&v.Description, &v.RuleID, &v.FilePath, &v.Line, &v.SuggestedFix, &detected); err != nil {
			return nil, opErr("violations", projectID, err)
		}
		v.DetectedAt = parseTime(detected)
		out = append(out, v)
	}
	return out, opErr("violations", projectID, rows.Err())
}

func (s *SQLiteStore) Overview(ctx context.Context, projectID string) (Overview, error) {
	o := Overview{ProjectID: projectID}
	err := s.db.QueryRowContext(ctx, `SELECT name FROM projects WHERE id = ?`, projectID).Scan(&o.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return o, nil
	}
	if err != nil {
		return o, opErr("overview", projectID, err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM modules WHERE project_id = ?),
			(SELECT COUNT(*) FROM classes c JOIN modules m ON m.id = c.module_id WHERE m.project_id = ?),
			(SELECT COUNT(*) FROM functions f JOIN modules m ON m.id = f.module_id WHERE m.project_id = ?),
			(SELECT COUNT(*) FROM depends_on d JOIN modules m ON m.id = d.source_id WHERE m.project_id = ?)
	`, projectID, projectID, projectID, projectID).Scan(&o.Modules, &o.Classes, &o.Functions, &o.DependsOn)
	return o, opErr("overview", projectID, err)
}

func (s *SQLiteStore) Counts(ctx context.Context, projectID string) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM modules WHERE project_id = ?),
			(SELECT COUNT(*) FROM classes c JOIN modules m ON m.id = c.module_id WHERE m.project_id = ?),
			(SELECT COUNT(*) FROM functions f JOIN modules m ON m.id = f.module_id WHERE m.project_id = ?),
			(SELECT COUNT(*) FROM depends_on d JOIN modules m ON m.id = d.source_id WHERE m.project_id = ?),
			(SELECT COUNT(*) FROM calls c JOIN modules m ON m.id = c.caller_module_id WHERE m.project_id = ?),
			(SELECT COUNT(*) FROM violations WHERE project_id = ?)
	`, projectID, projectID, projectID, projectID, projectID, projectID).
		Scan(&c.Modules, &c.Classes, &c.Functions, &c.DependsOn, &c.Calls, &c.Violations)
	return c, opErr("counts", projectID, err)
}
