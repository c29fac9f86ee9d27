// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
)

// Store adapts a graphmodel.Graph onto a Backend, implementing the
// initialize_schema/upsert_node/upsert_edge/delete_nodes_by_location_prefix
// operation set. Writes are serialized per file path (one writer per path
// at a time); reads proceed concurrently.
type Store struct {
	backend Backend

	pathLocks   sync.Map // path -> *sync.Mutex
	pathLocksMu sync.Mutex
}

// New wraps an already-open backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Close releases the underlying backend.
func (s *Store) Close() error { return s.backend.Close() }

// Run executes an arbitrary CozoScript against the backend, for ad hoc
// queries (the CLI's "query" subcommand) that fall outside the typed
// operations this file otherwise exposes.
func (s *Store) Run(ctx context.Context, script string, params map[string]any) (*Result, error) {
	return s.backend.Run(ctx, script, params)
}

// lockPath returns the per-path mutex, creating it on first use.
func (s *Store) lockPath(path string) *sync.Mutex {
	if v, ok := s.pathLocks.Load(path); ok {
		return v.(*sync.Mutex)
	}
	s.pathLocksMu.Lock()
	defer s.pathLocksMu.Unlock()
	if v, ok := s.pathLocks.Load(path); ok {
		return v.(*sync.Mutex)
	}
	m := &sync.Mutex{}
	s.pathLocks.Store(path, m)
	return m
}

// WithPathLock serializes fn against any other writer touching the same
// file path, matching §5's "one writer per file path at a time".
func (s *Store) WithPathLock(path string, fn func() error) error {
	mu := s.lockPath(path)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// InitializeSchema idempotently creates every table graphmodel.DatalogSchema
// names, ignoring "already exists" errors the same way the ambient
// codebase's EnsureSchema does.
func (s *Store) InitializeSchema(ctx context.Context) error {
	for _, ddl := range graphmodel.DatalogSchema() {
		if _, err := s.backend.Run(ctx, ddl, nil); err != nil {
			msg := err.Error()
			if strings.Contains(msg, "already exists") || strings.Contains(msg, "conflicts with an existing one") {
				continue
			}
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	return nil
}

// ClearAll removes every row from every table, for test teardown and the
// explicit reset operation.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, table := range allTables() {
		script := fmt.Sprintf(`?[id] := *%s{id} :rm %s {id}`, table, table)
		if _, err := s.backend.Run(ctx, script, nil); err != nil {
			continue
		}
	}
	if _, err := s.backend.Run(ctx, `?[from_id, to_id, edge_type, ordinal] := *pg_edge{from_id, to_id, edge_type, ordinal} :rm pg_edge {from_id, to_id, edge_type, ordinal}`, nil); err != nil {
		return fmt.Errorf("clear edges: %w", err)
	}
	if _, err := s.backend.Run(ctx, `?[path] := *pg_file_hash{path} :rm pg_file_hash {path}`, nil); err != nil {
		return fmt.Errorf("clear file hashes: %w", err)
	}
	if _, err := s.backend.Run(ctx, `?[key] := *pg_meta{key} :rm pg_meta {key}`, nil); err != nil {
		return fmt.Errorf("clear meta: %w", err)
	}
	return nil
}

func allTables() []string {
	tables := make([]string, 0, len(graphmodel.NodeTables)+1)
	for _, t := range graphmodel.NodeTables {
		tables = append(tables, t)
	}
	tables = append(tables, "pg_module_text")
	return tables
}

// FileHashes returns every path's last-indexed content hash, for the
// hash-based delta detector to diff current files against.
func (s *Store) FileHashes(ctx context.Context) (map[string]string, error) {
	res, err := s.backend.Run(ctx, `?[path, hash] := *pg_file_hash{path, hash}`, nil)
	if err != nil {
		return nil, fmt.Errorf("file_hashes: %w", err)
	}
	out := make(map[string]string, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 2 {
			continue
		}
		path, _ := row[0].(string)
		hash, _ := row[1].(string)
		if path != "" {
			out[path] = hash
		}
	}
	return out, nil
}

// SetFileHash records path's content hash, MERGE-by-path.
func (s *Store) SetFileHash(ctx context.Context, path, hash string) error {
	script := `?[path, hash] <- [[$path, $hash]] :put pg_file_hash { path, hash }`
	_, err := s.backend.Run(ctx, script, map[string]any{"path": path, "hash": hash})
	if err != nil {
		return fmt.Errorf("set_file_hash %s: %w", path, err)
	}
	return nil
}

// DeleteFileHash removes path's tracked hash, for when a file is deleted.
func (s *Store) DeleteFileHash(ctx context.Context, path string) error {
	script := `?[path] := *pg_file_hash{path}, path = $path :rm pg_file_hash { path }`
	_, err := s.backend.Run(ctx, script, map[string]any{"path": path})
	if err != nil {
		return fmt.Errorf("delete_file_hash %s: %w", path, err)
	}
	return nil
}

// GetMeta reads a single driver bookkeeping value (e.g. the last-indexed
// git SHA), returning ("", false, nil) when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	res, err := s.backend.Run(ctx, `?[value] := *pg_meta{key, value}, key = $key`, map[string]any{"key": key})
	if err != nil {
		return "", false, fmt.Errorf("get_meta %s: %w", key, err)
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return "", false, nil
	}
	value, _ := res.Rows[0][0].(string)
	return value, true, nil
}

// SetMeta records a driver bookkeeping value, MERGE-by-key.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	script := `?[key, value] <- [[$key, $value]] :put pg_meta { key, value }`
	_, err := s.backend.Run(ctx, script, map[string]any{"key": key, "value": value})
	if err != nil {
		return fmt.Errorf("set_meta %s: %w", key, err)
	}
	return nil
}

// nodeColumns returns the non-key column list for a label, in the exact
// order graphmodel.DatalogSchema() declares them, plus the params built
// from n's typed payload.
func nodeColumns(n *graphmodel.Node) (table string, cols []string, params map[string]any) {
	base := map[string]any{"id": n.ID}
	switch n.Label {
	case graphmodel.LabelModule:
		cols = []string{"qualified_name", "path", "is_external", "changed"}
		params = merge(base, map[string]any{
			"qualified_name": n.Module.QualifiedName, "path": n.Module.Path,
			"is_external": n.Module.IsExternal, "changed": false,
		})
		return "pg_module", cols, params
	case graphmodel.LabelClass:
		cols = []string{"qualified_name", "name", "location", "bases", "visibility", "decorators", "changed"}
		params = merge(base, map[string]any{
			"qualified_name": n.Class.QualifiedName, "name": n.Name, "location": n.Location,
			"bases": n.Class.Bases, "visibility": string(n.Class.Visibility),
			"decorators": n.Class.Decorators, "changed": false,
		})
		return "pg_class", cols, params
	case graphmodel.LabelFunction:
		cols = []string{"qualified_name", "name", "location", "signature", "return_type", "visibility",
			"is_async", "is_generator", "is_staticmethod", "is_classmethod", "is_property", "decorators", "changed"}
		params = merge(base, map[string]any{
			"qualified_name": n.Function.QualifiedName, "name": n.Name, "location": n.Location,
			"signature": n.Function.Signature, "return_type": n.Function.ReturnType,
			"visibility": string(n.Function.Visibility), "is_async": n.Function.IsAsync,
			"is_generator": n.Function.IsGenerator, "is_staticmethod": n.Function.IsStaticMethod,
			"is_classmethod": n.Function.IsClassMethod, "is_property": n.Function.IsProperty,
			"decorators": n.Function.Decorators, "changed": false,
		})
		return "pg_function", cols, params
	case graphmodel.LabelParameter:
		cols = []string{"name", "location", "position", "kind", "type_annotation", "default_value", "has_default", "changed"}
		params = merge(base, map[string]any{
			"name": n.Name, "location": n.Location, "position": n.Parameter.Position,
			"kind": string(n.Parameter.Kind), "type_annotation": n.Parameter.TypeAnnotation,
			"default_value": n.Parameter.DefaultValue, "has_default": n.Parameter.HasDefault, "changed": false,
		})
		return "pg_parameter", cols, params
	case graphmodel.LabelVariable:
		cols = []string{"name", "location", "scope", "type_annotation", "inferred_types", "changed"}
		params = merge(base, map[string]any{
			"name": n.Name, "location": n.Location, "scope": string(n.Variable.Scope),
			"type_annotation": n.Variable.TypeAnnotation, "inferred_types": n.Variable.InferredTypes, "changed": false,
		})
		return "pg_variable", cols, params
	case graphmodel.LabelCallSite:
		cols = []string{"caller_id", "location", "arg_count", "has_args", "has_kwargs", "lineno",
			"col_offset", "arg_types", "resolution_status", "unresolved_callee", "callee_text", "changed"}
		params = merge(base, map[string]any{
			"caller_id": n.CallSite.CallerID, "location": n.Location, "arg_count": n.CallSite.ArgCount,
			"has_args": n.CallSite.HasArgs, "has_kwargs": n.CallSite.HasKwargs, "lineno": n.CallSite.Lineno,
			"col_offset": n.CallSite.ColOffset, "arg_types": n.CallSite.ArgTypes,
			"resolution_status": string(n.CallSite.ResolutionStatus),
			"unresolved_callee": n.CallSite.UnresolvedCallee, "callee_text": n.CallSite.CalleeText, "changed": false,
		})
		return "pg_callsite", cols, params
	case graphmodel.LabelType:
		cols = []string{"name", "location", "module", "kind", "base_types", "changed"}
		params = merge(base, map[string]any{
			"name": n.Name, "location": n.Location, "module": n.Type.Module,
			"kind": string(n.Type.Kind), "base_types": n.Type.BaseTypes, "changed": false,
		})
		return "pg_type", cols, params
	case graphmodel.LabelDecorator:
		cols = []string{"name", "location", "target_id", "target_type", "changed"}
		params = merge(base, map[string]any{
			"name": n.Name, "location": n.Location, "target_id": n.Decorator.TargetID,
			"target_type": string(n.Decorator.TargetType), "changed": false,
		})
		return "pg_decorator", cols, params
	case graphmodel.LabelUnresolved:
		cols = []string{"location", "reference_kind", "source_id", "changed"}
		params = merge(base, map[string]any{
			"location": n.Location, "reference_kind": n.Unresolved.ReferenceKind,
			"source_id": n.Unresolved.SourceID, "changed": false,
		})
		return "pg_unresolved", cols, params
	default:
		return "", nil, nil
	}
}

func merge(a, b map[string]any) map[string]any {
	for k, v := range b {
		a[k] = v
	}
	return a
}

// UpsertNode MERGEs n into its table by id, per §4.3. Missing id is an
// error; unrecognized labels are rejected the same way.
func (s *Store) UpsertNode(ctx context.Context, n *graphmodel.Node) error {
	if n.ID == "" {
		return fmt.Errorf("upsert_node: missing id for %s %q", n.Label, n.Name)
	}
	table, cols, params := nodeColumns(n)
	if table == "" {
		return fmt.Errorf("upsert_node: unrecognized label %q", n.Label)
	}
	if err := s.putRow(ctx, table, cols, params); err != nil {
		return fmt.Errorf("upsert_node %s %s: %w", n.Label, n.ID, err)
	}
	if n.Label == graphmodel.LabelModule {
		textParams := map[string]any{"id": n.ID, "docstring": n.Module.Docstring}
		if err := s.putRow(ctx, "pg_module_text", []string{"docstring"}, textParams); err != nil {
			return fmt.Errorf("upsert_node module text %s: %w", n.ID, err)
		}
	}
	return nil
}

func (s *Store) putRow(ctx context.Context, table string, cols []string, params map[string]any) error {
	head := append([]string{"id"}, cols...)
	bound := make([]string, len(head))
	for i, c := range head {
		bound[i] = "$" + c
	}
	script := fmt.Sprintf(`?[%s] <- [[%s]] :put %s { %s }`,
		strings.Join(head, ", "), strings.Join(bound, ", "), table, strings.Join(head, ", "))
	_, err := s.backend.Run(ctx, script, params)
	return err
}

// UpsertEdge MERGEs an edge, skipping (with the caller expected to log a
// warning) if either endpoint is missing, per §4.3.
func (s *Store) UpsertEdge(ctx context.Context, e graphmodel.Edge) (skipped bool, err error) {
	if e.From == "" || e.To == "" {
		return true, nil
	}
	if ok, _ := s.nodeExists(ctx, e.From); !ok {
		return true, nil
	}
	if ok, _ := s.nodeExists(ctx, e.To); !ok {
		return true, nil
	}
	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	ordinal := 0
	if v, ok := props["_ordinal"]; ok {
		if n, ok := v.(int); ok {
			ordinal = n
		}
		delete(props, "_ordinal")
	}
	script := `?[from_id, to_id, edge_type, ordinal, properties] <- [[$from_id, $to_id, $edge_type, $ordinal, $properties]] :put pg_edge { from_id, to_id, edge_type, ordinal, properties }`
	params := map[string]any{
		"from_id": e.From, "to_id": e.To, "edge_type": string(e.Type),
		"ordinal": ordinal, "properties": props,
	}
	_, err = s.backend.Run(ctx, script, params)
	return false, err
}

func (s *Store) nodeExists(ctx context.Context, id string) (bool, error) {
	for _, table := range graphmodel.NodeTables {
		script := fmt.Sprintf(`?[id] := *%s{id}, id = $id`, table)
		res, err := s.backend.Run(ctx, script, map[string]any{"id": id})
		if err != nil {
			continue
		}
		if len(res.Rows) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// DeleteNodesByLocationPrefix deletes every node whose location starts
// with path (and their incident edges), exempting external Module
// placeholders, returning the count deleted.
func (s *Store) DeleteNodesByLocationPrefix(ctx context.Context, path string) (int, error) {
	total := 0
	idsToDelete := map[string]bool{}
	for label, table := range graphmodel.NodeTables {
		if label == graphmodel.LabelModule {
			script := `?[id] := *pg_module{id, path: p, is_external}, is_external = false, starts_with(p, $prefix)`
			res, err := s.backend.Run(ctx, script, map[string]any{"prefix": path})
			if err != nil {
				continue
			}
			for _, row := range res.Rows {
				if len(row) > 0 {
					if idStr, ok := row[0].(string); ok {
						idsToDelete[idStr] = true
					}
				}
			}
			continue
		}
		script := fmt.Sprintf(`?[id] := *%s{id, location}, starts_with(location, $prefix)`, table)
		res, err := s.backend.Run(ctx, script, map[string]any{"prefix": path})
		if err != nil {
			continue
		}
		for _, row := range res.Rows {
			if len(row) > 0 {
				if idStr, ok := row[0].(string); ok {
					idsToDelete[idStr] = true
				}
			}
		}
	}

	for id := range idsToDelete {
		if err := s.deleteEdgesTouching(ctx, id); err != nil {
			return total, err
		}
	}
	for label, table := range graphmodel.NodeTables {
		for id := range idsToDelete {
			script := fmt.Sprintf(`?[id] := id = $id :rm %s {id}`, table)
			_, _ = s.backend.Run(ctx, script, map[string]any{"id": id})
		}
		_ = label
	}
	return len(idsToDelete), nil
}

func (s *Store) deleteEdgesTouching(ctx context.Context, id string) error {
	for _, col := range []string{"from_id", "to_id"} {
		script := fmt.Sprintf(`?[from_id, to_id, edge_type, ordinal] := *pg_edge{from_id, to_id, edge_type, ordinal}, %s = $id :rm pg_edge {from_id, to_id, edge_type, ordinal}`, col)
		if _, err := s.backend.Run(ctx, script, map[string]any{"id": id}); err != nil {
			return err
		}
	}
	return nil
}

// Stats is the result of Statistics: node counts by label plus the total
// edge count.
type Stats struct {
	NodesByLabel map[graphmodel.Label]int
	TotalEdges   int
}

// Statistics reports counts by label plus total edges, per §4.3.
func (s *Store) Statistics(ctx context.Context) (*Stats, error) {
	stats := &Stats{NodesByLabel: map[graphmodel.Label]int{}}
	for label, table := range graphmodel.NodeTables {
		script := fmt.Sprintf(`?[count(id)] := *%s{id}`, table)
		res, err := s.backend.Run(ctx, script, nil)
		if err != nil {
			continue
		}
		if len(res.Rows) > 0 && len(res.Rows[0]) > 0 {
			if n, ok := toInt(res.Rows[0][0]); ok {
				stats.NodesByLabel[label] = n
			}
		}
	}
	res, err := s.backend.Run(ctx, `?[count(from_id)] := *pg_edge{from_id}`, nil)
	if err == nil && len(res.Rows) > 0 && len(res.Rows[0]) > 0 {
		if n, ok := toInt(res.Rows[0][0]); ok {
			stats.TotalEdges = n
		}
	}
	return stats, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// ResolveFunctionID implements the builder's name-to-id lookup: exact
// qualified match, else qualified-suffix match, else simple-name match,
// breaking ties by shortest qualified_name (§4.4).
func (s *Store) ResolveFunctionID(ctx context.Context, calleeName string) (string, error) {
	res, err := s.backend.Run(ctx, `?[id, qualified_name] := *pg_function{id, qualified_name}`, nil)
	if err != nil {
		return "", err
	}
	type cand struct {
		id, qname string
	}
	var exact, suffix, simple []cand
	for _, row := range res.Rows {
		if len(row) < 2 {
			continue
		}
		id, _ := row[0].(string)
		qname, _ := row[1].(string)
		switch {
		case qname == calleeName:
			exact = append(exact, cand{id, qname})
		case strings.HasSuffix(qname, "."+calleeName):
			suffix = append(suffix, cand{id, qname})
		case simpleName(qname) == calleeName:
			simple = append(simple, cand{id, qname})
		}
	}
	pick := func(cs []cand) string {
		if len(cs) == 0 {
			return ""
		}
		sort.Slice(cs, func(i, j int) bool { return len(cs[i].qname) < len(cs[j].qname) })
		return cs[0].id
	}
	if id := pick(exact); id != "" {
		return id, nil
	}
	if id := pick(suffix); id != "" {
		return id, nil
	}
	return pick(simple), nil
}

func simpleName(qname string) string {
	if idx := strings.LastIndex(qname, "."); idx >= 0 {
		return qname[idx+1:]
	}
	return qname
}

// MarkNodesChanged stamps changed = true on the given node ids.
func (s *Store) MarkNodesChanged(ctx context.Context, nodeIDs []string) error {
	for _, id := range nodeIDs {
		for _, table := range graphmodel.NodeTables {
			script := fmt.Sprintf(`?[id, changed] <- [[$id, true]] :update %s { id => changed }`, table)
			_, _ = s.backend.Run(ctx, script, map[string]any{"id": id})
		}
	}
	return nil
}

// MarkFileNodesChanged stamps changed = true on every node whose location
// starts with path, per §4.7 step 3.
func (s *Store) MarkFileNodesChanged(ctx context.Context, path string) error {
	for label, table := range graphmodel.NodeTables {
		if label == graphmodel.LabelModule {
			script := `?[id, changed] := *pg_module{id, path: p}, starts_with(p, $prefix), changed = true :update pg_module { id => changed }`
			_, _ = s.backend.Run(ctx, script, map[string]any{"prefix": path})
			continue
		}
		script := fmt.Sprintf(`?[id, changed] := *%s{id, location}, starts_with(location, $prefix), changed = true :update %s { id => changed }`, table, table)
		_, _ = s.backend.Run(ctx, script, map[string]any{"prefix": path})
	}
	return nil
}

// GetChangedIDs returns every node id currently stamped changed = true.
func (s *Store) GetChangedIDs(ctx context.Context) ([]string, error) {
	var out []string
	for _, table := range graphmodel.NodeTables {
		script := fmt.Sprintf(`?[id] := *%s{id, changed}, changed = true`, table)
		res, err := s.backend.Run(ctx, script, nil)
		if err != nil {
			continue
		}
		for _, row := range res.Rows {
			if len(row) > 0 {
				if id, ok := row[0].(string); ok {
					out = append(out, id)
				}
			}
		}
	}
	return out, nil
}

// ClearChangedFlags resets changed = false on every node.
func (s *Store) ClearChangedFlags(ctx context.Context) error {
	for _, table := range graphmodel.NodeTables {
		script := fmt.Sprintf(`?[id, changed] := *%s{id}, changed = false :update %s { id => changed }`, table, table)
		if _, err := s.backend.Run(ctx, script, nil); err != nil {
			return fmt.Errorf("clear changed flags in %s: %w", table, err)
		}
	}
	return nil
}

// NodeByID fetches a single node's full attributes, or nil if absent.
func (s *Store) NodeByID(ctx context.Context, id string) (*graphmodel.Node, error) {
	nodes, err := s.nodesWhere(ctx, "id = $id", map[string]any{"id": id}, 1)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// AllNodes returns up to limit nodes across every label.
func (s *Store) AllNodes(ctx context.Context, limit int) ([]*graphmodel.Node, error) {
	return s.nodesWhere(ctx, "", nil, limit)
}

// Search finds nodes whose name contains pattern case-insensitively,
// optionally restricted to one label, per the query interface's
// search_by_pattern contract.
func (s *Store) Search(ctx context.Context, pattern string, label *graphmodel.Label, limit int) ([]*graphmodel.Node, error) {
	var out []*graphmodel.Node
	tables := graphmodel.NodeTables
	lowerPattern := strings.ToLower(pattern)
	for l, table := range tables {
		if label != nil && l != *label {
			continue
		}
		script := fmt.Sprintf(`?[id, name] := *%s{id, name}, str_includes(lowercase(name), $pattern)`, table)
		if l == graphmodel.LabelFunction || l == graphmodel.LabelClass {
			script = fmt.Sprintf(`?[id, name] := *%s{id, name, qualified_name}, str_includes(lowercase(name), $pattern) || str_includes(lowercase(qualified_name), $pattern)`, table)
		}
		if l == graphmodel.LabelModule {
			script = `?[id, name] := *pg_module{id, qualified_name: name}, str_includes(lowercase(name), $pattern)`
		}
		res, err := s.backend.Run(ctx, script, map[string]any{"pattern": lowerPattern})
		if err != nil {
			continue
		}
		for _, row := range res.Rows {
			if len(row) == 0 {
				continue
			}
			id, _ := row[0].(string)
			n, err := s.NodeByID(ctx, id)
			if err == nil && n != nil {
				out = append(out, n)
			}
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// nodesWhere is a best-effort multi-table read used by NodeByID/AllNodes.
// It is not transactionally consistent across tables, matching the
// read-only aggregation policy of §5 ("readers may proceed concurrently").
func (s *Store) nodesWhere(ctx context.Context, _ string, params map[string]any, limit int) ([]*graphmodel.Node, error) {
	var out []*graphmodel.Node
	id, hasID := params["id"].(string)

	for label, table := range graphmodel.NodeTables {
		script := fmt.Sprintf(`?[id] := *%s{id}`, table)
		p := map[string]any{}
		if hasID {
			script = fmt.Sprintf(`?[id] := *%s{id}, id = $id`, table)
			p["id"] = id
		}
		if limit > 0 {
			script += fmt.Sprintf(" :limit %d", limit)
		}
		res, err := s.backend.Run(ctx, script, p)
		if err != nil {
			continue
		}
		for _, row := range res.Rows {
			if len(row) == 0 {
				continue
			}
			rid, _ := row[0].(string)
			n, err := s.hydrateNode(ctx, label, table, rid)
			if err == nil && n != nil {
				out = append(out, n)
			}
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// hydrateNode reads one node's full row back from its metadata table (and
// its _text companion for Module) and reconstructs the typed Node.
func (s *Store) hydrateNode(ctx context.Context, label graphmodel.Label, table, id string) (*graphmodel.Node, error) {
	script := fmt.Sprintf(`?[%s] := *%s{%s}, id = $id`, allColumnsOf(label), table, allColumnsOf(label))
	res, err := s.backend.Run(ctx, script, map[string]any{"id": id})
	if err != nil || len(res.Rows) == 0 {
		return nil, err
	}
	return rowToNode(label, res.Headers, res.Rows[0]), nil
}

func allColumnsOf(label graphmodel.Label) string {
	cols := map[graphmodel.Label][]string{
		graphmodel.LabelModule:     {"id", "qualified_name", "path", "is_external", "changed"},
		graphmodel.LabelClass:      {"id", "qualified_name", "name", "location", "bases", "visibility", "decorators", "changed"},
		graphmodel.LabelFunction:   {"id", "qualified_name", "name", "location", "signature", "return_type", "visibility", "is_async", "is_generator", "is_staticmethod", "is_classmethod", "is_property", "decorators", "changed"},
		graphmodel.LabelParameter:  {"id", "name", "location", "position", "kind", "type_annotation", "default_value", "has_default", "changed"},
		graphmodel.LabelVariable:   {"id", "name", "location", "scope", "type_annotation", "inferred_types", "changed"},
		graphmodel.LabelCallSite:   {"id", "caller_id", "location", "arg_count", "has_args", "has_kwargs", "lineno", "col_offset", "arg_types", "resolution_status", "unresolved_callee", "callee_text", "changed"},
		graphmodel.LabelType:       {"id", "name", "location", "module", "kind", "base_types", "changed"},
		graphmodel.LabelDecorator:  {"id", "name", "location", "target_id", "target_type", "changed"},
		graphmodel.LabelUnresolved: {"id", "location", "reference_kind", "source_id", "changed"},
	}
	return strings.Join(cols[label], ", ")
}

func rowToNode(label graphmodel.Label, headers []string, row []any) *graphmodel.Node {
	get := func(name string) any {
		for i, h := range headers {
			if h == name && i < len(row) {
				return row[i]
			}
		}
		return nil
	}
	str := func(name string) string { v, _ := get(name).(string); return v }
	boolv := func(name string) bool { v, _ := get(name).(bool); return v }
	strs := func(name string) []string {
		raw, _ := get(name).([]any)
		out := make([]string, 0, len(raw))
		for _, r := range raw {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	intv := func(name string) int { n, _ := toInt(get(name)); return n }

	id := str("id")
	switch label {
	case graphmodel.LabelModule:
		return &graphmodel.Node{
			Common: graphmodel.Common{ID: id, Name: str("qualified_name"), Location: str("path"), Label: label},
			Module: &graphmodel.ModuleAttrs{QualifiedName: str("qualified_name"), Path: str("path"), IsExternal: boolv("is_external")},
		}
	case graphmodel.LabelClass:
		return &graphmodel.Node{
			Common: graphmodel.Common{ID: id, Name: str("name"), Location: str("location"), Label: label},
			Class: &graphmodel.ClassAttrs{
				QualifiedName: str("qualified_name"), Bases: strs("bases"),
				Visibility: graphmodel.Visibility(str("visibility")), Decorators: strs("decorators"),
			},
		}
	case graphmodel.LabelFunction:
		return &graphmodel.Node{
			Common: graphmodel.Common{ID: id, Name: str("name"), Location: str("location"), Label: label},
			Function: &graphmodel.FunctionAttrs{
				QualifiedName: str("qualified_name"), Signature: str("signature"), ReturnType: str("return_type"),
				Visibility: graphmodel.Visibility(str("visibility")), IsAsync: boolv("is_async"),
				IsGenerator: boolv("is_generator"), IsStaticMethod: boolv("is_staticmethod"),
				IsClassMethod: boolv("is_classmethod"), IsProperty: boolv("is_property"), Decorators: strs("decorators"),
			},
		}
	case graphmodel.LabelParameter:
		return &graphmodel.Node{
			Common: graphmodel.Common{ID: id, Name: str("name"), Location: str("location"), Label: label},
			Parameter: &graphmodel.ParameterAttrs{
				Name: str("name"), Position: intv("position"), Kind: graphmodel.ParamKind(str("kind")),
				TypeAnnotation: str("type_annotation"), DefaultValue: str("default_value"), HasDefault: boolv("has_default"),
			},
		}
	case graphmodel.LabelVariable:
		return &graphmodel.Node{
			Common: graphmodel.Common{ID: id, Name: str("name"), Location: str("location"), Label: label},
			Variable: &graphmodel.VariableAttrs{
				Name: str("name"), Scope: graphmodel.VariableScope(str("scope")),
				TypeAnnotation: str("type_annotation"), InferredTypes: strs("inferred_types"),
			},
		}
	case graphmodel.LabelCallSite:
		return &graphmodel.Node{
			Common: graphmodel.Common{ID: id, Name: str("callee_text"), Location: str("location"), Label: label},
			CallSite: &graphmodel.CallSiteAttrs{
				CallerID: str("caller_id"), ArgCount: intv("arg_count"), HasArgs: boolv("has_args"),
				HasKwargs: boolv("has_kwargs"), Lineno: intv("lineno"), ColOffset: intv("col_offset"),
				ArgTypes: strs("arg_types"), ResolutionStatus: graphmodel.ResolutionStatus(str("resolution_status")),
				UnresolvedCallee: str("unresolved_callee"), CalleeText: str("callee_text"),
			},
		}
	case graphmodel.LabelType:
		return &graphmodel.Node{
			Common: graphmodel.Common{ID: id, Name: str("name"), Location: str("location"), Label: label},
			Type: &graphmodel.TypeAttrs{
				Name: str("name"), Module: str("module"), Kind: graphmodel.TypeKind(str("kind")), BaseTypes: strs("base_types"),
			},
		}
	case graphmodel.LabelDecorator:
		return &graphmodel.Node{
			Common: graphmodel.Common{ID: id, Name: str("name"), Location: str("location"), Label: label},
			Decorator: &graphmodel.DecoratorAttrs{
				Name: str("name"), TargetID: str("target_id"), TargetType: graphmodel.Label(str("target_type")),
			},
		}
	case graphmodel.LabelUnresolved:
		return &graphmodel.Node{
			Common:     graphmodel.Common{ID: id, Name: str("reference_kind"), Location: str("location"), Label: label},
			Unresolved: &graphmodel.UnresolvedAttrs{ReferenceKind: str("reference_kind"), SourceID: str("source_id")},
		}
	default:
		return nil
	}
}

// AllEdges returns up to limit edges.
func (s *Store) AllEdges(ctx context.Context, limit int) ([]graphmodel.Edge, error) {
	script := `?[from_id, to_id, edge_type, properties] := *pg_edge{from_id, to_id, edge_type, properties}`
	if limit > 0 {
		script += fmt.Sprintf(" :limit %d", limit)
	}
	res, err := s.backend.Run(ctx, script, nil)
	if err != nil {
		return nil, err
	}
	return rowsToEdges(res), nil
}

// NodeEdges returns every edge touching id, in either direction, optionally
// restricted to a set of edge types (the "parameterized allow-list" of
// §4.3).
func (s *Store) NodeEdges(ctx context.Context, id string, allow []graphmodel.EdgeType) ([]graphmodel.Edge, error) {
	script := `?[from_id, to_id, edge_type, properties] := *pg_edge{from_id, to_id, edge_type, properties}, (from_id = $id or to_id = $id)`
	res, err := s.backend.Run(ctx, script, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	edges := rowsToEdges(res)
	if len(allow) == 0 {
		return edges, nil
	}
	allowSet := map[graphmodel.EdgeType]bool{}
	for _, t := range allow {
		allowSet[t] = true
	}
	var filtered []graphmodel.Edge
	for _, e := range edges {
		if allowSet[e.Type] {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func rowsToEdges(res *Result) []graphmodel.Edge {
	var out []graphmodel.Edge
	for _, row := range res.Rows {
		if len(row) < 4 {
			continue
		}
		from, _ := row[0].(string)
		to, _ := row[1].(string)
		et, _ := row[2].(string)
		props, _ := row[3].(map[string]any)
		out = append(out, graphmodel.Edge{From: from, To: to, Type: graphmodel.EdgeType(et), Properties: props})
	}
	return out
}

// NodeNeighborhood performs a breadth-first traversal up to depth hops from
// id, returning the induced subgraph, per §4.3.
func (s *Store) NodeNeighborhood(ctx context.Context, id string, depth int) (*graphmodel.Graph, error) {
	return s.bfs(ctx, []string{id}, depth, nil)
}

// FunctionSubgraph is NodeNeighborhood restricted to the call/resolution
// edges relevant to a function's dependency slice (§4.3, §4.5's "one
// logical call hop = HAS_CALLSITE + RESOLVES_TO").
func (s *Store) FunctionSubgraph(ctx context.Context, functionID string, depth int) (*graphmodel.Graph, error) {
	allow := []graphmodel.EdgeType{
		graphmodel.EdgeHasCallSite, graphmodel.EdgeResolvesTo, graphmodel.EdgeHasParameter,
		graphmodel.EdgeReturnsType, graphmodel.EdgeHasType,
	}
	return s.bfs(ctx, []string{functionID}, depth, allow)
}

func (s *Store) bfs(ctx context.Context, roots []string, depth int, allow []graphmodel.EdgeType) (*graphmodel.Graph, error) {
	g := graphmodel.NewGraph()
	visited := map[string]bool{}
	frontier := roots
	seenEdge := map[string]bool{}

	for d := 0; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			if visited[id] {
				continue
			}
			visited[id] = true
			node, err := s.NodeByID(ctx, id)
			if err != nil || node == nil {
				continue
			}
			g.AddNode(node)

			edges, err := s.NodeEdges(ctx, id, allow)
			if err != nil {
				continue
			}
			for _, e := range edges {
				key := e.From + "|" + e.To + "|" + string(e.Type)
				if !seenEdge[key] {
					seenEdge[key] = true
					g.AddEdge(e)
				}
				other := e.To
				if other == id {
					other = e.From
				}
				if other != "" && !visited[other] {
					next = append(next, other)
				}
			}
		}
		frontier = next
	}
	return g, nil
}

// PropagateChangedFlag implements §5's bounded fixpoint: it re-marks nodes
// reachable from any already-changed node via the fixed dependency rules,
// iterating until no new node is marked or the 10-iteration safety cap is
// hit.
func (s *Store) PropagateChangedFlag(ctx context.Context) error {
	const maxIterations = 10
	rules := []struct {
		edgeType  graphmodel.EdgeType
		direction string // "forward": mark To when From changed; "backward": mark From when To changed
	}{
		{graphmodel.EdgeResolvesTo, "backward"}, // CallSite -RESOLVES_TO-> Function: Function changed -> CallSite changed
		{graphmodel.EdgeHasCallSite, "backward"}, // Function -HAS_CALLSITE-> CallSite: CallSite changed -> Function changed
		{graphmodel.EdgeInherits, "backward"},    // Class -INHERITS-> Class: base changed -> derived changed
		{graphmodel.EdgeDeclares, "forward"},     // Module/Class -DECLARES-> X: owner changed -> X changed
		{graphmodel.EdgeHasParameter, "forward"}, // Function -HAS_PARAMETER-> Parameter
		{graphmodel.EdgeImports, "backward"},     // Module -IMPORTS-> Module: imported changed -> importer changed
	}

	for iter := 0; iter < maxIterations; iter++ {
		changedBefore, err := s.GetChangedIDs(ctx)
		if err != nil {
			return err
		}
		changedSet := map[string]bool{}
		for _, id := range changedBefore {
			changedSet[id] = true
		}

		newlyMarked := map[string]bool{}
		for _, rule := range rules {
			edges, err := s.AllEdges(ctx, 0)
			if err != nil {
				return err
			}
			for _, e := range edges {
				if e.Type != rule.edgeType {
					continue
				}
				switch rule.edgeType {
				case graphmodel.EdgeImports:
					// A Module that IMPORTS a changed Module becomes changed: the
					// importer (From) is marked when the imported (To) is changed.
					if changedSet[e.To] && !changedSet[e.From] {
						newlyMarked[e.From] = true
					}
				case graphmodel.EdgeResolvesTo:
					// A CallSite whose RESOLVES_TO target is changed becomes changed.
					if changedSet[e.To] && !changedSet[e.From] {
						newlyMarked[e.From] = true
					}
				case graphmodel.EdgeHasCallSite:
					// A Function whose CallSite is changed becomes changed.
					if changedSet[e.To] && !changedSet[e.From] {
						newlyMarked[e.From] = true
					}
				case graphmodel.EdgeInherits:
					// A Class that INHERITS from a changed Class becomes changed.
					if changedSet[e.To] && !changedSet[e.From] {
						newlyMarked[e.From] = true
					}
				default:
					// forward: owner changed -> declared entity or parameter changed
					if changedSet[e.From] && !changedSet[e.To] {
						newlyMarked[e.To] = true
					}
				}
			}
		}

		if len(newlyMarked) == 0 {
			return nil
		}
		ids := make([]string, 0, len(newlyMarked))
		for id := range newlyMarked {
			ids = append(ids, id)
		}
		if err := s.MarkNodesChanged(ctx, ids); err != nil {
			return err
		}
	}
	return nil
}
