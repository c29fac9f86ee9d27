// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphmodel

// DatalogSchema returns the Datalog DDL that creates every table the store
// adapter needs, vertically partitioned the way the ambient codebase's own
// DatalogSchema() splits lightweight metadata columns from heavier text
// columns: a Module's docstring lives in its own `pg_module_text` table
// so metadata-only scans (search, listing, statistics) never pull it. No
// other label has a text table.
//
// Each relation uses `id: String` (or the composite edge key) as its
// Cozo key column so `:put` acts as MERGE-by-id, matching §4.3's
// upsert_node/upsert_edge contract.
func DatalogSchema() []string {
	return []string{
		`:create pg_module {
			id: String =>
			qualified_name: String,
			path: String,
			is_external: Bool,
			changed: Bool default false,
		}`,
		`:create pg_module_text { id: String => docstring: String }`,

		`:create pg_class {
			id: String =>
			qualified_name: String,
			name: String,
			location: String,
			bases: [String],
			visibility: String,
			decorators: [String],
			changed: Bool default false,
		}`,

		`:create pg_function {
			id: String =>
			qualified_name: String,
			name: String,
			location: String,
			signature: String,
			return_type: String,
			visibility: String,
			is_async: Bool,
			is_generator: Bool,
			is_staticmethod: Bool,
			is_classmethod: Bool,
			is_property: Bool,
			decorators: [String],
			changed: Bool default false,
		}`,

		`:create pg_parameter {
			id: String =>
			name: String,
			location: String,
			position: Int,
			kind: String,
			type_annotation: String,
			default_value: String,
			has_default: Bool,
			changed: Bool default false,
		}`,

		`:create pg_variable {
			id: String =>
			name: String,
			location: String,
			scope: String,
			type_annotation: String,
			inferred_types: [String],
			changed: Bool default false,
		}`,

		`:create pg_callsite {
			id: String =>
			caller_id: String,
			location: String,
			arg_count: Int,
			has_args: Bool,
			has_kwargs: Bool,
			lineno: Int,
			col_offset: Int,
			arg_types: [String],
			resolution_status: String,
			unresolved_callee: String,
			callee_text: String,
			changed: Bool default false,
		}`,

		`:create pg_type {
			id: String =>
			name: String,
			location: String,
			module: String,
			kind: String,
			base_types: [String],
			changed: Bool default false,
		}`,

		`:create pg_decorator {
			id: String =>
			name: String,
			location: String,
			target_id: String,
			target_type: String,
			changed: Bool default false,
		}`,

		`:create pg_unresolved {
			id: String =>
			location: String,
			reference_kind: String,
			source_id: String,
			changed: Bool default false,
		}`,

		// pg_file_hash tracks the last-indexed content hash per source path,
		// for the hash-based delta detector to diff against when no git
		// repository is available.
		`:create pg_file_hash { path: String => hash: String }`,

		// pg_meta is a small key-value table for driver bookkeeping (e.g.
		// the last-indexed git SHA), generalizing the single-purpose
		// last-indexed-SHA column the ambient codebase's embedded backend
		// carries.
		`:create pg_meta { key: String => value: String }`,

		// Edges: keyed on (from, to, type, ordinal) so a MERGE-by-natural-key
		// is idempotent. The store uses ordinal 0 unless an edge carries an
		// `_ordinal` property, so a later edge of the same type between the
		// same two nodes replaces the earlier one.
		`:create pg_edge {
			from_id: String,
			to_id: String,
			edge_type: String,
			ordinal: Int default 0,
			=>
			properties: Json default {},
		}`,
	}
}

// NodeTables enumerates the metadata tables (not the `_text` companions)
// for every label, keyed the same way Label constants are spelled.
var NodeTables = map[Label]string{
	LabelModule:     "pg_module",
	LabelClass:      "pg_class",
	LabelFunction:   "pg_function",
	LabelParameter:  "pg_parameter",
	LabelVariable:   "pg_variable",
	LabelCallSite:   "pg_callsite",
	LabelType:       "pg_type",
	LabelDecorator:  "pg_decorator",
	LabelUnresolved: "pg_unresolved",
}
