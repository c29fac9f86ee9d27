// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package extractor

// scopeKind distinguishes the three kinds of scope frame: function, class
// and module. Per §4.2 step 3, name resolution probes the frames innermost
// first, then the file-wide index of every entity created so far, then a
// builtin whitelist.
type scopeKind int

const (
	scopeFunction scopeKind = iota
	scopeClass
	scopeModule
)

// scopeFrame is one level of the explicit scope stack (§9: "name
// resolution with scope stacks must be explicit rather than implicit on
// the call stack").
type scopeFrame struct {
	kind    scopeKind
	names   map[string]string // local name -> entity id
	ownerID string            // id of the Function/Class/Module owning this frame
}

// SymbolTable is the per-file name-resolution state the extractor builds
// while walking, and that the builder may still consult afterwards for
// step 4's "look up the callee name inside the current file's entity map".
type SymbolTable struct {
	stack     []*scopeFrame
	fileIndex map[string]string // every name -> id created in this file, last writer wins
	builtins  map[string]bool
}

// NewSymbolTable returns an empty table seeded with the module frame.
func NewSymbolTable(moduleID string) *SymbolTable {
	st := &SymbolTable{
		fileIndex: make(map[string]string),
		builtins:  defaultBuiltins(),
	}
	st.Push(scopeModule, moduleID)
	return st
}

// Push enters a new scope frame.
func (st *SymbolTable) Push(kind scopeKind, ownerID string) {
	st.stack = append(st.stack, &scopeFrame{kind: kind, names: make(map[string]string), ownerID: ownerID})
}

// Pop leaves the innermost scope frame.
func (st *SymbolTable) Pop() {
	if len(st.stack) == 0 {
		return
	}
	st.stack = st.stack[:len(st.stack)-1]
}

// Bind records name -> id in the innermost frame and in the file-wide
// index (§9: entity_map/name_index, scoped to one parse).
func (st *SymbolTable) Bind(name, id string) {
	if len(st.stack) > 0 {
		st.stack[len(st.stack)-1].names[name] = id
	}
	st.fileIndex[name] = id
}

// Resolve probes function scope, then class, then module, then the
// file-wide index, then the builtin whitelist, returning the bound id and
// whether it was a builtin (builtins have no id).
func (st *SymbolTable) Resolve(name string) (id string, isBuiltin bool, ok bool) {
	for i := len(st.stack) - 1; i >= 0; i-- {
		if v, found := st.stack[i].names[name]; found {
			return v, false, true
		}
	}
	if v, found := st.fileIndex[name]; found {
		return v, false, true
	}
	if st.builtins[name] {
		return "", true, true
	}
	return "", false, false
}

// CurrentOwner returns the id of the innermost scope's owner entity.
func (st *SymbolTable) CurrentOwner() string {
	if len(st.stack) == 0 {
		return ""
	}
	return st.stack[len(st.stack)-1].ownerID
}

// InFunction reports whether the innermost frame is a function body.
func (st *SymbolTable) InFunction() bool {
	return len(st.stack) > 0 && st.stack[len(st.stack)-1].kind == scopeFunction
}

func defaultBuiltins() map[string]bool {
	names := []string{
		"print", "len", "range", "str", "int", "float", "bool", "bytes",
		"list", "dict", "set", "tuple", "frozenset", "type", "object",
		"isinstance", "issubclass", "hasattr", "getattr", "setattr", "delattr",
		"open", "input", "super", "self", "cls", "None", "True", "False",
		"enumerate", "zip", "map", "filter", "sorted", "reversed", "sum",
		"min", "max", "abs", "round", "all", "any", "iter", "next", "repr",
		"format", "vars", "dir", "id", "hash", "callable", "staticmethod",
		"classmethod", "property", "Exception", "ValueError", "TypeError",
		"KeyError", "IndexError", "StopIteration", "RuntimeError",
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
