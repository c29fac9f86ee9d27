// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphmodel

import "sort"

// ResolutionStatus is the CallSite resolution state machine.
type ResolutionStatus string

const (
	ResolutionResolved   ResolutionStatus = "resolved"
	ResolutionUnresolved ResolutionStatus = "unresolved"
	ResolutionPending    ResolutionStatus = "pending"
)

// ParamKind distinguishes a Parameter's binding mode.
type ParamKind string

const (
	ParamPositional    ParamKind = "positional"
	ParamVarPositional ParamKind = "var_positional"
	ParamVarKeyword    ParamKind = "var_keyword"
)

// VariableScope is where a Variable lives.
type VariableScope string

const (
	ScopeModule   VariableScope = "module"
	ScopeClass    VariableScope = "class"
	ScopeFunction VariableScope = "function"
)

// TypeKind distinguishes the Type node's flavor.
type TypeKind string

const (
	TypeBuiltin  TypeKind = "builtin"
	TypeClass    TypeKind = "class"
	TypeGeneric  TypeKind = "generic"
	TypeUnion    TypeKind = "union"
	TypeCallable TypeKind = "callable"
)

// Visibility mirrors the underscore-prefix convention the target language
// uses to signal intent.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityDunder  Visibility = "dunder"
)

// VisibilityOf classifies a name by its leading-underscore convention.
func VisibilityOf(name string) Visibility {
	switch {
	case len(name) >= 4 && name[:2] == "__" && name[len(name)-2:] == "__":
		return VisibilityDunder
	case len(name) >= 1 && name[0] == '_':
		return VisibilityPrivate
	default:
		return VisibilityPublic
	}
}

// Common is the shared header every node variant carries, per §9's
// "tagged variant with a shared common header" note.
type Common struct {
	ID       string
	Name     string
	Location string // "<path>:<line>:<col>", empty for the rare node with no origin
	Label    Label
}

// Node is the sum type of the nine node variants. Exactly one of the
// typed payload fields is populated, selected by Common.Label; this keeps
// the arena (Graph.Nodes) homogeneous, and callers read the payload field
// that matches Label.
type Node struct {
	Common
	Module     *ModuleAttrs
	Class      *ClassAttrs
	Function   *FunctionAttrs
	Parameter  *ParameterAttrs
	Variable   *VariableAttrs
	CallSite   *CallSiteAttrs
	Type       *TypeAttrs
	Decorator  *DecoratorAttrs
	Unresolved *UnresolvedAttrs
}

type ModuleAttrs struct {
	QualifiedName string
	Path          string
	IsExternal    bool
	Docstring     string
}

type ClassAttrs struct {
	QualifiedName string
	Bases         []string
	Visibility    Visibility
	Decorators    []string
}

type FunctionAttrs struct {
	QualifiedName  string
	Signature      string
	ReturnType     string
	Visibility     Visibility
	IsAsync        bool
	IsGenerator    bool
	IsStaticMethod bool
	IsClassMethod  bool
	IsProperty     bool
	Decorators     []string
}

type ParameterAttrs struct {
	Name           string
	Position       int
	Kind           ParamKind
	TypeAnnotation string
	DefaultValue   string
	HasDefault     bool
}

type VariableAttrs struct {
	Name           string
	Scope          VariableScope
	TypeAnnotation string
	InferredTypes  []string // sorted, deduplicated for determinism (R1/R2)
}

// AddInferredType inserts t into InferredTypes, keeping the slice sorted
// and free of duplicates.
func (v *VariableAttrs) AddInferredType(t string) {
	if t == "" {
		return
	}
	idx := sort.SearchStrings(v.InferredTypes, t)
	if idx < len(v.InferredTypes) && v.InferredTypes[idx] == t {
		return
	}
	v.InferredTypes = append(v.InferredTypes, "")
	copy(v.InferredTypes[idx+1:], v.InferredTypes[idx:])
	v.InferredTypes[idx] = t
}

type CallSiteAttrs struct {
	CallerID         string
	ArgCount         int
	HasArgs          bool
	HasKwargs        bool
	Lineno           int
	ColOffset        int
	ArgTypes         []string
	ResolutionStatus ResolutionStatus
	UnresolvedCallee string // populated only when ResolutionStatus == unresolved
	CalleeText       string // raw dotted callee text captured by the extractor
}

type TypeAttrs struct {
	Name      string
	Module    string
	Kind      TypeKind
	BaseTypes []string
}

type DecoratorAttrs struct {
	Name       string
	TargetID   string
	TargetType Label // Function or Class
}

type UnresolvedAttrs struct {
	ReferenceKind string // e.g. "base_class", "callee", "name"
	SourceID      string
}

// Edge is a labeled directed relationship between two entities.
type Edge struct {
	From       string
	To         string
	Type       EdgeType
	Properties map[string]any
}
