// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package extractor

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/ids"
)

// SimpleExtractor is a line-scanning alternative to TreeSitterExtractor
// behind the same Extractor interface. Nothing in this module switches to
// it automatically; a caller constructs it explicitly. It is deliberately
// conservative: it recognizes
// top-level and one-level-nested `def`/`class` statements by indentation
// and a handful of call-expression shapes, trading precision for an
// implementation with no parser dependency.
type SimpleExtractor struct{}

// NewSimpleExtractor returns a ready-to-use fallback extractor.
func NewSimpleExtractor() *SimpleExtractor { return &SimpleExtractor{} }

type simpleScope struct {
	id     string
	qname  string
	indent int
	label  graphmodel.Label
}

func (e *SimpleExtractor) ParseSource(ctx context.Context, text []byte, path string) (*ParseResult, error) {
	moduleName := QualifiedModuleName(path)
	moduleID := ids.NodeID("Module", moduleName)
	g := graphmodel.NewGraph()
	g.AddNode(&graphmodel.Node{
		Common: graphmodel.Common{ID: moduleID, Name: moduleName, Location: path, Label: graphmodel.LabelModule},
		Module: &graphmodel.ModuleAttrs{QualifiedName: moduleName, Path: path},
	})

	scope := NewSymbolTable(moduleID)
	stack := []simpleScope{{id: moduleID, qname: "", indent: -1, label: graphmodel.LabelModule}}

	lines := splitLines(text)
	for lineNo, raw := range lines {
		if ctx.Err() != nil {
			break
		}
		line := stripTrailingComment(raw)
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)

		for len(stack) > 1 && indent <= stack[len(stack)-1].indent {
			stack = stack[:len(stack)-1]
			scope.Pop()
		}
		owner := stack[len(stack)-1]

		switch {
		case strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from "):
			e.extractImportLine(g, moduleID, trimmed)
		case strings.HasPrefix(trimmed, "class "):
			id, qname := e.extractClassLine(g, scope, owner, trimmed, path, lineNo)
			stack = append(stack, simpleScope{id: id, qname: qname, indent: indent, label: graphmodel.LabelClass})
			scope.Push(scopeClass, id)
		case strings.HasPrefix(trimmed, "def ") || strings.HasPrefix(trimmed, "async def "):
			id, qname := e.extractFunctionLine(g, scope, owner, trimmed, path, lineNo)
			stack = append(stack, simpleScope{id: id, qname: qname, indent: indent, label: graphmodel.LabelFunction})
			scope.Push(scopeFunction, id)
		default:
			if owner.label == graphmodel.LabelFunction {
				e.extractCallsInLine(g, scope, owner.id, trimmed, path, lineNo)
			}
		}
	}

	return &ParseResult{Graph: g, Scope: scope}, nil
}

func splitLines(text []byte) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	return out
}

func stripTrailingComment(line string) string {
	inStr := byte(0)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inStr != 0 {
			if c == inStr && (i == 0 || line[i-1] != '\\') {
				inStr = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			inStr = c
			continue
		}
		if c == '#' {
			return line[:i]
		}
	}
	return line
}

func (e *SimpleExtractor) extractImportLine(g *graphmodel.Graph, moduleID string, trimmed string) {
	var moduleName string
	if strings.HasPrefix(trimmed, "from ") {
		rest := strings.TrimPrefix(trimmed, "from ")
		parts := strings.SplitN(rest, " import", 2)
		moduleName = strings.TrimSpace(parts[0])
	} else {
		rest := strings.TrimPrefix(trimmed, "import ")
		parts := strings.SplitN(rest, ",", 2)
		moduleName = strings.TrimSpace(strings.SplitN(strings.TrimSpace(parts[0]), " as ", 2)[0])
	}
	if moduleName == "" {
		return
	}
	extID := ids.NodeID("Module", moduleName, "external")
	if _, exists := g.Nodes[extID]; !exists {
		g.AddNode(&graphmodel.Node{
			Common: graphmodel.Common{ID: extID, Name: moduleName, Location: moduleName, Label: graphmodel.LabelModule},
			Module: &graphmodel.ModuleAttrs{QualifiedName: moduleName, Path: moduleName, IsExternal: true},
		})
	}
	g.AddEdge(graphmodel.Edge{From: moduleID, To: extID, Type: graphmodel.EdgeImports,
		Properties: map[string]any{"import_name": moduleName}})
}

func (e *SimpleExtractor) extractClassLine(g *graphmodel.Graph, scope *SymbolTable, owner simpleScope, trimmed, path string, lineNo int) (string, string) {
	rest := strings.TrimPrefix(trimmed, "class ")
	name, basesText := splitNameAndParens(rest)
	qname := qualify(owner.qname, name)
	classID := ids.NodeID("Class", qname)

	var bases []string
	for _, b := range strings.Split(basesText, ",") {
		b = strings.TrimSpace(b)
		if b != "" && !strings.Contains(b, "=") {
			bases = append(bases, b)
		}
	}

	g.AddNode(&graphmodel.Node{
		Common: graphmodel.Common{ID: classID, Name: name, Location: ids.FormatLocation(path, lineNo+1, 0), Label: graphmodel.LabelClass},
		Class:  &graphmodel.ClassAttrs{QualifiedName: qname, Bases: bases, Visibility: graphmodel.VisibilityOf(name)},
	})
	g.AddEdge(graphmodel.Edge{From: owner.id, To: classID, Type: graphmodel.EdgeDeclares})
	scope.Bind(name, classID)

	for _, base := range bases {
		if refID, isBuiltin, ok := scope.Resolve(baseName(base)); ok && !isBuiltin {
			g.AddEdge(graphmodel.Edge{From: classID, To: refID, Type: graphmodel.EdgeInherits})
		} else {
			unresID := ids.NodeID("Unresolved", "base_class", classID, base)
			g.AddNode(&graphmodel.Node{
				Common:     graphmodel.Common{ID: unresID, Name: base, Location: ids.FormatLocation(path, lineNo+1, 0), Label: graphmodel.LabelUnresolved},
				Unresolved: &graphmodel.UnresolvedAttrs{ReferenceKind: "base_class", SourceID: classID},
			})
			g.AddEdge(graphmodel.Edge{From: classID, To: unresID, Type: graphmodel.EdgeUnresolvedReference})
		}
	}
	return classID, qname
}

func (e *SimpleExtractor) extractFunctionLine(g *graphmodel.Graph, scope *SymbolTable, owner simpleScope, trimmed, path string, lineNo int) (string, string) {
	rest := strings.TrimPrefix(strings.TrimPrefix(trimmed, "async "), "def ")
	name, paramsText := splitNameAndParens(rest)
	returnType := ""
	if idx := strings.Index(trimmed, "->"); idx >= 0 {
		rt := trimmed[idx+2:]
		rt = strings.TrimSuffix(strings.TrimSpace(rt), ":")
		returnType = rt
	}
	qname := qualify(owner.qname, name)
	fnID := ids.NodeID("Function", qname)
	signature := "def " + name + "(" + paramsText + ")"
	if returnType != "" {
		signature += " -> " + returnType
	}

	g.AddNode(&graphmodel.Node{
		Common: graphmodel.Common{ID: fnID, Name: name, Location: ids.FormatLocation(path, lineNo+1, 0), Label: graphmodel.LabelFunction},
		Function: &graphmodel.FunctionAttrs{
			QualifiedName: qname, Signature: signature, ReturnType: returnType,
			Visibility: graphmodel.VisibilityOf(name), IsAsync: strings.HasPrefix(trimmed, "async "),
		},
	})
	g.AddEdge(graphmodel.Edge{From: owner.id, To: fnID, Type: graphmodel.EdgeDeclares})
	scope.Bind(name, fnID)

	pos := 0
	for _, p := range strings.Split(paramsText, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kind := graphmodel.ParamPositional
		switch {
		case strings.HasPrefix(p, "**"):
			kind = graphmodel.ParamVarKeyword
			p = strings.TrimPrefix(p, "**")
		case strings.HasPrefix(p, "*"):
			kind = graphmodel.ParamVarPositional
			p = strings.TrimPrefix(p, "*")
		}
		name, annotation, def, hasDefault := splitParam(p)
		if name == "" {
			continue
		}
		paramID := ids.NodeID("Parameter", fnID, name, itoaSimple(pos))
		g.AddNode(&graphmodel.Node{
			Common: graphmodel.Common{ID: paramID, Name: name, Location: ids.FormatLocation(path, lineNo+1, 0), Label: graphmodel.LabelParameter},
			Parameter: &graphmodel.ParameterAttrs{
				Name: name, Position: pos, Kind: kind, TypeAnnotation: annotation,
				DefaultValue: def, HasDefault: hasDefault,
			},
		})
		g.AddEdge(graphmodel.Edge{From: fnID, To: paramID, Type: graphmodel.EdgeHasParameter,
			Properties: map[string]any{"position": pos}})
		scope.Bind(name, paramID)
		pos++
	}

	return fnID, qname
}

func splitNameAndParens(rest string) (name, inner string) {
	rest = strings.TrimSpace(rest)
	open := strings.Index(rest, "(")
	if open < 0 {
		return strings.TrimSuffix(rest, ":"), ""
	}
	name = strings.TrimSpace(rest[:open])
	close := strings.LastIndex(rest, ")")
	if close < 0 || close < open {
		return name, ""
	}
	return name, rest[open+1 : close]
}

func splitParam(p string) (name, annotation, def string, hasDefault bool) {
	if idx := strings.Index(p, "="); idx >= 0 {
		def = strings.TrimSpace(p[idx+1:])
		hasDefault = true
		p = p[:idx]
	}
	if idx := strings.Index(p, ":"); idx >= 0 {
		annotation = strings.TrimSpace(p[idx+1:])
		p = p[:idx]
	}
	return strings.TrimSpace(p), annotation, def, hasDefault
}

func (e *SimpleExtractor) extractCallsInLine(g *graphmodel.Graph, scope *SymbolTable, ownerID, trimmed, path string, lineNo int) {
	names := findCalleeNames(trimmed)
	for i, callee := range names {
		callID := ids.NodeID("CallSite", ownerID, callee, itoaSimple(lineNo+1), itoaSimple(i))
		g.AddNode(&graphmodel.Node{
			Common: graphmodel.Common{ID: callID, Name: callee, Location: ids.FormatLocation(path, lineNo+1, 0), Label: graphmodel.LabelCallSite},
			CallSite: &graphmodel.CallSiteAttrs{
				CallerID: ownerID, Lineno: lineNo + 1,
				ResolutionStatus: graphmodel.ResolutionPending, CalleeText: callee,
			},
		})
		g.AddEdge(graphmodel.Edge{From: ownerID, To: callID, Type: graphmodel.EdgeHasCallSite})
		g.AddEdge(graphmodel.Edge{From: callID, To: "", Type: graphmodel.EdgeCallsUnresolved,
			Properties: map[string]any{"callee_text": callee}})
	}
}

// findCalleeNames does a best-effort scan for `<name>(` occurrences,
// rejecting Python keywords and a handful of common control constructs.
func findCalleeNames(line string) []string {
	var out []string
	i := 0
	for i < len(line) {
		c := line[i]
		if !isIdentStart(c) {
			i++
			continue
		}
		start := i
		for i < len(line) && isIdentPart(line[i]) {
			i++
		}
		// allow dotted attribute access: name.attr(
		end := i
		for i < len(line) && line[i] == '.' {
			i++
			for i < len(line) && isIdentPart(line[i]) {
				i++
			}
			end = i
		}
		name := line[start:end]
		j := i
		for j < len(line) && (line[j] == ' ' || line[j] == '\t') {
			j++
		}
		if j < len(line) && line[j] == '(' && !simplePythonKeyword[name] {
			out = append(out, name)
			i = j + 1
			continue
		}
	}
	return out
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func itoaSimple(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

var simplePythonKeyword = map[string]bool{
	"if": true, "elif": true, "while": true, "for": true, "with": true,
	"return": true, "yield": true, "raise": true, "except": true,
	"def": true, "class": true, "lambda": true, "not": true, "and": true,
	"or": true, "in": true, "is": true,
}
