// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/kraklabs/pygraph/pkg/graphmodel"
	"github.com/kraklabs/pygraph/pkg/ids"
)

// TreeSitterExtractor is the primary, AST-accurate extractor, grounded on
// the per-language sync.Pool pattern used elsewhere in this codebase to
// avoid allocating a fresh tree-sitter parser per file.
type TreeSitterExtractor struct {
	logger *slog.Logger
	pool   sync.Pool
	once   sync.Once
}

// NewTreeSitterExtractor constructs an extractor; logger may be nil.
func NewTreeSitterExtractor(logger *slog.Logger) *TreeSitterExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeSitterExtractor{logger: logger}
}

func (e *TreeSitterExtractor) initPool() {
	e.once.Do(func() {
		e.pool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(python.GetLanguage())
			return p
		}
	})
}

// walkState carries the per-file mutable extraction context down the
// recursive walk: the graph being built, the symbol table, and a few
// counters. Kept as a struct (not package globals) per §9's restriction on
// global mutable state.
type walkState struct {
	content     []byte
	path        string
	moduleID    string
	moduleName  string
	graph       *graphmodel.Graph
	scope       *SymbolTable
	lambdaCount int
	logger      *slog.Logger
}

func (e *TreeSitterExtractor) ParseSource(ctx context.Context, text []byte, path string) (*ParseResult, error) {
	e.initPool()

	moduleName := QualifiedModuleName(path)
	moduleID := ids.NodeID("Module", moduleName)
	g := graphmodel.NewGraph()

	parserObj := e.pool.Get()
	parser, ok := parserObj.(*sitter.Parser)
	if !ok {
		return nil, fmt.Errorf("extractor: unexpected parser pool type")
	}
	defer e.pool.Put(parser)

	tree, err := parser.ParseCtx(ctx, nil, text)
	if err != nil {
		e.logger.Warn("extractor.treesitter.parse_error", "path", path, "err", err)
		g.AddNode(&graphmodel.Node{
			Common: graphmodel.Common{ID: moduleID, Name: moduleName, Location: path, Label: graphmodel.LabelModule},
			Module: &graphmodel.ModuleAttrs{QualifiedName: moduleName, Path: path},
		})
		return &ParseResult{Graph: g, Scope: NewSymbolTable(moduleID), Errors: []error{&ExtractorError{Path: path, Err: err}}}, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		e.logger.Warn("extractor.treesitter.syntax_errors", "path", path)
		g.AddNode(&graphmodel.Node{
			Common: graphmodel.Common{ID: moduleID, Name: moduleName, Location: path, Label: graphmodel.LabelModule},
			Module: &graphmodel.ModuleAttrs{QualifiedName: moduleName, Path: path},
		})
		return &ParseResult{Graph: g, Scope: NewSymbolTable(moduleID), Errors: []error{&ExtractorError{Path: path, Err: fmt.Errorf("syntax error")}}}, nil
	}

	st := &walkState{
		content:    text,
		path:       path,
		moduleID:   moduleID,
		moduleName: moduleName,
		graph:      g,
		scope:      NewSymbolTable(moduleID),
		logger:     e.logger,
	}

	g.AddNode(&graphmodel.Node{
		Common: graphmodel.Common{ID: moduleID, Name: moduleName, Location: path, Label: graphmodel.LabelModule},
		Module: &graphmodel.ModuleAttrs{QualifiedName: moduleName, Path: path, Docstring: moduleDocstring(root, text)},
	})

	st.walkStatements(root, moduleID, moduleName, scopeModule)
	st.linkTypes()

	return &ParseResult{Graph: g, Scope: st.scope}, nil
}

func moduleDocstring(root *sitter.Node, content []byte) string {
	if root.ChildCount() == 0 {
		return ""
	}
	first := root.Child(0)
	if first.Type() != "expression_statement" || first.ChildCount() == 0 {
		return ""
	}
	str := first.Child(0)
	if str.Type() != "string" {
		return ""
	}
	return strings.Trim(string(content[str.StartByte():str.EndByte()]), "\"' \t\n")
}

func text(content []byte, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

func loc(path string, n *sitter.Node) string {
	return ids.FormatLocation(path, int(n.StartPoint().Row)+1, int(n.StartPoint().Column))
}

// walkStatements walks the children of a block/module node, dispatching
// definitions, assignments, imports, and (recursively) call expressions,
// per §4.2 step 2.
func (st *walkState) walkStatements(node *sitter.Node, ownerID, ownerQName string, kind scopeKind) {
	if node == nil {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		st.walkStatement(child, ownerID, ownerQName, kind)
	}
}

func (st *walkState) walkStatement(n *sitter.Node, ownerID, ownerQName string, kind scopeKind) {
	switch n.Type() {
	case "class_definition":
		st.extractClass(n, ownerID, ownerQName)
	case "function_definition":
		st.extractFunction(n, ownerID, ownerQName, kind)
	case "decorated_definition":
		st.extractDecorated(n, ownerID, ownerQName, kind)
	case "import_statement", "import_from_statement":
		st.extractImport(n)
	case "expression_statement":
		st.walkExpressionStatement(n, ownerID)
	case "for_statement":
		st.extractFor(n, ownerID)
		st.walkCallsIn(n, ownerID)
	case "with_statement":
		st.extractWith(n, ownerID)
		st.walkCallsIn(n, ownerID)
	case "return_statement", "if_statement", "while_statement", "try_statement", "block":
		st.walkStatements(n, ownerID, ownerQName, kind)
		st.walkCallsIn(n, ownerID)
	default:
		st.walkCallsIn(n, ownerID)
	}
}

func (st *walkState) extractDecorated(n *sitter.Node, ownerID, ownerQName string, kind scopeKind) {
	var decoratorNames []string
	var defNode *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "decorator" {
			name := text(st.content, c)
			name = strings.TrimPrefix(strings.TrimSpace(name), "@")
			if idx := strings.Index(name, "("); idx >= 0 {
				name = name[:idx]
			}
			decoratorNames = append(decoratorNames, strings.TrimSpace(name))
		}
		if c.Type() == "function_definition" || c.Type() == "class_definition" {
			defNode = c
		}
	}
	if defNode == nil {
		return
	}
	var targetID string
	var targetLabel graphmodel.Label
	if defNode.Type() == "function_definition" {
		targetID = st.extractFunction(defNode, ownerID, ownerQName, kind)
		targetLabel = graphmodel.LabelFunction
	} else {
		targetID = st.extractClass(defNode, ownerID, ownerQName)
		targetLabel = graphmodel.LabelClass
	}
	if targetID == "" {
		return
	}
	if node, ok := st.graph.Nodes[targetID]; ok {
		switch targetLabel {
		case graphmodel.LabelFunction:
			node.Function.Decorators = decoratorNames
			node.Function.IsStaticMethod = containsAny(decoratorNames, "staticmethod")
			node.Function.IsClassMethod = containsAny(decoratorNames, "classmethod")
			node.Function.IsProperty = containsAny(decoratorNames, "property")
		case graphmodel.LabelClass:
			node.Class.Decorators = decoratorNames
		}
	}
	for _, name := range decoratorNames {
		decID := ids.NodeID("Decorator", targetID, name)
		st.graph.AddNode(&graphmodel.Node{
			Common:    graphmodel.Common{ID: decID, Name: name, Location: loc(st.path, n), Label: graphmodel.LabelDecorator},
			Decorator: &graphmodel.DecoratorAttrs{Name: name, TargetID: targetID, TargetType: targetLabel},
		})
		st.graph.AddEdge(graphmodel.Edge{From: targetID, To: decID, Type: graphmodel.EdgeHasDecorator})
		st.graph.AddEdge(graphmodel.Edge{From: decID, To: targetID, Type: graphmodel.EdgeDecorates})
		if refID, isBuiltin, ok := st.scope.Resolve(baseName(name)); ok && !isBuiltin {
			st.graph.AddEdge(graphmodel.Edge{From: decID, To: refID, Type: graphmodel.EdgeReferences,
				Properties: map[string]any{"access_type": "decorator"}})
		}
	}
}

func containsAny(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func baseName(dotted string) string {
	if idx := strings.LastIndex(dotted, "."); idx >= 0 {
		return dotted[idx+1:]
	}
	return dotted
}

// extractClass creates a Class node, its INHERITS edges, and descends into
// its body with a class-scope frame. Returns the new node's id.
func (st *walkState) extractClass(n *sitter.Node, ownerID, ownerQName string) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	name := text(st.content, nameNode)
	qname := qualify(ownerQName, name)
	classID := ids.NodeID("Class", qname)

	var bases []string
	if argList := n.ChildByFieldName("superclasses"); argList != nil {
		for i := 0; i < int(argList.ChildCount()); i++ {
			c := argList.Child(i)
			if c.Type() == "identifier" || c.Type() == "attribute" {
				bases = append(bases, text(st.content, c))
			}
		}
	}

	st.graph.AddNode(&graphmodel.Node{
		Common: graphmodel.Common{ID: classID, Name: name, Location: loc(st.path, n), Label: graphmodel.LabelClass},
		Class: &graphmodel.ClassAttrs{
			QualifiedName: qname,
			Bases:         bases,
			Visibility:    graphmodel.VisibilityOf(name),
		},
	})
	st.graph.AddEdge(graphmodel.Edge{From: ownerID, To: classID, Type: graphmodel.EdgeDeclares})
	st.scope.Bind(name, classID)

	for _, base := range bases {
		if refID, isBuiltin, ok := st.scope.Resolve(baseName(base)); ok && !isBuiltin {
			st.graph.AddEdge(graphmodel.Edge{From: classID, To: refID, Type: graphmodel.EdgeInherits})
		} else {
			unresID := ids.NodeID("Unresolved", "base_class", classID, base)
			st.graph.AddNode(&graphmodel.Node{
				Common:     graphmodel.Common{ID: unresID, Name: base, Location: loc(st.path, n), Label: graphmodel.LabelUnresolved},
				Unresolved: &graphmodel.UnresolvedAttrs{ReferenceKind: "base_class", SourceID: classID},
			})
			st.graph.AddEdge(graphmodel.Edge{From: classID, To: unresID, Type: graphmodel.EdgeUnresolvedReference})
		}
	}

	st.scope.Push(scopeClass, classID)
	body := n.ChildByFieldName("body")
	st.walkStatements(body, classID, qname, scopeClass)
	st.scope.Pop()

	return classID
}

// extractFunction creates a Function node plus its Parameter children,
// then descends into the body with a function-scope frame. Returns the
// new node's id.
func (st *walkState) extractFunction(n *sitter.Node, ownerID, ownerQName string, ownerKind scopeKind) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	name := text(st.content, nameNode)
	qname := qualify(ownerQName, name)
	fnID := ids.NodeID("Function", qname)

	isAsync := false
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "async" {
			isAsync = true
		}
	}

	paramsNode := n.ChildByFieldName("parameters")
	returnNode := n.ChildByFieldName("return_type")
	returnType := text(st.content, returnNode)

	signature := "def " + name + text(st.content, paramsNode)
	if returnType != "" {
		signature += " -> " + returnType
	}

	isGenerator := bodyContainsYield(n)

	fn := &graphmodel.FunctionAttrs{
		QualifiedName: qname,
		Signature:     signature,
		ReturnType:    returnType,
		Visibility:    graphmodel.VisibilityOf(name),
		IsAsync:       isAsync,
		IsGenerator:   isGenerator,
	}
	st.graph.AddNode(&graphmodel.Node{
		Common:   graphmodel.Common{ID: fnID, Name: name, Location: loc(st.path, n), Label: graphmodel.LabelFunction},
		Function: fn,
	})
	st.graph.AddEdge(graphmodel.Edge{From: ownerID, To: fnID, Type: graphmodel.EdgeDeclares})
	st.scope.Bind(name, fnID)

	st.scope.Push(scopeFunction, fnID)
	st.extractParameters(paramsNode, fnID, ownerKind == scopeClass)
	if returnType != "" {
		st.graph.AddEdge(graphmodel.Edge{From: fnID, To: "", Type: graphmodel.EdgeReturnsType,
			Properties: map[string]any{"pending_type": normalizeAnnotation(returnType)}})
	}

	body := n.ChildByFieldName("body")
	st.walkStatements(body, fnID, qname, scopeFunction)
	st.scope.Pop()

	return fnID
}

func bodyContainsYield(n *sitter.Node) bool {
	found := false
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil || found {
			return
		}
		if node.Type() == "yield" {
			found = true
			return
		}
		if node.Type() == "function_definition" || node.Type() == "lambda" {
			return // don't descend into nested functions
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	body := n.ChildByFieldName("body")
	walk(body)
	return found
}

// extractParameters creates Parameter nodes with contiguous 0..n-1
// positions, dropping an implicit self/cls only from the position
// sequence's semantics as described by the builder's arity rule (the
// Parameter node itself is still emitted so HAS_PARAMETER/position
// invariants hold over the full parameter list).
func (st *walkState) extractParameters(paramsNode *sitter.Node, fnID string, isMethod bool) {
	if paramsNode == nil {
		return
	}
	pos := 0
	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		c := paramsNode.Child(i)
		var name, annotation, def string
		kind := graphmodel.ParamPositional
		hasDefault := false

		switch c.Type() {
		case "identifier":
			name = text(st.content, c)
		case "typed_parameter":
			if nn := c.Child(0); nn != nil {
				name = text(st.content, nn)
			}
			if tn := c.ChildByFieldName("type"); tn != nil {
				annotation = text(st.content, tn)
			}
		case "default_parameter":
			if nn := c.ChildByFieldName("name"); nn != nil {
				name = text(st.content, nn)
			}
			if vn := c.ChildByFieldName("value"); vn != nil {
				def = text(st.content, vn)
				hasDefault = true
			}
		case "typed_default_parameter":
			if nn := c.ChildByFieldName("name"); nn != nil {
				name = text(st.content, nn)
			}
			if tn := c.ChildByFieldName("type"); tn != nil {
				annotation = text(st.content, tn)
			}
			if vn := c.ChildByFieldName("value"); vn != nil {
				def = text(st.content, vn)
				hasDefault = true
			}
		case "list_splat_pattern":
			kind = graphmodel.ParamVarPositional
			if nn := c.Child(1); nn != nil {
				name = text(st.content, nn)
			}
		case "dictionary_splat_pattern":
			kind = graphmodel.ParamVarKeyword
			if nn := c.Child(1); nn != nil {
				name = text(st.content, nn)
			}
		default:
			continue
		}
		if name == "" {
			continue
		}

		paramID := ids.NodeID("Parameter", fnID, name, fmt.Sprintf("%d", pos))
		st.graph.AddNode(&graphmodel.Node{
			Common: graphmodel.Common{ID: paramID, Name: name, Location: loc(st.path, c), Label: graphmodel.LabelParameter},
			Parameter: &graphmodel.ParameterAttrs{
				Name: name, Position: pos, Kind: kind,
				TypeAnnotation: normalizeAnnotation(annotation),
				DefaultValue:   def, HasDefault: hasDefault,
			},
		})
		st.graph.AddEdge(graphmodel.Edge{From: fnID, To: paramID, Type: graphmodel.EdgeHasParameter,
			Properties: map[string]any{"position": pos}})
		st.scope.Bind(name, paramID)
		if annotation != "" {
			st.graph.AddEdge(graphmodel.Edge{From: paramID, To: "", Type: graphmodel.EdgeHasType,
				Properties: map[string]any{"pending_type": normalizeAnnotation(annotation)}})
		}
		pos++
	}
}

func normalizeAnnotation(a string) string {
	return strings.TrimSpace(strings.Trim(a, "\"'"))
}

func qualify(owner, name string) string {
	if owner == "" {
		return name
	}
	return owner + "." + name
}

// extractImport creates/reuses an external Module placeholder and emits
// an IMPORTS edge, per §4.2 step 6.
func (st *walkState) extractImport(n *sitter.Node) {
	raw := text(st.content, n)
	switch n.Type() {
	case "import_statement":
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() == "dotted_name" || c.Type() == "aliased_import" {
				name, alias := parseImportTarget(st.content, c)
				st.addImportEdge(name, alias)
			}
		}
	case "import_from_statement":
		moduleNode := n.ChildByFieldName("module_name")
		moduleName := text(st.content, moduleNode)
		st.addImportEdge(moduleName, "")
	default:
		_ = raw
	}
}

func parseImportTarget(content []byte, n *sitter.Node) (name, alias string) {
	if n.Type() == "aliased_import" {
		nameNode := n.ChildByFieldName("name")
		aliasNode := n.ChildByFieldName("alias")
		return text(content, nameNode), text(content, aliasNode)
	}
	return text(content, n), ""
}

func (st *walkState) addImportEdge(moduleName, alias string) {
	if moduleName == "" {
		return
	}
	extID := ids.NodeID("Module", moduleName, "external")
	if _, exists := st.graph.Nodes[extID]; !exists {
		st.graph.AddNode(&graphmodel.Node{
			Common: graphmodel.Common{ID: extID, Name: moduleName, Location: moduleName, Label: graphmodel.LabelModule},
			Module: &graphmodel.ModuleAttrs{QualifiedName: moduleName, Path: moduleName, IsExternal: true},
		})
	}
	props := map[string]any{"import_name": moduleName}
	if alias != "" {
		props["alias"] = alias
	}
	st.graph.AddEdge(graphmodel.Edge{From: st.moduleID, To: extID, Type: graphmodel.EdgeImports, Properties: props})
}

// walkExpressionStatement dispatches assignments and bare call
// expressions (§4.2 step 4/5).
func (st *walkState) walkExpressionStatement(n *sitter.Node, ownerID string) {
	if n.ChildCount() == 0 {
		return
	}
	inner := n.Child(0)
	switch inner.Type() {
	case "assignment":
		st.extractAssignment(inner, ownerID)
	default:
		st.walkCallsIn(inner, ownerID)
	}
}

func (st *walkState) extractAssignment(n *sitter.Node, ownerID string) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	typeNode := n.ChildByFieldName("type")
	if left == nil || left.Type() != "identifier" {
		if right != nil {
			st.walkCallsIn(right, ownerID)
		}
		return
	}
	name := text(st.content, left)

	scopeKindVal := graphmodel.ScopeFunction
	if !st.scope.InFunction() {
		scopeKindVal = graphmodel.ScopeModule
	}

	varID, existed, _ := st.scope.Resolve(name)
	var attrs *graphmodel.VariableAttrs
	if existed {
		if node, ok := st.graph.Nodes[varID]; ok && node.Variable != nil {
			attrs = node.Variable
		}
	}
	if attrs == nil {
		varID = ids.NodeID("Variable", ownerID, name)
		attrs = &graphmodel.VariableAttrs{Name: name, Scope: scopeKindVal}
		st.graph.AddNode(&graphmodel.Node{
			Common:   graphmodel.Common{ID: varID, Name: name, Location: loc(st.path, n), Label: graphmodel.LabelVariable},
			Variable: attrs,
		})
		st.scope.Bind(name, varID)
	}
	if typeNode != nil {
		attrs.TypeAnnotation = normalizeAnnotation(text(st.content, typeNode))
	}

	if st.scope.InFunction() {
		st.graph.AddEdge(graphmodel.Edge{From: ownerID, To: varID, Type: graphmodel.EdgeAssignsTo})
	} else if !existed {
		st.graph.AddEdge(graphmodel.Edge{From: ownerID, To: varID, Type: graphmodel.EdgeDeclares})
	}

	if right != nil {
		if t := st.inferExprType(right); t != "" {
			attrs.AddInferredType(t)
			st.graph.AddEdge(graphmodel.Edge{From: varID, To: "", Type: graphmodel.EdgeAssignedType,
				Properties: map[string]any{"pending_type": t}})
		}
		st.walkCallsIn(right, ownerID)
	}
}

// inferExprType applies the best-effort local type inference rules of
// §4.2 to a single expression node.
func (st *walkState) inferExprType(n *sitter.Node) string {
	switch n.Type() {
	case "integer":
		return "int"
	case "float":
		return "float"
	case "true", "false":
		return "bool"
	case "none":
		return "NoneType"
	case "string", "concatenated_string":
		return "str"
	case "list":
		return elemHomogeneous(st, n, "List")
	case "set":
		return elemHomogeneous(st, n, "Set")
	case "tuple":
		return elemHomogeneous(st, n, "Tuple")
	case "dictionary":
		return "Dict"
	case "identifier":
		name := text(st.content, n)
		if id, isBuiltin, ok := st.scope.Resolve(name); ok && !isBuiltin {
			if node := st.graph.Nodes[id]; node != nil && node.Variable != nil {
				if node.Variable.TypeAnnotation != "" {
					return node.Variable.TypeAnnotation
				}
				if len(node.Variable.InferredTypes) > 0 {
					return node.Variable.InferredTypes[len(node.Variable.InferredTypes)-1]
				}
			}
		}
		return ""
	case "call":
		return st.inferCallType(n)
	case "binary_operator":
		left := st.inferExprType(n.ChildByFieldName("left"))
		right := st.inferExprType(n.ChildByFieldName("right"))
		return PromoteNumeric(left, right)
	default:
		return ""
	}
}

func elemHomogeneous(st *walkState, n *sitter.Node, kind string) string {
	var elems []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "," || c.Type() == "[" || c.Type() == "]" || c.Type() == "(" || c.Type() == ")" || c.Type() == "{" || c.Type() == "}" {
			continue
		}
		elems = append(elems, st.inferExprType(c))
	}
	return HomogeneousContainerType(kind, elems)
}

func (st *walkState) inferCallType(n *sitter.Node) string {
	fnNode := n.ChildByFieldName("function")
	if fnNode == nil {
		return ""
	}
	name := calleeText(st.content, fnNode)
	simple := baseName(name)
	if t := BuiltinConstructorReturnType(simple); t != "" {
		return t
	}
	if id, isBuiltin, ok := st.scope.Resolve(simple); ok && !isBuiltin {
		if node := st.graph.Nodes[id]; node != nil {
			if node.Label == graphmodel.LabelClass {
				return node.Name
			}
			if node.Label == graphmodel.LabelFunction && node.Function.ReturnType != "" {
				return normalizeAnnotation(node.Function.ReturnType)
			}
		}
	}
	return ""
}

func (st *walkState) extractFor(n *sitter.Node, ownerID string) {
	left := n.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := text(st.content, left)
	varID := ids.NodeID("Variable", ownerID, name)
	st.graph.AddNode(&graphmodel.Node{
		Common:   graphmodel.Common{ID: varID, Name: name, Location: loc(st.path, n), Label: graphmodel.LabelVariable},
		Variable: &graphmodel.VariableAttrs{Name: name, Scope: graphmodel.ScopeFunction},
	})
	st.scope.Bind(name, varID)
	st.graph.AddEdge(graphmodel.Edge{From: ownerID, To: varID, Type: graphmodel.EdgeAssignsTo})
}

func (st *walkState) extractWith(n *sitter.Node, ownerID string) {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "with_item" {
			if alias := c.ChildByFieldName("alias"); alias != nil {
				name := text(st.content, alias)
				varID := ids.NodeID("Variable", ownerID, name)
				st.graph.AddNode(&graphmodel.Node{
					Common:   graphmodel.Common{ID: varID, Name: name, Location: loc(st.path, n), Label: graphmodel.LabelVariable},
					Variable: &graphmodel.VariableAttrs{Name: name, Scope: graphmodel.ScopeFunction},
				})
				st.scope.Bind(name, varID)
				st.graph.AddEdge(graphmodel.Edge{From: ownerID, To: varID, Type: graphmodel.EdgeAssignsTo})
			}
		}
	}
}

// walkCallsIn recursively finds call expressions under n and emits a
// CallSite + HAS_CALLSITE + a CALLS_UNRESOLVED placeholder edge per call,
// per §4.2 step 5. It does not descend into nested function/class
// definitions — those are handled by their own walk when visited.
func (st *walkState) walkCallsIn(n *sitter.Node, ownerID string) {
	if n == nil {
		return
	}
	if n.Type() == "function_definition" || n.Type() == "class_definition" || n.Type() == "lambda" {
		return
	}
	if n.Type() == "call" {
		st.extractCall(n, ownerID)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		st.walkCallsIn(n.Child(i), ownerID)
	}
}

func (st *walkState) extractCall(n *sitter.Node, ownerID string) {
	fnNode := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")
	if fnNode == nil {
		return
	}
	calleeText := calleeText(st.content, fnNode)
	if calleeText == "" {
		return
	}

	argCount := 0
	hasArgs, hasKwargs := false, false
	var argTypes []string
	if argsNode != nil {
		for i := 0; i < int(argsNode.ChildCount()); i++ {
			c := argsNode.Child(i)
			switch c.Type() {
			case "(", ")", ",":
				continue
			case "list_splat":
				hasArgs = true
			case "dictionary_splat":
				hasKwargs = true
			case "keyword_argument":
				hasKwargs = true
				argCount++
			default:
				argCount++
				argTypes = append(argTypes, st.inferExprType(c))
			}
		}
	}

	line := int(n.StartPoint().Row) + 1
	col := int(n.StartPoint().Column)
	callID := ids.NodeID("CallSite", ownerID, calleeText, fmt.Sprintf("%d", line), fmt.Sprintf("%d", col))

	cs := &graphmodel.CallSiteAttrs{
		CallerID: ownerID, ArgCount: argCount, HasArgs: hasArgs, HasKwargs: hasKwargs,
		Lineno: line, ColOffset: col, ArgTypes: argTypes,
		ResolutionStatus: graphmodel.ResolutionPending, CalleeText: calleeText,
	}
	st.graph.AddNode(&graphmodel.Node{
		Common:   graphmodel.Common{ID: callID, Name: calleeText, Location: loc(st.path, n), Label: graphmodel.LabelCallSite},
		CallSite: cs,
	})
	st.graph.AddEdge(graphmodel.Edge{From: ownerID, To: callID, Type: graphmodel.EdgeHasCallSite})
	st.graph.AddEdge(graphmodel.Edge{From: callID, To: "", Type: graphmodel.EdgeCallsUnresolved,
		Properties: map[string]any{"callee_text": calleeText}})

	for i := 0; i < int(n.ChildCount()); i++ {
		st.walkCallsIn(n.Child(i), ownerID)
	}
}

func calleeText(content []byte, n *sitter.Node) string {
	switch n.Type() {
	case "identifier":
		return text(content, n)
	case "attribute":
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		return text(content, obj) + "." + text(content, attr)
	default:
		return text(content, n)
	}
}

// linkTypes performs §4.2 step 8: it walks every "pending_type" edge
// placeholder left by the earlier passes and interns a concrete Type node,
// rewriting the edge's target.
func (st *walkState) linkTypes() {
	typeCache := make(map[string]string)
	internType := func(annotation string) string {
		if id, ok := typeCache[annotation]; ok {
			return id
		}
		kind := classifyTypeAnnotation(annotation)
		tid := ids.NodeID("Type", st.moduleName, annotation)
		if _, exists := st.graph.Nodes[tid]; !exists {
			st.graph.AddNode(&graphmodel.Node{
				Common: graphmodel.Common{ID: tid, Name: annotation, Location: "", Label: graphmodel.LabelType},
				Type:   &graphmodel.TypeAttrs{Name: annotation, Module: st.moduleName, Kind: kind},
			})
		}
		typeCache[annotation] = tid
		return tid
	}

	var resolved []graphmodel.Edge
	for _, e := range st.graph.Edges {
		pending, hasPending := e.Properties["pending_type"]
		if !hasPending {
			resolved = append(resolved, e)
			continue
		}
		annotation, _ := pending.(string)
		if annotation == "" {
			continue
		}
		tid := internType(annotation)
		e.To = tid
		delete(e.Properties, "pending_type")
		resolved = append(resolved, e)
	}
	st.graph.Edges = resolved
}

func classifyTypeAnnotation(a string) graphmodel.TypeKind {
	switch {
	case strings.Contains(a, "|") || strings.HasPrefix(a, "Union["):
		return graphmodel.TypeUnion
	case strings.Contains(a, "["):
		return graphmodel.TypeGeneric
	case strings.HasPrefix(a, "Callable"):
		return graphmodel.TypeCallable
	case isBuiltinTypeName(a):
		return graphmodel.TypeBuiltin
	default:
		return graphmodel.TypeClass
	}
}

func isBuiltinTypeName(a string) bool {
	switch a {
	case "int", "str", "float", "bool", "bytes", "list", "dict", "set", "tuple", "None", "object", "Any":
		return true
	}
	return false
}
