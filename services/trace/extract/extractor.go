// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract provides call-site extraction for Go source corpora.
//
// It loads a corpus from disk, parses every unit with tree-sitter, builds a
// module-wide declaration index and reports, per unit, the call sites whose
// caller and callee it can resolve statically. Resolution is name based:
// package functions, methods on values whose static type is visible in the
// enclosing function (receivers, parameters, typed locals and struct fields
// reached from them), imported package functions, generic instantiations
// and composite-literal construction. Calls through interfaces, function
// values and values of unknown type are not resolved and are dropped.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
)

var tracer = otel.Tracer("callscope.extract")

// Extraction limits.
const (
	// MaxCallSitesPerUnit is the default per-unit ceiling on call sites.
	MaxCallSitesPerUnit = 50000

	// maxSnippetLen truncates call-site snippets.
	maxSnippetLen = 160
)

// builtins are predeclared functions that are never graph nodes.
var builtins = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true, "make": true,
	"max": true, "min": true, "new": true, "panic": true, "print": true,
	"println": true, "real": true, "recover": true,
}

// ExtractOptions configures a GoExtractor.
type ExtractOptions struct {
	// IncludeObjectCreations reports composite literals and new(T).
	IncludeObjectCreations bool

	// MaxCallSites caps the call sites reported per unit.
	// Default: MaxCallSitesPerUnit.
	MaxCallSites int

	// Logger receives diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// GoExtractor resolves call sites in a parsed Go corpus.
//
// Thread Safety: CallSites is safe for concurrent use after construction.
// Close must not race with other calls.
type GoExtractor struct {
	modulePath string
	opts       ExtractOptions
	logger     *slog.Logger

	files   map[string]*parsedFile
	order   []string
	failed  map[string]error
	decls   []*funcDecl
	funcs   map[string]map[string]*funcDecl // pkgPath → name
	methods map[string]map[string]*funcDecl // pkgPath → Type.Method
	types   map[string]map[string]*typeDecl // pkgPath → type name
}

// NewGoExtractor parses the corpus and builds its declaration index.
//
// Description:
//
//	Every unit is parsed once. Units that fail to parse are remembered and
//	reported again by CallSites so the builder can record them.
//
// Inputs:
//
//	ctx - Checked before each unit.
//	corpus - Loaded corpus.
//	opts - Extraction options.
//
// Outputs:
//
//	*GoExtractor - Ready extractor. Call Close to release parse trees.
//	error - ctx.Err() on cancellation.
func NewGoExtractor(ctx context.Context, corpus *Corpus, opts ExtractOptions) (*GoExtractor, error) {
	ctx, span := tracer.Start(ctx, "extract.NewGoExtractor")
	defer span.End()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxCallSites <= 0 {
		opts.MaxCallSites = MaxCallSitesPerUnit
	}
	x := &GoExtractor{
		modulePath: corpus.ModulePath,
		opts:       opts,
		logger:     logger,
		files:      make(map[string]*parsedFile, len(corpus.Units)),
		failed:     make(map[string]error),
		funcs:      make(map[string]map[string]*funcDecl),
		methods:    make(map[string]map[string]*funcDecl),
		types:      make(map[string]map[string]*typeDecl),
	}

	for _, unit := range corpus.Units {
		if err := ctx.Err(); err != nil {
			x.Close()
			return nil, err
		}
		f, types, err := parseUnit(ctx, x.modulePath, unit)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				x.Close()
				return nil, ctxErr
			}
			x.failed[unit.Path] = err
			continue
		}
		x.files[unit.Path] = f
		x.order = append(x.order, unit.Path)
		x.index(f, types)
	}
	x.disambiguate()
	for _, fd := range x.decls {
		x.collectLocals(fd)
	}

	span.SetAttributes(
		attribute.Int("extract.units", len(x.files)),
		attribute.Int("extract.failed", len(x.failed)),
		attribute.Int("extract.declarations", len(x.decls)),
	)
	return x, nil
}

// index adds a file's declarations to the module index.
func (x *GoExtractor) index(f *parsedFile, types []*typeDecl) {
	for _, t := range types {
		if x.types[t.pkgPath] == nil {
			x.types[t.pkgPath] = make(map[string]*typeDecl)
		}
		x.types[t.pkgPath][t.name] = t
	}
	for _, fd := range f.funcs {
		x.decls = append(x.decls, fd)
		// The first of several build-constrained variants takes the calls.
		if fd.recvType == "" {
			if x.funcs[fd.pkgPath] == nil {
				x.funcs[fd.pkgPath] = make(map[string]*funcDecl)
			}
			if _, dup := x.funcs[fd.pkgPath][fd.name]; !dup {
				x.funcs[fd.pkgPath][fd.name] = fd
			}
			continue
		}
		if x.methods[fd.pkgPath] == nil {
			x.methods[fd.pkgPath] = make(map[string]*funcDecl)
		}
		key := fd.recvType + "." + fd.name
		if _, dup := x.methods[fd.pkgPath][key]; !dup {
			x.methods[fd.pkgPath][key] = fd
		}
	}
}

// disambiguate makes every declaration id unique. Package init functions
// and declarations repeated across build-constrained files share a name;
// each copy is suffixed with its file name and ordinal within the file,
// as in "F:example.com/m.init#a.go:2". Init functions are always suffixed
// so their ids do not change when another file adds one.
func (x *GoExtractor) disambiguate() {
	count := make(map[string]int, len(x.decls))
	for _, fd := range x.decls {
		count[fd.ref.DocID]++
	}
	ordinal := make(map[string]int)
	for _, fd := range x.decls {
		id := fd.ref.DocID
		if count[id] < 2 && !(fd.recvType == "" && fd.name == "init") {
			continue
		}
		file := path.Base(fd.file.unit.Path)
		ordinal[id+"#"+file]++
		fd.ref.DocID = fmt.Sprintf("%s#%s:%d", id, file, ordinal[id+"#"+file])
	}
}

// Close releases the parse trees.
func (x *GoExtractor) Close() {
	for _, f := range x.files {
		if f.tree != nil {
			f.tree.Close()
			f.tree = nil
		}
	}
}

// ModulePath returns the module path used for canonical ids.
func (x *GoExtractor) ModulePath() string {
	return x.modulePath
}

// UnitPaths returns the paths of all units, including those that failed to
// parse, in corpus order.
func (x *GoExtractor) UnitPaths() []string {
	paths := make([]string, 0, len(x.order)+len(x.failed))
	paths = append(paths, x.order...)
	for p := range x.failed {
		paths = append(paths, p)
	}
	return paths
}

// CallSites returns the resolvable call sites of one unit in source order.
//
// A unit with more than MaxCallSites sites returns the first MaxCallSites
// together with an error wrapping callgraph.ErrUnitTruncated.
//
// Implements callgraph.CallSiteSource.
func (x *GoExtractor) CallSites(ctx context.Context, unitPath string) ([]callgraph.CallSite, error) {
	if err, ok := x.failed[unitPath]; ok {
		return nil, err
	}
	f, ok := x.files[unitPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, unitPath)
	}

	limit := x.opts.MaxCallSites
	var sites []callgraph.CallSite
	for _, fd := range f.funcs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sites = x.walkBody(fd, sites)
		if len(sites) > limit {
			x.logger.Warn("max call sites per unit reached",
				slog.String("file", unitPath),
				slog.Int("limit", limit),
			)
			return sites[:limit], fmt.Errorf("%w: %s: kept first %d call sites",
				callgraph.ErrUnitTruncated, unitPath, limit)
		}
	}
	return sites, nil
}

// walkBody appends the call sites found in a function body.
func (x *GoExtractor) walkBody(fd *funcDecl, sites []callgraph.CallSite) []callgraph.CallSite {
	if fd.body == nil {
		return sites
	}
	f := fd.file

	stack := []*sitter.Node{fd.body}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node.Type() {
		case "call_expression":
			if callee, kind, ok := x.resolveCall(fd, node); ok {
				sites = append(sites, x.site(fd, node, callee, kind))
			}
		case "composite_literal":
			if x.opts.IncludeObjectCreations {
				if callee, ok := x.resolveConstruction(f, node.ChildByFieldName("type")); ok {
					sites = append(sites, x.site(fd, node, callee, callgraph.CallKindObjectCreation))
				}
			}
		}

		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			if child := node.NamedChild(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return sites
}

// site builds a call site for node.
func (x *GoExtractor) site(fd *funcDecl, node *sitter.Node, callee callgraph.MethodRef, kind callgraph.CallKind) callgraph.CallSite {
	return callgraph.CallSite{
		Caller:  fd.ref,
		Callee:  callee,
		Kind:    kind,
		Span:    fd.file.location(node),
		Snippet: snippet(fd.file.unit.Content, node),
	}
}

// resolveCall resolves the callee of a call_expression.
func (x *GoExtractor) resolveCall(fd *funcDecl, call *sitter.Node) (callgraph.MethodRef, callgraph.CallKind, bool) {
	f := fd.file
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return callgraph.MethodRef{}, 0, false
	}
	typeArgs := f.text(call.ChildByFieldName("type_arguments"))

	// F[T](...) may parse as an index expression on the function.
	if fn.Type() == "index_expression" {
		if operand := fn.ChildByFieldName("operand"); operand != nil && x.isGenericFunc(fd, operand) {
			typeArgs = "[" + f.text(fn.ChildByFieldName("index")) + "]"
			fn = operand
		}
	}

	var ref callgraph.MethodRef
	var ok bool
	switch fn.Type() {
	case "identifier":
		name := f.text(fn)
		if name == "new" {
			return x.resolveNew(f, call)
		}
		if builtins[name] {
			return callgraph.MethodRef{}, 0, false
		}
		if _, shadowed := fd.vars[name]; shadowed {
			return callgraph.MethodRef{}, 0, false
		}
		var decl *funcDecl
		if decl, ok = x.funcs[fd.pkgPath][name]; ok {
			ref = decl.ref
		}
	case "selector_expression":
		ref, ok = x.resolveSelector(fd, fn)
	}
	if !ok {
		return callgraph.MethodRef{}, 0, false
	}
	if typeArgs != "" {
		ref = instantiate(ref, typeArgs)
	}
	return ref, callgraph.CallKindOrdinary, true
}

// resolveSelector resolves operand.Field(...) calls. Methods resolve only
// when the operand's static type is known; a call on a value of unknown
// type is dropped rather than bound by method name.
func (x *GoExtractor) resolveSelector(fd *funcDecl, sel *sitter.Node) (callgraph.MethodRef, bool) {
	f := fd.file
	operand := sel.ChildByFieldName("operand")
	field := f.text(sel.ChildByFieldName("field"))
	if operand == nil || field == "" {
		return callgraph.MethodRef{}, false
	}

	if operand.Type() == "identifier" {
		name := f.text(operand)
		if _, isVar := fd.vars[name]; !isVar {
			if importPath, ok := f.imports[name]; ok {
				return x.resolvePackageFunc(importPath, field)
			}
		}
	}

	owner, ok := x.operandType(fd, operand, 0)
	if !ok {
		return callgraph.MethodRef{}, false
	}
	return x.resolveMethod(owner, field, 0)
}

// resolvePackageFunc resolves pkg.Func for an imported package.
func (x *GoExtractor) resolvePackageFunc(importPath, name string) (callgraph.MethodRef, bool) {
	if decl, ok := x.funcs[importPath][name]; ok {
		return decl.ref, true
	}
	if x.inModule(importPath) {
		return callgraph.MethodRef{}, false
	}
	return callgraph.MethodRef{
		Display:    importPath + "." + name,
		SymbolKind: callgraph.SymbolKindFunction,
		MethodKind: callgraph.MethodKindOrdinary,
	}, true
}

// maxEmbedDepth bounds field and method promotion through embedded types.
const maxEmbedDepth = 4

// operandType returns the static type of an expression used as a selector
// operand: a typed variable or a field reached from one.
func (x *GoExtractor) operandType(fd *funcDecl, expr *sitter.Node, depth int) (typeRef, bool) {
	if expr == nil || depth > maxEmbedDepth {
		return typeRef{}, false
	}
	f := fd.file
	switch expr.Type() {
	case "identifier":
		typeName, ok := fd.vars[f.text(expr)]
		if !ok {
			return typeRef{}, false
		}
		return f.qualify(typeName)
	case "selector_expression":
		owner, ok := x.operandType(fd, expr.ChildByFieldName("operand"), depth+1)
		if !ok {
			return typeRef{}, false
		}
		return x.fieldType(owner, f.text(expr.ChildByFieldName("field")), 0)
	case "parenthesized_expression":
		if expr.NamedChildCount() == 0 {
			return typeRef{}, false
		}
		return x.operandType(fd, expr.NamedChild(0), depth+1)
	case "unary_expression":
		return x.operandType(fd, expr.ChildByFieldName("operand"), depth+1)
	}
	return typeRef{}, false
}

// fieldType returns the type of a struct field, including fields promoted
// from embedded types.
func (x *GoExtractor) fieldType(owner typeRef, field string, depth int) (typeRef, bool) {
	t, ok := x.types[owner.pkgPath][owner.name]
	if !ok || field == "" || depth > maxEmbedDepth {
		return typeRef{}, false
	}
	if typeName, ok := t.fields[field]; ok {
		return t.file.qualify(typeName)
	}
	for _, embedded := range t.embedded {
		inner, ok := t.file.qualify(embedded)
		if !ok {
			continue
		}
		if ref, ok := x.fieldType(inner, field, depth+1); ok {
			return ref, true
		}
	}
	return typeRef{}, false
}

// resolveMethod resolves a method call on a value of a known named type.
func (x *GoExtractor) resolveMethod(owner typeRef, method string, depth int) (callgraph.MethodRef, bool) {
	if depth > maxEmbedDepth {
		return callgraph.MethodRef{}, false
	}
	if decl, ok := x.methods[owner.pkgPath][owner.name+"."+method]; ok {
		return decl.ref, true
	}
	if !x.inModule(owner.pkgPath) {
		return callgraph.MethodRef{
			Display:        owner.pkgPath + ".(" + owner.name + ")." + method,
			SymbolKind:     callgraph.SymbolKindMethod,
			MethodKind:     callgraph.MethodKindOrdinary,
			ContainingType: owner.pkgPath + "." + owner.name,
		}, true
	}
	t, ok := x.types[owner.pkgPath][owner.name]
	if !ok || t.isInterface {
		return callgraph.MethodRef{}, false
	}
	// Promoted through embedding.
	for _, embedded := range t.embedded {
		inner, ok := t.file.qualify(embedded)
		if !ok {
			continue
		}
		if ref, ok := x.resolveMethod(inner, method, depth+1); ok {
			return ref, true
		}
	}
	return callgraph.MethodRef{}, false
}

// resolveConstruction resolves the type of a composite literal or new(T).
func (x *GoExtractor) resolveConstruction(f *parsedFile, typeNode *sitter.Node) (callgraph.MethodRef, bool) {
	typeName, _ := baseTypeName(f, typeNode)
	owner, ok := f.qualify(typeName)
	if !ok {
		return callgraph.MethodRef{}, false
	}
	pkgPath, name := owner.pkgPath, owner.name

	if t, ok := x.types[pkgPath][name]; ok {
		return callgraph.MethodRef{
			DocID:          constructorDocID(pkgPath, name),
			Display:        t.pkgName + "." + name + "{}",
			SymbolKind:     callgraph.SymbolKindMethod,
			MethodKind:     callgraph.MethodKindConstructor,
			ContainingType: t.pkgName + "." + name,
			InSource:       true,
			Declaration:    ptrTo(t.loc),
		}, true
	}
	if x.inModule(pkgPath) {
		return callgraph.MethodRef{}, false
	}
	return callgraph.MethodRef{
		Display:        pkgPath + "." + name + "{}",
		SymbolKind:     callgraph.SymbolKindMethod,
		MethodKind:     callgraph.MethodKindConstructor,
		ContainingType: pkgPath + "." + name,
	}, true
}

// resolveNew handles new(T) as an implicit object creation.
func (x *GoExtractor) resolveNew(f *parsedFile, call *sitter.Node) (callgraph.MethodRef, callgraph.CallKind, bool) {
	if !x.opts.IncludeObjectCreations {
		return callgraph.MethodRef{}, 0, false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return callgraph.MethodRef{}, 0, false
	}
	ref, ok := x.resolveConstruction(f, args.NamedChild(0))
	return ref, callgraph.CallKindImplicitObjectCreation, ok
}

// isGenericFunc reports whether operand names a package function, as
// opposed to a slice or map of functions being indexed.
func (x *GoExtractor) isGenericFunc(fd *funcDecl, operand *sitter.Node) bool {
	if operand.Type() != "identifier" {
		return operand.Type() == "selector_expression"
	}
	name := fd.file.text(operand)
	if _, shadowed := fd.vars[name]; shadowed {
		return false
	}
	_, ok := x.funcs[fd.pkgPath][name]
	return ok
}

// inModule reports whether importPath belongs to the analyzed module.
func (x *GoExtractor) inModule(importPath string) bool {
	return importPath == x.modulePath || strings.HasPrefix(importPath, x.modulePath+"/")
}

// collectLocals records the static types of local variables initialized
// from composite literals, address-of literals or new(T), and of typed var
// declarations.
func (x *GoExtractor) collectLocals(fd *funcDecl) {
	if fd.body == nil {
		return
	}
	f := fd.file
	stack := []*sitter.Node{fd.body}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node.Type() {
		case "short_var_declaration":
			left := node.ChildByFieldName("left")
			right := node.ChildByFieldName("right")
			if left != nil && right != nil && left.NamedChildCount() == right.NamedChildCount() {
				for i := 0; i < int(left.NamedChildCount()); i++ {
					if typeName := initializerType(f, right.NamedChild(i)); typeName != "" {
						fd.vars[f.text(left.NamedChild(i))] = typeName
					}
				}
			}
		case "var_spec":
			typeName, _ := baseTypeName(f, node.ChildByFieldName("type"))
			if typeName == "" {
				if value := node.ChildByFieldName("value"); value != nil && value.NamedChildCount() == 1 {
					typeName = initializerType(f, value.NamedChild(0))
				}
			}
			if typeName != "" {
				for i := 0; i < int(node.NamedChildCount()); i++ {
					if id := node.NamedChild(i); id.Type() == "identifier" {
						fd.vars[f.text(id)] = typeName
					}
				}
			}
		}

		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			if child := node.NamedChild(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

// initializerType returns the named type an expression constructs.
func initializerType(f *parsedFile, expr *sitter.Node) string {
	if expr == nil {
		return ""
	}
	switch expr.Type() {
	case "composite_literal":
		name, _ := baseTypeName(f, expr.ChildByFieldName("type"))
		return name
	case "unary_expression":
		return initializerType(f, expr.ChildByFieldName("operand"))
	case "call_expression":
		fn := expr.ChildByFieldName("function")
		args := expr.ChildByFieldName("arguments")
		if fn != nil && f.text(fn) == "new" && args != nil && args.NamedChildCount() > 0 {
			name, _ := baseTypeName(f, args.NamedChild(0))
			return name
		}
	}
	return ""
}

// instantiate marks a reference as a generic instantiation of itself.
func instantiate(ref callgraph.MethodRef, typeArgs string) callgraph.MethodRef {
	inst := ref
	inst.DefinitionDocID = ref.DocID
	inst.DefinitionDisplay = ref.Display
	if ref.DocID != "" {
		inst.DocID = ref.DocID + typeArgs
	}
	inst.Display = ref.Display + typeArgs
	return inst
}

// snippet returns the trimmed first source line of node.
func snippet(content []byte, node *sitter.Node) string {
	start := int(node.StartByte())
	lineStart := start
	for lineStart > 0 && content[lineStart-1] != '\n' {
		lineStart--
	}
	lineEnd := start
	for lineEnd < len(content) && content[lineEnd] != '\n' {
		lineEnd++
	}
	return truncateSnippet(strings.TrimSpace(string(content[lineStart:lineEnd])))
}

// truncateSnippet cuts line to at most maxSnippetLen bytes on a rune
// boundary.
func truncateSnippet(line string) string {
	if len(line) <= maxSnippetLen {
		return line
	}
	cut := maxSnippetLen
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut] + "..."
}
