// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
)

// funcDecl is a function or method declaration.
type funcDecl struct {
	ref callgraph.MethodRef

	pkgPath string
	name    string

	// recvType is the receiver base type name, empty for functions.
	recvType    string
	pointerRecv bool

	file     *parsedFile
	startRow uint32
	endRow   uint32
	body     *sitter.Node

	// vars maps parameter and local variable names to type expressions
	// such as "Service" or "http.Client".
	vars map[string]string
}

// typeDecl is a named type declaration.
type typeDecl struct {
	pkgPath     string
	pkgName     string
	name        string
	isInterface bool
	loc         callgraph.Location

	// file resolves the package qualifiers of field types.
	file *parsedFile

	// fields maps named struct fields to type expressions; embedded lists
	// the base type names of embedded fields.
	fields   map[string]string
	embedded []string
}

// typeRef is a named type resolved to its package.
type typeRef struct {
	pkgPath string
	name    string
}

// parsedFile is one parsed source unit.
type parsedFile struct {
	unit    SourceUnit
	pkgPath string
	pkgName string

	// imports maps the local package name to its import path.
	imports map[string]string

	tree  *sitter.Tree
	funcs []*funcDecl
}

// text returns the source text of n.
func (f *parsedFile) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(f.unit.Content)
}

// location returns the 1-based position of n.
func (f *parsedFile) location(n *sitter.Node) callgraph.Location {
	p := n.StartPoint()
	return callgraph.Location{
		FilePath: f.unit.Path,
		Line:     int(p.Row) + 1,
		Column:   int(p.Column) + 1,
	}
}

// parseUnit parses one unit and collects its declarations.
func parseUnit(ctx context.Context, modulePath string, unit SourceUnit) (*parsedFile, []*typeDecl, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, unit.Content)
	if err != nil {
		return nil, nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, nil, fmt.Errorf("tree-sitter returned nil root node")
	}

	f := &parsedFile{
		unit:    unit,
		pkgPath: packagePath(modulePath, unit.Path),
		imports: make(map[string]string),
		tree:    tree,
	}

	var types []*typeDecl
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_clause":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "package_identifier" {
					f.pkgName = f.text(id)
				}
			}
		case "import_declaration":
			f.collectImports(child)
		case "type_declaration":
			types = append(types, f.collectTypes(child)...)
		case "function_declaration":
			if fd := f.functionDecl(child); fd != nil {
				f.funcs = append(f.funcs, fd)
			}
		case "method_declaration":
			if fd := f.methodDecl(child); fd != nil {
				f.funcs = append(f.funcs, fd)
			}
		}
	}
	if f.pkgName == "" {
		f.pkgName = lastSegment(f.pkgPath)
	}
	for _, t := range types {
		t.pkgName = f.pkgName
	}
	for _, fd := range f.funcs {
		f.finishRef(fd)
	}
	return f, types, nil
}

// collectImports records import specs, keyed by local name.
func (f *parsedFile) collectImports(decl *sitter.Node) {
	var specs []*sitter.Node
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		child := decl.NamedChild(i)
		switch child.Type() {
		case "import_spec":
			specs = append(specs, child)
		case "import_spec_list":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if spec := child.NamedChild(j); spec.Type() == "import_spec" {
					specs = append(specs, spec)
				}
			}
		}
	}
	for _, spec := range specs {
		raw := f.text(spec.ChildByFieldName("path"))
		importPath, err := strconv.Unquote(raw)
		if err != nil || importPath == "" {
			continue
		}
		name := lastSegment(importPath)
		if alias := spec.ChildByFieldName("name"); alias != nil {
			name = f.text(alias)
		} else if isMajorVersion(name) {
			name = lastSegment(strings.TrimSuffix(importPath, "/"+name))
		}
		if name == "_" || name == "." {
			continue
		}
		f.imports[name] = importPath
	}
}

// collectTypes returns the named types of a type declaration.
func (f *parsedFile) collectTypes(decl *sitter.Node) []*typeDecl {
	var out []*typeDecl
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		spec := decl.NamedChild(i)
		if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
			continue
		}
		name := spec.ChildByFieldName("name")
		if name == nil {
			continue
		}
		typ := spec.ChildByFieldName("type")
		td := &typeDecl{
			pkgPath:     f.pkgPath,
			name:        f.text(name),
			isInterface: typ != nil && typ.Type() == "interface_type",
			loc:         f.location(name),
			file:        f,
			fields:      make(map[string]string),
		}
		if typ != nil && typ.Type() == "struct_type" {
			f.collectFields(td, typ)
		}
		out = append(out, td)
	}
	return out
}

// collectFields records the field types of a struct type.
func (f *parsedFile) collectFields(td *typeDecl, st *sitter.Node) {
	for i := 0; i < int(st.NamedChildCount()); i++ {
		list := st.NamedChild(i)
		if list.Type() != "field_declaration_list" {
			continue
		}
		for j := 0; j < int(list.NamedChildCount()); j++ {
			decl := list.NamedChild(j)
			if decl.Type() != "field_declaration" {
				continue
			}
			typeName, _ := baseTypeName(f, decl.ChildByFieldName("type"))
			if typeName == "" {
				continue
			}
			named := false
			for k := 0; k < int(decl.NamedChildCount()); k++ {
				if id := decl.NamedChild(k); id.Type() == "field_identifier" {
					td.fields[f.text(id)] = typeName
					named = true
				}
			}
			if !named {
				td.embedded = append(td.embedded, typeName)
				_, local, _ := strings.Cut(typeName, ".")
				if local == "" {
					local = typeName
				}
				td.fields[local] = typeName
			}
		}
	}
}

// qualify resolves a type expression written in f, such as "Service" or
// "store.DB", to its package.
func (f *parsedFile) qualify(typeName string) (typeRef, bool) {
	if typeName == "" {
		return typeRef{}, false
	}
	alias, local, qualified := strings.Cut(typeName, ".")
	if !qualified {
		return typeRef{pkgPath: f.pkgPath, name: typeName}, true
	}
	importPath, ok := f.imports[alias]
	if !ok {
		return typeRef{}, false
	}
	return typeRef{pkgPath: importPath, name: local}, true
}

func (f *parsedFile) functionDecl(n *sitter.Node) *funcDecl {
	name := n.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	fd := &funcDecl{
		pkgPath:  f.pkgPath,
		name:     f.text(name),
		file:     f,
		startRow: n.StartPoint().Row,
		endRow:   n.EndPoint().Row,
		body:     n.ChildByFieldName("body"),
		vars:     make(map[string]string),
	}
	fd.ref.Declaration = ptrTo(f.location(name))
	f.collectParams(fd, n.ChildByFieldName("parameters"))
	return fd
}

func (f *parsedFile) methodDecl(n *sitter.Node) *funcDecl {
	name := n.ChildByFieldName("name")
	recv := n.ChildByFieldName("receiver")
	if name == nil || recv == nil {
		return nil
	}
	fd := &funcDecl{
		pkgPath:  f.pkgPath,
		name:     f.text(name),
		file:     f,
		startRow: n.StartPoint().Row,
		endRow:   n.EndPoint().Row,
		body:     n.ChildByFieldName("body"),
		vars:     make(map[string]string),
	}
	fd.ref.Declaration = ptrTo(f.location(name))

	for i := 0; i < int(recv.NamedChildCount()); i++ {
		param := recv.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		typeName, isPtr := baseTypeName(f, param.ChildByFieldName("type"))
		fd.recvType, fd.pointerRecv = typeName, isPtr
		for j := 0; j < int(param.NamedChildCount()); j++ {
			if id := param.NamedChild(j); id.Type() == "identifier" {
				fd.vars[f.text(id)] = typeName
			}
		}
	}
	if fd.recvType == "" {
		return nil
	}
	f.collectParams(fd, n.ChildByFieldName("parameters"))
	return fd
}

// collectParams records parameter names and their types.
func (f *parsedFile) collectParams(fd *funcDecl, params *sitter.Node) {
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		typeName, _ := baseTypeName(f, param.ChildByFieldName("type"))
		if typeName == "" {
			continue
		}
		for j := 0; j < int(param.NamedChildCount()); j++ {
			if id := param.NamedChild(j); id.Type() == "identifier" {
				fd.vars[f.text(id)] = typeName
			}
		}
	}
}

// finishRef fills the identity fields of a declaration once the package
// name is known.
func (f *parsedFile) finishRef(fd *funcDecl) {
	ref := &fd.ref
	ref.InSource = true
	ref.MethodKind = callgraph.MethodKindOrdinary
	if fd.recvType == "" {
		ref.SymbolKind = callgraph.SymbolKindFunction
		ref.DocID = functionDocID(fd.pkgPath, fd.name)
		ref.Display = f.pkgName + "." + fd.name
		return
	}
	recvDisplay := fd.recvType
	if fd.pointerRecv {
		recvDisplay = "(*" + fd.recvType + ")"
	}
	ref.SymbolKind = callgraph.SymbolKindMethod
	ref.DocID = methodDocID(fd.pkgPath, fd.recvType, fd.name)
	ref.Display = f.pkgName + "." + recvDisplay + "." + fd.name
	ref.ContainingType = f.pkgName + "." + fd.recvType
}

// baseTypeName returns the named type behind a type expression, stripping
// pointers and type arguments. Qualified types keep their package prefix.
// Identifiers are accepted for expressions in type position such as the
// argument of new(T).
func baseTypeName(f *parsedFile, n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "pointer_type":
		if n.NamedChildCount() == 0 {
			return "", true
		}
		name, _ := baseTypeName(f, n.NamedChild(0))
		return name, true
	case "type_identifier", "identifier":
		return f.text(n), false
	case "generic_type":
		return baseTypeName(f, n.ChildByFieldName("type"))
	case "qualified_type":
		pkg := n.ChildByFieldName("package")
		name := n.ChildByFieldName("name")
		if pkg == nil || name == nil {
			return "", false
		}
		return f.text(pkg) + "." + f.text(name), false
	case "selector_expression":
		// new(pkg.T) parses its argument as an expression.
		operand := n.ChildByFieldName("operand")
		field := n.ChildByFieldName("field")
		if operand == nil || field == nil || operand.Type() != "identifier" {
			return "", false
		}
		return f.text(operand) + "." + f.text(field), false
	case "parenthesized_type":
		if n.NamedChildCount() == 0 {
			return "", false
		}
		return baseTypeName(f, n.NamedChild(0))
	}
	return "", false
}

func functionDocID(pkgPath, name string) string {
	return "F:" + pkgPath + "." + name
}

func methodDocID(pkgPath, recvType, name string) string {
	return "M:" + pkgPath + ".(" + recvType + ")." + name
}

func constructorDocID(pkgPath, typeName string) string {
	return "C:" + pkgPath + "." + typeName
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// isMajorVersion reports whether s is a module major version suffix like "v2".
func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	_, err := strconv.Atoi(s[1:])
	return err == nil
}

func ptrTo[T any](v T) *T {
	return &v
}
