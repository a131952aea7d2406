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
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
)

// maxSuggestions bounds the suggestions in a SymbolNotFoundError.
const maxSuggestions = 5

// ResolveAnchor maps user input onto a declared function or method.
//
// Description:
//
//	Accepts, in order of precedence: a canonical id ("M:mod/pkg.(T).Run"),
//	a file:line location, an exact display string ("pkg.(*T).Run"), or a
//	dotted name ("Run", "T.Run", "pkg.Run", "pkg.T.Run"). Receiver pointer
//	markers are ignored when matching names.
//
// Outputs:
//
//	callgraph.MethodRef - The declaration.
//	error - *LocationError wrapping ErrFileNotInCorpus or ErrNotAMethod,
//	        *AmbiguousSymbolError, or *SymbolNotFoundError.
func (x *GoExtractor) ResolveAnchor(input string) (callgraph.MethodRef, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return callgraph.MethodRef{}, &SymbolNotFoundError{Input: input}
	}

	for _, fd := range x.decls {
		if fd.ref.DocID == input {
			return fd.ref, nil
		}
	}

	if file, line, ok := parseFileLine(input); ok {
		return x.DeclarationAt(file, line)
	}

	for _, fd := range x.decls {
		if fd.ref.Display == input {
			return fd.ref, nil
		}
	}

	var matches []*funcDecl
	for _, fd := range x.decls {
		if matchesName(fd, input) {
			matches = append(matches, fd)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0].ref, nil
	case 0:
		return callgraph.MethodRef{}, &SymbolNotFoundError{Input: input, Suggestions: x.suggest(input)}
	}

	amb := &AmbiguousSymbolError{Input: input}
	for _, m := range matches {
		amb.Matches = append(amb.Matches, SymbolMatch{
			ID:       m.ref.DocID,
			Display:  m.ref.Display,
			FilePath: m.file.unit.Path,
			Line:     int(m.startRow) + 1,
		})
	}
	return callgraph.MethodRef{}, amb
}

// DeclarationAt returns the function or method whose declaration spans the
// given 1-based line. file may be corpus-relative or a path suffix.
func (x *GoExtractor) DeclarationAt(file string, line int) (callgraph.MethodRef, error) {
	f := x.fileFor(file)
	if f == nil {
		return callgraph.MethodRef{}, &LocationError{FilePath: file, Line: line, Err: ErrFileNotInCorpus}
	}
	row := uint32(max(line-1, 0))
	for _, fd := range f.funcs {
		if fd.startRow <= row && row <= fd.endRow {
			return fd.ref, nil
		}
	}
	return callgraph.MethodRef{}, &LocationError{FilePath: f.unit.Path, Line: line, Err: ErrNotAMethod}
}

// fileFor finds a parsed unit by exact path or unique path suffix.
func (x *GoExtractor) fileFor(file string) *parsedFile {
	file = strings.TrimPrefix(path.Clean(strings.ReplaceAll(file, "\\", "/")), "./")
	if f, ok := x.files[file]; ok {
		return f
	}
	var found *parsedFile
	for _, p := range x.order {
		if strings.HasSuffix(p, "/"+file) || strings.HasSuffix(file, "/"+p) {
			if found != nil {
				return nil
			}
			found = x.files[p]
		}
	}
	return found
}

// matchesName reports whether input names fd in dotted form.
func matchesName(fd *funcDecl, input string) bool {
	parts := strings.Split(strings.NewReplacer("(", "", ")", "", "*", "").Replace(input), ".")
	pkgName := fd.file.pkgName
	switch len(parts) {
	case 1:
		return parts[0] == fd.name
	case 2:
		if fd.recvType != "" {
			return parts[0] == fd.recvType && parts[1] == fd.name
		}
		return parts[0] == pkgName && parts[1] == fd.name
	case 3:
		return fd.recvType != "" && parts[0] == pkgName && parts[1] == fd.recvType && parts[2] == fd.name
	}
	return false
}

// suggest returns declared names containing input's last segment.
func (x *GoExtractor) suggest(input string) []string {
	needle := strings.ToLower(input)
	if i := strings.LastIndex(needle, "."); i >= 0 {
		needle = needle[i+1:]
	}
	if needle == "" {
		return nil
	}
	var out []string
	for _, fd := range x.decls {
		if strings.Contains(strings.ToLower(fd.name), needle) {
			out = append(out, fd.ref.Display)
		}
	}
	sort.Strings(out)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// parseFileLine parses "file.go:line".
func parseFileLine(input string) (file string, line int, ok bool) {
	idx := strings.LastIndex(input, ":")
	if idx <= 0 {
		return "", 0, false
	}
	file = input[:idx]
	if !strings.HasSuffix(file, ".go") {
		return "", 0, false
	}
	l, err := strconv.Atoi(input[idx+1:])
	if err != nil || l <= 0 {
		return "", 0, false
	}
	return file, l, true
}
