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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for corpus loading and anchor resolution.
var (
	// Corpus errors
	ErrRootNotDirectory = errors.New("corpus root is not a directory")
	ErrFileTooLarge     = errors.New("file exceeds maximum size")
	ErrInvalidContent   = errors.New("file content is not valid UTF-8")
	ErrUnknownUnit      = errors.New("unit is not part of the corpus")

	// Resolution errors
	ErrSymbolNotFound  = errors.New("symbol not found")
	ErrSymbolAmbiguous = errors.New("symbol is ambiguous")
	ErrNotAMethod      = errors.New("location is not inside a function or method")
	ErrFileNotInCorpus = errors.New("file is not part of the analyzed corpus")
)

// SymbolNotFoundError provides details about a missing symbol.
type SymbolNotFoundError struct {
	Input       string
	Suggestions []string
}

// Error implements the error interface.
func (e *SymbolNotFoundError) Error() string {
	if len(e.Suggestions) > 0 {
		return fmt.Sprintf("symbol %q not found; did you mean: %s", e.Input, strings.Join(e.Suggestions, ", "))
	}
	return fmt.Sprintf("symbol %q not found", e.Input)
}

// Unwrap returns the sentinel error.
func (e *SymbolNotFoundError) Unwrap() error {
	return ErrSymbolNotFound
}

// AmbiguousSymbolError lists the methods an anchor could refer to.
type AmbiguousSymbolError struct {
	Input   string
	Matches []SymbolMatch
}

// SymbolMatch represents a potential symbol match.
type SymbolMatch struct {
	ID       string `json:"id"`
	Display  string `json:"display"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
}

// Error implements the error interface.
func (e *AmbiguousSymbolError) Error() string {
	return fmt.Sprintf("symbol %q is ambiguous (%d matches); use a qualified name or file:line",
		e.Input, len(e.Matches))
}

// Unwrap returns the sentinel error.
func (e *AmbiguousSymbolError) Unwrap() error {
	return ErrSymbolAmbiguous
}

// LocationError reports a file:line anchor that could not be used.
type LocationError struct {
	FilePath string
	Line     int
	Err      error
}

// Error implements the error interface.
func (e *LocationError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.FilePath, e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *LocationError) Unwrap() error {
	return e.Err
}
