// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/callscope/services/trace/callgraph"
	"github.com/AleutianAI/callscope/services/trace/extract"
)

// Sentinel errors for request validation. All of them wrap ErrInvalidRequest.
var (
	// ErrInvalidRequest is the parent of every request validation error.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrProjectRootRequired indicates the request has no project root.
	ErrProjectRootRequired = fmt.Errorf("%w: project_root is required", ErrInvalidRequest)

	// ErrRelativePath indicates the project root was a relative path.
	ErrRelativePath = fmt.Errorf("%w: project root must be an absolute path", ErrInvalidRequest)

	// ErrPathTraversal indicates the path contains .. sequences.
	ErrPathTraversal = fmt.Errorf("%w: path contains traversal sequences", ErrInvalidRequest)

	// ErrRootNotAllowed indicates the project root is outside AllowedRoots.
	ErrRootNotAllowed = fmt.Errorf("%w: project root is not allowed", ErrInvalidRequest)

	// ErrRootNotFound indicates the project root does not exist.
	ErrRootNotFound = fmt.Errorf("%w: project root does not exist", ErrInvalidRequest)
)

// IsInputError reports whether err was caused by the request itself and was
// raised before any graph work started.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, callgraph.ErrInvalidLimit) ||
		errors.Is(err, callgraph.ErrInvalidDirection) ||
		errors.Is(err, callgraph.ErrEmptyAnchor) ||
		errors.Is(err, extract.ErrRootNotDirectory)
}

// IsResolutionError reports whether err means an anchor could not be
// mapped to a single method.
func IsResolutionError(err error) bool {
	return errors.Is(err, extract.ErrSymbolNotFound) ||
		errors.Is(err, extract.ErrSymbolAmbiguous) ||
		errors.Is(err, extract.ErrNotAMethod) ||
		errors.Is(err, extract.ErrFileNotInCorpus) ||
		errors.Is(err, callgraph.ErrAnchorNotFound)
}
