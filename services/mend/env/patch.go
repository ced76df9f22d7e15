// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package env

import (
	"log/slog"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/AleutianMend/services/mend/document"
	"github.com/AleutianAI/AleutianMend/services/mend/episode"
)

// applyPatch validates and applies a patch to the in-memory document set.
// It never touches the file system. Caller holds the mutex.
//
// A patch is rejected (applied = false) when:
//   - the target path is not a known file document
//   - the search text does not occur in the current document content
//   - an attached unified diff fails to parse or names a different file
//
// Rejection is an outcome, not an error: the episode continues and the
// policy sees patch_applied = false.
func (e *Environment) applyPatch(spec episode.PatchSpec) (applied bool, added int) {
	doc, ok := e.docs[spec.Path]
	if !ok || doc.Kind != document.KindFile {
		slog.Warn("patch rejected: unknown document",
			"episode_id", e.state.EpisodeID,
			"path", spec.Path,
		)
		return false, 0
	}

	if spec.Diff != "" && !validDiffFor(spec.Diff, spec.Path) {
		slog.Warn("patch rejected: invalid diff",
			"episode_id", e.state.EpisodeID,
			"path", spec.Path,
		)
		return false, 0
	}

	if !strings.Contains(doc.Content, spec.Search) {
		slog.Warn("patch rejected: search text not found",
			"episode_id", e.state.EpisodeID,
			"path", spec.Path,
		)
		return false, 0
	}

	next, err := doc.WithContent(strings.Replace(doc.Content, spec.Search, spec.Replace, 1))
	if err != nil {
		return false, 0
	}
	e.docs[next.ID()] = next

	slog.Info("patch applied",
		"episode_id", e.state.EpisodeID,
		"path", spec.Path,
		"version", next.Version,
	)
	return true, 1
}

// validDiffFor parses a unified diff and checks it targets the given path.
func validDiffFor(unified, path string) bool {
	fds, err := diff.ParseMultiFileDiff([]byte(unified))
	if err != nil || len(fds) == 0 {
		return false
	}
	for _, fd := range fds {
		if strings.HasSuffix(strings.TrimPrefix(fd.NewName, "b/"), path) ||
			strings.HasSuffix(strings.TrimPrefix(fd.OrigName, "a/"), path) {
			return true
		}
	}
	return false
}
