package core

import (
	"errors"
	"fmt"
	"strings"

	"forgeloop/pkg/models"
)

// AdaptivePlanner inserts newly discovered work into the artifact tree
// while a build traversal is in progress. Insertions never disrupt the
// traversal: the pipeline re-derives its work list after every call, so
// a new node is always picked up within the same build.
type AdaptivePlanner interface {
	// InsertRequestedFile adds path as a planned file node, creating any
	// missing ancestor directories first. A path that already exists is
	// a logged no-op, never an error: a duplicate suggestion must not
	// crash an otherwise successful generation step.
	InsertRequestedFile(tree ArtifactTree, path, reason string) error
}

type adaptivePlanner struct {
	logger EventLogger
}

// NewAdaptivePlanner creates an AdaptivePlanner. logger may be nil.
func NewAdaptivePlanner(logger EventLogger) AdaptivePlanner {
	return &adaptivePlanner{logger: logger}
}

func (a *adaptivePlanner) InsertRequestedFile(tree ArtifactTree, path, reason string) error {
	if err := validatePath(path); err != nil {
		return fmt.Errorf("inserting requested file: %w", err)
	}

	if _, err := tree.FindByPath(path); err == nil {
		a.log("planner.duplicate_path", map[string]any{"path": path, "reason": reason})
		return nil
	}

	if err := a.ensureAncestors(tree, path); err != nil {
		return fmt.Errorf("inserting requested file %q: %w", path, err)
	}

	if _, err := tree.Insert(path, models.ArtifactFile); err != nil {
		var dup *DuplicatePathError
		if errors.As(err, &dup) {
			a.log("planner.duplicate_path", map[string]any{"path": path, "reason": reason})
			return nil
		}
		return fmt.Errorf("inserting requested file %q: %w", path, err)
	}

	a.log("planner.file_inserted", map[string]any{"path": path, "reason": reason})
	return nil
}

// ensureAncestors creates every missing directory on the way to path.
// An existing ancestor that is a file, not a directory, is an error.
func (a *adaptivePlanner) ensureAncestors(tree ArtifactTree, path string) error {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		prefix := strings.Join(segments[:i], "/")

		node, err := tree.FindByPath(prefix)
		if err == nil {
			if node.Kind != models.ArtifactDirectory {
				return &InvalidParentError{Path: path, Parent: prefix}
			}
			continue
		}

		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if _, err := tree.Insert(prefix, models.ArtifactDirectory); err != nil {
			return err
		}
		a.log("planner.directory_created", map[string]any{"path": prefix, "for": path})
	}
	return nil
}

func (a *adaptivePlanner) log(eventType string, data map[string]any) {
	if a.logger != nil {
		_ = a.logger.LogEvent(eventType, data)
	}
}
