package core

import (
	"fmt"
	"strings"
	"sync"

	"forgeloop/pkg/models"
)

// ArtifactTree is the hierarchical, path-addressed store of planned and
// generated work items. Paths are slash-separated and unique across the
// tree. Every mutating operation is individually atomic, so interleaved
// callers can never corrupt the unique-path or parent-before-child
// invariants.
type ArtifactTree interface {
	// Insert adds a node at path. The parent segment must already exist
	// as a directory (top-level paths have no parent requirement). New
	// nodes start with status planned and test status untested.
	Insert(path string, kind models.ArtifactKind) (models.ArtifactDescriptor, error)
	// FindByPath returns a copy of the node at path. The copy carries
	// code but not children; traversal goes through Flatten.
	FindByPath(path string) (models.ArtifactNode, error)
	// SetCode sets the code payload of a file node and advances its
	// status: planned or generating becomes generated; a node that was
	// already generated becomes modified.
	SetCode(path, code string) error
	// SetStatus point-mutates the lifecycle status of the node at path.
	SetStatus(path string, status models.ArtifactStatus) error
	// SetTestStatus point-mutates the test state of the node at path.
	SetTestStatus(path string, status models.TestStatus, testErr string) error
	// Flatten returns a fresh pre-order sequence of every node:
	// directories before their children, siblings in insertion order.
	// It is recomputed on every call so it always reflects the current
	// tree.
	Flatten() []models.ArtifactDescriptor
	// Len returns the number of nodes in the tree.
	Len() int
	// Export returns a deep copy of the tree as a nested node structure
	// rooted at a synthetic top-level list, for persistence and APIs.
	Export() []*models.ArtifactNode
}

type artifactTree struct {
	mu    sync.Mutex
	roots []*models.ArtifactNode
	index map[string]*models.ArtifactNode
}

// NewArtifactTree creates an empty artifact tree.
func NewArtifactTree() ArtifactTree {
	return &artifactTree{index: make(map[string]*models.ArtifactNode)}
}

// NewArtifactTreeFrom rebuilds a tree from previously exported top-level
// nodes, re-indexing every path. It returns an error if the snapshot
// violates the unique-path invariant.
func NewArtifactTreeFrom(roots []*models.ArtifactNode) (ArtifactTree, error) {
	t := &artifactTree{index: make(map[string]*models.ArtifactNode)}
	for _, r := range roots {
		cp := cloneNode(r)
		if err := t.reindex(cp); err != nil {
			return nil, err
		}
		t.roots = append(t.roots, cp)
	}
	return t, nil
}

// reindex walks the subtree rooted at n, registering every path.
func (t *artifactTree) reindex(n *models.ArtifactNode) error {
	if _, exists := t.index[n.Path]; exists {
		return &DuplicatePathError{Path: n.Path}
	}
	t.index[n.Path] = n
	for _, child := range n.Children {
		if err := t.reindex(child); err != nil {
			return err
		}
	}
	return nil
}

// parentPath returns the path of the parent segment, or "" for a
// top-level path.
func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// validatePath rejects empty paths, absolute paths, trailing slashes,
// and empty or relative ("."/"..") segments.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("artifact path must not be empty")
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return fmt.Errorf("artifact path %q must not start or end with a slash", path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("artifact path %q contains invalid segment %q", path, seg)
		}
	}
	return nil
}

func (t *artifactTree) Insert(path string, kind models.ArtifactKind) (models.ArtifactDescriptor, error) {
	var zero models.ArtifactDescriptor

	if err := validatePath(path); err != nil {
		return zero, err
	}
	if kind != models.ArtifactFile && kind != models.ArtifactDirectory {
		return zero, fmt.Errorf("unknown artifact kind %q", kind)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.index[path]; exists {
		return zero, &DuplicatePathError{Path: path}
	}

	node := &models.ArtifactNode{
		Path:       path,
		Kind:       kind,
		Status:     models.ArtifactPlanned,
		TestStatus: models.TestUntested,
	}

	parent := parentPath(path)
	if parent == "" {
		t.roots = append(t.roots, node)
	} else {
		parentNode, exists := t.index[parent]
		if !exists || parentNode.Kind != models.ArtifactDirectory {
			return zero, &InvalidParentError{Path: path, Parent: parent}
		}
		parentNode.Children = append(parentNode.Children, node)
	}

	t.index[path] = node
	return node.Descriptor(), nil
}

func (t *artifactTree) FindByPath(path string) (models.ArtifactNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, exists := t.index[path]
	if !exists {
		return models.ArtifactNode{}, &NotFoundError{Path: path}
	}

	cp := *node
	cp.Children = nil
	return cp, nil
}

func (t *artifactTree) SetCode(path, code string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, exists := t.index[path]
	if !exists {
		return &NotFoundError{Path: path}
	}
	if node.Kind != models.ArtifactFile {
		return fmt.Errorf("setting code on %q: directories never hold code", path)
	}

	node.Code = code
	switch node.Status {
	case models.ArtifactPlanned, models.ArtifactGenerating:
		node.Status = models.ArtifactGenerated
	case models.ArtifactGenerated:
		node.Status = models.ArtifactModified
	}
	return nil
}

func (t *artifactTree) SetStatus(path string, status models.ArtifactStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, exists := t.index[path]
	if !exists {
		return &NotFoundError{Path: path}
	}
	node.Status = status
	return nil
}

func (t *artifactTree) SetTestStatus(path string, status models.TestStatus, testErr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, exists := t.index[path]
	if !exists {
		return &NotFoundError{Path: path}
	}
	node.TestStatus = status
	node.TestError = testErr
	return nil
}

func (t *artifactTree) Flatten() []models.ArtifactDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.ArtifactDescriptor, 0, len(t.index))
	for _, root := range t.roots {
		out = appendPreOrder(out, root)
	}
	return out
}

// appendPreOrder appends n and then its children, depth first.
func appendPreOrder(out []models.ArtifactDescriptor, n *models.ArtifactNode) []models.ArtifactDescriptor {
	out = append(out, n.Descriptor())
	for _, child := range n.Children {
		out = appendPreOrder(out, child)
	}
	return out
}

func (t *artifactTree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}

func (t *artifactTree) Export() []*models.ArtifactNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*models.ArtifactNode, 0, len(t.roots))
	for _, root := range t.roots {
		out = append(out, cloneNode(root))
	}
	return out
}

// cloneNode deep-copies a node and its children.
func cloneNode(n *models.ArtifactNode) *models.ArtifactNode {
	cp := *n
	cp.Children = nil
	for _, child := range n.Children {
		cp.Children = append(cp.Children, cloneNode(child))
	}
	return &cp
}
