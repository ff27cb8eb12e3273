package models

// ArtifactKind distinguishes file nodes from directory nodes in the tree.
type ArtifactKind string

const (
	ArtifactFile      ArtifactKind = "file"
	ArtifactDirectory ArtifactKind = "directory"
)

// ArtifactStatus represents the generation lifecycle state of an artifact.
type ArtifactStatus string

const (
	ArtifactPlanned    ArtifactStatus = "planned"
	ArtifactGenerating ArtifactStatus = "generating"
	ArtifactGenerated  ArtifactStatus = "generated"
	ArtifactModified   ArtifactStatus = "modified"
	ArtifactError      ArtifactStatus = "error"
)

// TestStatus represents the verification state of a file artifact.
type TestStatus string

const (
	TestUntested TestStatus = "untested"
	TestPassing  TestStatus = "passing"
	TestFailing  TestStatus = "failing"
)

// ArtifactNode is one entry in the artifact tree. Paths are unique across
// the whole tree. Only file nodes carry code; only directory nodes carry
// children, in insertion order.
type ArtifactNode struct {
	Path       string          `yaml:"path" json:"path"`
	Kind       ArtifactKind    `yaml:"kind" json:"kind"`
	Code       string          `yaml:"code,omitempty" json:"code,omitempty"`
	Status     ArtifactStatus  `yaml:"status" json:"status"`
	TestStatus TestStatus      `yaml:"test_status" json:"test_status"`
	TestError  string          `yaml:"test_error,omitempty" json:"test_error,omitempty"`
	Children   []*ArtifactNode `yaml:"children,omitempty" json:"children,omitempty"`
}

// IsFile reports whether the node is a file artifact.
func (n *ArtifactNode) IsFile() bool { return n.Kind == ArtifactFile }

// ArtifactDescriptor is the flat, code-free view of a node used in
// listings and as generation input.
type ArtifactDescriptor struct {
	Path       string         `yaml:"path" json:"path"`
	Kind       ArtifactKind   `yaml:"kind" json:"kind"`
	Status     ArtifactStatus `yaml:"status" json:"status"`
	TestStatus TestStatus     `yaml:"test_status" json:"test_status"`
}

// Descriptor returns the flat view of the node.
func (n *ArtifactNode) Descriptor() ArtifactDescriptor {
	return ArtifactDescriptor{
		Path:       n.Path,
		Kind:       n.Kind,
		Status:     n.Status,
		TestStatus: n.TestStatus,
	}
}
