package models

// AgentRole identifies one of the fixed worker roles coordinated by the
// build pipeline.
type AgentRole string

const (
	RoleEngineer AgentRole = "engineer"
	RoleDesigner AgentRole = "designer"
	RoleTester   AgentRole = "tester"
	RoleDebugger AgentRole = "debugger"
	RolePlanner  AgentRole = "planner"
	RoleIdeator  AgentRole = "ideator"
)

// AllRoles lists every known agent role in display order.
var AllRoles = []AgentRole{
	RoleEngineer,
	RoleDesigner,
	RoleTester,
	RoleDebugger,
	RolePlanner,
	RoleIdeator,
}

// AgentStatus is the current activity of a role. A role holds exactly one
// status at a time; writes overwrite, they are never queued.
type AgentStatus string

const (
	AgentIdle       AgentStatus = "idle"
	AgentThinking   AgentStatus = "thinking"
	AgentGenerating AgentStatus = "generating"
	AgentTesting    AgentStatus = "testing"
	AgentDebugging  AgentStatus = "debugging"
	AgentErrored    AgentStatus = "error"
)

// Agent pairs a role with its current status for listings.
type Agent struct {
	Role   AgentRole   `yaml:"role" json:"role"`
	Status AgentStatus `yaml:"status" json:"status"`
}

// AgentCapability declares one operation a collaborator implementation
// supports. Capability sets are fixed at construction and checked before
// invocation instead of probing at runtime.
type AgentCapability struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Inputs      []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs     []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}
