package core

import (
	"sync"

	"forgeloop/pkg/models"
)

// AgentStatusRegistry tracks the current status of each named worker
// role. Writes are last-writer-wins overwrites; there is no queueing and
// no ordering guarantee across roles. The pipeline upholds the
// convention that at most one logical step writes a given role's status
// at a time.
type AgentStatusRegistry interface {
	SetStatus(role models.AgentRole, status models.AgentStatus)
	// GetStatus returns the role's current status, or idle when the role
	// has never been written.
	GetStatus(role models.AgentRole) models.AgentStatus
	// Snapshot returns every known role with its current status, in
	// display order.
	Snapshot() []models.Agent
}

type agentStatusRegistry struct {
	mu       sync.RWMutex
	statuses map[models.AgentRole]models.AgentStatus
}

// NewAgentStatusRegistry creates a registry with every role idle.
func NewAgentStatusRegistry() AgentStatusRegistry {
	return &agentStatusRegistry{statuses: make(map[models.AgentRole]models.AgentStatus)}
}

func (r *agentStatusRegistry) SetStatus(role models.AgentRole, status models.AgentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[role] = status
}

func (r *agentStatusRegistry) GetStatus(role models.AgentRole) models.AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.statuses[role]
	if !ok {
		return models.AgentIdle
	}
	return status
}

func (r *agentStatusRegistry) Snapshot() []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Agent, 0, len(models.AllRoles))
	for _, role := range models.AllRoles {
		status, ok := r.statuses[role]
		if !ok {
			status = models.AgentIdle
		}
		out = append(out, models.Agent{Role: role, Status: status})
	}
	return out
}
