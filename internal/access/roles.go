// Package access gates the vault's administrative surface by named role.
package access

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
)

const AccessCodespace = "access"

var ErrUnauthorized = errorsmod.Register(AccessCodespace, 2, "unauthorized")

// Role names a capability on the vault.
type Role string

const (
	RoleStrategyManager Role = "STRATEGY_MANAGER"
	RoleAllocator       Role = "ALLOCATOR"
	RoleFeeManager      Role = "FEE_MANAGER"
	RoleLimitManager    Role = "LIMIT_MANAGER"
	RoleQueueManager    Role = "QUEUE_MANAGER"
	RoleEpochManager    Role = "EPOCH_MANAGER"
	RoleClaimer         Role = "CLAIMER"
	RoleHookManager     Role = "HOOK_MANAGER"

	// RoleAdmin implies every other role.
	RoleAdmin Role = "ADMIN"
)

// AllRoles lists every role except admin.
var AllRoles = []Role{
	RoleStrategyManager,
	RoleAllocator,
	RoleFeeManager,
	RoleLimitManager,
	RoleQueueManager,
	RoleEpochManager,
	RoleClaimer,
	RoleHookManager,
}

// Authorizer answers role membership questions. Role administration lives
// outside the vault.
type Authorizer interface {
	HasRole(role Role, account uuid.UUID) bool
}

// Require returns ErrUnauthorized naming caller and role when caller lacks it.
func Require(auth Authorizer, role Role, caller uuid.UUID) error {
	if auth == nil || !auth.HasRole(role, caller) {
		return errorsmod.Wrapf(ErrUnauthorized, "caller %s missing role %s", caller, role)
	}
	return nil
}

// Registry is an in-memory Authorizer.
type Registry struct {
	mu      sync.RWMutex
	members map[Role]map[uuid.UUID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[Role]map[uuid.UUID]struct{})}
}

func (r *Registry) Grant(role Role, account uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[role]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.members[role] = set
	}
	set[account] = struct{}{}
}

func (r *Registry) Revoke(role Role, account uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[role], account)
}

func (r *Registry) HasRole(role Role, account uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.members[RoleAdmin][account]; ok {
		return true
	}
	_, ok := r.members[role][account]
	return ok
}
