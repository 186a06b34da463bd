package access_test

import (
	"errors"
	"strings"
	"testing"

	"StrategyVault/internal/access"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequire_NamesCallerAndRole(t *testing.T) {
	reg := access.NewRegistry()
	caller := uuid.New()

	err := access.Require(reg, access.RoleAllocator, caller)
	assert.True(t, errors.Is(err, access.ErrUnauthorized))
	assert.True(t, strings.Contains(err.Error(), caller.String()))
	assert.True(t, strings.Contains(err.Error(), string(access.RoleAllocator)))

	reg.Grant(access.RoleAllocator, caller)
	assert.NoError(t, access.Require(reg, access.RoleAllocator, caller))

	reg.Revoke(access.RoleAllocator, caller)
	assert.Error(t, access.Require(reg, access.RoleAllocator, caller))
}

func TestRegistry_AdminImpliesAll(t *testing.T) {
	reg := access.NewRegistry()
	admin := uuid.New()
	reg.Grant(access.RoleAdmin, admin)

	for _, role := range access.AllRoles {
		assert.True(t, reg.HasRole(role, admin), "admin should hold %s", role)
	}
}
