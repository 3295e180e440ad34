package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/be-approvals/internal/errors"
)

func TestParseRole(t *testing.T) {
	for _, name := range []string{"viewer", "user", "manager", "admin", "owner"} {
		r, err := ParseRole(name)
		require.NoError(t, err)
		assert.Equal(t, Role(name), r)
	}

	_, err := ParseRole("superuser")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfiguration, errors.CodeOf(err))
}

func TestRole_Satisfies(t *testing.T) {
	assert.True(t, RoleAdmin.Satisfies(RoleManager))
	assert.True(t, RoleManager.Satisfies(RoleManager))
	assert.True(t, RoleOwner.Satisfies(RoleViewer))
	assert.False(t, RoleUser.Satisfies(RoleManager))
	assert.False(t, RoleViewer.Satisfies(RoleUser))
	assert.False(t, Role("superuser").Satisfies(RoleViewer))
	assert.False(t, RoleOwner.Satisfies(Role("superuser")))
}

func TestSatisfiableRoles(t *testing.T) {
	assert.Equal(t,
		[]Role{RoleViewer, RoleUser, RoleManager, RoleAdmin},
		SatisfiableRoles([]Role{RoleAdmin}))

	assert.Equal(t,
		[]Role{RoleViewer, RoleUser, RoleManager, RoleAdmin, RoleOwner},
		SatisfiableRoles([]Role{RoleUser, RoleOwner}))

	assert.Equal(t,
		[]Role{RoleViewer},
		SatisfiableRoles([]Role{RoleViewer}))

	assert.Nil(t, SatisfiableRoles(nil))
}
