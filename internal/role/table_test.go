package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/permission"
)

func TestIsGrantedByHierarchy(t *testing.T) {
	table := MustDefault()

	testCases := []struct {
		name     string
		role     Role
		perm     string
		expected bool
	}{
		{"editor inherits viewer read", Editor, "products:read", true},
		{"editor inherits viewer dashboard", Editor, "dashboard:view", true},
		{"viewer inherits nothing", Viewer, "products:create", false},
		{"editor and reviewer are siblings", Editor, "workflow:approve", false},
		{"reviewer and editor are siblings", Reviewer, "products:create", false},
		{"admin inherits reviewer", Admin, "workflow:approve", true},
		{"admin inherits editor", Admin, "products:create", true},
		{"hierarchy excludes own base", Admin, "anything:else", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, table.IsGrantedByHierarchy(tc.role, permission.MustParse(tc.perm)))
		})
	}
}

func TestIsGrantedByRole(t *testing.T) {
	table := MustDefault()

	assert.True(t, table.IsGrantedByRole(Admin, permission.MustParse("any:action")))
	assert.True(t, table.IsGrantedByRole(Reviewer, permission.MustParse("approve")))
	assert.False(t, table.IsGrantedByRole(Viewer, permission.MustParse("products:create")))
	assert.False(t, table.IsGrantedByRole(Role("ghost"), permission.MustParse("products:read")))
}

func TestEffectivePermissions_AdminHasMost(t *testing.T) {
	table := MustDefault()
	admin := table.EffectivePermissions(Admin, true)

	for _, r := range []Role{Editor, Reviewer, Viewer} {
		assert.Greater(t, len(admin), len(table.EffectivePermissions(r, true)), r)
		assert.Greater(t, len(table.EffectivePermissions(Admin, false)), len(table.EffectivePermissions(r, false)), r)
	}

	assert.Equal(t, admin, table.EffectivePermissions(Admin, false))

	assert.Len(t, table.EffectivePermissions(Viewer, true), 4)
	assert.Len(t, table.EffectivePermissions(Editor, false), 7)
}

func TestNewTable_Errors(t *testing.T) {
	_, err := NewTable(map[Role][]string{"ghost": {"a:b"}})
	require.ErrorIs(t, err, ErrUnknownRole)

	_, err = NewTable(map[Role][]string{Viewer: {"a:"}})
	require.ErrorIs(t, err, permission.ErrMalformed)
}

func TestWithMatcher(t *testing.T) {
	table, err := NewTable(map[Role][]string{Viewer: {"workflow:publish"}}, WithMatcher(permission.MatchStrict))
	require.NoError(t, err)

	assert.False(t, table.IsGrantedByRole(Viewer, permission.MustParse("publish")))
	assert.True(t, table.IsGrantedByRole(Viewer, permission.MustParse("workflow:publish")))
}

func TestPermissions_ReturnsCopy(t *testing.T) {
	table := MustDefault()

	perms := table.Permissions(Viewer)
	perms[0] = permission.MustParse("*")

	assert.False(t, table.IsGrantedByRole(Viewer, permission.MustParse("products:delete")))
}
