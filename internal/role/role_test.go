package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	r, err := Parse(" Editor ")
	require.NoError(t, err)
	assert.Equal(t, Editor, r)

	_, err = Parse("superuser")
	require.ErrorIs(t, err, ErrUnknownRole)
	assert.Contains(t, err.Error(), "superuser")
}

func TestLevels(t *testing.T) {
	assert.Equal(t, 1, Admin.Level())
	assert.Equal(t, 0, Role("ghost").Level())

	assert.True(t, Admin.Outranks(Editor))
	assert.True(t, Editor.Outranks(Viewer))
	assert.False(t, Editor.Outranks(Reviewer))
	assert.False(t, Reviewer.Outranks(Editor))
	assert.False(t, Viewer.Outranks(Admin))
	assert.False(t, Role("ghost").Outranks(Viewer))
}
