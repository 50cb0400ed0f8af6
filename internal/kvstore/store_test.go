package kvstore

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDeletePersist(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s, err := Open(fsys, "/home/.mvlens/state.json")
	require.NoError(t, err)

	require.NoError(t, s.Set("currentSession", "wine"))

	reopened, err := Open(fsys, "/home/.mvlens/state.json")
	require.NoError(t, err)
	var name string
	ok, err := reopened.Get("currentSession", &name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "wine", name)

	require.NoError(t, reopened.Delete("currentSession"))
	ok, err = reopened.Get("currentSession", &name)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenCorruptFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/state.json", []byte("{not json"), 0o644))
	_, err := Open(fsys, "/state.json")
	assert.Error(t, err)
}
