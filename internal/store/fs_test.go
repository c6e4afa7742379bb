package store

import (
	"testing"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *FSStore {
	t.Helper()
	fsys, err := mem.NewFS()
	require.NoError(t, err)
	return NewFSStore(fsys)
}

func TestWriteRead(t *testing.T) {
	st := newMemStore(t)

	require.NoError(t, st.MkdirAll("agents/main"))
	require.NoError(t, st.Write("agents/main/brain.md", []byte("## User\n")))

	got, err := st.Read("agents/main/brain.md")
	require.NoError(t, err)
	assert.Equal(t, "## User\n", string(got))
	assert.True(t, st.Exists("agents/main/brain.md"))
}

func TestRead_Missing(t *testing.T) {
	st := newMemStore(t)
	_, err := st.Read("nope.md")
	assert.Error(t, err)
	assert.False(t, st.Exists("nope.md"))
}

func TestRemove(t *testing.T) {
	st := newMemStore(t)
	require.NoError(t, st.Write("a.txt", []byte("x")))
	require.NoError(t, st.Remove("a.txt"))
	assert.False(t, st.Exists("a.txt"))
}

func TestList(t *testing.T) {
	st := newMemStore(t)
	require.NoError(t, st.MkdirAll("dir/sub"))
	require.NoError(t, st.Write("dir/b.md", []byte("b")))
	require.NoError(t, st.Write("dir/a.md", []byte("a")))

	listing, err := st.List("dir")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, listing.Files)
	assert.Equal(t, []string{"sub"}, listing.Folders)
}

func TestList_MissingDirIsEmpty(t *testing.T) {
	st := newMemStore(t)
	listing, err := st.List("never/created")
	require.NoError(t, err)
	assert.Empty(t, listing.Files)
	assert.Empty(t, listing.Folders)
}

func TestWorkspaceStore(t *testing.T) {
	dir := t.TempDir()
	st, err := NewWorkspaceStore(dir)
	require.NoError(t, err)

	require.NoError(t, st.MkdirAll("agents"))
	require.NoError(t, st.Write("agents/x.md", []byte("hello")))

	got, err := st.Read("agents/x.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}
