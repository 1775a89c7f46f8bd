package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/cask/internal/index"
	"github.com/iamNilotpal/cask/pkg/logger"
)

func newIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.New(&index.Config{Logger: logger.NewNop()})
	require.NoError(t, err)
	return idx
}

func Test_Insert_And_Lookup(t *testing.T) {
	idx := newIndex(t)

	idx.Insert("k", index.Locator{Pos: 12, Len: 5})

	loc, ok := idx.Lookup("k")
	require.True(t, ok)
	require.Equal(t, index.Locator{Pos: 12, Len: 5}, loc)
}

func Test_Lookup_Missing_Key(t *testing.T) {
	idx := newIndex(t)
	_, ok := idx.Lookup("missing")
	require.False(t, ok)
}

func Test_Remove_Key(t *testing.T) {
	idx := newIndex(t)
	idx.Insert("k", index.Locator{Pos: 0, Len: 1})
	idx.Remove("k")

	_, ok := idx.Lookup("k")
	require.False(t, ok)
}

func Test_Remove_Missing_Key_Is_Noop(t *testing.T) {
	idx := newIndex(t)
	idx.Remove("missing")
	require.Equal(t, 0, idx.Len())
}

func Test_Snapshot_Is_A_Copy(t *testing.T) {
	idx := newIndex(t)
	idx.Insert("a", index.Locator{Pos: 1, Len: 1})

	snap := idx.Snapshot()
	snap["b"] = index.Locator{Pos: 2, Len: 2}

	_, ok := idx.Lookup("b")
	require.False(t, ok, "mutating the snapshot must not affect the live index")
}

func Test_Replace_Swaps_Entire_Set(t *testing.T) {
	idx := newIndex(t)
	idx.Insert("old", index.Locator{Pos: 0, Len: 1})

	idx.Replace(map[string]index.Locator{"new": {Pos: 5, Len: 2}})

	_, ok := idx.Lookup("old")
	require.False(t, ok)

	loc, ok := idx.Lookup("new")
	require.True(t, ok)
	require.Equal(t, index.Locator{Pos: 5, Len: 2}, loc)
}

func Test_Close_Twice_Returns_Closed_Error(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.Close())

	err := idx.Close()
	require.ErrorIs(t, err, index.ErrIndexClosed)
}
