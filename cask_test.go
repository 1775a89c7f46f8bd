package cask_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/cask"
	"github.com/iamNilotpal/cask/pkg/options"
)

func tempStore(t *testing.T) (*cask.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	store, err := cask.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func Test_Set_And_Get(t *testing.T) {
	store, _ := tempStore(t)

	require.NoError(t, store.Set([]byte("name"), []byte("alice")))

	value, ok, err := store.Get([]byte("name"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("alice"), value)
}

func Test_Get_NonExistent_Key_Returns_False(t *testing.T) {
	store, _ := tempStore(t)

	value, ok, err := store.Get([]byte("ghost"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, value)
}

func Test_Delete_Key(t *testing.T) {
	store, _ := tempStore(t)

	require.NoError(t, store.Set([]byte("key"), []byte("value")))
	require.NoError(t, store.Del([]byte("key")))

	_, ok, err := store.Get([]byte("key"))
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Delete_NonExistent_Key_Is_Ok(t *testing.T) {
	store, _ := tempStore(t)
	require.NoError(t, store.Del([]byte("nothing")))
}

func Test_Overwrite_Key(t *testing.T) {
	store, _ := tempStore(t)

	require.NoError(t, store.Set([]byte("k"), []byte("v1")))
	require.NoError(t, store.Set([]byte("k"), []byte("v2")))

	value, ok, err := store.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), value)
}

func Test_Multiple_Keys(t *testing.T) {
	store, _ := tempStore(t)

	pairs := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range pairs {
		require.NoError(t, store.Set([]byte(k), []byte(v)))
	}

	for k, v := range pairs {
		value, ok, err := store.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, v, string(value))
	}
}

func Test_Index_Rebuilt_After_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	store, err := cask.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Set([]byte("foo"), []byte("bar")))
	require.NoError(t, store.Set([]byte("hello"), []byte("world")))
	require.NoError(t, store.Close())

	reopened, err := cask.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get([]byte("foo"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("bar"), value)

	value, ok, err = reopened.Get([]byte("hello"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("world"), value)
}

func Test_Delete_Persists_After_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	store, err := cask.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Set([]byte("key"), []byte("val")))
	require.NoError(t, store.Del([]byte("key")))
	require.NoError(t, store.Close())

	reopened, err := cask.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err := reopened.Get([]byte("key"))
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Empty_Value(t *testing.T) {
	store, _ := tempStore(t)

	require.NoError(t, store.Set([]byte("empty"), []byte{}))

	value, ok, err := store.Get([]byte("empty"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{}, value)
}

func Test_Large_Value(t *testing.T) {
	store, _ := tempStore(t)

	large := make([]byte, options.DefaultCompactThreshold)
	for i := range large {
		large[i] = 0xAB
	}

	require.NoError(t, store.Set([]byte("big"), large))

	value, ok, err := store.Get([]byte("big"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, large, value)
}

func Test_Binary_Keys_And_Values(t *testing.T) {
	store, _ := tempStore(t)

	key := []byte{0x00, 0xFF, 0x42, 0x13}
	val := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	require.NoError(t, store.Set(key, val))

	value, ok, err := store.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, val, value)
}

func Test_Many_Overwrites_Index_Stays_Correct(t *testing.T) {
	store, _ := tempStore(t)

	for i := uint32(0); i < 100; i++ {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], i)
		require.NoError(t, store.Set([]byte("counter"), buf[:]))
	}

	var want [4]byte
	binary.LittleEndian.PutUint32(want[:], 99)

	value, ok, err := store.Get([]byte("counter"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want[:], value)
}

func Test_Compact_Live_Keys_Still_Readable(t *testing.T) {
	store, _ := tempStore(t)

	require.NoError(t, store.Set([]byte("a"), []byte("1")))
	require.NoError(t, store.Set([]byte("b"), []byte("2")))
	require.NoError(t, store.Compact())

	value, ok, err := store.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), value)

	value, ok, err = store.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), value)
}

func Test_Compact_Removes_Stale_Entries(t *testing.T) {
	store, path := tempStore(t)

	for i := uint32(0); i < 50; i++ {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], i)
		require.NoError(t, store.Set([]byte("k"), buf[:]))
	}

	sizeBefore := fileSize(t, path)
	require.NoError(t, store.Compact())
	sizeAfter := fileSize(t, path)

	require.Less(t, sizeAfter, sizeBefore)

	var want [4]byte
	binary.LittleEndian.PutUint32(want[:], 49)
	value, ok, err := store.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want[:], value)
}

func Test_Compact_Drops_Deleted_Keys(t *testing.T) {
	store, _ := tempStore(t)

	require.NoError(t, store.Set([]byte("gone"), []byte("bye")))
	require.NoError(t, store.Del([]byte("gone")))
	require.NoError(t, store.Compact())

	_, ok, err := store.Get([]byte("gone"))
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Compact_Empty_Store(t *testing.T) {
	store, path := tempStore(t)

	require.NoError(t, store.Compact())

	_, ok, err := store.Get([]byte("anything"))
	require.NoError(t, err)
	require.False(t, ok)
	require.EqualValues(t, 12, fileSize(t, path))
}

func Test_Auto_Compact_Triggered_By_Threshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	const threshold = 512

	store, err := cask.Open(path, options.WithCompactThreshold(threshold))
	require.NoError(t, err)
	defer store.Close()

	for i := uint32(0); i < 200; i++ {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], i)
		require.NoError(t, store.Set([]byte("key"), buf[:]))
	}

	require.Less(t, fileSize(t, path), int64(threshold*10))

	var want [4]byte
	binary.LittleEndian.PutUint32(want[:], 199)
	value, ok, err := store.Get([]byte("key"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want[:], value)
}

func Test_Threshold_Persisted_In_File_Header(t *testing.T) {
	store, path := tempStore(t)

	require.NoError(t, store.Set([]byte("k"), []byte("v")))

	require.GreaterOrEqual(t, fileSize(t, path), int64(12))
	require.EqualValues(t, options.DefaultCompactThreshold, readThresholdFromFile(t, path))
}

func Test_Threshold_Doubles_When_Compaction_Size_Unchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	const threshold = 64

	store, err := cask.Open(path, options.WithCompactThreshold(threshold))
	require.NoError(t, err)
	defer store.Close()

	value := make([]byte, 256)
	for i := range value {
		value[i] = 'x'
	}
	require.NoError(t, store.Set([]byte("only-key"), value))

	require.EqualValues(t, threshold*2, readThresholdFromFile(t, path))
}

func Test_Concurrent_Reads_During_Compaction(t *testing.T) {
	store, _ := tempStore(t)

	keys := make([][]byte, 20)
	for i := range keys {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(i))
		keys[i] = append([]byte("pre-"), buf[:]...)
		require.NoError(t, store.Set(keys[i], []byte("value")))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, k := range keys {
					_, ok, err := store.Get(k)
					require.NoError(t, err)
					require.True(t, ok)
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Compact())
	}
	close(stop)
	wg.Wait()
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func readThresholdFromFile(t *testing.T, path string) uint64 {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var header [12]byte
	_, err = f.ReadAt(header[:], 0)
	require.NoError(t, err)
	require.Equal(t, "KVS1", string(header[0:4]))

	return binary.LittleEndian.Uint64(header[4:12])
}
