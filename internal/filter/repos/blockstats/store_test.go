package blockstats

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "stats.db")
}

func TestStore_RecordAndTop(t *testing.T) {
	st, err := Open(tempDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	t0 := time.Unix(1_700_000_000, 0)
	require.NoError(t, st.Record("http://www.gambling.com/play", t0))
	require.NoError(t, st.Record("https://cdn.gambling.com/x.js", t0.Add(time.Minute)))
	require.NoError(t, st.Record("https://ads.nsfw.net/", t0))
	require.NoError(t, st.Record("http://10.0.0.1/admin", t0))

	top, err := st.Top(0)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "gambling.com", top[0].Domain)
	assert.Equal(t, uint64(2), top[0].Count)
	assert.Equal(t, t0.Add(time.Minute).Unix(), top[0].LastSeen.Unix())
	assert.Equal(t, "10.0.0.1", top[1].Domain)
	assert.Equal(t, "nsfw.net", top[2].Domain)

	top, err = st.Top(1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	assert.Equal(t, uint64(4), st.Total())
}

func TestStore_RecordWithoutHost(t *testing.T) {
	st, err := Open(tempDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	assert.ErrorIs(t, st.Record("", time.Now()), ErrNoDomain)
	assert.Zero(t, st.Total())
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := tempDB(t)
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Record("http://gambling.com/", time.Now()))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	assert.Equal(t, uint64(1), st.Total())
}

func TestStore_ConcurrentRecord(t *testing.T) {
	st, err := Open(tempDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = st.Record("http://nsfw.net/", time.Now())
			}
		}()
	}
	wg.Wait()

	top, err := st.Top(0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, uint64(100), top[0].Count)
	assert.Equal(t, uint64(100), st.Total())
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "stats.db"))
	assert.Error(t, err)
}

func TestDecodeValue_Malformed(t *testing.T) {
	c, l := decodeValue([]byte{1, 2, 3})
	assert.Zero(t, c)
	assert.Zero(t, l)
}
