package pagecache

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamedex-scraper/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

var nesGroup = models.Group{Name: "NES", ID: 3}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)

	page := Page{Elapsed: 1.25, Body: []byte("<html>cached</html>")}
	require.NoError(t, s.Put(nesGroup, 42, page))

	got, found, err := s.Get(nesGroup, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, page, got)
}

func TestGet_Missing(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.Get(nesGroup, 999)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPut_Overwrites(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put(nesGroup, 1, Page{Elapsed: 1, Body: []byte("old")}))
	require.NoError(t, s.Put(nesGroup, 1, Page{Elapsed: 2, Body: []byte("new")}))

	got, found, err := s.Get(nesGroup, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("new"), got.Body)
}

func TestEach_GroupIsolation(t *testing.T) {
	s := newTestStore(t)
	genesis := models.Group{Name: "Genesis", ID: 6}

	require.NoError(t, s.Put(nesGroup, 1, Page{Body: []byte("nes1")}))
	require.NoError(t, s.Put(nesGroup, 2, Page{Body: []byte("nes2")}))
	require.NoError(t, s.Put(genesis, 1, Page{Body: []byte("gen1")}))

	var seen []int
	err := s.Each(nesGroup, func(entryID int, page Page) error {
		seen = append(seen, entryID)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, seen)
}

func TestEach_CallbackErrorStopsIteration(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put(nesGroup, 1, Page{Body: []byte("a")}))
	require.NoError(t, s.Put(nesGroup, 2, Page{Body: []byte("b")}))

	calls := 0
	err := s.Each(nesGroup, func(entryID int, page Page) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}
