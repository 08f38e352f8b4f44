package ledger

import (
	"fmt"
	"io"
	"os"
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

var testGroup = models.Group{Name: "NES", ID: 3}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(t.TempDir(), testLogger())
	require.NoError(t, err)
	return l
}

func TestLoad_MissingFileIsFreshGroup(t *testing.T) {
	l := newTestLedger(t)

	status, highest, err := l.Load(testGroup)
	require.NoError(t, err)
	assert.Empty(t, status)
	assert.Equal(t, 0, highest)
}

func TestAppendThenLoad_ReplayDeterminism(t *testing.T) {
	l := newTestLedger(t)

	a, err := l.OpenAppender(testGroup, "run-1")
	require.NoError(t, err)
	require.NoError(t, a.Append(1, models.EntryStatusSuccess, 0.8))
	require.NoError(t, a.Append(2, models.EntryStatusTimeout, 30.0))
	require.NoError(t, a.Append(3, models.EntryStatusNoData, 0.4))
	// Later write for entry 2 supersedes the earlier one on replay
	require.NoError(t, a.Append(2, models.EntryStatusSuccess, 1.2))
	require.NoError(t, a.Close())

	status, highest, err := l.Load(testGroup)
	require.NoError(t, err)

	assert.Len(t, status, 3)
	assert.Equal(t, models.EntryStatusSuccess, status[1].Status)
	assert.Equal(t, models.EntryStatusSuccess, status[2].Status)
	assert.Equal(t, 1.2, status[2].Duration)
	assert.Equal(t, models.EntryStatusNoData, status[3].Status)
	assert.Equal(t, 3, highest)
	assert.Equal(t, "run-1", status[1].RunID)
}

func TestLoad_HighestCountsAllStatuses(t *testing.T) {
	// A no_data or timeout entry still advances the new-ID frontier;
	// known-empty slots must not be refetched forever
	l := newTestLedger(t)

	a, err := l.OpenAppender(testGroup, "run-1")
	require.NoError(t, err)
	require.NoError(t, a.Append(5, models.EntryStatusSuccess, 1.0))
	require.NoError(t, a.Append(9, models.EntryStatusNoData, 0.5))
	require.NoError(t, a.Append(7, models.EntryStatusTimeout, 30.0))
	require.NoError(t, a.Close())

	_, highest, err := l.Load(testGroup)
	require.NoError(t, err)
	assert.Equal(t, 9, highest)
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	l := newTestLedger(t)

	a, err := l.OpenAppender(testGroup, "run-1")
	require.NoError(t, err)
	require.NoError(t, a.Append(1, models.EntryStatusSuccess, 1.0))
	require.NoError(t, a.Close())

	// Corrupt the history with junk and a structurally valid but unknown status
	f, err := os.OpenFile(l.Path(testGroup), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	fmt.Fprintln(f, "{not json at all")
	fmt.Fprintln(f, `{"group_id":3,"group":"NES","id":4,"status":"exploded","duration":1}`)
	require.NoError(t, f.Close())

	a, err = l.OpenAppender(testGroup, "run-2")
	require.NoError(t, err)
	require.NoError(t, a.Append(2, models.EntryStatusTimeout, 30.0))
	require.NoError(t, a.Close())

	status, highest, err := l.Load(testGroup)
	require.NoError(t, err)
	assert.Len(t, status, 2)
	assert.Equal(t, models.EntryStatusSuccess, status[1].Status)
	assert.Equal(t, models.EntryStatusTimeout, status[2].Status)
	assert.Equal(t, 2, highest)
}

func TestAppend_ImmediatelyVisibleToLoad(t *testing.T) {
	l := newTestLedger(t)

	a, err := l.OpenAppender(testGroup, "run-1")
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Append(1, models.EntryStatusTimeout, 30.0))

	// No Close in between: the event must already be on disk
	status, _, err := l.Load(testGroup)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusTimeout, status[1].Status)
}

func TestLedgerPaths_DistinctPerGroup(t *testing.T) {
	l := newTestLedger(t)
	other := models.Group{Name: "Super Nintendo", ID: 4}
	assert.NotEqual(t, l.Path(testGroup), l.Path(other))
}
