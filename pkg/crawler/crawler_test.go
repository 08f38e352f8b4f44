package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamedex-scraper/pkg/config"
	"gamedex-scraper/pkg/extract"
	"gamedex-scraper/pkg/fetch"
	"gamedex-scraper/pkg/ledger"
	"gamedex-scraper/pkg/models"
	"gamedex-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

var nesGroup = models.Group{Name: "NES", ID: 3}

const dumpPage = `<html><body><table>
<tr><th>Trusted Dump</th></tr>
<tr><td>CRC32</td><td>ab12cd34</td></tr>
</table></body></html>`

// testHarness wires a crawler against an httptest server whose behavior is
// chosen per request path.
type testHarness struct {
	cfg      *config.AppConfig
	led      *ledger.Ledger
	crawler  *Crawler
	requests *atomic.Int32
}

func newHarness(t *testing.T, batchSize int, handler http.HandlerFunc) *testHarness {
	t.Helper()

	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	timeout := 50 * time.Millisecond
	cfg := &config.AppConfig{
		AddressTemplate: server.URL + "/vault/%s/%04d",
		BatchSize:       batchSize,
		FetchTimeout:    timeout,
		LedgerDir:       t.TempDir(),
		BatchDir:        t.TempDir(),
	}

	led, err := ledger.New(cfg.LedgerDir, testLogger())
	require.NoError(t, err)

	fetcher := fetch.NewFetcher(&http.Client{}, cfg.AddressTemplate, "gamedex-test/1.0", "you have been banned", timeout, testLogger())
	c := New(cfg, fetcher, extract.Extract, led, nil, nil, 0, "testhost", "run-test", testLogger())

	return &testHarness{cfg: cfg, led: led, crawler: c, requests: requests}
}

func (h *testHarness) batchLines(t *testing.T, group models.Group) []string {
	t.Helper()
	data, err := os.ReadFile(BatchPath(h.cfg.BatchDir, group, "testhost"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestRunGroup_Scenario(t *testing.T) {
	// Existing ledger: entry 1 succeeded. Batch size 2 -> plan [2, 3].
	// Entry 2 times out, entry 3 succeeds.
	h := newHarness(t, 2, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/vault/NES/0002":
			time.Sleep(300 * time.Millisecond)
		case "/vault/NES/0003":
			io.WriteString(w, dumpPage)
		default:
			http.Error(w, fmt.Sprintf("unexpected path %s", r.URL.Path), http.StatusInternalServerError)
		}
	})

	a, err := h.led.OpenAppender(nesGroup, "prior-run")
	require.NoError(t, err)
	require.NoError(t, a.Append(1, models.EntryStatusSuccess, 0.9))
	require.NoError(t, a.Close())

	require.NoError(t, h.crawler.RunGroup(context.Background(), nesGroup))

	status, highest, err := h.led.Load(nesGroup)
	require.NoError(t, err)
	assert.Len(t, status, 3)
	assert.Equal(t, models.EntryStatusSuccess, status[1].Status)
	assert.Equal(t, models.EntryStatusTimeout, status[2].Status)
	assert.Equal(t, models.EntryStatusSuccess, status[3].Status)
	assert.Equal(t, 3, highest)

	lines := h.batchLines(t, nesGroup)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"id":3`)
	assert.Contains(t, lines[0], `"group":"NES"`)
	assert.Contains(t, lines[0], `"duration"`)
	assert.Contains(t, lines[0], "ab12cd34")
}

func TestRunGroup_BanShortCircuits(t *testing.T) {
	h := newHarness(t, 3, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>you have been banned</html>")
	})

	err := h.crawler.RunGroup(context.Background(), nesGroup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrBanned))

	// The first fetch tripped the breaker: no further fetches, and no ledger
	// event of any kind for the banned entry
	assert.Equal(t, int32(1), h.requests.Load())
	status, _, err := h.led.Load(nesGroup)
	require.NoError(t, err)
	assert.Empty(t, status)
	assert.Empty(t, h.batchLines(t, nesGroup))
}

func TestRunGroup_NoDataIsTerminal(t *testing.T) {
	h := newHarness(t, 2, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body>no dump table here</body></html>")
	})

	require.NoError(t, h.crawler.RunGroup(context.Background(), nesGroup))

	status, highest, err := h.led.Load(nesGroup)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusNoData, status[1].Status)
	assert.Equal(t, models.EntryStatusNoData, status[2].Status)
	assert.Equal(t, 2, highest)
	assert.Empty(t, h.batchLines(t, nesGroup))

	// A second run must plan past the no_data frontier, not retry it
	require.NoError(t, h.crawler.RunGroup(context.Background(), nesGroup))
	_, highest, err = h.led.Load(nesGroup)
	require.NoError(t, err)
	assert.Equal(t, 4, highest)
}

func TestRun_BanAbortsRemainingGroups(t *testing.T) {
	h := newHarness(t, 1, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>you have been banned</html>")
	})

	groups := []models.Group{nesGroup, {Name: "Genesis", ID: 6}}
	err := h.crawler.Run(context.Background(), groups)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrBanned))
	assert.Equal(t, int32(1), h.requests.Load())
}

func TestRun_GroupFailureDoesNotAbortOthers(t *testing.T) {
	// Genesis entries 500 (fatal for that group); NES entries succeed
	h := newHarness(t, 1, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "Genesis") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, dumpPage)
	})

	groups := []models.Group{{Name: "Genesis", ID: 6}, nesGroup}
	require.NoError(t, h.crawler.Run(context.Background(), groups))

	status, _, err := h.led.Load(nesGroup)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusSuccess, status[1].Status)
}

func TestRunGroup_ExactlyOneEventPerAttempt(t *testing.T) {
	h := newHarness(t, 3, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, dumpPage)
	})

	require.NoError(t, h.crawler.RunGroup(context.Background(), nesGroup))

	data, err := os.ReadFile(h.led.Path(nesGroup))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
}
