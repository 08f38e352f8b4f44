package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"gamedex-scraper/pkg/models"
	"gamedex-scraper/pkg/utils"
)

// Outcome classifies a single entry fetch. There is deliberately no finer
// network error taxonomy: anything that is not content, a timeout, or a ban
// propagates as an error and aborts the run.
type Outcome int

const (
	OutcomeContent Outcome = iota // 2xx response, body captured
	OutcomeTimeout                // Request exceeded the configured timeout
	OutcomeBanned                 // Response body contains the ban marker
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContent:
		return "content"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeBanned:
		return "banned"
	}
	return "unknown"
}

// Result is the classified outcome of one fetch attempt.
type Result struct {
	Outcome Outcome
	Body    []byte  // Set only for OutcomeContent
	Elapsed float64 // Seconds; the configured timeout for OutcomeTimeout
}

// Fetcher performs one bounded network retrieval per catalog entry. It never
// retries on its own: timed-out entries are re-planned by a future run from
// the status ledger.
type Fetcher struct {
	client          *http.Client
	addressTemplate string
	userAgent       string
	banMarker       []byte
	timeout         time.Duration
	log             *logrus.Entry
}

// NewFetcher creates a Fetcher around an explicitly constructed client.
func NewFetcher(client *http.Client, addressTemplate, userAgent, banMarker string, timeout time.Duration, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:          client,
		addressTemplate: addressTemplate,
		userAgent:       userAgent,
		banMarker:       bytes.ToLower([]byte(banMarker)),
		timeout:         timeout,
		log:             log,
	}
}

// EntryURL builds the record page address for a group and entry ID.
// The entry ID is zero-padded to 4 digits.
func (f *Fetcher) EntryURL(group models.Group, entryID int) string {
	return fmt.Sprintf(f.addressTemplate, url.PathEscape(group.Name), entryID)
}

// FetchEntry retrieves one catalog entry page and classifies the result.
// The ban check runs before anything else is considered, even if the body
// would otherwise parse.
func (f *Fetcher) FetchEntry(ctx context.Context, group models.Group, entryID int) (Result, error) {
	entryURL := f.EntryURL(group, entryID)
	reqLog := f.log.WithFields(logrus.Fields{"group": group.Name, "entry_id": entryID, "url": entryURL})

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, entryURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) && !errors.Is(ctx.Err(), context.Canceled) {
			reqLog.WithField("elapsed", time.Since(start)).Warn("Fetch timed out")
			return Result{Outcome: OutcomeTimeout, Elapsed: f.timeout.Seconds()}, nil
		}
		return Result{}, fmt.Errorf("fetching %s: %w", entryURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if isTimeout(err) {
			reqLog.Warn("Fetch timed out reading body")
			return Result{Outcome: OutcomeTimeout, Elapsed: f.timeout.Seconds()}, nil
		}
		return Result{}, fmt.Errorf("reading body of %s: %w", entryURL, err)
	}

	// Ban check takes precedence over status handling and extraction
	if len(f.banMarker) > 0 && bytes.Contains(bytes.ToLower(body), f.banMarker) {
		reqLog.Error("BAN MARKER DETECTED - aborting run; operator intervention required before recrawling")
		return Result{Outcome: OutcomeBanned, Elapsed: elapsed}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("%w: %d %s fetching %s", utils.ErrUnexpectedStatus, resp.StatusCode, resp.Status, entryURL)
	}

	reqLog.WithField("elapsed_s", elapsed).Debug("Fetched entry")
	return Result{Outcome: OutcomeContent, Body: body, Elapsed: elapsed}, nil
}

// isTimeout reports whether err is a deadline/timeout style failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
