// Package crawler drives the per-group crawl state machine: plan, fetch,
// extract, record. Execution is strictly sequential with an enforced delay
// between attempts; politeness is the point, so there is no parallel
// fetching anywhere in this package.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gamedex-scraper/pkg/config"
	"gamedex-scraper/pkg/fetch"
	"gamedex-scraper/pkg/ledger"
	"gamedex-scraper/pkg/metrics"
	"gamedex-scraper/pkg/models"
	"gamedex-scraper/pkg/pagecache"
	"gamedex-scraper/pkg/plan"
	"gamedex-scraper/pkg/utils"
)

// ExtractFunc is the extractor contract: deterministic, side-effect-free,
// returning either a flat record (entry identity echoed) or utils.ErrNoData
// when the page genuinely lacks the target structure.
type ExtractFunc func(body []byte, group models.Group, entryID int) (models.Record, error)

// Crawler executes one run across the configured groups.
type Crawler struct {
	cfg     *config.AppConfig
	fetcher *fetch.Fetcher
	extract ExtractFunc
	ledger  *ledger.Ledger
	cache   *pagecache.Store // nil when caching is disabled
	metrics *metrics.Metrics // nil-safe
	delay   time.Duration
	machine string
	runID   string
	log     *logrus.Entry
}

// New wires a Crawler from its collaborators. delay comes from the resolved
// rate policy and is fixed for the process lifetime.
func New(
	cfg *config.AppConfig,
	fetcher *fetch.Fetcher,
	extractFn ExtractFunc,
	led *ledger.Ledger,
	cache *pagecache.Store,
	m *metrics.Metrics,
	delay time.Duration,
	machine, runID string,
	log *logrus.Entry,
) *Crawler {
	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		extract: extractFn,
		ledger:  led,
		cache:   cache,
		metrics: m,
		delay:   delay,
		machine: machine,
		runID:   runID,
		log:     log.WithField("run_id", runID),
	}
}

// Run processes every group in sequence. A detected ban aborts the whole run
// (already-flushed batch records and ledger events stay valid); any other
// per-group failure is logged and the remaining groups still get their turn.
func (c *Crawler) Run(ctx context.Context, groups []models.Group) error {
	for _, group := range groups {
		if err := c.RunGroup(ctx, group); err != nil {
			if errors.Is(err, utils.ErrBanned) || ctx.Err() != nil {
				return err
			}
			c.log.WithField("group", group.Name).Errorf(
				"Group crawl failed (%s), continuing with next group: %v", utils.CategorizeError(err), err)
		}
	}
	return nil
}

// RunGroup replays the group's ledger, plans this run's batch, and works
// through it one entry at a time.
func (c *Crawler) RunGroup(ctx context.Context, group models.Group) error {
	groupLog := c.log.WithField("group", group.Name)

	status, highestID, err := c.ledger.Load(group)
	if err != nil {
		return err
	}

	planned := plan.Build(status, highestID, c.cfg.BatchSize)
	retries := 0
	for _, id := range planned {
		if id <= highestID {
			retries++
		}
	}
	groupLog.WithFields(logrus.Fields{
		"planned": len(planned), "retries": retries, "highest_id": highestID,
	}).Info("Starting group crawl")

	appender, err := c.ledger.OpenAppender(group, c.runID)
	if err != nil {
		return err
	}
	defer appender.Close()

	batch, err := OpenBatchWriter(c.cfg.BatchDir, group, c.machine, groupLog)
	if err != nil {
		return err
	}
	defer batch.Close()

	for _, entryID := range planned {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Safety net against planner bugs: never refetch a terminal entry
		if ev, seen := status[entryID]; seen && ev.Status.Terminal() {
			groupLog.WithFields(logrus.Fields{"entry_id": entryID, "status": ev.Status.String()}).
				Debug("Skipping entry with terminal status")
			continue
		}

		if err := c.attempt(ctx, group, entryID, appender, batch, groupLog); err != nil {
			return err
		}

		if err := c.sleep(ctx); err != nil {
			return err
		}
	}

	groupLog.Info("Group crawl finished")
	return nil
}

// attempt performs the fetch/extract/record cycle for one entry. Exactly one
// ledger event is appended per attempt; a ban appends none and aborts.
func (c *Crawler) attempt(ctx context.Context, group models.Group, entryID int, appender *ledger.Appender, batch *BatchWriter, groupLog *logrus.Entry) error {
	entryLog := groupLog.WithField("entry_id", entryID)

	result, err := c.fetcher.FetchEntry(ctx, group, entryID)
	if err != nil {
		return err
	}
	c.metrics.IncFetch(result.Outcome.String())
	c.metrics.ObserveFetchDuration(time.Duration(result.Elapsed * float64(time.Second)))

	switch result.Outcome {
	case fetch.OutcomeBanned:
		// No ledger event for this entry; the run is over
		return fmt.Errorf("entry %d of group %s: %w", entryID, group.Name, utils.ErrBanned)

	case fetch.OutcomeTimeout:
		if err := appender.Append(entryID, models.EntryStatusTimeout, result.Elapsed); err != nil {
			return err
		}
		c.metrics.IncLedgerEvent(string(models.EntryStatusTimeout))
		return nil
	}

	record, err := c.extract(result.Body, group, entryID)
	if err != nil {
		if errors.Is(err, utils.ErrNoData) {
			entryLog.Info("No extractable data, marking terminal")
			if err := appender.Append(entryID, models.EntryStatusNoData, result.Elapsed); err != nil {
				return err
			}
			c.metrics.IncLedgerEvent(string(models.EntryStatusNoData))
			return nil
		}
		return err
	}

	record[models.KeyDuration] = result.Elapsed
	record[models.KeyGroup] = group.Name

	if err := batch.Append(record); err != nil {
		return err
	}
	c.metrics.IncRecord()

	if c.cache != nil {
		if err := c.cache.Put(group, entryID, pagecache.Page{Elapsed: result.Elapsed, Body: result.Body}); err != nil {
			entryLog.Warnf("Page cache write failed (continuing): %v", err)
		}
	}

	if err := appender.Append(entryID, models.EntryStatusSuccess, result.Elapsed); err != nil {
		return err
	}
	c.metrics.IncLedgerEvent(string(models.EntryStatusSuccess))
	return nil
}

// sleep applies the rate policy delay between attempts, honoring
// cancellation. Applied uniformly regardless of the attempt's outcome.
func (c *Crawler) sleep(ctx context.Context) error {
	if c.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(c.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
