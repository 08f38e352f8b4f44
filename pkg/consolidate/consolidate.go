// Package consolidate merges per-run batch files and the existing canonical
// dataset for each group into one deduplicated canonical dataset. Batch
// files are never deleted, which is what makes the pass idempotent and
// safely re-runnable from any machine.
package consolidate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gamedex-scraper/pkg/metrics"
	"gamedex-scraper/pkg/models"
	"gamedex-scraper/pkg/utils"
)

// Consolidator owns the canonical dataset of every group for the duration
// of a pass. Only file work happens here, so unlike crawling, groups can be
// consolidated concurrently.
type Consolidator struct {
	batchDir     string
	canonicalDir string
	metrics      *metrics.Metrics // nil-safe
	log          *logrus.Entry
}

// New creates a Consolidator over the batch and canonical directories.
func New(batchDir, canonicalDir string, m *metrics.Metrics, log *logrus.Entry) *Consolidator {
	return &Consolidator{batchDir: batchDir, canonicalDir: canonicalDir, metrics: m, log: log}
}

// CanonicalPath returns the canonical dataset file for a group.
func (c *Consolidator) CanonicalPath(group models.Group) string {
	return filepath.Join(c.canonicalDir, utils.SanitizeFilename(group.Name)+".json")
}

// Run consolidates every group, fanning out across groups.
func (c *Consolidator) Run(ctx context.Context, groups []models.Group) error {
	if err := os.MkdirAll(c.canonicalDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating canonical dir %s: %v", utils.ErrConsolidate, c.canonicalDir, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := c.ConsolidateGroup(group)
			if err != nil {
				return fmt.Errorf("group %s: %w", group.Name, err)
			}
			c.metrics.AddConsolidated(n)
			return nil
		})
	}
	return g.Wait()
}

// ConsolidateGroup merges the group's canonical dataset with every batch
// file present, last-seen-wins on (group name, entry ID): existing canonical
// first, then batch files in sorted filename order, then line order within
// each file. Returns the number of records written. An empty merge result
// never overwrites an existing dataset; the write is simply skipped.
func (c *Consolidator) ConsolidateGroup(group models.Group) (int, error) {
	groupLog := c.log.WithField("group", group.Name)

	merged := make(map[recordKey]models.Record)
	canonical, err := c.loadCanonical(group)
	if err != nil {
		return 0, err
	}
	for _, record := range canonical {
		if record.GroupName() != group.Name {
			groupLog.Warnf("Dropping record from group %q found in canonical dataset: %v", record.GroupName(), record)
			continue
		}
		insert(merged, record, groupLog)
	}

	pattern := filepath.Join(c.batchDir, utils.SanitizeFilename(group.Name)+"_*.jsonl")
	batchFiles, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("%w: globbing %s: %v", utils.ErrConsolidate, pattern, err)
	}
	sort.Strings(batchFiles)

	for _, path := range batchFiles {
		n, err := c.mergeBatchFile(path, group, merged, groupLog)
		if err != nil {
			return 0, err
		}
		groupLog.WithFields(logrus.Fields{"batch_file": path, "records": n}).Info("Merged batch file")
	}

	if len(merged) == 0 {
		groupLog.Info("Nothing to consolidate, leaving canonical dataset untouched")
		return 0, nil
	}

	records := make([]models.Record, 0, len(merged))
	for _, record := range merged {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if gi, gj := records[i].GroupName(), records[j].GroupName(); gi != gj {
			return gi < gj
		}
		ki, _ := records[i].EntryID()
		kj, _ := records[j].EntryID()
		return ki < kj
	})

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("%w: marshaling canonical dataset: %v", utils.ErrConsolidate, err)
	}
	out = append(out, '\n')

	path := c.CanonicalPath(group)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return 0, fmt.Errorf("%w: writing %s: %v", utils.ErrConsolidate, path, err)
	}

	groupLog.WithFields(logrus.Fields{
		"canonical":   path,
		"records":     len(records),
		"batch_files": len(batchFiles),
	}).Info("Canonical dataset written")
	return len(records), nil
}

// recordKey dedupes canonical records.
type recordKey struct {
	group   string
	entryID int
}

// insert places a record into the merge map, replacing any earlier record
// for the same (group name, entry ID). Records without a usable entry ID
// cannot be keyed and are dropped with a warning.
func insert(merged map[recordKey]models.Record, record models.Record, log *logrus.Entry) {
	entryID, ok := record.EntryID()
	if !ok {
		log.Warnf("Dropping record without a usable entry ID: %v", record)
		return
	}
	merged[recordKey{group: record.GroupName(), entryID: entryID}] = record
}

// loadCanonical reads the existing canonical dataset, if any.
func (c *Consolidator) loadCanonical(group models.Group) ([]models.Record, error) {
	path := c.CanonicalPath(group)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", utils.ErrConsolidate, path, err)
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", utils.ErrConsolidate, path, err)
	}
	return records, nil
}

// mergeBatchFile folds one batch file into the merge map in line order.
// Malformed lines are skipped the same way malformed ledger lines are, and
// so are records belonging to other groups: batch filenames share a flat
// directory, so the glob for "NES" also matches "NES_Classic_*" files, and
// the record's own group field is the authoritative membership test.
func (c *Consolidator) mergeBatchFile(path string, group models.Group, merged map[recordKey]models.Record, log *logrus.Entry) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: opening batch %s: %v", utils.ErrConsolidate, path, err)
	}
	defer f.Close()

	n, skipped, foreign := 0, 0, 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record models.Record
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			continue
		}
		if record.GroupName() != group.Name {
			foreign++
			continue
		}
		insert(merged, record, log)
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("%w: reading batch %s: %v", utils.ErrConsolidate, path, err)
	}
	if skipped > 0 {
		log.Warnf("Skipped %d malformed line(s) in %s", skipped, path)
	}
	if foreign > 0 {
		log.Debugf("Skipped %d record(s) belonging to other groups in %s", foreign, path)
	}
	return n, nil
}
