// Package plan decides which entry IDs a run should attempt for a group.
package plan

import (
	"sort"

	"gamedex-scraper/pkg/models"
)

// Build composes the per-run plan from a replayed status map:
//
//  1. every entry currently marked timeout, ascending, capped at batchSize
//  2. the remainder filled with new sequential IDs from highestID+1
//
// When the retry backlog alone fills the batch, no new IDs are added (pure
// backlog draining). Entries already terminal are not planned here, but the
// crawl loop re-checks before fetching as a safety net.
func Build(status map[int]models.StatusEvent, highestID, batchSize int) []int {
	if batchSize <= 0 {
		return nil
	}

	var retries []int
	for id, ev := range status {
		if ev.Status == models.EntryStatusTimeout {
			retries = append(retries, id)
		}
	}
	sort.Ints(retries)
	if len(retries) > batchSize {
		retries = retries[:batchSize]
	}

	planned := make([]int, 0, batchSize)
	planned = append(planned, retries...)
	for id := highestID + 1; len(planned) < batchSize; id++ {
		planned = append(planned, id)
	}
	return planned
}
