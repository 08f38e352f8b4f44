// Package extract turns a fetched record page into a flat field map.
//
// The page layout being scraped has two sources of fields: the "Trusted Dump"
// table (one key/value pair per row) and an adjacent info table next to it.
// Field names collide across the two sources, so later keys get a numeric
// suffix instead of overwriting earlier values.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"gamedex-scraper/pkg/models"
	"gamedex-scraper/pkg/utils"
)

// dumpTableHeading identifies the primary extraction table on a record page.
const dumpTableHeading = "Trusted Dump"

// infoTableSelector locates the secondary info block next to the dump table.
const infoTableSelector = "table.info"

// Extract parses raw page content into a flat record, echoing the entry's
// identity. It is deterministic and side-effect-free; callers rely on
// ErrNoData being a terminal classification, never a transient one.
func Extract(body []byte, group models.Group, entryID int) (models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing page for %s entry %d: %v", group.Name, entryID, err)
	}

	dumpTable := findDumpTable(doc)
	if dumpTable == nil {
		return nil, fmt.Errorf("%s entry %d: %w", group.Name, entryID, utils.ErrNoData)
	}

	record := models.Record{
		models.KeyGroupID: group.ID,
		models.KeyEntryID: entryID,
	}

	collectRows(record, dumpTable)
	doc.Find(infoTableSelector).Each(func(_ int, table *goquery.Selection) {
		collectRows(record, table)
	})

	return record, nil
}

// findDumpTable returns the first table whose heading cell names the trusted
// dump section, or nil if the page lacks one (an entry with no dump on file).
func findDumpTable(doc *goquery.Document) *goquery.Selection {
	var match *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		heading := strings.TrimSpace(table.Find("th").First().Text())
		if strings.Contains(heading, dumpTableHeading) {
			match = table
			return false
		}
		return true
	})
	return match
}

// collectRows folds every two-cell row of a table into the record, resolving
// key collisions by suffixing rather than overwriting.
func collectRows(record models.Record, table *goquery.Selection) {
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		key := strings.TrimSpace(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		if key == "" {
			return
		}
		record[models.ResolveKey(record, key)] = value
	})
}
