// Package pagecache stores the raw bodies of successfully fetched record
// pages in an embedded badger database. A cached page lets the extractor be
// re-run offline (the reextract command) after a selector change, without
// spending another pass of polite crawling on pages we already hold.
package pagecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"gamedex-scraper/pkg/log"
	"gamedex-scraper/pkg/models"
	"gamedex-scraper/pkg/utils"
)

const pageKeyPrefix = "page:"

// Page is one cached fetch result.
type Page struct {
	Elapsed float64 `json:"elapsed"` // Original fetch duration in seconds
	Body    []byte  `json:"body"`
}

// Store wraps the badger database holding cached pages.
type Store struct {
	db  *badger.DB
	log *logrus.Entry
}

// Open initializes the cache at dir, creating it if needed.
func Open(dir string, logger *logrus.Entry) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating cache dir %s: %v", utils.ErrPageCache, dir, err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(log.NewBadgerAdapter(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger at %s: %v", utils.ErrPageCache, dir, err)
	}
	logger.Infof("Page cache opened at %s", dir)
	return &Store{db: db, log: logger}, nil
}

func pageKey(groupID, entryID int) []byte {
	return []byte(fmt.Sprintf("%s%d:%d", pageKeyPrefix, groupID, entryID))
}

func groupPrefix(groupID int) []byte {
	return []byte(fmt.Sprintf("%s%d:", pageKeyPrefix, groupID))
}

// Put caches one fetched page. Callers treat failures as best-effort: a
// cache write error must never fail the crawl.
func (s *Store) Put(group models.Group, entryID int, page Page) error {
	val, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("%w: marshaling page %s/%d: %v", utils.ErrPageCache, group.Name, entryID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pageKey(group.ID, entryID), val)
	})
	if err != nil {
		return fmt.Errorf("%w: caching page %s/%d: %v", utils.ErrPageCache, group.Name, entryID, err)
	}
	return nil
}

// Get returns the cached page for an entry, reporting whether it exists.
func (s *Store) Get(group models.Group, entryID int) (Page, bool, error) {
	var page Page
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pageKey(group.ID, entryID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &page); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return Page{}, false, fmt.Errorf("%w: reading page %s/%d: %v", utils.ErrPageCache, group.Name, entryID, err)
	}
	return page, found, nil
}

// Each iterates all cached pages for a group in key order. The callback's
// error stops iteration and is returned as-is.
func (s *Store) Each(group models.Group, fn func(entryID int, page Page) error) error {
	prefix := groupPrefix(group.ID)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			entryID, err := entryIDFromKey(item.Key(), prefix)
			if err != nil {
				s.log.Warnf("Skipping unparseable cache key %q: %v", item.Key(), err)
				continue
			}
			var page Page
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &page)
			})
			if err != nil {
				s.log.Warnf("Skipping unreadable cache entry %s/%d: %v", group.Name, entryID, err)
				continue
			}
			if err := fn(entryID, page); err != nil {
				return err
			}
		}
		return nil
	})
}

func entryIDFromKey(key, prefix []byte) (int, error) {
	return strconv.Atoi(strings.TrimPrefix(string(key), string(prefix)))
}

// Close cleanly closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
