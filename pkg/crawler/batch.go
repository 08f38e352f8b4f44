package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"gamedex-scraper/pkg/models"
	"gamedex-scraper/pkg/utils"
)

// BatchWriter appends extracted records to this machine's run batch file for
// one group. The file is named per (group, machine) so concurrent runs on
// different machines never contend; the consolidator merges them later.
type BatchWriter struct {
	f    *os.File
	path string
	log  *logrus.Entry
}

// BatchPath returns the run batch file path for a group on a machine.
func BatchPath(dir string, group models.Group, machine string) string {
	name := utils.SanitizeFilename(group.Name) + "_" + utils.SanitizeFilename(machine) + ".jsonl"
	return filepath.Join(dir, name)
}

// OpenBatchWriter opens (creating if needed) the group's batch file for
// appending on this machine.
func OpenBatchWriter(dir string, group models.Group, machine string, log *logrus.Entry) (*BatchWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating batch dir %s: %v", utils.ErrBatch, dir, err)
	}
	path := BatchPath(dir, group, machine)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s for append: %v", utils.ErrBatch, path, err)
	}
	return &BatchWriter{f: f, path: path, log: log.WithField("batch_file", path)}, nil
}

// Append writes one record as a JSON line and syncs it to disk before
// returning, so a crash loses at most the in-flight entry.
func (w *BatchWriter) Append(record models.Record) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: marshaling record: %v", utils.ErrBatch, err)
	}
	if _, err := w.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: appending to %s: %v", utils.ErrBatch, w.path, err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", utils.ErrBatch, w.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (w *BatchWriter) Close() error {
	return w.f.Close()
}
