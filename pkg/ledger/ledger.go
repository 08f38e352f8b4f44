// Package ledger persists per-group entry statuses as an append-only JSONL
// file, one event per line. The on-disk history is the source of truth;
// replaying it in file order with last-write-per-ID-wins rebuilds the status
// map after any restart.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"gamedex-scraper/pkg/models"
	"gamedex-scraper/pkg/utils"
)

// Ledger locates and replays per-group status ledger files.
type Ledger struct {
	dir string
	log *logrus.Entry
}

// New creates a Ledger rooted at dir, creating the directory if needed.
func New(dir string, log *logrus.Entry) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating ledger dir %s: %v", utils.ErrLedger, dir, err)
	}
	return &Ledger{dir: dir, log: log}, nil
}

// Path returns the ledger file path for a group.
func (l *Ledger) Path(group models.Group) string {
	return filepath.Join(l.dir, utils.SanitizeFilename(group.Name)+"_ledger.jsonl")
}

// Load replays all events for a group. It returns the folded status map
// (last write per entry ID wins) and the highest entry ID appearing in any
// event regardless of status - a no_data entry still advances the frontier,
// which keeps known-empty slots from being refetched forever.
//
// A missing file means a fresh group. Malformed lines are skipped; corrupt
// history must never block forward progress.
func (l *Ledger) Load(group models.Group) (map[int]models.StatusEvent, int, error) {
	status := make(map[int]models.StatusEvent)
	highest := 0

	f, err := os.Open(l.Path(group))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return status, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: opening %s: %v", utils.ErrLedger, l.Path(group), err)
	}
	defer f.Close()

	loadLog := l.log.WithField("group", group.Name)
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev models.StatusEvent
		if err := json.Unmarshal(line, &ev); err != nil || !ev.Status.IsValid() {
			skipped++
			continue
		}
		status[ev.EntryID] = ev
		if ev.EntryID > highest {
			highest = ev.EntryID
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: reading %s: %v", utils.ErrLedger, l.Path(group), err)
	}

	if skipped > 0 {
		loadLog.Warnf("Skipped %d malformed ledger line(s)", skipped)
	}
	loadLog.WithFields(logrus.Fields{"entries": len(status), "highest_id": highest}).Info("Ledger replayed")
	return status, highest, nil
}

// Appender writes status events for one group during one run. Writes go
// straight to the file descriptor (no userspace buffering) so an event is
// visible to the next process the moment Append returns.
type Appender struct {
	f     *os.File
	group models.Group
	runID string
	log   *logrus.Entry
}

// OpenAppender opens (creating if needed) the group's ledger for appending.
func (l *Ledger) OpenAppender(group models.Group, runID string) (*Appender, error) {
	f, err := os.OpenFile(l.Path(group), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s for append: %v", utils.ErrLedger, l.Path(group), err)
	}
	return &Appender{
		f:     f,
		group: group,
		runID: runID,
		log:   l.log.WithFields(logrus.Fields{"group": group.Name, "run_id": runID}),
	}, nil
}

// Append records one status event and echoes the transition to the operator
// log. Every attempted entry produces exactly one call.
func (a *Appender) Append(entryID int, status models.EntryStatus, duration float64) error {
	ev := models.StatusEvent{
		GroupID:   a.group.ID,
		Group:     a.group.Name,
		EntryID:   entryID,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
		Duration:  duration,
		RunID:     a.runID,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshaling event for entry %d: %v", utils.ErrLedger, entryID, err)
	}
	if _, err := a.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: appending event for entry %d: %v", utils.ErrLedger, entryID, err)
	}

	a.log.WithFields(logrus.Fields{
		"entry_id": entryID,
		"status":   status.String(),
		"duration": duration,
	}).Info("Status recorded")
	return nil
}

// Close closes the underlying file.
func (a *Appender) Close() error {
	return a.f.Close()
}
