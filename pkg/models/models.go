package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Group is one catalog group (a console/system) from the catalog config file.
// Immutable for the duration of a run.
type Group struct {
	Name string // Catalog key, also used in the address template
	ID   int    // Stable numeric identifier from the config file
}

func (g Group) String() string {
	return fmt.Sprintf("%s(%d)", g.Name, g.ID)
}

// StatusEvent is one line in a group's status ledger.
// The ledger is append-only; replaying all events in file order with
// last-write-per-ID-wins reconstructs the status map.
type StatusEvent struct {
	GroupID   int         `json:"group_id"`
	Group     string      `json:"group"`
	EntryID   int         `json:"id"`
	Status    EntryStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`       // UTC
	Duration  float64     `json:"duration"`         // Fetch duration in seconds
	RunID     string      `json:"run_id,omitempty"` // Process run identifier, ignored on replay
}

// Well-known record keys guaranteed to be present on every extracted record.
const (
	KeyGroupID  = "group_id"
	KeyGroup    = "group"
	KeyEntryID  = "id"
	KeyDuration = "duration"
)

// Record is one flat extracted record for a catalog entry. Beyond the
// well-known keys, field names come straight from the scraped tables.
type Record map[string]any

// EntryID returns the record's entry ID, coercing the numeric forms that
// appear after a JSON round trip (float64) or from raw table text (string).
func (r Record) EntryID() (int, bool) {
	switch v := r[KeyEntryID].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// GroupName returns the record's group name, or "" if absent.
func (r Record) GroupName() string {
	s, _ := r[KeyGroup].(string)
	return s
}

// ResolveKey returns the key under which a new field should be stored in a
// record that may already contain fields of the same name. Colliding names
// get an incrementing numeric suffix ("Region", "Region_1", "Region_2", ...)
// so no value is ever overwritten.
func ResolveKey(r Record, key string) string {
	if _, taken := r[key]; !taken {
		return key
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", key, i)
		if _, taken := r[candidate]; !taken {
			return candidate
		}
	}
}
