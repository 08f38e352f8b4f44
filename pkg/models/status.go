package models

// EntryStatus represents the outcome of the most recent attempt on a catalog entry
type EntryStatus string

const (
	EntryStatusUnset   EntryStatus = ""        // Zero value = never attempted
	EntryStatusSuccess EntryStatus = "success" // Record extracted and written to the run batch
	EntryStatusTimeout EntryStatus = "timeout" // Fetch exceeded the timeout; retried on a future run
	EntryStatusNoData  EntryStatus = "no_data" // Page fetched but lacks the trusted dump structure
)

// String implements fmt.Stringer for logging
func (s EntryStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryStatusSuccess, EntryStatusTimeout, EntryStatusNoData:
		return true
	}
	return false
}

// Terminal returns true if the status must never be re-attempted.
// Timeout is the only retryable status.
func (s EntryStatus) Terminal() bool {
	return s == EntryStatusSuccess || s == EntryStatusNoData
}
