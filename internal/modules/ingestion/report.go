// Package ingestion normalizes raw broker snapshots into portfolio records.
//
// Normalizers never fail as a whole: every record that cannot be mapped is
// reported as an ItemError in the returned SyncReport and the rest continue.
package ingestion

import "fmt"

// Item kinds used in ItemError.Kind
const (
	KindHolding   = "holding"
	KindOrder     = "order"
	KindExecution = "execution"
)

// ItemError describes one raw record that was not converted
type ItemError struct {
	Kind   string `json:"kind"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Key, e.Reason)
}

// SyncReport aggregates per-item outcomes of a normalization pass
type SyncReport struct {
	Accepted int         `json:"accepted"`
	Skipped  int         `json:"skipped"`
	Rejected []ItemError `json:"rejected"`
}

func newReport() SyncReport {
	return SyncReport{Rejected: make([]ItemError, 0)}
}

func (r *SyncReport) reject(kind, key, format string, args ...interface{}) {
	r.Rejected = append(r.Rejected, ItemError{Kind: kind, Key: key, Reason: fmt.Sprintf(format, args...)})
}

// Merge combines two reports
func (r SyncReport) Merge(other SyncReport) SyncReport {
	rejected := make([]ItemError, 0, len(r.Rejected)+len(other.Rejected))
	rejected = append(rejected, r.Rejected...)
	rejected = append(rejected, other.Rejected...)
	return SyncReport{
		Accepted: r.Accepted + other.Accepted,
		Skipped:  r.Skipped + other.Skipped,
		Rejected: rejected,
	}
}
