package harvest

import (
	"sort"
	"time"
)

// RecordFailure notes an exhausted fetch in the ledger, bumping the
// attempt count when the url is already present. output order is stable
// by url so repeated runs serialize identically.
func RecordFailure(entries []FailedURLEntry, url, kind, reason string, now time.Time) []FailedURLEntry {
	out := make([]FailedURLEntry, len(entries))
	copy(out, entries)

	for i := range out {
		if out[i].Url == url {
			out[i].Attempts++
			out[i].Kind = kind
			out[i].Reason = reason
			out[i].LastAttempt = now
			return out
		}
	}

	out = append(out, FailedURLEntry{
		Url:         url,
		Kind:        kind,
		Reason:      reason,
		Attempts:    1,
		LastAttempt: now,
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Url < out[j].Url
	})
	return out
}

// ClearFailure drops a url from the ledger once a later attempt against
// it succeeds.
func ClearFailure(entries []FailedURLEntry, url string) []FailedURLEntry {
	var out []FailedURLEntry
	for _, e := range entries {
		if e.Url == url {
			continue
		}
		out = append(out, e)
	}
	return out
}
