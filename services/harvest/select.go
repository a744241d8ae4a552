package harvest

import "sort"

// SelectEnrichmentTargets picks the unenriched, non-tombstoned records to
// fetch detail for this run, oldest first, capped by budget. urls that
// failed transiently on earlier runs stay eligible, tombstoned ids never
// come back.
func SelectEnrichmentTargets(records []ResultRecord, budget int) []ResultRecord {
	if budget <= 0 {
		return nil
	}

	var candidates []ResultRecord
	for _, r := range records {
		if r.Enriched() || r.Tombstoned || r.Url == "" {
			continue
		}
		candidates = append(candidates, r)
	}

	// oldest first: the deeper a record sits in the backlog the sooner
	// its detail page ages out of the site entirely. records without a
	// date sort after dated ones.
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := candidates[i].Date, candidates[j].Date
		if di != dj {
			if di == "" {
				return false
			}
			if dj == "" {
				return true
			}
			return di < dj
		}
		return candidates[i].MatchID < candidates[j].MatchID
	})

	if len(candidates) > budget {
		candidates = candidates[:budget]
	}
	return candidates
}

// CountPending reports how many records still await enrichment, for the
// cursor persisted at end of run.
func CountPending(records []ResultRecord) int {
	n := 0
	for _, r := range records {
		if !r.Enriched() && !r.Tombstoned {
			n++
		}
	}
	return n
}
