package harvest

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// MergeResults reconciles freshly parsed result rows against the
// historical dataset. existing ids absent from incoming are kept: listing
// pages are a moving window, not authoritative for deletion. the merge is
// deterministic and idempotent, merging the same batch twice yields the
// same dataset as merging it once.
func MergeResults(ctx context.Context, existing, incoming []ResultRecord) []ResultRecord {
	byID := make(map[int]int, len(existing))
	merged := make([]ResultRecord, len(existing))
	copy(merged, existing)
	for i, r := range merged {
		byID[r.MatchID] = i
	}

	for _, in := range incoming {
		i, ok := byID[in.MatchID]
		if !ok {
			byID[in.MatchID] = len(merged)
			merged = append(merged, in)
			continue
		}
		merged[i] = mergeResult(ctx, merged[i], in)
	}

	sortResults(merged)
	return merged
}

// field-level merge of one record. the listing pass is authoritative for
// base fields, so a non-zero incoming value wins, but a conflict between
// two non-zero values is logged rather than silently absorbed. detail and
// the tombstone flag only ever flow from existing: a listing-only row can
// neither supply nor revoke them.
func mergeResult(ctx context.Context, old, in ResultRecord) ResultRecord {
	out := old

	mergeString(ctx, old.MatchID, "url", &out.Url, in.Url)
	mergeString(ctx, old.MatchID, "date", &out.Date, in.Date)
	mergeString(ctx, old.MatchID, "event", &out.Event, in.Event)
	mergeString(ctx, old.MatchID, "team1", &out.Team1, in.Team1)
	mergeString(ctx, old.MatchID, "team2", &out.Team2, in.Team2)

	if in.Team1ID != 0 {
		out.Team1ID = in.Team1ID
	}
	if in.Team2ID != 0 {
		out.Team2ID = in.Team2ID
	}
	if in.Team1Score != 0 || in.Team2Score != 0 {
		out.Team1Score = in.Team1Score
		out.Team2Score = in.Team2Score
	}

	if in.Detail != nil {
		out.Detail = in.Detail
	}
	out.Tombstoned = old.Tombstoned || in.Tombstoned

	return out
}

func mergeString(ctx context.Context, id int, field string, old *string, incoming string) {
	if incoming == "" {
		return
	}
	if *old != "" && *old != incoming {
		slog.WarnContext(
			ctx, "conflicting base field on re-scrape",
			"match_id", id,
			"field", field,
			"old", *old,
			"new", incoming,
		)
	}
	*old = incoming
}

// AttachDetail returns the dataset with detail merged onto one id. the
// record's base fields are untouched.
func AttachDetail(records []ResultRecord, id int, detail *EnrichmentDetail) []ResultRecord {
	out := make([]ResultRecord, len(records))
	copy(out, records)
	for i := range out {
		if out[i].MatchID == id {
			out[i].Detail = detail
			break
		}
	}
	return out
}

// Tombstone marks an id as permanently unenrichable.
func Tombstone(records []ResultRecord, id int) []ResultRecord {
	out := make([]ResultRecord, len(records))
	copy(out, records)
	for i := range out {
		if out[i].MatchID == id {
			out[i].Tombstoned = true
			break
		}
	}
	return out
}

// canonical order: newest first, ties broken by id, so that repeated
// merges of the same content serialize byte-identically.
func sortResults(records []ResultRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].MatchID > records[j].MatchID
	})
}

// MergeUpcoming applies snapshot retention to the upcoming dataset: ids
// absent from the incoming listing have resolved and are dropped, which
// is the deliberate opposite of the historical dataset's policy. for ids
// present in both, listing fields are refreshed and an odds snapshot is
// appended when prices moved since the last one.
func MergeUpcoming(existing, incoming []MatchSummary, now time.Time) []MatchSummary {
	previous := make(map[string]MatchSummary, len(existing))
	for _, m := range existing {
		previous[m.ID] = m
	}

	out := make([]MatchSummary, 0, len(incoming))
	for _, in := range incoming {
		merged := in
		if old, ok := previous[in.ID]; ok {
			merged.Snapshots = old.Snapshots
			if in.StartTime == nil {
				merged.StartTime = old.StartTime
			}
			if in.Event == "" {
				merged.Event = old.Event
			}
		}
		if oddsChanged(merged.Snapshots, in.Odds) {
			merged.Snapshots = append(merged.Snapshots, OddsSnapshot{
				Time: now,
				Odds: in.Odds,
			})
		}
		out = append(out, merged)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func oddsChanged(snapshots []OddsSnapshot, odds map[string]OddsPair) bool {
	if len(snapshots) == 0 {
		return true
	}
	last := snapshots[len(snapshots)-1].Odds
	if len(last) != len(odds) {
		return true
	}
	for provider, pair := range odds {
		if last[provider] != pair {
			return true
		}
	}
	return false
}
