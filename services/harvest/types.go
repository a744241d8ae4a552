// Package harvest implements the incremental scrape-and-merge engine:
// durable datasets, identity-based merge, enrichment target selection and
// the per-run orchestration over them.
package harvest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type OddsPair struct {
	Team1 float64 `json:"team1,omitempty"`
	Team2 float64 `json:"team2,omitempty"`
}

// OddsSnapshot is one run's worth of bookmaker prices for a match.
type OddsSnapshot struct {
	Time time.Time           `json:"ts"`
	Odds map[string]OddsPair `json:"odds"`
}

// MatchSummary is an upcoming match on the betting listing. the upcoming
// dataset is a snapshot of "now": a summary that disappears from the
// listing has resolved and is dropped on the next merge.
type MatchSummary struct {
	ID        string              `json:"id"`
	Team1     string              `json:"team1"`
	Team2     string              `json:"team2"`
	Event     string              `json:"event,omitempty"`
	StartTime *time.Time          `json:"start_time,omitempty"`
	MatchUrl  string              `json:"match_url,omitempty"`
	Odds      map[string]OddsPair `json:"odds"`
	Snapshots []OddsSnapshot      `json:"snapshots,omitempty"`
}

// betting links are not guaranteed to carry numeric match ids, so upcoming
// matches get a content-derived id that is stable across runs.
func StableMatchID(team1, team2, matchUrl string) string {
	raw := fmt.Sprintf(
		"%s::%s::%s",
		strings.ToLower(team1),
		strings.ToLower(team2),
		matchUrl,
	)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type MapPlayerStats struct {
	Name   string `json:"name"`
	KD     string `json:"kd"`
	ADR    string `json:"adr"`
	KAST   string `json:"kast"`
	Rating string `json:"rating"`
}

type MapTeamResult struct {
	Name    string           `json:"name"`
	Score   string           `json:"score"`
	Won     bool             `json:"won"`
	Players []MapPlayerStats `json:"players,omitempty"`
}

type MapResult struct {
	Map        string        `json:"map"`
	Team1      MapTeamResult `json:"team1"`
	Team2      MapTeamResult `json:"team2"`
	HalfScores string        `json:"half_scores,omitempty"`
	Played     bool          `json:"played"`
}

// EnrichmentDetail is the heavy per-match payload collected by the
// enrichment pass. once present on a record it is never overwritten by a
// listing-only re-scrape.
type EnrichmentDetail struct {
	Format string      `json:"format,omitempty"`
	Stage  string      `json:"stage,omitempty"`
	Veto   []string    `json:"veto,omitempty"`
	Maps   []MapResult `json:"maps,omitempty"`
}

// ResultRecord is one finished match in the historical dataset. records
// are append-only by identity: base fields may be refreshed but an id is
// never deleted.
type ResultRecord struct {
	MatchID    int               `json:"match_id"`
	Url        string            `json:"url"`
	Date       string            `json:"date,omitempty"`
	Event      string            `json:"event,omitempty"`
	Team1      string            `json:"team1,omitempty"`
	Team2      string            `json:"team2,omitempty"`
	Team1ID    int               `json:"team1_id,omitempty"`
	Team2ID    int               `json:"team2_id,omitempty"`
	Team1Score int               `json:"team1_score"`
	Team2Score int               `json:"team2_score"`
	Detail     *EnrichmentDetail `json:"detail,omitempty"`
	// set when the detail page is permanently gone, suppresses all
	// future enrichment attempts for this id.
	Tombstoned bool `json:"tombstoned,omitempty"`
}

func (r ResultRecord) Enriched() bool {
	return r.Detail != nil
}

// ScrapeState survives across runs. it is replaced wholesale at persist
// time, never mutated mid-run.
type ScrapeState struct {
	// archive backfill cursor: the next results page offset to pull.
	// the first page is always re-fetched regardless, new results land
	// there.
	ResultsOffset     int       `json:"results_offset"`
	LastRun           time.Time `json:"last_run"`
	PendingEnrichment int       `json:"pending_enrichment"`
}

type FailedURLEntry struct {
	Url         string    `json:"url"`
	Kind        string    `json:"kind"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
}
