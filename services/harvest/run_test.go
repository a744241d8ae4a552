package harvest

import (
	"context"
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hltvharvest/lib/relay"
	"hltvharvest/lib/scrapers/hltv"

	"github.com/stretchr/testify/require"
)

var (
	//go:embed testdata/odds.html
	oddsPage string
	//go:embed testdata/results_page0.html
	resultsPage0 string
	//go:embed testdata/results_empty.html
	resultsEmpty string
	//go:embed testdata/teams.html
	teamsPage string
	//go:embed testdata/detail.html
	detailPage string
)

const (
	fazeNaviUrl     = hltv.BaseUrl + "/matches/2378901/faze-vs-natus-vincere-iem-katowice-2025"
	mouzVitalityUrl = hltv.BaseUrl + "/matches/2378895/mouz-vs-vitality-blast-premier-fall-2025"
)

type fetchStep struct {
	html string
	err  error
}

// fakeFetcher serves canned pages per url. a url can be given a sequence
// of responses, the last one repeats. unknown result pages come back
// empty, anything else unknown fails transiently.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string][]fetchStep
	attempts map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:    map[string][]fetchStep{},
		attempts: map[string]int{},
	}
}

func (f *fakeFetcher) set(url string, steps ...fetchStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = steps
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[url]
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ relay.Kind) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[url]++

	steps, ok := f.pages[url]
	if !ok {
		if strings.HasPrefix(url, hltv.BaseUrl+"/results?offset=") {
			return resultsEmpty, nil
		}
		return "", &relay.TransientError{URL: url, Err: errors.New("no canned page")}
	}

	step := steps[0]
	if len(steps) > 1 {
		f.pages[url] = steps[1:]
	}
	return step.html, step.err
}

// the canned pages for one healthy end-to-end pass.
func healthyFetcher() *fakeFetcher {
	f := newFakeFetcher()
	f.set(hltv.BaseUrl+"/betting/money", fetchStep{html: oddsPage})
	f.set(hltv.BaseUrl+"/results?offset=0", fetchStep{html: resultsPage0})
	f.set(hltv.BaseUrl+"/stats/teams?minMapCount=0", fetchStep{html: teamsPage})
	f.set(fazeNaviUrl, fetchStep{html: detailPage})
	f.set(mouzVitalityUrl, fetchStep{html: detailPage})
	return f
}

func TestRunEndToEnd(t *testing.T) {
	store := NewStore(t.TempDir())
	runner := NewRunner(store, healthyFetcher(), Options{})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Upcoming)
	require.Equal(t, 2, report.Results)
	require.Equal(t, 2, report.Enriched)
	require.Zero(t, report.Tombstoned)
	require.Zero(t, report.Failed)
	require.Zero(t, report.PendingEnrichment)

	upcoming, err := store.LoadUpcoming()
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.Equal(t, "Vitality", upcoming[0].Team1)
	require.Equal(t, "Spirit", upcoming[0].Team2)
	require.Len(t, upcoming[0].Snapshots, 1)
	require.Equal(t, 1.61, upcoming[0].Snapshots[0].Odds["bet365"].Team1)

	results, err := store.LoadResults()
	require.NoError(t, err)
	require.Len(t, results, 2)

	// newest-first, ties broken by id
	require.Equal(t, 2378901, results[0].MatchID)
	require.Equal(t, "2025-09-05", results[0].Date)
	require.Equal(t, "FaZe", results[0].Team1)
	require.Equal(t, 6667, results[0].Team1ID)
	require.Equal(t, 4608, results[0].Team2ID)
	require.Equal(t, 2, results[0].Team1Score)
	require.NotNil(t, results[0].Detail)
	require.Equal(t, "Best of 3 (Online)", results[0].Detail.Format)
	require.Len(t, results[0].Detail.Maps, 1)
	require.True(t, results[0].Detail.Maps[0].Team1.Won)

	// MOUZ is not in the canned team list, its id stays zero
	require.Equal(t, 2378895, results[1].MatchID)
	require.Zero(t, results[1].Team1ID)
	require.Equal(t, 9565, results[1].Team2ID)

	state, err := store.LoadState()
	require.NoError(t, err)
	require.Equal(t, 200, state.ResultsOffset)
	require.False(t, state.LastRun.IsZero())

	ledger, err := store.LoadLedger()
	require.NoError(t, err)
	require.Empty(t, ledger)
}

func TestRunIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	runner := NewRunner(store, healthyFetcher(), Options{})

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	firstUpcoming, err := os.ReadFile(filepath.Join(dir, UpcomingFile))
	require.NoError(t, err)
	firstResults, err := os.ReadFile(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	secondUpcoming, err := os.ReadFile(filepath.Join(dir, UpcomingFile))
	require.NoError(t, err)
	secondResults, err := os.ReadFile(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)

	require.Equal(t, string(firstUpcoming), string(secondUpcoming))
	require.Equal(t, string(firstResults), string(secondResults))
}

func TestRunTransientDetailFailure(t *testing.T) {
	store := NewStore(t.TempDir())
	fetch := healthyFetcher()
	fetch.set(mouzVitalityUrl,
		fetchStep{err: &relay.TransientError{URL: mouzVitalityUrl, Err: errors.New("relay status 500")}},
		fetchStep{html: detailPage},
	)
	runner := NewRunner(store, fetch, Options{})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Enriched)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.PendingEnrichment)

	ledger, err := store.LoadLedger()
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	require.Equal(t, mouzVitalityUrl, ledger[0].Url)
	require.Equal(t, "detail", ledger[0].Kind)
	require.Equal(t, 1, ledger[0].Attempts)

	results, err := store.LoadResults()
	require.NoError(t, err)
	require.Nil(t, results[1].Detail)

	// the url stays eligible and succeeds next run, clearing the ledger
	report, err = runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Enriched)
	require.Zero(t, report.PendingEnrichment)

	ledger, err = store.LoadLedger()
	require.NoError(t, err)
	require.Empty(t, ledger)

	results, err = store.LoadResults()
	require.NoError(t, err)
	require.NotNil(t, results[1].Detail)
}

func TestRunPermanentDetailFailure(t *testing.T) {
	store := NewStore(t.TempDir())
	fetch := healthyFetcher()
	fetch.set(mouzVitalityUrl,
		fetchStep{err: &relay.PermanentError{URL: mouzVitalityUrl, Reason: "status 404"}},
	)
	runner := NewRunner(store, fetch, Options{})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Enriched)
	require.Equal(t, 1, report.Tombstoned)
	require.Zero(t, report.Failed)

	results, err := store.LoadResults()
	require.NoError(t, err)
	require.True(t, results[1].Tombstoned)
	require.Nil(t, results[1].Detail)

	// tombstoned pages are never fetched again
	ledger, err := store.LoadLedger()
	require.NoError(t, err)
	require.Empty(t, ledger)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fetch.count(mouzVitalityUrl))
}

func TestRunUpcomingKeptWhenListingFails(t *testing.T) {
	store := NewStore(t.TempDir())

	seeded := []MatchSummary{{
		ID:    StableMatchID("Vitality", "Spirit", "https://www.hltv.org/matches/2378900/vitality-vs-spirit-blast-premier"),
		Team1: "Vitality",
		Team2: "Spirit",
		Odds:  map[string]OddsPair{"bet365": {Team1: 1.61, Team2: 2.25}},
	}}
	require.NoError(t, store.SaveUpcoming(seeded))

	fetch := healthyFetcher()
	fetch.set(hltv.BaseUrl+"/betting/money",
		fetchStep{err: &relay.TransientError{URL: hltv.BaseUrl + "/betting/money", Err: errors.New("relay down")}},
	)
	runner := NewRunner(store, fetch, Options{})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	// a failed listing is never read as "everything resolved"
	require.Equal(t, 1, report.Upcoming)
	upcoming, err := store.LoadUpcoming()
	require.NoError(t, err)
	require.Equal(t, seeded[0].ID, upcoming[0].ID)

	ledger, err := store.LoadLedger()
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	require.Equal(t, hltv.BaseUrl+"/betting/money", ledger[0].Url)
}

func TestRunUnrecognizedListingLedgered(t *testing.T) {
	store := NewStore(t.TempDir())
	fetch := healthyFetcher()
	fetch.set(hltv.BaseUrl+"/results?offset=0", fetchStep{html: "<html><body>maintenance</body></html>"})
	runner := NewRunner(store, fetch, Options{})

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	results, err := store.LoadResults()
	require.NoError(t, err)
	require.Empty(t, results)

	ledger, err := store.LoadLedger()
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	require.Contains(t, ledger[0].Reason, "structural parse failure")

	// the cursor must not advance past a window that failed
	state, err := store.LoadState()
	require.NoError(t, err)
	require.Zero(t, state.ResultsOffset)
}

// cancels the run context the moment the first detail fetch lands, so
// the dispatch loop observes the deadline while workers are in flight.
type cancelOnDetail struct {
	inner  *fakeFetcher
	cancel context.CancelFunc
	once   sync.Once
}

func (f *cancelOnDetail) Fetch(ctx context.Context, url string, kind relay.Kind) (string, error) {
	if kind == relay.KindDetail {
		defer f.once.Do(f.cancel)
	}
	return f.inner.Fetch(ctx, url, kind)
}

func TestRunDeadlineMidEnrichment(t *testing.T) {
	store := NewStore(t.TempDir())

	seeded := []ResultRecord{
		{MatchID: 101, Url: hltv.BaseUrl + "/matches/101/a-vs-b", Date: "2025-08-01"},
		{MatchID: 102, Url: hltv.BaseUrl + "/matches/102/c-vs-d", Date: "2025-08-02"},
		{MatchID: 103, Url: hltv.BaseUrl + "/matches/103/e-vs-f", Date: "2025-08-03"},
		{MatchID: 104, Url: hltv.BaseUrl + "/matches/104/g-vs-h", Date: "2025-08-04"},
	}
	require.NoError(t, store.SaveResults(seeded))

	inner := healthyFetcher()
	for _, r := range seeded {
		inner.set(r.Url, fetchStep{html: detailPage})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetch := &cancelOnDetail{inner: inner, cancel: cancel}

	runner := NewRunner(store, fetch, Options{Concurrency: 1})
	report, err := runner.Run(ctx)
	require.NoError(t, err)

	// whatever was in flight at the cut finished and was kept, the rest
	// stayed pending without being ledgered
	require.GreaterOrEqual(t, report.Enriched, 1)
	require.LessOrEqual(t, report.Enriched, 2)
	require.Zero(t, report.Failed)
	require.Zero(t, report.Tombstoned)

	results, err := store.LoadResults()
	require.NoError(t, err)
	require.Len(t, results, 6)
	enriched := 0
	for _, r := range results {
		if r.Enriched() {
			enriched++
		}
	}
	require.Equal(t, report.Enriched, enriched)

	state, err := store.LoadState()
	require.NoError(t, err)
	require.Equal(t, 6-enriched, state.PendingEnrichment)

	ledger, err := store.LoadLedger()
	require.NoError(t, err)
	require.Empty(t, ledger)
}

func TestRunExpiredContextPersistsLoadedState(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.SaveResults([]ResultRecord{
		{MatchID: 2378895, Url: mouzVitalityUrl, Date: "2025-09-05"},
	}))
	require.NoError(t, store.SaveState(ScrapeState{ResultsOffset: 300}))

	fetch := healthyFetcher()
	runner := NewRunner(store, fetch, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx)
	require.NoError(t, err)

	// nothing was fetched, nothing was lost, nothing was ledgered
	require.Zero(t, fetch.count(mouzVitalityUrl))

	results, err := store.LoadResults()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Nil(t, results[0].Detail)

	ledger, err := store.LoadLedger()
	require.NoError(t, err)
	require.Empty(t, ledger)

	state, err := store.LoadState()
	require.NoError(t, err)
	require.Equal(t, 300, state.ResultsOffset)
	require.WithinDuration(t, time.Now(), state.LastRun, time.Minute)
}

func TestRunAbortsOnCorruptState(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ResultsFile), []byte("{nope"), 0o644))

	runner := NewRunner(NewStore(dir), healthyFetcher(), Options{})
	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, ErrCorruptState)
}
