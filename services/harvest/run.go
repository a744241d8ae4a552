package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hltvharvest/lib/relay"
	"hltvharvest/lib/scrapers/hltv"
	"hltvharvest/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("services/harvest")

// Fetcher is the gateway a run pulls pages through. *relay.Client
// satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, kind relay.Kind) (string, error)
}

// the results archive pages in steps of 100.
const pageStep = 100

const (
	oddsListingUrl = hltv.BaseUrl + "/betting/money"
	teamListUrl    = hltv.BaseUrl + "/stats/teams?minMapCount=0"
)

type Options struct {
	// archive pages fetched per run beyond the always-fetched first page
	BackfillPagesPerRun int
	// offset at which archive backfill stops for good
	MaxBackfillOffset int
	// detail pages fetched per run
	EnrichmentBudget int
	// in-flight detail fetches, the relay is a single rate-limited
	// browser so this stays low
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.BackfillPagesPerRun == 0 {
		o.BackfillPagesPerRun = 1
	}
	if o.MaxBackfillOffset == 0 {
		o.MaxBackfillOffset = 900
	}
	if o.EnrichmentBudget == 0 {
		o.EnrichmentBudget = 40
	}
	if o.Concurrency < 1 {
		o.Concurrency = 2
	}
	if o.Concurrency > 4 {
		o.Concurrency = 4
	}
	return o
}

type Runner struct {
	store Store
	fetch Fetcher
	opts  Options
}

func NewRunner(store Store, fetch Fetcher, opts Options) *Runner {
	return &Runner{
		store: store,
		fetch: fetch,
		opts:  opts.withDefaults(),
	}
}

type Report struct {
	RunID             string
	Upcoming          int
	Results           int
	Enriched          int
	Tombstoned        int
	Failed            int
	PendingEnrichment int
}

// Run drives one end-to-end pass: load state, fetch listings, merge,
// enrich up to budget, persist. per-target failures are contained, only
// state/dataset I/O errors abort the run, and those abort it before
// anything on disk has been touched or with every already-written file
// complete. on ctx deadline the run skips straight to persist, partial
// enrichment progress is never lost.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	report := Report{RunID: uuid.NewString()}
	span.SetAttributes(attribute.String("run_id", report.RunID))
	now := timezone.Now()

	state, err := r.store.LoadState()
	if err != nil {
		return report, fail(span, err)
	}
	upcoming, err := r.store.LoadUpcoming()
	if err != nil {
		return report, fail(span, err)
	}
	results, err := r.store.LoadResults()
	if err != nil {
		return report, fail(span, err)
	}
	ledger, err := r.store.LoadLedger()
	if err != nil {
		return report, fail(span, err)
	}

	slog.InfoContext(
		ctx, "run started",
		"run_id", report.RunID,
		"results_offset", state.ResultsOffset,
		"known_results", len(results),
		"ledger_entries", len(ledger),
	)

	upcoming, ledger = r.fetchUpcoming(ctx, upcoming, ledger, now)
	results, ledger, nextCursor := r.fetchResultListings(ctx, state, results, ledger, now)
	results, ledger = r.enrich(ctx, results, ledger, now, &report)

	newState := ScrapeState{
		ResultsOffset:     nextCursor,
		LastRun:           now,
		PendingEnrichment: CountPending(results),
	}

	err = r.store.SaveUpcoming(upcoming)
	if err != nil {
		return report, fail(span, err)
	}
	err = r.store.SaveResults(results)
	if err != nil {
		return report, fail(span, err)
	}
	err = r.store.SaveLedger(ledger)
	if err != nil {
		return report, fail(span, err)
	}
	err = r.store.SaveState(newState)
	if err != nil {
		return report, fail(span, err)
	}

	report.Upcoming = len(upcoming)
	report.Results = len(results)
	report.PendingEnrichment = newState.PendingEnrichment

	slog.InfoContext(
		ctx, "run finished",
		"run_id", report.RunID,
		"upcoming", report.Upcoming,
		"results", report.Results,
		"enriched", report.Enriched,
		"tombstoned", report.Tombstoned,
		"failed", report.Failed,
		"pending_enrichment", report.PendingEnrichment,
	)
	return report, nil
}

// fetches the betting listing and merges it into the upcoming dataset.
// when the fetch or parse fails the previous snapshot is left untouched:
// an empty batch caused by a failure must not be mistaken for "every
// match resolved".
func (r *Runner) fetchUpcoming(
	ctx context.Context,
	upcoming []MatchSummary,
	ledger []FailedURLEntry,
	now time.Time,
) ([]MatchSummary, []FailedURLEntry) {
	if ctx.Err() != nil {
		return upcoming, ledger
	}

	rows, ledger, ok := r.fetchListing(ctx, oddsListingUrl, ledger, now, func(doc *goquery.Document) (int, error) {
		parsed, err := hltv.ParseOddsListing(doc)
		if err != nil {
			return 0, err
		}
		incoming := make([]MatchSummary, 0, len(parsed))
		for _, m := range parsed {
			incoming = append(incoming, SummaryFromOdds(m))
		}
		upcoming = MergeUpcoming(upcoming, incoming, now)
		return len(incoming), nil
	})
	if ok {
		slog.InfoContext(ctx, "merged betting listing", "matches", rows)
	}
	return upcoming, ledger
}

// fetches the first results page plus the next backfill window, merging
// every parsed row. the backfill cursor only advances past pages that
// were fetched and parsed whole.
func (r *Runner) fetchResultListings(
	ctx context.Context,
	state ScrapeState,
	results []ResultRecord,
	ledger []FailedURLEntry,
	now time.Time,
) ([]ResultRecord, []FailedURLEntry, int) {
	backfill := state.ResultsOffset
	if backfill < pageStep {
		// page zero is re-fetched every run anyway
		backfill = pageStep
	}

	offsets := []int{0}
	for i := 0; i < r.opts.BackfillPagesPerRun && backfill <= r.opts.MaxBackfillOffset; i++ {
		offsets = append(offsets, backfill)
		backfill += pageStep
	}

	nextCursor := state.ResultsOffset
	var resolver *hltv.TeamResolver
	resolverFetched := false

	for _, offset := range offsets {
		if ctx.Err() != nil {
			break
		}

		pageUrl := fmt.Sprintf("%s/results?offset=%d", hltv.BaseUrl, offset)

		var rows []hltv.ResultRow
		var merged int
		var ok bool
		merged, ledger, ok = r.fetchListing(ctx, pageUrl, ledger, now, func(doc *goquery.Document) (int, error) {
			var err error
			rows, err = hltv.ParseResultsListing(doc)
			return len(rows), err
		})
		if !ok {
			// later pages are almost certainly down too, retry the
			// whole window next run
			break
		}

		if len(rows) > 0 && !resolverFetched {
			resolverFetched = true
			resolver, ledger = r.fetchTeamResolver(ctx, ledger, now)
		}

		incoming := make([]ResultRecord, 0, len(rows))
		for _, row := range rows {
			incoming = append(incoming, RecordFromResultRow(row, resolver))
		}
		results = MergeResults(ctx, results, incoming)

		slog.InfoContext(ctx, "merged results page", "offset", offset, "rows", merged)

		if offset != 0 {
			nextCursor = offset + pageStep
		}
	}

	return results, ledger, nextCursor
}

// fetches one listing page and hands the document to parse. returns ok =
// false when the page could not be fetched or was structurally
// unrecognizable, with the ledger updated accordingly.
func (r *Runner) fetchListing(
	ctx context.Context,
	pageUrl string,
	ledger []FailedURLEntry,
	now time.Time,
	parse func(doc *goquery.Document) (int, error),
) (int, []FailedURLEntry, bool) {
	html, err := r.fetch.Fetch(ctx, pageUrl, relay.KindListing)
	if err != nil {
		slog.WarnContext(ctx, "listing fetch failed", "url", pageUrl, "err", err)
		if ledgerable(err) {
			ledger = RecordFailure(ledger, pageUrl, relay.KindListing.String(), err.Error(), now)
		}
		return 0, ledger, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		var n int
		n, err = parse(doc)
		if err == nil {
			return n, ClearFailure(ledger, pageUrl), true
		}
	}

	// a parse failure is ledgered like a transient fetch failure, the
	// site tends to fix itself, but logged as a parsing concern
	slog.WarnContext(ctx, "listing page unrecognized", "url", pageUrl, "err", err)
	ledger = RecordFailure(
		ledger, pageUrl, relay.KindListing.String(),
		"structural parse failure: "+err.Error(), now,
	)
	return 0, ledger, false
}

func (r *Runner) fetchTeamResolver(
	ctx context.Context,
	ledger []FailedURLEntry,
	now time.Time,
) (*hltv.TeamResolver, []FailedURLEntry) {
	var resolver *hltv.TeamResolver
	teams, ledger, ok := r.fetchListing(ctx, teamListUrl, ledger, now, func(doc *goquery.Document) (int, error) {
		parsed, err := hltv.ParseTeamList(doc)
		if err != nil {
			return 0, err
		}
		resolver = hltv.NewTeamResolver(parsed)
		return len(parsed), nil
	})
	if !ok {
		// team ids degrade to zero and get filled in by a later run
		return nil, ledger
	}
	slog.DebugContext(ctx, "fetched team list", "teams", teams)
	return resolver, ledger
}

// the bounded enrichment loop. each target is an independent fetch+merge,
// failure of one never aborts the run, and a deadline mid-loop keeps
// whatever has been merged so far.
func (r *Runner) enrich(
	ctx context.Context,
	results []ResultRecord,
	ledger []FailedURLEntry,
	now time.Time,
	report *Report,
) ([]ResultRecord, []FailedURLEntry) {
	targets := SelectEnrichmentTargets(results, r.opts.EnrichmentBudget)
	if len(targets) == 0 {
		return results, ledger
	}

	slog.InfoContext(
		ctx, "enriching results",
		"targets", len(targets),
		"concurrency", r.opts.Concurrency,
	)

	sem := make(chan struct{}, r.opts.Concurrency)
	wg := sync.WaitGroup{}
	mu := sync.Mutex{}

	for i, target := range targets {
		if ctx.Err() != nil {
			// report fields belong to the workers under mu here, the
			// undispatched count is all the loop may touch
			slog.WarnContext(
				ctx, "deadline reached during enrichment, persisting partial progress",
				"remaining", len(targets)-i,
			)
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(target ResultRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			detail, err := r.fetchDetail(ctx, target.Url)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && relay.IsPermanent(err):
				slog.InfoContext(
					ctx, "detail page gone, tombstoning",
					"match_id", target.MatchID, "url", target.Url,
				)
				results = Tombstone(results, target.MatchID)
				report.Tombstoned++
			case err != nil:
				slog.WarnContext(
					ctx, "enrichment failed",
					"match_id", target.MatchID, "url", target.Url, "err", err,
				)
				if ledgerable(err) {
					ledger = RecordFailure(ledger, target.Url, relay.KindDetail.String(), err.Error(), now)
					report.Failed++
				}
			default:
				results = AttachDetail(results, target.MatchID, detail)
				ledger = ClearFailure(ledger, target.Url)
				report.Enriched++
			}
		}(target)
	}

	wg.Wait()
	return results, ledger
}

func (r *Runner) fetchDetail(ctx context.Context, pageUrl string) (*EnrichmentDetail, error) {
	html, err := r.fetch.Fetch(ctx, pageUrl, relay.KindDetail)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("structural parse failure: %w", err)
	}
	parsed, err := hltv.ParseMatchDetail(doc)
	if err != nil {
		return nil, fmt.Errorf("structural parse failure: %w", err)
	}
	return DetailFromMatch(parsed), nil
}

// a fetch aborted by the run deadline is not a failure of the target
// itself, it stays off the ledger and gets picked up again next run.
func ledgerable(err error) bool {
	return !relay.IsPermanent(err) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
