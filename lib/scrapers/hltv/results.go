package hltv

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"hltvharvest/lib/htmlutil"
	"hltvharvest/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

// ResultRow is one finished match on a results listing page, before
// enrichment.
type ResultRow struct {
	MatchID    int
	Url        string
	Date       time.Time
	Event      string
	Team1      string
	Team2      string
	Team1Score int
	Team2Score int
}

// ParseResultsListing extracts finished matches from one page of the
// results archive. rows repeated across sections (featured + daily) are
// deduplicated by match id, first occurrence wins.
func ParseResultsListing(doc *goquery.Document) ([]ResultRow, error) {
	holders := doc.Find("div.results-holder")
	if holders.Length() == 0 {
		return nil, ErrUnrecognizedPage
	}

	var rows []ResultRow
	seen := map[int]int{}

	holders.Each(func(_ int, section *goquery.Selection) {
		sectionDate := parseHeadlineDate(htmlutil.SelectionText(
			section.Find("span.standard-headline"),
		))

		section.Find("div.result-con").Each(func(_ int, res *goquery.Selection) {
			href := res.Find("a.a-reset").AttrOr("href", "")
			id, err := MatchIDFromHref(href)
			if err != nil {
				slog.Warn("skipping result row without match id", "href", href)
				return
			}
			if i, ok := seen[id]; ok {
				// the featured section repeats rows without a dated
				// headline, let the daily section fill the date in
				if rows[i].Date.IsZero() && !sectionDate.IsZero() {
					rows[i].Date = sectionDate
				}
				return
			}
			seen[id] = len(rows)

			row := ResultRow{
				MatchID: id,
				Url:     AbsoluteUrl(href),
				Date:    sectionDate,
			}

			event := res.Find("td.event")
			if event.Length() == 0 {
				event = res.Find("td.placeholder-text-cell")
			}
			row.Event = htmlutil.SelectionText(event)

			teams := res.Find("td.team-cell")
			if teams.Length() == 2 {
				row.Team1 = htmlutil.SelectionText(teams.Eq(0))
				row.Team2 = htmlutil.SelectionText(teams.Eq(1))

				scores := res.Find("td.result-score span")
				if scores.Length() >= 2 {
					row.Team1Score, _ = strconv.Atoi(htmlutil.SelectionText(scores.Eq(0)))
					row.Team2Score, _ = strconv.Atoi(htmlutil.SelectionText(scores.Eq(1)))
				}
			}

			rows = append(rows, row)
		})
	})

	return rows, nil
}

var ordinalSuffix = regexp.MustCompile(`(\d+)(st|nd|rd|th)\b`)

// headlines look like "Results for September 5th 2025". the date is in
// hltv's cookie timezone.
func parseHeadlineDate(headline string) time.Time {
	txt := strings.TrimPrefix(headline, "Results for ")
	txt = ordinalSuffix.ReplaceAllString(txt, "$1")

	parsed, err := time.ParseInLocation("January 2 2006", txt, timezone.Location)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
