package hltv

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"hltvharvest/lib/htmlutil"
	"hltvharvest/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

// Odds is a bookmaker's price pair for one match.
type Odds struct {
	Team1 float64
	Team2 float64
}

// OddsMatch is one upcoming match row on the betting money page.
type OddsMatch struct {
	Team1     string
	Team2     string
	Event     string
	StartTime *time.Time
	MatchUrl  string
	// keyed by bookmaker slug, e.g. "bet365"
	Odds map[string]Odds
}

var providerClass = regexp.MustCompile(`^(b-list-)?odds-provider-`)
var oddsValue = regexp.MustCompile(`^\d+\.?\d{1,2}$`)

// ParseOddsListing extracts upcoming matches with bookmaker odds from the
// betting money page. rows without a single parseable odds cell are
// dropped, they carry nothing worth merging.
func ParseOddsListing(doc *goquery.Document) ([]OddsMatch, error) {
	tables := doc.Find("div.b-match-container table.bookmakerMatch")
	if tables.Length() == 0 {
		tables = doc.Find("table.bookmakerMatch")
	}
	if tables.Length() == 0 {
		return nil, ErrUnrecognizedPage
	}

	var matches []OddsMatch
	tables.Each(func(_ int, table *goquery.Selection) {
		team1, team2, ok := oddsTeamNames(table)
		if !ok {
			return
		}

		match := OddsMatch{
			Team1: team1,
			Team2: team2,
			Odds:  map[string]Odds{},
		}

		href := table.Find("a.a-reset").AttrOr("href", "")
		if href != "" {
			match.MatchUrl = AbsoluteUrl(href)
		}

		match.Event = htmlutil.SelectionText(table.Find(".event-name").First())
		if match.Event == "" {
			match.Event = htmlutil.SelectionText(table.Find("td.event").First())
		}
		match.StartTime = parseStartTime(table)

		cellIndex := 0
		table.Find("td").Each(func(_ int, cell *goquery.Selection) {
			classes := strings.Fields(cell.AttrOr("class", ""))
			provider := ""
			for _, c := range classes {
				if providerClass.MatchString(c) {
					provider = strings.ToLower(providerClass.ReplaceAllString(c, ""))
					break
				}
			}
			if provider == "" {
				return
			}

			// provider cells alternate: team1 column first, then team2
			side := cellIndex % 2
			cellIndex++

			txt := htmlutil.SelectionText(cell)
			if !oddsValue.MatchString(txt) {
				return
			}
			value, err := strconv.ParseFloat(txt, 64)
			if err != nil {
				return
			}

			pair := match.Odds[provider]
			if side == 0 {
				pair.Team1 = value
			} else {
				pair.Team2 = value
			}
			match.Odds[provider] = pair
		})

		if len(match.Odds) > 0 {
			matches = append(matches, match)
		}
	})

	return matches, nil
}

// match times are carried as a millisecond epoch in a data-unix
// attribute, unaffected by the page's display timezone.
func parseStartTime(table *goquery.Selection) *time.Time {
	unix := table.Find("[data-unix]").First().AttrOr("data-unix", "")
	if unix == "" {
		return nil
	}
	ms, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return nil
	}
	start := time.UnixMilli(ms).In(timezone.Location)
	return &start
}

func oddsTeamNames(table *goquery.Selection) (string, string, bool) {
	names := table.Find("div.team-name")
	if names.Length() < 2 {
		names = table.Find(".text-ellipsis")
	}
	if names.Length() < 2 {
		return "", "", false
	}
	team1 := htmlutil.SelectionText(names.Eq(0))
	team2 := htmlutil.SelectionText(names.Eq(1))
	if team1 == "" || team2 == "" {
		return "", "", false
	}
	return team1, team2, true
}
