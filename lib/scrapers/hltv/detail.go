package hltv

import (
	"strings"

	"hltvharvest/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// PlayerStats is one row of a per-map scoreboard. values are kept as the
// site renders them ("1.24", "78.5%"), downstream consumers decide how to
// interpret them.
type PlayerStats struct {
	Name   string
	KD     string
	ADR    string
	KAST   string
	Rating string
}

type MapTeam struct {
	Name    string
	Score   string
	Won     bool
	Players []PlayerStats
}

type MapScore struct {
	Map        string
	Team1      MapTeam
	Team2      MapTeam
	HalfScores string
	Played     bool
}

// MatchDetail is everything the enrichment pass pulls off a single match
// page.
type MatchDetail struct {
	Format string
	Stage  string
	Veto   []string
	Maps   []MapScore
}

// ParseMatchDetail extracts format, veto, per-map scores and per-map
// player scoreboards from a match page. scoreboards are optional, older
// matches lack them entirely.
func ParseMatchDetail(doc *goquery.Document) (MatchDetail, error) {
	mapsSection := doc.Find("div.col-6.col-7-small")
	if mapsSection.Length() == 0 {
		return MatchDetail{}, ErrUnrecognizedPage
	}

	detail := MatchDetail{}
	vetoBoxes := mapsSection.Find("div.standard-box.veto-box")

	vetoBoxes.Each(func(_ int, box *goquery.Selection) {
		formatText := box.Find("div.padding.preformatted-text")
		if formatText.Length() == 0 {
			return
		}
		lines := htmlutil.Lines(formatText.Text())
		if len(lines) > 0 {
			detail.Format = htmlutil.CleanText(lines[0])
		}
		if len(lines) > 1 {
			detail.Stage = htmlutil.CleanText(strings.TrimLeft(lines[1], "* "))
		}
	})

	vetoBoxes.EachWithBreak(func(_ int, box *goquery.Selection) bool {
		vetoDiv := box.Find("div.padding").First()
		if vetoDiv.Length() == 0 {
			return true
		}
		vetoText := strings.ToLower(vetoDiv.Text())
		if !strings.Contains(vetoText, "removed") &&
			!strings.Contains(vetoText, "picked") &&
			!strings.Contains(vetoText, "was left over") {
			return true
		}
		vetoDiv.Find("div").Each(func(_ int, step *goquery.Selection) {
			txt := htmlutil.SelectionText(step)
			if txt != "" {
				detail.Veto = append(detail.Veto, txt)
			}
		})
		return false
	})

	mapsSection.Find("div.mapholder").Each(func(_ int, holder *goquery.Selection) {
		mapScore := MapScore{
			Map: htmlutil.SelectionText(holder.Find("div.mapname")),
		}
		if mapScore.Map == "" {
			mapScore.Map = "Unknown"
		}

		results := holder.Find("div.results")
		if results.Length() == 0 {
			return
		}

		mapScore.Team1 = parseMapTeam(results.Find("div.results-left"))
		mapScore.Team2 = parseMapTeam(results.Find("span.results-right"))
		mapScore.HalfScores = htmlutil.SelectionText(
			results.Find("div.results-center-half-score"),
		)
		mapScore.Played = mapScore.HalfScores != ""

		detail.Maps = append(detail.Maps, mapScore)
	})

	statsByMap := parsePlayerStats(doc)
	for i := range detail.Maps {
		teams, ok := statsByMap[detail.Maps[i].Map]
		if !ok {
			continue
		}
		detail.Maps[i].Team1.Players = teams[0]
		detail.Maps[i].Team2.Players = teams[1]
	}

	return detail, nil
}

func parseMapTeam(sel *goquery.Selection) MapTeam {
	return MapTeam{
		Name:  htmlutil.SelectionText(sel.Find("div.results-teamname")),
		Score: htmlutil.SelectionText(sel.Find("div.results-team-score")),
		Won:   sel.HasClass("won"),
	}
}

// the first two totalstats tables belong to the "All maps" tab, per-map
// scoreboards start at index 2 and come in team1/team2 pairs in tab order.
func parsePlayerStats(doc *goquery.Document) map[string][2][]PlayerStats {
	statsByMap := map[string][2][]PlayerStats{}

	matchstats := doc.Find("div.matchstats")
	if matchstats.Length() == 0 {
		return statsByMap
	}

	var mapNames []string
	matchstats.Find(".stats-menu-link .dynamic-map-name-full").Each(func(_ int, tab *goquery.Selection) {
		name := htmlutil.SelectionText(tab)
		if name == "" || strings.EqualFold(name, "all maps") {
			return
		}
		mapNames = append(mapNames, name)
	})

	tables := matchstats.Find("table.totalstats")
	tableIndex := 2

	for _, mapName := range mapNames {
		var teams [2][]PlayerStats
		for teamIdx := 0; teamIdx < 2; teamIdx++ {
			if tableIndex >= tables.Length() {
				break
			}
			table := tables.Eq(tableIndex)
			tableIndex++

			table.Find("tr").Each(func(rowIdx int, row *goquery.Selection) {
				if rowIdx == 0 {
					return
				}
				nick := row.Find("span.player-nick")
				if nick.Length() == 0 {
					return
				}
				cells := row.Find("td")
				if cells.Length() < 9 {
					return
				}
				teams[teamIdx] = append(teams[teamIdx], PlayerStats{
					Name:   htmlutil.SelectionText(nick),
					KD:     htmlutil.SelectionText(cells.Eq(1)),
					ADR:    htmlutil.SelectionText(cells.Eq(4)),
					KAST:   htmlutil.SelectionText(cells.Eq(6)),
					Rating: htmlutil.SelectionText(cells.Eq(8)),
				})
			})
		}
		statsByMap[mapName] = teams
	}

	return statsByMap
}
