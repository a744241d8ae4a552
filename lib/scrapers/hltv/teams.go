package hltv

import (
	"strings"

	"hltvharvest/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
)

type Team struct {
	ID   int
	Name string
}

// ParseTeamList extracts the id/name pairs from the team stats overview
// page, used to resolve the team names printed on result rows into ids.
func ParseTeamList(doc *goquery.Document) ([]Team, error) {
	cells := doc.Find("td.teamCol-teams-overview")
	if cells.Length() == 0 {
		return nil, ErrUnrecognizedPage
	}

	var teams []Team
	cells.Each(func(_ int, cell *goquery.Selection) {
		link := cell.Find("a").First()
		href := link.AttrOr("href", "")
		id, err := MatchIDFromHref(href)
		if err != nil {
			return
		}
		name := htmlutil.SelectionText(link)
		if name == "" {
			return
		}
		teams = append(teams, Team{ID: id, Name: name})
	})

	return teams, nil
}

// result rows print display names that drift from the stats overview
// ("MOUZ" vs "mouz", sponsor prefixes coming and going), so anything
// below this similarity is treated as a different team rather than a
// rename.
const minTeamSimilarity = 0.9

type TeamResolver struct {
	byName map[string]int
	teams  []Team
}

func NewTeamResolver(teams []Team) *TeamResolver {
	byName := make(map[string]int, len(teams))
	for _, t := range teams {
		byName[strings.ToLower(t.Name)] = t.ID
	}
	return &TeamResolver{byName: byName, teams: teams}
}

// Resolve maps a display name to a team id, case-insensitive exact match
// first, then the closest Jaro-Winkler candidate above the similarity
// floor.
func (r *TeamResolver) Resolve(name string) (int, bool) {
	lower := strings.ToLower(name)
	if id, ok := r.byName[lower]; ok {
		return id, true
	}

	var bestSimilarity float64
	var bestID int
	for _, t := range r.teams {
		similarity := matchr.JaroWinkler(lower, strings.ToLower(t.Name), false)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			bestID = t.ID
		}
	}

	if bestSimilarity >= minTeamSimilarity {
		return bestID, true
	}
	return 0, false
}
