package harvest

import (
	"hltvharvest/lib/scrapers/hltv"
)

// SummaryFromOdds lifts a parsed odds row into a MatchSummary with its
// stable identity. snapshots are attached later by the merge.
func SummaryFromOdds(m hltv.OddsMatch) MatchSummary {
	odds := make(map[string]OddsPair, len(m.Odds))
	for provider, pair := range m.Odds {
		odds[provider] = OddsPair{Team1: pair.Team1, Team2: pair.Team2}
	}
	return MatchSummary{
		ID:        StableMatchID(m.Team1, m.Team2, m.MatchUrl),
		Team1:     m.Team1,
		Team2:     m.Team2,
		Event:     m.Event,
		StartTime: m.StartTime,
		MatchUrl:  m.MatchUrl,
		Odds:      odds,
	}
}

// RecordFromResultRow lifts a parsed result row into an unenriched
// ResultRecord. the resolver may be nil when the team list could not be
// fetched this run, ids stay zero and get filled in on a later pass.
func RecordFromResultRow(row hltv.ResultRow, resolver *hltv.TeamResolver) ResultRecord {
	record := ResultRecord{
		MatchID:    row.MatchID,
		Url:        row.Url,
		Event:      row.Event,
		Team1:      row.Team1,
		Team2:      row.Team2,
		Team1Score: row.Team1Score,
		Team2Score: row.Team2Score,
	}
	if !row.Date.IsZero() {
		record.Date = row.Date.Format("2006-01-02")
	}
	if resolver != nil {
		if id, ok := resolver.Resolve(row.Team1); ok {
			record.Team1ID = id
		}
		if id, ok := resolver.Resolve(row.Team2); ok {
			record.Team2ID = id
		}
	}
	return record
}

func DetailFromMatch(d hltv.MatchDetail) *EnrichmentDetail {
	detail := &EnrichmentDetail{
		Format: d.Format,
		Stage:  d.Stage,
		Veto:   d.Veto,
	}
	for _, m := range d.Maps {
		detail.Maps = append(detail.Maps, MapResult{
			Map:        m.Map,
			Team1:      mapTeamFromScore(m.Team1),
			Team2:      mapTeamFromScore(m.Team2),
			HalfScores: m.HalfScores,
			Played:     m.Played,
		})
	}
	return detail
}

func mapTeamFromScore(t hltv.MapTeam) MapTeamResult {
	out := MapTeamResult{
		Name:  t.Name,
		Score: t.Score,
		Won:   t.Won,
	}
	for _, p := range t.Players {
		out.Players = append(out.Players, MapPlayerStats{
			Name:   p.Name,
			KD:     p.KD,
			ADR:    p.ADR,
			KAST:   p.KAST,
			Rating: p.Rating,
		})
	}
	return out
}
