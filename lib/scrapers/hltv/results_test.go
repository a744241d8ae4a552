package hltv

import (
	"testing"
	"time"

	_ "embed"

	"github.com/stretchr/testify/require"

	"hltvharvest/lib/timezone"
)

//go:embed testdata/results.html
var resultsFixture string

func TestParseResultsListing(t *testing.T) {
	rows, err := ParseResultsListing(parseDoc(t, resultsFixture))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	require.Equal(t, 2378901, first.MatchID)
	require.Equal(t, "https://www.hltv.org/matches/2378901/faze-vs-natus-vincere-iem-katowice-2025", first.Url)
	require.Equal(t, "FaZe", first.Team1)
	require.Equal(t, "Natus Vincere", first.Team2)
	require.Equal(t, 2, first.Team1Score)
	require.Equal(t, 1, first.Team2Score)
	require.Equal(t, "IEM Katowice 2025", first.Event)
	// the featured copy carries no headline date, the daily section
	// fills it in
	require.Equal(t, time.Date(2025, time.September, 5, 0, 0, 0, 0, timezone.Location), first.Date)

	second := rows[1]
	require.Equal(t, 2378895, second.MatchID)
	require.Equal(t, "MOUZ", second.Team1)
	require.Equal(t, "Vitality", second.Team2)
	require.Equal(t, 0, second.Team1Score)
	require.Equal(t, 2, second.Team2Score)
	require.Equal(t, "BLAST Premier Fall 2025", second.Event)
}

func TestParseResultsListingUnrecognized(t *testing.T) {
	_, err := ParseResultsListing(parseDoc(t, "<html><body></body></html>"))
	require.ErrorIs(t, err, ErrUnrecognizedPage)
}

func TestParseHeadlineDate(t *testing.T) {
	cases := []struct {
		headline string
		expect   time.Time
	}{
		{
			headline: "Results for September 5th 2025",
			expect:   time.Date(2025, time.September, 5, 0, 0, 0, 0, timezone.Location),
		},
		{
			headline: "Results for August 1st 2025",
			expect:   time.Date(2025, time.August, 1, 0, 0, 0, 0, timezone.Location),
		},
		{
			headline: "Results for March 22nd 2024",
			expect:   time.Date(2024, time.March, 22, 0, 0, 0, 0, timezone.Location),
		},
		{
			headline: "Results for June 3rd 2024",
			expect:   time.Date(2024, time.June, 3, 0, 0, 0, 0, timezone.Location),
		},
		{headline: "Featured results"},
		{headline: ""},
	}

	for _, test := range cases {
		require.Equal(t, test.expect, parseHeadlineDate(test.headline), test.headline)
	}
}
