// Package hltv extracts match listings, results and per-match detail from
// hltv.org pages. every parser here is pure: html in, records out, no I/O.
//
// missing optional fields degrade to zero values since partial rows are
// still worth keeping. only a page missing the anchor elements the whole
// extraction hangs off of reports ErrUnrecognizedPage, so that callers can
// tell "empty but valid" apart from "the site changed under us".
package hltv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const BaseUrl = "https://www.hltv.org"

var ErrUnrecognizedPage = errors.New("page structure unrecognized")

// MatchIDFromHref pulls the numeric id out of hrefs shaped like
// /matches/2370727/vitality-vs-spirit-blast-premier or
// /stats/teams/4608/natus-vincere: the id is always the second to last
// path segment.
func MatchIDFromHref(href string) (int, error) {
	parts := strings.Split(strings.Trim(href, "/"), "/")
	if len(parts) < 2 {
		return 0, fmt.Errorf("href has no id segment: %s", href)
	}
	id, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, fmt.Errorf("href has non-numeric id segment: %s", href)
	}
	return id, nil
}

func AbsoluteUrl(href string) string {
	if strings.HasPrefix(href, "/") {
		return BaseUrl + href
	}
	return href
}
