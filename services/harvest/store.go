package harvest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorruptState wraps any unreadable persisted file. a run must abort
// on it before mutating anything: inventing a fresh state would silently
// discard the progress cursor and re-fetch the whole backlog.
var ErrCorruptState = errors.New("persisted state is corrupt")

const (
	UpcomingFile   = "upcoming.json"
	ResultsFile    = "results.json"
	StateFile      = "scrape_state.json"
	FailedUrlsFile = "failed_urls.json"
)

// Store owns the four durable files under one data directory. every save
// goes through write-to-temp-then-rename so a crash mid-write leaves the
// previous consistent file in place.
type Store struct {
	dir string
}

func NewStore(dir string) Store {
	return Store{dir: dir}
}

func (s Store) LoadUpcoming() ([]MatchSummary, error) {
	return loadJson[[]MatchSummary](filepath.Join(s.dir, UpcomingFile))
}

func (s Store) SaveUpcoming(matches []MatchSummary) error {
	if matches == nil {
		matches = []MatchSummary{}
	}
	return saveJson(filepath.Join(s.dir, UpcomingFile), matches)
}

func (s Store) LoadResults() ([]ResultRecord, error) {
	return loadJson[[]ResultRecord](filepath.Join(s.dir, ResultsFile))
}

func (s Store) SaveResults(records []ResultRecord) error {
	if records == nil {
		records = []ResultRecord{}
	}
	return saveJson(filepath.Join(s.dir, ResultsFile), records)
}

func (s Store) LoadState() (ScrapeState, error) {
	return loadJson[ScrapeState](filepath.Join(s.dir, StateFile))
}

func (s Store) SaveState(state ScrapeState) error {
	return saveJson(filepath.Join(s.dir, StateFile), state)
}

func (s Store) LoadLedger() ([]FailedURLEntry, error) {
	return loadJson[[]FailedURLEntry](filepath.Join(s.dir, FailedUrlsFile))
}

func (s Store) SaveLedger(entries []FailedURLEntry) error {
	if entries == nil {
		entries = []FailedURLEntry{}
	}
	return saveJson(filepath.Join(s.dir, FailedUrlsFile), entries)
}

// a missing file is a first run, not an error.
func loadJson[T any](path string) (T, error) {
	var out T

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("%w: %s: %s", ErrCorruptState, path, err.Error())
	}

	err = json.Unmarshal(raw, &out)
	if err != nil {
		return out, fmt.Errorf("%w: %s: %s", ErrCorruptState, path, err.Error())
	}
	return out, nil
}

func saveJson(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	// the temp file must live in the target directory, rename is only
	// atomic within one filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(raw)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
