package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"damai-scraper/models"
)

const rangeSeparator = "-"

var (
	ErrEmptyDate          = errors.New("empty date text")
	ErrMalformedDate      = errors.New("malformed date")
	ErrMultipleSeparators = errors.New("more than one range separator")
	ErrReversedRange      = errors.New("range ends before it starts")
)

// DateParseError reports date text that could not be resolved to calendar days.
type DateParseError struct {
	Text   string
	Reason error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("parse date %q: %v", e.Text, e.Reason)
}

func (e *DateParseError) Unwrap() error {
	return e.Reason
}

// ExpandDates resolves the date text of raw into one Show per calendar day.
//
// Accepted forms are a single "2024.12.21" (anything after the first space is
// ignored) and a range "2024.12.21-12.22" whose end inherits the start year.
// Ranges ending before they start, including ranges that would need to roll
// over into the next year, are rejected rather than guessed at.
func ExpandDates(raw *models.RawShow) ([]*models.Show, error) {
	days, err := resolveDays(raw.DateText)
	if err != nil {
		return nil, err
	}
	shows := make([]*models.Show, 0, len(days))
	for _, d := range days {
		shows = append(shows, &models.Show{
			Name:      raw.Name,
			Tag:       raw.Tag,
			City:      raw.City,
			Venue:     raw.Venue,
			Lineup:    raw.Lineup,
			Date:      d,
			Price:     raw.Price,
			Status:    raw.Status,
			DetailURL: raw.DetailURL,
			PosterURL: raw.PosterURL,
		})
	}
	return shows, nil
}

func resolveDays(text string) ([]time.Time, error) {
	fail := func(reason error) ([]time.Time, error) {
		return nil, &DateParseError{Text: text, Reason: reason}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fail(ErrEmptyDate)
	}

	switch strings.Count(trimmed, rangeSeparator) {
	case 0:
		d, err := parseDay(dropTrailing(trimmed))
		if err != nil {
			return fail(err)
		}
		return []time.Time{d}, nil
	case 1:
	default:
		return fail(ErrMultipleSeparators)
	}

	startTok, endTok, _ := strings.Cut(trimmed, rangeSeparator)
	startTok = strings.TrimSpace(startTok)
	endTok = dropTrailing(strings.TrimSpace(endTok))

	year, _, ok := strings.Cut(startTok, ".")
	if !ok {
		return fail(fmt.Errorf("%w: range start %q has no year", ErrMalformedDate, startTok))
	}

	start, err := parseDay(startTok)
	if err != nil {
		return fail(err)
	}
	end, err := parseDay(year + "." + endTok)
	if err != nil {
		return fail(err)
	}
	if end.Before(start) {
		return fail(ErrReversedRange)
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

// parseDay accepts YYYY.MM.DD with or without zero padding.
func parseDay(s string) (time.Time, error) {
	d, err := time.Parse("2006.1.2", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return d, nil
}

// dropTrailing removes anything after the first whitespace, e.g. a time of day.
func dropTrailing(s string) string {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

// ExpandResult is the per-record outcome of expansion: the shows, or why the
// record is skipped.
type ExpandResult struct {
	Raw   *models.RawShow
	Shows []*models.Show
	Err   error
}

// Skipped reports whether the record produced no shows because of an error.
func (r ExpandResult) Skipped() bool { return r.Err != nil }

// ExpandAll expands every record independently; a bad record never affects the others.
func ExpandAll(raw []*models.RawShow) []ExpandResult {
	results := make([]ExpandResult, 0, len(raw))
	for _, r := range raw {
		shows, err := ExpandDates(r)
		results = append(results, ExpandResult{Raw: r, Shows: shows, Err: err})
	}
	return results
}
