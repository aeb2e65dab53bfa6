package models

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the canonical rendering of a show date, e.g. "2024.12.21".
const DateLayout = "2006.01.02"

// RawShow holds one listing exactly as extracted from a search-results page.
// Every field is a string; a missing element leaves the field empty.
type RawShow struct {
	Name      string `json:"name"`
	Tag       string `json:"tag"`
	City      string `json:"city"`
	Venue     string `json:"venue"`
	Lineup    string `json:"lineup"`
	DateText  string `json:"date"`
	Price     string `json:"price"`
	Status    string `json:"status"`
	DetailURL string `json:"detail_url"`
	PosterURL string `json:"poster"`
}

// Show is a RawShow resolved to a single calendar date.
type Show struct {
	Name      string    `json:"name"`
	Tag       string    `json:"tag"`
	City      string    `json:"city"`
	Venue     string    `json:"venue"`
	Lineup    string    `json:"lineup"`
	Date      time.Time `json:"-"`
	Price     string    `json:"price"`
	Status    string    `json:"status"`
	DetailURL string    `json:"detail_url"`
	PosterURL string    `json:"poster"`
}

// DateString renders the show date canonically.
func (s *Show) DateString() string {
	return s.Date.Format(DateLayout)
}

// MarshalJSON writes the date in its canonical form.
func (s Show) MarshalJSON() ([]byte, error) {
	type plain Show
	return json.Marshal(struct {
		plain
		Date string `json:"date"`
	}{plain(s), s.DateString()})
}

// Key returns the identity triple of the show.
func (s *Show) Key() ShowKey {
	return ShowKey{Name: s.Name, Date: s.DateString(), City: s.City}
}

// ShowKey is the (name, date, city) identity of an event occurrence.
// Comparison is exact: no case folding or whitespace trimming.
type ShowKey struct {
	Name string
	Date string
	City string
}

func (k ShowKey) String() string {
	return strings.Join([]string{k.Name, k.Date, k.City}, " | ")
}

// StoredShow is the persisted row for one show occurrence.
type StoredShow struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Artist    string    `json:"artist"`
	Tag       string    `json:"tag"`
	City      string    `json:"city"`
	Venue     string    `json:"venue"`
	Lineup    string    `json:"lineup"`
	Date      time.Time `json:"-"`
	Price     string    `json:"price"`
	Status    string    `json:"status"`
	DetailURL string    `json:"detail_url"`
	PosterURL string    `json:"poster"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStoredShow stages s for insertion under the given artist.
func NewStoredShow(s *Show, artist string, createdAt time.Time) *StoredShow {
	return &StoredShow{
		Name:      s.Name,
		Artist:    artist,
		Tag:       s.Tag,
		City:      s.City,
		Venue:     s.Venue,
		Lineup:    s.Lineup,
		Date:      s.Date,
		Price:     s.Price,
		Status:    s.Status,
		DetailURL: s.DetailURL,
		PosterURL: s.PosterURL,
		CreatedAt: createdAt,
	}
}

// Key returns the identity triple of the stored show.
func (s *StoredShow) Key() ShowKey {
	return ShowKey{Name: s.Name, Date: s.Date.Format(DateLayout), City: s.City}
}
