package models

import "time"

// UploadStats summarises one successful pipeline run for an artist.
type UploadStats struct {
	RunID      string
	Artist     string
	Raw        int
	Expanded   int
	New        int
	Skipped    int
	Unparsable int
	Attempts   int
	Duration   time.Duration
}

// ArtistResult is the per-artist outcome of an update request.
type ArtistResult struct {
	Artist  string       `json:"artist"`
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Stats   *UploadStats `json:"-"`
}

// ShowReport holds a summary of the stored shows of one artist.
type ShowReport struct {
	Artist    string
	Total     int
	Upcoming  int
	FirstDate time.Time
	LastDate  time.Time
	ByCity    map[string]int
	Next      []*StoredShow
}
