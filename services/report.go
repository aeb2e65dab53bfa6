package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"damai-scraper/models"
	"damai-scraper/utils"
)

const nextShowsLimit = 5

// ReportService summarises the stored shows of an artist.
type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Generate builds the report for shows, which must all belong to artist.
// Shows dated on or after today count as upcoming.
func (s *ReportService) Generate(artist string, shows []*models.StoredShow, now time.Time) *models.ShowReport {
	report := &models.ShowReport{
		Artist: artist,
		ByCity: make(map[string]int),
	}
	if len(shows) == 0 {
		return report
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sorted := make([]*models.StoredShow, len(shows))
	copy(sorted, shows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	report.Total = len(sorted)
	report.FirstDate = sorted[0].Date
	report.LastDate = sorted[len(sorted)-1].Date

	for _, sh := range sorted {
		if sh.City != "" {
			report.ByCity[sh.City]++
		}
		if !sh.Date.Before(today) {
			report.Upcoming++
			if len(report.Next) < nextShowsLimit {
				report.Next = append(report.Next, sh)
			}
		}
	}

	s.logger.Debug("[report] %s: %d shows, %d upcoming", artist, report.Total, report.Upcoming)
	return report
}

func (s *ReportService) Print(w io.Writer, r *models.ShowReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🎤 SHOWS FOR %s\033[0m\n", r.Artist)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Stored shows   : \033[1m%d\033[0m\n", r.Total)
	fmt.Fprintf(w, "  Upcoming shows : \033[1m%d\033[0m\n", r.Upcoming)
	if r.Total > 0 {
		fmt.Fprintf(w, "  Date span      : %s → %s\n",
			r.FirstDate.Format(models.DateLayout), r.LastDate.Format(models.DateLayout))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Next Shows\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Next) == 0 {
		fmt.Fprintf(w, "  No upcoming shows\n")
	} else {
		for i, sh := range r.Next {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %s  %-6s %s\n",
				i+1, sh.Date.Format(models.DateLayout), sh.City, truncate(sh.Name, 30))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Shows by City\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ByCity) == 0 {
		fmt.Fprintf(w, "  No city data\n")
	} else {
		type cityCount struct {
			city  string
			count int
		}
		var cities []cityCount
		for city, cnt := range r.ByCity {
			cities = append(cities, cityCount{city, cnt})
		}
		sort.Slice(cities, func(i, j int) bool {
			if cities[i].count != cities[j].count {
				return cities[i].count > cities[j].count
			}
			return cities[i].city < cities[j].city
		})
		for _, cc := range cities {
			bar := strings.Repeat("█", cc.count)
			fmt.Fprintf(w, "  %-12s %s (%d)\n", truncate(cc.city, 10), bar, cc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
