package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"damai-scraper/models"
)

// OutputFormat selects how update results are printed.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

func parseFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if f != FormatText && f != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", s)
	}
	return f, nil
}

type resultsOutput struct {
	Success bool                  `json:"success"`
	Data    []models.ArtistResult `json:"data"`
}

func writeResults(w io.Writer, format OutputFormat, results []models.ArtistResult) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(resultsOutput{Success: true, Data: results})
	}

	ok := 0
	for _, r := range results {
		mark := "✗"
		if r.Success {
			mark = "✓"
			ok++
		}
		fmt.Fprintf(w, "%s %-20s %s\n", mark, r.Artist, r.Message)
	}
	fmt.Fprintf(w, "\n%d/%d artists updated\n", ok, len(results))
	return nil
}
