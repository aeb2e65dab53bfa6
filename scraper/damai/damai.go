package damai

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"damai-scraper/config"
	"damai-scraper/models"
	"damai-scraper/utils"
)

const searchSpm = "a2oeg.search_category.searchtxt.dsearchbtn"

// SearchURL builds the search-results URL for one artist.
func SearchURL(base, artist string) string {
	keyword := strings.ReplaceAll(url.QueryEscape(artist), "+", "%20")
	return base + "?keyword=" + keyword + "&spm=" + searchSpm
}

// Fetcher renders search-results pages in a headless browser.
type Fetcher struct {
	cfg    *config.Config
	logger *utils.Logger
	retry  *utils.RetryPolicy
}

// NewFetcher creates a Fetcher. Page loads are retried with the configured policy.
func NewFetcher(cfg *config.Config, logger *utils.Logger) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		logger: logger,
		retry:  cfg.RetryPolicy(logger),
	}
}

// Fetch loads the artist's search page and returns the rendered document.
func (f *Fetcher) Fetch(ctx context.Context, artist string) (*goquery.Document, error) {
	searchURL := SearchURL(f.cfg.SearchURL, artist)
	f.logger.Info("[damai] Fetching search page for %q: %s", artist, searchURL)

	chromeBin := f.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/131.0.6778.109 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	var html string
	err := f.retry.Do(ctx, "fetch-search-page", func() error {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.cfg.FetchTimeout())
		defer cancelTimeout()

		if err := chromedp.Run(tabCtx,
			chromedp.Navigate(searchURL),
			chromedp.Sleep(f.cfg.PageLoadWait()),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("chromedp search page: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ParseDocument(html)
}

// ParseDocument turns rendered HTML into a queryable document.
func ParseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// DocumentSource yields the rendered search page of an artist.
type DocumentSource interface {
	Fetch(ctx context.Context, artist string) (*goquery.Document, error)
}

// Scraper combines a DocumentSource with extraction.
type Scraper struct {
	source DocumentSource
	logger *utils.Logger
}

// NewScraper creates a Scraper reading pages from source.
func NewScraper(source DocumentSource, logger *utils.Logger) *Scraper {
	return &Scraper{source: source, logger: logger}
}

// Scrape returns the raw listings found on the artist's search page.
func (s *Scraper) Scrape(ctx context.Context, artist string) ([]*models.RawShow, error) {
	start := time.Now()
	doc, err := s.source.Fetch(ctx, artist)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", artist, err)
	}

	extractions := Extract(doc)
	shows := make([]*models.RawShow, 0, len(extractions))
	for i, e := range extractions {
		if len(e.Missing) > 0 {
			s.logger.Debug("[damai] Listing %d (%s): missing %s", i+1, e.Show.Name, strings.Join(e.Missing, ", "))
		}
		shows = append(shows, e.Show)
	}

	s.logger.Info("[damai] Found %d listings for %q in %v", len(shows), artist, time.Since(start).Round(time.Millisecond))
	return shows, nil
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
