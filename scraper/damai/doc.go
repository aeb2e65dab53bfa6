// Package damai fetches artist search-results pages from the Damai ticketing
// site and extracts one RawShow per listing container.
//
// Fetching drives a headless browser through chromedp because the result list
// is rendered client-side; extraction works on the rendered HTML through
// goquery and never fails a listing because one of its fields is missing.
package damai
