package damai

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"damai-scraper/models"
)

const (
	listingSelector    = "div.item__main div.items"
	detailLinkSelector = "a[href*='detail.damai.cn']"
	tagSelector        = "span.items__img__tag"
	infoSelector       = "div.items__txt"
	titleSelector      = "div.items__txt__title"
	timeRowSelector    = "div.items__txt__time"
	priceSelector      = "div.items__txt__price"

	lineupPrefix = "艺人："
	priceSuffix  = "元"
)

// field is the outcome of reading one value from a listing: the text, or the
// selector/attribute that was not there. A missing field reads as "".
type field struct {
	value   string
	missing string
}

func found(v string) field { return field{value: v} }

func absent(what string) field { return field{missing: what} }

func (f field) ok() bool { return f.missing == "" }

type namedField struct {
	name string
	f    field
	dst  *string
}

// Extraction pairs an extracted record with the fields that could not be read.
type Extraction struct {
	Show    *models.RawShow
	Missing []string
}

// ExtractShows returns one RawShow per listing container in document order.
func ExtractShows(doc *goquery.Document) []*models.RawShow {
	extractions := Extract(doc)
	shows := make([]*models.RawShow, 0, len(extractions))
	for _, e := range extractions {
		shows = append(shows, e.Show)
	}
	return shows
}

// Extract walks every listing container and reads it field by field.
// The document is only read, never modified.
func Extract(doc *goquery.Document) []Extraction {
	containers := doc.Find(listingSelector)
	out := make([]Extraction, 0, containers.Length())
	containers.Each(func(_ int, item *goquery.Selection) {
		out = append(out, extractListing(item))
	})
	return out
}

func extractListing(item *goquery.Selection) Extraction {
	link := first(item, detailLinkSelector)
	info := first(item, infoSelector)
	title := first(info, titleSelector)
	rows := info.Find(timeRowSelector)

	price, status := priceAndStatus(info)

	show := &models.RawShow{}
	fields := []namedField{
		{"detail_url", attr(link, "href"), &show.DetailURL},
		{"poster", poster(link), &show.PosterURL},
		{"tag", text(first(link, tagSelector)), &show.Tag},
		{"city", city(title), &show.City},
		{"name", text(first(title, "a")), &show.Name},
		{"lineup", lineup(rows.Eq(0)), &show.Lineup},
		{"venue", venue(rows.Eq(1)), &show.Venue},
		{"date", text(rows.Eq(2)), &show.DateText},
		{"price", price, &show.Price},
		{"status", status, &show.Status},
	}

	var missing []string
	for _, fl := range fields {
		*fl.dst = fl.f.value
		if !fl.f.ok() {
			missing = append(missing, fl.name)
		}
	}
	return Extraction{Show: show, Missing: missing}
}

func first(sel *goquery.Selection, selector string) *goquery.Selection {
	return sel.Find(selector).First()
}

func text(sel *goquery.Selection) field {
	if sel.Length() == 0 {
		return absent("element")
	}
	return found(strings.TrimSpace(sel.Text()))
}

func attr(sel *goquery.Selection, name string) field {
	if sel.Length() == 0 {
		return absent("element")
	}
	v, ok := sel.Attr(name)
	if !ok {
		return absent(name)
	}
	return found(strings.TrimSpace(v))
}

// poster prefers src and falls back to the lazy-load data-src.
func poster(link *goquery.Selection) field {
	img := first(link, "img")
	if f := attr(img, "src"); f.ok() && f.value != "" {
		return f
	}
	return attr(img, "data-src")
}

// city reads the 【上海】 style prefix of the title row.
func city(title *goquery.Selection) field {
	f := text(first(title, "span"))
	if !f.ok() {
		return f
	}
	r := strings.NewReplacer("【", "", "】", "")
	return found(strings.TrimSpace(r.Replace(f.value)))
}

// lineup is only present when the first row carries the 艺人： label.
func lineup(row *goquery.Selection) field {
	f := text(row)
	if !f.ok() {
		return f
	}
	if !strings.Contains(f.value, lineupPrefix) {
		return found("")
	}
	return found(strings.TrimSpace(strings.ReplaceAll(f.value, lineupPrefix, "")))
}

// venue keeps the part after "city | venue" when the row has both.
func venue(row *goquery.Selection) field {
	f := text(row)
	if !f.ok() {
		return f
	}
	if _, after, ok := strings.Cut(f.value, "|"); ok {
		return found(strings.TrimSpace(after))
	}
	return f
}

// priceAndStatus splits the price row: the span holds the price, the rest of
// the row text is the sale status.
func priceAndStatus(info *goquery.Selection) (field, field) {
	row := first(info, priceSelector)
	span := text(first(row, "span"))
	if !span.ok() {
		return span, span
	}
	all := text(row)

	price := strings.TrimSpace(strings.ReplaceAll(span.value, priceSuffix, ""))
	status := all.value
	if span.value != "" {
		status = strings.ReplaceAll(status, span.value, "")
	}
	status = strings.TrimSpace(strings.ReplaceAll(status, priceSuffix, ""))
	return found(price), found(status)
}
