package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/partscout/internal/types"
)

const ssgCarRow = "div.row.shadow.rounded.mb-3.pt-2.pb-2.car-row"

// ParseSSGVehicle reads the SSG vehicle card.
func ParseSSGVehicle(html string) (*types.Attributes, error) {
	doc, err := document("ssg vehicle", html)
	if err != nil {
		return nil, err
	}

	first := func(sel string) string {
		return collapse(doc.Find(sel).First().Text())
	}

	attrs := types.NewAttributes()
	attrs.Set("brand", first("h3.pb-2"))
	attrs.Set("model", first("h5"))
	attrs.Set("body", first("small[title='Body']"))

	tags := []string{}
	doc.Find("span.badge.badge-info").Each(func(_ int, s *goquery.Selection) {
		tags = append(tags, collapse(s.Text()))
	})
	attrs.Set("tags", tags)

	attrs.Set("year", first("div[title='Year']"))
	attrs.Set("engine", first("div.Engine"))
	attrs.Set("engine_code", first("small[title='Engine code']"))
	attrs.Set("transmission", first(ssgCarRow+" > div.col-md-6 > div > div.col-lg.col-md-12"))

	more := doc.Find("#dcr-0").First().Find("div")
	for i, key := range []string{"type", "class", "production_period"} {
		attrs.Set(key, afterColon(collapse(more.Eq(i).Text())))
	}
	return attrs, nil
}

// afterColon returns the text after the first ": ", or "" when absent.
func afterColon(s string) string {
	_, v, ok := strings.Cut(s, ": ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
