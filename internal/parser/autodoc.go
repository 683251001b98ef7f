package parser

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/partscout/internal/types"
)

var oeNumberRe = regexp.MustCompile(`OE\s+(\S+)`)

// CapitalizePartNumber upper-cases the first character and lower-cases the
// rest, which is the form the autodoc search expects.
func CapitalizePartNumber(s string) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// ParseAutodocOE extracts the OE numbers listed on a product page.
func ParseAutodocOE(html string) ([]string, error) {
	doc, err := document("autodoc product", html)
	if err != nil {
		return nil, err
	}

	nums := []string{}
	doc.Find(".product-oem__list li").Each(func(_ int, s *goquery.Selection) {
		if m := oeNumberRe.FindStringSubmatch(s.Text()); m != nil {
			nums = append(nums, m[1])
		}
	})
	return nums, nil
}

// ParseAutodocFirstListing returns the absolute URL of the first search
// result, or "" when the listing is empty.
func ParseAutodocFirstListing(html, base string) (string, error) {
	doc, err := document("autodoc search", html)
	if err != nil {
		return "", err
	}

	link := doc.Find(".listing-item__name").First()
	href, ok := link.Attr("href")
	if !ok {
		href, ok = link.Find("a[href]").First().Attr("href")
	}
	if !ok {
		href, ok = link.Closest("a[href]").Attr("href")
	}
	if !ok || strings.TrimSpace(href) == "" {
		return "", nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", &types.ParseError{Source: "autodoc search", Err: err}
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", &types.ParseError{Source: "autodoc search", Err: err}
	}
	return baseURL.ResolveReference(ref).String(), nil
}
