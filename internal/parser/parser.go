// Package parser turns captured catalog HTML and text into typed rows.
// Every function here is pure: the browser layer captures, parser reads.
package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/partscout/internal/types"
)

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]`)
)

// NormalizeText collapses runs of whitespace (including non-breaking spaces),
// trims, and lowercases.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.ToLower(strings.TrimSpace(spaceRe.ReplaceAllString(s, " ")))
}

// NormalizeAlnum lowercases, replaces anything but letters, digits and
// whitespace with a space, then collapses whitespace.
func NormalizeAlnum(s string) string {
	s = nonAlnumRe.ReplaceAllString(strings.ToLower(s), " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// collapse joins whitespace runs into single spaces and trims, keeping case.
func collapse(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func document(source, html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &types.ParseError{Source: source, Err: err}
	}
	return doc, nil
}

// cellText returns the collapsed text of the i-th cell, or "" when absent.
func cellText(cells *goquery.Selection, i int) string {
	if i >= cells.Length() {
		return ""
	}
	return collapse(cells.Eq(i).Text())
}
