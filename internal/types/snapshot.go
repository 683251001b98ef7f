package types

import (
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Snapshot is a captured fragment of a rendered page.
type Snapshot struct {
	URL        string
	HTML       string
	CapturedAt time.Time

	docOnce sync.Once
	doc     *goquery.Document
	docErr  error
}

// NewSnapshot wraps captured HTML.
func NewSnapshot(url, body string) *Snapshot {
	return &Snapshot{
		URL:        url,
		HTML:       body,
		CapturedAt: time.Now(),
	}
}

// Document lazily parses the HTML with goquery.
func (s *Snapshot) Document() (*goquery.Document, error) {
	s.docOnce.Do(func() {
		s.doc, s.docErr = goquery.NewDocumentFromReader(strings.NewReader(s.HTML))
	})
	return s.doc, s.docErr
}

// Node parses the HTML into a fresh node tree for XPath queries.
func (s *Snapshot) Node() (*html.Node, error) {
	return html.Parse(strings.NewReader(s.HTML))
}
