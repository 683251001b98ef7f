package parser

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/partscout/internal/types"
)

// queryAll evaluates an XPath expression against a parsed document.
func queryAll(source string, doc *html.Node, expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, &types.ParseError{Source: source, Err: fmt.Errorf("xpath %q: %w", expr, err)}
	}
	return nodes, nil
}

// ParseMercedesVehicle pairs each <h3> heading with the div.tree at the
// running position. The site renders no tree for a "Springs" heading, so it
// takes the previous heading's tree and the pairing stays aligned afterwards.
func ParseMercedesVehicle(src string) (*types.Attributes, error) {
	doc, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, &types.ParseError{Source: "mercedes vehicle", Err: err}
	}
	headers, err := queryAll("mercedes vehicle", doc, "//h3")
	if err != nil {
		return nil, err
	}
	trees, err := queryAll("mercedes vehicle", doc, "//div[contains(concat(' ', normalize-space(@class), ' '), ' tree ')]")
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, &types.ParseError{Source: "mercedes vehicle", Err: fmt.Errorf("no headings: %w", types.ErrNotFound)}
	}

	attrs := types.NewAttributes()
	counter := 0
	for _, h := range headers {
		key := strings.TrimSpace(htmlquery.OutputHTML(h, false))
		if key == "Springs" {
			counter--
		}
		if counter >= 0 && counter < len(trees) {
			attrs.Set(key, blockText(trees[counter]))
		}
		counter++
	}
	return attrs, nil
}

// blockText approximates innerText: one trimmed line per text run, blank
// lines dropped.
func blockText(n *html.Node) string {
	var lines []string
	for _, line := range strings.Split(htmlquery.InnerText(n), "\n") {
		if line = collapse(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
