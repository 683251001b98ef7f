package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/partscout/internal/types"
)

// ParseHeaderValueTable pairs each header cell of a modifications table with
// the body cell at the same position. The first column is a row selector and
// is skipped.
func ParseHeaderValueTable(html string) (*types.Attributes, error) {
	doc, err := document("modifications table", html)
	if err != nil {
		return nil, err
	}

	headers := doc.Find("thead tr th")
	values := doc.Find("tbody tr td")
	attrs := types.NewAttributes()
	for i := 1; i < headers.Length(); i++ {
		key := collapse(headers.Eq(i).Text())
		if key == "" {
			continue
		}
		attrs.Set(key, cellText(values, i))
	}
	return attrs, nil
}

// ParseSpanStrongNumbers returns the bold part numbers of the part rows whose
// text contains label, case-insensitively.
func ParseSpanStrongNumbers(html, label string) ([]string, error) {
	doc, err := document("part rows", html)
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(collapse(label))
	var nums []string
	doc.Find("div.px-1.flex-grow-1 > span").Each(func(_ int, s *goquery.Selection) {
		if !strings.Contains(strings.ToLower(collapse(s.Text())), want) {
			return
		}
		if num := collapse(s.Find("strong").First().Text()); num != "" {
			nums = append(nums, num)
		}
	})
	return nums, nil
}
