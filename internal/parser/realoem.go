package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/partscout/internal/types"
)

// vehicleOptionKeys name the selected <option>s of the RealOEM vehicle form,
// starting at the second one.
var vehicleOptionKeys = []string{
	"product", "catalog", "series", "body", "model", "market", "prod_month", "engine",
}

// subgroupSkip marks .title entries that are kits rather than diagrams.
var subgroupSkip = []string{"REP. KIT", "VALUE PARTS"}

// ParsePartsTable reads RealOEM parts rows. Rows with fewer than ten cells
// are layout rows and are ignored.
func ParsePartsTable(html string) ([]types.PartRow, error) {
	doc, err := document("realoem parts table", html)
	if err != nil {
		return nil, err
	}

	var rows []types.PartRow
	doc.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 10 {
			return
		}
		row := types.PartRow{
			Description: cellText(cells, 1),
			Quantity:    cellText(cells, 3),
			PartNumber:  collapse(cells.Eq(6).Find("a.inline-a").First().Text()),
		}
		if note := cellText(cells, 9); note != "" {
			row.Notes = []string{note}
		}
		rows = append(rows, row)
	})
	return rows, nil
}

// ParseSelectedOptions reads the vehicle identity from the selected options
// of the RealOEM model selector.
func ParseSelectedOptions(html string) (*types.Attributes, error) {
	doc, err := document("realoem vehicle", html)
	if err != nil {
		return nil, err
	}

	opts := doc.Find("option[selected]")
	attrs := types.NewAttributes()
	for i, key := range vehicleOptionKeys {
		if i+1 >= opts.Length() {
			break
		}
		attrs.Set(key, collapse(opts.Eq(i+1).Text()))
	}
	return attrs, nil
}

// SubgroupTitle is one clickable diagram entry on a RealOEM main-group page.
type SubgroupTitle struct {
	// Index is the position among all .title elements, header included.
	Index int
	Name  string
	// Kit is set for repair-kit and value-part entries, which have no diagram.
	Kit bool
}

// ParseSubgroupTitles lists the non-empty .title entries after the header.
func ParseSubgroupTitles(html string) ([]SubgroupTitle, error) {
	doc, err := document("realoem subgroups", html)
	if err != nil {
		return nil, err
	}

	var titles []SubgroupTitle
	doc.Find(".title").Each(func(i int, s *goquery.Selection) {
		if i == 0 {
			return
		}
		name := collapse(s.Text())
		if name == "" {
			return
		}
		titles = append(titles, SubgroupTitle{Index: i, Name: name, Kit: isKitTitle(name)})
	})
	return titles, nil
}

// FilterSubgroups keeps titles containing any of filters, case-insensitively.
// No filters keeps everything.
func FilterSubgroups(titles []SubgroupTitle, filters []string) []SubgroupTitle {
	if len(filters) == 0 {
		return titles
	}
	var out []SubgroupTitle
	for _, t := range titles {
		name := strings.ToLower(t.Name)
		for _, f := range filters {
			if f = strings.ToLower(strings.TrimSpace(f)); f != "" && strings.Contains(name, f) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// SubgroupNames returns the lowercased names of the diagram entries.
func SubgroupNames(titles []SubgroupTitle) []string {
	names := make([]string, 0, len(titles))
	for _, t := range titles {
		if !t.Kit {
			names = append(names, strings.ToLower(t.Name))
		}
	}
	return names
}

func isKitTitle(name string) bool {
	for _, s := range subgroupSkip {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}
