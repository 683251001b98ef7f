package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/partscout/internal/types"
)

// ActiveAttr is set by the browser on cells and rows rendered in the catalog's
// "available" colour, since computed styles do not survive an HTML snapshot.
const ActiveAttr = "data-ps-active"

// EtkaActiveColor is the text colour ETKA uses for parts valid for the VIN.
const EtkaActiveColor = "#212529"

// etkaDetailAliases are the detail-cell texts accepted for each AC part.
var etkaDetailAliases = map[string][]string{
	"compressor": {"compressor", "ac compressor", "a/c compressor", "a c compressor"},
	"condenser":  {"condenser"},
	"evaporator": {"evaporator"},
	"expansion":  {"expansion", "expansion valve", "valve", "regulation valve"},
}

// etkaDisallowed are words that disqualify a detail cell for a part.
var etkaDisallowed = map[string][]string{
	"compressor": {"bracket", "oil"},
	"expansion":  {"evaporator"},
}

// etkaSubgroupFallbacks are tried when no subgroup row names the part itself.
var etkaSubgroupFallbacks = map[string][]string{
	"expansion":  {"evaporator", "electronic regulation"},
	"evaporator": {"electronic regulation"},
}

// EtkaACParts lists the part keys accepted by the ETKA parts lookup.
var EtkaACParts = []string{"compressor", "condenser", "evaporator", "expansion"}

// maintenanceCategories maps ETKA service categories to the part names that
// select them. "Transmisson oil" is spelled the way the catalog spells it.
var maintenanceCategories = []struct {
	category string
	aliases  []string
}{
	{"Spark plugs", []string{"spark plugs", "spark-plugs"}},
	{"Air filter elements", []string{"air filter", "air-filter"}},
	{"Engine oil filter", []string{"engine oil filter"}},
	{"Engine oil", []string{"engine oil"}},
	{"Dust/pollen filter", []string{"dust filter", "pollen filter", "ac filter", "insert filter", "harmful substance filter"}},
	{"Transmisson oil", []string{"transmisson oil"}},
}

var leadingDigitsRe = regexp.MustCompile(`^\d+`)

// EtkaDetail is the detail cell identified as the requested part.
type EtkaDetail struct {
	Num   string `json:"num"`
	NumN  string `json:"numn"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ParseKeyValueRows reads a two-column vehicle table. When the fragment holds
// several table bodies the second one carries the data, as in the ETKA VIN
// dialog; otherwise the first is used.
func ParseKeyValueRows(html string) (*types.Attributes, error) {
	doc, err := document("key/value rows", html)
	if err != nil {
		return nil, err
	}

	bodies := doc.Find("table tbody")
	body := bodies.First()
	if bodies.Length() > 1 {
		body = bodies.Eq(1)
	}

	attrs := types.NewAttributes()
	body.ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}
		key := cellText(cells, 0)
		if key == "" {
			return
		}
		attrs.Set(key, cellText(cells, 1))
	})
	return attrs, nil
}

// SelectEtkaSubgroup returns the index of the active subgroup row for key
// among "table.subGrTable tr". Each keyword is tried as an exact match, then
// a prefix, then a substring, before moving to the fallback keywords.
func SelectEtkaSubgroup(html, key string) (int, bool, error) {
	doc, err := document("etka subgroups", html)
	if err != nil {
		return 0, false, err
	}

	type row struct {
		idx  int
		text string
	}
	var active []row
	doc.Find("table.subGrTable tr").Each(func(i int, tr *goquery.Selection) {
		if isActive(tr) {
			active = append(active, row{idx: i, text: NormalizeText(tr.Text())})
		}
	})

	key = NormalizeText(key)
	keywords := append([]string{key}, etkaSubgroupFallbacks[key]...)
	matchers := []func(text, kw string) bool{
		func(t, kw string) bool { return t == kw },
		strings.HasPrefix,
		strings.Contains,
	}
	for _, kw := range keywords {
		for _, match := range matchers {
			for _, r := range active {
				if match(r.text, kw) {
					return r.idx, true, nil
				}
			}
		}
	}
	return 0, false, nil
}

// ParseEtkaDetails scans the detail cells in order, remembering the last
// active cell that carries a part number. The first cell whose text names
// the part, and has none of its disallowed words, yields that remembered
// part number.
func ParseEtkaDetails(html, key string) (*EtkaDetail, error) {
	doc, err := document("etka details", html)
	if err != nil {
		return nil, err
	}

	key = NormalizeText(key)
	aliases, ok := etkaDetailAliases[key]
	if !ok {
		aliases = []string{key}
	}
	normAliases := make([]string, 0, len(aliases))
	for _, a := range aliases {
		normAliases = append(normAliases, stripAlnum(a))
	}
	disallowed := etkaDisallowed[key]

	var (
		last  *EtkaDetail
		found *EtkaDetail
	)
	doc.Find("table.detailsTable tr td.etkTd").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		text := strings.TrimSpace(td.Text())
		norm := stripAlnum(text)

		if num, has := td.Attr("num"); has && text != "" && isActive(td) {
			last = &EtkaDetail{
				Num:   num,
				NumN:  td.AttrOr("numn", ""),
				Title: td.AttrOr("title", ""),
				Text:  text,
			}
		}
		if last == nil || norm == "" {
			return true
		}
		for _, w := range disallowed {
			if strings.Contains(norm, w) {
				return true
			}
		}
		for _, a := range normAliases {
			if (key == "expansion" && strings.HasPrefix(norm, a)) || (key != "expansion" && strings.Contains(norm, a)) {
				found = last
				return false
			}
		}
		return true
	})
	return found, nil
}

// MaintenanceCategory resolves a part name to its ETKA service category.
// Spark plugs are reported with quantities.
func MaintenanceCategory(part string) (category string, withQty bool, ok bool) {
	part = NormalizeText(part)
	for _, c := range maintenanceCategories {
		for _, a := range c.aliases {
			if a == part {
				return c.category, c.category == "Spark plugs", true
			}
		}
	}
	return "", false, false
}

// MaintenanceParts lists every part name MaintenanceCategory accepts.
func MaintenanceParts() []string {
	var out []string
	for _, c := range maintenanceCategories {
		out = append(out, c.aliases...)
	}
	return out
}

// ParseEtkaSpares reads the service-parts table. Rows whose quantity cell
// does not start with a digit are headers or notes.
func ParseEtkaSpares(html string, withQty bool) (*types.PartList, error) {
	doc, err := document("etka spares", html)
	if err != nil {
		return nil, err
	}

	list := &types.PartList{WithQty: withQty, Items: []types.PartRef{}}
	doc.Find("#spareContent0 > table > tbody > tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		qty := cellText(cells, 5)
		if !leadingDigitsRe.MatchString(qty) {
			return
		}
		list.Add(cellText(cells, 2), qty)
	})
	return list, nil
}

func isActive(s *goquery.Selection) bool {
	return s.AttrOr(ActiveAttr, "") == "1"
}

// stripAlnum lowercases, drops everything but letters, digits and whitespace,
// and collapses whitespace. Unlike NormalizeAlnum it removes punctuation
// instead of turning it into a space, so "a/c" becomes "ac".
func stripAlnum(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(b.String(), " "))
}
