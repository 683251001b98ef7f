package parser

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/partscout/internal/types"
)

// mercedesRowsSel selects the rows of a Mercedes parts table.
const mercedesRowsSel = "table.table-striped.table-condensed.table-hover > tbody > tr"

// MercedesPart describes how one AC part is reached and recognised.
type MercedesPart struct {
	// Section is the link text under HEATING AND VENTILATION.
	Section string
	// Patterns match the bold type label of a row, anchored at its start.
	Patterns []*regexp.Regexp
}

func anchored(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`^(?:`+p+`)`))
	}
	return out
}

var (
	compressorPatterns = anchored(`COMPRESSOR$`, `REFRIGERANT COMPRESSOR$`)
	valvePatterns      = anchored(`VALVE$`, `EXPANSION VALVE`)
)

// mercedesParts maps the accepted part names to their catalog section.
// "REFRIGERANT LINE ARRANGEMEN" is a prefix of the section title, which the
// text match accepts.
var mercedesParts = map[string]MercedesPart{
	"compressor":      {Section: "A/C COMPRESSOR", Patterns: compressorPatterns},
	"a/c compressor":  {Section: "A/C COMPRESSOR", Patterns: compressorPatterns},
	"expansion valve": {Section: "REFRIGERANT LINE ARRANGEMENT", Patterns: valvePatterns},
	"valve":           {Section: "REFRIGERANT LINE ARRANGEMENT", Patterns: valvePatterns},
	"condenser":       {Section: "REFRIGERANT LINE ARRANGEMEN", Patterns: anchored(`CONDENSER$`)},
	"evaporator":      {Section: "HEATER AND EVAPORATOR HOUSING WITH BLOWER AND WIRING HARNESS", Patterns: anchored(`EVAPORATOR`)},
}

// LookupMercedesPart resolves a part name.
func LookupMercedesPart(part string) (MercedesPart, bool) {
	p, ok := mercedesParts[NormalizeText(part)]
	return p, ok
}

// MercedesPartNames lists the accepted part names.
func MercedesPartNames() []string {
	return []string{"compressor", "a/c compressor", "expansion valve", "valve", "condenser", "evaporator"}
}

// ParseMercedesParts maps part number to quantity for every row after the
// header whose bold type label matches one of patterns. Order follows the
// table; a repeated part number keeps its first position.
func ParseMercedesParts(html string, patterns []*regexp.Regexp) (*types.Attributes, error) {
	doc, err := document("mercedes parts", html)
	if err != nil {
		return nil, err
	}

	attrs := types.NewAttributes()
	doc.Find(mercedesRowsSel).Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}
		label := collapse(tr.Find("td b").First().Text())
		if label == "" || !matchesAny(patterns, label) {
			return
		}
		cells := tr.ChildrenFiltered("td")
		num := cellText(cells, 1)
		if num == "" {
			return
		}
		attrs.Set(num, cellText(cells, 3))
	})
	return attrs, nil
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
