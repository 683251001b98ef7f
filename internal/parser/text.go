package parser

import (
	"regexp"
	"strings"

	"github.com/IshaanNene/partscout/internal/types"
)

// partsRowRe matches one tab-separated row of a RealOEM parts list as copied
// from the rendered table's innerText.
var partsRowRe = regexp.MustCompile(`^(\d{2})\t([^\t]*)\t([^\t]*)\t([^\t]*)\t([^\t]*)\t([^\t]*)\t([A-Z0-9]+)?\t?(\$?[0-9.,]*)\t?(.*)$`)

const partsHeaderPrefix = "No.\tDescription"

// ParsePartsListText parses the innerText of a RealOEM #partsList table.
// Lines that do not start a row are appended to the previous row's notes.
func ParsePartsListText(text string) []types.PartRow {
	var (
		rows    []types.PartRow
		current = -1
	)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r", ""), "\n") {
		if line == "" || strings.HasPrefix(line, partsHeaderPrefix) {
			continue
		}

		if m := partsRowRe.FindStringSubmatch(line); m != nil {
			row := types.PartRow{
				ItemNo:      m[1],
				Description: strings.TrimSpace(m[2]),
				Supplement:  strings.TrimSpace(m[3]),
				Quantity:    strings.TrimSpace(m[4]),
				FromDate:    strings.TrimSpace(m[5]),
				ToDate:      strings.TrimSpace(m[6]),
				PartNumber:  strings.TrimSpace(m[7]),
				Price:       strings.TrimSpace(m[8]),
				Notes:       []string{},
			}
			if tail := strings.TrimSpace(m[9]); tail != "" {
				row.Notes = append(row.Notes, tail)
			}
			rows = append(rows, row)
			current = len(rows) - 1
			continue
		}

		if current >= 0 {
			if cleaned := collapse(line); cleaned != "" {
				rows[current].Notes = append(rows[current].Notes, cleaned)
			}
		}
	}
	return rows
}
