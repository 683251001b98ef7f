package types

import (
	"encoding/json"
	"strings"
)

// PartRow is one line of a catalog parts table.
type PartRow struct {
	ItemNo      string
	Description string
	Supplement  string
	Quantity    string
	FromDate    string
	ToDate      string
	PartNumber  string
	Price       string
	Notes       []string
}

// NotesText joins the notes into a single lowercase string for keyword checks.
func (r *PartRow) NotesText() string {
	return strings.ToLower(strings.Join(r.Notes, " "))
}

// Clone returns a deep copy of the row.
func (r *PartRow) Clone() *PartRow {
	c := *r
	c.Notes = append([]string(nil), r.Notes...)
	return &c
}

// MarshalJSON renders empty fields as null and notes as an array, never null.
func (r PartRow) MarshalJSON() ([]byte, error) {
	notes := r.Notes
	if notes == nil {
		notes = []string{}
	}
	return json.Marshal(struct {
		ItemNo      *string  `json:"item_no"`
		Description *string  `json:"description"`
		Supplement  *string  `json:"supplement"`
		Quantity    *string  `json:"quantity"`
		FromDate    *string  `json:"from_date"`
		ToDate      *string  `json:"to_date"`
		PartNumber  *string  `json:"part_number"`
		Price       *string  `json:"price"`
		Notes       []string `json:"notes"`
	}{
		ItemNo:      nullable(r.ItemNo),
		Description: nullable(r.Description),
		Supplement:  nullable(r.Supplement),
		Quantity:    nullable(r.Quantity),
		FromDate:    nullable(r.FromDate),
		ToDate:      nullable(r.ToDate),
		PartNumber:  nullable(r.PartNumber),
		Price:       nullable(r.Price),
		Notes:       notes,
	})
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// PartRef is a part number with an optional quantity.
type PartRef struct {
	Number string `json:"part"`
	Qty    string `json:"qty"`
}

// PartList is the result of a part lookup. It renders as an array of numbers,
// or as an array of {part, qty} objects when WithQty is set.
type PartList struct {
	Items   []PartRef
	WithQty bool
}

// Add appends a part reference.
func (l *PartList) Add(number, qty string) {
	l.Items = append(l.Items, PartRef{Number: number, Qty: qty})
}

// Numbers returns just the part numbers.
func (l *PartList) Numbers() []string {
	out := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		out = append(out, it.Number)
	}
	return out
}

// Len returns the number of entries.
func (l *PartList) Len() int { return len(l.Items) }

func (l PartList) MarshalJSON() ([]byte, error) {
	if l.WithQty {
		items := l.Items
		if items == nil {
			items = []PartRef{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(l.Numbers())
}
