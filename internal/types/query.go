package types

import (
	"fmt"
	"strings"
	"unicode"
)

// Query describes one catalog lookup.
type Query struct {
	Site      string   `json:"site"`
	Operation string   `json:"operation"`
	VIN       string   `json:"vin,omitempty"`
	Args      []string `json:"args,omitempty"`
}

// NewQuery normalizes the VIN and trims the arguments.
func NewQuery(site, operation, vin string, args ...string) (*Query, error) {
	q := &Query{
		Site:      strings.ToLower(strings.TrimSpace(site)),
		Operation: strings.ToLower(strings.TrimSpace(operation)),
		VIN:       strings.ToUpper(strings.TrimSpace(vin)),
	}
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			q.Args = append(q.Args, a)
		}
	}
	if q.VIN != "" {
		if err := ValidateVIN(q.VIN); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Term returns the arguments joined by spaces, lowercased.
func (q *Query) Term() string {
	return strings.ToLower(strings.Join(q.Args, " "))
}

// Key identifies the query in the result cache.
func (q *Query) Key() string {
	return strings.Join([]string{q.Site, q.Operation, q.VIN, q.Term()}, "|")
}

func (q *Query) String() string {
	if len(q.Args) == 0 {
		return fmt.Sprintf("%s %s %s", q.Site, q.Operation, q.VIN)
	}
	return fmt.Sprintf("%s %s %s %q", q.Site, q.Operation, q.VIN, q.Term())
}

// ValidateVIN accepts full 17-character VINs and the 7-character short form
// some catalogs search by.
func ValidateVIN(vin string) error {
	if len(vin) < 7 || len(vin) > 17 {
		return fmt.Errorf("%w: VIN %q must be 7 to 17 characters", ErrInvalidInput, vin)
	}
	for _, r := range vin {
		if r > unicode.MaxASCII || !(unicode.IsDigit(r) || unicode.IsLetter(r)) {
			return fmt.Errorf("%w: VIN %q contains %q", ErrInvalidInput, vin, r)
		}
	}
	return nil
}
