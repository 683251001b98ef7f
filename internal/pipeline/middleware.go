package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/IshaanNene/partscout/internal/types"
)

// --- Keyword Middleware ---

// ContainsMiddleware keeps rows whose field contains the keyword,
// case-insensitively.
type ContainsMiddleware struct {
	field   string
	keyword string
}

func NewContainsMiddleware(field, keyword string) *ContainsMiddleware {
	return &ContainsMiddleware{field: field, keyword: strings.ToLower(strings.TrimSpace(keyword))}
}

func (m *ContainsMiddleware) Name() string { return "contains:" + m.field }

func (m *ContainsMiddleware) Process(row *types.PartRow) (*types.PartRow, error) {
	if !strings.Contains(strings.ToLower(fieldValue(row, m.field)), m.keyword) {
		return nil, nil
	}
	return row, nil
}

// ExcludeMiddleware drops rows whose field contains any of the words,
// case-insensitively.
type ExcludeMiddleware struct {
	field string
	words []string
}

func NewExcludeMiddleware(field string, words ...string) *ExcludeMiddleware {
	lower := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			lower = append(lower, w)
		}
	}
	return &ExcludeMiddleware{field: field, words: lower}
}

func (m *ExcludeMiddleware) Name() string { return "exclude:" + m.field }

func (m *ExcludeMiddleware) Process(row *types.PartRow) (*types.PartRow, error) {
	s := strings.ToLower(fieldValue(row, m.field))
	for _, w := range m.words {
		if strings.Contains(s, w) {
			return nil, nil
		}
	}
	return row, nil
}

// FieldValidateMiddleware validates field values with regex patterns.
// Invalid rows are dropped, or the field is cleared when dropInvalid is false.
type FieldValidateMiddleware struct {
	validations map[string]*regexp.Regexp
	dropInvalid bool
}

func NewFieldValidateMiddleware(patterns map[string]string, dropInvalid bool) (*FieldValidateMiddleware, error) {
	compiled := make(map[string]*regexp.Regexp, len(patterns))
	for field, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid validation regex for %q: %w", field, err)
		}
		compiled[field] = re
	}
	return &FieldValidateMiddleware{
		validations: compiled,
		dropInvalid: dropInvalid,
	}, nil
}

func (m *FieldValidateMiddleware) Name() string { return "field_validate" }

func (m *FieldValidateMiddleware) Process(row *types.PartRow) (*types.PartRow, error) {
	for field, re := range m.validations {
		s := fieldValue(row, field)
		if s == "" || re.MatchString(s) {
			continue
		}
		if m.dropInvalid {
			return nil, nil
		}
		switch field {
		case FieldPartNumber:
			row.PartNumber = ""
		case FieldQuantity:
			row.Quantity = ""
		case FieldPrice:
			row.Price = ""
		}
	}
	return row, nil
}
