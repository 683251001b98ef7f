package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

// Middleware processes a part row and returns the (possibly modified) row.
// Return nil to drop the row from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a row. Return nil to drop the row.
	Process(row *types.PartRow) (*types.PartRow, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// WithMetrics counts parsed and dropped rows.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Use adds middlewares to the pipeline chain.
func (p *Pipeline) Use(mws ...Middleware) *Pipeline {
	for _, mw := range mws {
		p.middlewares = append(p.middlewares, mw)
		p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
	}
	return p
}

// Process runs the row through all middleware in order. The input row is
// never modified.
func (p *Pipeline) Process(row *types.PartRow) (*types.PartRow, error) {
	current := row.Clone()

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				Row:   current,
				Err:   err,
			}
		}
		if result == nil {
			p.logger.Debug("row dropped", "stage", mw.Name(), "description", row.Description, "part_number", row.PartNumber)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Run processes every row and returns the survivors in order.
func (p *Pipeline) Run(rows []types.PartRow) ([]types.PartRow, error) {
	out := make([]types.PartRow, 0, len(rows))
	for i := range rows {
		if p.metrics != nil {
			p.metrics.RowsParsed.Add(1)
		}
		result, err := p.Process(&rows[i])
		if err != nil {
			return out, err
		}
		if result == nil {
			if p.metrics != nil {
				p.metrics.RowsDropped.Add(1)
			}
			continue
		}
		out = append(out, *result)
	}
	return out, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// Field names accepted by the field-based middleware.
const (
	FieldItemNo      = "item_no"
	FieldDescription = "description"
	FieldSupplement  = "supplement"
	FieldQuantity    = "quantity"
	FieldPartNumber  = "part_number"
	FieldPrice       = "price"
	FieldNotes       = "notes"
)

// fieldValue reads a row field by its JSON name. Notes are joined with spaces.
func fieldValue(row *types.PartRow, field string) string {
	switch field {
	case FieldItemNo:
		return row.ItemNo
	case FieldDescription:
		return row.Description
	case FieldSupplement:
		return row.Supplement
	case FieldQuantity:
		return row.Quantity
	case FieldPartNumber:
		return row.PartNumber
	case FieldPrice:
		return row.Price
	case FieldNotes:
		return strings.Join(row.Notes, " ")
	default:
		return ""
	}
}

// --- Built-in Middleware ---

// TrimMiddleware trims whitespace from every field and drops blank notes.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(row *types.PartRow) (*types.PartRow, error) {
	for _, f := range []*string{&row.ItemNo, &row.Description, &row.Supplement, &row.Quantity,
		&row.FromDate, &row.ToDate, &row.PartNumber, &row.Price} {
		*f = strings.TrimSpace(*f)
	}
	notes := row.Notes[:0]
	for _, n := range row.Notes {
		if n = strings.TrimSpace(n); n != "" {
			notes = append(notes, n)
		}
	}
	row.Notes = notes
	return row, nil
}

// RequiredFieldsMiddleware drops rows with any listed field empty.
type RequiredFieldsMiddleware struct {
	Fields []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(row *types.PartRow) (*types.PartRow, error) {
	for _, field := range m.Fields {
		if strings.TrimSpace(fieldValue(row, field)) == "" {
			return nil, nil
		}
	}
	return row, nil
}

// DedupMiddleware drops rows whose key field was already seen. The first
// occurrence wins. Rows with an empty key always pass.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
	key  string
}

func NewDedupMiddleware(key string) *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
		key:  key,
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(row *types.PartRow) (*types.PartRow, error) {
	val := fieldValue(row, m.key)
	if val == "" {
		return row, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[val]; exists {
		return nil, nil
	}
	m.seen[val] = struct{}{}
	return row, nil
}
