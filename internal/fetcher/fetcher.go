package fetcher

import (
	"context"
	"net/http"
	"time"

	"github.com/IshaanNene/partscout/internal/types"
)

// Fetcher retrieves server-rendered catalog pages without a browser.
type Fetcher interface {
	// Fetch retrieves the content at rawURL.
	Fetch(ctx context.Context, rawURL string) (*Response, error)

	// Close releases any resources held by the fetcher.
	Close() error
}

// Response is a fetched page.
type Response struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Snapshot exposes the body to the parsers.
func (r *Response) Snapshot() *types.Snapshot {
	return types.NewSnapshot(r.FinalURL, string(r.Body))
}
