package types

import (
	"encoding/json"
	"time"
)

// Record is an archived scrape result.
type Record struct {
	ID        string          `json:"id"         bson:"_id"`
	Site      string          `json:"site"       bson:"site"`
	Operation string          `json:"operation"  bson:"operation"`
	VIN       string          `json:"vin"        bson:"vin"`
	Query     string          `json:"query"      bson:"query"`
	Result    json.RawMessage `json:"result"     bson:"-"`
	Cached    bool            `json:"cached"     bson:"cached"`
	ScrapedAt time.Time       `json:"scraped_at" bson:"scraped_at"`
	Duration  time.Duration   `json:"duration"   bson:"duration"`
}
