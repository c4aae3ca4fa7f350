// Package search provides full-text search over trips and checklist items,
// served by Meilisearch when available and PostgreSQL FTS otherwise.
package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTrip ResultType = "trip"
	ResultItem ResultType = "item"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	TripID      string     `json:"tripId"`
	ChecklistID string     `json:"checklistId,omitempty"`
}

// Query describes a search request. UserID and TripIDs carry the caller's
// identity and the trips they may see; both backends use them to keep other
// users' personal checklist items out of the results.
type Query struct {
	Text         string
	UserID       string
	TripIDs      []string
	FilterType   ResultType // empty = all types
	FilterTripID string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexTrip(t TripRecord) error
	IndexItem(i ItemRecord) error
	DeleteTrip(id string) error
	DeleteItem(id string) error
}

// TripRecord is the data we index for a trip.
type TripRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Destination string `json:"destination"`
}

// ItemRecord is the data we index for a checklist item. ChecklistType and
// OwnerID drive the visibility filter at query time.
type ItemRecord struct {
	ID            string `json:"id"`
	Content       string `json:"content"`
	ChecklistID   string `json:"checklistId"`
	TripID        string `json:"tripId"`
	ChecklistType string `json:"checklistType"`
	OwnerID       string `json:"ownerId"`
}
