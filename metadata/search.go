package metadata

// DefaultSearchCount is the page size used when a search doesn't specify one
const DefaultSearchCount = 10

// SearchInput is a search request against the entity index
type SearchInput struct {
	Query       string            `json:"query"`
	EntityTypes []string          `json:"entity_types"`
	Filters     map[string]string `json:"filters"`
	Start       int               `json:"start"`
	Count       int               `json:"count"`
}

// SearchResult is a page of entities matching a search
type SearchResult struct {
	Query    string      `json:"query"`
	Start    int         `json:"start"`
	Count    int         `json:"count"`
	Total    int         `json:"total"`
	Entities []*Metadata `json:"entities"`
}
