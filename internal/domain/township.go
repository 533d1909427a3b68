package domain

// TownshipRecord is a canonical location entry in the township registry.
// Records are immutable once loaded. Names may repeat across cities; a
// name+city pair is unique.
type TownshipRecord struct {
	Name     string   `json:"name"`
	City     string   `json:"city"`
	Province string   `json:"province"`
	Type     string   `json:"type"` // township | suburb | area
	Aliases  []string `json:"aliases,omitempty"`
}

// TownshipProperties is the result of resolving a free-text township name to
// canonical records and the properties listed in them. MatchedTownships is
// inclusive: it lists every record the query resolved to, whether or not any
// property is listed there.
type TownshipProperties struct {
	Properties       []PropertyListing `json:"properties"`
	Total            int               `json:"total"`
	Township         string            `json:"township"`
	MatchedTownships []TownshipRecord  `json:"matched_townships"`
}
