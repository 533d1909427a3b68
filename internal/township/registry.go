/**
 * @description
 * This package provides the in-memory township registry: 873 canonical South
 * African location records embedded in the binary. The registry is built once
 * at startup and is read-only afterwards, so lookups need no locking.
 *
 * Search ranking, in priority order: exact case-insensitive name match, then
 * prefix match, then substring match anywhere in the name. Ties within a rank
 * keep the original load order. A blank query returns the full set in load
 * order; callers rely on that stable, complete listing.
 *
 * @dependencies
 * - embed, encoding/json, strings: Standard Go libraries.
 * - internal/domain: For the TownshipRecord model.
 */

package township

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/myyard/payments-service/internal/domain"
)

//go:embed townships.json
var townshipData []byte

// Registry holds the immutable township dataset.
type Registry struct {
	records []domain.TownshipRecord
	// lowercased name -> indices into records, preserving load order
	byName map[string][]int
}

// NewRegistry decodes the embedded dataset and builds the registry. It is
// intended to be called once at process startup.
func NewRegistry() (*Registry, error) {
	var records []domain.TownshipRecord
	if err := json.Unmarshal(townshipData, &records); err != nil {
		return nil, fmt.Errorf("failed to decode township dataset: %w", err)
	}

	byName := make(map[string][]int, len(records))
	for i, rec := range records {
		key := strings.ToLower(rec.Name)
		byName[key] = append(byName[key], i)
	}

	return &Registry{records: records, byName: byName}, nil
}

// Len returns the number of records in the registry.
func (r *Registry) Len() int {
	return len(r.records)
}

// All returns every record in load order. The returned slice is a copy; the
// registry itself is never mutated.
func (r *Registry) All() []domain.TownshipRecord {
	out := make([]domain.TownshipRecord, len(r.records))
	copy(out, r.records)
	return out
}

// FindExact returns the first record whose name matches exactly
// (case-insensitive), or nil if none does.
func (r *Registry) FindExact(name string) *domain.TownshipRecord {
	indices, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok || len(indices) == 0 {
		return nil
	}
	rec := r.records[indices[0]]
	return &rec
}

// Search returns records matching the query, ranked exact > prefix >
// substring, with load order breaking ties inside each rank. A blank query
// returns the full registry in load order.
func (r *Registry) Search(query string) []domain.TownshipRecord {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return r.All()
	}

	var exact, prefix, substring []domain.TownshipRecord
	for _, rec := range r.records {
		name := strings.ToLower(rec.Name)
		switch {
		case name == q:
			exact = append(exact, rec)
		case strings.HasPrefix(name, q):
			prefix = append(prefix, rec)
		case strings.Contains(name, q):
			substring = append(substring, rec)
		case matchesAlias(rec.Aliases, q):
			substring = append(substring, rec)
		}
	}

	out := make([]domain.TownshipRecord, 0, len(exact)+len(prefix)+len(substring))
	out = append(out, exact...)
	out = append(out, prefix...)
	out = append(out, substring...)
	return out
}

func matchesAlias(aliases []string, q string) bool {
	for _, alias := range aliases {
		if strings.Contains(strings.ToLower(alias), q) {
			return true
		}
	}
	return false
}
