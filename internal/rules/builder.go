package rules

import (
	"strings"

	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/utils"
)

// Entry is a single dataset row, as stored in CSV files or list tables.
type Entry struct {
	Plate    string
	Category anpr.Category
	Group    string
}

// Conflict reports a plate present in more than one dataset. Classification
// still follows lookup order; the conflict is a configuration warning.
type Conflict struct {
	Plate      string
	Categories []anpr.Category
}

// Builder normalizes entries into RuleSets and tracks ambiguous membership.
type Builder struct {
	sets       *RuleSets
	membership map[string][]anpr.Category
}

func NewBuilder() *Builder {
	return &Builder{
		sets:       Empty(),
		membership: make(map[string][]anpr.Category),
	}
}

// Add inserts an entry and reports whether it was usable. Plates that
// normalize to nothing and non-dataset categories are skipped.
func (b *Builder) Add(e Entry) bool {
	plate := utils.NormalizePlate(e.Plate)
	if plate == "" {
		return false
	}

	switch e.Category {
	case anpr.CategoryIgnored:
		b.sets.Ignored[plate] = struct{}{}
	case anpr.CategoryAllowed:
		b.sets.Allowed[plate] = struct{}{}
	case anpr.CategoryDenied:
		b.sets.Denied[plate] = struct{}{}
	case anpr.CategoryWatchlist:
		b.sets.Watchlist[plate] = strings.TrimSpace(e.Group)
	default:
		return false
	}

	for _, c := range b.membership[plate] {
		if c == e.Category {
			return true
		}
	}
	b.membership[plate] = append(b.membership[plate], e.Category)
	return true
}

// Build returns the rule sets and every plate listed in more than one dataset.
func (b *Builder) Build() (*RuleSets, []Conflict) {
	var conflicts []Conflict
	for plate, cats := range b.membership {
		if len(cats) > 1 {
			conflicts = append(conflicts, Conflict{Plate: plate, Categories: cats})
		}
	}
	return b.sets, conflicts
}

// FromEntries builds rule sets from a flat entry list.
func FromEntries(entries []Entry) (*RuleSets, []Conflict) {
	b := NewBuilder()
	for _, e := range entries {
		b.Add(e)
	}
	return b.Build()
}

// ParseCategory maps a list type name to a dataset category. Legacy
// WHITELIST/BLACKLIST names are accepted as allowed/denied.
func ParseCategory(listType string) (anpr.Category, bool) {
	switch strings.ToLower(strings.TrimSpace(listType)) {
	case "ignored", "ignore":
		return anpr.CategoryIgnored, true
	case "allowed", "allow", "whitelist":
		return anpr.CategoryAllowed, true
	case "denied", "deny", "blacklist":
		return anpr.CategoryDenied, true
	case "watchlist", "watch":
		return anpr.CategoryWatchlist, true
	}
	return "", false
}
