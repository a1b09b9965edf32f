// Package rules classifies normalized plates against the ignored, allowed,
// denied and watchlist datasets.
package rules

import (
	"sync/atomic"

	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/utils"
)

type Set map[string]struct{}

func (s Set) has(plate string) bool {
	_, ok := s[plate]
	return ok
}

// RuleSets holds pre-normalized plates per category. The watchlist maps a
// plate to an optional notification group.
type RuleSets struct {
	Ignored   Set
	Allowed   Set
	Denied    Set
	Watchlist map[string]string
}

// Empty returns rule sets that classify every plate as unknown.
func Empty() *RuleSets {
	return &RuleSets{
		Ignored:   Set{},
		Allowed:   Set{},
		Denied:    Set{},
		Watchlist: map[string]string{},
	}
}

// Size returns the number of plates per category.
func (r *RuleSets) Size() map[anpr.Category]int {
	return map[anpr.Category]int{
		anpr.CategoryIgnored:   len(r.Ignored),
		anpr.CategoryAllowed:   len(r.Allowed),
		anpr.CategoryDenied:    len(r.Denied),
		anpr.CategoryWatchlist: len(r.Watchlist),
	}
}

// Classify normalizes plate and looks it up in fixed order: ignored,
// allowed, denied, watchlist. Unreadable plates are classified upstream and
// must not reach this function; an empty plate here is unknown.
func Classify(plate string, sets *RuleSets) anpr.Category {
	if sets == nil {
		return anpr.CategoryUnknown
	}
	p := utils.NormalizePlate(plate)
	switch {
	case p == "":
		return anpr.CategoryUnknown
	case sets.Ignored.has(p):
		return anpr.CategoryIgnored
	case sets.Allowed.has(p):
		return anpr.CategoryAllowed
	case sets.Denied.has(p):
		return anpr.CategoryDenied
	}
	if _, ok := sets.Watchlist[p]; ok {
		return anpr.CategoryWatchlist
	}
	return anpr.CategoryUnknown
}

// Group returns the watchlist group for plate, if any.
func (r *RuleSets) Group(plate string) string {
	if r == nil {
		return ""
	}
	return r.Watchlist[utils.NormalizePlate(plate)]
}

// Store publishes RuleSets to the pipeline; reloads replace the whole value.
type Store struct {
	current atomic.Pointer[RuleSets]
}

func NewStore(initial *RuleSets) *Store {
	s := &Store{}
	if initial == nil {
		initial = Empty()
	}
	s.current.Store(initial)
	return s
}

func (s *Store) Load() *RuleSets {
	if s == nil {
		return Empty()
	}
	if r := s.current.Load(); r != nil {
		return r
	}
	return Empty()
}

// Swap installs next and returns the previous sets.
func (s *Store) Swap(next *RuleSets) *RuleSets {
	if next == nil {
		next = Empty()
	}
	return s.current.Swap(next)
}
