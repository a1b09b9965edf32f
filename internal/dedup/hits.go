package dedup

import (
	"math"
	"time"

	"plate-gate/internal/domain/anpr"
)

type HitConfig struct {
	// MinHits is the number of sightings required; 1 or less confirms
	// immediately.
	MinHits int
	TTL     time.Duration
	// Tolerance is the max center distance in pixels for two sightings to
	// count as the same vehicle.
	Tolerance float64
}

type pendingHit struct {
	center   anpr.Point
	lastSeen time.Time
	hits     int
}

// HitConfirmer requires an unreadable vehicle to be seen several times near
// the same spot before it is reported. Single-frame OCR misses on passing
// traffic never reach the notifier.
type HitConfirmer struct {
	cfg     HitConfig
	pending []*pendingHit
}

func NewHitConfirmer(cfg HitConfig) *HitConfirmer {
	return &HitConfirmer{cfg: cfg}
}

// Observe records a sighting at center and reports whether the vehicle has
// now been seen MinHits times within TTL of each other.
func (h *HitConfirmer) Observe(center anpr.Point, now time.Time) bool {
	if h.cfg.MinHits <= 1 {
		return true
	}
	h.expire(now)

	var match *pendingHit
	bestDist := math.MaxFloat64
	for _, p := range h.pending {
		d := math.Hypot(p.center.X-center.X, p.center.Y-center.Y)
		if d <= h.cfg.Tolerance && d < bestDist {
			match, bestDist = p, d
		}
	}
	if match == nil {
		match = &pendingHit{}
		h.pending = append(h.pending, match)
	}
	match.center = center
	match.lastSeen = now
	match.hits++

	return match.hits >= h.cfg.MinHits
}

// Len returns the number of pending sightings.
func (h *HitConfirmer) Len() int {
	return len(h.pending)
}

func (h *HitConfirmer) expire(now time.Time) {
	kept := h.pending[:0]
	for _, p := range h.pending {
		if now.Sub(p.lastSeen) <= h.cfg.TTL {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(h.pending); i++ {
		h.pending[i] = nil
	}
	h.pending = kept
}
