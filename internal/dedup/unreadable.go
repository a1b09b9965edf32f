package dedup

import (
	"time"

	"github.com/corona10/goimagehash"
)

// RetentionFactor bounds how long unreadable hashes are kept, as a multiple
// of the debounce window.
const RetentionFactor = 3

// Verdict explains why an unreadable sighting was or was not suppressed.
type Verdict string

const (
	VerdictNotify    Verdict = ""
	VerdictDuplicate Verdict = "duplicate"
	VerdictCooldown  Verdict = "cooldown"
)

type UnreadableConfig struct {
	Threshold int
	Debounce  time.Duration
	Cooldown  time.Duration
}

type hashEntry struct {
	hash     *goimagehash.ExtImageHash
	lastSeen time.Time
}

// UnreadableDeduper decides whether an unreadable vehicle is new enough to
// notify about. It is not safe for concurrent use.
type UnreadableDeduper struct {
	cfg        UnreadableConfig
	entries    []*hashEntry
	lastGlobal time.Time
	notified   bool
}

func NewUnreadableDeduper(cfg UnreadableConfig) *UnreadableDeduper {
	return &UnreadableDeduper{cfg: cfg}
}

// Check looks up hash among recent sightings and applies the global cooldown.
// A nil hash skips the per-hash lookup.
func (d *UnreadableDeduper) Check(hash *goimagehash.ExtImageHash, now time.Time) Verdict {
	var entry *hashEntry
	if hash != nil {
		if match := d.closest(hash); match != nil {
			if now.Sub(match.lastSeen) < d.cfg.Debounce {
				match.lastSeen = now
				return VerdictDuplicate
			}
			entry = match
		} else {
			d.purge(now)
			entry = &hashEntry{hash: hash}
			d.entries = append(d.entries, entry)
		}
		entry.lastSeen = now
	}

	if d.notified && now.Sub(d.lastGlobal) < d.cfg.Cooldown {
		return VerdictCooldown
	}
	d.lastGlobal = now
	d.notified = true
	return VerdictNotify
}

// Len returns the number of retained hashes.
func (d *UnreadableDeduper) Len() int {
	return len(d.entries)
}

func (d *UnreadableDeduper) closest(hash *goimagehash.ExtImageHash) *hashEntry {
	var (
		best     *hashEntry
		bestDist = d.cfg.Threshold + 1
	)
	for _, e := range d.entries {
		dist, ok := Distance(hash, e.hash)
		if !ok || dist > d.cfg.Threshold {
			continue
		}
		if dist < bestDist {
			best, bestDist = e, dist
		}
	}
	return best
}

func (d *UnreadableDeduper) purge(now time.Time) {
	retention := d.cfg.Debounce * RetentionFactor
	kept := d.entries[:0]
	for _, e := range d.entries {
		if now.Sub(e.lastSeen) <= retention {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(d.entries); i++ {
		d.entries[i] = nil
	}
	d.entries = kept
}

// Distance returns the Hamming distance between two hashes. Hashes of a
// different kind or length never match.
func Distance(a, b *goimagehash.ExtImageHash) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	dist, err := a.Distance(b)
	if err != nil || dist < 0 {
		return 0, false
	}
	return dist, true
}
