// Package dedup suppresses repeated notifications: per-plate debounce for
// readable plates and perceptual-hash dedup plus a global cooldown for
// unreadable ones.
package dedup

import "time"

// PlateDebouncer remembers when each plate was last notified.
type PlateDebouncer struct {
	window    time.Duration
	last      map[string]time.Time
	lastPurge time.Time
}

func NewPlateDebouncer(window time.Duration) *PlateDebouncer {
	return &PlateDebouncer{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Allow reports whether a notification for plate may be sent at now and, if
// so, records it.
func (d *PlateDebouncer) Allow(plate string, now time.Time) bool {
	d.purge(now)
	if last, ok := d.last[plate]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[plate] = now
	return true
}

// Len returns the number of remembered plates.
func (d *PlateDebouncer) Len() int {
	return len(d.last)
}

func (d *PlateDebouncer) purge(now time.Time) {
	if d.window <= 0 || now.Sub(d.lastPurge) < d.window {
		return
	}
	d.lastPurge = now
	for plate, last := range d.last {
		if now.Sub(last) >= d.window {
			delete(d.last, plate)
		}
	}
}
