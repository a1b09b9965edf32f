package pipeline

import (
	"fmt"
	"strings"
	"time"

	"plate-gate/internal/dedup"
	"plate-gate/internal/direction"
	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/geometry"
)

// Suppression reasons recorded on a Decision whose notification was held back.
const (
	SuppressDirection   = "direction"
	SuppressDebounce    = "debounce"
	SuppressUnconfirmed = "unconfirmed"
	SuppressDuplicate   = string(dedup.VerdictDuplicate)
	SuppressCooldown    = string(dedup.VerdictCooldown)
)

// Config is the fully resolved pipeline configuration.
type Config struct {
	ROI             geometry.RegionOfInterest
	Filters         geometry.Filters
	OnlyInDirection bool
	Direction       direction.Config

	// MinPlateLen is the shortest normalized text accepted as a plate;
	// shorter OCR output is unreadable. Zero accepts any non-empty text.
	MinPlateLen int

	NotifyUnknown    bool
	NotifyUnreadable bool
	SendPhotos       bool
	PlateDebounce    time.Duration
	Unreadable       dedup.UnreadableConfig
	Hits             dedup.HitConfig

	RouteReadable   anpr.Route
	RouteUnreadable anpr.Route
}

// Inputs gathers everything the composer needs about one event. All state
// lookups have already happened.
type Inputs struct {
	Event     anpr.DetectionEvent
	Dropped   geometry.Reason
	Direction direction.Result
	Plate     string
	Category  anpr.Category
	Group     string
	// Suppressed is the reason a wanted notification was held back.
	Suppressed string
}

// Compose turns the gathered inputs into a Decision. It has no side effects.
func Compose(cfg Config, in Inputs) anpr.Decision {
	d := anpr.Decision{
		CameraID:  in.Event.CameraID,
		TrackID:   in.Event.TrackID,
		Action:    anpr.ActionNone,
		Direction: anpr.DirectionUnknown,
	}
	if in.Dropped != geometry.ReasonNone {
		d.Dropped = string(in.Dropped)
		return d
	}

	d.Plate = in.Plate
	d.Category = in.Category
	d.Group = in.Group
	d.Direction = in.Direction.Label
	d.Crossed = in.Direction.Crossed
	d.Caption = Caption(cfg, in.Category, in.Plate, in.Direction.Label, in.Group)
	if d.Direction == "" {
		d.Direction = anpr.DirectionUnknown
	}

	wanted := wantsNotification(cfg, in.Category)
	d.Notify = wanted && in.Suppressed == ""
	if wanted {
		d.Suppressed = in.Suppressed
	}
	d.SendPhoto = d.Notify && cfg.SendPhotos

	switch in.Category {
	case anpr.CategoryAllowed:
		d.Action = anpr.ActionOpenGate
	case anpr.CategoryDenied:
		d.Action = anpr.ActionTriggerAlarm
	case anpr.CategoryWatchlist, anpr.CategoryUnknown, anpr.CategoryUnreadable:
		if d.Notify {
			d.Action = anpr.ActionNotifyOnly
		}
	}

	if in.Category == anpr.CategoryUnreadable {
		d.Route = routeOr(cfg.RouteUnreadable, anpr.RouteDebug)
	} else {
		d.Route = routeOr(cfg.RouteReadable, anpr.RouteMain)
	}
	return d
}

func wantsNotification(cfg Config, category anpr.Category) bool {
	switch category {
	case anpr.CategoryAllowed, anpr.CategoryDenied, anpr.CategoryWatchlist:
		return true
	case anpr.CategoryUnknown:
		return cfg.NotifyUnknown
	case anpr.CategoryUnreadable:
		return cfg.NotifyUnreadable
	}
	return false
}

func routeOr(r, fallback anpr.Route) anpr.Route {
	if r == "" {
		return fallback
	}
	return r
}

var verbs = map[anpr.Category]string{
	anpr.CategoryAllowed:   "ALLOW",
	anpr.CategoryDenied:    "DENY",
	anpr.CategoryWatchlist: "WATCH",
	anpr.CategoryUnknown:   "UNKNOWN",
	anpr.CategoryIgnored:   "IGNORE",
}

// Caption formats the notification text for a decision.
func Caption(cfg Config, category anpr.Category, plate string, dir anpr.Direction, group string) string {
	var b strings.Builder
	if category == anpr.CategoryUnreadable || plate == "" {
		b.WriteString("Plate unreadable")
	} else {
		fmt.Fprintf(&b, "Plate %s -> %s", plate, verbs[category])
	}
	if cfg.Direction.Enabled {
		if dir == "" {
			dir = anpr.DirectionUnknown
		}
		fmt.Fprintf(&b, " [%s]", dir)
	}
	if group != "" {
		fmt.Fprintf(&b, " (%s)", group)
	}
	return b.String()
}
