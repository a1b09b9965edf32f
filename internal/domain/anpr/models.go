package anpr

import (
	"time"

	"github.com/corona10/goimagehash"
	"github.com/google/uuid"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BBox is a detection box in pixel coordinates, (X1,Y1) top-left.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b BBox) Width() float64  { return b.X2 - b.X1 }
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Area returns width x height; inverted boxes yield zero.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b BBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// EventPayload is the JSON body posted by the detector/OCR collaborator.
type EventPayload struct {
	CameraID  string    `json:"camera_id"`
	TrackID   string    `json:"track_id,omitempty"`
	Plate     string    `json:"plate"`
	BBox      BBox      `json:"bbox"`
	ROIHash   string    `json:"roi_hash,omitempty"`
	Snapshot  []byte    `json:"snapshot,omitempty"`
	EventTime time.Time `json:"event_time"`
}

// DetectionEvent is one tracked detection from one processed frame.
type DetectionEvent struct {
	CameraID  string
	TrackID   string
	Timestamp time.Time
	BBox      BBox
	PlateText string
	ROIHash   *goimagehash.ExtImageHash
	Snapshot  []byte
}

func (e DetectionEvent) Center() Point {
	return e.BBox.Center()
}

type Action string

const (
	ActionOpenGate     Action = "open_gate"
	ActionTriggerAlarm Action = "trigger_alarm"
	ActionNotifyOnly   Action = "notify_only"
	ActionNone         Action = "no_action"
)

type Category string

const (
	CategoryIgnored    Category = "ignored"
	CategoryAllowed    Category = "allowed"
	CategoryDenied     Category = "denied"
	CategoryWatchlist  Category = "watchlist"
	CategoryUnknown    Category = "unknown"
	CategoryUnreadable Category = "unreadable"
)

type Direction string

const (
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
	DirectionUnknown Direction = "unknown"
)

// Route selects which Telegram audience receives a notification.
type Route string

const (
	RouteMain  Route = "main"
	RouteDebug Route = "debug"
)

// Decision is the outcome of running one DetectionEvent through the pipeline.
type Decision struct {
	ID         uuid.UUID `json:"id"`
	CameraID   string    `json:"camera_id,omitempty"`
	TrackID    string    `json:"track_id,omitempty"`
	Plate      string    `json:"plate,omitempty"`
	Action     Action    `json:"action"`
	Category   Category  `json:"category,omitempty"`
	Direction  Direction `json:"direction"`
	Crossed    bool      `json:"crossed"`
	Caption    string    `json:"caption,omitempty"`
	Notify     bool      `json:"notify"`
	SendPhoto  bool      `json:"send_photo"`
	Suppressed string    `json:"suppressed,omitempty"`
	Dropped    string    `json:"dropped,omitempty"`
	Group      string    `json:"group,omitempty"`
	Route      Route     `json:"route,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Actuates reports whether the decision drives a physical actuator.
func (d Decision) Actuates() bool {
	return d.Action == ActionOpenGate || d.Action == ActionTriggerAlarm
}
