// Package geometry decides whether a detection is close enough and inside
// the watched region to be considered at all.
package geometry

import (
	"math"

	"plate-gate/internal/domain/anpr"
)

const (
	ModeRectangle = "rectangle"
	ModePolygon   = "polygon"
)

// Reason names the filter that dropped a detection.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonOutsideROI Reason = "outside_roi"
	ReasonTooSmall   Reason = "box_too_small"
	ReasonTooLarge   Reason = "box_too_large"
)

// RegionOfInterest restricts detections to a rectangle or polygon.
type RegionOfInterest struct {
	Enabled bool
	Mode    string
	// Rect is x1, y1, x2, y2.
	Rect    [4]float64
	Polygon []anpr.Point
}

// Filters bounds the detection box area. Zero disables a bound.
type Filters struct {
	MinBoxArea float64
	MaxBoxArea float64
}

// Passes evaluates ROI, then minimum area, then maximum area, stopping at the
// first failure.
func Passes(event anpr.DetectionEvent, roi RegionOfInterest, filters Filters) (bool, Reason) {
	if roi.Enabled && !roi.Contains(event.Center()) {
		return false, ReasonOutsideROI
	}
	area := event.BBox.Area()
	if filters.MinBoxArea > 0 && area < filters.MinBoxArea {
		return false, ReasonTooSmall
	}
	if filters.MaxBoxArea > 0 && area > filters.MaxBoxArea {
		return false, ReasonTooLarge
	}
	return true, ReasonNone
}

// Contains reports whether p lies in the region. Boundaries count as inside.
func (r RegionOfInterest) Contains(p anpr.Point) bool {
	if r.Mode == ModePolygon {
		return InPolygon(p, r.Polygon)
	}
	return InRect(p, r.Rect)
}

func InRect(p anpr.Point, rect [4]float64) bool {
	minX, maxX := math.Min(rect[0], rect[2]), math.Max(rect[0], rect[2])
	minY, maxY := math.Min(rect[1], rect[3]), math.Max(rect[1], rect[3])
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

// InPolygon uses ray casting; points on an edge or vertex are inside.
// Polygons with fewer than three vertices contain nothing.
func InPolygon(p anpr.Point, poly []anpr.Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		a, b := poly[i], poly[j]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

const epsilon = 1e-9

func onSegment(p, a, b anpr.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > epsilon {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-epsilon && p.X <= math.Max(a.X, b.X)+epsilon &&
		p.Y >= math.Min(a.Y, b.Y)-epsilon && p.Y <= math.Max(a.Y, b.Y)+epsilon
}
