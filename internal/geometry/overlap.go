// Package geometry computes the spatial-overlap ratio used by the
// position-dedup rules.
package geometry

// Rect is an axis-aligned rectangle given by two corner points. Both the
// 4-number box convention and the two-point corner convention reduce to this.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// RectFromBox builds a Rect from a flat [x1,y1,x2,y2,...] array. Returns
// false when fewer than 4 numbers are present.
func RectFromBox(box []float64) (Rect, bool) {
	if len(box) < 4 {
		return Rect{}, false
	}
	return Rect{X1: box[0], Y1: box[1], X2: box[2], Y2: box[3]}, true
}

// RectFromPts builds a Rect from a corner-point list [[x1,y1],[x2,y2],...].
// Returns false unless at least two points with at least two coordinates each
// are present.
func RectFromPts(pts [][]float64) (Rect, bool) {
	if !ValidPts(pts) {
		return Rect{}, false
	}
	return Rect{X1: pts[0][0], Y1: pts[0][1], X2: pts[1][0], Y2: pts[1][1]}, true
}

// ValidPts reports whether a corner-point list carries the two points of at
// least two coordinates the overlap computation needs.
func ValidPts(pts [][]float64) bool {
	if len(pts) < 2 {
		return false
	}
	return len(pts[0]) >= 2 && len(pts[1]) >= 2
}

// Overlap returns the intersection-over-union ratio of two rectangles.
// Non-overlapping rectangles contribute zero intersection, never negative.
// A zero denominator (both rectangles degenerate) yields 0.
func Overlap(a, b Rect) float64 {
	innerX1 := max(a.X1, b.X1)
	innerY1 := max(a.Y1, b.Y1)
	innerX2 := min(a.X2, b.X2)
	innerY2 := min(a.Y2, b.Y2)

	innerArea := max(0, innerX2-innerX1) * max(0, innerY2-innerY1)
	areaA := (a.X2 - a.X1) * (a.Y2 - a.Y1)
	areaB := (b.X2 - b.X1) * (b.Y2 - b.Y1)

	denom := areaA + areaB - innerArea
	if denom == 0 {
		return 0
	}
	return innerArea / denom
}
