package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point is a page-space coordinate. Page space has its origin at the
// bottom-left corner with y growing upward.
type Point struct {
	X float64
	Y float64
}

// BoundingBox is an axis-aligned rectangle in page space.
type BoundingBox struct {
	X0 float64
	Y0 float64
	X1 float64
	Y1 float64
}

// Overlay is a rectangle in rendered-image space.
type Overlay struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoxFromPoints returns the tightest rectangle enclosing the points, or nil
// when there are none.
func BoxFromPoints(points []Point) *BoundingBox {
	if len(points) == 0 {
		return nil
	}
	box := BoundingBox{X0: points[0].X, Y0: points[0].Y, X1: points[0].X, Y1: points[0].Y}
	for _, p := range points[1:] {
		box.X0 = math.Min(box.X0, p.X)
		box.Y0 = math.Min(box.Y0, p.Y)
		box.X1 = math.Max(box.X1, p.X)
		box.Y1 = math.Max(box.Y1, p.Y)
	}
	return &box
}

// MergeBoxes unions the non-nil boxes. It returns nil when none are present.
func MergeBoxes(boxes ...*BoundingBox) *BoundingBox {
	var merged *BoundingBox
	for _, b := range boxes {
		if b == nil {
			continue
		}
		if merged == nil {
			cp := *b
			merged = &cp
			continue
		}
		u := merged.Union(*b)
		merged = &u
	}
	return merged
}

func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		X0: math.Min(b.X0, o.X0),
		Y0: math.Min(b.Y0, o.Y0),
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
	}
}

// Contains reports whether o lies entirely within b.
func (b BoundingBox) Contains(o BoundingBox) bool {
	return b.X0 <= o.X0 && b.Y0 <= o.Y0 && b.X1 >= o.X1 && b.Y1 >= o.Y1
}

func (b BoundingBox) Width() float64  { return b.X1 - b.X0 }
func (b BoundingBox) Height() float64 { return b.Y1 - b.Y0 }

// ToOverlay maps the box into the coordinate space of a page rendered at the
// given scale, flipping the vertical axis against pageHeight.
func (b BoundingBox) ToOverlay(pageHeight, scale float64) (Overlay, error) {
	if pageHeight <= 0 || math.IsNaN(pageHeight) {
		return Overlay{}, fmt.Errorf("%w: page height must be positive, got %v", ErrInvalidInput, pageHeight)
	}
	if scale <= 0 || math.IsNaN(scale) {
		return Overlay{}, fmt.Errorf("%w: scale must be positive, got %v", ErrInvalidInput, scale)
	}
	return Overlay{
		X:      b.X0 * scale,
		Y:      (pageHeight - b.Y1) * scale,
		Width:  b.Width() * scale,
		Height: b.Height() * scale,
	}, nil
}

// MarshalJSON writes the flattened [x0,y0,x1,y1] form.
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X0, b.Y0, b.X1, b.Y1})
}

// UnmarshalJSON accepts the flattened form as well as a quadrilateral of
// [x,y] pairs written by older ingesters.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	parsed, err := ParseBoundingBox(data)
	if err != nil {
		return err
	}
	if parsed == nil {
		return fmt.Errorf("%w: empty bounding box", ErrInvalidInput)
	}
	*b = *parsed
	return nil
}

// ParseBoundingBox decodes a stored bbox value. Null, empty input and empty
// arrays yield nil without error.
func ParseBoundingBox(data []byte) (*BoundingBox, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var flat []float64
	if err := json.Unmarshal(data, &flat); err == nil {
		switch len(flat) {
		case 0:
			return nil, nil
		case 4:
			return BoxFromPoints([]Point{{flat[0], flat[1]}, {flat[2], flat[3]}}), nil
		default:
			return nil, fmt.Errorf("%w: bbox must have 4 values, got %d", ErrInvalidInput, len(flat))
		}
	}

	var pairs [][]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("%w: decode bbox: %v", ErrInvalidInput, err)
	}
	points := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: bbox point must have 2 values, got %d", ErrInvalidInput, len(pair))
		}
		points = append(points, Point{X: pair[0], Y: pair[1]})
	}
	return BoxFromPoints(points), nil
}
