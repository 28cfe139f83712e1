package detector

// Point is a 2D pixel coordinate.
type Point struct {
	X, Y float32
}

// BoundingBox is a face bounding box in pixel coordinates.
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width.
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height.
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns the box center point.
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area.
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Landmarks holds the 5 facial landmark points produced by SCRFD.
// The index order is relied on by the crop centering logic:
// 0 left eye, 1 right eye, 2 nose, 3 left mouth, 4 right mouth.
type Landmarks struct {
	LeftEye    Point // index 0
	RightEye   Point // index 1
	Nose       Point // index 2
	LeftMouth  Point // index 3
	RightMouth Point // index 4
}

// Points returns the landmarks as an ordered slice.
func (l Landmarks) Points() []Point {
	return []Point{l.LeftEye, l.RightEye, l.Nose, l.LeftMouth, l.RightMouth}
}

// Face is a single detection result.
type Face struct {
	BoundingBox BoundingBox
	Landmarks   Landmarks
	Score       float32
}

// Best returns the highest-scoring face, or false when the slice is empty.
// Only one face is ever tracked; multi-face handling is out of scope.
func Best(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	return best, true
}
