// Package geom holds the plane geometry used by perception and movement.
// Angles are in degrees; 0° points along +X and angles grow toward +Y
// (screen coordinates, so clockwise on a display).
package geom

import "math"

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

func (v Vec2) Add(o Vec2) Vec2        { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2        { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec2) Scale(f float64) Vec2   { return Vec2{X: v.X * f, Y: v.Y * f} }
func (v Vec2) Len() float64           { return math.Hypot(v.X, v.Y) }
func (v Vec2) Round() Vec2            { return Vec2{X: math.Round(v.X), Y: math.Round(v.Y)} }
func (v Vec2) IsFinite() bool         { return isFinite(v.X) && isFinite(v.Y) }
func (s Size) Center(pos Vec2) Vec2   { return Vec2{X: pos.X + s.Width/2, Y: pos.Y + s.Height/2} }
func (s Size) Contains(p Vec2) bool   { return PointInBounds(p, s) }
func (s Size) Equal(o Size) bool      { return s.Width == o.Width && s.Height == o.Height }
func isFinite(f float64) bool         { return !math.IsNaN(f) && !math.IsInf(f, 0) }
func Distance(a, b Vec2) float64      { return math.Hypot(b.X-a.X, b.Y-a.Y) }
func DegToRad(deg float64) float64    { return deg * math.Pi / 180 }
func RadToDeg(rad float64) float64    { return rad * 180 / math.Pi }

// PointInRect reports whether p lies inside the axis-aligned rectangle with
// top-left corner pos. Edges are inclusive.
func PointInRect(p, pos Vec2, size Size) bool {
	return p.X >= pos.X && p.X <= pos.X+size.Width &&
		p.Y >= pos.Y && p.Y <= pos.Y+size.Height
}

// PointInBounds reports whether p lies on the board [0,width]×[0,height].
func PointInBounds(p Vec2, board Size) bool {
	return p.X >= 0 && p.X <= board.Width && p.Y >= 0 && p.Y <= board.Height
}

// NormalizeDegrees maps an angle into [0,360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// SignedDelta returns the minimal signed difference to-from in (-180,180].
func SignedDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// Bearing returns the heading from a to b in [0,360). Coincident points
// have bearing 0.
func Bearing(a, b Vec2) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	return NormalizeDegrees(RadToDeg(math.Atan2(dy, dx)))
}

// Heading returns the unit vector for an orientation in degrees.
func Heading(deg float64) Vec2 {
	r := DegToRad(deg)
	return Vec2{X: math.Cos(r), Y: math.Sin(r)}
}

// Clamp limits v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampToBounds moves p onto the board.
func ClampToBounds(p Vec2, board Size) Vec2 {
	return Vec2{X: Clamp(p.X, 0, board.Width), Y: Clamp(p.Y, 0, board.Height)}
}

// Inflate grows a rectangle by r on every side.
func Inflate(pos Vec2, size Size, r float64) (Vec2, Size) {
	return Vec2{X: pos.X - r, Y: pos.Y - r}, Size{Width: size.Width + 2*r, Height: size.Height + 2*r}
}

// Corners returns the four corners of a rectangle, clockwise from top-left.
func Corners(pos Vec2, size Size) [4]Vec2 {
	return [4]Vec2{
		pos,
		{X: pos.X + size.Width, Y: pos.Y},
		{X: pos.X + size.Width, Y: pos.Y + size.Height},
		{X: pos.X, Y: pos.Y + size.Height},
	}
}

// SegmentIntersectsRect reports whether the closed segment a→b touches the
// rectangle. Liang–Barsky clipping against the four slabs.
func SegmentIntersectsRect(a, b, pos Vec2, size Size) bool {
	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return false
			}
			if t < t1 {
				t1 = t
			}
		}
		return true
	}
	return clip(-dx, a.X-pos.X) &&
		clip(dx, pos.X+size.Width-a.X) &&
		clip(-dy, a.Y-pos.Y) &&
		clip(dy, pos.Y+size.Height-a.Y) &&
		t0 <= t1
}
