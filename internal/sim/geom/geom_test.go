package geom

import (
	"math"
	"testing"
)

func TestPointInRect_InclusiveEdges(t *testing.T) {
	pos := Vec2{X: 10, Y: 10}
	size := Size{Width: 20, Height: 5}
	for _, p := range []Vec2{{10, 10}, {30, 15}, {20, 12}} {
		if !PointInRect(p, pos, size) {
			t.Fatalf("expected %v inside", p)
		}
	}
	for _, p := range []Vec2{{9.99, 10}, {30.01, 12}, {20, 15.5}} {
		if PointInRect(p, pos, size) {
			t.Fatalf("expected %v outside", p)
		}
	}
}

func TestPointInBounds(t *testing.T) {
	board := Size{Width: 500, Height: 400}
	if !PointInBounds(Vec2{0, 0}, board) || !PointInBounds(Vec2{500, 400}, board) {
		t.Fatalf("board corners must be in bounds")
	}
	if PointInBounds(Vec2{-0.1, 5}, board) || PointInBounds(Vec2{5, 400.1}, board) {
		t.Fatalf("points past the edge must be out of bounds")
	}
}

func TestSignedDelta(t *testing.T) {
	cases := []struct{ from, to, want float64 }{
		{0, 90, 90},
		{0, 270, -90},
		{350, 10, 20},
		{10, 350, -20},
		{0, 180, 180},
		{180, 0, 180},
	}
	for _, c := range cases {
		if got := SignedDelta(c.from, c.to); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("SignedDelta(%v,%v)=%v want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestNormalizeDegrees(t *testing.T) {
	if got := NormalizeDegrees(-30); got != 330 {
		t.Fatalf("got %v", got)
	}
	if got := NormalizeDegrees(720); got != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestBearing(t *testing.T) {
	o := Vec2{X: 50, Y: 50}
	if got := Bearing(o, Vec2{X: 60, Y: 50}); got != 0 {
		t.Fatalf("east: %v", got)
	}
	if got := Bearing(o, Vec2{X: 50, Y: 60}); math.Abs(got-90) > 1e-9 {
		t.Fatalf("south (+y): %v", got)
	}
	if got := Bearing(o, Vec2{X: 40, Y: 50}); math.Abs(got-180) > 1e-9 {
		t.Fatalf("west: %v", got)
	}
}

func TestSegmentIntersectsRect(t *testing.T) {
	pos := Vec2{X: 40, Y: 40}
	size := Size{Width: 20, Height: 20}
	if !SegmentIntersectsRect(Vec2{0, 50}, Vec2{100, 50}, pos, size) {
		t.Fatalf("horizontal segment through the middle must intersect")
	}
	if SegmentIntersectsRect(Vec2{0, 0}, Vec2{100, 0}, pos, size) {
		t.Fatalf("segment above the rect must not intersect")
	}
	if SegmentIntersectsRect(Vec2{0, 50}, Vec2{30, 50}, pos, size) {
		t.Fatalf("segment stopping short must not intersect")
	}
	if !SegmentIntersectsRect(Vec2{0, 0}, Vec2{100, 100}, pos, size) {
		t.Fatalf("diagonal must intersect")
	}
	if SegmentIntersectsRect(Vec2{0, 100}, Vec2{30, 70}, pos, size) {
		t.Fatalf("diagonal missing the corner must not intersect")
	}
}
