package perception

import (
	"testing"
	"time"

	"avatarsim.ai/internal/sim/geom"
	"avatarsim.ai/internal/sim/world"
)

func observer(x, y, orientation float64) Observer {
	return Observer{
		Position:    geom.Vec2{X: x, Y: y},
		Orientation: orientation,
		Eyesight:    world.Eyesight{Radius: 100, Angle: 180},
	}
}

func TestInCone_RadiusAndAngle(t *testing.T) {
	o := observer(50, 50, 0)
	cases := []struct {
		name   string
		target geom.Vec2
		want   bool
	}{
		{"ahead", geom.Vec2{X: 120, Y: 50}, true},
		{"edge of radius", geom.Vec2{X: 150, Y: 50}, true},
		{"past radius", geom.Vec2{X: 151, Y: 50}, false},
		{"exactly 90 to the side", geom.Vec2{X: 50, Y: 90}, true},
		{"behind", geom.Vec2{X: 10, Y: 50}, false},
		{"behind and slightly off", geom.Vec2{X: 49, Y: 90}, false},
		{"same point", geom.Vec2{X: 50, Y: 50}, true},
	}
	for _, c := range cases {
		if got, _ := o.InCone(c.target); got != c.want {
			t.Fatalf("%s: visible=%v want %v", c.name, got, c.want)
		}
	}
}

func TestInCone_WrapsAroundZero(t *testing.T) {
	o := observer(50, 50, 350)
	o.Eyesight.Angle = 60
	if ok, _ := o.InCone(geom.Vec2{X: 100, Y: 60}); !ok {
		t.Fatalf("target at ~11° should be inside a ±30° cone centred on 350°")
	}
	if ok, _ := o.InCone(geom.Vec2{X: 60, Y: 100}); ok {
		t.Fatalf("target at ~79° should be outside")
	}
}

func TestVisible_ExactOcclusion(t *testing.T) {
	o := observer(0, 50, 0)
	wall := []world.Obstacle{{ID: "w", Position: geom.Vec2{X: 40, Y: 40}, Size: geom.Size{Width: 10, Height: 20}}}
	e := New(OcclusionExact)
	if ok, _ := e.Visible(o, geom.Vec2{X: 90, Y: 50}, wall, ""); ok {
		t.Fatalf("target behind the wall must be hidden")
	}
	if ok, _ := e.Visible(o, geom.Vec2{X: 90, Y: 90}, wall, ""); !ok {
		t.Fatalf("target beside the wall must be visible")
	}
	if ok, _ := e.Visible(o, geom.Vec2{X: 30, Y: 50}, wall, ""); !ok {
		t.Fatalf("target in front of the wall must be visible")
	}
	if ok, _ := New(OcclusionNone).Visible(o, geom.Vec2{X: 90, Y: 50}, wall, ""); !ok {
		t.Fatalf("no occlusion mode must ignore the wall")
	}
}

func TestVisible_HeuristicOcclusion(t *testing.T) {
	o := observer(0, 50, 0)
	wall := []world.Obstacle{{ID: "w", Position: geom.Vec2{X: 40, Y: 40}, Size: geom.Size{Width: 10, Height: 20}}}
	e := New(OcclusionHeuristic)
	if ok, _ := e.Visible(o, geom.Vec2{X: 90, Y: 50}, wall, ""); ok {
		t.Fatalf("centroid on the bearing and closer must block")
	}
	// Bearing ~29°, well outside the 15° tolerance.
	if ok, _ := e.Visible(o, geom.Vec2{X: 80, Y: 95}, wall, ""); !ok {
		t.Fatalf("target off-bearing must be visible")
	}
}

func TestBuild_ReportsRoundedNearestFirst(t *testing.T) {
	now := time.Now()
	p := world.DefaultParams()
	self := p.NewAvatar(geom.Vec2{X: 50, Y: 50}, 0, "#fff", now)
	self.Settings.Eyesight = world.Eyesight{Radius: 200, Angle: 180}
	far := p.NewAvatar(geom.Vec2{X: 150.4, Y: 50}, 0, "#000", now)
	near := p.NewAvatar(geom.Vec2{X: 80.6, Y: 50}, 0, "#000", now)
	behind := p.NewAvatar(geom.Vec2{X: 10, Y: 50}, 0, "#000", now)
	w := &world.World{
		Avatars: []world.Avatar{self, far, near, behind},
		Objects: []world.ArenaObject{{ID: "chest", Kind: world.KindObject, Position: geom.Vec2{X: 60, Y: 60}, Description: "chest"}},
		Obstacles: []world.Obstacle{
			{ID: "box", Kind: world.KindObstacle, Position: geom.Vec2{X: 100, Y: 100}, Size: geom.Size{Width: 20, Height: 20}},
		},
		Settings: p.Settings,
	}

	snap := New(OcclusionExact).Build(w, &w.Avatars[0])
	if len(snap.Avatars) != 2 {
		t.Fatalf("avatars=%+v", snap.Avatars)
	}
	if snap.Avatars[0].ID != near.ID || snap.Avatars[0].Distance != 31 || snap.Avatars[0].Position.X != 81 {
		t.Fatalf("nearest=%+v", snap.Avatars[0])
	}
	if snap.Avatars[1].ID != far.ID || snap.Avatars[1].Distance != 100 {
		t.Fatalf("far=%+v", snap.Avatars[1])
	}
	if len(snap.Objects) != 1 || snap.Objects[0].Distance != 14 {
		t.Fatalf("objects=%+v", snap.Objects)
	}
	// Nearest sampled point of the box is its top-left corner.
	if len(snap.Obstacles) != 1 || snap.Obstacles[0].Distance != 71 {
		t.Fatalf("obstacles=%+v", snap.Obstacles)
	}
}

func TestBuild_ObstacleVisibleByAnySample(t *testing.T) {
	now := time.Now()
	p := world.DefaultParams()
	self := p.NewAvatar(geom.Vec2{X: 50, Y: 50}, 0, "#fff", now)
	self.Settings.Eyesight = world.Eyesight{Radius: 60, Angle: 90}
	w := &world.World{
		Avatars: []world.Avatar{self},
		// Only the left edge falls inside the radius.
		Obstacles: []world.Obstacle{{ID: "long", Kind: world.KindObstacle, Position: geom.Vec2{X: 100, Y: 40}, Size: geom.Size{Width: 200, Height: 20}}},
	}
	snap := New(OcclusionExact).Build(w, &w.Avatars[0])
	if len(snap.Obstacles) != 1 || snap.Obstacles[0].Distance != 51 {
		t.Fatalf("obstacles=%+v", snap.Obstacles)
	}
}
