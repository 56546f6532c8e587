// Package perception decides what an avatar can see: a directional cone
// bounded by eyesight radius, with obstacles optionally occluding the line of
// sight.
package perception

import (
	"math"
	"sort"

	"avatarsim.ai/internal/sim/geom"
	"avatarsim.ai/internal/sim/world"
)

// Occlusion selects how obstacles block sight lines.
type Occlusion string

const (
	// OcclusionExact blocks a sight line that intersects any obstacle
	// rectangle other than the target itself.
	OcclusionExact Occlusion = "exact"
	// OcclusionHeuristic blocks when an obstacle's centroid is closer than
	// the target and lies within HeuristicTolerance degrees of its bearing.
	OcclusionHeuristic Occlusion = "heuristic"
	OcclusionNone      Occlusion = "none"
)

const HeuristicTolerance = 15.0

func ParseOcclusion(s string) (Occlusion, bool) {
	switch Occlusion(s) {
	case OcclusionExact, OcclusionHeuristic, OcclusionNone:
		return Occlusion(s), true
	case "":
		return OcclusionExact, true
	}
	return "", false
}

// Observer is the viewpoint of a visibility test.
type Observer struct {
	Position    geom.Vec2
	Orientation float64
	Eyesight    world.Eyesight
}

func ObserverOf(a *world.Avatar) Observer {
	return Observer{Position: a.Position, Orientation: a.Orientation, Eyesight: a.Settings.Eyesight}
}

// InCone reports whether target lies within the observer's eyesight cone,
// ignoring obstacles, and returns its distance.
func (o Observer) InCone(target geom.Vec2) (bool, float64) {
	d := geom.Distance(o.Position, target)
	if d > o.Eyesight.Radius {
		return false, d
	}
	if d == 0 {
		return true, 0
	}
	delta := geom.SignedDelta(o.Orientation, geom.Bearing(o.Position, target))
	return math.Abs(delta) <= o.Eyesight.Angle/2, d
}

// Engine runs visibility tests against one world version.
type Engine struct {
	Occlusion Occlusion
}

func New(mode Occlusion) Engine {
	if mode == "" {
		mode = OcclusionExact
	}
	return Engine{Occlusion: mode}
}

// Visible is the full visibility test: cone membership plus line of sight.
// skipObstacle names an obstacle that is the target itself and never
// occludes.
func (e Engine) Visible(o Observer, target geom.Vec2, obstacles []world.Obstacle, skipObstacle string) (bool, float64) {
	ok, d := o.InCone(target)
	if !ok {
		return false, d
	}
	return !e.occluded(o.Position, target, d, obstacles, skipObstacle), d
}

func (e Engine) occluded(from, to geom.Vec2, dist float64, obstacles []world.Obstacle, skip string) bool {
	switch e.Occlusion {
	case OcclusionNone:
		return false
	case OcclusionHeuristic:
		bearing := geom.Bearing(from, to)
		for _, ob := range obstacles {
			if ob.ID == skip {
				continue
			}
			c := ob.Center()
			if geom.Distance(from, c) >= dist {
				continue
			}
			if math.Abs(geom.SignedDelta(bearing, geom.Bearing(from, c))) <= HeuristicTolerance {
				return true
			}
		}
		return false
	default:
		for _, ob := range obstacles {
			if ob.ID == skip {
				continue
			}
			// An observer standing inside an obstacle is not blinded by it.
			if geom.PointInRect(from, ob.Position, ob.Size) {
				continue
			}
			if geom.SegmentIntersectsRect(from, to, ob.Position, ob.Size) {
				return true
			}
		}
		return false
	}
}

type SeenAvatar struct {
	ID                 string    `json:"id"`
	Position           geom.Vec2 `json:"position"`
	Distance           int       `json:"distance"`
	Orientation        int       `json:"orientation"`
	CurrentAction      string    `json:"currentAction,omitempty"`
	ConversationTarget string    `json:"conversationTarget,omitempty"`
}

type SeenObject struct {
	ID          string    `json:"id"`
	Position    geom.Vec2 `json:"position"`
	Distance    int       `json:"distance"`
	Description string    `json:"description"`
}

type SeenObstacle struct {
	ID       string    `json:"id"`
	Position geom.Vec2 `json:"position"`
	Size     geom.Size `json:"size"`
	Distance int       `json:"distance"`
}

// Snapshot is what one avatar perceives, nearest first.
type Snapshot struct {
	Avatars   []SeenAvatar   `json:"avatars"`
	Objects   []SeenObject   `json:"objects"`
	Obstacles []SeenObstacle `json:"obstacles"`
}

func round(f float64) int { return int(math.Round(f)) }

// Build computes the perception snapshot of avatar self in w.
func (e Engine) Build(w *world.World, self *world.Avatar) Snapshot {
	o := ObserverOf(self)
	snap := Snapshot{
		Avatars:   []SeenAvatar{},
		Objects:   []SeenObject{},
		Obstacles: []SeenObstacle{},
	}
	for i := range w.Avatars {
		a := &w.Avatars[i]
		if a.ID == self.ID {
			continue
		}
		if ok, d := e.Visible(o, a.Position, w.Obstacles, ""); ok {
			snap.Avatars = append(snap.Avatars, SeenAvatar{
				ID:                 a.ID,
				Position:           a.Position.Round(),
				Distance:           round(d),
				Orientation:        round(a.Orientation),
				CurrentAction:      a.CurrentAction,
				ConversationTarget: a.ConversationTarget,
			})
		}
	}
	for _, obj := range w.Objects {
		if ok, d := e.Visible(o, obj.Position, w.Obstacles, ""); ok {
			snap.Objects = append(snap.Objects, SeenObject{
				ID:          obj.ID,
				Position:    obj.Position.Round(),
				Distance:    round(d),
				Description: obj.Description,
			})
		}
	}
	for _, ob := range w.Obstacles {
		best, seen := math.Inf(1), false
		corners := geom.Corners(ob.Position, ob.Size)
		for _, p := range append(corners[:], ob.Center()) {
			if ok, d := e.Visible(o, p, w.Obstacles, ob.ID); ok {
				seen = true
				best = math.Min(best, d)
			}
		}
		if seen {
			snap.Obstacles = append(snap.Obstacles, SeenObstacle{
				ID:       ob.ID,
				Position: ob.Position.Round(),
				Size:     ob.Size,
				Distance: round(best),
			})
		}
	}
	sort.SliceStable(snap.Avatars, func(i, j int) bool { return snap.Avatars[i].Distance < snap.Avatars[j].Distance })
	sort.SliceStable(snap.Objects, func(i, j int) bool { return snap.Objects[i].Distance < snap.Objects[j].Distance })
	sort.SliceStable(snap.Obstacles, func(i, j int) bool { return snap.Obstacles[i].Distance < snap.Obstacles[j].Distance })
	return snap
}
