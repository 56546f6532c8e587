package world

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"avatarsim.ai/internal/sim/geom"
)

// Palette is cycled through when assigning avatar colors.
var Palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#bfef45", "#fabed4", "#469990",
}

// Params are the defaults used to build fresh worlds and new avatars.
type Params struct {
	Settings       SimulationSettings
	Avatar         AvatarSettings
	InitialAvatars int
	LogCapacity    int
	AvatarRadius   float64
}

func DefaultParams() Params {
	return Params{
		Settings: SimulationSettings{
			Mode:           ModeTurnBased,
			BoardSize:      geom.Size{Width: 500, Height: 500},
			TurnDurationMs: 1000,
			Speed:          1,
		},
		Avatar: AvatarSettings{
			Provider:    "local",
			Model:       "random-walk",
			RateLimitMs: 2000,
			Eyesight:    Eyesight{Radius: 150, Angle: 180},
			Prompt:      "You are a curious explorer. Wander, look at things and talk to whoever you meet.",
		},
		InitialAvatars: 3,
		LogCapacity:    DefaultLogCapacity,
		AvatarRadius:   10,
	}
}

func NewID() string { return uuid.NewString() }

// ColorFor returns the palette color for the i-th avatar.
func ColorFor(i int) string {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}

// NewAvatar builds an idle avatar eligible for a decision at now.
func (p Params) NewAvatar(pos geom.Vec2, orientation float64, color string, now time.Time) Avatar {
	return Avatar{
		ID:             NewID(),
		Position:       pos,
		Orientation:    geom.NormalizeDegrees(orientation),
		Settings:       p.Avatar,
		Color:          color,
		NextDecisionAt: now,
	}
}

// SpawnPoint picks a random free position on the board, avoiding obstacles
// and other avatars when possible.
func (p Params) SpawnPoint(w *World, rng *rand.Rand) geom.Vec2 {
	board := w.Settings.BoardSize
	r := p.AvatarRadius
	var pt geom.Vec2
	for attempt := 0; attempt < 32; attempt++ {
		pt = geom.Vec2{
			X: r + rng.Float64()*max(board.Width-2*r, 0),
			Y: r + rng.Float64()*max(board.Height-2*r, 0),
		}
		if p.free(w, pt) {
			break
		}
	}
	return geom.ClampToBounds(pt.Round(), board)
}

func (p Params) free(w *World, pt geom.Vec2) bool {
	for _, o := range w.Obstacles {
		pos, size := geom.Inflate(o.Position, o.Size, p.AvatarRadius)
		if geom.PointInRect(pt, pos, size) {
			return false
		}
	}
	for _, a := range w.Avatars {
		if geom.Distance(a.Position, pt) < 2*p.AvatarRadius {
			return false
		}
	}
	return true
}

// NewWorld builds the default paused world.
func (p Params) NewWorld(now time.Time, rng *rand.Rand) *World {
	w := &World{
		Settings:      p.Settings,
		Avatars:       []Avatar{},
		Objects:       []ArenaObject{},
		Obstacles:     []Obstacle{},
		Conversations: []Conversation{},
		Log:           []LogEntry{},
	}
	w.SetLogCapacity(p.LogCapacity)
	board := w.Settings.BoardSize

	w.Obstacles = append(w.Obstacles,
		Obstacle{ID: NewID(), Kind: KindObstacle, Position: geom.Vec2{X: board.Width * 0.3, Y: board.Height * 0.3}, Size: geom.Size{Width: 60, Height: 40}},
		Obstacle{ID: NewID(), Kind: KindObstacle, Position: geom.Vec2{X: board.Width * 0.6, Y: board.Height * 0.65}, Size: geom.Size{Width: 80, Height: 30}},
	)
	w.Objects = append(w.Objects,
		ArenaObject{ID: NewID(), Kind: KindObject, Position: geom.Vec2{X: board.Width * 0.2, Y: board.Height * 0.75}, Description: "A weathered wooden chest with a rusty lock."},
		ArenaObject{ID: NewID(), Kind: KindObject, Position: geom.Vec2{X: board.Width * 0.8, Y: board.Height * 0.2}, Description: "A softly glowing crystal humming at a low pitch."},
	)

	n := max(p.InitialAvatars, MinAvatars)
	for i := 0; i < n; i++ {
		pos := p.SpawnPoint(w, rng)
		w.Avatars = append(w.Avatars, p.NewAvatar(pos, float64(rng.IntN(12)*30), ColorFor(i), now))
	}
	w.AddLog(now, LevelInfo, "", "world initialized with %d avatars", len(w.Avatars))
	return w
}
