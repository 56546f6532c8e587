// Package worldtest holds fixtures for driving a world Store from tests in
// other packages through exported APIs only.
package worldtest

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"avatarsim.ai/internal/sim/geom"
	"avatarsim.ai/internal/sim/world"
)

// Epoch is the starting time of every harness clock.
var Epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type Harness struct {
	T     *testing.T
	Store *world.Store
	Clock *Clock
}

// NewHarness wraps w (a fresh default world when nil) in a store with a
// test logger, a manual clock and a seeded random source.
func NewHarness(t *testing.T, w *world.World, hooks ...world.CommitHook) *Harness {
	t.Helper()
	clock := NewClock(Epoch)
	s := world.NewStore(world.DefaultParams(), w,
		world.WithLogger(zaptest.NewLogger(t)),
		world.WithClock(clock.Now),
		world.WithRand(rand.New(rand.NewPCG(1, 2))),
		world.WithHooks(hooks...),
	)
	return &Harness{T: t, Store: s, Clock: clock}
}

// Trio is a 500x500 world with three idle avatars and nothing else:
// (50,50) facing 0°, (100,50) facing 180° and (300,300) facing 90°.
func Trio() *world.World {
	p := world.DefaultParams()
	w := &world.World{Settings: p.Settings}
	w.Avatars = []world.Avatar{
		p.NewAvatar(geom.Vec2{X: 50, Y: 50}, 0, world.ColorFor(0), Epoch),
		p.NewAvatar(geom.Vec2{X: 100, Y: 50}, 180, world.ColorFor(1), Epoch),
		p.NewAvatar(geom.Vec2{X: 300, Y: 300}, 90, world.ColorFor(2), Epoch),
	}
	return w
}

// Converse puts a and b into an active conversation with one opening line.
func Converse(w *world.World, a, b string) {
	w.Conversations = append(w.Conversations, world.Conversation{
		ID:           world.NewID(),
		Participants: [2]string{a, b},
		Messages:     []world.Message{{AvatarID: a, Text: "hi", Timestamp: Epoch}},
		StartedAt:    Epoch,
	})
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		av := w.Avatar(pair[0])
		av.ConversationTarget = pair[1]
		av.CurrentAction = world.ActionConversing
	}
}

// IDs returns the avatar ids of the latest world in order.
func (h *Harness) IDs() []string {
	w := h.Store.Snapshot()
	out := make([]string, len(w.Avatars))
	for i, a := range w.Avatars {
		out[i] = a.ID
	}
	return out
}

// Avatar returns a copy of avatar id from the latest world, failing the test
// when it is missing.
func (h *Harness) Avatar(id string) world.Avatar {
	h.T.Helper()
	a := h.Store.Snapshot().Avatar(id)
	if a == nil {
		h.T.Fatalf("avatar %s not found", id)
	}
	return *a
}

// MustValidate fails the test when the latest world breaks an invariant.
func (h *Harness) MustValidate() {
	h.T.Helper()
	if err := h.Store.Snapshot().Validate(); err != nil {
		h.T.Fatalf("invalid world: %v", err)
	}
}
