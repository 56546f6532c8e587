package schedule

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"avatarsim.ai/internal/oracle"
	"avatarsim.ai/internal/sim/geom"
	"avatarsim.ai/internal/sim/perception"
	"avatarsim.ai/internal/sim/resolve"
	"avatarsim.ai/internal/sim/world"
	"avatarsim.ai/internal/sim/worldtest"
)

type recordingOracle struct {
	mu   sync.Mutex
	reqs []oracle.DecisionRequest
	fn   func(oracle.DecisionRequest) (oracle.Decision, error)
}

func (r *recordingOracle) Decide(ctx context.Context, req oracle.DecisionRequest) (oracle.Decision, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return r.fn(req)
}

func (r *recordingOracle) Interact(ctx context.Context, req oracle.InteractionRequest) (oracle.InteractionResult, error) {
	return oracle.InteractionResult{Reaction: "ok"}, nil
}

func newScheduler(t *testing.T, w *world.World, o *recordingOracle) (*worldtest.Harness, *Scheduler) {
	t.Helper()
	h := worldtest.NewHarness(t, w)
	return h, New(h.Store, perception.New(perception.OcclusionExact), o, resolve.New(h.Store, o))
}

func TestLegalActions(t *testing.T) {
	idle := &world.Avatar{ID: "a"}
	talking := &world.Avatar{ID: "a", ConversationTarget: "b"}
	seesBoth := perception.Snapshot{
		Avatars: []perception.SeenAvatar{{ID: "b"}},
		Objects: []perception.SeenObject{{ID: "o"}},
	}

	cases := []struct {
		name string
		a    *world.Avatar
		snap perception.Snapshot
		want []oracle.Action
	}{
		{"alone", idle, perception.Snapshot{}, []oracle.Action{oracle.ActionTurn, oracle.ActionMove, oracle.ActionThink, oracle.ActionIdle}},
		{"sees things", idle, seesBoth, []oracle.Action{
			oracle.ActionTurn, oracle.ActionMove, oracle.ActionInteractObject, oracle.ActionInitiateConversation,
			oracle.ActionThink, oracle.ActionIdle,
		}},
		{"conversing", talking, seesBoth, []oracle.Action{
			oracle.ActionTurn, oracle.ActionMove, oracle.ActionContinueConversation, oracle.ActionDisengageConversation,
			oracle.ActionThink, oracle.ActionIdle,
		}},
	}
	for _, tc := range cases {
		if got := LegalActions(tc.a, tc.snap); !slices.Equal(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestBuildRequest_RoundsAndKeepsLastFiveMessages(t *testing.T) {
	w := worldtest.Trio()
	w.Avatars[0].Position = geom.Vec2{X: 50.4, Y: 49.6}
	w.Avatars[0].Orientation = 359.7
	a, b := w.Avatars[0].ID, w.Avatars[1].ID
	worldtest.Converse(w, a, b)
	c := &w.Conversations[0]
	for i := 0; i < 7; i++ {
		c.Messages = append(c.Messages, world.Message{AvatarID: b, Text: string(rune('a' + i))})
	}

	req := BuildRequest(w, w.Avatar(a), perception.Snapshot{})
	if req.Position != (geom.Vec2{X: 50, Y: 50}) || req.Orientation != 0 {
		t.Fatalf("position=%v orientation=%d", req.Position, req.Orientation)
	}
	if len(req.RecentMessages) != RecentMessages || req.RecentMessages[4].Text != "g" {
		t.Fatalf("messages=%+v", req.RecentMessages)
	}
	if req.ConversationTarget != b || req.Provider != "local" {
		t.Fatalf("request=%+v", req)
	}
}

func TestDue(t *testing.T) {
	w := worldtest.Trio()
	w.Avatars[1].NextDecisionAt = worldtest.Epoch.Add(time.Second)
	got := Due(w, worldtest.Epoch)
	if len(got) != 2 || got[0] != w.Avatars[0].ID || got[1] != w.Avatars[2].ID {
		t.Fatalf("due=%v", got)
	}
	if got := Due(w, worldtest.Epoch.Add(time.Second)); len(got) != 3 {
		t.Fatalf("due=%v", got)
	}
}

func TestDispatch_AppliesDecision(t *testing.T) {
	o := &recordingOracle{fn: func(req oracle.DecisionRequest) (oracle.Decision, error) {
		return oracle.Decision{Action: oracle.ActionMove, Parameters: oracle.Parameters{Distance: oracle.Float(10)}}, nil
	}}
	h, s := newScheduler(t, worldtest.Trio(), o)
	id := h.IDs()[0]

	if err := s.Dispatch(context.Background(), id); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := h.Avatar(id).Position; got != (geom.Vec2{X: 60, Y: 50}) {
		t.Fatalf("position=%v", got)
	}
	req := o.reqs[0]
	// The avatar at (100,50) is straight ahead inside the cone.
	if len(req.Perception.Avatars) != 1 || req.Perception.Avatars[0].Distance != 50 {
		t.Fatalf("perception=%+v", req.Perception)
	}
	if !slices.Contains(req.LegalActions, oracle.ActionInitiateConversation) {
		t.Fatalf("legal=%v", req.LegalActions)
	}
}

func TestDispatch_OracleFailureFallsBackToIdle(t *testing.T) {
	o := &recordingOracle{fn: func(oracle.DecisionRequest) (oracle.Decision, error) {
		return oracle.Decision{}, errors.New("connection refused")
	}}
	w := worldtest.Trio()
	w.Avatars[0].CurrentAction = resolve.LabelMove
	h, s := newScheduler(t, w, o)
	id := h.IDs()[0]

	if err := s.Dispatch(context.Background(), id); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	a := h.Avatar(id)
	if a.CurrentAction != "" {
		t.Fatalf("action=%q", a.CurrentAction)
	}
	if want := worldtest.Epoch.Add(time.Second); !a.NextDecisionAt.Equal(want) {
		t.Fatalf("next=%v want %v", a.NextDecisionAt, want)
	}
	if !strings.Contains(a.Thought, "Error") {
		t.Fatalf("thought=%q", a.Thought)
	}
	var sawError bool
	for _, e := range h.Store.Snapshot().Log {
		if e.Level == world.LevelError && e.AvatarID == id {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("no error entry in event log")
	}
	if d, f := s.Stats(); d != 1 || f != 1 {
		t.Fatalf("stats decisions=%d failures=%d", d, f)
	}
}

func TestDispatch_MissingAvatar(t *testing.T) {
	o := &recordingOracle{fn: func(oracle.DecisionRequest) (oracle.Decision, error) { return oracle.Decision{}, nil }}
	_, s := newScheduler(t, worldtest.Trio(), o)
	if err := s.Dispatch(context.Background(), "ghost"); !errors.Is(err, world.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(o.reqs) != 0 {
		t.Fatalf("oracle called for missing avatar")
	}
}
