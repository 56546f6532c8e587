// Package resolve turns oracle decisions into world transitions. Every
// transition is a pure function over a private world copy; Resolver runs
// them through the store so concurrent completions serialize on the latest
// version.
package resolve

import (
	"fmt"
	"math"
	"strings"
	"time"

	"avatarsim.ai/internal/oracle"
	"avatarsim.ai/internal/sim/geom"
	"avatarsim.ai/internal/sim/world"
)

const (
	TurnStep        = 30.0
	MaxTurn         = 180.0
	MaxMoveDistance = 15.0
	MinDelayMs      = 100
	MaxDelayMs      = 10000
	InteractDelayMs = 500
	MaxMessages     = 20

	DefaultOpening = "Hello."
	DefaultReply   = "..."

	blockedNote = "(Movement blocked)"
)

// Transient labels stored in Avatar.CurrentAction for geometry actions.
const (
	LabelTurn = "turn"
	LabelMove = "move"
)

// Env carries the values a transition needs besides the world itself.
type Env struct {
	Now          time.Time
	AvatarRadius float64
}

// Outcome summarises a transition for logging.
type Outcome struct {
	Level   world.Level
	Message string
}

// SnapTurn clamps a relative angle to [-180, 180] and rounds it to the
// nearest multiple of 30 degrees, halves rounding up.
func SnapTurn(angle float64) float64 {
	if !finite(angle) {
		return 0
	}
	a := geom.Clamp(angle, -MaxTurn, MaxTurn)
	return math.Floor(a/TurnStep+0.5) * TurnStep
}

// ClampMove bounds a requested move distance.
func ClampMove(d float64) float64 {
	if !finite(d) {
		return 0
	}
	return geom.Clamp(d, -MaxMoveDistance, MaxMoveDistance)
}

// NextDelay is the decision interval after a resolved decision: the
// requested duration if any, otherwise the avatar's rate limit, bounded to
// [100ms, 10s].
func NextDelay(d oracle.Decision, a *world.Avatar) time.Duration {
	ms := a.Settings.RateLimitMs
	if d.Parameters.Duration != nil {
		ms = *d.Parameters.Duration
	}
	if ms < MinDelayMs {
		ms = MinDelayMs
	}
	if ms > MaxDelayMs {
		ms = MaxDelayMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Blocked reports why a candidate position is not reachable for the avatar
// id, or "" when it is free.
func Blocked(w *world.World, id string, candidate geom.Vec2, radius float64) string {
	if !geom.PointInBounds(candidate, w.Settings.BoardSize) {
		return "out of bounds"
	}
	for _, o := range w.Obstacles {
		pos, size := geom.Inflate(o.Position, o.Size, radius)
		if geom.PointInRect(candidate, pos, size) {
			return "obstacle " + o.ID
		}
	}
	for _, other := range w.Avatars {
		if other.ID == id {
			continue
		}
		if geom.Distance(candidate, other.Position) < 2*radius {
			return "avatar " + other.ID
		}
	}
	return ""
}

// Transition applies d for avatar id to w. Interaction decisions are applied
// with ApplyInteraction once the oracle has answered; passing one here
// treats it as an interaction with no reaction.
func Transition(w *world.World, id string, d oracle.Decision, env Env) (Outcome, error) {
	a := w.Avatar(id)
	if a == nil {
		return Outcome{}, fmt.Errorf("avatar %s: %w", id, world.ErrNotFound)
	}
	var out Outcome
	switch d.Action {
	case oracle.ActionTurn:
		out = turn(a, d)
	case oracle.ActionMove:
		out = move(w, a, d, env.AvatarRadius)
	case oracle.ActionInteractObject:
		return ApplyInteraction(w, id, d, "", nil, env), nil
	case oracle.ActionInitiateConversation:
		out = initiate(w, a, d, env.Now)
	case oracle.ActionContinueConversation:
		out = continueConversation(w, a, d, env.Now)
	case oracle.ActionDisengageConversation:
		out = disengage(w, a, d, env.Now)
	case oracle.ActionThink:
		if d.Thought != "" {
			a.Thought = d.Thought
		}
		a.CurrentAction = ""
		out = Outcome{Level: world.LevelInfo, Message: "is thinking"}
	case oracle.ActionIdle:
		a.Thought = d.Thought
		a.CurrentAction = ""
		out = Outcome{Level: world.LevelDebug, Message: "idles"}
	default:
		a.Thought = d.Thought
		a.CurrentAction = ""
		out = Outcome{Level: world.LevelWarning, Message: fmt.Sprintf("unrecognized action %q, idling", d.Action)}
	}
	// Conversation handlers may have ended a conversation and pruned the
	// slice; re-resolve before touching the avatar again.
	a = w.Avatar(id)
	a.NextDecisionAt = env.Now.Add(NextDelay(d, a))
	return out, nil
}

// ApplyInteraction records the outcome of an interact_object decision.
// oracleErr is the interaction oracle's failure, if any. The avatar always ends idle and
// becomes eligible again after InteractDelayMs.
func ApplyInteraction(w *world.World, id string, d oracle.Decision, reaction string, oracleErr error, env Env) Outcome {
	a := w.Avatar(id)
	if a == nil {
		return Outcome{Level: world.LevelDebug, Message: "interaction dropped: avatar gone"}
	}
	a.CurrentAction = ""
	a.NextDecisionAt = env.Now.Add(InteractDelayMs * time.Millisecond)

	target := d.Parameters.TargetID
	obj := w.Object(target)
	switch {
	case obj == nil:
		a.Thought = annotate(d.Thought, fmt.Sprintf("(Object %s not found)", target))
		return Outcome{Level: world.LevelWarning, Message: fmt.Sprintf("tried to interact with missing object %s", target)}
	case oracleErr != nil:
		a.Thought = annotate(d.Thought, "(Interaction failed: "+oracleErr.Error()+")")
		return Outcome{Level: world.LevelError, Message: fmt.Sprintf("interaction with %s failed: %v", obj.ID, oracleErr)}
	case strings.TrimSpace(reaction) == "":
		a.Thought = d.Thought
		return Outcome{Level: world.LevelInfo, Message: fmt.Sprintf("interacted with %s", obj.ID)}
	default:
		a.Thought = annotate(d.Thought, "Reaction: "+reaction)
		return Outcome{Level: world.LevelInfo, Message: fmt.Sprintf("interacted with %s: %s", obj.ID, reaction)}
	}
}

func turn(a *world.Avatar, d oracle.Decision) Outcome {
	angle := 0.0
	if d.Parameters.Angle != nil {
		angle = *d.Parameters.Angle
	}
	delta := SnapTurn(angle)
	a.Orientation = geom.NormalizeDegrees(a.Orientation + delta)
	a.Thought = d.Thought
	a.CurrentAction = LabelTurn
	return Outcome{Level: world.LevelInfo, Message: fmt.Sprintf("turned %+.0f° to %.0f°", delta, a.Orientation)}
}

func move(w *world.World, a *world.Avatar, d oracle.Decision, radius float64) Outcome {
	dist := 0.0
	if d.Parameters.Distance != nil {
		dist = ClampMove(*d.Parameters.Distance)
	}
	a.CurrentAction = LabelMove
	if dist == 0 {
		a.Thought = d.Thought
		return Outcome{Level: world.LevelDebug, Message: "moved 0 units"}
	}
	candidate := a.Position.Add(geom.Heading(a.Orientation).Scale(dist))
	if why := Blocked(w, a.ID, candidate, radius); why != "" {
		a.Thought = annotate(d.Thought, blockedNote)
		return Outcome{Level: world.LevelWarning, Message: fmt.Sprintf("movement blocked (%s)", why)}
	}
	a.Position = candidate
	a.Thought = d.Thought
	return Outcome{Level: world.LevelInfo, Message: fmt.Sprintf("moved %.0f to (%.0f, %.0f)", dist, candidate.X, candidate.Y)}
}

func initiate(w *world.World, a *world.Avatar, d oracle.Decision, now time.Time) Outcome {
	target := d.Parameters.TargetID
	var reason string
	switch t := w.Avatar(target); {
	case target == "":
		reason = "no conversation target given"
	case target == a.ID:
		reason = "cannot talk to itself"
	case t == nil:
		reason = fmt.Sprintf("avatar %s not found", target)
	case a.Conversing():
		reason = "already in a conversation"
	case t.Conversing():
		reason = fmt.Sprintf("avatar %s is busy", target)
	}
	if reason != "" {
		a.Thought = annotate(d.Thought, "("+reason+")")
		a.CurrentAction = ""
		return Outcome{Level: world.LevelWarning, Message: "could not start conversation: " + reason}
	}

	msg := d.Parameters.Message
	if msg == "" {
		msg = DefaultOpening
	}
	w.Conversations = append(w.Conversations, world.Conversation{
		ID:           world.NewID(),
		Participants: [2]string{a.ID, target},
		Messages:     []world.Message{{AvatarID: a.ID, Text: msg, Timestamp: now}},
		StartedAt:    now,
	})
	t := w.Avatar(target)
	a.ConversationTarget, t.ConversationTarget = target, a.ID
	a.CurrentAction, t.CurrentAction = world.ActionConversing, world.ActionConversing
	a.Thought = d.Thought
	return Outcome{Level: world.LevelInfo, Message: fmt.Sprintf("started a conversation with %s: %q", target, msg)}
}

func continueConversation(w *world.World, a *world.Avatar, d oracle.Decision, now time.Time) Outcome {
	target := d.Parameters.TargetID
	if target == "" {
		target = a.ConversationTarget
	}
	c := w.ActiveConversation(a.ID, target)
	if !a.Conversing() || a.ConversationTarget != target || c == nil {
		reason := "not in a conversation"
		if a.Conversing() {
			reason = fmt.Sprintf("not talking to %s", target)
		}
		thought := annotate(d.Thought, "("+reason+")")
		id := a.ID
		// Drop whatever conversation state is left, keeping both sides
		// consistent.
		w.EndConversation(w.ActiveConversationOf(id), now)
		a = w.Avatar(id)
		a.ConversationTarget = ""
		a.CurrentAction = ""
		a.Thought = thought
		return Outcome{Level: world.LevelWarning, Message: "could not continue conversation: " + reason}
	}

	msg := d.Parameters.Message
	if msg == "" {
		msg = DefaultReply
	}
	c.Messages = append(c.Messages, world.Message{AvatarID: a.ID, Text: msg, Timestamp: now})
	if n := len(c.Messages); n > MaxMessages {
		c.Messages = append([]world.Message(nil), c.Messages[n-MaxMessages:]...)
	}
	a.CurrentAction = world.ActionConversing
	a.Thought = d.Thought
	return Outcome{Level: world.LevelInfo, Message: fmt.Sprintf("said to %s: %q", target, msg)}
}

func disengage(w *world.World, a *world.Avatar, d oracle.Decision, now time.Time) Outcome {
	target := d.Parameters.TargetID
	if target == "" {
		target = a.ConversationTarget
	}
	if !a.Conversing() {
		a.CurrentAction = ""
		a.Thought = annotate(d.Thought, "(not in a conversation)")
		return Outcome{Level: world.LevelWarning, Message: "could not disengage: not in a conversation"}
	}
	if a.ConversationTarget != target {
		a.Thought = annotate(d.Thought, fmt.Sprintf("(not talking to %s)", target))
		return Outcome{Level: world.LevelWarning, Message: fmt.Sprintf("could not disengage from %s: talking to %s", target, a.ConversationTarget)}
	}
	id, thought := a.ID, d.Thought
	if c := w.ActiveConversation(id, target); c != nil {
		if d.Parameters.Message != "" {
			c.Messages = append(c.Messages, world.Message{AvatarID: id, Text: d.Parameters.Message, Timestamp: now})
		}
		w.EndConversation(c, now)
	}
	// Covers a target with no backing conversation.
	a = w.Avatar(id)
	a.ConversationTarget, a.CurrentAction, a.Thought = "", "", thought
	if t := w.Avatar(target); t != nil && t.ConversationTarget == id {
		t.ConversationTarget, t.CurrentAction = "", ""
	}
	return Outcome{Level: world.LevelInfo, Message: fmt.Sprintf("ended the conversation with %s", target)}
}

func annotate(thought, note string) string {
	if thought == "" {
		return note
	}
	return thought + " " + note
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
