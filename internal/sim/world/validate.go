package world

import (
	"fmt"
	"math"
)

// Validate checks the invariants every published world must satisfy.
func (w *World) Validate() error {
	if len(w.Avatars) < MinAvatars {
		return fmt.Errorf("%d avatars: %w", len(w.Avatars), ErrTooFewAvatars)
	}
	if w.Settings.BoardSize.Width <= 0 || w.Settings.BoardSize.Height <= 0 {
		return fmt.Errorf("board size %vx%v: %w", w.Settings.BoardSize.Width, w.Settings.BoardSize.Height, ErrBadRequest)
	}
	seen := map[string]struct{}{}
	for i := range w.Avatars {
		a := &w.Avatars[i]
		if a.ID == "" {
			return fmt.Errorf("avatar %d: missing id", i)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("avatar %s: duplicate id", a.ID)
		}
		seen[a.ID] = struct{}{}
		if !a.Position.IsFinite() || math.IsNaN(a.Orientation) {
			return fmt.Errorf("avatar %s: non-finite position", a.ID)
		}
		if a.Orientation < 0 || a.Orientation >= 360 {
			return fmt.Errorf("avatar %s: orientation %v out of [0,360)", a.ID, a.Orientation)
		}
		if a.ConversationTarget == "" {
			continue
		}
		p := w.Avatar(a.ConversationTarget)
		if p == nil {
			return fmt.Errorf("avatar %s: partner %s does not exist", a.ID, a.ConversationTarget)
		}
		if p.ConversationTarget != a.ID {
			return fmt.Errorf("avatar %s: partner %s points at %q", a.ID, p.ID, p.ConversationTarget)
		}
		if n := w.countActive(a.ID, p.ID); n != 1 {
			return fmt.Errorf("avatar %s: %d active conversations with %s", a.ID, n, p.ID)
		}
	}
	for i := range w.Conversations {
		c := &w.Conversations[i]
		if !c.Active() {
			continue
		}
		a, b := w.Avatar(c.Participants[0]), w.Avatar(c.Participants[1])
		if a == nil || b == nil {
			return fmt.Errorf("conversation %s: participant missing", c.ID)
		}
		if a.ConversationTarget != b.ID || b.ConversationTarget != a.ID {
			return fmt.Errorf("conversation %s: participants not paired", c.ID)
		}
	}
	return nil
}

func (w *World) countActive(a, b string) int {
	n := 0
	for i := range w.Conversations {
		if w.Conversations[i].Active() && w.Conversations[i].Involves(a, b) {
			n++
		}
	}
	return n
}
