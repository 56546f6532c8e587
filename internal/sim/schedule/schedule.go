// Package schedule builds decision requests for avatars that are due and
// hands the oracle's answer (or a fallback) to the resolver.
package schedule

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"avatarsim.ai/internal/oracle"
	"avatarsim.ai/internal/sim/perception"
	"avatarsim.ai/internal/sim/resolve"
	"avatarsim.ai/internal/sim/world"
)

// RecentMessages is how much of the active conversation goes into a request.
const RecentMessages = 5

// LegalActions is the action set available to a, given what it currently
// perceives.
func LegalActions(a *world.Avatar, snap perception.Snapshot) []oracle.Action {
	out := []oracle.Action{oracle.ActionTurn, oracle.ActionMove}
	if a.Conversing() {
		out = append(out, oracle.ActionContinueConversation, oracle.ActionDisengageConversation)
	} else {
		if len(snap.Objects) > 0 {
			out = append(out, oracle.ActionInteractObject)
		}
		if len(snap.Avatars) > 0 {
			out = append(out, oracle.ActionInitiateConversation)
		}
	}
	return append(out, oracle.ActionThink, oracle.ActionIdle)
}

// BuildRequest assembles the decision payload for a.
func BuildRequest(w *world.World, a *world.Avatar, snap perception.Snapshot) oracle.DecisionRequest {
	req := oracle.DecisionRequest{
		AvatarID:           a.ID,
		Prompt:             a.Settings.Prompt,
		Position:           a.Position.Round(),
		Orientation:        int(math.Round(a.Orientation)),
		CurrentAction:      a.CurrentAction,
		ConversationTarget: a.ConversationTarget,
		Perception:         snap,
		BoardSize:          w.Settings.BoardSize,
		LegalActions:       LegalActions(a, snap),
		Provider:           a.Settings.Provider,
		Model:              a.Settings.Model,
	}
	if req.Orientation >= 360 {
		req.Orientation -= 360
	}
	if a.Conversing() {
		if c := w.ActiveConversation(a.ID, a.ConversationTarget); c != nil {
			msgs := c.Messages
			if len(msgs) > RecentMessages {
				msgs = msgs[len(msgs)-RecentMessages:]
			}
			req.RecentMessages = slices.Clone(msgs)
		}
	}
	return req
}

// Due lists the avatars whose next decision time has passed.
func Due(w *world.World, now time.Time) []string {
	var out []string
	for _, a := range w.Avatars {
		if !now.Before(a.NextDecisionAt) {
			out = append(out, a.ID)
		}
	}
	return out
}

type Scheduler struct {
	store    *world.Store
	engine   perception.Engine
	oracle   oracle.DecisionOracle
	resolver *resolve.Resolver
	log      *zap.Logger

	decisions atomic.Uint64
	failures  atomic.Uint64
}

// Stats reports decision cycles run and how many of them fell back to idle
// after an oracle failure.
func (s *Scheduler) Stats() (decisions, failures uint64) {
	return s.decisions.Load(), s.failures.Load()
}

func New(store *world.Store, engine perception.Engine, decide oracle.DecisionOracle, resolver *resolve.Resolver) *Scheduler {
	return &Scheduler{
		store:    store,
		engine:   engine,
		oracle:   decide,
		resolver: resolver,
		log:      store.Logger().Named("schedule"),
	}
}

// Dispatch runs one decision cycle for avatar id: perceive, ask the oracle,
// resolve. An oracle failure is replaced by the idle fallback, so Dispatch
// only fails when the avatar no longer exists.
func (s *Scheduler) Dispatch(ctx context.Context, id string) error {
	w := s.store.Snapshot()
	a := w.Avatar(id)
	if a == nil {
		return fmt.Errorf("avatar %s: %w", id, world.ErrNotFound)
	}
	snap := s.engine.Build(w, a)
	req := BuildRequest(w, a, snap)

	start := time.Now()
	d, err := s.oracle.Decide(ctx, req)
	s.decisions.Add(1)
	if err != nil {
		s.failures.Add(1)
		s.log.Warn("decision failed", zap.String("avatar", id), zap.String("provider", req.Provider), zap.Duration("took", time.Since(start)), zap.Error(err))
		d = oracle.Fallback(err)
		_, _ = s.store.Update(func(w *world.World) error {
			if w.Avatar(id) == nil {
				return world.ErrNotFound
			}
			w.AddLog(s.store.Now(), world.LevelError, id, "decision failed: %v", err)
			return nil
		})
	} else {
		if !slices.Contains(req.LegalActions, d.Action) {
			s.log.Debug("oracle chose an action outside the legal set", zap.String("avatar", id), zap.String("action", string(d.Action)))
		}
		s.log.Debug("decision", zap.String("avatar", id), zap.String("action", string(d.Action)), zap.Duration("took", time.Since(start)))
	}

	_, err = s.resolver.Apply(ctx, id, d)
	return err
}
