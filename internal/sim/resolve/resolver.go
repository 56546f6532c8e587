package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"avatarsim.ai/internal/oracle"
	"avatarsim.ai/internal/sim/world"
)

// Resolver applies decisions to the store. It is safe for concurrent use;
// each Apply reads and replaces the latest world version.
type Resolver struct {
	store    *world.Store
	interact oracle.InteractionOracle
	log      *zap.Logger
}

func New(store *world.Store, interact oracle.InteractionOracle) *Resolver {
	return &Resolver{store: store, interact: interact, log: store.Logger().Named("resolve")}
}

func (r *Resolver) env() Env {
	return Env{Now: r.store.Now(), AvatarRadius: r.store.Params().AvatarRadius}
}

// Apply resolves d for avatar id against the latest world and returns the
// published version. Interactions call the interaction oracle before the
// world is touched, so the store is never held across an oracle call.
func (r *Resolver) Apply(ctx context.Context, id string, d oracle.Decision) (*world.World, error) {
	if d.Action == oracle.ActionInteractObject {
		return r.applyInteraction(ctx, id, d)
	}
	return r.store.Update(func(w *world.World) error {
		env := r.env()
		out, err := Transition(w, id, d, env)
		if err != nil {
			return err
		}
		w.AddLog(env.Now, out.Level, id, "%s", out.Message)
		return nil
	})
}

func (r *Resolver) applyInteraction(ctx context.Context, id string, d oracle.Decision) (*world.World, error) {
	snap := r.store.Snapshot()
	a := snap.Avatar(id)
	if a == nil {
		return snap, fmt.Errorf("avatar %s: %w", id, world.ErrNotFound)
	}

	var reaction string
	var oracleErr error
	if obj := snap.Object(d.Parameters.TargetID); obj != nil {
		res, err := r.interact.Interact(ctx, oracle.InteractionRequest{
			AvatarID:    id,
			ObjectID:    obj.ID,
			Description: obj.Description,
			Prompt:      a.Settings.Prompt,
			Provider:    a.Settings.Provider,
			Model:       a.Settings.Model,
		})
		if err != nil {
			r.log.Warn("interaction oracle failed", zap.String("avatar", id), zap.String("object", obj.ID), zap.Error(err))
			oracleErr = err
		}
		reaction = res.Reaction
	}

	return r.store.Update(func(w *world.World) error {
		env := r.env()
		if w.Avatar(id) == nil {
			return fmt.Errorf("avatar %s: %w", id, world.ErrNotFound)
		}
		out := ApplyInteraction(w, id, d, reaction, oracleErr, env)
		w.AddLog(env.Now, out.Level, id, "%s", out.Message)
		return nil
	})
}
