// Package local is an in-process oracle that picks a random legal action.
// It needs no credentials and is the default provider for new avatars.
package local

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"avatarsim.ai/internal/oracle"
)

var greetings = []string{"Hello there.", "Nice day for a walk.", "Have you seen the crystal?", "Hi!"}

var replies = []string{"Interesting.", "I agree.", "Tell me more.", "I should get going soon."}

var reactions = []string{
	"It looks exactly as described. Nothing happens.",
	"A faint sound comes from inside.",
	"It is warm to the touch.",
	"Dust falls off as it is nudged.",
}

type Oracle struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New(seed uint64) *Oracle {
	return &Oracle{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (o *Oracle) Decide(ctx context.Context, req oracle.DecisionRequest) (oracle.Decision, error) {
	if err := ctx.Err(); err != nil {
		return oracle.Decision{}, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.decide(req), nil
}

func (o *Oracle) decide(req oracle.DecisionRequest) oracle.Decision {
	legal := req.LegalActions
	if len(legal) == 0 {
		legal = []oracle.Action{oracle.ActionIdle}
	}
	// Keep an ongoing conversation going most of the time.
	if req.ConversationTarget != "" && has(legal, oracle.ActionContinueConversation) && o.rng.IntN(4) > 0 {
		return oracle.Decision{
			Action:     oracle.ActionContinueConversation,
			Parameters: oracle.Parameters{Message: pick(o.rng, replies)},
			Thought:    "keep talking",
		}
	}
	a := legal[o.rng.IntN(len(legal))]
	d := oracle.Decision{Action: a}
	switch a {
	case oracle.ActionTurn:
		d.Parameters.Angle = oracle.Float(float64(o.rng.IntN(13)-6) * 30)
		d.Thought = "look around"
	case oracle.ActionMove:
		d.Parameters.Distance = oracle.Float(float64(10 + o.rng.IntN(41)))
		d.Thought = "wander"
	case oracle.ActionInteractObject:
		if len(req.Perception.Objects) == 0 {
			return o.idle()
		}
		obj := req.Perception.Objects[o.rng.IntN(len(req.Perception.Objects))]
		d.Parameters.TargetID = obj.ID
		d.Thought = fmt.Sprintf("inspect %s", obj.Description)
	case oracle.ActionInitiateConversation:
		var free []string
		for _, av := range req.Perception.Avatars {
			if av.ConversationTarget == "" {
				free = append(free, av.ID)
			}
		}
		if len(free) == 0 {
			return o.idle()
		}
		d.Parameters.TargetID = pick(o.rng, free)
		d.Parameters.Message = pick(o.rng, greetings)
	case oracle.ActionContinueConversation:
		d.Parameters.Message = pick(o.rng, replies)
	case oracle.ActionDisengageConversation:
		d.Parameters.Message = "Goodbye."
	case oracle.ActionThink:
		d.Parameters.Duration = oracle.Int(500 + o.rng.IntN(1500))
		d.Thought = "pondering"
	default:
		return o.idle()
	}
	return d
}

func (o *Oracle) idle() oracle.Decision {
	return oracle.Decision{Action: oracle.ActionIdle, Parameters: oracle.Parameters{Duration: oracle.Int(1000 + o.rng.IntN(1000))}}
}

func (o *Oracle) Interact(ctx context.Context, req oracle.InteractionRequest) (oracle.InteractionResult, error) {
	if err := ctx.Err(); err != nil {
		return oracle.InteractionResult{}, err
	}
	o.mu.Lock()
	r := pick(o.rng, reactions)
	o.mu.Unlock()
	if desc := strings.TrimSpace(req.Description); desc != "" {
		r = fmt.Sprintf("The %s: %s", desc, r)
	}
	return oracle.InteractionResult{Reaction: r}, nil
}

func has(actions []oracle.Action, a oracle.Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}
