// Package oracle defines the contract with the external reasoning services
// that choose avatar actions (Decision Oracle) and narrate object
// interactions (Interaction Oracle), plus the router that picks a backend by
// provider name.
package oracle

import (
	"context"
	"errors"

	"avatarsim.ai/internal/sim/geom"
	"avatarsim.ai/internal/sim/perception"
	"avatarsim.ai/internal/sim/world"
)

type Action string

const (
	ActionTurn                  Action = "turn"
	ActionMove                  Action = "move"
	ActionInteractObject        Action = "interact_object"
	ActionInitiateConversation  Action = "initiate_conversation"
	ActionContinueConversation  Action = "continue_conversation"
	ActionDisengageConversation Action = "disengage_conversation"
	ActionThink                 Action = "think"
	ActionIdle                  Action = "idle"
)

// AllActions lists every action in presentation order.
var AllActions = []Action{
	ActionTurn, ActionMove, ActionInteractObject,
	ActionInitiateConversation, ActionContinueConversation, ActionDisengageConversation,
	ActionThink, ActionIdle,
}

func (a Action) Known() bool {
	for _, k := range AllActions {
		if a == k {
			return true
		}
	}
	return false
}

type Parameters struct {
	Angle    *float64 `json:"angle,omitempty"`
	Distance *float64 `json:"distance,omitempty"`
	TargetID string   `json:"targetId,omitempty"`
	Message  string   `json:"message,omitempty"`
	Duration *int     `json:"duration,omitempty"`
}

type Decision struct {
	Action     Action     `json:"action"`
	Parameters Parameters `json:"parameters"`
	Thought    string     `json:"thought,omitempty"`
}

// DecisionRequest is the perception/state payload sent to a Decision Oracle.
type DecisionRequest struct {
	AvatarID           string              `json:"avatarId"`
	Prompt             string              `json:"prompt"`
	Position           geom.Vec2           `json:"position"`
	Orientation        int                 `json:"orientation"`
	CurrentAction      string              `json:"currentAction,omitempty"`
	ConversationTarget string              `json:"conversationTarget,omitempty"`
	RecentMessages     []world.Message     `json:"recentMessages,omitempty"`
	Perception         perception.Snapshot `json:"perception"`
	BoardSize          geom.Size           `json:"boardSize"`
	LegalActions       []Action            `json:"legalActions"`
	Provider           string              `json:"provider"`
	Model              string              `json:"model"`
	Credential         string              `json:"-"`
}

type InteractionRequest struct {
	AvatarID    string `json:"avatarId"`
	ObjectID    string `json:"objectId"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Credential  string `json:"-"`
}

type InteractionResult struct {
	Reaction string `json:"reaction"`
}

type DecisionOracle interface {
	Decide(ctx context.Context, req DecisionRequest) (Decision, error)
}

type InteractionOracle interface {
	Interact(ctx context.Context, req InteractionRequest) (InteractionResult, error)
}

// Backend serves both oracle roles for one provider.
type Backend interface {
	DecisionOracle
	InteractionOracle
}

type DecideFunc func(ctx context.Context, req DecisionRequest) (Decision, error)

func (f DecideFunc) Decide(ctx context.Context, req DecisionRequest) (Decision, error) {
	return f(ctx, req)
}

type InteractFunc func(ctx context.Context, req InteractionRequest) (InteractionResult, error)

func (f InteractFunc) Interact(ctx context.Context, req InteractionRequest) (InteractionResult, error) {
	return f(ctx, req)
}

var (
	ErrUnknownProvider = errors.New("unknown oracle provider")
	ErrMalformed       = errors.New("malformed oracle output")
	ErrEmptyReaction   = errors.New("empty interaction reaction")
)

// FallbackDuration is the idle delay applied after an oracle failure.
const FallbackDuration = 1000

// Fallback is the decision applied when a decision request fails.
func Fallback(err error) Decision {
	d := FallbackDuration
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Decision{
		Action:     ActionIdle,
		Parameters: Parameters{Duration: &d},
		Thought:    "Error: " + msg,
	}
}

func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
