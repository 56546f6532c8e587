package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecisionPrompt renders a request as a single text prompt for LLM
// backends that take free text.
func DecisionPrompt(req DecisionRequest) string {
	state, _ := json.MarshalIndent(struct {
		Position           any      `json:"position"`
		Orientation        int      `json:"orientation"`
		CurrentAction      string   `json:"currentAction,omitempty"`
		ConversationTarget string   `json:"conversationTarget,omitempty"`
		RecentMessages     any      `json:"recentMessages,omitempty"`
		Perception         any      `json:"perception"`
		BoardSize          any      `json:"boardSize"`
		LegalActions       []Action `json:"legalActions"`
	}{
		req.Position, req.Orientation, req.CurrentAction, req.ConversationTarget,
		req.RecentMessages, req.Perception, req.BoardSize, req.LegalActions,
	}, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "You control avatar %s in a 2D arena.\n", req.AvatarID)
	if p := strings.TrimSpace(req.Prompt); p != "" {
		fmt.Fprintf(&b, "Personality and goals: %s\n", p)
	}
	b.WriteString("Current state:\n")
	b.Write(state)
	b.WriteString("\n\nChoose exactly one of legalActions. Reply with a single JSON object:\n")
	b.WriteString(`{"action": "...", "parameters": {"angle": degrees, "distance": units, "targetId": "...", "message": "...", "duration": ms}, "thought": "..."}`)
	b.WriteString("\nOnly include the parameters the action needs.\n")
	return b.String()
}

// InteractionPrompt renders an object interaction for free-text backends.
func InteractionPrompt(req InteractionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "An avatar examines an object described as: %q.\n", req.Description)
	if p := strings.TrimSpace(req.Prompt); p != "" {
		fmt.Fprintf(&b, "The avatar's personality: %s\n", p)
	}
	b.WriteString(`Describe the avatar's reaction in one or two sentences. Reply as JSON: {"reaction": "..."}`)
	return b.String()
}
