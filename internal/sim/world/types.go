package world

import (
	"time"

	"avatarsim.ai/internal/sim/geom"
)

type Mode string

const (
	ModeTurnBased Mode = "turn-based"
	ModeTimeBased Mode = "time-based"
)

const (
	KindObject   = "object"
	KindObstacle = "obstacle"
)

// Transient action labels. An empty CurrentAction means idle.
const (
	ActionConversing = "conversing"
	ActionThinking   = "thinking"
)

// MinAvatars is the floor enforced on every mutation.
const MinAvatars = 2

type Eyesight struct {
	Radius float64 `json:"radius" yaml:"radius"`
	// Angle is the full cone width in degrees; an avatar sees Angle/2 to
	// either side of its orientation.
	Angle float64 `json:"angle" yaml:"angle"`
}

type AvatarSettings struct {
	Provider    string   `json:"provider" yaml:"provider"`
	Model       string   `json:"model" yaml:"model"`
	RateLimitMs int      `json:"rateLimitMs" yaml:"rate_limit_ms"`
	Eyesight    Eyesight `json:"eyesight" yaml:"eyesight"`
	Prompt      string   `json:"prompt" yaml:"prompt"`
}

type Avatar struct {
	ID          string         `json:"id"`
	Position    geom.Vec2      `json:"position"`
	Orientation float64        `json:"orientation"`
	Settings    AvatarSettings `json:"settings"`
	Color       string         `json:"color"`

	CurrentAction      string    `json:"currentAction,omitempty"`
	ConversationTarget string    `json:"conversationTarget,omitempty"`
	Thought            string    `json:"thought,omitempty"`
	NextDecisionAt     time.Time `json:"nextDecisionAt"`
}

// Conversing reports whether the avatar has a conversation partner.
func (a *Avatar) Conversing() bool { return a.ConversationTarget != "" }

type ArenaObject struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Position    geom.Vec2 `json:"position"`
	Description string    `json:"description"`
}

type Obstacle struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Position geom.Vec2 `json:"position"`
	Size     geom.Size `json:"size"`
}

func (o Obstacle) Center() geom.Vec2 { return o.Size.Center(o.Position) }

type Message struct {
	AvatarID  string    `json:"avatarId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ID           string     `json:"id"`
	Participants [2]string  `json:"participants"`
	Messages     []Message  `json:"messages"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

func (c *Conversation) Active() bool { return c.EndedAt == nil }

// Involves reports whether the conversation is between a and b, in either order.
func (c *Conversation) Involves(a, b string) bool {
	p := c.Participants
	return (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a)
}

func (c *Conversation) Has(id string) bool {
	return c.Participants[0] == id || c.Participants[1] == id
}

type SimulationSettings struct {
	Mode           Mode      `json:"mode" yaml:"mode"`
	BoardSize      geom.Size `json:"boardSize" yaml:"board_size"`
	TurnDurationMs int       `json:"turnDurationMs" yaml:"turn_duration_ms"`
	Speed          float64   `json:"speed" yaml:"speed"`
}

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type LogEntry struct {
	ID       string    `json:"id"`
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Level    Level     `json:"level"`
	AvatarID string    `json:"avatarId,omitempty"`
	Message  string    `json:"message"`
}

// World is one immutable version of the simulation state. Versions
// published by a Store must not be modified; transforms receive a private
// clone.
type World struct {
	Avatars       []Avatar           `json:"avatars"`
	Objects       []ArenaObject      `json:"objects"`
	Obstacles     []Obstacle         `json:"obstacles"`
	Conversations []Conversation     `json:"conversations"`
	Settings      SimulationSettings `json:"settings"`
	Running       bool               `json:"running"`
	Log           []LogEntry         `json:"log"`
	LogSeq        uint64             `json:"logSeq"`

	// Version increments on every published update.
	Version uint64 `json:"version"`

	logCap int
}
