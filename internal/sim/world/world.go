package world

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"avatarsim.ai/internal/sim/geom"
)

// DefaultLogCapacity bounds the event log when Params leaves it unset.
const DefaultLogCapacity = 100

// maxEndedConversations bounds how many closed conversations are retained.
const maxEndedConversations = 50

// Clone returns a deep copy safe to mutate.
func (w *World) Clone() *World {
	if w == nil {
		return nil
	}
	out := *w
	out.Avatars = append([]Avatar(nil), w.Avatars...)
	out.Objects = append([]ArenaObject(nil), w.Objects...)
	out.Obstacles = append([]Obstacle(nil), w.Obstacles...)
	out.Log = append([]LogEntry(nil), w.Log...)
	out.Conversations = make([]Conversation, len(w.Conversations))
	for i, c := range w.Conversations {
		c.Messages = append([]Message(nil), c.Messages...)
		if c.EndedAt != nil {
			t := *c.EndedAt
			c.EndedAt = &t
		}
		out.Conversations[i] = c
	}
	return &out
}

// SetLogCapacity sets the ring size of the event log, evicting the oldest
// entries if needed.
func (w *World) SetLogCapacity(n int) {
	if n <= 0 {
		n = DefaultLogCapacity
	}
	w.logCap = n
	w.trimLog()
}

func (w *World) LogCapacity() int {
	if w.logCap <= 0 {
		return DefaultLogCapacity
	}
	return w.logCap
}

// AddLog appends an entry to the bounded event log.
func (w *World) AddLog(at time.Time, level Level, avatarID, format string, args ...any) LogEntry {
	w.LogSeq++
	e := LogEntry{
		ID:       ulid.MustNew(ulid.Timestamp(at), rand.Reader).String(),
		Seq:      w.LogSeq,
		Time:     at,
		Level:    level,
		AvatarID: avatarID,
		Message:  fmt.Sprintf(format, args...),
	}
	w.Log = append(w.Log, e)
	w.trimLog()
	return e
}

func (w *World) trimLog() {
	if over := len(w.Log) - w.LogCapacity(); over > 0 {
		w.Log = append(w.Log[:0:0], w.Log[over:]...)
	}
}

// LogAfter returns the retained entries with Seq > seq.
func (w *World) LogAfter(seq uint64) []LogEntry {
	for i, e := range w.Log {
		if e.Seq > seq {
			return w.Log[i:]
		}
	}
	return nil
}

func (w *World) Avatar(id string) *Avatar {
	for i := range w.Avatars {
		if w.Avatars[i].ID == id {
			return &w.Avatars[i]
		}
	}
	return nil
}

func (w *World) Object(id string) *ArenaObject {
	for i := range w.Objects {
		if w.Objects[i].ID == id {
			return &w.Objects[i]
		}
	}
	return nil
}

func (w *World) Obstacle(id string) *Obstacle {
	for i := range w.Obstacles {
		if w.Obstacles[i].ID == id {
			return &w.Obstacles[i]
		}
	}
	return nil
}

// ActiveConversation returns the open conversation between a and b.
func (w *World) ActiveConversation(a, b string) *Conversation {
	for i := range w.Conversations {
		c := &w.Conversations[i]
		if c.Active() && c.Involves(a, b) {
			return c
		}
	}
	return nil
}

// ActiveConversationOf returns the open conversation id takes part in.
func (w *World) ActiveConversationOf(id string) *Conversation {
	for i := range w.Conversations {
		c := &w.Conversations[i]
		if c.Active() && c.Has(id) {
			return c
		}
	}
	return nil
}

// EndConversation closes c and clears the conversation state of both
// participants that still point at each other.
func (w *World) EndConversation(c *Conversation, at time.Time) {
	if c == nil || !c.Active() {
		return
	}
	t := at
	c.EndedAt = &t
	a, b := c.Participants[0], c.Participants[1]
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if av := w.Avatar(pair[0]); av != nil && av.ConversationTarget == pair[1] {
			av.ConversationTarget = ""
			av.CurrentAction = ""
		}
	}
	w.pruneEndedConversations()
}

func (w *World) pruneEndedConversations() {
	ended := 0
	for i := range w.Conversations {
		if !w.Conversations[i].Active() {
			ended++
		}
	}
	drop := ended - maxEndedConversations
	if drop <= 0 {
		return
	}
	kept := w.Conversations[:0]
	for _, c := range w.Conversations {
		if drop > 0 && !c.Active() {
			drop--
			continue
		}
		kept = append(kept, c)
	}
	w.Conversations = kept
}

// RemoveAvatar deletes the avatar and ends its conversation. It enforces the
// MinAvatars floor.
func (w *World) RemoveAvatar(id string, at time.Time) error {
	idx := -1
	for i := range w.Avatars {
		if w.Avatars[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("avatar %s: %w", id, ErrNotFound)
	}
	if len(w.Avatars) <= MinAvatars {
		return ErrTooFewAvatars
	}
	for {
		c := w.ActiveConversationOf(id)
		if c == nil {
			break
		}
		w.EndConversation(c, at)
	}
	// A partner pointing at the removed avatar without a conversation record
	// would violate the pairing invariant.
	for i := range w.Avatars {
		if w.Avatars[i].ConversationTarget == id {
			w.Avatars[i].ConversationTarget = ""
			w.Avatars[i].CurrentAction = ""
		}
	}
	w.Avatars = append(w.Avatars[:idx:idx], w.Avatars[idx+1:]...)
	return nil
}

// Resize changes the board size, clamping every entity into the new bounds
// and dropping obstacles that would lie entirely outside them.
func (w *World) Resize(size geom.Size) {
	w.Settings.BoardSize = size
	for i := range w.Avatars {
		w.Avatars[i].Position = geom.ClampToBounds(w.Avatars[i].Position, size)
	}
	for i := range w.Objects {
		w.Objects[i].Position = geom.ClampToBounds(w.Objects[i].Position, size)
	}
	kept := w.Obstacles[:0]
	for _, o := range w.Obstacles {
		if o.Position.X > size.Width || o.Position.Y > size.Height {
			continue
		}
		o.Position = geom.ClampToBounds(o.Position, size)
		kept = append(kept, o)
	}
	w.Obstacles = kept
}
