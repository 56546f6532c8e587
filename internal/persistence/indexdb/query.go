package indexdb

import (
	"context"
	"database/sql"
	"time"

	"avatarsim.ai/internal/sim/world"
)

const maxQueryLimit = 1000

// ConversationRow is a conversation as recorded in the index.
type ConversationRow struct {
	ID           string     `json:"id"`
	Participants [2]string  `json:"participants"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	Messages     int        `json:"messages"`
}

type SaveRow struct {
	Seq     uint64    `json:"seq"`
	Path    string    `json:"path"`
	SavedAt time.Time `json:"savedAt"`
	Avatars int       `json:"avatars"`
}

func clampLimit(n int) int {
	if n <= 0 || n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// Events returns up to limit entries with seq > after, oldest first.
func (s *SQLiteIndex) Events(ctx context.Context, after uint64, limit int) ([]world.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq,id,at,level,COALESCE(avatar_id,''),message FROM events WHERE seq > ? ORDER BY seq LIMIT ?`,
		int64(after), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.LogEntry
	for rows.Next() {
		var (
			e     world.LogEntry
			seq   int64
			at    string
			level string
		)
		if err := rows.Scan(&seq, &e.ID, &at, &level, &e.AvatarID, &e.Message); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Level = world.Level(level)
		e.Time, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Conversations lists conversations involving avatarID (all when empty),
// newest first.
func (s *SQLiteIndex) Conversations(ctx context.Context, avatarID string, limit int) ([]ConversationRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id,c.avatar_a,c.avatar_b,c.started_at,c.ended_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE ? = '' OR c.avatar_a = ? OR c.avatar_b = ?
		ORDER BY c.started_at DESC LIMIT ?`,
		avatarID, avatarID, avatarID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationRow
	for rows.Next() {
		var (
			c       ConversationRow
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Participants[0], &c.Participants[1], &started, &ended, &c.Messages); err != nil {
			return nil, err
		}
		c.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if ended.Valid {
			t, _ := time.Parse(time.RFC3339Nano, ended.String)
			c.EndedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Messages returns the full recorded transcript of a conversation, including
// messages no longer retained in the live world.
func (s *SQLiteIndex) Messages(ctx context.Context, conversationID string) ([]world.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT avatar_id,text,at_ns FROM messages WHERE conversation_id = ? ORDER BY at_ns, avatar_id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.Message
	for rows.Next() {
		var (
			m  world.Message
			ns int64
		)
		if err := rows.Scan(&m.AvatarID, &m.Text, &ns); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(0, ns).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// Saves lists recorded snapshot saves, newest first.
func (s *SQLiteIndex) Saves(ctx context.Context, limit int) ([]SaveRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq,path,saved_at,avatars FROM saves ORDER BY seq DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SaveRow
	for rows.Next() {
		var (
			r   SaveRow
			seq int64
			at  string
		)
		if err := rows.Scan(&seq, &r.Path, &at, &r.Avatars); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.SavedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}
