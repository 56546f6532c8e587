package world

import "go.uber.org/zap"

// LogMirror forwards new event-log entries to a zap logger at the matching
// level.
type LogMirror struct {
	log *zap.Logger
}

func NewLogMirror(l *zap.Logger) *LogMirror {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogMirror{log: l}
}

func (m *LogMirror) Commit(prev, next *World) {
	var after uint64
	if prev != nil {
		after = prev.LogSeq
	}
	for _, e := range next.LogAfter(after) {
		fields := []zap.Field{zap.Uint64("seq", e.Seq)}
		if e.AvatarID != "" {
			fields = append(fields, zap.String("avatar", e.AvatarID))
		}
		switch e.Level {
		case LevelDebug:
			m.log.Debug(e.Message, fields...)
		case LevelWarning:
			m.log.Warn(e.Message, fields...)
		case LevelError:
			m.log.Error(e.Message, fields...)
		default:
			m.log.Info(e.Message, fields...)
		}
	}
}
