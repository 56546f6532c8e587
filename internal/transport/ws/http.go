package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"avatarsim.ai/internal/persistence/indexdb"
	"avatarsim.ai/internal/persistence/snapshot"
	"avatarsim.ai/internal/sim/world"
)

// History is the queryable record kept by the SQLite index.
type History interface {
	Events(ctx context.Context, after uint64, limit int) ([]world.LogEntry, error)
	Conversations(ctx context.Context, avatarID string, limit int) ([]indexdb.ConversationRow, error)
	Messages(ctx context.Context, conversationID string) ([]world.Message, error)
}

// Routes registers the websocket endpoint and the read-only HTTP API on mux.
// history may be nil; event queries then fall back to the in-memory log.
func (s *Server) Routes(mux *http.ServeMux, history History) {
	mux.HandleFunc("/v1/ws", s.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /v1/world", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSONResponse(w, s.store.Snapshot())
	})
	mux.HandleFunc("GET /v1/saved", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSONResponse(w, snapshot.Project(s.store.Snapshot()))
	})
	mux.HandleFunc("GET /v1/events", func(w http.ResponseWriter, r *http.Request) {
		after, err := uintParam(r, "after")
		if err != nil {
			http.Error(w, "bad after", http.StatusBadRequest)
			return
		}
		limit, err := uintParam(r, "limit")
		if err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		var out []world.LogEntry
		if history != nil {
			out, err = history.Events(r.Context(), after, int(limit))
			if err != nil {
				s.log.Warn("history events", zap.Error(err))
				http.Error(w, "history unavailable", http.StatusInternalServerError)
				return
			}
		} else {
			out = s.store.Snapshot().LogAfter(after)
			if limit > 0 && uint64(len(out)) > limit {
				out = out[:limit]
			}
		}
		if out == nil {
			out = []world.LogEntry{}
		}
		s.writeJSONResponse(w, out)
	})
	if history == nil {
		return
	}
	mux.HandleFunc("GET /v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		limit, err := uintParam(r, "limit")
		if err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		out, err := history.Conversations(r.Context(), r.URL.Query().Get("avatar"), int(limit))
		if err != nil {
			s.log.Warn("history conversations", zap.Error(err))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		if out == nil {
			out = []indexdb.ConversationRow{}
		}
		s.writeJSONResponse(w, out)
	})
	mux.HandleFunc("GET /v1/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		out, err := history.Messages(r.Context(), r.PathValue("id"))
		if err != nil {
			s.log.Warn("history messages", zap.Error(err))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		if out == nil {
			out = []world.Message{}
		}
		s.writeJSONResponse(w, out)
	})
}

func uintParam(r *http.Request, name string) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("write response", zap.Error(err))
	}
}
