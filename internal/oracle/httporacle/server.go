package httporacle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"avatarsim.ai/internal/oracle"
)

// Handler serves b with the wire format Client speaks. The bearer token, if
// any, is passed through as the request credential.
func Handler(b oracle.Backend) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /decide", func(w http.ResponseWriter, r *http.Request) {
		var req oracle.DecisionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Credential = bearer(r)
		d, err := b.Decide(r.Context(), req)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		writeJSON(w, map[string]any{"decision": d})
	})
	mux.HandleFunc("POST /interact", func(w http.ResponseWriter, r *http.Request) {
		var req oracle.InteractionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Credential = bearer(r)
		res, err := b.Interact(r.Context(), req)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		writeJSON(w, res)
	})
	return mux
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func bearer(r *http.Request) string {
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return tok
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	if ctx.Err() != nil {
		code = http.StatusGatewayTimeout
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
