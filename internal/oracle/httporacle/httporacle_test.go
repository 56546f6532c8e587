package httporacle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"avatarsim.ai/internal/oracle"
)

func TestDecide_SendsRequestAndParsesWrappedDecision(t *testing.T) {
	var gotAuth string
	var got oracle.DecisionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/decide" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"decision":{"action":"move","parameters":{"distance":20}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	d, err := c.Decide(context.Background(), oracle.DecisionRequest{
		AvatarID:     "a1",
		LegalActions: []oracle.Action{oracle.ActionMove},
		Credential:   "tok",
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != oracle.ActionMove || d.Parameters.Distance == nil || *d.Parameters.Distance != 20 {
		t.Fatalf("decision=%+v", d)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth=%q", gotAuth)
	}
	if got.AvatarID != "a1" || got.Credential != "" {
		t.Fatalf("request=%+v", got)
	}
}

func TestInteract_PlainTextReaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("The lid creaks."))
	}))
	defer srv.Close()

	r, err := New(srv.URL, time.Second).Interact(context.Background(), oracle.InteractionRequest{ObjectID: "o"})
	if err != nil || r.Reaction != "The lid creaks." {
		t.Fatalf("reaction=%+v err=%v", r, err)
	}
}

func TestDecide_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Decide(context.Background(), oracle.DecisionRequest{})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}
