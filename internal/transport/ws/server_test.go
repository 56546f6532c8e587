package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"avatarsim.ai/internal/protocol"
	"avatarsim.ai/internal/sim/world"
	"avatarsim.ai/internal/sim/worldtest"
)

type fakeSaver struct {
	path string
	err  error
}

func (f *fakeSaver) Save() (string, error) { return f.path, f.err }

type envelope struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref"`
	Code    string          `json:"code"`
	Version uint64          `json:"version"`
	World   json.RawMessage `json:"world"`
	Result  json.RawMessage `json:"result"`
}

func startServer(t *testing.T, saver Saver) (*worldtest.Harness, *httptest.Server) {
	t.Helper()
	h := worldtest.NewHarness(t, worldtest.Trio())
	s := NewServer(h.Store, saver, Options{})
	mux := http.NewServeMux()
	s.Routes(mux, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// next reads messages until one of type typ arrives.
func next(t *testing.T, conn *websocket.Conn, typ string) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var e envelope
		if err := json.Unmarshal(b, &e); err != nil {
			t.Fatalf("decode %s: %v", b, err)
		}
		if e.Type == typ {
			return e
		}
	}
}

// reply reads messages until the ACK or ERROR for ref arrives.
func reply(t *testing.T, conn *websocket.Conn, ref string) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var e envelope
		_ = json.Unmarshal(b, &e)
		if (e.Type == protocol.TypeAck || e.Type == protocol.TypeError) && e.Ref == ref {
			return e
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, id, cmd string, args any) {
	t.Helper()
	m := map[string]any{"type": protocol.TypeCmd, "protocol_version": protocol.Version, "id": id, "cmd": cmd}
	if args != nil {
		m["args"] = args
	}
	if err := conn.WriteJSON(m); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServer_PushesWorldOnConnectAndCommit(t *testing.T) {
	h, srv := startServer(t, nil)
	conn := dial(t, srv)

	first := next(t, conn, protocol.TypeWorld)
	var w world.World
	if err := json.Unmarshal(first.World, &w); err != nil || len(w.Avatars) != 3 {
		t.Fatalf("initial world: avatars=%d err=%v", len(w.Avatars), err)
	}

	h.Store.SetRunning(true)
	for {
		e := next(t, conn, protocol.TypeWorld)
		if e.Version > first.Version {
			var w world.World
			_ = json.Unmarshal(e.World, &w)
			if !w.Running {
				t.Fatalf("pushed world not running")
			}
			break
		}
	}
}

func TestServer_Commands(t *testing.T) {
	h, srv := startServer(t, &fakeSaver{path: "/data/saves/1.snap.zst"})
	conn := dial(t, srv)
	next(t, conn, protocol.TypeWorld)

	send(t, conn, "c1", protocol.CmdAddAvatar, nil)
	if e := reply(t, conn, "c1"); e.Type != protocol.TypeAck {
		t.Fatalf("add avatar: %+v", e)
	}
	if n := len(h.Store.Snapshot().Avatars); n != 4 {
		t.Fatalf("avatars=%d", n)
	}

	send(t, conn, "c2", protocol.CmdRemoveAvatar, map[string]any{"id": "nope"})
	if e := reply(t, conn, "c2"); e.Type != protocol.TypeError || e.Code != protocol.ErrNotFound {
		t.Fatalf("remove unknown: %+v", e)
	}

	ids := h.IDs()
	for i, id := range ids[:2] {
		ref := "rm" + string(rune('a'+i))
		send(t, conn, ref, protocol.CmdRemoveAvatar, map[string]any{"id": id})
		if e := reply(t, conn, ref); e.Type != protocol.TypeAck {
			t.Fatalf("remove %s: %+v", id, e)
		}
	}
	send(t, conn, "c3", protocol.CmdRemoveAvatar, map[string]any{"id": ids[2]})
	if e := reply(t, conn, "c3"); e.Code != protocol.ErrTooFewAvatars {
		t.Fatalf("remove below floor: %+v", e)
	}

	send(t, conn, "c4", protocol.CmdAddObstacle, map[string]any{"position": map[string]float64{"x": 1, "y": 1}, "size": map[string]float64{"width": 0, "height": 5}})
	if e := reply(t, conn, "c4"); e.Code != protocol.ErrBadRequest {
		t.Fatalf("zero-size obstacle: %+v", e)
	}

	send(t, conn, "c5", protocol.CmdSetRunning, map[string]any{"running": true})
	if e := reply(t, conn, "c5"); e.Type != protocol.TypeAck || string(e.Result) != `{"running":true}` {
		t.Fatalf("set running: %+v", e)
	}

	send(t, conn, "c6", protocol.CmdSave, nil)
	if e := reply(t, conn, "c6"); e.Type != protocol.TypeAck || !strings.Contains(string(e.Result), "1.snap.zst") {
		t.Fatalf("save: %+v", e)
	}

	send(t, conn, "c7", "FLY", nil)
	if e := reply(t, conn, "c7"); e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("unknown command: %+v", e)
	}
}

func TestServer_RejectsNonCommands(t *testing.T) {
	_, srv := startServer(t, nil)
	conn := dial(t, srv)
	next(t, conn, protocol.TypeWorld)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO"}`))
	if e := next(t, conn, protocol.TypeError); e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("non-command: %+v", e)
	}
}

func TestExec_SaveWithoutPersistence(t *testing.T) {
	h := worldtest.NewHarness(t, worldtest.Trio())
	s := NewServer(h.Store, nil, Options{})
	_, err := s.Exec(protocol.CmdMsg{ID: "c1", Cmd: protocol.CmdSave})
	if errorCode(err) != protocol.ErrConflict {
		t.Fatalf("err=%v", err)
	}

	s = NewServer(h.Store, &fakeSaver{err: errors.New("disk full")}, Options{})
	if _, err := s.Exec(protocol.CmdMsg{ID: "c2", Cmd: protocol.CmdSave}); errorCode(err) != protocol.ErrInternal {
		t.Fatalf("err=%v", err)
	}
}

func TestHTTP_Endpoints(t *testing.T) {
	h, srv := startServer(t, nil)
	h.Store.SetRunning(true)
	h.Store.SetRunning(false)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	var events []world.LogEntry
	getJSON(t, srv.URL+"/v1/events?after=1", &events)
	if len(events) != 1 || events[0].Message != "simulation paused" {
		t.Fatalf("events=%+v", events)
	}

	var saved struct {
		Avatars []json.RawMessage `json:"avatars"`
	}
	getJSON(t, srv.URL+"/v1/saved", &saved)
	if len(saved.Avatars) != 3 {
		t.Fatalf("saved avatars=%d", len(saved.Avatars))
	}

	resp, err = http.Get(srv.URL + "/v1/events?after=x")
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad after: %v %v", resp, err)
	}
	resp.Body.Close()
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:5555":     true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
