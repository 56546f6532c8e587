package grpcoracle

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"avatarsim.ai/internal/oracle"
	"avatarsim.ai/internal/sim/geom"
)

type recorder struct {
	gotDecide   oracle.DecisionRequest
	gotInteract oracle.InteractionRequest
}

func (r *recorder) Decide(ctx context.Context, req oracle.DecisionRequest) (oracle.Decision, error) {
	r.gotDecide = req
	return oracle.Decision{Action: oracle.ActionTurn, Parameters: oracle.Parameters{Angle: oracle.Float(-30)}, Thought: "left"}, nil
}

func (r *recorder) Interact(ctx context.Context, req oracle.InteractionRequest) (oracle.InteractionResult, error) {
	r.gotInteract = req
	return oracle.InteractionResult{Reaction: "It hums."}, nil
}

func startServer(t *testing.T, b oracle.Backend) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	Register(s, b)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRoundTrip_Decide(t *testing.T) {
	rec := &recorder{}
	c := startServer(t, rec)

	d, err := c.Decide(context.Background(), oracle.DecisionRequest{
		AvatarID:     "a1",
		Position:     geom.Vec2{X: 12, Y: 34},
		Orientation:  90,
		BoardSize:    geom.Size{Width: 500, Height: 500},
		LegalActions: []oracle.Action{oracle.ActionTurn, oracle.ActionIdle},
		Credential:   "secret",
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != oracle.ActionTurn || d.Parameters.Angle == nil || *d.Parameters.Angle != -30 || d.Thought != "left" {
		t.Fatalf("decision=%+v", d)
	}
	got := rec.gotDecide
	if got.AvatarID != "a1" || got.Orientation != 90 || got.Position.Y != 34 || len(got.LegalActions) != 2 {
		t.Fatalf("server saw %+v", got)
	}
	if got.Credential != "secret" {
		t.Fatalf("credential=%q", got.Credential)
	}
}

func TestRoundTrip_Interact(t *testing.T) {
	rec := &recorder{}
	c := startServer(t, rec)

	r, err := c.Interact(context.Background(), oracle.InteractionRequest{ObjectID: "o1", Description: "crystal"})
	if err != nil || r.Reaction != "It hums." {
		t.Fatalf("reaction=%+v err=%v", r, err)
	}
	if rec.gotInteract.ObjectID != "o1" || rec.gotInteract.Credential != "" {
		t.Fatalf("server saw %+v", rec.gotInteract)
	}
}
