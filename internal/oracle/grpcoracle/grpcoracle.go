// Package grpcoracle carries oracle requests over gRPC. Messages are
// google.protobuf.Struct values holding the same JSON shapes the HTTP oracle
// uses, so no generated stubs are needed on either side.
package grpcoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"avatarsim.ai/internal/oracle"
)

const (
	ServiceName    = "avatarsim.oracle.v1.Oracle"
	DecideMethod   = "/" + ServiceName + "/Decide"
	InteractMethod = "/" + ServiceName + "/Interact"
)

type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to an oracle service at addr (host:port).
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Decide(ctx context.Context, req oracle.DecisionRequest) (oracle.Decision, error) {
	out, err := c.invoke(ctx, DecideMethod, req.Credential, req)
	if err != nil {
		return oracle.Decision{}, err
	}
	return oracle.ParseDecision(out)
}

func (c *Client) Interact(ctx context.Context, req oracle.InteractionRequest) (oracle.InteractionResult, error) {
	out, err := c.invoke(ctx, InteractMethod, req.Credential, req)
	if err != nil {
		return oracle.InteractionResult{}, err
	}
	return oracle.ParseInteraction(out)
}

func (c *Client) invoke(ctx context.Context, method, credential string, payload any) ([]byte, error) {
	in, err := toStruct(payload)
	if err != nil {
		return nil, err
	}
	if credential != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+credential)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, fmt.Errorf("%s rpc: %w", method, err)
	}
	return json.Marshal(out.AsMap())
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Register exposes b as the oracle service on s.
func Register(s *grpc.Server, b oracle.Backend) {
	s.RegisterService(&serviceDesc, b)
}

func credentialFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("authorization") {
		if tok, ok := strings.CutPrefix(v, "Bearer "); ok {
			return tok
		}
	}
	return ""
}

func decideHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		var r oracle.DecisionRequest
		if err := fromStruct(req.(*structpb.Struct), &r); err != nil {
			return nil, err
		}
		r.Credential = credentialFrom(ctx)
		d, err := srv.(oracle.Backend).Decide(ctx, r)
		if err != nil {
			return nil, err
		}
		return toStruct(d)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: DecideMethod}, handler)
}

func interactHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		var r oracle.InteractionRequest
		if err := fromStruct(req.(*structpb.Struct), &r); err != nil {
			return nil, err
		}
		r.Credential = credentialFrom(ctx)
		res, err := srv.(oracle.Backend).Interact(ctx, r)
		if err != nil {
			return nil, err
		}
		return toStruct(res)
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: InteractMethod}, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*oracle.Backend)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decide", Handler: decideHandler},
		{MethodName: "Interact", Handler: interactHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "avatarsim/oracle/v1/oracle.proto",
}
