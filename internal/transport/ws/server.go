package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"avatarsim.ai/internal/protocol"
	"avatarsim.ai/internal/sim/world"
)

// Saver forces a snapshot write for the SAVE command.
type Saver interface {
	Save() (string, error)
}

type Options struct {
	// AllowRemoteCommands accepts CMD messages from non-loopback peers.
	// World updates are always pushed.
	AllowRemoteCommands bool
}

// Server pushes the world to presentation clients and applies their
// mutation commands to the store.
type Server struct {
	store *world.Store
	saver Saver
	opts  Options
	log   *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(store *world.Store, saver Saver, opts Options) *Server {
	return &Server{
		store: store,
		saver: saver,
		opts:  opts,
		log:   store.Logger().Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		canMutate := s.opts.AllowRemoteCommands || isLoopbackRemote(r.RemoteAddr)
		log := s.log.With(zap.String("remote", r.RemoteAddr))
		log.Debug("client connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		updates, stop := s.store.Watch()
		defer stop()
		replies := make(chan []byte, 16)

		// Writer goroutine. World pushes are latest-wins: commits that land
		// while a write is in flight collapse into one WORLD message.
		writeErr := make(chan error, 1)
		go func() {
			var sent uint64
			push := func() error {
				w := s.store.Snapshot()
				if sent != 0 && w.Version == sent {
					return nil
				}
				if err := writeJSON(conn, protocol.WorldMsg{
					Type:            protocol.TypeWorld,
					ProtocolVersion: protocol.Version,
					Version:         w.Version,
					World:           w,
				}); err != nil {
					return err
				}
				sent = w.Version
				return nil
			}
			if err := push(); err != nil {
				writeErr <- err
				cancel()
				return
			}
			for {
				var err error
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case <-updates:
					err = push()
				case b := <-replies:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					err = conn.WriteMessage(websocket.TextMessage, b)
				}
				if err != nil {
					writeErr <- err
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.handle(msg, canMutate)
			b, err := json.Marshal(reply)
			if err != nil {
				log.Error("marshal reply", zap.Error(err))
				continue
			}
			select {
			case replies <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		log.Debug("client disconnected")
	}
}

func (s *Server) handle(msg []byte, canMutate bool) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "malformed message")
	}
	if base.Type != protocol.TypeCmd {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
	}
	cmd, err := protocol.DecodeCmd(msg)
	if err != nil {
		return protocol.NewError(cmd.ID, protocol.ErrProtoBadRequest, err.Error())
	}
	if !canMutate {
		return protocol.NewError(cmd.ID, protocol.ErrProtoBadRequest, "commands are accepted from loopback clients only")
	}
	result, err := s.Exec(cmd)
	if err != nil {
		code := errorCode(err)
		if code == protocol.ErrInternal {
			s.log.Error("command failed", zap.String("cmd", cmd.Cmd), zap.Error(err))
		}
		return protocol.NewError(cmd.ID, code, err.Error())
	}
	return protocol.NewAck(cmd.ID, result)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, world.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, world.ErrTooFewAvatars):
		return protocol.ErrTooFewAvatars
	case errors.Is(err, world.ErrBadRequest), errors.Is(err, errBadArgs):
		return protocol.ErrBadRequest
	case errors.Is(err, errConflict):
		return protocol.ErrConflict
	default:
		return protocol.ErrInternal
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
