// Command oracle serves the built-in random oracle over JSON/HTTP and,
// optionally, gRPC so the server's http and grpc provider kinds can be run
// against a local process.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"avatarsim.ai/internal/oracle"
	"avatarsim.ai/internal/oracle/grpcoracle"
	"avatarsim.ai/internal/oracle/httporacle"
	"avatarsim.ai/internal/oracle/local"
)

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:8090", "http listen address")
		grpcAddr = flag.String("grpc_addr", "", "grpc listen address, e.g. 127.0.0.1:8091 (disabled when empty)")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
		logLevel = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(*logLevel)
	if err != nil {
		panic(err)
	}
	cfg.Level = lvl
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	backend := logged{Backend: local.New(*seed), log: logger}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var gs *grpc.Server
	if *grpcAddr != "" {
		lis, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		gs = grpc.NewServer()
		grpcoracle.Register(gs, backend)
		go func() {
			if err := gs.Serve(lis); err != nil {
				logger.Error("grpc serve", zap.Error(err))
				cancel()
			}
		}()
		logger.Info("grpc listening", zap.String("addr", *grpcAddr))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           httporacle.Handler(backend),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		if gs != nil {
			gs.GracefulStop()
		}
	}()

	logger.Info("listening", zap.String("addr", *addr), zap.Uint64("seed", *seed))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("ListenAndServe", zap.Error(err))
		os.Exit(1)
	}
}

type logged struct {
	oracle.Backend
	log *zap.Logger
}

func (l logged) Decide(ctx context.Context, req oracle.DecisionRequest) (oracle.Decision, error) {
	d, err := l.Backend.Decide(ctx, req)
	l.log.Debug("decide", zap.String("avatar", req.AvatarID), zap.String("action", string(d.Action)), zap.Error(err))
	return d, err
}

func (l logged) Interact(ctx context.Context, req oracle.InteractionRequest) (oracle.InteractionResult, error) {
	r, err := l.Backend.Interact(ctx, req)
	l.log.Debug("interact", zap.String("object", req.ObjectID), zap.Error(err))
	return r, err
}
