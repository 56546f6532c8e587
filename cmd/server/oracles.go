package main

import (
	"fmt"

	"go.uber.org/zap"

	"avatarsim.ai/internal/config"
	"avatarsim.ai/internal/oracle"
	"avatarsim.ai/internal/oracle/gemini"
	"avatarsim.ai/internal/oracle/grpcoracle"
	"avatarsim.ai/internal/oracle/httporacle"
	"avatarsim.ai/internal/oracle/local"
)

// buildRouter registers one backend per configured provider. The returned
// func releases backend connections.
func buildRouter(cfg config.Config, logger *zap.Logger) (*oracle.Router, func(), error) {
	router := oracle.NewRouter(logger, cfg.OracleTimeout())
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	for _, p := range cfg.Oracle.Providers {
		var b oracle.Backend
		switch p.Kind {
		case config.KindLocal:
			b = local.New(p.Seed)
		case config.KindHTTP:
			b = httporacle.New(p.Endpoint, cfg.OracleTimeout())
		case config.KindGemini:
			b = gemini.New(gemini.Config{Model: p.Model, BaseURL: p.Endpoint})
		case config.KindGRPC:
			c, err := grpcoracle.Dial(p.Endpoint)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("provider %s: %w", p.Name, err)
			}
			closers = append(closers, c.Close)
			b = c
		default:
			closeAll()
			return nil, nil, fmt.Errorf("provider %s: unknown kind %q", p.Name, p.Kind)
		}
		cred := p.Credential()
		if p.CredentialEnv != "" && cred == "" {
			logger.Warn("provider credential not set", zap.String("provider", p.Name), zap.String("env", p.CredentialEnv))
		}
		router.Register(p.Name, b, cred)
	}
	return router, closeAll, nil
}
