package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"jarvis/internal/adapter/auth"
	"jarvis/internal/adapter/gateway"
	"jarvis/internal/adapter/store"
	"jarvis/internal/infra/config"
	"jarvis/internal/usecase"
)

const serveLongDesc = `Start the HTTP and WebSocket API.

The server exposes authentication, chat, streaming chat over /ws and the
admin endpoints. An admin account is created from auth.admin when none
exists, and the retention job prunes idle threads when enabled.`

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket API",
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath, addr, cmd.Flags().Changed("addr"))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides gateway.addr")
	return cmd
}

func runServe(ctx context.Context, configPath, addr string, addrSet bool) error {
	a, err := newApp(ctx, configPath, config.CLIOverrides{})
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	if addrSet {
		cfg.Gateway.Addr = addr
	}
	if cfg.Auth.JWTSecret == config.DefaultJWTSecret {
		a.log.Warn("auth.jwt_secret is the built-in default, set JARVIS_JWT_SECRET in production")
	}

	users, err := store.NewSQLiteUserStore(filepath.Clean(cfg.Auth.DBPath))
	if err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	defer users.Close()

	issuer, err := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	hasher := auth.NewBcryptHasher(0)

	authSvc := usecase.NewAuthService(usecase.AuthDeps{Users: users, Hasher: hasher, Tokens: issuer, Logger: a.log})
	seed := cfg.Auth.Admin
	if _, err := authSvc.SeedAdmin(ctx, seed.Username, seed.Email, seed.Password); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if rc := cfg.Store.Retention; rc.Enabled {
		job := usecase.NewRetentionJob(a.sessions, rc.Schedule, rc.MaxAge, a.log)
		if err := job.Start(ctx); err != nil {
			return fmt.Errorf("retention job: %w", err)
		}
		defer job.Stop()
	}

	admin := usecase.NewAdminService(usecase.AdminDeps{
		Users: users, Configs: users, Sessions: a.sessions, Hasher: hasher, Logger: a.log,
	})
	handler := gateway.NewHandler(ctx, gateway.HandlerDeps{
		Auth:          authSvc,
		Admin:         admin,
		Chat:          a.chatService(),
		Settings:      usecase.NewSettingsResolver(a.defaults(), users),
		Authorizer:    &usecase.RBACAuthorizer{},
		Tools:         a.tools,
		Engines:       a.engines,
		Metrics:       a.metrics,
		DefaultThread: cfg.Agent.SessionID,
		Version:       version,
		Logger:        a.log,
	}, cfg.Gateway)

	return gateway.NewServer(handler, cfg.Gateway, a.log).Start(ctx)
}
