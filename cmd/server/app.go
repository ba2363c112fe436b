package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/exammaker/pkg/auth"
	"github.com/rhuss/exammaker/pkg/auth/jwt"
	"github.com/rhuss/exammaker/pkg/config"
	"github.com/rhuss/exammaker/pkg/password"
	"github.com/rhuss/exammaker/pkg/registration"
	"github.com/rhuss/exammaker/pkg/session"
	"github.com/rhuss/exammaker/pkg/storage"
	"github.com/rhuss/exammaker/pkg/storage/memory"
	"github.com/rhuss/exammaker/pkg/storage/postgres"
	transporthttp "github.com/rhuss/exammaker/pkg/transport/http"
)

// stores holds the two independent backends.
type stores struct {
	credentials storage.CredentialStore
	tenants     storage.TenantStore
}

func (s *stores) Close() error {
	var errs []error
	if s.credentials != nil {
		errs = append(errs, s.credentials.Close())
	}
	if s.tenants != nil {
		errs = append(errs, s.tenants.Close())
	}
	return errors.Join(errs...)
}

// openStores opens both stores. Postgres pools are dialed concurrently;
// if either fails the other is closed again.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage.Type == "memory" {
		slog.Info("storage enabled", "type", "memory")
		return &stores{
			credentials: memory.NewCredentialStore(),
			tenants:     memory.NewTenantStore(),
		}, nil
	}

	st := &stores{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := postgres.NewCredentialStore(gctx, postgresConfig(cfg.Storage.Credentials))
		if err != nil {
			return fmt.Errorf("credential store: %w", err)
		}
		st.credentials = s
		return nil
	})
	g.Go(func() error {
		s, err := postgres.NewTenantStore(gctx, postgresConfig(cfg.Storage.Tenants))
		if err != nil {
			return fmt.Errorf("tenant store: %w", err)
		}
		st.tenants = s
		return nil
	})
	if err := g.Wait(); err != nil {
		st.Close()
		return nil, err
	}
	slog.Info("storage enabled", "type", "postgres")
	return st, nil
}

func postgresConfig(pc config.PostgresConfig) postgres.Config {
	return postgres.Config{
		DSN:            pc.DSN,
		MaxConns:       pc.MaxConns,
		MigrateOnStart: pc.MigrateOnStart,
	}
}

// app is the fully wired service.
type app struct {
	stores  *stores
	handler http.Handler
	logger  *slog.Logger
}

func (a *app) Close() error { return a.stores.Close() }

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := slog.Default()

	secret, err := cfg.PasswordSecretBytes()
	if err != nil {
		return nil, err
	}
	hasher, err := password.New(password.Params{
		Memory:      cfg.Password.MemoryKiB,
		Iterations:  cfg.Password.Iterations,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	}, secret)
	if err != nil {
		return nil, err
	}

	signer, err := session.NewSigner(session.SignerConfig{
		Key:        []byte(cfg.JWT.Key),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt signer: %w", err)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	issuer, err := session.NewIssuer(st.credentials, st.tenants, hasher, signer, logger.With("component", "session"))
	if err != nil {
		st.Close()
		return nil, err
	}
	coord := registration.New(st.credentials, st.tenants, hasher, logger.With("component", "registration"),
		registration.WithInviteTTL(cfg.Invite.DefaultTTL, cfg.Invite.MaxTTL))

	httpCfg := transporthttp.Config{
		MaxBodySize:    cfg.Server.MaxBodySize,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
	}
	chain := &auth.AuthChain{Authenticators: []auth.Authenticator{
		jwt.New(signer, session.NewRevocationGuard(st.tenants)),
	}}
	memberLimiter := auth.NewKeyedLimiter(cfg.RateLimit.Member.RequestsPerSecond, cfg.RateLimit.Member.Burst)

	adapter := transporthttp.NewAdapter(coord, issuer, httpCfg,
		transporthttp.WithAdapterLogger(logger),
		transporthttp.WithAuth(auth.Middleware(chain, memberLimiter, httpCfg.BypassEndpoints())),
		transporthttp.WithIPRateLimit(auth.NewKeyedLimiter(cfg.RateLimit.IP.RequestsPerSecond, cfg.RateLimit.IP.Burst)),
		transporthttp.WithHealthCheck("credentials", st.credentials),
		transporthttp.WithHealthCheck("tenants", st.tenants),
	)

	logger.Info("exammaker configured",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Type,
		"access_ttl", cfg.JWT.AccessTTL,
		"refresh_ttl", cfg.JWT.RefreshTTL,
		"metrics", cfg.Observability.Metrics.Enabled,
	)
	return &app{stores: st, handler: adapter.Handler(), logger: logger}, nil
}
