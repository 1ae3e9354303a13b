// Command server runs the sluice gateway.
//
// Configuration is read from a YAML file plus SLUICE_* environment
// overrides; see pkg/config for the full set. The config file is found
// via the -config flag, the SLUICE_CONFIG variable, or the default
// search paths (./config.yaml, /etc/sluice/config.yaml).
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sluice-dev/sluice/pkg/auth"
	"github.com/sluice-dev/sluice/pkg/auth/apikey"
	"github.com/sluice-dev/sluice/pkg/auth/jwt"
	"github.com/sluice-dev/sluice/pkg/auth/noop"
	"github.com/sluice-dev/sluice/pkg/config"
	"github.com/sluice-dev/sluice/pkg/debug"
	"github.com/sluice-dev/sluice/pkg/engine"
	"github.com/sluice-dev/sluice/pkg/provider"
	"github.com/sluice-dev/sluice/pkg/provider/ollama"
	"github.com/sluice-dev/sluice/pkg/provider/openai"
	"github.com/sluice-dev/sluice/pkg/retry"
	transporthttp "github.com/sluice-dev/sluice/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default: SLUICE_CONFIG, ./config.yaml, /etc/sluice/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := debug.Init()

	// Build one provider per configured backend.
	backends := make(map[string]provider.Provider, len(cfg.Backends))
	timeouts := provider.Timeouts{
		Connect:   cfg.Timeouts.Connect,
		FirstByte: cfg.Timeouts.FirstByte,
		Stall:     cfg.Timeouts.Stall,
		Request:   cfg.Timeouts.Request,
	}
	for name, bcfg := range cfg.Backends {
		prov, err := buildBackend(name, bcfg, timeouts, cfg.Limits.MaxFrameBytes)
		if err != nil {
			return fmt.Errorf("backend %q: %w", name, err)
		}
		defer prov.Close()
		backends[name] = prov
		logger.Info("backend configured",
			slog.String("name", name),
			slog.String("format", bcfg.Format),
			slog.String("base_url", bcfg.BaseURL))
	}

	registry, err := provider.NewRegistry(backends, cfg.Routing.Models, cfg.Routing.Default)
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}

	eng, err := engine.New(registry, engine.Config{
		DefaultModel: cfg.Routing.DefaultModel,
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Jitter:      cfg.Retry.Jitter,
		},
		EstimateUsage: cfg.Usage.EstimateTokens,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	chain, cleanup, err := buildAuthChain(cfg.Auth)
	if err != nil {
		return fmt.Errorf("building auth chain: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	var limiter auth.RateLimiter
	if cfg.Auth.RateLimitRPM > 0 {
		limiter = auth.NewInProcessLimiter(cfg.Auth.RateLimitRPM)
	}

	srv := transporthttp.NewServer(eng, eng, eng,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodyBytes),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithWriteTimeout(cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
		transporthttp.WithHTTPMiddleware(
			auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints),
		),
	)

	logger.Info("server starting",
		slog.Int("port", cfg.Server.Port),
		slog.String("auth", cfg.Auth.Type),
		slog.Int("backends", len(backends)))
	return srv.ListenAndServe()
}

// buildBackend constructs an adapter for one upstream according to its
// configured wire format.
func buildBackend(name string, bcfg config.BackendConfig, timeouts provider.Timeouts, maxFrameBytes int) (provider.Provider, error) {
	switch bcfg.Format {
	case "openai":
		return openai.New(name, openai.Config{
			BaseURL:       bcfg.BaseURL,
			APIKey:        bcfg.APIKey,
			Timeouts:      timeouts,
			MaxFrameBytes: maxFrameBytes,
		})
	case "ollama":
		return ollama.New(name, ollama.Config{
			BaseURL:       bcfg.BaseURL,
			Timeouts:      timeouts,
			MaxFrameBytes: maxFrameBytes,
		})
	default:
		return nil, fmt.Errorf("unknown backend format %q", bcfg.Format)
	}
}

// buildAuthChain assembles the authenticator chain from configuration.
// The returned cleanup releases authenticator resources (key cache) and
// may be nil.
func buildAuthChain(cfg config.AuthConfig) (*auth.Chain, func(), error) {
	switch cfg.Type {
	case "", "none":
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{&noop.Authenticator{}},
			DefaultDecision: auth.Yes,
		}, nil, nil

	case "apikey":
		entries := make([]apikey.KeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			entries = append(entries, apikey.KeyEntry{
				Hash: k.Hash,
				Identity: auth.Identity{
					Subject: k.Subject,
					Tenant:  k.Tenant,
				},
			})
		}
		a, err := apikey.New(entries)
		if err != nil {
			return nil, nil, err
		}
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{a},
			DefaultDecision: auth.No,
		}, a.Close, nil

	case "jwt":
		a, err := jwt.New(jwt.Config{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		})
		if err != nil {
			return nil, nil, err
		}
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{a},
			DefaultDecision: auth.No,
		}, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}
}
