package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-hazard/internal/cache"
	"github.com/joeblew999/plat-hazard/internal/config"
	"github.com/joeblew999/plat-hazard/internal/logger"
	"github.com/joeblew999/plat-hazard/internal/server"
	"github.com/joeblew999/plat-hazard/internal/store"
)

// Options defines the process flags and env vars of the portal.
// Flags: --host, --port, --web-dir, --config, --secure-cookies
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_WEB_DIR, SERVICE_CONFIG, SERVICE_SECURE_COOKIES
// Everything else lives in hazard.yaml (or HAZARD_* env vars).
type Options struct {
	Host          string `doc:"Host to bind to" default:"0.0.0.0"`
	Port          int    `doc:"Port to listen on" short:"p" default:"8087"`
	WebDir        string `doc:"Optional web/ directory with static assets and fragment overrides" default:""`
	Config        string `doc:"Path to hazard.yaml; looked up in . and ./config when empty" short:"c" default:""`
	SecureCookies bool   `doc:"Mark the session cookie Secure" default:"false"`
}

// app holds what every command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	srv    *server.Server
}

// newApp loads the configuration and builds the server. Without withStore
// the server runs without store or cache, which is enough to describe the API.
func newApp(ctx context.Context, opts *Options, withStore bool) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewLogger(cfg.Env, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	var (
		st store.Store
		c  cache.Cache
	)
	if withStore {
		st, err = openStore(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		c, err = openCache(cfg)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	srv, err := server.New(server.Config{
		Host:          opts.Host,
		Port:          fmt.Sprintf("%d", opts.Port),
		WebDir:        opts.WebDir,
		SecureCookies: opts.SecureCookies,
		Portal:        cfg,
	}, st, c, log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: log, srv: srv}, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:          cfg.Store.Driver,
		DSN:             cfg.Store.DSN,
		DataDir:         cfg.DataDir,
		MaxConns:        cfg.Store.MaxConns,
		MinConns:        cfg.Store.MinConns,
		MaxConnLifetime: cfg.Store.MaxConnLifetime,
	})
	if err != nil {
		return nil, err
	}
	log.Info("store opened", zap.String("driver", st.Driver()))

	if cfg.Store.Seed == "" {
		return st, nil
	}
	duck, ok := st.(*store.DuckDB)
	if !ok {
		log.Warn("store.seed ignored: only duckdb stores are seeded", zap.String("driver", st.Driver()))
		return st, nil
	}
	script, err := os.ReadFile(cfg.Store.Seed)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("read seed script: %w", err)
	}
	if err := duck.Exec(ctx, string(script)); err != nil {
		st.Close()
		return nil, fmt.Errorf("run seed script: %w", err)
	}
	log.Info("store seeded", zap.String("script", cfg.Store.Seed))
	return st, nil
}

func openCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedis(cache.RedisConfig{Addrs: cfg.Cache.Addrs, Prefix: "hazard:"})
	case "none":
		return nil, nil
	default:
		return cache.NewMemory(), nil
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			a      *app
			httpd  *http.Server
			cancel context.CancelFunc
		)

		hooks.OnStart(func() {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			var err error
			a, err = newApp(ctx, opts, true)
			if err != nil {
				fatal("Startup error: %v", err)
			}
			defer func() { _ = a.logger.Sync() }()
			go a.srv.Run(ctx)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-hazard portal starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Store:   %s\n", a.cfg.Store.Driver)
			fmt.Printf("  Data:    %s\n", a.cfg.DataDir)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			httpd = &http.Server{
				Addr:              addr,
				Handler:           a.srv,
				ReadHeaderTimeout: 10 * time.Second,
			}
			if err := httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Fatal("server error", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			if cancel != nil {
				cancel()
			}
			if httpd != nil {
				ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
				defer done()
				if err := httpd.Shutdown(ctx); err != nil {
					a.logger.Error("error during shutdown", zap.Error(err))
				}
			}
			if a != nil {
				if err := a.srv.Close(); err != nil {
					a.logger.Error("error closing store", zap.Error(err))
				}
				a.logger.Info("server stopped")
			}
		})
	})

	cli.Root().Use = "hazard"
	cli.Root().Short = "Geohazard data portal"
	cli.Root().Version = "1.0.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			a, err := newApp(context.Background(), opts, false)
			if err != nil {
				fatal("Error: %v", err)
			}
			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := printDoc(a.srv.OpenAPI(), useYAML); err != nil {
				fatal("Error marshaling spec: %v", err)
			}
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// populate subcommand: print the filter bounds snapshot
	populateCmd := &cobra.Command{
		Use:   "populate",
		Short: "Compute the filter bounds and categories of every dataset",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, opts, true)
			if err != nil {
				fatal("Error: %v", err)
			}
			defer a.srv.Close()

			privileged, _ := cmd.Flags().GetBool("privileged")
			snap, err := a.srv.Services().Populate.Build(ctx, privileged)
			if err != nil {
				fatal("Error building snapshot: %v", err)
			}
			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := printDoc(snap, useYAML); err != nil {
				fatal("Error marshaling snapshot: %v", err)
			}
		}),
	}
	populateCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	populateCmd.Flags().Bool("privileged", false, "Include restricted sources")
	cli.Root().AddCommand(populateCmd)

	cli.Run()
}

func printDoc(v any, useYAML bool) error {
	var (
		output []byte
		err    error
	)
	if useYAML {
		output, err = yaml.Marshal(v)
	} else {
		output, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
