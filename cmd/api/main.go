package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/melih/ocomp/internal/adapters/builder"
	"github.com/melih/ocomp/internal/adapters/config"
	"github.com/melih/ocomp/internal/adapters/http"
	"github.com/melih/ocomp/internal/adapters/upload"
	"github.com/melih/ocomp/internal/adapters/workspace"
	"github.com/melih/ocomp/internal/core/services"
	"github.com/melih/ocomp/internal/logfields"
	"github.com/melih/ocomp/internal/metrics"
)

const (
	envPrefix       = "OCOMP_"
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
)

type options struct {
	configDir    string
	addr         string
	migrate      string
	buildTimeout time.Duration
	bodyLimit    int
	retention    time.Duration
	allowGit     bool
	verbose      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("ocomp failed", logfields.Error(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "ocomp",
		Short:         "Build uploaded sources with configured build commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyEnv(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configDir, "config-dir", "", "configuration directory (default ~/.config/ocomp or %APPDATA%\\ocomp)")
	f.StringVar(&opts.addr, "addr", "0.0.0.0:3000", "listen address")
	f.StringVar(&opts.migrate, "migrate", string(config.PolicyFail), "on config version mismatch: fail, overwrite or prompt")
	f.DurationVar(&opts.buildTimeout, "build-timeout", builder.DefaultTimeout, "default build command timeout")
	f.IntVar(&opts.bodyLimit, "body-limit", 64<<20, "maximum upload size in bytes")
	f.DurationVar(&opts.retention, "workspace-retention", 0, "delete workspaces older than this (0 keeps them until restart)")
	f.BoolVar(&opts.allowGit, "allow-git", false, "accept a repository form field and clone it into the workspace")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

// applyEnv fills flags not given on the command line from OCOMP_* variables,
// reading .env first when present.
func applyEnv(flags *pflag.FlagSet) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(key); ok {
			if err := f.Value.Set(v); err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			}
		}
	})
	return errors.Join(errs...)
}

func run(ctx context.Context, opts *options) error {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	// 1. Load configuration
	policy, err := config.ParseMigrationPolicy(opts.migrate)
	if err != nil {
		return err
	}
	storeOpts := []config.Option{config.WithMigrationPolicy(policy)}
	if policy == config.PolicyPrompt && config.IsInteractive() {
		storeOpts = append(storeOpts, config.WithPrompter(config.TerminalPrompter{}))
	}
	store, err := config.NewStore(opts.configDir, storeOpts...)
	if err != nil {
		return err
	}
	cfg, err := store.Load()
	if err != nil {
		return err
	}

	// 2. Prepare the upload root
	workspaces := workspace.NewManager(filepath.Join(store.Dir(), workspace.UploadsDir))
	if err := workspaces.Init(); err != nil {
		return err
	}
	if err := workspaces.StartRetention(opts.retention, sweepInterval); err != nil {
		return err
	}
	defer func() {
		if err := workspaces.Stop(); err != nil {
			slog.Warn("Failed to stop workspace retention", logfields.Error(err))
		}
	}()

	// 3. Wire the build service
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc, err := services.NewBuildService(
		workspaces,
		upload.NewReceiver(upload.WithRepositories(opts.allowGit)),
		builder.NewBuilderAdapter(builder.WithTimeout(opts.buildTimeout)),
		metrics.NewPrometheusRecorder(reg),
	)
	if err != nil {
		return err
	}

	// 4. Bind one POST and one GET route per target
	table := http.NewRouteTable(cfg)
	app := http.NewServer(http.ServerConfig{BodyLimit: opts.bodyLimit, AccessLog: opts.verbose},
		table, http.NewBuildHandler(svc, table), reg)
	for _, r := range table.Routes() {
		slog.Debug("Bound route", slog.String("method", r.Method), logfields.Path(r.Path), logfields.Target(r.Target))
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Watch(ctx, nil); err != nil {
		slog.Warn("Config change notifications disabled", logfields.Error(err))
	}

	// 5. Serve until interrupted
	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.addr, err)
	}
	slog.Info("Starting server", logfields.Addr(ln.Addr().String()), slog.Int("targets", len(cfg.Targets)))
	return serve(ctx, app, ln)
}

// serve runs app on ln until ctx is done, then waits up to shutdownTimeout
// for in-flight requests to finish.
func serve(ctx context.Context, app *fiber.App, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("Bye-bye!")
	return nil
}
