// Command simbridge runs probability simulations against an engine module.
//
//	simbridge run -hero "As Ks" -compare "Qc Qd" -trials 20000
//	simbridge worker
//	simbridge serve -workers 4 -http :8080
//	simbridge -i
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/simbridge/engine"
	"github.com/wippyai/simbridge/internal/config"
	"github.com/wippyai/simbridge/internal/httpapi"
	"github.com/wippyai/simbridge/rpc"
	"github.com/wippyai/simbridge/simulation"
)

const usage = `Usage: simbridge <command> [flags]

Commands:
  run      Run one simulation and print the result
  worker   Serve envelopes on stdin/stdout
  serve    Serve simulations over HTTP
  -i       Interactive mode with TUI

Run "simbridge <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCommand(ctx, args)
	case "worker":
		err = workerCommand(ctx, args)
	case "serve":
		err = serveCommand(ctx, args)
	case "-i", "interactive":
		err = interactiveCommand(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseConfig loads the environment and applies command flags on top.
func parseConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	envFile := ""
	for i, a := range args {
		switch {
		case (a == "-env" || a == "--env") && i+1 < len(args):
			envFile = args[i+1]
		case strings.HasPrefix(a, "-env="), strings.HasPrefix(a, "--env="):
			envFile = a[strings.Index(a, "=")+1:]
		}
	}
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return cfg, err
	}
	fs.String("env", envFile, "Env file with SIMBRIDGE_* settings (default .env when present)")
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// newLogger builds the process logger and installs it in the packages
// that log.
func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if cfg.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	log, err := zc.Build()
	if err != nil {
		return nil, err
	}
	engine.SetLogger(log.Named("engine"))
	simulation.SetLogger(log.Named("simulation"))
	rpc.SetLogger(log.Named("rpc"))
	return log, nil
}

func runnerConfig(cfg config.Config) simulation.Config {
	return simulation.Config{
		Engine: engine.Config{
			HeapStart:        cfg.HeapStart,
			MemoryLimitPages: cfg.MemoryLimitPages,
		},
	}
}

// startLocalWorker starts an in-process worker with its own module instance.
func startLocalWorker(ctx context.Context, cfg config.Config) (*rpc.Client, *simulation.Runner, func() error) {
	runner := simulation.NewRunner(cfg.Module, runnerConfig(cfg))
	client, stopClient := rpc.NewLocalWorker(ctx, runner)
	stop := func() error {
		return multierr.Append(stopClient(), runner.Close(context.Background()))
	}
	return client, runner, stop
}

func workerCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	cfg, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	runner := simulation.NewRunner(cfg.Module, runnerConfig(cfg))
	defer runner.Close(context.Background())
	if err := runner.Warm(ctx); err != nil {
		return err
	}

	log.Info("worker ready", zap.String("module", cfg.Module), zap.Int("pid", os.Getpid()))
	return rpc.NewServer(runner).Serve(ctx, rpc.NewStreamConn(os.Stdin, os.Stdout))
}

// workerArgs renders cfg as flags for a spawned worker process.
func workerArgs(cfg config.Config) []string {
	return []string{
		"worker",
		"-module", cfg.Module,
		"-heap-start", strconv.FormatUint(uint64(cfg.HeapStart), 10),
		"-memory-limit", strconv.FormatUint(uint64(cfg.MemoryLimitPages), 10),
		"-log-level", cfg.LogLevel,
		"-log-format", cfg.LogFormat,
	}
}

func serveCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	spawn := fs.Bool("spawn", false, "Run workers as subprocesses instead of in-process")
	timeout := fs.Duration("timeout", 5*time.Minute, "Per-request wait limit")
	cfg, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	pool := rpc.NewPool()
	defer func() {
		if err := pool.Close(); err != nil {
			log.Warn("stopping workers", zap.Error(err))
		}
	}()

	warm, warmCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		if *spawn {
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			client, stop, err := rpc.SpawnWorker(ctx, exe, workerArgs(cfg)...)
			if err != nil {
				return err
			}
			pool.Add(client, stop)
			continue
		}
		client, runner, stop := startLocalWorker(ctx, cfg)
		pool.Add(client, stop)
		warm.Go(func() error { return runner.Warm(warmCtx) })
	}
	if err := warm.Wait(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(pool, httpapi.Options{
			DefaultTrials: cfg.Trials,
			Timeout:       *timeout,
			Logger:        log.Named("http"),
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.Int("workers", pool.Len()))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
