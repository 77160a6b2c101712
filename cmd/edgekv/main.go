package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/edgekv/internal/config"
	"github.com/unkn0wn-root/edgekv/internal/logging"
	"github.com/unkn0wn-root/edgekv/internal/server"
	"github.com/unkn0wn-root/edgekv/internal/version"
)

const configEnv = "EDGEKV_CONFIG"

type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, opts))
}

// run returns the process exit code. ctx cancellation triggers a graceful
// shutdown.
func run(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		fmt.Fprintln(stdOut, version.Full())
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "load config: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Server)
	if err != nil {
		fmt.Fprintf(stdErr, "init logger: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["edge"] = cfg.Edge.Type
		fields["origin"] = cfg.Origin.Type
		fields["genstore"] = cfg.GenStore.Type
		fields["result"] = "ok"
		logger.WithFields(fields).Info("config valid")
		return 0
	}

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "build kv: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_addr"] = cfg.Server.ListenAddr
	fields["space"] = rt.kv.Config().Space
	fields["edge"] = cfg.Edge.Type
	fields["origin"] = cfg.Origin.Type
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("config loaded")

	code := 0
	if err := serve(ctx, cfg, rt, logger); err != nil {
		fmt.Fprintf(stdErr, "http server: %v\n", err)
		code = 1
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.DurationValue())
	defer cancel()
	if err := rt.Close(drainCtx); err != nil {
		logger.WithFields(logging.BaseFields("shutdown", opts.configPath)).WithError(err).Warn("drain incomplete")
		code = 1
	}
	return code
}

func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("edgekv", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)
	fs.StringVar(&configFlag, "config", "", "config file path (default ./config.toml, overridden by "+configEnv+")")
	fs.BoolVar(&checkOnly, "check-config", false, "validate the config and exit")
	fs.BoolVar(&showVer, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("parse flags: %w", err)
	}

	path := os.Getenv(configEnv)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}
	return cliOptions{configPath: path, checkOnly: checkOnly, showVersion: showVer}, nil
}

func serve(ctx context.Context, cfg *config.Config, rt *runtime, logger *logrus.Logger) error {
	app, err := server.NewApp(server.AppOptions{Logger: logger, KV: rt.kv})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"action": "listen", "addr": cfg.Server.ListenAddr}).Info("http server starting")
		errCh <- app.Listen(cfg.Server.ListenAddr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.WithField("action", "shutdown").Info("stopping http server")
		return app.ShutdownWithTimeout(shutdownBudget(cfg))
	}
}

// shutdownBudget splits the configured timeout between the HTTP server and
// the drain that follows it.
func shutdownBudget(cfg *config.Config) time.Duration {
	return cfg.Server.ShutdownTimeout.DurationValue() / 2
}
