package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/inspect"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/logging"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bootstrap"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, rtconfig.Singleton(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is the whole shell against block. It returns the exit code.
func run(ctx context.Context, block *rtconfig.Block, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg := config.LoadOrDefault()

	fs := flag.NewFlagSet("jsc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	eval := fs.String("e", "", "Evaluate `script` and print the result")
	opts := fs.String("options", cfg.Runtime.Options, "Runtime `options` as name=value pairs separated by spaces")
	optsFile := fs.String("options-file", cfg.Runtime.OptionsFile, "YAML or TOML runtime options `file`")
	testingMode := fs.Bool("testing", cfg.Runtime.Testing, "Skip the freeze and enable restricted options")
	inspectAddr := fs.String("inspect", cfg.Inspect.Addr, "Serve introspection endpoints on `addr`")
	dev := fs.Bool("dev", cfg.Logging.Development, "Development logging")
	level := fs.String("log-level", cfg.Logging.Level, "Log `level`")
	dumpConfig := fs.Bool("dump-config", false, "Print the finalized configuration as JSON and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg.Logging.Development = *dev
	cfg.Logging.Level = *level
	cfg.Inspect.Addr = *inspectAddr

	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	logCfg.Level = cfg.Logging.Level
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(stderr, "jsc: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	rt, err := bootstrap.Start(block, bootstrap.Settings{
		Testing:          *testingMode,
		OptionsFile:      *optsFile,
		Options:          *opts,
		TimeoutCheckName: "jsc.timeout",
		TimeoutCheck:     timeoutCheck(logger.Component("shell")),
	}, bootstrap.WithLogger(logger.Logger), bootstrap.WithMetrics(metrics))
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer func() { _ = rt.Close() }()

	if *dumpConfig {
		out, err := sonic.ConfigStd.MarshalIndent(block.Snapshot(), "", "  ")
		if err != nil {
			logger.Error("encode configuration", zap.Error(err))
			return 1
		}
		fmt.Fprintln(stdout, string(out))
		return 0
	}

	if cfg.Inspect.Addr != "" {
		srv := inspect.New(block, cfg, reg, metrics, logger.Logger)
		inspectCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := srv.ListenAndServe(inspectCtx); err != nil {
				logger.Error("introspection server failed", zap.Error(err))
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	sh, err := newShell(rt, stdout, stderr)
	if err != nil {
		logger.Error("create vm", zap.Error(err))
		return 1
	}
	defer sh.close()

	switch {
	case *eval != "":
		return sh.eval(ctx, *eval)
	case fs.NArg() > 0:
		return sh.runFiles(ctx, fs.Args())
	case cfg.Inspect.Addr != "":
		<-ctx.Done()
		return 0
	default:
		return sh.repl(ctx, stdin)
	}
}
