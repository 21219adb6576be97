// davgate serves an asset repository as a WebDAV filesystem with a
// query-addressed download endpoint and capability tokens.
//
// Usage:
//
//	davgate init [--config path] [--force]
//	davgate start [--config path]
//	davgate version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/pkg/adapter/webdav"
	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/config"
	"github.com/packrat/davgate/pkg/gc"
	"github.com/packrat/davgate/pkg/server"
	"github.com/packrat/davgate/pkg/storage/engine"
	"github.com/packrat/davgate/pkg/token"
	"github.com/packrat/davgate/pkg/vfs"
	"github.com/packrat/davgate/pkg/vocabulary"
	"github.com/spf13/pflag"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(args[1:])
	case "start":
		return runStart(args[1:])
	case "version", "--version":
		fmt.Printf("davgate %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `davgate - WebDAV gateway for an asset repository

Usage:
  davgate init [--config path] [--force]   write a default config file
  davgate start [--config path]            run the gateway
  davgate version                          print the version
`)
}

func runInit(args []string) error {
	var (
		configPath string
		force      bool
	)
	flagSet := pflag.NewFlagSet("init", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path of the config file to write (default: "+config.GetDefaultConfigPath()+")")
	flagSet.BoolVar(&force, "force", false, "overwrite an existing config file")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if configPath == "" {
		path, err := config.InitConfig(force)
		if err != nil {
			return err
		}
		configPath = path
	} else if err := config.InitConfigToPath(configPath, force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", configPath)
	fmt.Println("Set vocabulary.asset_types before accepting uploads.")
	return nil
}

func runStart(args []string) error {
	var configPath string
	flagSet := pflag.NewFlagSet("start", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path of the config file (default: "+config.GetDefaultConfigPath()+")")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCloser, err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("davgate %s starting", version)
	logConfiguration(cfg)

	// Step 1: metrics
	metricsResult := config.InitializeMetrics(cfg)

	// Step 2: stores
	repo, err := config.CreateRepository(ctx, &cfg.Repository)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close repository: %v", err)
		}
	}()

	blobs, err := config.CreateBlobStore(ctx, &cfg.Storage)
	if err != nil {
		return err
	}

	// Step 3: filesystem
	auditSink := audit.Multi(
		audit.NewLogSink(),
		audit.NewCountingSink(metricsResult.HTTPMetrics),
	)

	if len(cfg.Vocabulary.AssetTypes) == 0 {
		logger.Warn("vocabulary.asset_types is empty: every upload will be rejected")
	}

	// the engine pins upload keys against the collector's sweep
	collector, err := gc.NewCollector(repo, blobs, cfg.GC)
	if err != nil {
		return err
	}

	fs, err := vfs.New(vfs.Deps{
		Repository: repo,
		Engine:     engine.New(repo, blobs, engine.WithPinner(collector)),
		Vocabulary: vocabulary.NewStatic(cfg.Vocabulary),
		Audit:      auditSink,
		Metrics:    metricsResult.VFSMetrics,
	}, vfs.Config{
		FileTTL:        cfg.Gateway.FileTTL,
		MaxUploadBytes: cfg.Gateway.MaxUploadBytes,
		SceneSuffix:    cfg.Vocabulary.SceneSuffix,
		Comment:        cfg.Gateway.Comment,
	})
	if err != nil {
		return err
	}

	tokens := token.NewStore(
		token.WithTTL(cfg.Tokens.TTL),
		token.WithMaxEntries(cfg.Tokens.MaxEntries),
	)

	// Step 4: adapters
	adapters, err := config.CreateAdapters(cfg, webdav.Deps{
		FileSystem: fs,
		Tokens:     tokens,
		Audit:      auditSink,
		Metrics:    metricsResult.HTTPMetrics,
	})
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}
	if metricsResult.Server != nil {
		if err := srv.AddAdapter(metricsResult.Server); err != nil {
			return err
		}
	}

	// Step 5: background work and shutdown hooks
	collector.Start()

	srv.OnShutdown(func() {
		logger.Info("Waiting for in-flight ingestions...")
		fs.Wait()
	})
	srv.OnShutdown(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := collector.Stop(stopCtx); err != nil {
			logger.Warn("Garbage collector did not stop cleanly: %v", err)
		}
	})

	logger.Info("Press Ctrl+C to stop")
	err = srv.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("Shutdown complete")
		return nil
	}
	return err
}

func logConfiguration(cfg *config.Config) {
	http := cfg.Adapters.HTTP
	logger.Info("Configuration:")
	logger.Info("  Repository: %s", cfg.Repository.Type)
	logger.Info("  Storage: %s", cfg.Storage.Type)
	logger.Info("  HTTP: port=%d webdav=%s download=%s token=%s", http.Port, http.WebDAVPrefix, http.DownloadPrefix, http.TokenPath)
	logger.Info("  File TTL: %v, max upload: %d bytes", cfg.Gateway.FileTTL, cfg.Gateway.MaxUploadBytes)
	logger.Info("  Token TTL: %v", cfg.Tokens.TTL)
	if cfg.Metrics.Enabled {
		logger.Info("  Metrics: port=%d", cfg.Metrics.Port)
	} else {
		logger.Info("  Metrics: disabled")
	}
	if cfg.GC.Enabled {
		logger.Info("  GC: every %s", cfg.GC.Interval.Round(time.Second))
	}
}
