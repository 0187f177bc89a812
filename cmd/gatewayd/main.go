package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/marmos91/storage-gateway/internal/logger"
	"github.com/marmos91/storage-gateway/internal/telemetry"
	"github.com/marmos91/storage-gateway/pkg/cachestore/memory"
	"github.com/marmos91/storage-gateway/pkg/config"
	"github.com/marmos91/storage-gateway/pkg/edgecache"
	"github.com/marmos91/storage-gateway/pkg/gateway"
	"github.com/marmos91/storage-gateway/pkg/storagerpc/s3"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `storage-gateway - HTTP gateway for a content-addressed storage cluster

Usage:
  gatewayd <command> [flags]

Commands:
  init     Initialize a sample configuration file
  start    Start the gateway server
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/storage-gateway/config.yaml)

Environment Variables:
  Options set in the config file can be overridden using environment variables.
  Format: GATEWAY_<SECTION>_<KEY>

  Example:
    GATEWAY_LOGGING_LEVEL=DEBUG gatewayd start
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
	case "version", "--version", "-v":
		fmt.Printf("gatewayd %s (commit: %s, built: %s)\n", version, commit, date)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file")
	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	path := *configFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if err := config.InitConfig(path); err != nil {
		log.Fatalf("failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("Edit storage.bucket and storage.region, then run: gatewayd start")
}

func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file")
	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "storage-gateway",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "storage-gateway",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		log.Fatalf("failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("storage-gateway starting", "version", version, "commit", commit)

	client, err := s3.NewClientFromConfig(ctx, cfg.Storage.Endpoint, cfg.Storage.Region,
		cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey, cfg.Storage.ForcePathStyle)
	if err != nil {
		log.Fatalf("failed to build storage client: %v", err)
	}

	metaIndex, err := s3.OpenMetaIndex(cfg.Storage.MetaIndexDir)
	if err != nil {
		log.Fatalf("failed to open metadata index: %v", err)
	}
	defer func() {
		if err := metaIndex.Close(); err != nil {
			logger.Error("metadata index close error", "error", err)
		}
	}()

	rpc, err := s3.New(ctx, s3.Config{
		Client:            client,
		Bucket:            cfg.Storage.Bucket,
		KeyPrefix:         cfg.Storage.KeyPrefix,
		MaxRetries:        cfg.Storage.MaxRetries,
		InitialBackoff:    cfg.Storage.InitialBackoff,
		MaxBackoff:        cfg.Storage.MaxBackoff,
		BackoffMultiplier: cfg.Storage.BackoffMultiplier,
		Index:             metaIndex,
	})
	if err != nil {
		log.Fatalf("failed to connect to storage cluster: %v", err)
	}
	logger.Info("storage cluster connected", "bucket", cfg.Storage.Bucket, "region", cfg.Storage.Region,
		"meta_index_dir", cfg.Storage.MetaIndexDir)

	cache := memory.New()

	thresholds := gateway.Thresholds{
		ThresholdObjLen: cfg.HTTP.ThresholdObjLen,
		ChunkedObjLen:   cfg.HTTP.ChunkedObjLen,
		MaxLenForObj:    cfg.HTTP.MaxLenForObj,
	}

	var (
		internal    *edgecache.Internal
		interceptor *edgecache.Interceptor
	)

	if cfg.HTTP.CacheMethod == "inner" {
		internal = edgecache.NewInternal(cache, rpc, true)
		logger.Info("edge cache mode: internal")
	} else {
		patterns := make([]*regexp.Regexp, 0, len(cfg.HTTP.CachablePathPattern))
		for _, p := range cfg.HTTP.CachablePathPattern {
			re, err := regexp.Compile(p)
			if err != nil {
				log.Fatalf("invalid cachable_path_pattern %q: %v", p, err)
			}
			patterns = append(patterns, re)
		}

		interceptor = edgecache.NewInterceptor(cache, objectKeyFromRequest, edgecache.InterceptorConfig{
			Expire:        cfg.HTTP.CacheExpire,
			MaxContentLen: cfg.HTTP.CacheMaxContentLen.Int64(),
			PathPatterns:  patterns,
			ContentTypes:  cfg.HTTP.CachableContentType,
		})
		logger.Info("edge cache mode: interceptor")
	}

	dispatcher := gateway.New(rpc, cache, internal, thresholds)
	router := gateway.NewRouter(gateway.Deps{
		Dispatcher:  dispatcher,
		Interceptor: interceptor,
		CacheStats:  cache,
	})

	srv := gateway.NewServer(cfg.HTTP, router)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("gateway is running", "port", cfg.HTTP.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			os.Exit(1)
		}
		logger.Info("gateway stopped gracefully")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// objectKeyFromRequest derives the interceptor's cache key from a request:
// the object key embedded in the URL path, matching the dispatcher's own
// key derivation (see pkg/gateway's objectKey).
func objectKeyFromRequest(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/")
}
