// Agentscan - On-chain agent registry and payment indexer
package main

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/agentscan/internal/config"
	"github.com/mbd888/agentscan/internal/facilitators"
	"github.com/mbd888/agentscan/internal/ingest"
	"github.com/mbd888/agentscan/internal/logging"
	"github.com/mbd888/agentscan/internal/metadata"
	"github.com/mbd888/agentscan/internal/server"
	"github.com/mbd888/agentscan/internal/traces"
	"github.com/mbd888/agentscan/internal/watcher"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting agentscan",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = logging.New(cfg.LogLevel, cfg.LogFmt)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"ipfs_gateway", cfg.IPFSGateway,
	)

	ctx := context.Background()

	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// The ingestion pipeline shares the server's store and hub. Events
	// arrive from the built-in log watcher and from the internal HTTP
	// delivery endpoints.
	facs := facilitators.New()
	resolver := metadata.NewResolver(cfg.IPFSGateway, cfg.MetadataTimeout, logger)
	pipeline := ingest.NewPipeline(srv.Store(), resolver, facs, srv.Hub(), logger)
	srv.AttachPipeline(pipeline)

	logger.Info("ingestion pipeline ready", "facilitators", facs.Len())

	if cfg.WatcherEnabled() {
		w, err := watcher.New(watcher.Config{
			RPCURL:             cfg.RPCURL,
			ChainID:            cfg.WatchChainID,
			IdentityRegistry:   common.HexToAddress(cfg.IdentityRegistry),
			ReputationRegistry: common.HexToAddress(cfg.ReputationRegistry),
			USDCContract:       common.HexToAddress(cfg.USDCContract),
			PollInterval:       cfg.PollInterval,
			StartBlock:         cfg.StartBlock,
		}, pipeline, facs, logger)
		if err != nil {
			logger.Error("failed to create watcher", "error", err)
			os.Exit(1)
		}
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start watcher", "error", err)
			os.Exit(1)
		}
		defer w.Stop()
	} else {
		logger.Info("log watcher disabled, relying on HTTP event delivery")
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
