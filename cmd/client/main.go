package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/defistate/defistate-oracle-go/cmd/client/config"
	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/patcher"
	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/twap"
	"github.com/defistate/defistate-oracle-go/streams/jsonrpc/client"
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statePatcher := patcher.NewStatePatcher(nil)
	client, err := client.NewClient(
		ctx,
		client.Config{
			URL:          cfg.StateStreamURL,
			Logger:       rootLogger.With("component", "jsonrpc-client"),
			BufferSize:   cfg.BufferSize,
			StatePatcher: statePatcher.Patch,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "chain_id", cfg.ChainID, "error", err)
		close()
	}

	window := cfg.WindowSeconds()
	for {
		select {
		case state := <-client.State():
			if state.ChainID != 0 && state.ChainID != cfg.ChainID {
				rootLogger.Warn("State from unexpected chain", "chain_id", state.ChainID, "expected", cfg.ChainID)
				continue
			}
			logTWAPs(rootLogger, state, window)
		case err, ok := <-client.Err():
			if ok {
				rootLogger.Error("Fatal client error", "error", err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// logTWAPs logs the mean tick and liquidity of every pool over window.
func logTWAPs(logger *slog.Logger, state *engine.State, window uint32) {
	ids := make([]engine.PoolID, 0, len(state.Pools))
	for id := range state.Pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p := state.Pools[id]
		if p.Error != "" {
			logger.Warn("Pool out of sync", "block", state.Block.Number, "pool", id, "error", p.Error)
			continue
		}
		res, err := twap.Consult(&p, window)
		if err != nil {
			logger.Warn("TWAP unavailable", "block", state.Block.Number, "pool", id, "window", window, "error", err)
			continue
		}
		logger.Info("TWAP",
			"block", state.Block.Number,
			"pool", id,
			"name", p.Meta.Name,
			"window", window,
			"mean_tick", res.ArithmeticMeanTick,
			"harmonic_mean_liquidity", res.HarmonicMeanLiquidity.Dec(),
		)
	}
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
