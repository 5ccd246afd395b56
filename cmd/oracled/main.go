package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/defistate/defistate-oracle-go/chains/ethereum"
	"github.com/defistate/defistate-oracle-go/cmd/oracled/config"
	"github.com/defistate/defistate-oracle-go/differ"
	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/pool"
	"github.com/defistate/defistate-oracle-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath string
	logLevel   string
}

func (o *options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "config.yaml", "Path to the configuration file.")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
}

func (o *options) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.logLevel, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "oracled",
		Short:        "Mirror Uniswap V3 oracles and serve TWAP queries over JSON-RPC",
		SilenceUsage: true,
	}
	opts.AddFlags(root.PersistentFlags())

	root.AddCommand(newServeCommand(opts), newSnapshotCommand(opts))
	return root
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Mirror the configured pools and serve the oracle RPC and state stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				logger.Error("Failed to load configuration", "error", err)
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func newSnapshotCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <pool-address>",
		Short: "Print the oracle of one live pool at the chain head as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid pool address %q", args[0])
			}
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := ethclient.DialContext(ctx, cfg.RPCURL)
			if err != nil {
				return fmt.Errorf("failed to dial rpc: %w", err)
			}
			defer client.Close()

			reader, err := ethereum.NewReader(ethereum.ReaderConfig{
				Caller:      client,
				Concurrency: cfg.ReadConcurrency,
				Capacity:    cfg.MaxCardinality,
			})
			if err != nil {
				return err
			}
			block, err := reader.Head(ctx)
			if err != nil {
				return err
			}
			state, err := reader.ReadPool(ctx, engine.PoolMeta{Address: common.HexToAddress(args[0])}, block)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, rootLogger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial rpc: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch chain id: %w", err)
	}
	if chainID.Uint64() != cfg.ChainID {
		return fmt.Errorf("rpc serves chain %d, configured chain is %d", chainID.Uint64(), cfg.ChainID)
	}

	reader, err := ethereum.NewReader(ethereum.ReaderConfig{
		Caller:      client,
		Concurrency: cfg.ReadConcurrency,
		Capacity:    cfg.MaxCardinality,
	})
	if err != nil {
		return err
	}

	poolMetrics := pool.NewMetrics(registry)
	poolLogger := rootLogger.With("component", "pool")
	hosts := make([]*pool.Pool, 0, len(cfg.Pools))
	rpcPools := make(map[engine.PoolID]server.Pool, len(cfg.Pools))
	for _, pc := range cfg.Pools {
		host, err := pool.New(pool.Config{
			ID:       engine.PoolID(pc.ID),
			Meta:     engine.PoolMeta{Name: pc.Name, Address: common.HexToAddress(pc.Address)},
			Capacity: cfg.MaxCardinality,
			Metrics:  poolMetrics,
			Logger:   poolLogger,
		})
		if err != nil {
			return fmt.Errorf("pool %s: %w", pc.ID, err)
		}
		hosts = append(hosts, host)
		rpcPools[host.ID()] = host
	}

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Registry: registry,
		Logger:   rootLogger.With("component", "differ"),
	})
	if err != nil {
		return err
	}

	rpcServer, err := server.New(server.Config{
		Pools:            rpcPools,
		Differ:           stateDiffer,
		Registry:         registry,
		Logger:           rootLogger.With("component", "jsonrpc-server"),
		SubscriberBuffer: cfg.SubscriberBuffer,
		AllowedOrigins:   cfg.AllowedOrigins,
	})
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	mirror, err := ethereum.NewMirror(&ethereum.MirrorConfig{
		ChainID:   cfg.ChainID,
		Reader:    reader,
		Pools:     hosts,
		Publisher: rpcServer.Broadcaster(),
		Interval:  cfg.PollInterval,
		Registry:  registry,
		Logger:    rootLogger.With("component", "mirror"),
	})
	if err != nil {
		return err
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	servers := []*http.Server{
		{Addr: cfg.ListenAddr, Handler: rpcServer.Handler()},
		{Addr: cfg.MetricsAddr, Handler: metricsMux},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mirror.Run(gctx)
	})
	for _, s := range servers {
		g.Go(func() error {
			rootLogger.Info("Listening", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
		return nil
	})

	rootLogger.Info("oracled started",
		"chain_id", cfg.ChainID,
		"pools", len(hosts),
		"poll_interval", cfg.PollInterval.String(),
		"origins", strings.Join(cfg.AllowedOrigins, ","),
	)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		rootLogger.Info("oracled stopped")
		return nil
	}
	return err
}
