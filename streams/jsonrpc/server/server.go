// Package server exposes hosted oracles over geth-style JSON-RPC, on HTTP and
// websockets, under the "oracle" namespace.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/twap"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// RpcNamespace is the namespace under which the service is registered.
	RpcNamespace = "oracle"

	DefaultSubscriberBuffer = 64
)

var ErrUnknownPool = errors.New("unknown pool")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pool is a hosted oracle the service can query.
type Pool interface {
	Observe(secondsAgos []uint32) ([]int64, []uint256.Int, error)
	State() engine.PoolState
}

type Config struct {
	Pools            map[engine.PoolID]Pool
	Differ           StateDiffer
	Registry         prometheus.Registerer
	Logger           Logger
	SubscriberBuffer int
	// CORS origins for the websocket handler. Empty allows all.
	AllowedOrigins []string
}

func (c *Config) validate() error {
	if c.Differ == nil {
		return errors.New("config: Differ cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.SubscriberBuffer < 0 {
		return errors.New("config: SubscriberBuffer cannot be negative")
	}
	return nil
}

// Server owns the RPC server and the broadcaster feeding the state stream.
type Server struct {
	rpc         *rpc.Server
	service     *Service
	broadcaster *Broadcaster
	origins     []string
}

func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	buffer := cfg.SubscriberBuffer
	if buffer == 0 {
		buffer = DefaultSubscriberBuffer
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	metrics := NewMetrics(cfg.Registry)
	pools := make(map[engine.PoolID]Pool, len(cfg.Pools))
	for id, p := range cfg.Pools {
		pools[id] = p
	}

	broadcaster := newBroadcaster(cfg.Differ, cfg.Logger, buffer, metrics)
	service := &Service{
		pools:       pools,
		broadcaster: broadcaster,
		logger:      cfg.Logger,
		metrics:     metrics,
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(RpcNamespace, service); err != nil {
		return nil, fmt.Errorf("failed to register API: %w", err)
	}

	return &Server{
		rpc:         rpcServer,
		service:     service,
		broadcaster: broadcaster,
		origins:     origins,
	}, nil
}

// Broadcaster is where new states are published.
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// Handler serves websocket upgrades and plain HTTP JSON-RPC on the same path.
func (s *Server) Handler() http.Handler {
	ws := s.rpc.WebsocketHandler(s.origins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			ws.ServeHTTP(w, r)
			return
		}
		s.rpc.ServeHTTP(w, r)
	})
}

func (s *Server) Stop() { s.rpc.Stop() }

// ObserveResult carries the cumulants as decimal strings.
type ObserveResult struct {
	TickCumulatives                    []string `json:"tickCumulatives"`
	SecondsPerLiquidityCumulativeX128s []string `json:"secondsPerLiquidityCumulativeX128s"`
}

type ConsultResult struct {
	ArithmeticMeanTick    int32  `json:"arithmeticMeanTick"`
	HarmonicMeanLiquidity string `json:"harmonicMeanLiquidity"`
	MeanSqrtPriceX96      string `json:"meanSqrtPriceX96"`
}

// Service is the RPC receiver. Exported methods become oracle_<name>.
type Service struct {
	pools       map[engine.PoolID]Pool
	broadcaster *Broadcaster
	logger      Logger
	metrics     *Metrics
}

func (s *Service) pool(id engine.PoolID) (Pool, error) {
	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, id)
	}
	return p, nil
}

// Observe implements oracle_observe.
func (s *Service) Observe(poolID engine.PoolID, secondsAgos []uint32) (res *ObserveResult, err error) {
	defer func() { s.metrics.observeRequest("observe", err) }()

	p, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	tickCumulatives, secondsPerLiquidities, err := p.Observe(secondsAgos)
	if err != nil {
		return nil, err
	}

	res = &ObserveResult{
		TickCumulatives:                    make([]string, len(tickCumulatives)),
		SecondsPerLiquidityCumulativeX128s: make([]string, len(secondsPerLiquidities)),
	}
	for i, tc := range tickCumulatives {
		res.TickCumulatives[i] = strconv.FormatInt(tc, 10)
	}
	for i := range secondsPerLiquidities {
		res.SecondsPerLiquidityCumulativeX128s[i] = secondsPerLiquidities[i].Dec()
	}
	return res, nil
}

// Snapshot implements oracle_snapshot.
func (s *Service) Snapshot(poolID engine.PoolID) (res *engine.PoolState, err error) {
	defer func() { s.metrics.observeRequest("snapshot", err) }()

	p, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	state := p.State()
	return &state, nil
}

// Consult implements oracle_consult.
func (s *Service) Consult(poolID engine.PoolID, secondsAgo uint32) (res *ConsultResult, err error) {
	defer func() { s.metrics.observeRequest("consult", err) }()

	p, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}
	result, err := twap.Consult(p, secondsAgo)
	if err != nil {
		return nil, err
	}
	price, err := result.MeanSqrtPriceX96()
	if err != nil {
		return nil, err
	}
	return &ConsultResult{
		ArithmeticMeanTick:    result.ArithmeticMeanTick,
		HarmonicMeanLiquidity: result.HarmonicMeanLiquidity.Dec(),
		MeanSqrtPriceX96:      price.Dec(),
	}, nil
}

// SubscribeStateStream implements oracle_subscribe("subscribeStateStream").
func (s *Service) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	events, cancel, err := s.broadcaster.Subscribe()
	if err != nil {
		return nil, err
	}

	rpcSub := notifier.CreateSubscription()
	s.logger.Debug("state stream subscriber joined", "id", rpcSub.ID)

	go func() {
		defer cancel()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					s.logger.Warn("failed to notify subscriber", "id", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				s.logger.Debug("state stream subscriber left", "id", rpcSub.ID)
				return
			}
		}
	}()
	return rpcSub, nil
}
