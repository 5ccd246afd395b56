package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-oracle-go/differ"
	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the oracle service is registered.
	RpcNamespace                  = "oracle"
	StateStreamSubscriptionMethod = "subscribeStateStream"
)

var (
	ErrDiffBeforeFull = errors.New("client: received diff before full state")
	// ErrOutOfSync means the local state can no longer be patched and a full
	// state is needed.
	ErrOutOfSync = errors.New("client: state out of sync with stream")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc applies a diff to a previous state without mutating it.
type StatePatcherFunc func(prevState *engine.State, diff *differ.StateDiff) (newState *engine.State, err error)

// Config holds the configuration for the client.
type Config struct {
	URL          string
	Logger       Logger
	BufferSize   uint
	StatePatcher StatePatcherFunc
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.StatePatcher == nil {
		return errors.New("config: StatePatcher is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor parses stream events, keeps the latest state, applies diffs
// and publishes every new state. It knows nothing about the transport.
type StreamProcessor struct {
	lastState    *engine.State
	statePatcher StatePatcherFunc
	stateCh      chan *engine.State
	logger       Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger Logger, bufferSize uint, statePatcher StatePatcherFunc) *StreamProcessor {
	return &StreamProcessor{
		logger:       logger,
		stateCh:      make(chan *engine.State, bufferSize),
		statePatcher: statePatcher,
	}
}

// State returns a read-only channel for receiving new states.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.stateCh
}

// ProcessMessage decodes one raw event and applies it.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	processingStart := time.Now()
	var event SubscriptionEvent

	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case EventFull:
		return sp.handleFullState(event, processingStart)
	case EventDiff:
		return sp.handleDiff(event, processingStart)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFullState(event SubscriptionEvent, start time.Time) error {
	var state engine.State
	if err := json.Unmarshal(event.Payload, &state); err != nil {
		return fmt.Errorf("failed to unmarshal full state payload: %w", err)
	}
	if state.Pools == nil {
		state.Pools = map[engine.PoolID]engine.PoolState{}
	}
	for id, p := range state.Pools {
		if err := p.Oracle.Validate(0); err != nil {
			return fmt.Errorf("pool %s: %w", id, err)
		}
	}

	sp.logMetrics(&state, time.Since(start), event.SentAt, EventFull)
	sp.publish(&state)
	return nil
}

func (sp *StreamProcessor) handleDiff(event SubscriptionEvent, start time.Time) error {
	var diff differ.StateDiff
	if err := json.Unmarshal(event.Payload, &diff); err != nil {
		return fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}

	if sp.lastState == nil {
		return fmt.Errorf("%w; from_block: %d, to_block: %v", ErrDiffBeforeFull, diff.FromBlock, diff.ToBlock.Number)
	}

	lastBlockNum := sp.lastState.BlockNumber()
	if diff.FromBlock != lastBlockNum {
		sp.logger.Warn(
			"Received out-of-order diff; discarding state until the next full state.",
			"last_known_block", lastBlockNum,
			"diff_from_block", diff.FromBlock,
			"diff_to_block", diff.ToBlock.Number,
		)
		sp.lastState = nil
		return fmt.Errorf("%w: diff from block %d, last known block %d", ErrOutOfSync, diff.FromBlock, lastBlockNum)
	}

	newState, err := sp.statePatcher(sp.lastState, &diff)
	if err != nil {
		sp.lastState = nil
		return fmt.Errorf("%w: failed to patch state: %w", ErrOutOfSync, err)
	}
	newState.Timestamp = diff.Timestamp

	sp.logMetrics(newState, time.Since(start), event.SentAt, EventDiff)
	sp.publish(newState)
	return nil
}

func (sp *StreamProcessor) publish(state *engine.State) {
	sp.lastState = state
	sp.stateCh <- state
}

func (sp *StreamProcessor) logMetrics(state *engine.State, processingDur time.Duration, sentAt int64, stateType string) {
	clientFinishTime := time.Now()
	clientStartTime := clientFinishTime.Add(-processingDur)
	serverFinishTime := time.Unix(0, sentAt)

	transportTime := clientStartTime.Sub(serverFinishTime)
	serverProcessingMs := serverFinishTime.Sub(time.Unix(0, state.Block.ReceivedAt)).Milliseconds()

	errorCount := 0
	for _, p := range state.Pools {
		if p.Error != "" {
			errorCount++
		}
	}

	sp.logger.Debug("State Processed",
		"block", state.Block.Number,
		"type", stateType,
		"pools", len(state.Pools),
		"errors", errorCount,
		"latency_transport_ms", transportTime.Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
		"latency_server_ms", serverProcessingMs,
	)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client and starts its connection loop.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// State delegates to the processor's state channel.
func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
// It is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.logger.Info("Context canceled, shutting down.")
			return
		}
		c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
		if !sleep(ctx, reconnectDelay) {
			return
		}
		reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, StateStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for data...")
	for {
		select {
		case rawData := <-rawCh:
			err := c.processor.ProcessMessage(rawData)
			if errors.Is(err, ErrOutOfSync) || errors.Is(err, ErrDiffBeforeFull) {
				// a new subscription starts with a full state
				return fmt.Errorf("resubscribing: %w", err)
			}
			if err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				return errors.New("subscription closed by server")
			}
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
