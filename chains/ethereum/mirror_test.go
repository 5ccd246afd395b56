package ethereum

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingPublisher struct {
	mu     sync.Mutex
	states []*engine.State
	err    error
}

func (p *recordingPublisher) Publish(state *engine.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.states = append(p.states, state)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.states)
}

func newMirror(t *testing.T, f *fakeChain, publisher Publisher) (*Mirror, *pool.Pool) {
	t.Helper()
	reg := prometheus.NewRegistry()
	r, err := NewReader(ReaderConfig{Caller: f})
	require.NoError(t, err)

	host, err := pool.New(pool.Config{
		ID:      engine.PoolID(poolAddress.Hex()),
		Meta:    engine.PoolMeta{Name: "USDC/WETH", Address: poolAddress},
		Metrics: pool.NewMetrics(reg),
		Logger:  discard,
	})
	require.NoError(t, err)

	m, err := NewMirror(&MirrorConfig{
		ChainID:   1,
		Reader:    r,
		Pools:     []*pool.Pool{host},
		Publisher: publisher,
		Interval:  10 * time.Millisecond,
		Registry:  reg,
		Logger:    discard,
	})
	require.NoError(t, err)
	return m, host
}

func TestNewMirror(t *testing.T) {
	valid := func() *MirrorConfig {
		r, _ := NewReader(ReaderConfig{Caller: newFakeChain(t, 1, 1)})
		host, err := pool.New(pool.Config{ID: "p", Metrics: pool.NewMetrics(prometheus.NewRegistry()), Logger: discard})
		require.NoError(t, err)
		return &MirrorConfig{
			Reader:    r,
			Pools:     []*pool.Pool{host},
			Publisher: &recordingPublisher{},
			Registry:  prometheus.NewRegistry(),
			Logger:    discard,
		}
	}

	m, err := NewMirror(valid())
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, m.interval)

	for name, mutate := range map[string]func(*MirrorConfig){
		"reader":    func(c *MirrorConfig) { c.Reader = nil },
		"pools":     func(c *MirrorConfig) { c.Pools = nil },
		"publisher": func(c *MirrorConfig) { c.Publisher = nil },
		"interval":  func(c *MirrorConfig) { c.Interval = -1 },
		"registry":  func(c *MirrorConfig) { c.Registry = nil },
		"logger":    func(c *MirrorConfig) { c.Logger = nil },
	} {
		cfg := valid()
		mutate(cfg)
		_, err := NewMirror(cfg)
		assert.Error(t, err, name)
	}
}

func TestMirror_Sync(t *testing.T) {
	f := initializedChain(t)
	publisher := &recordingPublisher{}
	m, host := newMirror(t, f, publisher)
	ctx := context.Background()

	state, err := m.Sync(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, uint64(1), state.ChainID)
	assert.Equal(t, uint64(50), state.BlockNumber())
	assert.False(t, state.HasErrors())

	mirrored := state.Pools[host.ID()]
	assert.Equal(t, f.oracle.Snapshot(), mirrored.Oracle)
	assert.Equal(t, host.State(), mirrored)
	assert.Equal(t, uint32(1030), host.Time())

	t.Run("same head is skipped", func(t *testing.T) {
		state, err := m.Sync(ctx)
		require.NoError(t, err)
		assert.Nil(t, state)
		assert.Equal(t, 1, publisher.count())
	})

	t.Run("new block reloads the pool", func(t *testing.T) {
		f.write(t, 1040, -7, 1000)
		f.advance(51, 1042)

		state, err := m.Sync(ctx)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, uint64(51), state.BlockNumber())
		assert.Equal(t, int32(-7), host.Tick())
		assert.Equal(t, uint16(3), host.State().Oracle.Index)

		want, _, err := f.oracle.Observe(1042, []uint32{42, 0}, -7, host.Liquidity())
		require.NoError(t, err)
		got, _, err := host.Observe([]uint32{42, 0})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("read failures keep the previous pool and flag it", func(t *testing.T) {
		f.fail["slot0"] = errors.New("rate limited")
		f.advance(52, 1054)
		defer delete(f.fail, "slot0")

		state, err := m.Sync(ctx)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.True(t, state.HasErrors())
		flagged := state.Pools[host.ID()]
		assert.Contains(t, flagged.Error, "rate limited")
		assert.Equal(t, uint32(1042), flagged.Time)
	})

	t.Run("head failure", func(t *testing.T) {
		f.fail["header"] = errors.New("node down")
		defer delete(f.fail, "header")
		_, err := m.Sync(ctx)
		assert.Error(t, err)
	})
}

func TestMirror_SyncPublishError(t *testing.T) {
	f := initializedChain(t)
	m, _ := newMirror(t, f, &recordingPublisher{err: errors.New("closed")})

	_, err := m.Sync(context.Background())
	assert.ErrorContains(t, err, "closed")

	// an unpublished block is not skipped
	_, err = m.Sync(context.Background())
	assert.ErrorContains(t, err, "closed")
}

func TestMirror_Run(t *testing.T) {
	f := initializedChain(t)
	publisher := &recordingPublisher{}
	m, _ := newMirror(t, f, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return publisher.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	f.advance(51, 1031)
	require.Eventually(t, func() bool { return publisher.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("mirror did not stop")
	}
}
