package transport

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

func TestEvictorConfigFrom(t *testing.T) {
	cfg := DefaultPoolConfig()
	got := EvictorConfigFrom(cfg)
	if got.Interval != DefaultEvictionInterval {
		t.Errorf("Interval = %v, want %v", got.Interval, DefaultEvictionInterval)
	}

	cfg.EvictionInterval = 5 * time.Second
	cfg.TestOnBorrow = true
	got = EvictorConfigFrom(cfg)
	if got.Interval != 5*time.Second || !got.Validate || got.MinEvictableIdle != cfg.MinEvictableIdle {
		t.Errorf("EvictorConfigFrom = %+v", got)
	}
}

func TestEvictor_EvictNow(t *testing.T) {
	reg, dialer := newTestRegistry(t, testPoolConfig(2, time.Second))
	reg.Reconcile([]cluster.Server{serverA, serverB})

	for _, p := range reg.Pools() {
		tr, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire error: %v", err)
		}
		p.Release(tr)
	}

	metrics := NewEvictorMetrics(prometheus.NewRegistry())
	evictor := NewEvictor(reg,
		WithEvictorConfig(EvictorConfig{Interval: time.Hour, MinEvictableIdle: time.Nanosecond}),
		WithEvictorMetrics(metrics),
	)

	time.Sleep(time.Millisecond)
	if n := evictor.EvictNow(context.Background()); n != 2 {
		t.Errorf("EvictNow closed %d connection(s), want 2", n)
	}
	if got := testutil.ToFloat64(metrics.EvictedTotal); got != 2 {
		t.Errorf("EvictedTotal = %v, want 2", got)
	}
	if _, live, _ := dialer.Counts(); live != 0 {
		t.Errorf("%d connection(s) still open", live)
	}
}

func TestEvictor_StartStop(t *testing.T) {
	reg, _ := newTestRegistry(t, testPoolConfig(2, time.Second))
	reg.Reconcile([]cluster.Server{serverA})

	poolA, _ := reg.PoolFor(serverA)
	tr, _ := poolA.Acquire(context.Background())
	poolA.Release(tr)

	evictor := NewEvictor(reg, WithEvictorConfig(EvictorConfig{
		Interval:         10 * time.Millisecond,
		MinEvictableIdle: time.Nanosecond,
	}))

	evictor.Start(context.Background())
	evictor.Start(context.Background())
	if !evictor.IsRunning() {
		t.Fatal("evictor should be running")
	}

	deadline := time.Now().Add(time.Second)
	for poolA.Stats().Idle != 0 {
		if time.Now().After(deadline) {
			t.Fatal("evictor never closed the idle connection")
		}
		time.Sleep(5 * time.Millisecond)
	}

	evictor.Stop()
	evictor.Stop()
	if evictor.IsRunning() {
		t.Error("evictor should be stopped")
	}
}

func TestEvictor_StopsOnContextCancel(t *testing.T) {
	reg, _ := newTestRegistry(t, testPoolConfig(1, time.Second))
	evictor := NewEvictor(reg, WithEvictorConfig(EvictorConfig{Interval: time.Hour}))

	ctx, cancel := context.WithCancel(context.Background())
	evictor.Start(ctx)
	cancel()

	deadline := time.Now().Add(time.Second)
	for evictor.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("evictor still running after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
