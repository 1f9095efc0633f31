package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveTimesOutWithoutPongs(t *testing.T) {
	var pings atomic.Int32
	timedOut := make(chan struct{})

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(uint32) error {
		pings.Add(1)
		return nil
	}, func() { close(timedOut) })

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("keep-alive did not time out")
	}
	if pings.Load() < 2 {
		t.Errorf("only %d pings sent", pings.Load())
	}
}

func TestKeepAlivePongsKeepConnectionAlive(t *testing.T) {
	var ka *KeepAlive
	timedOut := make(chan struct{}, 1)

	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(seq uint32) error {
		go ka.PongReceived(seq)
		return nil
	}, func() { timedOut <- struct{}{} })

	ka.Start(context.Background())
	select {
	case <-timedOut:
		t.Fatal("timed out despite pongs")
	case <-time.After(100 * time.Millisecond):
	}
	ka.Stop()
	ka.Stop()

	if ka.LastLatency() <= 0 {
		t.Error("no latency recorded")
	}
}

func TestKeepAliveDefaults(t *testing.T) {
	cfg := DefaultKeepAliveConfig()
	if cfg.DetectionDelay() != 50*time.Second {
		t.Errorf("DetectionDelay = %v", cfg.DetectionDelay())
	}
	ka := NewKeepAlive(KeepAliveConfig{}, func(uint32) error { return nil }, nil)
	if ka.config != cfg {
		t.Errorf("zero config not defaulted: %+v", ka.config)
	}
}
