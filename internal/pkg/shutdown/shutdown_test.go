package shutdown

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cardpress/internal/pkg/logger"
)

func TestShutdownRunsEveryHookOnce(t *testing.T) {
	m := NewManager(logger.NewNop(), time.Second)

	var calls atomic.Int32
	m.Register("db", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	m.RegisterSimple("redis", func() { calls.Add(1) })

	m.Shutdown()
	m.Shutdown()

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	select {
	case <-m.Done():
	default:
		t.Error("Done should be closed after Shutdown")
	}
}

func TestShutdownLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	m := NewManager(logger.New(logger.Config{Output: &lockedWriter{w: &buf, mu: &mu}}), time.Second)
	m.Register("http", func(ctx context.Context) error { return errors.New("listener stuck") })
	m.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(buf.String(), "listener stuck") {
		t.Errorf("failure not logged: %s", buf.String())
	}
}

func TestShutdownTimeout(t *testing.T) {
	m := NewManager(logger.NewNop(), 20*time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	m.Register("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	start := time.Now()
	m.Shutdown()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown ignored its timeout: %s", elapsed)
	}
}

func TestHookSeesDeadline(t *testing.T) {
	m := NewManager(nil, time.Second)
	var hasDeadline bool
	m.Register("check", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	m.Shutdown()
	if !hasDeadline {
		t.Error("hook context should carry the shutdown deadline")
	}
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	m := NewManager(logger.NewNop(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	shutdownCtx := m.Context()
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	m.Wait(ctx)

	select {
	case <-shutdownCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("Context should be canceled after shutdown")
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
