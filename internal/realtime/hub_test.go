package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clinic-queue/internal/store"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	fail     bool
	closed   bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.messages = append(f.messages, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func countingBuilder(builds *atomic.Int32) Builder {
	return func(context.Context) ([]byte, error) {
		n := builds.Add(1)
		return []byte{byte('0' + n)}, nil
	}
}

func TestNotifyDebouncesBursts(t *testing.T) {
	var builds atomic.Int32
	hub := NewHub(countingBuilder(&builds), 20*time.Millisecond)
	conn := &fakeConn{}
	hub.Register(conn)

	for i := 0; i < 10; i++ {
		hub.Notify()
	}

	deadline := time.Now().Add(2 * time.Second)
	for conn.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	if builds.Load() != 1 || conn.count() != 1 {
		t.Fatalf("builds=%d messages=%d, want 1 and 1", builds.Load(), conn.count())
	}
}

func TestWriteErrorDropsClient(t *testing.T) {
	var builds atomic.Int32
	hub := NewHub(countingBuilder(&builds), time.Millisecond)
	good := &fakeConn{}
	bad := &fakeConn{fail: true}
	hub.Register(good)
	hub.Register(bad)

	hub.Broadcast(context.Background())

	if hub.Count() != 1 {
		t.Fatalf("clients = %d, want 1", hub.Count())
	}
	if !bad.closed || good.count() != 1 {
		t.Fatalf("bad closed=%v good messages=%d", bad.closed, good.count())
	}
}

func TestSendInitialUsesCache(t *testing.T) {
	var builds atomic.Int32
	hub := NewHub(countingBuilder(&builds), time.Millisecond)

	first := &fakeConn{}
	id := hub.Register(first)
	hub.SendInitial(context.Background(), id)
	if builds.Load() != 1 || first.count() != 1 {
		t.Fatalf("initial send without cache should build once")
	}

	hub.Broadcast(context.Background())
	second := &fakeConn{}
	id = hub.Register(second)
	hub.SendInitial(context.Background(), id)
	if builds.Load() != 2 {
		t.Fatalf("builds = %d, cached message should be reused", builds.Load())
	}
	if string(second.messages[0]) != "2" {
		t.Fatalf("second client got %q", second.messages[0])
	}
}

func TestSweepDropsSilentClients(t *testing.T) {
	hub := NewHub(func(context.Context) ([]byte, error) { return nil, nil }, time.Millisecond)
	quiet := &fakeConn{}
	hub.Register(quiet)
	hub.Register(&fakeConn{})

	hub.sweep(time.Now().Add(staleAfter + time.Second))
	if hub.Count() != 0 || !quiet.closed {
		t.Fatalf("stale clients kept: %d", hub.Count())
	}

	id := hub.Register(quiet)
	hub.Touch(id)
	hub.sweep(time.Now())
	if hub.Count() != 1 {
		t.Fatalf("fresh client dropped")
	}
}

func TestRunRelaysChanges(t *testing.T) {
	var builds atomic.Int32
	hub := NewHub(countingBuilder(&builds), 5*time.Millisecond)
	conn := &fakeConn{}
	hub.Register(conn)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan store.Change, 1)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx, changes)
		close(done)
	}()

	changes <- store.Change{Path: "queue/global"}
	deadline := time.Now().Add(2 * time.Second)
	for conn.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if conn.count() == 0 {
		t.Fatal("change not relayed")
	}

	cancel()
	<-done
}

func TestPingUnknownOrClosedClient(t *testing.T) {
	hub := NewHub(func(context.Context) ([]byte, error) { return []byte("x"), nil }, 0)
	if hub.Ping("client-missing") {
		t.Fatal("ping to unknown client should fail")
	}

	conn := &fakeConn{}
	id := hub.Register(conn)
	if !hub.Ping(id) {
		t.Fatal("ping to live client should succeed")
	}
	hub.Unregister(id)
	if hub.Ping(id) {
		t.Fatal("ping after unregister should fail")
	}
}
