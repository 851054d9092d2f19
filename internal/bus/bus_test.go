package bus

import (
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/logger"
)

func newBus(timeout time.Duration) *Bus {
	return NewWithTimeout(logger.New(io.Discard, logger.LevelDebug, "test", nil), timeout)
}

func TestRequestResponseRoundTrip(t *testing.T) {
	b := newBus(time.Second)
	port := b.RegisterWorker("chain-1", 8)

	// Echo worker.
	go func() {
		req := <-port.Requests()
		port.Respond(Response{CorrelationID: req.CorrelationID, Data: req.Data})
	}()

	handle := b.SendRequest("chain-1", "fetch-pool", map[string]any{"address": "0xabc"})
	data, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}

	m, ok := data.(map[string]any)
	if !ok || m["address"] != "0xabc" {
		t.Errorf("data = %#v", data)
	}
	if b.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", b.PendingCount())
	}
}

func TestRequestTimeout(t *testing.T) {
	b := newBus(50 * time.Millisecond)
	b.RegisterWorker("silent", 8) // never replies

	handle := b.SendRequest("silent", "init", nil)
	_, err := handle.Await(context.Background())

	if apperror.GetCode(err) != apperror.CodeTimeout {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeTimeout)
	}
	// The pending map must no longer contain the correlation id.
	if b.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0 after timeout", b.PendingCount())
	}
}

func TestWorkerFailureSweepsPending(t *testing.T) {
	b := newBus(10 * time.Second)
	b.RegisterWorker("dying", 8)

	h1 := b.SendRequest("dying", "fetch-all", nil)
	h2 := b.SendRequest("dying", "fetch-pool", nil)
	if b.PendingCount() != 2 {
		t.Fatalf("pending = %d, want 2", b.PendingCount())
	}

	b.FailWorker("dying", apperror.CodeWorkerTerminated)

	for _, h := range []*Handle{h1, h2} {
		_, err := h.Await(context.Background())
		if apperror.GetCode(err) != apperror.CodeWorkerTerminated {
			t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeWorkerTerminated)
		}
	}
	if b.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0 after sweep", b.PendingCount())
	}

	// New requests to the failed worker fail immediately.
	h3 := b.SendRequest("dying", "init", nil)
	if _, err := h3.Await(context.Background()); apperror.GetCode(err) != apperror.CodeWorkerFailed {
		t.Errorf("post-failure code = %s, want %s", apperror.GetCode(err), apperror.CodeWorkerFailed)
	}
}

func TestCancelClearsPending(t *testing.T) {
	b := newBus(10 * time.Second)
	b.RegisterWorker("busy", 8)

	handle := b.SendRequest("busy", "update-config", nil)
	handle.Cancel()

	_, err := handle.Await(context.Background())
	if apperror.GetCode(err) != apperror.CodeCancelled {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeCancelled)
	}
	if b.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0 after cancel", b.PendingCount())
	}
}

func TestLateResponseAfterCancelIsDiscarded(t *testing.T) {
	b := newBus(10 * time.Second)
	port := b.RegisterWorker("slow", 8)

	handle := b.SendRequest("slow", "fetch-all", nil)
	handle.Cancel()

	// The worker replies after cancellation; the result is discarded.
	req := <-port.Requests()
	port.Respond(Response{CorrelationID: req.CorrelationID, Data: "late"})

	data, err := handle.Await(context.Background())
	if apperror.GetCode(err) != apperror.CodeCancelled {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeCancelled)
	}
	if data != nil {
		t.Errorf("late data leaked: %v", data)
	}
}

func TestBigIntsSurviveTheBoundary(t *testing.T) {
	b := newBus(time.Second)
	port := b.RegisterWorker("chain-1", 8)

	reserve, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10) // 2^128

	go func() {
		req := <-port.Requests()
		// The worker sees the envelope tree, not a shared pointer.
		port.Respond(Response{CorrelationID: req.CorrelationID, Data: req.Data})
	}()

	handle := b.SendRequest("chain-1", "fetch-pool", map[string]any{
		"reserve0": reserve,
		"nested":   []any{big.NewInt(42)},
	})
	data, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}

	m := data.(map[string]any)
	got, ok := m["reserve0"].(*big.Int)
	if !ok {
		t.Fatalf("reserve0 decoded as %T, want *big.Int", m["reserve0"])
	}
	if got.Cmp(reserve) != 0 {
		t.Errorf("reserve0 = %s, want %s", got, reserve)
	}
	if got == reserve {
		t.Error("big.Int crossed the bus by reference, want structural copy")
	}

	nested := m["nested"].([]any)
	if n, ok := nested[0].(*big.Int); !ok || n.Int64() != 42 {
		t.Errorf("nested big int lost: %#v", nested[0])
	}
}

func TestEventsAreFireAndForget(t *testing.T) {
	b := newBus(time.Second)
	port := b.RegisterWorker("chain-1", 8)

	received := make(chan Event, 1)
	unsubscribe := b.Subscribe(func(ev Event) { received <- ev })
	defer unsubscribe()

	port.Publish("newBlock", map[string]any{"number": float64(123)})

	select {
	case ev := <-received:
		if ev.Name != "newBlock" || ev.WorkerID != "chain-1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	// After unsubscribe no further delivery.
	unsubscribe()
	port.Publish("newBlock", nil)
	select {
	case <-received:
		t.Error("unsubscribed handler still invoked")
	case <-time.After(50 * time.Millisecond):
	}
}
