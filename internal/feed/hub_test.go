package feed

import (
	"sync"
	"testing"
)

func TestNotifyReachesOnlyThatUser(t *testing.T) {
	h := NewHub()
	a, stopA := h.Listen("u1")
	b, stopB := h.Listen("u2")
	defer stopA()
	defer stopB()

	h.Notify("u1")

	select {
	case <-a:
	default:
		t.Fatal("u1 listener not signalled")
	}
	select {
	case <-b:
		t.Fatal("u2 listener signalled for u1 change")
	default:
	}
}

func TestSignalsCoalesce(t *testing.T) {
	h := NewHub()
	ch, stop := h.Listen("u1")
	defer stop()

	for i := 0; i < 10; i++ {
		h.Notify("u1")
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("expected a single pending signal")
	default:
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h := NewHub()
	ch, stop := h.Listen("u1")
	if h.Listeners("u1") != 1 {
		t.Fatalf("listeners = %d, want 1", h.Listeners("u1"))
	}
	stop()
	stop()
	if h.Listeners("u1") != 0 {
		t.Fatalf("listeners = %d after stop", h.Listeners("u1"))
	}
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after stop")
	}
	h.Notify("u1")
}

func TestConcurrentListenNotify(t *testing.T) {
	h := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, stop := h.Listen("u1")
			stop()
		}()
		go func() {
			defer wg.Done()
			h.Notify("u1")
		}()
	}
	wg.Wait()
	if h.Listeners("u1") != 0 {
		t.Fatalf("leaked listeners: %d", h.Listeners("u1"))
	}
}
