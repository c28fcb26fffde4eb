package main

import (
	"context"
	"testing"
	"time"

	"fincon/internal/amqp"
	"fincon/internal/ledger"
)

func TestRelaySkipsOwnChanges(t *testing.T) {
	l := ledger.New(nil)
	signals, stop := l.Hub().Listen("u1")
	defer stop()

	handle := relay(l)

	own := amqp.NewChangeMessage("u1", amqp.ChangeCreated, "t1")
	own.Origin = l.Origin()
	if err := handle(context.Background(), own); err != nil {
		t.Fatalf("relay: %v", err)
	}
	select {
	case <-signals:
		t.Fatal("own change woke subscribers twice")
	default:
	}

	remote := amqp.NewChangeMessage("u1", amqp.ChangeCreated, "t2")
	remote.Origin = "another-replica"
	if err := handle(context.Background(), remote); err != nil {
		t.Fatalf("relay: %v", err)
	}
	select {
	case <-signals:
	case <-time.After(time.Second):
		t.Fatal("remote change did not wake subscribers")
	}
}
