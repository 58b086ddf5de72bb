package network

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryPubSubRoutesByKeyExpr(t *testing.T) {
	bus := NewMemoryPubSub()
	exact, cancelExact, err := bus.Subscribe("drone/sensor")
	if err != nil {
		t.Fatalf("subscribe exact: %v", err)
	}
	defer cancelExact()
	wild, cancelWild, err := bus.Subscribe("drone/*")
	if err != nil {
		t.Fatalf("subscribe wild: %v", err)
	}
	defer cancelWild()
	other, cancelOther, err := bus.Subscribe("joystick/operation")
	if err != nil {
		t.Fatalf("subscribe other: %v", err)
	}
	defer cancelOther()

	if err := bus.Publish("drone/sensor", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for name, ch := range map[string]<-chan Message{"exact": exact, "wild": wild} {
		select {
		case msg := <-ch:
			if msg.Topic != "drone/sensor" || string(msg.Payload) != "hello" {
				t.Fatalf("%s: unexpected message %+v", name, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: message not delivered", name)
		}
	}
	select {
	case msg := <-other:
		t.Fatalf("unrelated subscriber got %+v", msg)
	default:
	}
}

func TestMemoryPubSubRejectsInvalidKeys(t *testing.T) {
	bus := NewMemoryPubSub()
	if err := bus.Publish("/bad", nil); err == nil {
		t.Fatal("expected invalid publish key to fail")
	}
	if _, _, err := bus.Subscribe("bad/"); err == nil {
		t.Fatal("expected invalid subscribe key to fail")
	}
}

func TestMemorySessionCloseCancelsOnlyItsSubscriptions(t *testing.T) {
	bus := NewMemoryPubSub()
	a, err := bus.Open(context.Background())
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := bus.Open(context.Background())
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	chA, _, err := a.Subscribe("drone/sensor")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	chB, cancelB, err := b.Subscribe("drone/sensor")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer cancelB()

	if err := a.Close(); err != nil {
		t.Fatalf("close a: %v", err)
	}
	if _, ok := <-chA; ok {
		t.Fatal("expected session a channel to be closed")
	}
	if err := a.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on second close, got %v", err)
	}
	if err := a.Publish("drone/sensor", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on publish after close, got %v", err)
	}
	if _, _, err := a.Subscribe("drone/sensor"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on subscribe after close, got %v", err)
	}

	if err := b.Publish("drone/sensor", []byte("still-alive")); err != nil {
		t.Fatalf("publish b: %v", err)
	}
	select {
	case msg := <-chB:
		if string(msg.Payload) != "still-alive" {
			t.Fatalf("unexpected payload %q", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("session b stopped receiving after session a closed")
	}
	if n := bus.Subscribers("drone/sensor"); n != 1 {
		t.Fatalf("expected 1 live subscriber, got %d", n)
	}
}

func TestMemoryOpenHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryPubSub().Open(ctx); err == nil {
		t.Fatal("expected open with cancelled context to fail")
	}
}
