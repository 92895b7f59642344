package pubsub

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe("message")

	b.Publish(&Message{Topic: "message", Payload: "hello"})

	select {
	case got := <-sub.Channel():
		if got.Payload.(string) != "hello" {
			t.Errorf("expected hello, got %v", got.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe("message")
	sub.Unsubscribe()

	b.Publish(&Message{Topic: "message", Payload: "hello"})

	_, ok := <-sub.Channel()
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestFullQueueDropsOldest(t *testing.T) {
	b := NewBus(1)
	sub := b.Subscribe("message")
	b.Publish(&Message{Topic: "message", Payload: 1})
	b.Publish(&Message{Topic: "message", Payload: 2})

	got := <-sub.Channel()
	if got.Payload.(int) != 2 {
		t.Fatalf("expected newest message to survive, got %v", got.Payload)
	}
}
