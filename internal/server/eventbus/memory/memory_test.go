package memory

import (
	"context"
	"testing"

	"github.com/agentkitdev/agentkit/internal/server/eventbus"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := New()
	topic := eventbus.RunTopic("r1")

	first := make(chan any, 4)
	second := make(chan any, 4)

	unsubFirst, err := bus.Subscribe(topic, first)
	if err != nil {
		t.Fatalf("subscribe first: %v", err)
	}
	defer unsubFirst()
	unsubSecond, err := bus.Subscribe(topic, second)
	if err != nil {
		t.Fatalf("subscribe second: %v", err)
	}
	defer unsubSecond()

	if err := bus.Publish(context.Background(), topic, "payload"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for name, ch := range map[string]chan any{"first": first, "second": second} {
		select {
		case got := <-ch:
			if got != "payload" {
				t.Fatalf("%s subscriber got %v", name, got)
			}
		default:
			t.Fatalf("%s subscriber received nothing", name)
		}
	}
}

func TestPublishSkipsFullSubscriber(t *testing.T) {
	bus := New()
	topic := eventbus.RunTopic("r1")

	full := make(chan any, 1)
	full <- "stale"
	healthy := make(chan any, 1)

	unsubFull, _ := bus.Subscribe(topic, full)
	defer unsubFull()
	unsubHealthy, _ := bus.Subscribe(topic, healthy)
	defer unsubHealthy()

	// Must not block even though the first channel has no capacity left.
	if err := bus.Publish(context.Background(), topic, "fresh"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-healthy:
		if got != "fresh" {
			t.Fatalf("healthy subscriber got %v", got)
		}
	default:
		t.Fatalf("healthy subscriber starved by full one")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	topic := eventbus.RunTopic("r1")

	ch := make(chan any, 1)
	unsubscribe, err := bus.Subscribe(topic, ch)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	unsubscribe()
	// Second call must be harmless.
	unsubscribe()

	if err := bus.Publish(context.Background(), topic, "late"); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}
	select {
	case got := <-ch:
		t.Fatalf("received %v after unsubscribe", got)
	default:
	}
}

func TestSubscribeNilChannel(t *testing.T) {
	bus := New()
	if _, err := bus.Subscribe("t", nil); err == nil {
		t.Fatalf("expected error for nil channel")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := New()
	a := make(chan any, 1)
	b := make(chan any, 1)

	unsubA, _ := bus.Subscribe(eventbus.RunTopic("a"), a)
	defer unsubA()
	unsubB, _ := bus.Subscribe(eventbus.RunTopic("b"), b)
	defer unsubB()

	if err := bus.Publish(context.Background(), eventbus.RunTopic("a"), "only-a"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-b:
		t.Fatalf("event for run a delivered to run b subscriber")
	default:
	}
	select {
	case got := <-a:
		if got != "only-a" {
			t.Fatalf("unexpected payload %v", got)
		}
	default:
		t.Fatalf("subscriber for run a received nothing")
	}
}
