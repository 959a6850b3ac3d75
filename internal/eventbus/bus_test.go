package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: "post.sent", Data: 7})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != "post.sent" || ev.Data.(int) != 7 {
				t.Fatalf("subscriber %d got %+v", i, ev)
			}
			if ev.Time.IsZero() {
				t.Fatalf("subscriber %d got zero timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never got the event", i)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	// Buffer of one, three publishes: the extras must be dropped, not
	// block the publisher.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			b.Publish(Event{Type: "tick"})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	unsub()

	// Publishing after unsubscribe must not panic on the closed channel.
	b.Publish(Event{Type: "tick"})

	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}
	// Double unsubscribe is harmless.
	unsub()
}
