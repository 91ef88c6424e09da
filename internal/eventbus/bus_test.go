package eventbus

import "testing"

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe("sub")

	b.Publish(SourceChanged{SourceID: "A"})

	select {
	case evt := <-ch:
		if evt.SourceID != "A" {
			t.Errorf("got %q, want A", evt.SourceID)
		}
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestPublishFansOutToMultipleSubscribers(t *testing.T) {
	b := New(nil)
	ch1 := b.Subscribe("sub1")
	ch2 := b.Subscribe("sub2")

	b.Publish(SourceChanged{SourceID: "A"})

	if evt := <-ch1; evt.SourceID != "A" {
		t.Errorf("sub1 got %q, want A", evt.SourceID)
	}
	if evt := <-ch2; evt.SourceID != "A" {
		t.Errorf("sub2 got %q, want A", evt.SourceID)
	}
}

func TestPublishOverflowNeverExceedsCapacity(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe("sub")

	for i := 0; i < subscriberCapacity+10; i++ {
		b.Publish(SourceChanged{SourceID: "A"})
	}

	// The channel never blocks the publisher and never exceeds its
	// capacity regardless of how many events were published.
	if len(ch) > subscriberCapacity {
		t.Fatalf("channel length %d exceeds capacity %d", len(ch), subscriberCapacity)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe("sub")
	b.Unsubscribe("sub")

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}
