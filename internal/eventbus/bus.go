// Package eventbus implements a multi-consumer broadcast of
// SourceChanged(source_id) notifications. Every message is a hint to
// recheck, not a delta, so slow consumers may drop messages: a consumer
// that receives any later message re-reads the cache and converges.
package eventbus

import (
	"sync"

	"github.com/AleksandrNi/token-agent/pkg/metrics"
)

// subscriberCapacity bounds each subscriber's channel; on overflow the
// oldest pending message is dropped to make room for the new one.
const subscriberCapacity = 50

// SourceChanged is the sole event the bus carries.
type SourceChanged struct {
	SourceID string
}

// Bus is a lock-free-to-readers multi-consumer broadcast channel. Publish
// never blocks on a slow subscriber; subscribers drop their oldest
// pending message instead.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]chan SourceChanged
	metrics     *metrics.Collector
}

// New creates an empty Bus.
func New(collector *metrics.Collector) *Bus {
	return &Bus{
		subscribers: make(map[string]chan SourceChanged),
		metrics:     collector,
	}
}

// Subscribe registers a new named consumer and returns its receive-only
// channel. name is used only for the bus-drop metric label.
func (b *Bus) Subscribe(name string) <-chan SourceChanged {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan SourceChanged, subscriberCapacity)
	b.subscribers[name] = ch
	return ch
}

// Unsubscribe removes and closes a named consumer's channel.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[name]; ok {
		close(ch)
		delete(b.subscribers, name)
	}
}

// Publish broadcasts an event to every current subscriber. A subscriber
// whose buffer is full has its oldest message dropped to make room; the
// drop is counted against that subscriber's name.
func (b *Bus) Publish(event SourceChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
				if b.metrics != nil {
					b.metrics.RecordBusDrop(name)
				}
			default:
			}
			select {
			case ch <- event:
			default:
				// Not reached while b.mu is held: no other publish can
				// refill the buffer between the drop and the retry. If
				// it ever were, the event is given up silently; the
				// subscriber still converges on the next message.
			}
		}
	}
}
