package broker

import (
	"sync"
	"sync/atomic"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

// Subscriber is one independent fan-out slot returned by
// Broker.SubscribeMetrics. Each subscriber owns a bounded queue; when it
// lags, the broadcaster drops the oldest queued sample rather than block
// ingestion.
type Subscriber struct {
	ch          chan model.MetricSample
	laggedDrops uint64
	closed      int32
}

// Chan returns the channel of delivered samples.
func (s *Subscriber) Chan() <-chan model.MetricSample { return s.ch }

// LaggedDrops returns the number of samples dropped for this subscriber
// because it fell behind.
func (s *Subscriber) LaggedDrops() uint64 { return atomic.LoadUint64(&s.laggedDrops) }

// broadcaster fans a single stream of MetricSamples out to N subscribers.
// Publish never blocks: a full subscriber queue has its oldest entry
// dropped to make room for the new sample.
type broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	queueCap    int
}

func newBroadcaster(queueCap int) *broadcaster {
	if queueCap <= 0 {
		queueCap = 256
	}
	return &broadcaster{subscribers: make(map[*Subscriber]struct{}), queueCap: queueCap}
}

func (b *broadcaster) subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan model.MetricSample, b.queueCap)}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *broadcaster) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	atomic.StoreInt32(&sub.closed, 1)
}

// publish delivers sample to every subscriber, oldest-drop on overflow.
func (b *broadcaster) publish(sample model.MetricSample) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub.ch <- sample:
		default:
			// Queue full: drop the oldest queued sample, then retry once.
			select {
			case <-sub.ch:
				atomic.AddUint64(&sub.laggedDrops, 1)
			default:
			}
			select {
			case sub.ch <- sample:
			default:
				atomic.AddUint64(&sub.laggedDrops, 1)
			}
		}
	}
}

// laggedDropsSnapshot returns lagged-drop counts keyed by a positional tag
// ("sub-a", "sub-b", ...). Tags follow map iteration order, so a tag does
// not name the same subscriber from one call to the next, and every
// subscriber past the 26th shares "sub-n", so only one of their counts
// appears.
func (b *broadcaster) laggedDropsSnapshot() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]uint64, len(b.subscribers))
	i := 0
	for sub := range b.subscribers {
		out[subscriberTag(i)] = sub.LaggedDrops()
		i++
	}
	return out
}

func subscriberTag(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return "sub-" + string(letters[i])
	}
	return "sub-n"
}
