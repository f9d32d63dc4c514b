package vitals

import (
	"sync"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/internal/session"
)

// Feed consumes the telemetry stream and keeps the most recent sample for
// the call UI. Sharing is a view-level gate: it controls what Shared exposes
// and never touches the simulator itself.
type Feed struct {
	mu     sync.RWMutex
	latest models.VitalsSample

	closed chan struct{}
	once   sync.Once

	subMu sync.Mutex
	subs  map[chan models.VitalsSample]struct{}
}

// NewFeed starts consuming readings.
func NewFeed(readings <-chan models.VitalsSample) *Feed {
	f := &Feed{
		closed: make(chan struct{}),
		subs:   make(map[chan models.VitalsSample]struct{}),
	}
	go f.consume(readings)
	return f
}

// Close stops the consumer.
func (f *Feed) Close() {
	f.once.Do(func() { close(f.closed) })
}

func (f *Feed) consume(readings <-chan models.VitalsSample) {
	for {
		select {
		case <-f.closed:
			return
		case sample, ok := <-readings:
			if !ok {
				return
			}
			f.mu.Lock()
			f.latest = sample
			f.mu.Unlock()
			f.fanout(sample)
		}
	}
}

func (f *Feed) fanout(sample models.VitalsSample) {
	f.subMu.Lock()
	for ch := range f.subs {
		select {
		case ch <- sample:
		default:
		}
	}
	f.subMu.Unlock()
}

// Latest returns the newest sample regardless of sharing, for the local
// measurement screen.
func (f *Feed) Latest() models.VitalsSample {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

// Shared returns the newest sample only when the session snapshot permits
// remote visibility: sharing toggled on and a connected-family call state.
// Otherwise it returns the zero "no data" sample.
func (f *Feed) Shared(snap session.Snapshot) models.VitalsSample {
	if !snap.VitalsSharing || !snap.State.Connected() {
		return models.VitalsSample{}
	}
	return f.Latest()
}

// Subscribe streams samples as they arrive; slow consumers miss samples.
func (f *Feed) Subscribe() (<-chan models.VitalsSample, func()) {
	ch := make(chan models.VitalsSample, 16)
	f.subMu.Lock()
	f.subs[ch] = struct{}{}
	f.subMu.Unlock()
	cancel := func() {
		f.subMu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.subMu.Unlock()
	}
	return ch, cancel
}
