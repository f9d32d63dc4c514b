package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/chat"
	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/internal/session"
	"github.com/vitalink/telecare/internal/vitals"
)

// Bridge fans the core event streams out to UI sockets: session snapshots,
// telemetry samples, chat messages, and best-effort notices all land in the
// consultation room. The room is fixed per device, matching the configured
// consultation channel.
type Bridge struct {
	hub     *Hub
	room    string
	session *session.Coordinator
	chat    *chat.Coordinator
	feed    *vitals.Feed
	logger  *zap.Logger

	stop []func()
	once sync.Once
}

// NewBridge wires the streams into the hub. chat and feed may be nil.
func NewBridge(hub *Hub, room string, sess *session.Coordinator, chatCoord *chat.Coordinator, feed *vitals.Feed, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		hub:     hub,
		room:    room,
		session: sess,
		chat:    chatCoord,
		feed:    feed,
		logger:  logger,
	}
}

// Start begins pumping events until Close.
func (b *Bridge) Start() {
	snaps, cancelSnaps := b.session.Subscribe()
	b.stop = append(b.stop, cancelSnaps)
	go func() {
		for snap := range snaps {
			b.hub.Broadcast(b.room, "session_state", snap)
		}
	}()

	if b.chat != nil {
		msgs, cancelMsgs := b.chat.Subscribe()
		b.stop = append(b.stop, cancelMsgs)
		go func() {
			for msg := range msgs {
				// publish-only: the room subscription delivers locally too,
				// a direct broadcast on top would double every message
				b.hub.PublishOnly(b.room, "chat_message", msg)
			}
		}()
	}

	if b.feed != nil {
		samples, cancelSamples := b.feed.Subscribe()
		b.stop = append(b.stop, cancelSamples)
		go func() {
			for sample := range samples {
				b.broadcastSample(sample)
			}
		}()
	}
}

// broadcastSample applies the sharing gate before any sample leaves the
// device: remote UIs only see telemetry the patient is actively sharing.
func (b *Bridge) broadcastSample(sample models.VitalsSample) {
	snap := b.session.Snapshot()
	if !snap.VitalsSharing || !snap.State.Connected() {
		return
	}
	b.hub.PublishOnly(b.room, "vitals_sample", sample)
}

// Notify implements the session and chat notifier side channel.
func (b *Bridge) Notify(kind, message string) {
	b.hub.Broadcast(b.room, "notice", map[string]string{
		"kind":    kind,
		"message": message,
	})
	b.logger.Info("notice", zap.String("kind", kind), zap.String("message", message))
}

// Close stops the pumps.
func (b *Bridge) Close() {
	b.once.Do(func() {
		for _, cancel := range b.stop {
			cancel()
		}
	})
}
