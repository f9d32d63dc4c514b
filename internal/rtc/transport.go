package rtc

import "context"

// Phase is the transport connection phase for the active channel.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
	PhaseFailed
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// EventKind identifies a normalized transport event.
type EventKind int

const (
	EventJoinedSelf EventKind = iota
	EventRemoteJoined
	EventRemoteLeft
	EventRemoteVideoState
	EventRemoteAudioState
	EventPhaseChanged
	EventNetworkQuality
	EventFailed
	EventLeftChannel
)

// Event is the closed set of session-relevant transport events. Raw engine
// callbacks are adapted into this shape before they reach the session
// coordinator; fields beyond Kind are populated per kind.
type Event struct {
	Kind    EventKind
	UID     int64
	Enabled bool  // remote media state events
	Phase   Phase // phase change events
	Tx, Rx  int   // network quality events
	Code    int   // failure events
	Message string
}

// Transport is the video/audio engine port. Join and Leave are asynchronous:
// completion is observed on the event stream, not via return values. Media
// toggles are accepted speculatively; before an engine exists they are no-ops
// and the toggles report the local flag they would have produced.
type Transport interface {
	// Join connects to the shared channel. Only one channel membership is
	// permitted at a time; implementations leave any previous channel first.
	Join(ctx context.Context, token, channelID string, uid int64) error
	Leave()
	ToggleAudio() bool
	ToggleVideo() bool
	SwitchCamera()
	// Events returns the normalized event stream. The channel is closed when
	// the transport shuts down.
	Events() <-chan Event
}
