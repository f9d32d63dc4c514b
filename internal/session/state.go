package session

// StateKind enumerates the call lifecycle states. Exactly one is active at a
// time; Error carries a code and message payload in State.
type StateKind int

const (
	StateIdle StateKind = iota
	StateNotConfigured
	StatePreCall
	StateConnecting
	StateWaitingForRemote
	StateInCall
	StateReconnecting
	StateError
	StatePostCall
)

// String returns the state name.
func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateNotConfigured:
		return "not_configured"
	case StatePreCall:
		return "pre_call"
	case StateConnecting:
		return "connecting"
	case StateWaitingForRemote:
		return "waiting_for_remote"
	case StateInCall:
		return "in_call"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	case StatePostCall:
		return "post_call"
	}
	return "unknown"
}

// State is the tagged lifecycle state. Code and Message are meaningful only
// when Kind is StateError.
type State struct {
	Kind    StateKind `json:"kind"`
	Code    int       `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// MarshalJSON-friendly name for UI consumers.
func (s State) Name() string { return s.Kind.String() }

// Connected reports whether the state belongs to the connected family, i.e.
// a channel membership is active.
func (s State) Connected() bool {
	switch s.Kind {
	case StateConnecting, StateWaitingForRemote, StateInCall, StateReconnecting:
		return true
	}
	return false
}

// Terminal reports whether the state ends a call cycle and requires an
// explicit reset before a new call.
func (s State) Terminal() bool {
	return s.Kind == StateError || s.Kind == StatePostCall
}

func errorState(code int, message string) State {
	return State{Kind: StateError, Code: code, Message: message}
}

// Snapshot is the read-only session view published to observers. Slices are
// copies; holders never see later mutations.
type Snapshot struct {
	State            State         `json:"state"`
	ChannelID        string        `json:"channel_id"`
	LocalUID         int64         `json:"local_uid"`
	DurationSeconds  int           `json:"duration_seconds"`
	LocalAudioOn     bool          `json:"local_audio_on"`
	LocalVideoOn     bool          `json:"local_video_on"`
	NetworkQuality   int           `json:"network_quality"`
	VitalsSharing    bool          `json:"vitals_sharing"`
	Participants     []Participant `json:"participants"`
}
