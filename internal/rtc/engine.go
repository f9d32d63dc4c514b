package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	signalWriteTimeout = 10 * time.Second
	eventBuffer        = 64
)

// signalMessage is the envelope exchanged with the signaling service.
type signalMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	Channel string `json:"channel"`
	UID     int64  `json:"uid"`
	Token   string `json:"token,omitempty"`
}

type peerPayload struct {
	UID int64 `json:"uid"`
}

type mediaStatePayload struct {
	UID     int64  `json:"uid"`
	Kind    string `json:"kind"` // "audio" or "video"
	Enabled bool   `json:"enabled"`
}

type qualityPayload struct {
	UID int64 `json:"uid"`
	Tx  int   `json:"tx"`
	Rx  int   `json:"rx"`
}

type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Engine is the WebRTC transport: a peer connection signaled over a
// WebSocket channel. It adapts engine and signaling callbacks into the
// normalized Event stream; all media commands are tolerated before Join.
type Engine struct {
	signalURL string
	ice       []webrtc.ICEServer
	log       *zap.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	pc           *webrtc.PeerConnection
	channelID    string
	localUID     int64
	audioEnabled bool
	videoEnabled bool
	frontCamera  bool
	closed       bool

	events chan Event
}

// NewEngine creates an engine that signals via signalURL and uses the given
// ICE servers (STUN fallback when empty).
func NewEngine(signalURL string, iceURLs []string, log *zap.Logger) *Engine {
	ice := make([]webrtc.ICEServer, 0, len(iceURLs))
	for _, u := range iceURLs {
		if u != "" {
			ice = append(ice, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	if len(ice) == 0 {
		ice = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	return &Engine{
		signalURL:    signalURL,
		ice:          ice,
		log:          log,
		audioEnabled: true,
		videoEnabled: true,
		frontCamera:  true,
		events:       make(chan Event, eventBuffer),
	}
}

// Events returns the normalized event stream.
func (e *Engine) Events() <-chan Event { return e.events }

// Join connects to the signaling service and the channel. Any previous
// channel membership is left first; join is not additive.
func (e *Engine) Join(ctx context.Context, token, channelID string, uid int64) error {
	e.Leave()

	e.emit(Event{Kind: EventPhaseChanged, Phase: PhaseConnecting})

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, e.signalURL, nil)
	if err != nil {
		e.emit(Event{Kind: EventFailed, Code: -1, Message: "signaling dial failed"})
		return fmt.Errorf("rtc: dial signaling: %w", err)
	}

	pc, err := e.newPeerConnection()
	if err != nil {
		_ = conn.Close()
		e.emit(Event{Kind: EventFailed, Code: -1, Message: "peer connection failed"})
		return fmt.Errorf("rtc: peer connection: %w", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.pc = pc
	e.channelID = channelID
	e.localUID = uid
	e.closed = false
	e.mu.Unlock()

	if err := e.send("join", joinPayload{Channel: channelID, UID: uid, Token: token}); err != nil {
		e.Leave()
		return err
	}

	go e.readLoop(conn)
	return nil
}

// Leave tears down the channel membership. Safe to call when not joined.
func (e *Engine) Leave() {
	e.mu.Lock()
	conn, pc := e.conn, e.pc
	e.conn, e.pc = nil, nil
	e.channelID = ""
	e.closed = true
	e.mu.Unlock()

	if conn == nil && pc == nil {
		return
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(signalWriteTimeout))
		_ = conn.Close()
	}
	if pc != nil {
		_ = pc.Close()
	}
	e.emit(Event{Kind: EventLeftChannel})
}

// ToggleAudio flips the local microphone flag and announces the new state to
// the channel. A no-op toggle before Join still flips the local flag so the
// preview UI stays consistent.
func (e *Engine) ToggleAudio() bool {
	e.mu.Lock()
	e.audioEnabled = !e.audioEnabled
	enabled, uid := e.audioEnabled, e.localUID
	connected := e.conn != nil
	e.mu.Unlock()
	if connected {
		_ = e.send("media_state", mediaStatePayload{UID: uid, Kind: "audio", Enabled: enabled})
	}
	return enabled
}

// ToggleVideo flips the local camera flag and announces the new state.
func (e *Engine) ToggleVideo() bool {
	e.mu.Lock()
	e.videoEnabled = !e.videoEnabled
	enabled, uid := e.videoEnabled, e.localUID
	connected := e.conn != nil
	e.mu.Unlock()
	if connected {
		_ = e.send("media_state", mediaStatePayload{UID: uid, Kind: "video", Enabled: enabled})
	}
	return enabled
}

// SwitchCamera flips between front and rear capture. Capture device selection
// lives in the UI layer; the engine only tracks the preference.
func (e *Engine) SwitchCamera() {
	e.mu.Lock()
	e.frontCamera = !e.frontCamera
	e.mu.Unlock()
}

func (e *Engine) newPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: e.ice})
	if err != nil {
		return nil, err
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		}); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, _ := json.Marshal(c.ToJSON())
		_ = e.send("ice", json.RawMessage(b))
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateChecking:
			e.emit(Event{Kind: EventPhaseChanged, Phase: PhaseConnecting})
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			e.emit(Event{Kind: EventPhaseChanged, Phase: PhaseConnected})
		case webrtc.ICEConnectionStateDisconnected:
			e.emit(Event{Kind: EventPhaseChanged, Phase: PhaseReconnecting})
		case webrtc.ICEConnectionStateFailed:
			e.emit(Event{Kind: EventFailed, Code: -2, Message: "ice connection failed"})
		}
	})

	return pc, nil
}

func (e *Engine) readLoop(conn *websocket.Conn) {
	for {
		var msg signalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			e.mu.Lock()
			stale := e.conn != conn || e.closed
			e.mu.Unlock()
			if !stale {
				e.emit(Event{Kind: EventPhaseChanged, Phase: PhaseReconnecting})
			}
			return
		}
		e.handleSignal(msg)
	}
}

func (e *Engine) handleSignal(msg signalMessage) {
	switch msg.Event {
	case "joined":
		var p peerPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			e.mu.Lock()
			e.localUID = p.UID
			e.mu.Unlock()
			e.emit(Event{Kind: EventJoinedSelf, UID: p.UID})
			e.emit(Event{Kind: EventPhaseChanged, Phase: PhaseConnected})
		}
	case "peer_joined":
		var p peerPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			e.emit(Event{Kind: EventRemoteJoined, UID: p.UID})
		}
	case "peer_left":
		var p peerPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			e.emit(Event{Kind: EventRemoteLeft, UID: p.UID})
		}
	case "media_state":
		var p mediaStatePayload
		if json.Unmarshal(msg.Data, &p) != nil {
			return
		}
		kind := EventRemoteVideoState
		if p.Kind == "audio" {
			kind = EventRemoteAudioState
		}
		e.emit(Event{Kind: kind, UID: p.UID, Enabled: p.Enabled})
	case "quality":
		var p qualityPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			e.emit(Event{Kind: EventNetworkQuality, UID: p.UID, Tx: p.Tx, Rx: p.Rx})
		}
	case "offer":
		e.handleOffer(msg.Data)
	case "answer":
		var p sdpPayload
		if json.Unmarshal(msg.Data, &p) == nil && p.SDP != "" {
			e.withPC(func(pc *webrtc.PeerConnection) {
				_ = pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP})
			})
		}
	case "ice":
		var cand webrtc.ICECandidateInit
		if json.Unmarshal(msg.Data, &cand) == nil && cand.Candidate != "" {
			e.withPC(func(pc *webrtc.PeerConnection) {
				_ = pc.AddICECandidate(cand)
			})
		}
	case "error":
		var p errorPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			e.emit(Event{Kind: EventFailed, Code: p.Code, Message: p.Message})
		}
	default:
		// unknown signaling events are ignored
	}
}

func (e *Engine) handleOffer(data json.RawMessage) {
	var p sdpPayload
	if json.Unmarshal(data, &p) != nil || p.SDP == "" {
		return
	}
	e.withPC(func(pc *webrtc.PeerConnection) {
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}); err != nil {
			e.log.Warn("set remote offer failed", zap.Error(err))
			return
		}
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			e.log.Warn("create answer failed", zap.Error(err))
			return
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			e.log.Warn("set local answer failed", zap.Error(err))
			return
		}
		_ = e.send("answer", sdpPayload{Type: "answer", SDP: answer.SDP})
	})
}

func (e *Engine) withPC(fn func(pc *webrtc.PeerConnection)) {
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc != nil {
		fn(pc)
	}
}

func (e *Engine) send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rtc: marshal %s: %w", event, err)
	}
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(signalWriteTimeout))
	if err := conn.WriteJSON(signalMessage{Event: event, Data: data}); err != nil {
		return fmt.Errorf("rtc: send %s: %w", event, err)
	}
	return nil
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		// consumer is the session loop; dropping under backpressure beats
		// blocking an SDK callback
		e.log.Warn("transport event dropped", zap.Int("kind", int(ev.Kind)))
	}
}
