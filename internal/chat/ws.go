package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
)

const (
	chatPongWait     = 60 * time.Second
	chatPingInterval = 25 * time.Second
	chatWriteWait    = 10 * time.Second
	loginTimeout     = 10 * time.Second
)

// ErrNotLoggedIn is returned by Send when no identity is signed in.
var ErrNotLoggedIn = errors.New("chat: not logged in")

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type loginData struct {
	Username string `json:"username"`
}

type messageData struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
	SentAt  int64  `json:"sent_at"`
}

type errorData struct {
	Message string `json:"message"`
}

// WSMessenger is a websocket chat client implementing Messenger. One
// connection per login; logout tears the connection down.
type WSMessenger struct {
	url string
	log *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	user     string
	loggedIn bool
	sendCh   chan wsEnvelope
	closing  chan struct{}

	inbound chan models.ChatMessage
}

// NewWSMessenger points the client at the chat gateway. The connection is
// established lazily on Login.
func NewWSMessenger(url string, log *zap.Logger) *WSMessenger {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSMessenger{
		url:     url,
		log:     log,
		inbound: make(chan models.ChatMessage, 64),
	}
}

// Login dials the gateway and announces username. The success callback fires
// on the gateway's ack, the error callback on dial failure, a gateway error
// frame, or timeout. At most one callback fires.
func (m *WSMessenger) Login(username string, onSuccess func(), onError func(error)) {
	go func() {
		conn, _, err := websocket.DefaultDialer.Dial(m.url, nil)
		if err != nil {
			onError(err)
			return
		}

		data, _ := json.Marshal(loginData{Username: username})
		_ = conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
		if err := conn.WriteJSON(wsEnvelope{Event: "login", Data: data}); err != nil {
			_ = conn.Close()
			onError(err)
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(loginTimeout))
		var ack wsEnvelope
		if err := conn.ReadJSON(&ack); err != nil {
			_ = conn.Close()
			onError(err)
			return
		}
		switch ack.Event {
		case "login_ok":
		case "error":
			var ed errorData
			_ = json.Unmarshal(ack.Data, &ed)
			_ = conn.Close()
			onError(errors.New("chat: " + ed.Message))
			return
		default:
			_ = conn.Close()
			onError(errors.New("chat: unexpected login reply " + ack.Event))
			return
		}

		m.mu.Lock()
		if m.loggedIn {
			// a racing login won; drop this connection
			m.mu.Unlock()
			_ = conn.Close()
			onError(errors.New("chat: already logged in"))
			return
		}
		m.conn = conn
		m.user = username
		m.loggedIn = true
		m.sendCh = make(chan wsEnvelope, 64)
		m.closing = make(chan struct{})
		sendCh, closing := m.sendCh, m.closing
		m.mu.Unlock()

		go m.writePump(conn, sendCh, closing)
		go m.readPump(conn)
		onSuccess()
	}()
}

// Logout closes the connection; pending sends are discarded.
func (m *WSMessenger) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loggedIn {
		return
	}
	m.loggedIn = false
	m.user = ""
	close(m.closing)
	_ = m.conn.Close()
	m.conn = nil
}

// IsLoggedIn reports whether an identity is signed in.
func (m *WSMessenger) IsLoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

// CurrentUser returns the signed-in identity, "" when logged out.
func (m *WSMessenger) CurrentUser() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Send queues a direct message for delivery.
func (m *WSMessenger) Send(to, content string) error {
	m.mu.Lock()
	if !m.loggedIn {
		m.mu.Unlock()
		return ErrNotLoggedIn
	}
	from, sendCh := m.user, m.sendCh
	m.mu.Unlock()

	data, err := json.Marshal(messageData{
		ID:      uuid.NewString(),
		From:    from,
		To:      to,
		Content: content,
		SentAt:  time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	select {
	case sendCh <- wsEnvelope{Event: "message", Data: data}:
		return nil
	default:
		return errors.New("chat: send queue full")
	}
}

// Messages streams inbound direct messages across logins.
func (m *WSMessenger) Messages() <-chan models.ChatMessage {
	return m.inbound
}

func (m *WSMessenger) readPump(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
		m.mu.Lock()
		if m.conn == conn {
			m.loggedIn = false
			m.user = ""
			m.conn = nil
		}
		m.mu.Unlock()
	}()

	conn.SetReadLimit(65536)
	_ = conn.SetReadDeadline(time.Now().Add(chatPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(chatPongWait))
		return nil
	})

	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(chatPongWait))

		switch env.Event {
		case "message":
			var md messageData
			if err := json.Unmarshal(env.Data, &md); err != nil {
				continue
			}
			msg := models.ChatMessage{
				ID:       md.ID,
				SenderID: md.From,
				Content:  md.Content,
				SentAt:   time.Unix(md.SentAt, 0).UTC(),
			}
			select {
			case m.inbound <- msg:
			default:
				m.log.Warn("inbound chat buffer full, dropping message")
			}
		case "error":
			var ed errorData
			_ = json.Unmarshal(env.Data, &ed)
			m.log.Warn("chat gateway error", zap.String("message", ed.Message))
		default:
			// ignore
		}
	}
}

func (m *WSMessenger) writePump(conn *websocket.Conn, sendCh chan wsEnvelope, closing chan struct{}) {
	ticker := time.NewTicker(chatPingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-closing:
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case env := <-sendCh:
			_ = conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
