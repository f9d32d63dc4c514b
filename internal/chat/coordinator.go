package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
)

// Notifier mirrors the session side channel: chat problems surface as
// notices, never as call-fatal errors.
type Notifier interface {
	Notify(kind, message string)
}

// Coordinator manages the messenger login lifecycle and the message history
// for the active consultation. The messenger identity is singleton-scoped,
// one login at a time, so role switches log the old identity out before the
// new one signs in.
type Coordinator struct {
	messenger Messenger
	usernames map[models.Role]string
	notifier  Notifier
	log       *zap.Logger

	mu      sync.Mutex
	history []models.ChatMessage
	pending string // username with a login in flight, "" when none

	closed chan struct{}
	once   sync.Once

	subMu sync.Mutex
	subs  map[chan models.ChatMessage]struct{}
}

// NewCoordinator wires the messenger to role identities. notifier may be nil.
func NewCoordinator(m Messenger, usernames map[models.Role]string, notifier Notifier, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		messenger: m,
		usernames: usernames,
		notifier:  notifier,
		log:       log,
		closed:    make(chan struct{}),
		subs:      make(map[chan models.ChatMessage]struct{}),
	}
	go c.consume()
	return c
}

// SetNotifier attaches the notice sink; the bridge is built after the
// coordinator, so wiring happens in a second step.
func (c *Coordinator) SetNotifier(n Notifier) {
	c.mu.Lock()
	c.notifier = n
	c.mu.Unlock()
}

// Close stops the inbound consumer.
func (c *Coordinator) Close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *Coordinator) consume() {
	for {
		select {
		case <-c.closed:
			return
		case msg, ok := <-c.messenger.Messages():
			if !ok {
				return
			}
			c.mu.Lock()
			c.history = append(c.history, msg)
			c.mu.Unlock()
			c.fanout(msg)
		}
	}
}

func (c *Coordinator) fanout(msg models.ChatMessage) {
	c.subMu.Lock()
	for ch := range c.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	c.subMu.Unlock()
}

// EnsureLogin makes the messenger signed in as the identity for role.
// Already signed in as that identity, or a login for it already in flight,
// means no-op; signed in as the other role's identity means logout first.
// The call never blocks on the login round trip.
func (c *Coordinator) EnsureLogin(role models.Role) {
	want, ok := c.usernames[role]
	if !ok {
		c.log.Warn("no chat identity for role", zap.String("role", string(role)))
		return
	}

	c.mu.Lock()
	if c.pending == want {
		c.mu.Unlock()
		return
	}
	if c.messenger.IsLoggedIn() {
		if c.messenger.CurrentUser() == want {
			c.mu.Unlock()
			return
		}
		c.messenger.Logout()
	}
	c.pending = want
	c.mu.Unlock()

	c.messenger.Login(want,
		func() {
			c.mu.Lock()
			c.pending = ""
			c.mu.Unlock()
			c.log.Info("chat login ok", zap.String("user", want))
		},
		func(err error) {
			c.mu.Lock()
			c.pending = ""
			c.mu.Unlock()
			c.log.Warn("chat login failed", zap.String("user", want), zap.Error(err))
			c.notify("chat", "chat unavailable: "+err.Error())
		})
}

// Logout signs the current identity out; safe when not logged in.
func (c *Coordinator) Logout() {
	c.mu.Lock()
	c.pending = ""
	c.mu.Unlock()
	if c.messenger.IsLoggedIn() {
		c.messenger.Logout()
	}
}

// SendMessage delivers content to the other role's identity. Fire and
// forget: failures are logged and surfaced as a notice, and the local echo
// is appended to history only on success.
func (c *Coordinator) SendMessage(from models.Role, content string) {
	if content == "" {
		return
	}
	to, ok := c.usernames[from.Other()]
	if !ok {
		return
	}
	if err := c.messenger.Send(to, content); err != nil {
		c.log.Warn("chat send failed", zap.String("to", to), zap.Error(err))
		c.notify("chat", "message not delivered")
		return
	}

	msg := models.ChatMessage{
		ID:       uuid.NewString(),
		SenderID: c.usernames[from],
		Content:  content,
		SentAt:   time.Now().UTC(),
		Self:     true,
	}
	c.mu.Lock()
	c.history = append(c.history, msg)
	c.mu.Unlock()
	c.fanout(msg)
}

// History returns a copy of the conversation so far.
func (c *Coordinator) History() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.history))
	copy(out, c.history)
	return out
}

// ClearHistory drops the transcript, used between consultations.
func (c *Coordinator) ClearHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

// Subscribe streams messages as they arrive. Slow consumers drop messages
// rather than blocking delivery.
func (c *Coordinator) Subscribe() (<-chan models.ChatMessage, func()) {
	ch := make(chan models.ChatMessage, 32)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()
	cancel := func() {
		c.subMu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.subMu.Unlock()
	}
	return ch, cancel
}

func (c *Coordinator) notify(kind, message string) {
	c.mu.Lock()
	n := c.notifier
	c.mu.Unlock()
	if n != nil {
		n.Notify(kind, message)
	}
}
