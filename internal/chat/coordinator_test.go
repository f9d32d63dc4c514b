package chat

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalink/telecare/internal/models"
)

type fakeMessenger struct {
	mu       sync.Mutex
	logins   []string
	logouts  int
	user     string
	loggedIn bool
	sendErr  error
	sent     []struct{ to, content string }
	inbound  chan models.ChatMessage
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{inbound: make(chan models.ChatMessage, 8)}
}

func (f *fakeMessenger) Login(username string, onSuccess func(), onError func(error)) {
	f.mu.Lock()
	f.logins = append(f.logins, username)
	f.user = username
	f.loggedIn = true
	f.mu.Unlock()
	onSuccess()
}

func (f *fakeMessenger) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.loggedIn = false
	f.user = ""
}

func (f *fakeMessenger) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeMessenger) CurrentUser() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

func (f *fakeMessenger) Send(to, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, struct{ to, content string }{to, content})
	return nil
}

func (f *fakeMessenger) Messages() <-chan models.ChatMessage { return f.inbound }

type captureNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *captureNotifier) Notify(kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, kind+": "+message)
}

var testUsernames = map[models.Role]string{
	models.RolePatient: "patient1",
	models.RoleDoctor:  "doctor1",
}

func newTestChat(t *testing.T) (*Coordinator, *fakeMessenger, *captureNotifier) {
	t.Helper()
	m := newFakeMessenger()
	n := &captureNotifier{}
	c := NewCoordinator(m, testUsernames, n, nil)
	t.Cleanup(c.Close)
	return c, m, n
}

func TestEnsureLoginIsIdempotent(t *testing.T) {
	c, m, _ := newTestChat(t)

	c.EnsureLogin(models.RolePatient)
	c.EnsureLogin(models.RolePatient)

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.logins, 1)
	assert.Equal(t, "patient1", m.logins[0])
	assert.Equal(t, 0, m.logouts)
}

func TestEnsureLoginSwitchesIdentityOnRoleChange(t *testing.T) {
	c, m, _ := newTestChat(t)

	c.EnsureLogin(models.RolePatient)
	c.EnsureLogin(models.RoleDoctor)

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.logins, 2)
	assert.Equal(t, []string{"patient1", "doctor1"}, m.logins)
	assert.Equal(t, 1, m.logouts, "old identity logged out exactly once")
	assert.Equal(t, "doctor1", m.user)
}

func TestLogoutWhenNotLoggedInIsNoop(t *testing.T) {
	c, m, _ := newTestChat(t)
	c.Logout()
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 0, m.logouts)
}

func TestSendMessageTargetsOtherRole(t *testing.T) {
	c, m, _ := newTestChat(t)
	c.EnsureLogin(models.RolePatient)

	c.SendMessage(models.RolePatient, "hello doctor")

	m.mu.Lock()
	require.Len(t, m.sent, 1)
	assert.Equal(t, "doctor1", m.sent[0].to)
	assert.Equal(t, "hello doctor", m.sent[0].content)
	m.mu.Unlock()

	hist := c.History()
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Self)
	assert.Equal(t, "patient1", hist[0].SenderID)
}

func TestSendFailureRaisesNoticeNotHistory(t *testing.T) {
	c, m, n := newTestChat(t)
	c.EnsureLogin(models.RolePatient)
	m.mu.Lock()
	m.sendErr = errors.New("gateway down")
	m.mu.Unlock()

	c.SendMessage(models.RolePatient, "lost message")

	assert.Empty(t, c.History())
	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.notices, 1)
	assert.Contains(t, n.notices[0], "chat")
}

func TestEmptyMessageIsDropped(t *testing.T) {
	c, m, _ := newTestChat(t)
	c.EnsureLogin(models.RolePatient)

	c.SendMessage(models.RolePatient, "")

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.sent)
	assert.Empty(t, c.History())
}

func TestInboundMessageEntersHistory(t *testing.T) {
	c, m, _ := newTestChat(t)

	ch, cancel := c.Subscribe()
	defer cancel()

	m.inbound <- models.ChatMessage{ID: "m1", SenderID: "doctor1", Content: "how are you feeling"}

	got := <-ch
	assert.Equal(t, "doctor1", got.SenderID)
	assert.False(t, got.Self)

	hist := c.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "m1", hist[0].ID)
}

func TestClearHistory(t *testing.T) {
	c, _, _ := newTestChat(t)
	c.EnsureLogin(models.RolePatient)
	c.SendMessage(models.RolePatient, "one")
	require.Len(t, c.History(), 1)

	c.ClearHistory()
	assert.Empty(t, c.History())
}
