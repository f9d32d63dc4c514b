package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/internal/rtc"
)

const (
	waitFor  = 2 * time.Second
	pollTick = 2 * time.Millisecond
)

type fakeTransport struct {
	mu      sync.Mutex
	events  chan rtc.Event
	joins   int
	leaves  int
	audioOn bool
	videoOn bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:  make(chan rtc.Event, 64),
		audioOn: true,
		videoOn: true,
	}
}

func (f *fakeTransport) Join(_ context.Context, _, _ string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	return nil
}

func (f *fakeTransport) Leave() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
}

func (f *fakeTransport) ToggleAudio() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioOn = !f.audioOn
	return f.audioOn
}

func (f *fakeTransport) ToggleVideo() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoOn = !f.videoOn
	return f.videoOn
}

func (f *fakeTransport) SwitchCamera() {}

func (f *fakeTransport) Events() <-chan rtc.Event { return f.events }

func (f *fakeTransport) emit(ev rtc.Event) { f.events <- ev }

func (f *fakeTransport) leaveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaves
}

type fakeChat struct {
	mu      sync.Mutex
	logins  []models.Role
	logouts int
}

func (f *fakeChat) EnsureLogin(role models.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, role)
}

func (f *fakeChat) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
}

func newTestCoordinator(t *testing.T, configured bool) (*Coordinator, *fakeTransport, *fakeChat) {
	t.Helper()
	transport := newFakeTransport()
	chat := &fakeChat{}
	c := New(Options{
		Configured: configured,
		ChannelID:  "consult_room_1",
		Usernames:  map[models.Role]string{models.RolePatient: "patient1", models.RoleDoctor: "doctor1"},
		Tick:       5 * time.Millisecond,
	}, transport, chat, nil, zap.NewNop())
	c.Open()
	t.Cleanup(c.Close)
	return c, transport, chat
}

func waitForState(t *testing.T, c *Coordinator, kind StateKind) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().State.Kind == kind
	}, waitFor, pollTick, "expected state %s, last seen %s", kind, c.Snapshot().State.Kind)
	return c.Snapshot()
}

func connectCall(t *testing.T, c *Coordinator, transport *fakeTransport) {
	t.Helper()
	c.StartConsultation(context.Background())
	require.Equal(t, StateConnecting, c.Snapshot().State.Kind)
	transport.emit(rtc.Event{Kind: rtc.EventJoinedSelf, UID: 7})
	waitForState(t, c, StateWaitingForRemote)
}

func TestStartConsultationSequence(t *testing.T) {
	c, transport, chat := newTestCoordinator(t, true)

	require.Equal(t, StateIdle, c.Snapshot().State.Kind)
	c.StartConsultation(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, StateConnecting, snap.State.Kind)
	assert.Equal(t, "consult_room_1", snap.ChannelID)

	transport.emit(rtc.Event{Kind: rtc.EventJoinedSelf, UID: 7})
	snap = waitForState(t, c, StateWaitingForRemote)
	assert.Equal(t, int64(7), snap.LocalUID)

	transport.emit(rtc.Event{Kind: rtc.EventRemoteJoined, UID: 42})
	snap = waitForState(t, c, StateInCall)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, int64(42), snap.Participants[0].UID)

	chat.mu.Lock()
	defer chat.mu.Unlock()
	require.Len(t, chat.logins, 1)
	assert.Equal(t, models.RolePatient, chat.logins[0])
}

func TestNotConfiguredBlocksStart(t *testing.T) {
	c, _, _ := newTestCoordinator(t, false)

	require.Equal(t, StateNotConfigured, c.Snapshot().State.Kind)
	c.StartConsultation(context.Background())
	assert.Equal(t, StateNotConfigured, c.Snapshot().State.Kind)
	assert.Empty(t, c.Snapshot().ChannelID)
}

func TestPrepareCallEntersPreview(t *testing.T) {
	c, _, _ := newTestCoordinator(t, true)
	c.PrepareCall()
	snap := c.Snapshot()
	assert.Equal(t, StatePreCall, snap.State.Kind)
	assert.Empty(t, snap.ChannelID)
}

func TestJoinedWithRemoteAlreadyPresentGoesStraightToInCall(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)

	c.StartConsultation(context.Background())
	// remote join observed before our own join ack; the derived state uses
	// the registry snapshot, not event arrival order
	transport.emit(rtc.Event{Kind: rtc.EventRemoteJoined, UID: 42})
	transport.emit(rtc.Event{Kind: rtc.EventJoinedSelf, UID: 7})
	waitForState(t, c, StateInCall)
}

func TestRemoteLeaveEndsCallAndStopsTimer(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)

	transport.emit(rtc.Event{Kind: rtc.EventRemoteJoined, UID: 42})
	waitForState(t, c, StateInCall)
	require.Eventually(t, func() bool {
		return c.Snapshot().DurationSeconds > 0
	}, waitFor, pollTick)

	transport.emit(rtc.Event{Kind: rtc.EventRemoteLeft, UID: 42})
	snap := waitForState(t, c, StatePostCall)
	assert.Empty(t, snap.Participants)
	assert.Empty(t, snap.ChannelID)
	assert.GreaterOrEqual(t, transport.leaveCount(), 1, "transport leave commanded on remote hang-up")

	frozen := snap.DurationSeconds
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, frozen, c.Snapshot().DurationSeconds, "no tick increments after the call ended")
}

func TestErrorPreservesDuration(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)

	transport.emit(rtc.Event{Kind: rtc.EventRemoteJoined, UID: 42})
	waitForState(t, c, StateInCall)
	require.Eventually(t, func() bool {
		return c.Snapshot().DurationSeconds >= 2
	}, waitFor, pollTick)

	transport.emit(rtc.Event{Kind: rtc.EventFailed, Code: 17, Message: "net down"})
	snap := waitForState(t, c, StateError)
	assert.Equal(t, 17, snap.State.Code)
	assert.Equal(t, "net down", snap.State.Message)
	assert.Empty(t, snap.ChannelID)
	assert.Empty(t, snap.Participants, "error screen shows no stale participants")
	assert.GreaterOrEqual(t, snap.DurationSeconds, 2, "duration survives until explicit reset")
}

func TestResetFromError(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)

	transport.emit(rtc.Event{Kind: rtc.EventFailed, Code: 17, Message: "net down"})
	waitForState(t, c, StateError)

	c.Reset()
	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State.Kind)
	assert.Empty(t, snap.ChannelID)
	assert.Zero(t, snap.DurationSeconds)
	assert.False(t, snap.VitalsSharing)
}

func TestRetryRerunsJoinSequence(t *testing.T) {
	c, transport, chat := newTestCoordinator(t, true)
	connectCall(t, c, transport)

	transport.emit(rtc.Event{Kind: rtc.EventFailed, Code: 110, Message: "token expired"})
	waitForState(t, c, StateError)

	c.Retry(context.Background())
	snap := c.Snapshot()
	assert.Equal(t, StateConnecting, snap.State.Kind)
	assert.Equal(t, "consult_room_1", snap.ChannelID)
	assert.Zero(t, snap.DurationSeconds)

	chat.mu.Lock()
	defer chat.mu.Unlock()
	assert.Len(t, chat.logins, 2)
}

func TestCancelFromErrorReturnsToIdle(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)
	transport.emit(rtc.Event{Kind: rtc.EventFailed, Code: 1, Message: "boom"})
	waitForState(t, c, StateError)

	c.Cancel()
	assert.Equal(t, StateIdle, c.Snapshot().State.Kind)
}

func TestExplicitEndCallResetsDuration(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)
	transport.emit(rtc.Event{Kind: rtc.EventRemoteJoined, UID: 42})
	waitForState(t, c, StateInCall)

	c.EndCall()
	snap := c.Snapshot()
	assert.Equal(t, StatePostCall, snap.State.Kind)
	assert.Zero(t, snap.DurationSeconds)
	assert.Empty(t, snap.ChannelID)
	assert.GreaterOrEqual(t, transport.leaveCount(), 1)
}

func TestToggleAudioRoundTrip(t *testing.T) {
	c, _, _ := newTestCoordinator(t, true)

	original := c.Snapshot().LocalAudioOn
	c.ToggleAudio()
	assert.Equal(t, !original, c.Snapshot().LocalAudioOn)
	c.ToggleAudio()
	assert.Equal(t, original, c.Snapshot().LocalAudioOn)
}

func TestUnknownParticipantUpdateIgnored(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)

	transport.emit(rtc.Event{Kind: rtc.EventRemoteVideoState, UID: 99, Enabled: true})
	// force the loop to drain the event before asserting
	transport.emit(rtc.Event{Kind: rtc.EventNetworkQuality, UID: 0, Tx: 4, Rx: 4})
	require.Eventually(t, func() bool {
		return c.Snapshot().NetworkQuality == 4
	}, waitFor, pollTick)

	assert.Empty(t, c.Snapshot().Participants)
	assert.Equal(t, StateWaitingForRemote, c.Snapshot().State.Kind)
}

func TestStaleConnectingEventDoesNotRegress(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)
	transport.emit(rtc.Event{Kind: rtc.EventRemoteJoined, UID: 42})
	waitForState(t, c, StateInCall)

	transport.emit(rtc.Event{Kind: rtc.EventPhaseChanged, Phase: rtc.PhaseConnecting})
	transport.emit(rtc.Event{Kind: rtc.EventNetworkQuality, UID: 0, Tx: 3, Rx: 5})
	require.Eventually(t, func() bool {
		return c.Snapshot().NetworkQuality == 3
	}, waitFor, pollTick)

	assert.Equal(t, StateInCall, c.Snapshot().State.Kind)
}

func TestReconnectingRoundTrip(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)
	transport.emit(rtc.Event{Kind: rtc.EventRemoteJoined, UID: 42})
	waitForState(t, c, StateInCall)

	transport.emit(rtc.Event{Kind: rtc.EventPhaseChanged, Phase: rtc.PhaseReconnecting})
	waitForState(t, c, StateReconnecting)

	transport.emit(rtc.Event{Kind: rtc.EventPhaseChanged, Phase: rtc.PhaseConnected})
	waitForState(t, c, StateInCall)
}

func TestReconnectingToWaitingWhenRegistryEmpty(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)

	transport.emit(rtc.Event{Kind: rtc.EventPhaseChanged, Phase: rtc.PhaseReconnecting})
	waitForState(t, c, StateReconnecting)

	transport.emit(rtc.Event{Kind: rtc.EventPhaseChanged, Phase: rtc.PhaseConnected})
	waitForState(t, c, StateWaitingForRemote)
}

func TestNetworkQualityClampedToLocalUser(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)

	transport.emit(rtc.Event{Kind: rtc.EventNetworkQuality, UID: 99, Tx: 1, Rx: 1})
	transport.emit(rtc.Event{Kind: rtc.EventNetworkQuality, UID: 7, Tx: 9, Rx: 4})
	require.Eventually(t, func() bool {
		return c.Snapshot().NetworkQuality == 4
	}, waitFor, pollTick, "remote quality ignored, local clamped to [0,5]")
}

func TestVitalsSharingForcedOffOnEnd(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)
	connectCall(t, c, transport)

	c.ToggleVitalsSharing()
	require.True(t, c.Snapshot().VitalsSharing)

	c.EndCall()
	assert.False(t, c.Snapshot().VitalsSharing)
}

func TestRoleChangeLogsChatOut(t *testing.T) {
	c, _, chat := newTestCoordinator(t, true)

	c.SetRole(models.RoleDoctor)
	require.Equal(t, models.RoleDoctor, c.Role())

	chat.mu.Lock()
	logouts := chat.logouts
	chat.mu.Unlock()
	assert.Equal(t, 1, logouts)

	// setting the same role again is a no-op
	c.SetRole(models.RoleDoctor)
	chat.mu.Lock()
	defer chat.mu.Unlock()
	assert.Equal(t, 1, chat.logouts)
}

func TestChannelInvariantAcrossLifecycle(t *testing.T) {
	c, transport, _ := newTestCoordinator(t, true)

	check := func(snap Snapshot) {
		if snap.State.Connected() {
			assert.NotEmpty(t, snap.ChannelID, "state %s", snap.State.Kind)
		} else {
			assert.Empty(t, snap.ChannelID, "state %s", snap.State.Kind)
		}
	}

	check(c.Snapshot())
	c.PrepareCall()
	check(c.Snapshot())
	c.StartConsultation(context.Background())
	check(c.Snapshot())
	transport.emit(rtc.Event{Kind: rtc.EventJoinedSelf, UID: 7})
	check(waitForState(t, c, StateWaitingForRemote))
	c.EndCall()
	check(c.Snapshot())
	c.Reset()
	check(c.Snapshot())
}
