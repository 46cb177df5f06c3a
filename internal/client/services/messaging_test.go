package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dmitrijs2005/aegislink/internal/client/client"
	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/common"
	"github.com/dmitrijs2005/aegislink/internal/cryptox"
	"github.com/dmitrijs2005/aegislink/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeKeys struct {
	session models.Session
	has     bool
	key     string
	err     error
}

func (f *fakeKeys) Session() (models.Session, bool) { return f.session, f.has }
func (f *fakeKeys) SessionKey() (string, error)     { return f.key, f.err }

type fakeTransport struct {
	sent  []models.Payload
	err   error
	inbox chan models.Payload
}

func (f *fakeTransport) Broadcast(ctx context.Context, p models.Payload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeTransport) Inbox() <-chan models.Payload { return f.inbox }
func (f *fakeTransport) Close() error                 { return nil }

func newFakeKeys(t *testing.T, role models.Role) *fakeKeys {
	t.Helper()
	key, err := cryptox.GenerateMasterKey()
	require.NoError(t, err)
	return &fakeKeys{session: models.Session{ID: "s1", Role: role}, has: true, key: key}
}

// ---- tests ----

func TestSendText_SealsAndBroadcasts(t *testing.T) {
	keys := newFakeKeys(t, models.RoleUserA)
	tr := &fakeTransport{}
	mock := clock.NewMock()
	svc := NewMessagingService(keys, tr, logging.NewNopLogger(), mock)

	msg, err := svc.SendText(context.Background(), "rendezvous at 0600")
	require.NoError(t, err)

	assert.Equal(t, "rendezvous at 0600", msg.Content)
	assert.Equal(t, models.RoleUserA, msg.Sender)
	assert.True(t, msg.IsEncrypted)
	assert.Equal(t, mock.Now(), msg.Timestamp)

	require.Len(t, tr.sent, 1)
	p := tr.sent[0]
	assert.Equal(t, models.KindMessage, p.Kind)
	assert.Equal(t, msg.ID, p.ID)
	require.NotNil(t, p.Envelope)
	assert.NotContains(t, p.Envelope.Data, "rendezvous")

	plain, err := cryptox.Decrypt(p.Envelope.Data, p.Envelope.IV, keys.key)
	require.NoError(t, err)
	assert.Equal(t, "rendezvous at 0600", plain)
}

func TestSendText_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		keysErr error
		text    string
		wantErr error
	}{
		{"blank", nil, "   ", common.ErrEmptyMessage},
		{"locked", common.ErrLocked, "hi", common.ErrLocked},
		{"no session", common.ErrNoSession, "hi", common.ErrNoSession},
		{"tampered", common.ErrTampered, "hi", common.ErrTampered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := newFakeKeys(t, models.RoleUserA)
			keys.err = tt.keysErr
			tr := &fakeTransport{}
			svc := NewMessagingService(keys, tr, logging.NewNopLogger(), nil)

			_, err := svc.SendText(context.Background(), tt.text)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, tr.sent)
		})
	}
}

func TestSendText_TransportError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewMessagingService(newFakeKeys(t, models.RoleUserA), &fakeTransport{err: boom}, logging.NewNopLogger(), nil)

	_, err := svc.SendText(context.Background(), "hi")
	require.ErrorIs(t, err, boom)
}

func TestSignals(t *testing.T) {
	keys := newFakeKeys(t, models.RoleUserB)
	tr := &fakeTransport{}
	svc := NewMessagingService(keys, tr, logging.NewNopLogger(), clock.NewMock())
	ctx := context.Background()

	loc, err := svc.ShareLocation(ctx, 59.437, 24.7536, 12.5)
	require.NoError(t, err)
	require.NoError(t, svc.RequestCall(ctx))
	require.NoError(t, svc.EndCall(ctx))

	require.Len(t, tr.sent, 3)
	assert.Equal(t, models.KindLocation, tr.sent[0].Kind)
	require.NotNil(t, tr.sent[0].Location)
	assert.Equal(t, loc, *tr.sent[0].Location)
	assert.Equal(t, models.KindCallRequest, tr.sent[1].Kind)
	assert.Equal(t, models.KindCallEnd, tr.sent[2].Kind)
	for _, p := range tr.sent {
		assert.Equal(t, models.RoleUserB, p.Sender)
		assert.NotEmpty(t, p.ID)
	}

	keys.err = common.ErrLocked
	assert.ErrorIs(t, svc.RequestCall(ctx), common.ErrLocked)
	_, err = svc.ShareLocation(ctx, 0, 0, 0)
	assert.ErrorIs(t, err, common.ErrLocked)
}

func TestOpen(t *testing.T) {
	keys := newFakeKeys(t, models.RoleUserA)
	svc := NewMessagingService(keys, &fakeTransport{}, logging.NewNopLogger(), nil)

	env, err := cryptox.Encrypt("ping", keys.key)
	require.NoError(t, err)
	other, err := cryptox.GenerateMasterKey()
	require.NoError(t, err)
	foreign, err := cryptox.Encrypt("ping", other)
	require.NoError(t, err)

	t.Run("message", func(t *testing.T) {
		ev, err := svc.Open(models.Payload{ID: "1", Kind: models.KindMessage, Sender: models.RoleUserB, Envelope: &env})
		require.NoError(t, err)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "ping", ev.Message.Content)
		assert.NoError(t, ev.Message.Err)
		assert.Equal(t, models.RoleUserB, ev.From)
	})

	t.Run("wrong key", func(t *testing.T) {
		ev, err := svc.Open(models.Payload{ID: "2", Kind: models.KindMessage, Envelope: &foreign})
		require.NoError(t, err)
		require.NotNil(t, ev.Message)
		assert.Equal(t, cryptox.CorruptPayload, ev.Message.Content)
		assert.ErrorIs(t, ev.Message.Err, cryptox.ErrIntegrity)
	})

	t.Run("missing envelope", func(t *testing.T) {
		ev, err := svc.Open(models.Payload{ID: "3", Kind: models.KindMessage})
		require.NoError(t, err)
		assert.ErrorIs(t, ev.Message.Err, cryptox.ErrIntegrity)
	})

	t.Run("location", func(t *testing.T) {
		loc := models.Location{Lat: 1, Lng: 2, Accuracy: 3}
		ev, err := svc.Open(models.Payload{Kind: models.KindLocation, Location: &loc})
		require.NoError(t, err)
		require.NotNil(t, ev.Location)
		assert.Equal(t, loc, *ev.Location)
	})

	t.Run("location without fix", func(t *testing.T) {
		_, err := svc.Open(models.Payload{Kind: models.KindLocation})
		assert.ErrorIs(t, err, common.ErrUnknownPayload)
	})

	t.Run("call", func(t *testing.T) {
		ev, err := svc.Open(models.Payload{Kind: models.KindCallRequest, Sender: models.RoleUserB})
		require.NoError(t, err)
		assert.Equal(t, models.KindCallRequest, ev.Kind)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := svc.Open(models.Payload{Kind: "PING"})
		assert.ErrorIs(t, err, common.ErrUnknownPayload)
	})

	t.Run("locked", func(t *testing.T) {
		keys.err = common.ErrLocked
		defer func() { keys.err = nil }()
		_, err := svc.Open(models.Payload{Kind: models.KindMessage, Envelope: &env})
		assert.ErrorIs(t, err, common.ErrLocked)
	})
}

func TestRun_StopsOnClosedInboxAndContext(t *testing.T) {
	keys := newFakeKeys(t, models.RoleUserA)
	tr := &fakeTransport{inbox: make(chan models.Payload, 4)}
	svc := NewMessagingService(keys, tr, logging.NewNopLogger(), nil)

	tr.inbox <- models.Payload{Kind: models.KindCallEnd, Sender: models.RoleUserB}
	tr.inbox <- models.Payload{Kind: "PING"}
	close(tr.inbox)

	var got []Event
	require.NoError(t, svc.Run(context.Background(), func(ev Event) { got = append(got, ev) }))
	require.Len(t, got, 1)
	assert.Equal(t, models.KindCallEnd, got[0].Kind)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr.inbox = make(chan models.Payload)
	assert.ErrorIs(t, svc.Run(ctx, func(Event) {}), context.Canceled)
}

// Two participants on one vault database and one bus.
func TestMessaging_EndToEnd(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	alice, _ := newAccess(t, db)
	bob := NewAccessControl(db, WithClock(clock.NewMock()))
	t.Cleanup(bob.Close)

	login(t, alice, models.RoleUserA, "0000")
	login(t, bob, models.RoleUserB, "1111")

	bus := client.NewBus(logging.NewNopLogger())
	aliceLink := bus.Join("alice")
	bobLink := bus.Join("bob")
	defer aliceLink.Close()

	aliceSvc := NewMessagingService(alice, aliceLink, logging.NewNopLogger(), nil)
	bobSvc := NewMessagingService(bob, bobLink, logging.NewNopLogger(), nil)

	events := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- bobSvc.Run(ctx, func(ev Event) { events <- ev }) }()

	_, err := aliceSvc.SendText(ctx, "hello bob")
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.NotNil(t, ev.Message)
		assert.Equal(t, "hello bob", ev.Message.Content)
		assert.Equal(t, models.RoleUserA, ev.From)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	// a locked receiver drops what arrives
	bob.Lock()
	_, err = aliceSvc.SendText(ctx, "are you there")
	require.NoError(t, err)
	assert.Never(t, func() bool { return len(events) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, bobLink.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
