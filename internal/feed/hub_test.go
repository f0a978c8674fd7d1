package feed_test

import (
	"testing"
	"time"

	"casguard/backend/internal/feed"
	"casguard/backend/internal/models"

	"github.com/stretchr/testify/assert"
)

type mockClient struct {
	Recv   chan feed.Event
	closed bool
}

func newMockClient() *mockClient {
	return &mockClient{Recv: make(chan feed.Event, 4)}
}

func (m *mockClient) GetSendChannel() chan<- feed.Event { return m.Recv }
func (m *mockClient) Close()                            { m.closed = true }

func TestHub_RegisterUnregister(t *testing.T) {
	hub := feed.NewHub()
	client := newMockClient()

	go hub.Run()

	hub.RegisterCh <- client
	time.Sleep(100 * time.Millisecond)
	assert.Contains(t, hub.Clients, feed.Client(client))

	hub.UnregisterCh <- client
	time.Sleep(100 * time.Millisecond)
	assert.NotContains(t, hub.Clients, feed.Client(client))
	assert.True(t, client.closed)
}

func TestHub_BroadcastsActions(t *testing.T) {
	hub := feed.NewHub()
	clientA := newMockClient()
	clientB := newMockClient()

	go hub.Run()
	hub.RegisterCh <- clientA
	hub.RegisterCh <- clientB
	time.Sleep(100 * time.Millisecond)

	hub.ActionLogged(models.ActionLogEntry{
		ChatID: -100, UserID: 42, Action: models.ActionQuickban, Source: "local",
	})
	time.Sleep(100 * time.Millisecond)

	for _, c := range []*mockClient{clientA, clientB} {
		select {
		case event := <-c.Recv:
			assert.EqualValues(t, -100, event.ChatID)
			assert.Equal(t, models.ActionQuickban, event.Action)
			assert.False(t, event.At.IsZero())
		default:
			t.Error("subscriber did not receive the event")
		}
	}
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := feed.NewHub()
	slow := &mockClient{Recv: make(chan feed.Event)} // unbuffered, never read

	go hub.Run()
	hub.RegisterCh <- slow
	time.Sleep(100 * time.Millisecond)

	hub.ActionLogged(models.ActionLogEntry{ChatID: -1, UserID: 1, Action: models.ActionNotify})
	time.Sleep(100 * time.Millisecond)

	assert.NotContains(t, hub.Clients, feed.Client(slow))
	assert.True(t, slow.closed)
}
