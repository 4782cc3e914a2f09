package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPusher struct {
	mu     sync.Mutex
	pushed []AlbumEvent
	ch     chan struct{}
}

func (p *recordingPusher) Push(_ context.Context, _ string, event AlbumEvent) error {
	p.mu.Lock()
	p.pushed = append(p.pushed, event)
	p.mu.Unlock()
	p.ch <- struct{}{}
	return nil
}

// dialHub registers the server side of a websocket under travelerID and
// returns the client side
func dialHub(t *testing.T, hub *WSHub, travelerID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(travelerID, conn)
		close(registered)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	<-registered
	return client
}

func TestNotifyAlbumOnline(t *testing.T) {
	pusher := &recordingPusher{ch: make(chan struct{}, 1)}
	hub := NewWSHub(pusher)
	defer hub.Close()
	client := dialHub(t, hub, "t1")
	require.True(t, hub.IsOnline("t1"))

	hub.NotifyAlbum(context.Background(), "t1", AlbumEvent{
		Type:       EventAlbumPopulated,
		LocationID: "loc-1",
		PhotoCount: 0,
	})

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, client.ReadJSON(&msg))
	assert.Equal(t, EventAlbumPopulated, msg.Type)
	assert.Equal(t, "loc-1", msg.LocationID)
	require.NotNil(t, msg.PhotoCount)
	assert.Zero(t, *msg.PhotoCount)
	assert.Empty(t, pusher.pushed)
}

func TestNotifyAlbumOfflinePushes(t *testing.T) {
	pusher := &recordingPusher{ch: make(chan struct{}, 2)}
	hub := NewWSHub(pusher)

	hub.NotifyAlbum(context.Background(), "t2", AlbumEvent{Type: EventAlbumLoading, LocationID: "loc"})
	hub.NotifyAlbum(context.Background(), "t2", AlbumEvent{Type: EventAlbumPopulated, LocationID: "loc", PhotoCount: 3})

	select {
	case <-pusher.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no push sent")
	}
	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	require.Len(t, pusher.pushed, 1)
	assert.Equal(t, 3, pusher.pushed[0].PhotoCount)
}

func TestNotifyAlbumWithoutPusher(t *testing.T) {
	hub := NewWSHub(nil)
	assert.NotPanics(t, func() {
		hub.NotifyAlbum(context.Background(), "nobody", AlbumEvent{Type: EventAlbumPopulated})
	})
	assert.Error(t, hub.SendToTraveler("nobody", WSMessage{Type: "pong"}))
}

func TestUnregisterIgnoresReplacedConnection(t *testing.T) {
	hub := NewWSHub(nil)
	defer hub.Close()

	dialHub(t, hub, "t3")
	hub.mu.RLock()
	old := hub.connections["t3"].conn
	hub.mu.RUnlock()

	dialHub(t, hub, "t3")
	hub.Unregister("t3", old)
	assert.True(t, hub.IsOnline("t3"))
}

func TestAlbumPayload(t *testing.T) {
	for count, want := range map[int]string{
		0: "No photos were found at this pin",
		1: "1 photo is ready to view",
		7: "7 photos are ready to view",
	} {
		p := albumPayload(AlbumEvent{Type: EventAlbumPopulated, LocationID: "loc", PhotoCount: count})
		data, err := p.MarshalJSON()
		require.NoError(t, err)
		assert.Contains(t, string(data), want)
		assert.Contains(t, string(data), `"location_id":"loc"`)
	}
}
