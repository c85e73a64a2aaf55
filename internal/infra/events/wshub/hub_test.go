package wshub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binmap/pkg/domain"
)

func dial(t *testing.T, srv *httptest.Server, org string) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?org=" + org
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPublishScopesByOrganization(t *testing.T) {
	hub := New(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("org"))
	}))
	defer srv.Close()

	mine := dial(t, srv, "org-1")
	theirs := dial(t, srv, "org-2")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), domain.LayoutEvent{Type: domain.EventLockAcquired, BlueprintID: "bp-1", OrgID: "org-1"}))

	var got domain.LayoutEvent
	require.NoError(t, mine.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, mine.ReadJSON(&got))
	assert.Equal(t, domain.EventLockAcquired, got.Type)
	assert.Equal(t, "bp-1", got.BlueprintID)

	require.NoError(t, theirs.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := theirs.ReadMessage()
	assert.Error(t, err, "other organizations receive nothing")
}

func TestClosedClientIsDropped(t *testing.T) {
	hub := New(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "org-1")
	}))
	defer srv.Close()

	conn := dial(t, srv, "org-1")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}
