package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmoxy/moxy/pkg/events"
)

func newEventsServer(t *testing.T) (*Manager, *httptest.Server) {
	t.Helper()
	manager := NewManager()
	mux := http.NewServeMux()
	mux.Handle("/api/events", NewEventsHandler(manager))
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		manager.Close()
		ts.Close()
	})
	return manager, ts
}

func dialEvents(t *testing.T, ts *httptest.Server, clientID string) *ws.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events?clientId=" + clientID
	conn, resp, err := ws.Dial(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close(ws.StatusNormalClosure, "test cleanup")
	})
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func readEvent(t *testing.T, conn *ws.Conn) (string, json.RawMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgType, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ws.MessageText, msgType)

	var ev struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev.Topic, ev.Payload
}

func TestEventsSubscribeRequiresClientID(t *testing.T) {
	_, ts := newEventsServer(t)

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventsDeliveredToObserver(t *testing.T) {
	manager, ts := newEventsServer(t)
	conn := dialEvents(t, ts, "clientid")
	waitFor(t, func() bool { return manager.CountForClient("clientid") == 1 })

	pub := NewPublisher(manager)
	pub.Publish("clientid", events.TopicRequestStart, events.StartPayload{
		IsMock:   true,
		Method:   "GET",
		Host:     "example.com",
		Pathname: "/api/test",
	})
	pub.Publish("clientid", events.TopicRequestEnd, events.EndPayload{
		Status:   200,
		Timecost: 12,
	})

	topic, payload := readEvent(t, conn)
	assert.Equal(t, "REQUEST_START", topic)
	var start struct {
		IsMock   bool   `json:"isMock"`
		Method   string `json:"method"`
		Pathname string `json:"pathname"`
	}
	require.NoError(t, json.Unmarshal(payload, &start))
	assert.True(t, start.IsMock)
	assert.Equal(t, "GET", start.Method)
	assert.Equal(t, "/api/test", start.Pathname)

	topic, payload = readEvent(t, conn)
	assert.Equal(t, "REQUEST_END", topic)
	var end struct {
		Status   int   `json:"status"`
		Timecost int64 `json:"timecost"`
	}
	require.NoError(t, json.Unmarshal(payload, &end))
	assert.Equal(t, 200, end.Status)
	assert.Equal(t, int64(12), end.Timecost)
}

func TestEventsIsolatedByClient(t *testing.T) {
	manager, ts := newEventsServer(t)
	watching := dialEvents(t, ts, "watched")
	other := dialEvents(t, ts, "other")
	waitFor(t, func() bool { return manager.Count() == 2 })

	NewPublisher(manager).Publish("watched", events.TopicRequestStart, events.StartPayload{Method: "GET"})

	topic, _ := readEvent(t, watching)
	assert.Equal(t, "REQUEST_START", topic)

	// The other client's observer must see nothing.
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, _, err := other.Read(ctx)
	assert.Error(t, err)
}

func TestEventsMultipleObserversSameClient(t *testing.T) {
	manager, ts := newEventsServer(t)
	first := dialEvents(t, ts, "clientid")
	second := dialEvents(t, ts, "clientid")
	waitFor(t, func() bool { return manager.CountForClient("clientid") == 2 })

	NewPublisher(manager).Publish("clientid", events.TopicRequestEnd, events.EndPayload{Status: 502})

	for _, conn := range []*ws.Conn{first, second} {
		topic, payload := readEvent(t, conn)
		assert.Equal(t, "REQUEST_END", topic)
		var end struct {
			Status int `json:"status"`
		}
		require.NoError(t, json.Unmarshal(payload, &end))
		assert.Equal(t, 502, end.Status)
	}
}

func TestEventsObserverDisconnectCleansUp(t *testing.T) {
	manager, ts := newEventsServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events?clientId=brief"
	conn, resp, err := ws.Dial(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	waitFor(t, func() bool { return manager.CountForClient("brief") == 1 })

	conn.Close(ws.StatusNormalClosure, "done watching")
	waitFor(t, func() bool { return manager.CountForClient("brief") == 0 })
}

func TestPublishWithoutObserversIsNoop(t *testing.T) {
	manager := NewManager()
	// Must not panic or block with nobody listening.
	NewPublisher(manager).Publish("nobody", events.TopicRequestStart, events.StartPayload{})
	assert.Equal(t, 0, manager.Count())
}
