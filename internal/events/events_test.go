package events_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/atmx/adledger/internal/events"
	"github.com/atmx/adledger/internal/metrics"
	"github.com/atmx/adledger/internal/model"
)

func testEvent(seq uint64) model.Event {
	return model.Event{
		ID:      "evt-1",
		Seq:     seq,
		Name:    model.EventBidRecorded,
		Success: true,
		Caller:  model.MustParseAddress("0x0000000000000000000000000000000000000001"),
		Subject: model.MustParseAddress("0x0000000000000000000000000000000000000001"),
		BidID:   7,
		Amount:  decimal.NewFromInt(3000),
		At:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewMessage(t *testing.T) {
	m := events.NewMessage(testEvent(4))

	require.Equal(t, "ledger_event", m.Type)
	require.Equal(t, uint64(4), m.Seq)
	require.Equal(t, "BidRecorded", m.Name)
	require.True(t, m.Success)
	require.Equal(t, "0x0000000000000000000000000000000000000001", m.Caller)
	require.Equal(t, uint64(7), m.BidID)
	require.Equal(t, "3000", m.Amount)
	require.Equal(t, "2025-03-01T12:00:00Z", m.At)

	zero := testEvent(1)
	zero.Amount = decimal.Zero
	require.Empty(t, events.NewMessage(zero).Amount)
}

func TestHub_BroadcastsToClients(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	hub := events.NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	// Registration is asynchronous; wait until the hub counts the client.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.WebSocketClients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish(testEvent(1))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg events.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "BidRecorded", msg.Name)
	require.Equal(t, uint64(1), msg.Seq)

	conn.Close()
	cancel()
	<-stopped
	srv.Close()
}

func TestHub_PublishWithoutRunDoesNotBlock(t *testing.T) {
	hub := events.NewHub()
	before := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues("websocket"))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.Publish(testEvent(uint64(i + 1)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no running hub")
	}
	after := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues("websocket"))
	require.Greater(t, after, before)
}

func TestRedisPublisher_QueueFullDrops(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	p := events.NewRedisPublisher(rdb, "")
	before := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues("redis"))
	for i := 0; i < 1100; i++ {
		p.Publish(testEvent(uint64(i + 1)))
	}
	after := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues("redis"))
	require.InDelta(t, 1100-1024, after-before, 0.1)
}

func TestRedisPublisher_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	p := events.NewRedisPublisher(rdb, "test:events")

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	rdb.Close()
}

// Requires a reachable Redis; set REDIS_URL to run.
func TestRedisPublisher_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := "adledger:test:" + time.Now().Format("150405.000000")
	p := events.NewRedisPublisher(rdb, channel)
	sub := p.Subscribe(ctx)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	go p.Run(ctx)
	p.Publish(testEvent(9))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got events.Message
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, uint64(9), got.Seq)

	require.Eventually(t, func() bool {
		n, err := rdb.Get(ctx, channel+":count:BidRecorded").Int()
		return err == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)
	rdb.Del(ctx, channel+":last", channel+":count:BidRecorded")
}
