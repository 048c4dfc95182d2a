package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/adledger/internal/metrics"
	"github.com/atmx/adledger/internal/model"
)

// DefaultChannel is the Redis pub/sub channel events are published on.
const DefaultChannel = "adledger:events"

// RedisPublisher publishes each committed event as JSON on a Redis channel
// and keeps the latest event and per-name counters under plain keys.
// Delivery is best effort: Publish only enqueues, Run does the I/O, and
// failures are logged and counted.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	timeout time.Duration
	queue   chan model.Event
}

// NewRedisPublisher creates a publisher on channel (DefaultChannel if empty).
func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		timeout: 2 * time.Second,
		queue:   make(chan model.Event, 1024),
	}
}

// Publish enqueues e; it never blocks.
func (p *RedisPublisher) Publish(e model.Event) {
	select {
	case p.queue <- e:
	default:
		metrics.EventsDropped.WithLabelValues("redis").Inc()
	}
}

// Run drains the queue until ctx is cancelled.
func (p *RedisPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.queue:
			p.send(ctx, e)
		}
	}
}

func (p *RedisPublisher) send(ctx context.Context, e model.Event) {
	data, err := encode(e)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	pipe := p.rdb.TxPipeline()
	pipe.Publish(ctx, p.channel, data)
	pipe.Set(ctx, lastEventKey(p.channel), data, 0)
	pipe.Incr(ctx, eventCountKey(p.channel, e.Name))
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.EventsDropped.WithLabelValues("redis").Inc()
		slog.Warn("redis publish failed", "event", e.Name, "seq", e.Seq, "err", err)
	}
}

// Subscribe returns a subscription to the publisher's channel.
func (p *RedisPublisher) Subscribe(ctx context.Context) *redis.PubSub {
	return p.rdb.Subscribe(ctx, p.channel)
}

func lastEventKey(channel string) string        { return channel + ":last" }
func eventCountKey(channel, name string) string { return channel + ":count:" + name }
