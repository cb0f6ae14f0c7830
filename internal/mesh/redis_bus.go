package mesh

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBus broadcasts envelopes over a single Redis Pub/Sub channel.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	codec   Codec
	log     *logrus.Entry

	mu   sync.Mutex
	subs map[*redis.PubSub]struct{}
}

func NewRedisBus(opts *redis.Options, channel string, codec Codec) *RedisBus {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &RedisBus{
		rdb:     redis.NewClient(opts),
		channel: channel,
		codec:   codec,
		log:     logrus.WithFields(logrus.Fields{"component": "mesh", "bus": "redis", "channel": channel}),
		subs:    map[*redis.PubSub]struct{}{},
	}
}

func (b *RedisBus) Publish(ctx context.Context, e Envelope) error {
	payload, err := b.codec.Marshal(e)
	if err != nil {
		return fmt.Errorf("mesh: encode envelope: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBus) Subscribe(h Handler) (func(), error) {
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.channel)
	// wait for the subscription confirmation so no message published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("mesh: subscribe %s: %w", b.channel, err)
	}
	b.mu.Lock()
	b.subs[ps] = struct{}{}
	b.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			e, err := b.codec.Unmarshal([]byte(msg.Payload))
			if err != nil {
				b.log.WithError(err).Warn("dropping undecodable message")
				continue
			}
			h(ctx, e)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ps)
			b.mu.Unlock()
			_ = ps.Close()
		})
	}, nil
}

func (b *RedisBus) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBus) Close() error {
	b.mu.Lock()
	for ps := range b.subs {
		_ = ps.Close()
	}
	b.subs = map[*redis.PubSub]struct{}{}
	b.mu.Unlock()
	return b.rdb.Close()
}
