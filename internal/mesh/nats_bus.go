package mesh

import (
	"context"
	"fmt"

	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NatsBus broadcasts every envelope on a single subject that every process
// subscribes to, so each subscriber sees all traffic.
type NatsBus struct {
	nc      *nats.Conn
	subject string
	codec   Codec
	log     *logrus.Entry
}

func NewNatsBus(url, subject string, codec Codec, opts ...nats.Option) (*NatsBus, error) {
	if codec == nil {
		codec = JSONCodec{}
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("mesh: connect nats %s: %w", url, err)
	}
	return &NatsBus{
		nc:      nc,
		subject: subject,
		codec:   codec,
		log:     logrus.WithFields(logrus.Fields{"component": "mesh", "bus": "nats", "subject": subject}),
	}, nil
}

func (b *NatsBus) Publish(ctx context.Context, e Envelope) error {
	payload, err := b.codec.Marshal(e)
	if err != nil {
		return fmt.Errorf("mesh: encode envelope: %w", err)
	}
	return b.nc.Publish(b.subject, payload)
}

func (b *NatsBus) Subscribe(h Handler) (func(), error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		e, err := b.codec.Unmarshal(msg.Data)
		if err != nil {
			b.log.WithError(err).Warn("dropping undecodable message")
			return
		}
		h(context.Background(), e)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *NatsBus) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("mesh: nats not connected (status %v)", b.nc.Status())
	}
	return nil
}

func (b *NatsBus) Close() error { _ = b.nc.Flush(); b.nc.Close(); return nil }
