package mesh

import (
	"fmt"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Options selects and configures a bus backend.
type Options struct {
	Backend       string // local|nats|redis
	Codec         string // json|cbor
	Subject       string
	NatsURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the bus described by opts.
func Open(opts Options) (Bus, error) {
	codec, err := NewCodec(opts.Codec)
	if err != nil {
		return nil, err
	}
	subject := opts.Subject
	if subject == "" {
		subject = "fasttasks.bus"
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "local":
		return NewLocalBus(), nil
	case "nats":
		url := opts.NatsURL
		if url == "" {
			url = nats.DefaultURL
		}
		return NewNatsBus(url, subject, codec,
			nats.Name("fast-tasks"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(500*time.Millisecond),
		)
	case "redis":
		addr := opts.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		return NewRedisBus(&redis.Options{Addr: addr, Password: opts.RedisPassword, DB: opts.RedisDB}, subject, codec), nil
	default:
		return nil, fmt.Errorf("mesh: unknown bus backend %q", opts.Backend)
	}
}
