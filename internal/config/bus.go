package config

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/authkit/internal/observability/logger"
)

// Notifier delivers config-change signals. The payload is irrelevant: a signal
// means "re-read the snapshot and revalidate".
type Notifier interface {
	// Notify signals a change to all subscribers.
	Notify(ctx context.Context) error
	// C is the subscription channel. Signals may be coalesced.
	C() <-chan struct{}
	Close() error
}

// localNotifier is the in-process bus for single-node and test setups.
type localNotifier struct {
	ch chan struct{}
}

// NewLocalNotifier builds an in-process notifier.
func NewLocalNotifier() Notifier {
	return &localNotifier{ch: make(chan struct{}, 1)}
}

func (n *localNotifier) Notify(ctx context.Context) error {
	select {
	case n.ch <- struct{}{}:
	default: // a pending signal already covers this change
	}
	return nil
}

func (n *localNotifier) C() <-chan struct{} { return n.ch }
func (n *localNotifier) Close() error       { return nil }

// redisNotifier fans config-change signals out across processes via pub/sub.
type redisNotifier struct {
	rdb     *redis.Client
	channel string
	ch      chan struct{}
	cancel  context.CancelFunc
}

// NewRedisNotifier subscribes to the shared change channel and starts the
// receive loop.
func NewRedisNotifier(addr, password string, db int, channel string) (Notifier, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &redisNotifier{
		rdb:     rdb,
		channel: channel,
		ch:      make(chan struct{}, 1),
		cancel:  cancel,
	}

	sub := rdb.Subscribe(ctx, channel)
	go func() {
		log := logger.Named("config.bus")
		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("pubsub receive failed", logger.Err(err))
				continue
			}
			_ = msg
			select {
			case n.ch <- struct{}{}:
			default:
			}
		}
	}()

	return n, nil
}

func (n *redisNotifier) Notify(ctx context.Context) error {
	return n.rdb.Publish(ctx, n.channel, "reload").Err()
}

func (n *redisNotifier) C() <-chan struct{} { return n.ch }

func (n *redisNotifier) Close() error {
	n.cancel()
	return n.rdb.Close()
}
