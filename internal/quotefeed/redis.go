package quotefeed

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"positionmonitor/internal/model/enum"
	"positionmonitor/pkg/exception"
)

// DefaultChannelPrefix is prepended to a symbol to form its price channel.
const DefaultChannelPrefix = "prices."

var _ Dialer = (*RedisDialer)(nil)

// RedisDialer opens feeds backed by redis pub/sub, one channel per symbol.
type RedisDialer struct {
	client *redis.Client
	prefix string
}

// NewRedisDialer creates a dialer on client. An empty prefix uses DefaultChannelPrefix.
func NewRedisDialer(client *redis.Client, prefix string) *RedisDialer {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisDialer{client: client, prefix: prefix}
}

// Dial checks the connection and starts a reader for handler.
func (d *RedisDialer) Dial(ctx context.Context, handler Handler) (Feed, error) {
	if d == nil || d.client == nil {
		return nil, exception.ErrNilInstance
	}
	if err := d.client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	f := &redisFeed{
		ctx:     feedCtx,
		cancel:  cancel,
		prefix:  d.prefix,
		pubsub:  d.client.Subscribe(feedCtx),
		subs:    newSubscriptions(),
		handler: handler,
	}
	go f.run()
	return f, nil
}

type redisFeed struct {
	ctx     context.Context
	cancel  context.CancelFunc
	prefix  string
	mu      sync.Mutex // protects pubsub control calls
	pubsub  *redis.PubSub
	subs    *subscriptions
	handler Handler
	closed  atomic.Bool
}

func (f *redisFeed) Subscribe(symbol string, kind enum.InstrumentKind, handle any) error {
	if f.closed.Load() {
		return exception.ErrQuoteFeedClosed
	}
	if !f.subs.Add(symbol, kind, handle) {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pubsub.Subscribe(f.ctx, f.prefix+symbol); err != nil {
		f.subs.Remove(symbol, handle)
		return errors.Wrap(err, "redis subscribe").With("symbol", symbol)
	}
	return nil
}

func (f *redisFeed) Unsubscribe(symbol string, handle any) error {
	if f.closed.Load() {
		return exception.ErrQuoteFeedClosed
	}
	if _, last := f.subs.Remove(symbol, handle); !last {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pubsub.Unsubscribe(f.ctx, f.prefix+symbol); err != nil {
		return errors.Wrap(err, "redis unsubscribe").With("symbol", symbol)
	}
	return nil
}

func (f *redisFeed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.cancel()
	return f.pubsub.Close()
}

func (f *redisFeed) run() {
	for msg := range f.pubsub.Channel() {
		symbol := strings.TrimPrefix(msg.Channel, f.prefix)
		handles := f.subs.Handles(symbol)
		if len(handles) == 0 {
			continue
		}

		tick, err := DecodeTick([]byte(msg.Payload))
		if err != nil {
			f.handler.OnError(errors.Wrap(err, "decode tick").With("symbol", symbol))
			continue
		}
		tick.Symbol = symbol
		for _, h := range handles {
			tick.Handle = h
			f.handler.OnQuote(tick)
		}
	}

	if f.closed.Load() {
		return
	}
	logs.Errorf("redis quote feed reader stopped, prefix: %s, symbols: %d", f.prefix, f.subs.Count())
	f.handler.OnStopped(exception.ErrConnectionLost)
}
