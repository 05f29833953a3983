package quotefeed

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"positionmonitor/internal/model/enum"
	"positionmonitor/pkg/exception"
)

const defaultWSRequestTimeout = 5 * time.Second

var _ Dialer = (*WSDialer)(nil)

// WSDialer opens feeds on a websocket quote gateway.
type WSDialer struct {
	url     string
	timeout time.Duration
}

// NewWSDialer creates a dialer for url. A zero timeout uses 5s per control request.
func NewWSDialer(url string, timeout time.Duration) *WSDialer {
	if timeout <= 0 {
		timeout = defaultWSRequestTimeout
	}
	return &WSDialer{url: url, timeout: timeout}
}

type wsControlRequest struct {
	Method string `json:"method"`
	Symbol string `json:"symbol"`
	Kind   string `json:"kind,omitempty"`
	ID     int64  `json:"id"`
}

type wsControlResponse struct {
	ID     int64  `json:"id"`
	Result any    `json:"result"`
	Error  string `json:"error"`
}

// Dial connects and starts a reader for handler.
func (d *WSDialer) Dial(ctx context.Context, handler Handler) (Feed, error) {
	if d == nil || d.url == "" {
		return nil, exception.ErrInvalidArgument
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	wss := ws.New(feedCtx, d.url)
	if err := wss.Start(ctx); err != nil {
		cancel()
		return nil, errors.Wrap(err, "start wss").With("url", d.url)
	}

	f := &wsFeed{
		ctx:     feedCtx,
		cancel:  cancel,
		wss:     wss,
		timeout: d.timeout,
		subs:    newSubscriptions(),
		handler: handler,
	}
	ch, unsubscribe := wss.Subscribe()

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-feedCtx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					f.stopped()
					return
				}

				p, ok := ws.ReadMessage[Payload](m)
				if !ok || p.Symbol == "" {
					continue
				}
				f.dispatch(p)
			}
		}
	}()

	return f, nil
}

type wsFeed struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wss     *ws.WebSocket
	timeout time.Duration
	subs    *subscriptions
	handler Handler
	reqID   atomic.Int64
	closed  atomic.Bool
}

func (f *wsFeed) Subscribe(symbol string, kind enum.InstrumentKind, handle any) error {
	if f.closed.Load() {
		return exception.ErrQuoteFeedClosed
	}
	if !kind.IsAvailable() {
		return errors.Wrapf(exception.ErrQuoteFeedUnsupported, "kind: %d", kind)
	}
	if !f.subs.Add(symbol, kind, handle) {
		return nil
	}

	appendIntoRegister := true
	if err := f.control("SUBSCRIBE", symbol, kind, appendIntoRegister); err != nil {
		f.subs.Remove(symbol, handle)
		return err
	}
	return nil
}

func (f *wsFeed) Unsubscribe(symbol string, handle any) error {
	if f.closed.Load() {
		return exception.ErrQuoteFeedClosed
	}
	kind, last := f.subs.Remove(symbol, handle)
	if !last {
		return nil
	}

	appendIntoRegister := false
	return f.control("UNSUBSCRIBE", symbol, kind, appendIntoRegister)
}

func (f *wsFeed) control(method, symbol string, kind enum.InstrumentKind, appendIntoRegister bool) error {
	ctx, cancel := context.WithTimeout(f.ctx, f.timeout)
	defer cancel()

	id := f.reqID.Add(1)
	if err := f.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, conn *ws.WebSocket) error {
			payload := wsControlRequest{
				Method: method,
				Symbol: symbol,
				Kind:   kind.String(),
				ID:     id,
			}

			if err := conn.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write control payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp wsControlResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != id {
				return false, nil
			}

			if resp.Error != "" {
				return false, errors.Errorf("%s %s, err: %s", method, symbol, resp.Error)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait").With("symbol", symbol)
	}

	return nil
}

func (f *wsFeed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.cancel()
	f.wss.Close()
	return nil
}

func (f *wsFeed) dispatch(p Payload) {
	handles := f.subs.Handles(p.Symbol)
	if len(handles) == 0 {
		return
	}

	tick := p.Tick()
	for _, h := range handles {
		tick.Handle = h
		f.handler.OnQuote(tick)
	}
}

func (f *wsFeed) stopped() {
	if f.closed.Load() {
		return
	}
	logs.Errorf("websocket quote feed stopped, symbols: %d", f.subs.Count())
	f.handler.OnStopped(exception.ErrConnectionClose)
}
