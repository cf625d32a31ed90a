package starknet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/pkg/logger"
	"github.com/gabapcia/starkstream/internal/pkg/resilience/retry"
	"github.com/gabapcia/starkstream/internal/pkg/transport/websocket"
	"github.com/gabapcia/starkstream/internal/pkg/x/chflow"
	"github.com/gabapcia/starkstream/internal/txstream"
)

const (
	newHeadsSubscribeMethod    = "starknet_subscribeNewHeads"
	pendingTxSubscribeMethod   = "starknet_subscribePendingTransactions"
	newHeadsNotificationMethod = "starknet_subscriptionNewHeads"
	reorgNotificationMethod    = "starknet_subscriptionReorg"

	headEventChannelBufferSize    = 10
	pendingEventChannelBufferSize = 50

	// unsubscribeTimeout bounds the best-effort unsubscribe performed while a
	// subscription's connection is being torn down.
	unsubscribeTimeout = 2 * time.Second
)

// Subscriber provides push-mode subscriptions for a Starknet node over
// WebSocket. Each Subscribe* call dials its own connection, scoped to the
// given context: when the context ends the subscription is unsubscribed
// (best effort) and the socket disconnected.
type Subscriber struct {
	url   string
	retry retry.Retry

	// dial is swapped in tests to avoid a real socket.
	dial func(ctx context.Context) (*websocket.Client, error)
}

// Compile-time assertions that Subscriber satisfies the consumed contracts.
var (
	_ chainstream.HeadSource = (*Subscriber)(nil)
	_ txstream.PendingSource = (*Subscriber)(nil)
)

// SubscriberOption customizes a Subscriber created by NewSubscriber.
type SubscriberOption func(*Subscriber)

// WithConnectRetry retries the WebSocket dial with the given policy before
// giving up on a subscription.
func WithConnectRetry(r retry.Retry) SubscriberOption {
	return func(s *Subscriber) {
		s.retry = r
	}
}

// NewSubscriber creates a push-mode subscription source for the given
// WebSocket endpoint.
func NewSubscriber(url string, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		url: url,
	}
	s.dial = func(ctx context.Context) (*websocket.Client, error) {
		return websocket.Connect(ctx, s.url)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// connect dials the endpoint, applying the retry policy when one is set.
func (s *Subscriber) connect(ctx context.Context) (*websocket.Client, error) {
	if s.retry == nil {
		return s.dial(ctx)
	}

	var conn *websocket.Client
	err := s.retry.Execute(ctx, func() error {
		c, err := s.dial(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

// SubscribeNewHeads subscribes to new chain heads. The returned channel
// delivers head notices and explicit reorg notices and is closed when ctx is
// canceled or the connection fails.
func (s *Subscriber) SubscribeNewHeads(ctx context.Context) (<-chan chainstream.HeadEvent, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := conn.Subscribe(ctx, newHeadsSubscribeMethod)
	if err != nil {
		conn.Close()
		return nil, err
	}

	eventsCh := make(chan chainstream.HeadEvent, headEventChannelBufferSize)
	go func() {
		defer close(eventsCh)
		defer s.teardown(conn, sub)

		for {
			notification, ok := chflow.Receive(ctx, sub.Notifications())
			if !ok {
				return
			}

			event, ok := decodeHeadNotification(notification)
			if !ok {
				continue
			}

			if sent := chflow.Send(ctx, eventsCh, event); !sent {
				return
			}

			if event.Err != nil {
				return
			}
		}
	}()

	return eventsCh, nil
}

// SubscribePendingTransactions subscribes to pending-transaction hashes. The
// returned channel is closed when ctx is canceled or the connection fails.
func (s *Subscriber) SubscribePendingTransactions(ctx context.Context) (<-chan txstream.PendingNotice, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := conn.Subscribe(ctx, pendingTxSubscribeMethod, map[string]any{"transaction_details": false})
	if err != nil {
		conn.Close()
		return nil, err
	}

	noticesCh := make(chan txstream.PendingNotice, pendingEventChannelBufferSize)
	go func() {
		defer close(noticesCh)
		defer s.teardown(conn, sub)

		for {
			notification, ok := chflow.Receive(ctx, sub.Notifications())
			if !ok {
				return
			}

			var hash string
			notice := txstream.PendingNotice{}
			if err := json.Unmarshal(notification.Result, &hash); err != nil {
				notice.Err = err
			} else {
				notice.Hash = hash
			}

			if sent := chflow.Send(ctx, noticesCh, notice); !sent {
				return
			}

			if notice.Err != nil {
				return
			}
		}
	}()

	return noticesCh, nil
}

// teardown releases a subscription's scoped resources: best-effort
// unsubscribe (failures are swallowed, the connection is going away anyway)
// followed by disconnect.
func (s *Subscriber) teardown(conn *websocket.Client, sub *websocket.Subscription) {
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()

	if err := sub.Unsubscribe(ctx); err != nil {
		logger.Debug(ctx, "unsubscribe failed during teardown", "error", err)
	}

	if err := conn.Close(); err != nil {
		logger.Debug(ctx, "websocket close failed during teardown", "error", err)
	}
}

// decodeHeadNotification maps a raw subscription notification to a head
// event. Unknown notification methods are skipped.
func decodeHeadNotification(notification websocket.Notification) (chainstream.HeadEvent, bool) {
	switch notification.Method {
	case reorgNotificationMethod:
		var payload reorgNotification
		if err := json.Unmarshal(notification.Result, &payload); err != nil {
			return chainstream.HeadEvent{Err: err}, true
		}

		notice := payload.toReorgNotice()
		return chainstream.HeadEvent{Reorg: &notice}, true

	case newHeadsNotificationMethod:
		var payload headerNotification
		if err := json.Unmarshal(notification.Result, &payload); err != nil {
			return chainstream.HeadEvent{Err: err}, true
		}

		head := payload.toLightBlock()
		return chainstream.HeadEvent{Head: &head}, true

	default:
		return chainstream.HeadEvent{}, false
	}
}
