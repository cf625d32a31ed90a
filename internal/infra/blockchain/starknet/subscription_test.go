package starknet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gabapcia/starkstream/internal/pkg/transport/websocket"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHeadNotification(t *testing.T) {
	t.Run("new head notifications become head events", func(t *testing.T) {
		notification := websocket.Notification{
			Method: newHeadsNotificationMethod,
			Result: json.RawMessage(`{
				"block_hash": "0xabc",
				"parent_hash": "0xdef",
				"block_number": 42,
				"timestamp": 1700000042
			}`),
		}

		event, ok := decodeHeadNotification(notification)
		require.True(t, ok)
		require.NotNil(t, event.Head)
		assert.Equal(t, "0xabc", event.Head.Hash)
		assert.Equal(t, "0xdef", event.Head.ParentHash)
		assert.Equal(t, uint64(42), event.Head.Number)
		assert.Nil(t, event.Reorg)
		assert.NoError(t, event.Err)
	})

	t.Run("reorg notifications become reorg notices", func(t *testing.T) {
		notification := websocket.Notification{
			Method: reorgNotificationMethod,
			Result: json.RawMessage(`{
				"starting_block_hash": "0xold",
				"starting_block_number": 40,
				"ending_block_hash": "0xnew",
				"ending_block_number": 42
			}`),
		}

		event, ok := decodeHeadNotification(notification)
		require.True(t, ok)
		require.NotNil(t, event.Reorg)
		assert.Equal(t, "0xold", event.Reorg.StartingBlock.Hash)
		assert.Equal(t, uint64(40), event.Reorg.StartingBlock.Number)
		assert.Equal(t, "0xnew", event.Reorg.EndingBlock.Hash)
		assert.Equal(t, uint64(42), event.Reorg.EndingBlock.Number)
		assert.Nil(t, event.Head)
	})

	t.Run("unknown notification methods are skipped", func(t *testing.T) {
		notification := websocket.Notification{
			Method: "starknet_subscriptionEvents",
			Result: json.RawMessage(`{}`),
		}

		_, ok := decodeHeadNotification(notification)
		assert.False(t, ok)
	})

	t.Run("malformed payloads surface as event errors", func(t *testing.T) {
		notification := websocket.Notification{
			Method: newHeadsNotificationMethod,
			Result: json.RawMessage(`"not an object"`),
		}

		event, ok := decodeHeadNotification(notification)
		require.True(t, ok)
		assert.Error(t, event.Err)
	})
}

// startNodeServer runs a WebSocket server that accepts any subscription call
// with subscription id 1 and then pushes the given notification repeatedly
// until the connection closes. Repetition sidesteps the race between the
// server's first push and the client registering the subscription.
func startNodeServer(t *testing.T, method string, payload any) string {
	t.Helper()

	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		write := func(v any) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteJSON(v)
		}

		done := make(chan struct{})
		defer close(done)

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			switch msg["method"] {
			case newHeadsSubscribeMethod, pendingTxSubscribeMethod:
				if err := write(map[string]any{"jsonrpc": "2.0", "id": msg["id"], "result": 1}); err != nil {
					return
				}

				go func() {
					notification := map[string]any{
						"jsonrpc": "2.0",
						"method":  method,
						"params":  map[string]any{"subscription_id": 1, "result": payload},
					}
					for {
						select {
						case <-done:
							return
						case <-time.After(10 * time.Millisecond):
							if write(notification) != nil {
								return
							}
						}
					}
				}()

			default:
				if err := write(map[string]any{"jsonrpc": "2.0", "id": msg["id"], "result": true}); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscribeNewHeads(t *testing.T) {
	url := startNodeServer(t, newHeadsNotificationMethod, map[string]any{
		"block_hash":   "0xabc",
		"parent_hash":  "0xdef",
		"block_number": 42,
		"timestamp":    1700000042,
	})

	subscriber := NewSubscriber(url)

	eventsCh, err := subscriber.SubscribeNewHeads(t.Context())
	require.NoError(t, err)

	select {
	case event := <-eventsCh:
		require.NoError(t, event.Err)
		require.NotNil(t, event.Head)
		assert.Equal(t, "0xabc", event.Head.Hash)
		assert.Equal(t, uint64(42), event.Head.Number)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for head event")
	}
}

func TestSubscribePendingTransactions(t *testing.T) {
	url := startNodeServer(t, "starknet_subscriptionPendingTransactions", "0xfeed")

	subscriber := NewSubscriber(url)

	noticesCh, err := subscriber.SubscribePendingTransactions(t.Context())
	require.NoError(t, err)

	select {
	case notice := <-noticesCh:
		require.NoError(t, notice.Err)
		assert.Equal(t, "0xfeed", notice.Hash)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pending notice")
	}
}
