package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cacaowallet/internal/events"
	"cacaowallet/internal/models"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestNewBalanceUpdateFormatsAvailable(t *testing.T) {
	update := NewBalanceUpdate(models.Wallet{
		ID:           "wallet-1",
		FiatBalance:  decimal.RequireFromString("100"),
		FiatHeld:     decimal.RequireFromString("25.5"),
		CacaoBalance: decimal.RequireFromString("45000"),
		CacaoHeld:    decimal.RequireFromString("1000"),
	})
	assert.Equal(t, "100.00", update.FiatBalance)
	assert.Equal(t, "74.50", update.FiatAvailable)
	assert.Equal(t, "44000.0000", update.CacaoAvailable)
}

func TestBalanceBroadcastReachesOwnerOnly(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, r.URL.Query().Get("user"))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	owner, _, err := websocket.DefaultDialer.Dial(url+"?user=user-1", nil)
	require.NoError(t, err)
	defer owner.Close()

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients["user-1"]) == 1
	}, time.Second, 5*time.Millisecond)

	hub.BroadcastWallet(models.Wallet{ID: "wallet-1", UserID: "user-1", CacaoBalance: decimal.NewFromInt(5)})
	hub.BroadcastWallet(models.Wallet{ID: "wallet-2", UserID: "user-2"})

	_ = owner.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := owner.ReadMessage()
	require.NoError(t, err)
	var update BalanceUpdate
	require.NoError(t, json.Unmarshal(payload, &update))
	assert.Equal(t, "wallet-1", update.WalletID)
	assert.Equal(t, "5.0000", update.CacaoBalance)
}

func TestOperatorFeedRelaysBusEvents(t *testing.T) {
	hub := NewHub()
	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.RunOperatorFeed(ctx, bus)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeOperatorWS(w, r, hub)
	}))
	defer server.Close()
	conn := dial(t, server)

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.operators) == 1 && bus.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	bus.Publish(events.Event{ID: "e-1", Kind: events.KindTransactionPending, TransactionID: "tx-1"})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var event events.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, "tx-1", event.TransactionID)
	assert.Equal(t, events.KindTransactionPending, event.Kind)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", client)
	hub.Unregister("user-1", client)
	hub.Unregister("user-1", client)
	assert.Empty(t, hub.clients)
}
