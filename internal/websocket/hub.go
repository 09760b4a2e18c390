package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"cacaowallet/internal/events"
	"cacaowallet/internal/models"
	"cacaowallet/internal/money"
)

const operatorFeedBuffer = 64

type BalanceUpdate struct {
	Kind           string `json:"kind"`
	WalletID       string `json:"wallet_id"`
	FiatBalance    string `json:"fiat_balance"`
	FiatHeld       string `json:"fiat_held"`
	FiatAvailable  string `json:"fiat_available"`
	CacaoBalance   string `json:"cacao_balance"`
	CacaoHeld      string `json:"cacao_held"`
	CacaoAvailable string `json:"cacao_available"`
}

func NewBalanceUpdate(w models.Wallet) BalanceUpdate {
	return BalanceUpdate{
		Kind:           "balance.updated",
		WalletID:       w.ID,
		FiatBalance:    money.FormatFiat(w.FiatBalance),
		FiatHeld:       money.FormatFiat(w.FiatHeld),
		FiatAvailable:  money.FormatFiat(w.FiatAvailable()),
		CacaoBalance:   money.FormatGrams(w.CacaoBalance),
		CacaoHeld:      money.FormatGrams(w.CacaoHeld),
		CacaoAvailable: money.FormatGrams(w.CacaoAvailable()),
	}
}

// Hub tracks balance subscribers per user and operators watching the
// settlement queue.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[*Client]struct{}
	operators map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]map[*Client]struct{}),
		operators: make(map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) RegisterOperator(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.operators[client] = struct{}{}
}

func (h *Hub) UnregisterOperator(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.operators, client)
}

func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}

// BroadcastWallet pushes the wallet's balances to its owner's sockets.
func (h *Hub) BroadcastWallet(w models.Wallet) {
	h.BroadcastBalance(w.UserID, NewBalanceUpdate(w))
}

func (h *Hub) BroadcastOperators(event events.Event) {
	payload, _ := json.Marshal(event)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.operators {
		select {
		case client.send <- payload:
		default:
		}
	}
}

// RunOperatorFeed relays bus events to operator sockets until ctx is done.
func (h *Hub) RunOperatorFeed(ctx context.Context, bus *events.Bus) {
	feed, cancel := bus.Subscribe(operatorFeedBuffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-feed:
			if !ok {
				return
			}
			h.BroadcastOperators(event)
		}
	}
}
