package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"airquality-service/models"
)

// Hub maintains the set of active websocket clients and broadcasts rankings.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	latest     func() (models.RankingResult, bool)
	logger     *slog.Logger
}

// NewHub creates a hub. latest, when set, supplies the ranking sent to newly
// connected clients.
func NewHub(latest func() (models.RankingResult, bool), logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		latest:     latest,
		logger:     logger.With("component", "ws"),
	}
}

// Run serves registrations and broadcasts until ctx is done. Only Run touches
// the client set.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("websocket client registered", "remote", client.remoteAddr())
			h.sendInitial(client)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Debug("websocket client unregistered", "remote", client.remoteAddr())
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Assume client is blocked or gone, unregister
					h.logger.Warn("websocket client send buffer full, removing", "remote", client.remoteAddr())
					close(client.send)
					delete(h.clients, client)
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

func (h *Hub) sendInitial(client *Client) {
	if h.latest == nil {
		return
	}
	result, ok := h.latest()
	if !ok {
		return
	}
	msg, err := encodeRanking(result)
	if err != nil {
		h.logger.Error("encode ranking", "error", err)
		return
	}
	select {
	case client.send <- msg:
	default:
	}
}

// Publish broadcasts a completed ranking to every connected client
func (h *Hub) Publish(ctx context.Context, result models.RankingResult) error {
	msg, err := encodeRanking(result)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return fmt.Errorf("websocket hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) registerClient(ctx context.Context, client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func encodeRanking(result models.RankingResult) ([]byte, error) {
	msg, err := json.Marshal(map[string]any{"type": "ranking", "payload": result.View(0)})
	if err != nil {
		return nil, fmt.Errorf("encode ranking: %w", err)
	}
	return msg, nil
}
