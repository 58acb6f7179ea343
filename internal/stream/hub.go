package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans status snapshots out to listeners of an employee's shift. The
// tracking controller publishes; how a listener renders the snapshot is not
// the hub's concern.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	EmployeeID string
	Send       chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(employeeID string) *Client {
	client := &Client{
		EmployeeID: employeeID,
		Send:       make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[employeeID] == nil {
		h.clients[employeeID] = map[*Client]struct{}{}
	}
	h.clients[employeeID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if employeeClients, ok := h.clients[client.EmployeeID]; ok {
		delete(employeeClients, client)
		if len(employeeClients) == 0 {
			delete(h.clients, client.EmployeeID)
		}
	}
	close(client.Send)
}

func (h *Hub) Publish(employeeID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[employeeID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(employeeID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

// subscribeRedis forwards snapshots published by other processes. A local
// publish also comes back through the pattern subscription; snapshots carry
// whole state, not deltas, so the repeat delivery is harmless.
func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "attendance:*:status")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		employeeID := employeeIDFromChannel(msg.Channel)
		h.mu.RLock()
		clients := h.clients[employeeID]
		h.mu.RUnlock()
		for client := range clients {
			select {
			case client.Send <- []byte(msg.Payload):
			default:
			}
		}
	}
}

func redisChannel(employeeID string) string {
	return "attendance:" + employeeID + ":status"
}

func employeeIDFromChannel(ch string) string {
	// attendance:{employee}:status
	const prefix = "attendance:"
	const suffix = ":status"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
