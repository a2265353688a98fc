package notify

import (
	"sync"
)

// Hub fans broadcast messages out to in-process subscribers. It is kept
// independent of net/http and gorilla/websocket so the dispatch workers
// and the API layer can share it. Subscribers register a buffered channel
// and receive every broadcast that fits; a full subscriber channel is
// skipped rather than blocking the hub.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]chan Message
	register   chan registration
	unregister chan string
	broadcast  chan Message
	shutdown   chan struct{}
	done       chan struct{}
}

type registration struct {
	id string
	ch chan Message
}

// NewHub creates and starts a new Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]chan Message),
		register:   make(chan registration),
		unregister: make(chan string),
		broadcast:  make(chan Message, 100),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.id] = reg.ch
			h.mu.Unlock()
		case id := <-h.unregister:
			h.mu.Lock()
			if ch, ok := h.clients[id]; ok {
				close(ch)
				delete(h.clients, id)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, ch := range h.clients {
				select {
				case ch <- msg:
				default:
					// Slow subscriber, drop rather than stall the hub.
				}
			}
			h.mu.RUnlock()
		case <-h.shutdown:
			h.mu.Lock()
			for id, ch := range h.clients {
				close(ch)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register registers a subscriber channel under id. The channel should be
// buffered (size 10 is plenty for UI consumers).
func (h *Hub) Register(id string, ch chan Message) {
	select {
	case h.register <- registration{id: id, ch: ch}:
	case <-h.done:
	}
}

// Unregister removes the subscriber with the given id and closes its channel.
func (h *Hub) Unregister(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// Broadcast sends a message to every subscriber without blocking the caller.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		// Broadcast queue full, drop.
	}
}

// Stop shuts down the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	close(h.shutdown)
	<-h.done
}
