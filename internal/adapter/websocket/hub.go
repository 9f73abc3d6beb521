// Package websocket pushes live station, connector and transaction events to
// operator dashboards.
package websocket

import (
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/adapter/queue"
)

type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Outbound messages fanned out to every client.
	broadcast chan []byte

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	log *zap.Logger
}

type Client struct {
	hub *Hub
	// The websocket connection.
	conn *websocket.Conn
	// Buffered channel of outbound messages.
	send chan []byte
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than stall the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BindQueue republishes the bus events to every connected dashboard, wrapped
// in an envelope naming the subject.
func (h *Hub) BindQueue(mq queue.MessageQueue) error {
	subjects := []string{
		queue.SubjectStationStatus,
		queue.SubjectConnectorStatus,
		queue.SubjectTransactionEvent,
	}
	for _, subject := range subjects {
		subject := subject
		err := mq.Subscribe(subject, func(msg []byte) error {
			envelope, err := json.Marshal(map[string]interface{}{
				"subject": subject,
				"data":    json.RawMessage(msg),
			})
			if err != nil {
				return err
			}
			select {
			case h.broadcast <- envelope:
			default:
				h.log.Debug("hub broadcast buffer full, event dropped",
					zap.String("subject", subject))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) AddClient(conn *websocket.Conn) {
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	client.hub.register <- client

	go client.writePump()
	// The read loop keeps the connection alive and must run on the calling
	// goroutine: fiber's websocket handler closes the connection when it
	// returns.
	client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		// Dashboards only listen; reads just service control frames.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
