package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/activities/:id/ws", websocket.New(func(c *websocket.Conn) {
		serve(c, hub, ActivityTopic(c.Params("id")))
	}))

	r.Get("/users/:id/ws", websocket.New(func(c *websocket.Conn) {
		serve(c, hub, UserTopic(c.Params("id")))
	}))
}

// ActivityTopic names the live-telemetry feed of one session.
func ActivityTopic(sessionID string) string {
	return "activity:" + sessionID
}

// UserTopic names the per-user feed carrying reward events.
func UserTopic(userID string) string {
	return "user:" + userID
}

func serve(c *websocket.Conn, hub *Hub, topic string) {
	client := hub.Register(topic)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}

	// Unregister closes Send, which lets the writer drain and exit.
	hub.Unregister(client)
	<-done
}
