package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // OK for demo; restrict in production
	},
}

// WSHandler upgrades the connection and registers it on the hub. The
// optional ?events=discovery.invalidate,library.update query narrows the
// feed to those event types.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		events := splitEventTypes(c.Query("events"))
		hub.AddWS(ws, events)
		log.Printf("[ws] client connected (events=%v)", events)

		welcome, _ := json.Marshal(map[string]any{
			"type":      "welcome",
			"transport": "websocket",
			"events":    events,
		})
		_ = ws.WriteMessage(websocket.TextMessage, append(welcome, '\n'))

		// Keep connection alive (ignore incoming messages)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.RemoveWS(ws)
		log.Println("[ws] client disconnected")
	}
}

func splitEventTypes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
