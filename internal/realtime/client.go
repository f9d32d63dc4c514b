package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Commands are the client-issued actions a UI socket may invoke, forwarded
// to the session and chat layers without the hub knowing their types.
type Commands struct {
	SendChat     func(content string)
	ToggleAudio  func()
	ToggleVideo  func()
	SwitchCamera func()
	ToggleVitals func()
	EndCall      func()
	CurrentState func() interface{} // latest session snapshot for replay on join
}

// Client represents a single UI WebSocket connection in a consultation room.
type Client struct {
	ID       string
	Room     string
	UserID   uuid.UUID
	Role     string
	hub      *Hub
	commands Commands
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, jwtValidate func(token string) (userID, role string, err error), commands Commands) gin.HandlerFunc {
	return func(c *gin.Context) {
		room := c.Query("room")
		token := c.Query("token")
		if room == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room and token required"})
			return
		}
		userIDStr, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, _ := uuid.Parse(userIDStr)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			Room:     room,
			UserID:   userID,
			Role:     role,
			hub:      hub,
			commands: commands,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "join":
			// replay the current session view so a late joiner renders
			// immediately instead of waiting for the next change
			if c.commands.CurrentState != nil {
				c.hub.SendToClient(c.Room, c.ID, "session_state", c.commands.CurrentState())
			}
		case "chat_message":
			if c.commands.SendChat != nil {
				var payload struct {
					Content string `json:"content"`
				}
				if err := json.Unmarshal(msg.Data, &payload); err == nil && payload.Content != "" {
					c.commands.SendChat(payload.Content)
				}
			}
		case "toggle_audio":
			if c.commands.ToggleAudio != nil {
				c.commands.ToggleAudio()
			}
		case "toggle_video":
			if c.commands.ToggleVideo != nil {
				c.commands.ToggleVideo()
			}
		case "switch_camera":
			if c.commands.SwitchCamera != nil {
				c.commands.SwitchCamera()
			}
		case "toggle_vitals":
			if c.commands.ToggleVitals != nil {
				c.commands.ToggleVitals()
			}
		case "end_call":
			if c.commands.EndCall != nil {
				c.commands.EndCall()
			}
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
