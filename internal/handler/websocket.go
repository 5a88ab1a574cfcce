package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"clipsync-server/internal/clip"
	"clipsync-server/internal/model"
)

// WebSocketHandler binds one device's transport connection to a
// session. It holds no session state of its own: inbound commands are
// translated into Session calls, outbound session events into wire
// messages.
type WebSocketHandler struct {
	Registry     *clip.Registry
	MaxFileBytes int64
}

type command struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Name      string `json:"name,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	Size      int64  `json:"size,omitempty"`
	ItemID    string `json:"itemId,omitempty"`
	Ref       string `json:"ref,omitempty"`
}

type joinedEvent struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId"`
	Items     []model.Item `json:"items"`
	ExpiresAt int64        `json:"expiresAt"`
}

type uploadReadyEvent struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
}

type errorEvent struct {
	Type    string         `json:"type"`
	Kind    clip.ErrorKind `json:"kind"`
	Message string         `json:"message"`
	Ref     string         `json:"ref,omitempty"`
}

type pongEvent struct {
	Type string `json:"type"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	joinWait  = 30 * time.Second
	pongWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

// wsConn serializes writes from the event pump and the command loop.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) writeRaw(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeRaw(data)
}

func rejection(err error, ref string) errorEvent {
	ev := errorEvent{Type: "error", Kind: clip.KindOf(err), Ref: ref}
	var ce *clip.Error
	if errors.As(err, &ce) {
		ev.Message = ce.Message
	} else {
		ev.Message = "internal error"
	}
	return ev
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	conn := &wsConn{ws: ws}
	ws.SetReadLimit(h.MaxFileBytes + 1024*1024)

	// The first command must be a join. Rejecting an unknown or expired
	// session here has no side effects; the client is sent back to
	// session creation.
	_ = ws.SetReadDeadline(time.Now().Add(joinWait))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return
	}
	var join command
	if err := json.Unmarshal(data, &join); err != nil || join.Type != "join" || join.SessionID == "" {
		_ = conn.writeJSON(errorEvent{Type: "error", Kind: clip.KindInvalidInput, Message: "expected join command"})
		return
	}
	sess, ok := h.Registry.Get(join.SessionID)
	if !ok {
		_ = conn.writeJSON(errorEvent{Type: "error", Kind: clip.KindNotFound, Message: "session not found"})
		return
	}
	sub, items, err := sess.Attach()
	if err != nil {
		_ = conn.writeJSON(rejection(err, ""))
		return
	}
	defer sess.Detach(sub)

	if err := conn.writeJSON(joinedEvent{Type: "joined", SessionID: sess.ID(), Items: items, ExpiresAt: sess.ExpiresAt()}); err != nil {
		return
	}
	log.Debug().Str("session", sess.ID()).Msg("device attached")

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }
	defer closeDone()

	go h.pumpEvents(conn, sub, done)

	go func() {
		ticker := time.NewTicker((pongWait * 9) / 10)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	h.commandLoop(conn, sess)
}

// pumpEvents forwards broadcast payloads to the device. Delivery to
// this device is independent of every other member; if the session
// drops the subscriber (slow consumer or teardown), queued events are
// flushed before the socket closes so the final session-ended event
// still arrives.
func (h *WebSocketHandler) pumpEvents(conn *wsConn, sub *clip.Subscriber, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-sub.Events():
			if err := conn.writeRaw(msg); err != nil {
				_ = conn.ws.Close()
				return
			}
		case <-sub.Done():
			for {
				select {
				case msg := <-sub.Events():
					if err := conn.writeRaw(msg); err != nil {
						_ = conn.ws.Close()
						return
					}
				default:
					_ = conn.ws.Close()
					return
				}
			}
		}
	}
}

func (h *WebSocketHandler) commandLoop(conn *wsConn, sess *clip.Session) {
	// pending holds a validated submit-file command while the payload
	// frame is in flight.
	var pending *command

	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		if msgType == websocket.BinaryMessage {
			if pending == nil {
				_ = conn.writeJSON(errorEvent{Type: "error", Kind: clip.KindInvalidInput, Message: "unexpected binary frame"})
				continue
			}
			cmd := *pending
			pending = nil
			if _, err := sess.SubmitFile(cmd.Name, cmd.MimeType, cmd.Size, bytes.NewReader(data), cmd.Ref); err != nil {
				_ = conn.writeJSON(rejection(err, cmd.Ref))
			}
			continue
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			_ = conn.writeJSON(errorEvent{Type: "error", Kind: clip.KindInvalidInput, Message: "malformed command"})
			continue
		}
		if pending != nil && cmd.Type != "ping" {
			pending = nil
			_ = conn.writeJSON(errorEvent{Type: "error", Kind: clip.KindInvalidInput, Message: "expected file payload frame", Ref: cmd.Ref})
			continue
		}

		switch cmd.Type {
		case "ping":
			_ = conn.writeJSON(pongEvent{Type: "pong"})

		case "submit-text":
			if _, err := sess.SubmitText(cmd.Content, cmd.Ref); err != nil {
				_ = conn.writeJSON(rejection(err, cmd.Ref))
			}

		case "submit-file":
			// Declared size is vetted before any payload byte is read,
			// so an oversized submission stages nothing.
			if cmd.Name == "" || cmd.Size < 0 {
				_ = conn.writeJSON(errorEvent{Type: "error", Kind: clip.KindInvalidInput, Message: "malformed file metadata", Ref: cmd.Ref})
				continue
			}
			if cmd.Size > h.MaxFileBytes {
				_ = conn.writeJSON(errorEvent{Type: "error", Kind: clip.KindTooLarge, Message: "file exceeds size limit", Ref: cmd.Ref})
				continue
			}
			pending = &cmd
			_ = conn.writeJSON(uploadReadyEvent{Type: "upload-ready", Ref: cmd.Ref})

		case "remove-item":
			if err := sess.RemoveItem(cmd.ItemID); err != nil {
				_ = conn.writeJSON(rejection(err, cmd.Ref))
			}

		case "end-session":
			// Session-wide and irreversible; any member may end it. The
			// session-ended broadcast reaches this device via the pump
			// before the subscriber closes.
			h.Registry.End(sess.ID())

		default:
			_ = conn.writeJSON(errorEvent{Type: "error", Kind: clip.KindInvalidInput, Message: "unknown command", Ref: cmd.Ref})
		}
	}
}
