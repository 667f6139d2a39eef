package terminal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/antibyte/catterm/pkg/catlang"
	"github.com/antibyte/catterm/pkg/logger"
	"github.com/antibyte/catterm/pkg/session"
	"github.com/antibyte/catterm/pkg/shared"

	"github.com/gorilla/websocket"
)

// sessionEndedReason is the close frame text sent when the bound session is
// removed from the manager.
const sessionEndedReason = "session ended"

// Client is one websocket bound to a session.
type Client struct {
	conn        *websocket.Conn
	send        chan []byte
	handler     *TerminalHandler
	sess        *session.Session
	shutdown    chan struct{}
	closeOnce   sync.Once
	closeReason string
}

func newClient(h *TerminalHandler, conn *websocket.Conn, sess *session.Session) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, getMaxChannelBuffer()),
		handler:  h,
		sess:     sess,
		shutdown: make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeWith("")
}

// closeWith stops both pumps. reason goes out in the close frame.
func (c *Client) closeWith(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.shutdown)
	})
}

// SendMessage queues a frame. A client whose buffer stays full is dropped.
func (c *Client) SendMessage(msg shared.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error(logger.AreaWebSocket, "Error marshalling %s message: %v", msg.Type, err)
		return
	}

	select {
	case <-c.shutdown:
		return
	default:
	}

	select {
	case c.send <- data:
	case <-c.shutdown:
	case <-time.After(100 * time.Millisecond):
		logger.Warn(logger.AreaWebSocket, "Send timeout for client %s, disconnecting", c.conn.RemoteAddr())
		go c.handler.removeClient(c)
	}
}

// resultMessage turns an execution result into the reply frame.
func resultMessage(res session.Result) shared.Message {
	switch {
	case res.Err != nil:
		msg := shared.Message{Type: shared.MessageTypeError, Content: res.Err.Error(), Seq: res.Seq}
		if kind := catlang.KindOf(res.Err); kind != 0 {
			msg.ErrorKind = kind.String()
			msg.Category = kind.Category()
		}
		return msg
	case res.HasOutput:
		return shared.Message{Type: shared.MessageTypeOutput, Content: res.Output, Seq: res.Seq}
	default:
		return shared.Message{Type: shared.MessageTypeOK, Base: res.Base.String(), Seq: res.Seq}
	}
}

func (c *Client) readPump() {
	defer c.handler.removeClient(c)

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn(logger.AreaWebSocket, "Unexpected close for client %s: %v", c.conn.RemoteAddr(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		line, keepalive, err := c.handler.validator.DecodeInput(message)
		if err != nil {
			logger.SecurityWarn("Invalid frame from client %s: %v", c.conn.RemoteAddr(), err)
			c.SendMessage(shared.Message{Type: shared.MessageTypeError, Content: "Invalid input format"})
			continue
		}
		if keepalive {
			c.sess.Touch()
			continue
		}

		if _, err := c.handler.sessions.Get(c.sess.ID); err != nil {
			logger.Info(logger.AreaWebSocket, "Dropping statement for ended session %s", c.sess.ID)
			c.closeWith(sessionEndedReason)
			return
		}
		logger.Debug(logger.AreaWebSocket, "session %s: %q", c.sess.ID, line)
		res := c.sess.Execute(context.Background(), line)
		c.SendMessage(resultMessage(res))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug(logger.AreaWebSocket, "Write to client %s failed: %v", c.conn.RemoteAddr(), err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug(logger.AreaWebSocket, "Failed to send ping to client %s: %v", c.conn.RemoteAddr(), err)
				return
			}
		case <-c.shutdown:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason))
			return
		}
	}
}
