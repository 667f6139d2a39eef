// Package terminal serves the browser terminal: a websocket carrying C@ lines
// in and formatted results out, plus a JSON history endpoint.
package terminal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/antibyte/catterm/pkg/auth"
	"github.com/antibyte/catterm/pkg/configuration"
	"github.com/antibyte/catterm/pkg/logger"
	"github.com/antibyte/catterm/pkg/session"
	"github.com/antibyte/catterm/pkg/shared"
	"github.com/antibyte/catterm/pkg/transcript"

	"github.com/gorilla/websocket"
)

// HistorySource returns past statements of a session. *transcript.Store
// satisfies it.
type HistorySource interface {
	History(ctx context.Context, sessionID string, limit int) ([]transcript.Entry, error)
}

func getWriteWait() time.Duration {
	return configuration.GetDuration("Network", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Network", "pong_timeout", 90*time.Second)
}

func getPingPeriod() time.Duration {
	return (getPongWait() * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Network", "max_message_size_kb", 64) * 1024)
}

func getMaxChannelBuffer() int {
	return configuration.GetInt("Network", "max_channel_buffer", 256)
}

// TerminalHandler owns the websocket clients.
type TerminalHandler struct {
	sessions     *session.Manager
	history      HistorySource
	historyLimit int
	prompt       string
	validator    *InputValidator
	upgrader     websocket.Upgrader

	mutex   sync.RWMutex
	clients map[*Client]bool
}

// NewTerminalHandler wires the handler to the session manager. history may be
// nil when the transcript is disabled.
func NewTerminalHandler(sessions *session.Manager, history HistorySource) *TerminalHandler {
	h := &TerminalHandler{
		sessions:     sessions,
		history:      history,
		historyLimit: configuration.GetInt("Database", "history_limit", 100),
		prompt:       configuration.GetString("Interpreter", "prompt", "> "),
		validator:    NewInputValidator(),
		clients:      make(map[*Client]bool),
	}
	sessions.OnRemove(h.closeSession)
	allowed := configuration.GetList("Network", "allowed_origins")
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r, allowed)
		},
	}
	return h
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients), origins on the allow list, and same-host origins when the list
// is empty.
func checkOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(allowed) == 0 {
		host := origin
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		if host == r.Host {
			return true
		}
	}
	for _, a := range allowed {
		if origin == a {
			return true
		}
	}
	logger.SecurityWarn("WebSocket request from disallowed origin rejected: %s", origin)
	return false
}

// Register mounts the websocket and history endpoints on mux.
func (h *TerminalHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWebSocket)
	mux.HandleFunc("/api/history", auth.RequireSessionToken(h.HandleHistory))
}

// HandleWebSocket validates the session token and upgrades the connection.
// Reconnecting with the same token resumes the same interpreter.
func (h *TerminalHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		logger.Warn(logger.AreaWebSocket, "WebSocket request without token from %s", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateSessionToken(tokenString)
	if err != nil {
		logger.Warn(logger.AreaWebSocket, "WebSocket request with invalid token from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	sess, err := h.sessions.Get(claims.SessionID)
	if err != nil {
		http.Error(w, "Session expired", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error(logger.AreaWebSocket, "WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	client := newClient(h, conn, sess)
	h.mutex.Lock()
	h.clients[client] = true
	h.mutex.Unlock()
	sess.Touch()

	logger.Info(logger.AreaWebSocket, "Client connected for session %s (%d clients)", sess.ID, h.ClientCount())

	go client.writePump()
	go client.readPump()

	client.SendMessage(shared.Message{Type: shared.MessageTypeSession, SessionID: sess.ID})
	client.SendMessage(h.promptMessage(sess))
}

func (h *TerminalHandler) promptMessage(sess *session.Session) shared.Message {
	return shared.Message{
		Type:         shared.MessageTypePrompt,
		PromptSymbol: h.prompt,
		Base:         sess.Base().String(),
	}
}

func (h *TerminalHandler) removeClient(c *Client) {
	h.mutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mutex.Unlock()
	if ok {
		c.close()
		logger.Info(logger.AreaWebSocket, "Client disconnected from session %s (%d clients)", c.sess.ID, h.ClientCount())
	}
}

// closeSession disconnects every client bound to a session that has left
// the manager.
func (h *TerminalHandler) closeSession(id string) {
	var ended []*Client
	h.mutex.Lock()
	for c := range h.clients {
		if c.sess.ID == id {
			ended = append(ended, c)
			delete(h.clients, c)
		}
	}
	h.mutex.Unlock()

	for _, c := range ended {
		c.closeWith(sessionEndedReason)
	}
	if len(ended) > 0 {
		logger.Info(logger.AreaWebSocket, "Session %s ended, closed %d clients (%d clients)", id, len(ended), h.ClientCount())
	}
}

// ClientCount returns the number of connected websockets.
func (h *TerminalHandler) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *TerminalHandler) CloseAll() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]bool)
	h.mutex.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// HandleHistory returns the caller's transcript as JSON.
func (h *TerminalHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.history == nil {
		http.Error(w, `{"error":"transcript disabled"}`, http.StatusNotFound)
		return
	}
	sessionID, ok := auth.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	entries, err := h.history.History(r.Context(), sessionID, h.historyLimit)
	if err != nil {
		logger.DatabaseError("history for %s failed: %v", sessionID, err)
		http.Error(w, `{"error":"history unavailable"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []transcript.Entry{}
	}
	json.NewEncoder(w).Encode(struct {
		SessionID string             `json:"sessionId"`
		Entries   []transcript.Entry `json:"entries"`
	}{sessionID, entries})
}
