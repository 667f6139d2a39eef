package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/antibyte/catterm/pkg/configuration"
	"github.com/antibyte/catterm/pkg/logger"
	"github.com/antibyte/catterm/pkg/session"
)

// SessionRequest is the body of POST /api/session.
type SessionRequest struct {
	Password string `json:"password,omitempty"`
}

// LogoutRequest is the optional body of POST /api/session/logout.
type LogoutRequest struct {
	Forget bool `json:"forget,omitempty"`
}

// SessionResponse answers every session endpoint.
type SessionResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Base      string `json:"base,omitempty"`
	Message   string `json:"message"`
}

// Handlers serves the session lifecycle endpoints.
type Handlers struct {
	Sessions       *session.Manager
	PasswordHash   string
	GuestAccess    bool
	SecureCookie   bool
	TrustedProxies []string // proxy hosts whose forwarding headers are believed
}

// NewHandlers reads the [Authentication] section.
func NewHandlers(sessions *session.Manager) *Handlers {
	return &Handlers{
		Sessions:       sessions,
		PasswordHash:   configuration.GetString("Authentication", "password_hash", ""),
		GuestAccess:    configuration.GetBool("Authentication", "enable_guest_access", true),
		SecureCookie:   configuration.GetBool("TLS", "enable_tls", false),
		TrustedProxies: configuration.GetList("Network", "trusted_proxies"),
	}
}

// Register mounts the handlers on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/session", h.HandleCreateSession)
	mux.HandleFunc("/api/session/validate", h.HandleTokenValidation)
	mux.HandleFunc("/api/session/logout", h.HandleLogout)
}

func setCORSHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")
}

// HandleCreateSession checks the password (if one is configured), creates a
// session and returns its token.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		logger.AuthWarn("Invalid method for session creation: %s", r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.AuthWarn("Invalid JSON in session request: %v", err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	clientIP := h.clientIP(r)
	switch {
	case h.PasswordHash != "":
		if err := CheckPassword(h.PasswordHash, req.Password); err != nil {
			logger.SecurityWarn("Rejected session request from %s: %v", clientIP, err)
			respondWithError(w, "Invalid password", http.StatusUnauthorized)
			return
		}
	case !h.GuestAccess:
		logger.AuthWarn("Guest session refused for %s: guest access disabled", clientIP)
		respondWithError(w, "Guest access disabled", http.StatusForbidden)
		return
	}

	sess, err := h.Sessions.Create(r.Context(), clientIP)
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			respondWithError(w, "Too many sessions", http.StatusServiceUnavailable)
			return
		}
		logger.AuthError("Failed to create session for %s: %v", clientIP, err)
		respondWithError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	token, err := GenerateSessionToken(sess.ID)
	if err != nil {
		h.Sessions.Remove(sess.ID)
		logger.AuthError("Failed to generate JWT token for session %s: %v", sess.ID, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(getTokenExpiration().Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	respond(w, http.StatusOK, SessionResponse{
		Success:   true,
		Token:     token,
		SessionID: sess.ID,
		Base:      sess.Base().String(),
		Message:   "Session created successfully",
	})
}

// HandleTokenValidation reports whether the caller's token is valid and its
// session is still alive.
func (h *Handlers) HandleTokenValidation(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "GET, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	sess, err := h.Sessions.Get(claims.SessionID)
	if err != nil {
		respondWithError(w, "Session expired", http.StatusUnauthorized)
		return
	}

	respond(w, http.StatusOK, SessionResponse{
		Success:   true,
		SessionID: sess.ID,
		Base:      sess.Base().String(),
		Message:   "Token valid",
	})
}

// HandleLogout ends the caller's session and clears the cookie. With
// {"forget": true} the transcript is deleted too.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if req.Forget {
		if err := h.Sessions.Forget(r.Context(), claims.SessionID); err != nil {
			logger.AuthError("Failed to delete transcript for %s: %v", claims.SessionID, err)
			respondWithError(w, "Failed to delete transcript", http.StatusInternalServerError)
			return
		}
	} else {
		h.Sessions.Remove(claims.SessionID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	logger.AuthInfo("Session %s logged out", claims.SessionID)
	respond(w, http.StatusOK, SessionResponse{
		Success:   true,
		SessionID: claims.SessionID,
		Message:   "Logout successful",
	})
}

func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request) (*SessionClaims, bool) {
	tokenString, err := ExtractTokenFromRequest(r)
	if err != nil {
		logger.AuthWarn("No token found in request: %v", err)
		respondWithError(w, "Token not found", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := ValidateSessionToken(tokenString)
	if err != nil {
		logger.AuthWarn("Token validation failed: %v", err)
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

// clientIP returns r.RemoteAddr unless the request comes from a trusted
// proxy, in which case the first X-Forwarded-For entry (or X-Real-IP) wins.
func (h *Handlers) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !slices.Contains(h.TrustedProxies, host) {
		return r.RemoteAddr
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

func respond(w http.ResponseWriter, status int, body SessionResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	respond(w, statusCode, SessionResponse{Success: false, Message: message})
}
