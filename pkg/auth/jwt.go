package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antibyte/catterm/pkg/configuration"
	"github.com/antibyte/catterm/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer       = "catterm"
	defaultJWTSecret  = "fallback_secret_change_in_production"
	sessionCookieName = "session_token"
)

var ErrNoToken = errors.New("no token found in request")

// getJWTSecret prefers JWT_SECRET_KEY over the [JWT] secret_key setting.
func getJWTSecret() string {
	if envSecret := os.Getenv("JWT_SECRET_KEY"); envSecret != "" {
		return envSecret
	}

	secret := configuration.GetString("JWT", "secret_key", "")
	if secret == "" || secret == defaultJWTSecret {
		logger.SecurityWarn("Using fallback JWT secret - set JWT_SECRET_KEY environment variable for production!")
		return defaultJWTSecret
	}
	return secret
}

func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("JWT", "token_expiration_hours", 24)
	return time.Duration(hours) * time.Hour
}

// SessionClaims binds a token to one terminal session.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// GenerateSessionToken issues an HS256 token for sessionID.
func GenerateSessionToken(sessionID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   "session",
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("token could not be signed: %w", err)
	}
	logger.AuthInfo("Session token generated for session ID: %s", sessionID)
	return signedToken, nil
}

// ValidateSessionToken checks signature, algorithm, issuer and expiry.
func ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	secretKey := getJWTSecret()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&SessionClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return []byte(secretKey), nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("could not extract token claims")
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("token carries no session id")
	}
	return claims, nil
}

// ExtractTokenFromRequest looks in the Authorization header (Bearer), then
// the session_token cookie, then the token query parameter.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
			return parts[1], nil
		}
		return "", fmt.Errorf("invalid authorization header format")
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrNoToken
}

// RequireSessionToken rejects requests without a valid token and stores the
// claims in the request context.
func RequireSessionToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}

		tokenString, err := ExtractTokenFromRequest(r)
		if err != nil {
			logger.AuthWarn("No token in request: %v", err)
			respondWithError(w, "Unauthorized: token missing", http.StatusUnauthorized)
			return
		}

		claims, err := ValidateSessionToken(tokenString)
		if err != nil {
			logger.AuthWarn("Invalid token: %v", err)
			respondWithError(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(AddClaimsToContext(r.Context(), claims)))
	}
}
