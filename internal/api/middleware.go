package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Maphikza/commit-rewards/internal/logger"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Claims identify the session and the wallet that receives minted tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// LoggingMiddleware logs information about each request
func LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	}
}

// ErrorMiddleware wraps the handler and catches any panics, returning them as 500 errors
func ErrorMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic occurred", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// ApplyMiddleware applies a list of middleware to a handler
func ApplyMiddleware(h http.HandlerFunc, middleware ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

func (a *API) CORSMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// JWTMiddleware validates the bearer token and stores its claims in the request context.
// Browsers cannot set headers on websocket upgrades, so a token query parameter is
// accepted as well.
func (a *API) JWTMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Println("Authorization header missing.")
				http.Error(w, "Unauthorized: Authorization header missing", http.StatusUnauthorized)
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Println("Invalid Authorization header format.")
				http.Error(w, "Unauthorized: Invalid token format", http.StatusUnauthorized)
				return
			}
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return a.jwtKey, nil
		})

		if err != nil {
			var validationErr *jwt.ValidationError
			if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
				log.Println("Token expired.")
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}
			log.Println("Invalid token:", err)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		if !token.Valid || claims.UserID == "" {
			log.Println("Token is not valid.")
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

func claimsFrom(r *http.Request) *Claims {
	claims, _ := r.Context().Value(claimsKey).(*Claims)
	return claims
}

func GenerateJWTKey() ([]byte, error) {
	key := make([]byte, 32) // 256 bits
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT key: %w", err)
	}
	return key, nil
}

func jwtKeyPath(dir string) string {
	return filepath.Join(dir, "claimd", "jwt_key")
}

func SaveJWTKey(key []byte, dir string) error {
	keyPath := jwtKeyPath(dir)
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory for JWT key: %w", err)
	}

	encodedKey := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyPath, []byte(encodedKey), 0600); err != nil {
		return fmt.Errorf("failed to save JWT key: %w", err)
	}

	log.Printf("JWT key saved successfully at %s", keyPath)
	return nil
}

func LoadJWTKey(dir string) ([]byte, error) {
	encodedKey, err := os.ReadFile(jwtKeyPath(dir))
	if err != nil {
		return nil, err
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encodedKey)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT key: %w", err)
	}
	return key, nil
}

// EnsureJWTKey loads the signing key from dir, generating and saving one if missing.
func EnsureJWTKey(dir string) ([]byte, error) {
	key, err := LoadJWTKey(dir)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	log.Printf("JWT key not found in %s, generating a new one", dir)
	key, err = GenerateJWTKey()
	if err != nil {
		return nil, err
	}
	if err := SaveJWTKey(key, dir); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateJWT issues a token for a session bound to a wallet address.
func GenerateJWT(key []byte, userID, wallet string, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("JWT signing key not available")
	}
	claims := &Claims{
		UserID: userID,
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}
