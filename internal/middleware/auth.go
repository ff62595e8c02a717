package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hanmadi-backend/internal/models"
)

type contextKey string

const SubjectKey contextKey = "subject"

type JWTAuth struct {
	Secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret)}
}

// GenerateAccessToken creates a JWT with 15 minute expiry
func (j *JWTAuth) GenerateAccessToken(userID uuid.UUID, email string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"email":   email,
		"exp":     time.Now().Add(15 * time.Minute).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// GenerateGuestToken creates a long-lived token for an anonymous learner.
// The guest_id is the key their device-local progress is stored under.
func (j *JWTAuth) GenerateGuestToken(guestID string) (string, error) {
	claims := jwt.MapClaims{
		"guest_id": guestID,
		"exp":      time.Now().Add(30 * 24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// RequireUser validates a user JWT and attaches the subject to the context.
// Guest tokens are rejected.
func (j *JWTAuth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := j.subjectFromRequest(w, r)
		if !ok {
			return
		}
		if !subject.Authenticated() {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "This endpoint requires a signed-in account", r)
			return
		}

		ctx := context.WithValue(r.Context(), SubjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity accepts either a user or a guest token, so anonymous
// learners can study with device-local progress.
func (j *JWTAuth) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := j.subjectFromRequest(w, r)
		if !ok {
			return
		}

		ctx := context.WithValue(r.Context(), SubjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (j *JWTAuth) subjectFromRequest(w http.ResponseWriter, r *http.Request) (models.Subject, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
		return models.Subject{}, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
		return models.Subject{}, false
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
		} else {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
		}
		return models.Subject{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token claims", r)
		return models.Subject{}, false
	}

	if userIDStr, ok := claims["user_id"].(string); ok {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid user ID format", r)
			return models.Subject{}, false
		}
		return models.Subject{UserID: userID}, true
	}

	if guestID, ok := claims["guest_id"].(string); ok && guestID != "" {
		return models.Subject{GuestID: guestID}, true
	}

	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Token carries no identity", r)
	return models.Subject{}, false
}

// GetSubject extracts the authenticated or guest identity from the context.
func GetSubject(ctx context.Context) models.Subject {
	subject, _ := ctx.Value(SubjectKey).(models.Subject)
	return subject
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
