package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie carries the signed operator session.
const SessionCookie = "botforge_session"

// ContextUserID is the gin context key the middleware stores the
// authenticated user id under.
const ContextUserID = "user_id"

// SessionAuth issues and verifies the HS256 session tokens kept in the
// HttpOnly panel cookie.
type SessionAuth struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionAuth creates the session signer.
func NewSessionAuth(secret string, ttl time.Duration) *SessionAuth {
	return &SessionAuth{secret: []byte(secret), ttl: ttl}
}

// Issue signs a session token for the user.
func (a *SessionAuth) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses the token and returns the user id it was issued for.
func (a *SessionAuth) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("session token carries no subject")
	}
	return claims.Subject, nil
}

// SetCookie attaches a fresh session cookie to the response.
func (a *SessionAuth) SetCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(a.ttl.Seconds()), "/", "", false, true)
}

// ClearCookie expires the session cookie.
func (a *SessionAuth) ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
}

// Middleware rejects requests without a valid session cookie.
func (a *SessionAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookie)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Требуется авторизация",
			})
			return
		}
		userID, err := a.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Сессия истекла, войдите снова",
			})
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}
