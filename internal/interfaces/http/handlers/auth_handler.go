package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/logger"
)

// AuthHandler serves the login/logout/check endpoints.
type AuthHandler struct {
	users   repository.UserRepository
	session *SessionAuth
	rec     *logger.Recorder
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(users repository.UserRepository, session *SessionAuth, rec *logger.Recorder) *AuthHandler {
	return &AuthHandler{users: users, session: session, rec: rec}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and sets the session cookie.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Введите email и пароль")
		return
	}

	user, err := h.users.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.rejectLogin(c, req.Email)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.rejectLogin(c, req.Email)
		return
	}

	token, err := h.session.Issue(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.session.SetCookie(c, token)

	h.rec.Success(logger.CategoryAuth, "operator logged in", zap.String("email", user.Email))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Авторизация успешна"})
}

// rejectLogin answers the same way for a missing account and a wrong
// password.
func (h *AuthHandler) rejectLogin(c *gin.Context, email string) {
	h.rec.Warning(logger.CategoryAuth, "login rejected", zap.String("email", email))
	c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Неверный email или пароль"})
}

// Logout clears the session cookie.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	h.session.ClearCookie(c)
	h.rec.Info(logger.CategoryAuth, "operator logged out")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Check reports whether the request carries a valid session.
// GET /api/auth/check
func (h *AuthHandler) Check(c *gin.Context) {
	token, err := c.Cookie(SessionCookie)
	if err != nil || token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	if _, err := h.session.Verify(token); err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}
