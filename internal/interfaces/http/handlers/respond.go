package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/botforge/botforge/pkg/errors"
)

// respondError maps an application error onto a status code and the
// panel's {success, message} envelope. Unknown errors become a generic
// 500 so internals never leak to the browser.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case domainErrors.IsInvalidInput(err), domainErrors.IsAlreadyExists(err):
		status = http.StatusBadRequest
	case domainErrors.IsNotFound(err):
		status = http.StatusNotFound
	case domainErrors.IsUnauthorized(err):
		status = http.StatusUnauthorized
	case domainErrors.IsConflict(err):
		status = http.StatusConflict
	}

	message := "Внутренняя ошибка сервера"
	var appErr *domainErrors.AppError
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		message = appErr.Message
	}

	c.JSON(status, gin.H{"success": false, "message": message})
}

// badRequest reports a handler-level validation failure.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

// notFound reports a missing resource with a specific message.
func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "message": message})
}
