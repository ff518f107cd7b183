package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
)

// ResponseError is the error shape of every API response.
type ResponseError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ResponseSuccess is the success envelope for message-plus-data responses.
type ResponseSuccess struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// RespondWithError sends an error response.
func RespondWithError(c *gin.Context, statusCode int, message string, errorCode string, logger *zap.Logger) {
	logger.Error("API error response",
		zap.Int("status_code", statusCode),
		zap.String("error_message", message),
		zap.String("error_code", errorCode),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)

	c.JSON(statusCode, ResponseError{
		Error: message,
		Code:  errorCode,
	})
}

// RespondWithDomainError maps a domain error to its HTTP status and code.
// Internal errors are masked; everything else surfaces its own message.
func RespondWithDomainError(c *gin.Context, err error, logger *zap.Logger) {
	status := domainErrors.StatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}

	var appErr *domainErrors.AppError
	code := errorCode(err, status)
	if errors.As(err, &appErr) && appErr.Code != "" {
		code = appErr.Code
	}
	RespondWithError(c, status, message, code, logger)
}

func errorCode(err error, status int) string {
	switch {
	case errors.Is(err, domainErrors.ErrUserLockedOut):
		return "account_locked"
	case errors.Is(err, domainErrors.ErrExpiredToken):
		return "token_expired"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status == http.StatusForbidden:
		return "forbidden"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusUnprocessableEntity:
		return "unprocessable"
	case status == http.StatusBadRequest:
		return "bad_request"
	default:
		return "internal_error"
	}
}

// RespondWithSuccess sends a success response with message and data.
func RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, ResponseSuccess{
		Message: message,
		Data:    data,
	})
}

// RespondWithData sends a success response carrying only data.
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// RespondWithMessage sends a success response carrying only a message.
func RespondWithMessage(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"message": message,
	})
}

// RespondWithCreated sends a 201 with the created resource.
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// RespondWithNoContent sends a 204.
func RespondWithNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
