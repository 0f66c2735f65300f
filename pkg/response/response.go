package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/DurmazDev/microblog/internal/errors"
)

// Message 成功响应 {"message": ...}
type Message struct {
	Message string `json:"message"`
}

// Error 错误响应 {"error": ...}
type Error struct {
	Error string `json:"error"`
}

// Accepted 202
func Accepted(c *gin.Context, message string) {
	c.JSON(http.StatusAccepted, Message{Message: message})
}

// Success 200，data 为 nil 时只返回 message
func Success(c *gin.Context, message string, data gin.H) {
	if data == nil {
		c.JSON(http.StatusOK, Message{Message: message})
		return
	}

	body := gin.H{"message": message}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Unauthorized 401，消息取自 AppError
func Unauthorized(c *gin.Context, err error) {
	c.JSON(http.StatusUnauthorized, Error{Error: appErrors.GetMessage(err)})
}

// ServerError 500
func ServerError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, Error{Error: appErrors.ErrServerError.Message})
}

// ErrorFromAppError 状态码由错误类别决定
func ErrorFromAppError(c *gin.Context, err error) {
	c.JSON(appErrors.HTTPStatus(err), Error{Error: appErrors.GetMessage(err)})
}
