package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every worker endpoint answers with
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// CodedError carries a stable machine-readable code next to the message
type CodedError interface {
	error
	ErrorCode() string
}

func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: msg, Data: data})
}

func Result(c *gin.Context, httpStatus int, code int, msg string, data interface{}) {
	c.JSON(httpStatus, Response{Code: code, Message: msg, Data: data})
}

// AbortWithStatusJSON stops the chain and writes err in the envelope. The
// "error" field is the error's code when it has one.
func AbortWithStatusJSON(c *gin.Context, httpStatus int, err error) {
	code := "UNKNOWN_ERROR"
	var coded CodedError
	if errors.As(err, &coded) {
		code = coded.ErrorCode()
	}
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"code":  httpStatus,
		"msg":   err.Error(),
		"error": code,
		"data":  nil,
	})
}
