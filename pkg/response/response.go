package response

import (
	"errors"
	"net/http"
	"strings"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/gin-gonic/gin"
)

type Response struct {
	Code    int         `json:"code"`            // 状态码，200 表示成功，其余为 HTTP 错误码
	Message string      `json:"msg"`             // 响应的消息描述
	Data    interface{} `json:"data"`            // 返回的数据，可以是任意类型
	Error   string      `json:"error,omitempty"` // 机器可读的错误码，如 ALREADY_ACTIVE
}

func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: msg, Data: data})
}

// Fail writes an error body with the given HTTP status.
func Fail(c *gin.Context, httpStatus int, code, msg string) {
	c.JSON(httpStatus, Response{Code: httpStatus, Message: msg, Error: code})
}

func Result(c *gin.Context, httpStatus int, code int, msg string, data gin.H) {
	c.JSON(httpStatus, gin.H{
		"code": code,
		"msg":  msg,
		"data": data,
	})
}

func AbortWithStatus(c *gin.Context, httpStatus int) {
	c.AbortWithStatus(httpStatus)
}

func AbortWithStatusJSON(c *gin.Context, httpStatus int, err error) {
	c.AbortWithStatusJSON(httpStatus, Response{Code: httpStatus, Message: err.Error(), Error: codeOf(err)})
}

// Error maps err to an HTTP status by its kind and writes it.
// Session state misuse is 409, a missing active session 404, collaborator
// failures 502 and everything else 500.
func Error(c *gin.Context, err error) {
	status := StatusOf(err)
	c.JSON(status, Response{Code: status, Message: err.Error(), Error: codeOf(err)})
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindAlreadyActive, errs.KindNotActive:
		return http.StatusConflict
	case errs.KindNoActiveSession:
		return http.StatusNotFound
	case errs.KindCaptureFailure, errs.KindAnalysisFailure, errs.KindStreamFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func codeOf(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return strings.ToUpper(e.Kind.String())
	}
	return "UNKNOWN_ERROR"
}
