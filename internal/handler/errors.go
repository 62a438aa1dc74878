// Package handler 提供 HTTP 请求处理器
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/middleware"
	"github.com/chongxue30/stu-agent/internal/service"
	"github.com/chongxue30/stu-agent/pkg/response"
)

// ErrorStatus 业务错误对应的 HTTP 状态码和业务码
type ErrorStatus struct {
	HTTP int
	Code int
}

// 按顺序匹配，推理错误同时包装了底层原因，放在最前面
var errorTable = []struct {
	err    error
	status ErrorStatus
}{
	{service.ErrModelUnavailable, ErrorStatus{http.StatusBadRequest, response.CodeModelUnavailable}},
	{service.ErrCredentialUnavailable, ErrorStatus{http.StatusBadRequest, response.CodeCredentialUnavailable}},
	{service.ErrPlatformConfigIncomplete, ErrorStatus{http.StatusBadRequest, response.CodePlatformConfigIncomplete}},
	{service.ErrStreamInterrupted, ErrorStatus{http.StatusBadGateway, response.CodeStreamInterrupted}},
	{service.ErrInferenceFailed, ErrorStatus{http.StatusBadGateway, response.CodeInferenceFailed}},
	{service.ErrConversationNotFound, ErrorStatus{http.StatusNotFound, response.CodeConversationNotFound}},
	{service.ErrConversationForbidden, ErrorStatus{http.StatusForbidden, response.CodeConversationForbidden}},
	{service.ErrConversationBusy, ErrorStatus{http.StatusConflict, response.CodeConversationBusy}},
	{service.ErrPersonaNotFound, ErrorStatus{http.StatusNotFound, response.CodePersonaNotFound}},
	{service.ErrPersonaForbidden, ErrorStatus{http.StatusForbidden, response.CodeForbidden}},
	{service.ErrMessageNotFound, ErrorStatus{http.StatusNotFound, response.CodeMessageNotFound}},
	{service.ErrMessageForbidden, ErrorStatus{http.StatusForbidden, response.CodeForbidden}},
	{service.ErrUnknownPlatform, ErrorStatus{http.StatusBadRequest, response.CodeBadRequest}},
	{service.ErrUserExists, ErrorStatus{http.StatusBadRequest, response.CodeUserExists}},
	{service.ErrEmailExists, ErrorStatus{http.StatusBadRequest, response.CodeBadRequest}},
	{service.ErrUserNotFound, ErrorStatus{http.StatusNotFound, response.CodeUserNotFound}},
	{service.ErrPasswordWrong, ErrorStatus{http.StatusUnauthorized, response.CodePasswordWrong}},
	{service.ErrPasswordUnchanged, ErrorStatus{http.StatusBadRequest, response.CodeBadRequest}},
	{service.ErrUserDisabled, ErrorStatus{http.StatusForbidden, response.CodeUserDisabled}},
}

// StatusOf 查找错误对应的状态码，未知错误按 500 处理
func StatusOf(err error) (ErrorStatus, bool) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, true
		}
	}
	return ErrorStatus{http.StatusInternalServerError, response.CodeInternalError}, false
}

// MessageOf 返回可以展示给用户的错误信息
// 推理错误只展示类型，不暴露底层原因
func MessageOf(err error) string {
	if kind := service.KindOf(err); kind != nil {
		return kind.Error()
	}
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.err.Error()
		}
	}
	return "服务器内部错误"
}

// renderError 将业务错误写成统一响应
func renderError(c *gin.Context, err error) {
	status, known := StatusOf(err)
	if !known {
		slog.Error("unhandled error",
			"request_id", c.GetString("request_id"),
			"path", c.Request.URL.Path,
			"error", err,
		)
	}
	_ = c.Error(err)
	response.ErrorWithCode(c, status.HTTP, status.Code, MessageOf(err))
}

// bindJSON 解析请求体，失败时直接返回 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return false
	}
	return true
}

// pathID 解析路径中的编号参数
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "无效的编号")
		return 0, false
	}
	return id, true
}

// currentUser 获取当前登录用户，未登录时返回 401
func currentUser(c *gin.Context) (int64, bool) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "请先登录")
		return 0, false
	}
	return userID, true
}
