// Package response 提供统一的 HTTP 响应格式
// 所有 API 都使用相同的响应结构，便于前端处理
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
// code: 业务状态码（0 表示成功）
// message: 提示信息
// data: 响应数据
type Response struct {
	Code    int         `json:"code"`           // 业务状态码
	Message string      `json:"message"`        // 提示信息
	Data    interface{} `json:"data,omitempty"` // 响应数据，可选
}

// 业务状态码定义
const (
	CodeSuccess         = 0    // 成功
	CodeBadRequest      = 1000 // 请求参数错误
	CodeUnauthorized    = 1001 // 未授权
	CodeForbidden       = 1002 // 禁止访问
	CodeNotFound        = 1003 // 资源不存在
	CodeInternalError   = 1004 // 服务器内部错误
	CodeTooManyRequests = 1005 // 请求过于频繁

	CodeUserExists    = 1101 // 用户已存在
	CodeUserNotFound  = 1102 // 用户不存在
	CodePasswordWrong = 1103 // 密码错误
	CodeUserDisabled  = 1104 // 用户已禁用

	CodePersonaNotFound = 1201 // 角色不存在
	CodeMessageNotFound = 1202 // 消息不存在

	CodeConversationNotFound  = 1301 // 对话不存在
	CodeConversationForbidden = 1302 // 无权访问对话
	CodeConversationBusy      = 1303 // 对话正在生成回复

	CodeModelUnavailable         = 1401 // 模型不存在或已禁用
	CodeCredentialUnavailable    = 1402 // API 密钥不存在或已禁用
	CodePlatformConfigIncomplete = 1403 // 平台配置不完整
	CodeInferenceFailed          = 1404 // 模型调用失败
	CodeStreamInterrupted        = 1405 // 流式回复中断
)

// Success 返回成功响应
// 参数:
//   - c: Gin 上下文
//   - data: 响应数据，可以是任意类型
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 返回成功响应（带自定义消息）
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// ErrorWithCode 返回错误响应（带业务状态码）
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - bizCode: 业务状态码
//   - message: 错误信息
func ErrorWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// AbortWithCode 返回错误响应并中止后续中间件
func AbortWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.AbortWithStatusJSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// BadRequest 返回 400 错误（请求参数错误）
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized 返回 401 错误（未授权）
func Unauthorized(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden 返回 403 错误（禁止访问）
func Forbidden(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusForbidden, CodeForbidden, message)
}

// NotFound 返回 404 错误（资源不存在）
func NotFound(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusNotFound, CodeNotFound, message)
}

// InternalError 返回 500 错误（服务器内部错误）
func InternalError(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusInternalServerError, CodeInternalError, message)
}

// TooManyRequests 返回 429 错误
func TooManyRequests(c *gin.Context) {
	AbortWithCode(c, http.StatusTooManyRequests, CodeTooManyRequests, "请求过于频繁，请稍后再试")
}

// UserExists 返回用户已存在错误
func UserExists(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusBadRequest, CodeUserExists, message)
}

// UserNotFound 返回用户不存在错误
func UserNotFound(c *gin.Context) {
	ErrorWithCode(c, http.StatusNotFound, CodeUserNotFound, "用户不存在")
}

// PasswordWrong 返回密码错误
func PasswordWrong(c *gin.Context) {
	ErrorWithCode(c, http.StatusUnauthorized, CodePasswordWrong, "密码错误")
}

// Created 返回 201 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "创建成功",
		Data:    data,
	})
}
