package response

import (
	"time"

	beego "github.com/beego/beego/v2/server/web"
)

// APIResponse 统一响应信封
// 所有接口成功失败都走这个结构；HTTP 状态码表传输结果，code 表业务结果
type APIResponse struct {
	Code      int         `json:"code"`                // 业务码：0=成功
	Message   string      `json:"message"`             // 提示消息
	Data      interface{} `json:"data,omitempty"`      // 业务数据，失败时为空
	TraceID   string      `json:"trace_id,omitempty"`  // 请求追踪ID
	Timestamp int64       `json:"timestamp,omitempty"` // Unix 毫秒
}

// 业务码分段：1xxx 参数、2xxx 投注业务、3xxx 认证、4xxx 资源/限流、5xxx 系统
const (
	CodeSuccess             = 0
	CodeBadRequest          = 1000 // 参数错误
	CodeBusinessError       = 2000 // 业务错误（通用）
	CodeDuplicateInFlight   = 2001 // 重复请求进行中
	CodeDuplicateKey        = 2002 // 幂等键冲突
	CodeInvalidState        = 2003 // 状态不允许
	CodeBetWindowNotStart   = 2004 // 投注窗口未开始
	CodeBetWindowClosed     = 2005 // 投注窗口已关闭
	CodeTooManyCategories   = 2006 // 同局玩法数量超限
	CodeInsufficientBalance = 2007 // 余额不足
	CodeBelowBalanceFloor   = 2008 // 投注钱包低于门槛
	CodeStakeNotInteger     = 2009 // 下注额非整数
	CodeUnauthorized        = 3000 // 未授权
	CodeInvalidToken        = 3001 // Token 无效
	CodeTokenExpired        = 3002 // Token 过期
	CodeTokenRevoked        = 3003 // Token 已撤销
	CodeInvalidSignature    = 3004 // 签名无效
	CodeTimestampExpired    = 3005 // 时间戳过期
	CodeNonceReused         = 3006 // Nonce 重复使用
	CodeInvalidPlatform     = 3007 // 平台无效
	CodePlatformDisabled    = 3008 // 平台已禁用
	CodeForbidden           = 3009 // 禁止访问
	CodeIPNotAllowed        = 3010 // IP 不在白名单
	CodeRateLimitExceeded   = 4000 // 请求频率超限
	CodeNotFound            = 4004 // 资源不存在
	CodeSystemError         = 5000 // 系统错误
)

// ErrorMessages 业务码默认文案
var ErrorMessages = map[int]string{
	CodeSuccess:             "success",
	CodeBadRequest:          "参数错误",
	CodeBusinessError:       "业务处理失败",
	CodeDuplicateInFlight:   "重复请求进行中，请稍后重试",
	CodeDuplicateKey:        "重复的请求",
	CodeInvalidState:        "当前状态不允许此操作",
	CodeBetWindowNotStart:   "投注窗口未开始",
	CodeBetWindowClosed:     "投注窗口已关闭",
	CodeTooManyCategories:   "同一局最多投注两种玩法",
	CodeInsufficientBalance: "余额不足",
	CodeBelowBalanceFloor:   "投注钱包余额低于最低门槛",
	CodeStakeNotInteger:     "下注额必须为整数",
	CodeNotFound:            "资源不存在",
	CodeSystemError:         "系统繁忙，请稍后重试",
}

func serve(c *beego.Controller, httpStatus, code int, message string, data interface{}, traceID string) {
	if httpStatus != 200 {
		c.Ctx.Output.SetStatus(httpStatus)
	}
	c.Data["json"] = APIResponse{
		Code:      code,
		Message:   message,
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().UnixMilli(),
	}
	c.ServeJSON()
}

// Success 成功响应，data 为业务载荷
func Success(c *beego.Controller, data interface{}, traceID string) {
	serve(c, 200, CodeSuccess, ErrorMessages[CodeSuccess], data, traceID)
}

// Error 按业务码取默认文案的错误响应
func Error(c *beego.Controller, httpStatus int, code int, traceID string) {
	serve(c, httpStatus, code, getErrorMessage(code), nil, traceID)
}

// ErrorWithMessage 自定义文案的错误响应
func ErrorWithMessage(c *beego.Controller, httpStatus int, code int, message string, traceID string) {
	serve(c, httpStatus, code, message, nil, traceID)
}

// BadRequest 参数错误（HTTP 400）
func BadRequest(c *beego.Controller, message string, traceID string) {
	ErrorWithMessage(c, 400, CodeBadRequest, message, traceID)
}

// Conflict 状态/幂等冲突（HTTP 409），如投注窗口外下注、重复幂等键
func Conflict(c *beego.Controller, code int, traceID string) {
	Error(c, 409, code, traceID)
}

// NotFound 资源不存在（HTTP 404）
func NotFound(c *beego.Controller, message string, traceID string) {
	ErrorWithMessage(c, 404, CodeNotFound, message, traceID)
}

// InternalError 系统错误（HTTP 500），细节只进日志不出接口
func InternalError(c *beego.Controller, traceID string) {
	Error(c, 500, CodeSystemError, traceID)
}

func InternalErrorWithMessage(c *beego.Controller, message string, traceID string) {
	ErrorWithMessage(c, 500, CodeSystemError, message, traceID)
}

// Accepted 已受理未完成（HTTP 202）：同一幂等键的首个请求还在处理中
func Accepted(c *beego.Controller, message string, traceID string) {
	c.Ctx.Output.Header("Retry-After", "1")
	serve(c, 202, CodeDuplicateInFlight, message, nil, traceID)
}

func getErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "未知错误"
}
