package middleware

import (
	"strings"

	"github.com/beego/beego/v2/server/web/context"
	"github.com/google/uuid"
)

// RequestIDFilter 请求级 trace id
// 沿用调用方带来的 X-Request-Id / X-Trace-ID，都没有则生成新的；
// 写回响应头，平台侧据此对账排障
func RequestIDFilter(ctx *context.Context) {
	id := strings.TrimSpace(ctx.Input.Header("X-Request-Id"))
	if id == "" {
		id = strings.TrimSpace(ctx.Input.Header("X-Trace-ID"))
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx.Input.SetData("trace_id", id)
	ctx.Output.Header("X-Request-Id", id)
}
