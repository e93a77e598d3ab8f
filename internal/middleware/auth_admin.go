package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/common/helper"
	"github.com/rahul3988/cp-win5-sub001/internal/common/response"
	"github.com/rahul3988/cp-win5-sub001/internal/config"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// AdminAuthFilter 后台接口过滤器（静态 Bearer Token）
// 护住预设中奖值、强切阶段、紧急停止这类干预入口
func AdminAuthFilter(ctx *beegocontext.Context) {
	cfg := config.Get()
	traceID := helper.GetTraceID(ctx)

	if cfg == nil || !cfg.Auth.Admin.Enabled {
		return
	}

	authHeader := strings.TrimSpace(ctx.Input.Header("Authorization"))
	if authHeader == "" {
		logger.Warn("admin request without token", zap.String("trace_id", traceID))
		writeAuthError(ctx, 401, response.CodeUnauthorized, "缺少管理员认证信息")
		return
	}
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || scheme != "Bearer" || token == "" {
		logger.Warn("admin token malformed", zap.String("trace_id", traceID))
		writeAuthError(ctx, 401, response.CodeUnauthorized, "无效的认证格式")
		return
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Auth.Admin.Token)) != 1 {
		logger.Warn("admin token rejected", zap.String("trace_id", traceID))
		writeAuthError(ctx, 401, response.CodeUnauthorized, "无效的管理员Token")
		return
	}

	ctx.Input.SetData("is_admin", true)
}
