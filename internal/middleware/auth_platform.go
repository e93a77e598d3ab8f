package middleware

import (
	"time"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/auth"
	"github.com/rahul3988/cp-win5-sub001/internal/common/helper"
	"github.com/rahul3988/cp-win5-sub001/internal/common/response"
	"github.com/rahul3988/cp-win5-sub001/internal/config"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

func writeAuthError(ctx *beegocontext.Context, httpCode, bizCode int, message string) {
	ctx.Output.SetStatus(httpCode)
	ctx.Output.JSON(response.APIResponse{
		Code:      bizCode,
		Message:   message,
		TraceID:   helper.GetTraceID(ctx),
		Timestamp: time.Now().UnixMilli(),
	}, false, false)
}

// injectDemoIdentity 以请求头/参数拼出演示身份并写入 context
// 未指定时落到固定演示账号，方便 curl 联调
func injectDemoIdentity(ctx *beegocontext.Context, platformID int8) {
	userID := ctx.Input.Header("X-Platform-User-Id")
	if userID == "" {
		userID = ctx.Input.Query("user_id")
	}
	if userID == "" {
		userID = "demo_user_001"
	}
	userName := ctx.Input.Header("X-Platform-User-Name")
	if userName == "" {
		userName = "Demo User"
	}

	ctx.Input.SetData("platform_id", platformID)
	ctx.Input.SetData("platform_user_id", userID)
	ctx.Input.SetData("platform_user_name", userName)
	ctx.Input.SetData("demo_mode", true)

	logger.Debug("demo identity injected",
		zap.String("trace_id", helper.GetTraceID(ctx)),
		zap.String("platform_user_id", userID))
}

// PlatformAuthFilter 平台接入过滤器
// 校验平台 HMAC 签名并把 (platform_id, platform_user_id) 写入 context；
// demo_mode 打开时退化为演示身份注入
func PlatformAuthFilter(ctx *beegocontext.Context) {
	cfg := config.Get()
	traceID := helper.GetTraceID(ctx)

	if cfg != nil && cfg.Auth.DemoMode {
		injectDemoIdentity(ctx, cfg.Auth.DemoPlatform.PlatformID)
		return
	}

	platform, err := auth.VerifyPlatformSignature(ctx)
	if err != nil {
		logger.Warn("platform auth failed",
			zap.String("trace_id", traceID), zap.Error(err))
		switch err {
		case auth.ErrMissingAuthHeaders:
			writeAuthError(ctx, 401, response.CodeUnauthorized, "缺少认证信息")
		case auth.ErrTimestampExpired:
			writeAuthError(ctx, 401, response.CodeTimestampExpired, "时间戳已过期")
		case auth.ErrNonceReused:
			writeAuthError(ctx, 401, response.CodeNonceReused, "Nonce已被使用")
		case auth.ErrInvalidSignature:
			writeAuthError(ctx, 401, response.CodeInvalidSignature, "签名验证失败")
		case auth.ErrInvalidPlatform:
			writeAuthError(ctx, 401, response.CodeInvalidPlatform, "无效的平台")
		case auth.ErrPlatformDisabled:
			writeAuthError(ctx, 403, response.CodePlatformDisabled, "平台已禁用")
		case auth.ErrIPNotAllowed:
			writeAuthError(ctx, 403, response.CodeIPNotAllowed, "IP不在白名单")
		default:
			writeAuthError(ctx, 401, response.CodeUnauthorized, "认证失败")
		}
		return
	}

	userID := ctx.Input.Header("X-Platform-User-Id")
	if userID == "" {
		logger.Warn("platform request without user id",
			zap.String("trace_id", traceID), zap.String("app_key", platform.AppKey))
		writeAuthError(ctx, 400, response.CodeBadRequest, "X-Platform-User-Id is required")
		return
	}
	if !auth.IsValidPlatformUserID(userID) {
		logger.Warn("bad platform user id",
			zap.String("trace_id", traceID), zap.String("platform_user_id", userID))
		writeAuthError(ctx, 400, response.CodeBadRequest, "invalid platform_user_id format")
		return
	}

	ctx.Input.SetData("platform", platform)
	ctx.Input.SetData("platform_id", platform.PlatformID)
	ctx.Input.SetData("platform_user_id", userID)
	ctx.Input.SetData("platform_user_name", ctx.Input.Header("X-Platform-User-Name"))
}

// DemoAuthFilter 演示模式过滤器
// 仅在 demo_mode 配置打开且请求尚未通过正式认证时生效
func DemoAuthFilter(ctx *beegocontext.Context) {
	cfg := config.Get()
	if cfg == nil || !cfg.Auth.DemoMode {
		return
	}
	if ctx.Input.GetData("platform_id") != nil {
		return
	}
	injectDemoIdentity(ctx, cfg.Auth.DemoPlatform.PlatformID)
}
