package middleware

import (
	"time"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/auth"
	"github.com/rahul3988/cp-win5-sub001/internal/common/helper"
	"github.com/rahul3988/cp-win5-sub001/internal/common/response"

	beegocontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// UserAuthFilter 玩家会话过滤器（JWT access token）
// 叠加在平台签名之上使用：签名证明请求来自平台，Token 证明请求属于该玩家
func UserAuthFilter(ctx *beegocontext.Context) {
	traceID := helper.GetTraceID(ctx)

	reject := func(bizCode int, message string) {
		ctx.Output.SetStatus(401)
		ctx.Output.JSON(response.APIResponse{
			Code:      bizCode,
			Message:   message,
			TraceID:   traceID,
			Timestamp: time.Now().UnixMilli(),
		}, false, false)
	}

	claims, err := auth.VerifyPlayerToken(ctx)
	if err != nil {
		logger.Warn("player token rejected",
			zap.String("trace_id", traceID),
			zap.Error(err))
		switch err {
		case auth.ErrMissingToken:
			reject(response.CodeUnauthorized, "缺少认证Token")
		case auth.ErrInvalidTokenFormat:
			reject(response.CodeInvalidToken, "Token格式无效")
		case auth.ErrTokenExpired:
			reject(response.CodeTokenExpired, "Token已过期")
		case auth.ErrTokenRevoked:
			reject(response.CodeTokenRevoked, "Token已撤销")
		default:
			reject(response.CodeInvalidToken, "Token无效")
		}
		return
	}

	// Token 与平台签名必须指向同一玩家，防止平台 A 的签名携带平台 B 的 Token
	if pid := ctx.Input.GetData("platform_id"); pid != nil {
		if claims.PlatformID != pid.(int8) {
			logger.Warn("token platform mismatch",
				zap.String("trace_id", traceID),
				zap.Int8("token_platform_id", claims.PlatformID))
			ctx.Output.SetStatus(403)
			ctx.Output.JSON(response.APIResponse{
				Code:      response.CodeForbidden,
				Message:   "平台不匹配",
				TraceID:   traceID,
				Timestamp: time.Now().UnixMilli(),
			}, false, false)
			return
		}
		if uid := ctx.Input.GetData("platform_user_id"); uid != nil {
			if s, ok := uid.(string); ok && s != claims.PlatformUserID {
				logger.Warn("token user mismatch",
					zap.String("trace_id", traceID),
					zap.String("token_user", claims.PlatformUserID))
				reject(response.CodeInvalidToken, "Token与用户不匹配")
				return
			}
		}
	}

	// 平台过滤器缺席时（例如内网直连），以 Token 声明的身份为准
	if ctx.Input.GetData("platform_id") == nil {
		ctx.Input.SetData("platform_id", claims.PlatformID)
		ctx.Input.SetData("platform_user_id", claims.PlatformUserID)
		ctx.Input.SetData("platform_user_name", claims.PlatformUserName)
		ctx.Input.SetData("app_key", claims.AppKey)
	}
	ctx.Input.SetData("player_claims", claims)
}
