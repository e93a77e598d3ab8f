package middleware

import (
	"strconv"
	"strings"

	"github.com/rahul3988/cp-win5-sub001/internal/config"

	beegocontext "github.com/beego/beego/v2/server/web/context"
)

func originAllowed(origin string, allowlist []string) bool {
	for _, o := range allowlist {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// CORSFilter 跨域响应头
// 前端倒计时页面从平台域名直接拉取 /api/round/current，需要放行其 Origin
func CORSFilter(ctx *beegocontext.Context) {
	cfg := config.Get()
	if cfg == nil || !cfg.CORS.Enabled {
		return
	}

	origin := ctx.Request.Header.Get("Origin")
	if origin == "" || !originAllowed(origin, cfg.CORS.AllowedOrigins) {
		return
	}

	ctx.Output.Header("Access-Control-Allow-Origin", origin)
	ctx.Output.Header("Access-Control-Allow-Methods", strings.Join(cfg.CORS.AllowedMethods, ", "))
	ctx.Output.Header("Access-Control-Allow-Headers", strings.Join(cfg.CORS.AllowedHeaders, ", "))
	ctx.Output.Header("Access-Control-Expose-Headers", strings.Join(cfg.CORS.ExposedHeaders, ", "))
	ctx.Output.Header("Access-Control-Max-Age", strconv.Itoa(cfg.CORS.MaxAge))
	if cfg.CORS.AllowCredentials {
		ctx.Output.Header("Access-Control-Allow-Credentials", "true")
	}

	// 预检请求直接短路
	if ctx.Request.Method == "OPTIONS" {
		ctx.Output.SetStatus(204)
		ctx.ResponseWriter.WriteHeader(204)
	}
}
