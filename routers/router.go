package routers

import (
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	"github.com/rahul3988/cp-win5-sub001/internal/controller/api"
	"github.com/rahul3988/cp-win5-sub001/internal/metrics"
	"github.com/rahul3988/cp-win5-sub001/internal/middleware"

	beego "github.com/beego/beego/v2/server/web"
)

// init 注册HTTP路由与全局过滤器
func init() {
	cfg := config.Get()

	// 全局过滤器（按执行顺序）
	// 1. Panic Recovery（最先执行，捕获所有 panic）
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RecoveryFilter)

	// 2. 请求ID注入
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RequestIDFilter)

	// 3. CORS 处理（如果启用）
	if cfg != nil && cfg.CORS.Enabled {
		beego.InsertFilter("/*", beego.BeforeExec, middleware.CORSFilter)
	}

	// 4. HTTP 指标收集
	beego.InsertFilter("/*", beego.BeforeExec, metrics.HTTPMetricsFilter)
	beego.InsertFilter("/*", beego.FinishRouter, metrics.HTTPMetricsAfter)

	// 健康检查（无需认证）
	beego.Router("/healthz", &api.HealthController{}, "get:Healthz")
	beego.Router("/readyz", &api.HealthController{}, "get:Readyz")

	// ========== 业务 API（需要认证） ==========

	// 下注接口：平台认证 + 限流
	if cfg != nil && cfg.Auth.DemoMode {
		// 演示模式：简化认证
		beego.InsertFilter("/api/wager", beego.BeforeExec, middleware.DemoAuthFilter)
	} else {
		// 生产模式：平台签名认证
		beego.InsertFilter("/api/wager", beego.BeforeExec, middleware.PlatformAuthFilter)
	}
	if cfg != nil && cfg.RateLimit.Enabled {
		beego.InsertFilter("/api/wager", beego.BeforeExec, middleware.RateLimitFilter)
	}
	beego.Router("/api/wager", &api.WagerController{}, "post:Place")

	// 用户查询接口：平台认证（用户只能查询自己的数据）
	if cfg != nil && cfg.Auth.DemoMode {
		beego.InsertFilter("/api/user/*", beego.BeforeExec, middleware.DemoAuthFilter)
	} else {
		beego.InsertFilter("/api/user/*", beego.BeforeExec, middleware.PlatformAuthFilter)
		// JWT 用户令牌校验（签发后校验平台一致性）
		if cfg != nil && cfg.Auth.JWT.Secret != "" {
			beego.InsertFilter("/api/user/*", beego.BeforeExec, middleware.UserAuthFilter)
		}
	}
	beego.Router("/api/user/balance", &api.UserController{}, "get:Balance")
	beego.Router("/api/user/bets", &api.UserController{}, "get:Bets")

	// 局查询接口：读缓存为主，无需认证
	beego.Router("/api/round/current", &api.RoundController{}, "get:GetCurrent")
	beego.Router("/api/round/:round_no", &api.RoundController{}, "get:GetRound")

	// ========== 管理 API（需要管理员认证） ==========

	if cfg != nil && cfg.Auth.Admin.Enabled {
		beego.InsertFilter("/api/admin/*", beego.BeforeExec, middleware.AdminAuthFilter)
	}
	beego.Router("/api/admin/force_value", &api.AdminController{}, "post:ForceValue")
	beego.Router("/api/admin/clear_force", &api.AdminController{}, "post:ClearForce")
	beego.Router("/api/admin/force_phase", &api.AdminController{}, "post:ForcePhase")
	beego.Router("/api/admin/emergency_stop", &api.AdminController{}, "post:EmergencyStop")
	beego.Router("/api/admin/resume", &api.AdminController{}, "post:Resume")
}
