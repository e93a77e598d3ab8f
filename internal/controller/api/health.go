package api

import (
	"context"
	"time"

	infmysql "github.com/rahul3988/cp-win5-sub001/internal/infra/mysql"
	infrds "github.com/rahul3988/cp-win5-sub001/internal/infra/redis"
	"github.com/rahul3988/cp-win5-sub001/internal/service"

	beego "github.com/beego/beego/v2/server/web"
)

// HealthController 健康探针：/healthz 存活、/readyz 就绪
type HealthController struct{ beego.Controller }

// Healthz 仅证明进程存活
func (c *HealthController) Healthz() {
	c.Ctx.Output.SetStatus(200)
	_ = c.Ctx.Output.Body([]byte("ok"))
}

// Readyz 就绪判定：MySQL 可达、Redis 可达（若已配置）、回合引擎在跑
// 任一依赖不就绪返回 503，让负载均衡摘除实例而不是把下注请求打进来
func (c *HealthController) Readyz() {
	type item struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
	}
	checks := make([]item, 0, 3)
	ready := true

	dbOK := false
	if db := infmysql.DB(); db != nil {
		pingCtx, cancel := context.WithTimeout(c.Ctx.Request.Context(), 2*time.Second)
		dbOK = db.PingContext(pingCtx) == nil
		cancel()
	}
	checks = append(checks, item{"mysql", dbOK})
	ready = ready && dbOK

	if rdb := infrds.Client(); rdb != nil {
		pingCtx, cancel := context.WithTimeout(c.Ctx.Request.Context(), 2*time.Second)
		redisOK := rdb.Ping(pingCtx).Err() == nil
		cancel()
		checks = append(checks, item{"redis", redisOK})
		ready = ready && redisOK
	}

	engineOK := service.Default() != nil && service.Default().Running()
	checks = append(checks, item{"engine", engineOK})
	ready = ready && engineOK

	status := 200
	if !ready {
		status = 503
	}
	c.Ctx.Output.SetStatus(status)
	_ = c.Ctx.Output.JSON(map[string]any{"ready": ready, "checks": checks}, false, false)
}
