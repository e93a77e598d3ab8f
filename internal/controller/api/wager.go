package api

import (
	"errors"
	"strings"

	helper "github.com/rahul3988/cp-win5-sub001/internal/common/helper"
	"github.com/rahul3988/cp-win5-sub001/internal/common/response"
	"github.com/rahul3988/cp-win5-sub001/internal/payout"
	"github.com/rahul3988/cp-win5-sub001/internal/service"

	beego "github.com/beego/beego/v2/server/web"

	mysqlerr "github.com/go-sql-driver/mysql"
)

var newWagerService = service.NewWagerService

type WagerController struct{ beego.Controller }

// 下注请求参数
type WagerRequestParam struct {
	RoundNo  int64  `json:"round_no"` // 局号
	Category int    `json:"category"` // 玩法码 1=number 2=odd 3=even 4=small 5=big 6=red 7=green 8=violet
	Value    int    `json:"value"`    // number 玩法目标值 0-9，其余玩法忽略
	Stake    string `json:"stake"`    // 名义注金（整数卢比）
	/*
		幂等键：客户端生成并随请求传入，用于在网络重试/超时重发/服务端重试时保证“同一业务请求只生效一次”。
		使用约定：
		- 对于“同一次下注”的所有重试，请传相同的 idempotency_key；
		- 业务语义不同（如金额/玩法/局号不同）的请求必须使用不同的 key；
		- 建议生成方式：UUID（推荐）或对用户+局号+玩法+注金做哈希。
		服务端幂等保证（多层防护）：
		1) Redis 进行中锁（约45秒）：并发重复请求直接返回 202，并携带 Retry-After: 1；
		2) MySQL 唯一键：在事务内先插入 idempotency_keys(idempotency_key)，若已存在则视为重复请求，返回首次请求的结果；
		3) 结果缓存：首次成功结果会写入 Redis（短期缓存），后续重复可直接读缓存快速返回。
		错误语义：
		- 并发重复（正在处理）：HTTP 202 + Retry-After: 1
		- 历史重复（已处理完）：返回首次的 bill_no 与余额，不算错误。
	*/
	IdempotencyKey string `json:"idempotency_key"`
}

// WagerController 处理下注接口：POST /api/wager
func (c *WagerController) Place() {
	// 1) 解析入参与基本校验
	// 这里必须要对业务参数严格校验，后续service不再重复校验
	wp, ok, msg := helper.ParseAndValidateWager(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}

	svc := newWagerService()
	traceID := helper.GetTraceID(c.Ctx)

	// 从 context 提取平台信息（由认证中间件注入）
	platformID := int8(0)
	platformUserID := ""
	platformUserName := ""

	if v := c.Ctx.Input.GetData("platform_id"); v != nil {
		if pid, ok := v.(int8); ok {
			platformID = pid
		}
	}
	if v := c.Ctx.Input.GetData("platform_user_id"); v != nil {
		if puid, ok := v.(string); ok {
			platformUserID = puid
		}
	}
	if v := c.Ctx.Input.GetData("platform_user_name"); v != nil {
		if pname, ok := v.(string); ok {
			platformUserName = pname
		}
	}
	if platformUserID == "" {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	// 进行下注业务逻辑处理
	out, err := svc.PlaceWager(c.Ctx.Request.Context(), service.WagerInput{
		RoundNo:          wp.RoundNo,
		PlatformID:       platformID,
		PlatformUserID:   platformUserID,
		PlatformUserName: platformUserName,
		Category:         wp.Category,
		Value:            wp.Value,
		Stake:            wp.Stake,
		IdempotencyKey:   wp.IdempotencyKey,
		TraceID:          traceID,
	})
	if err != nil {
		// MySQL 唯一键冲突
		if me, ok := err.(*mysqlerr.MySQLError); ok && me.Number == 1062 {
			response.Conflict(&c.Controller, response.CodeDuplicateKey, traceID)
			return
		}
		// 重复请求进行中
		if errors.Is(err, service.ErrDuplicateInFlight) {
			response.Accepted(&c.Controller, "重复请求进行中，请稍后重试", traceID)
			return
		}
		// 状态不允许下注
		if errors.Is(err, service.ErrInvalidStateWager) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		// 投注窗口未开始
		if errors.Is(err, service.ErrBetWindowNotStart) {
			response.Conflict(&c.Controller, response.CodeBetWindowNotStart, traceID)
			return
		}
		// 投注窗口已关闭
		if errors.Is(err, service.ErrBetWindowClosed) {
			response.Conflict(&c.Controller, response.CodeBetWindowClosed, traceID)
			return
		}
		// 同局玩法数量超限
		if errors.Is(err, service.ErrTooManyCategories) {
			response.Conflict(&c.Controller, response.CodeTooManyCategories, traceID)
			return
		}
		// 投注钱包低于门槛
		if errors.Is(err, service.ErrBelowBalanceFloor) {
			response.Conflict(&c.Controller, response.CodeBelowBalanceFloor, traceID)
			return
		}
		// 余额不足
		if errors.Is(err, service.ErrInsufficientBalance) {
			response.Error(&c.Controller, 400, response.CodeInsufficientBalance, traceID)
			return
		}
		// 注金非整数
		if errors.Is(err, service.ErrStakeNotInteger) {
			response.Error(&c.Controller, 400, response.CodeStakeNotInteger, traceID)
			return
		}
		// 玩法/目标值非法
		if errors.Is(err, payout.ErrInvalidCategory) || errors.Is(err, payout.ErrInvalidValue) {
			response.BadRequest(&c.Controller, err.Error(), traceID)
			return
		}
		// 注金上下限校验失败
		errMsg := err.Error()
		if strings.Contains(errMsg, "below minimum limit") ||
			strings.Contains(errMsg, "exceeds maximum limit") {
			response.BadRequest(&c.Controller, errMsg, traceID)
			return
		}
		// 用户状态异常
		if strings.Contains(errMsg, "player disabled") {
			response.BadRequest(&c.Controller, "用户状态异常", traceID)
			return
		}
		// 系统错误
		response.InternalError(&c.Controller, traceID)
		return
	}

	// 成功响应
	response.Success(&c.Controller, map[string]interface{}{
		"bill_no":         out.BillNo,
		"bet_group":       out.BetGroup,
		"total_debited":   out.TotalDebited,
		"betting_balance": out.BettingBalance,
		"gaming_balance":  out.GamingBalance,
		"wallet":          out.Wallet,
	}, traceID)
}
