package api

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	helper "github.com/rahul3988/cp-win5-sub001/internal/common/helper"
	"github.com/rahul3988/cp-win5-sub001/internal/common/response"
	infmysql "github.com/rahul3988/cp-win5-sub001/internal/infra/mysql"
	"github.com/rahul3988/cp-win5-sub001/internal/model"

	beego "github.com/beego/beego/v2/server/web"
)

// UserController 玩家钱包与注单查询接口
// GET /api/user/balance
// GET /api/user/bets?round_no=&limit=
type UserController struct{ beego.Controller }

// platformFromCtx 提取认证中间件注入的平台身份
func platformFromCtx(c *UserController) (int8, string, bool) {
	platformID := int8(0)
	platformUserID := ""
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
	return platformID, platformUserID, platformUserID != ""
}

// Balance 查询双钱包余额
func (c *UserController) Balance() {
	traceID := helper.GetTraceID(c.Ctx)
	platformID, platformUserID, ok := platformFromCtx(c)
	if !ok {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	player, err := model.GetPlayerByPlatformUser(c.Ctx.Request.Context(), infmysql.SQLX(), platformID, platformUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			// 未下过注的玩家尚未建档，返回零余额而非 404
			response.Success(&c.Controller, map[string]interface{}{
				"betting_balance": "0.00",
				"gaming_balance":  "0.00",
			}, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"betting_balance": fmt.Sprintf("%.2f", player.BettingBalance),
		"gaming_balance":  fmt.Sprintf("%.2f", player.GamingBalance),
	}, traceID)
}

// Bets 查询注单记录，round_no 可选（0=全部），limit 默认 10 上限 100
func (c *UserController) Bets() {
	traceID := helper.GetTraceID(c.Ctx)
	platformID, platformUserID, ok := platformFromCtx(c)
	if !ok {
		response.Error(&c.Controller, 401, response.CodeUnauthorized, traceID)
		return
	}

	var roundNo int64
	if rs := strings.TrimSpace(c.Ctx.Input.Query("round_no")); rs != "" {
		n, err := strconv.ParseInt(rs, 10, 64)
		if err != nil || n < 0 {
			response.BadRequest(&c.Controller, "round_no must be a non-negative integer", traceID)
			return
		}
		roundNo = n
	}
	limit := 0
	if ls := strings.TrimSpace(c.Ctx.Input.Query("limit")); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 0 {
			response.BadRequest(&c.Controller, "limit must be a non-negative integer", traceID)
			return
		}
		limit = n
	}

	records, err := model.ListPlayerBets(c.Ctx.Request.Context(), infmysql.SQLX(), platformID, platformUserID, roundNo, limit)
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"bets":  records,
		"count": len(records),
	}, traceID)
}
