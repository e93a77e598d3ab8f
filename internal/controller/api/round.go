package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	infmysql "github.com/rahul3988/cp-win5-sub001/internal/infra/mysql"
	infrds "github.com/rahul3988/cp-win5-sub001/internal/infra/redis"
	"github.com/rahul3988/cp-win5-sub001/internal/model"
	"github.com/rahul3988/cp-win5-sub001/internal/service"

	beego "github.com/beego/beego/v2/server/web"
	goredis "github.com/redis/go-redis/v9"
)

// RoundController 提供局信息与开奖结果查询（便于客户端轮询/回放）
// GET /api/round/current  返回引擎当前阶段快照
// GET /api/round/:round_no 返回 { ok, round_info, draw_result }
// - round_info 与 draw_result 优先从 Redis 读取，未命中回源数据库并回填

type RoundController struct {
	beego.Controller
}

// GetCurrent 当前局快照：阶段、局号、剩余秒数
// 仅暴露客户端需要的字段，预设中奖值等内部状态不外露
func (c *RoundController) GetCurrent() {
	eng := service.Default()
	if eng == nil || !eng.Running() {
		c.CustomAbort(503, "round engine not running")
		return
	}
	snap := eng.GetSnapshot()
	c.Data["json"] = map[string]any{
		"ok":            true,
		"round_no":      snap.RoundNo,
		"phase":         snap.Phase,
		"remaining_sec": snap.Remaining,
		"phase_end":     snap.PhaseEnd,
		"server_time":   time.Now().UnixMilli(),
	}
	_ = c.ServeJSON()
}

func (c *RoundController) GetRound() {
	roundStr := c.Ctx.Input.Param(":round_no")
	if roundStr == "" {
		c.CustomAbort(400, "round_no is required")
		return
	}
	roundNo, err := strconv.ParseInt(roundStr, 10, 64)
	if err != nil || roundNo <= 0 {
		c.CustomAbort(400, "round_no must be a positive integer")
		return
	}

	r := infrds.Client()
	if r == nil {
		c.CustomAbort(503, "redis unavailable")
		return
	}

	ctx := context.Background()

	var roundInfo map[string]any
	var drawResult map[string]any

	// 读取 round info
	if bs, err := r.Get(ctx, infrds.RoundInfoKey(roundNo)).Bytes(); err == nil {
		_ = json.Unmarshal(bs, &roundInfo)
	} else if err != goredis.Nil {
		// 非不存在错误，视为服务不可用
		c.CustomAbort(503, "redis error")
		return
	}

	// 读取开奖结果
	if bs, err := r.Get(ctx, infrds.RoundResultKey(roundNo)).Bytes(); err == nil {
		_ = json.Unmarshal(bs, &drawResult)
	} else if err != goredis.Nil {
		c.CustomAbort(503, "redis error")
		return
	}

	if roundInfo == nil && drawResult == nil {
		// DB fallback：从数据库读取，并回填 Redis
		rd, err := model.GetRoundByNo(ctx, infmysql.SQLX(), roundNo)
		if err != nil {
			if err == sql.ErrNoRows {
				c.CustomAbort(404, "round not found")
				return
			}
			c.CustomAbort(503, "db error")
			return
		}
		roundInfo = map[string]any{
			"round_no":       rd.RoundNo,
			"game_id":        rd.GameID,
			"status":         rd.Status,
			"bet_start_time": rd.BetStartTime,
			"bet_stop_time":  rd.BetStopTime,
		}
		// 结果阶段之后才有开奖值
		if rd.WinningValue >= 0 && rd.Status >= 4 {
			drawResult = map[string]any{
				"round_no":      rd.RoundNo,
				"winning_value": rd.WinningValue,
				"is_settled":    rd.IsSettled,
			}
		}
		// 回填 Redis
		if b, e := json.Marshal(roundInfo); e == nil {
			_ = r.Set(ctx, infrds.RoundInfoKey(roundNo), b, 20*time.Second).Err()
		}
		if drawResult != nil {
			if b, e := json.Marshal(drawResult); e == nil {
				_ = r.Set(ctx, infrds.RoundResultKey(roundNo), b, 2*time.Minute).Err()
			}
		}
	}

	c.Data["json"] = map[string]any{
		"ok":          true,
		"round_info":  roundInfo,
		"draw_result": drawResult,
	}
	_ = c.ServeJSON()
}
