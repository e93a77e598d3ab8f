package model

import (
	"context"
	"time"

	g "github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/rahul3988/cp-win5-sub001/common"
)

// Round 对应 rounds 表
// 说明：时间为毫秒时间戳；winning_value 在备奖前为 -1
// status: 1=betting 2=spin_preparation 3=spinning 4=result 5=transition 6=completed 7=cancelled
// is_forced: 开奖值是否来自管理强制指令（审计要求）
// is_settled: 0=未结算 1=已结算（防止重复结算）
type Round struct {
	ID            int64   `db:"id"`
	RoundNo       int64   `db:"round_no"` // 回合序号（单调递增，唯一）
	GameID        string  `db:"game_id"`  // 游戏ID
	Status        int8    `db:"status"`   // 阶段/终态码
	BetStartTime  int64   `db:"bet_start_time"`
	BetStopTime   int64   `db:"bet_stop_time"`
	SpinStartTime int64   `db:"spin_start_time"`
	ResultTime    int64   `db:"result_time"`
	WinningValue  int8    `db:"winning_value"` // -1=未定 0..9=已定
	IsForced      int8    `db:"is_forced"`     // 0=敞口选择 1=强制指令
	TotalWagered  float64 `db:"total_wagered"` // 本回合总投注额
	TotalPaid     float64 `db:"total_paid"`    // 本回合总派彩
	HousePnl      float64 `db:"house_pnl"`     // 庄家盈亏 = wagered - paid
	IsSettled     int8    `db:"is_settled"`
	TraceID       string  `db:"trace_id"`
	CreatedAt     int64   `db:"created_at"`
	UpdatedAt     int64   `db:"updated_at"`
}

// 终态码
const (
	RoundStatusCompleted int8 = 6
	RoundStatusCancelled int8 = 7
)

const roundColumns = `id, round_no, game_id, status, bet_start_time, bet_stop_time,
	spin_start_time, result_time, winning_value, is_forced,
	total_wagered, total_paid, house_pnl, is_settled, trace_id, created_at, updated_at`

// CreateRound 开盘时创建回合（status=1 betting，投注窗口随行）
// 回合已存在则视为成功（引擎重启恢复场景）
func CreateRound(ctx context.Context, exec sqlx.ExtContext, roundNo int64, gameID string, betStartMs, betStopMs int64, traceID string) error {
	cnt, err := common.CountCtx(ctx, exec, "rounds", g.C("round_no").Eq(roundNo))
	if err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	sqlIns := `INSERT INTO rounds (round_no, game_id, status, bet_start_time, bet_stop_time, winning_value, is_forced, is_settled, trace_id, created_at, updated_at)
	           VALUES (?, ?, 1, ?, ?, -1, 0, 0, ?, ?, ?)`
	_, err = exec.ExecContext(ctx, sqlIns, roundNo, gameID, betStartMs, betStopMs, traceID, now, now)
	return err
}

// GetRoundByNo 按回合序号查询（非锁）
func GetRoundByNo(ctx context.Context, exec sqlx.ExtContext, roundNo int64) (*Round, error) {
	sqlStr := `SELECT ` + roundColumns + ` FROM rounds WHERE round_no = ?`
	var r Round
	if err := sqlx.GetContext(ctx, exec, &r, sqlStr, roundNo); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoundForUpdate 按回合序号加锁查询（投注校验窗口、结算校验状态用）
func GetRoundForUpdate(ctx context.Context, exec sqlx.ExtContext, roundNo int64) (*Round, error) {
	sqlStr := `SELECT ` + roundColumns + ` FROM rounds WHERE round_no = ? FOR UPDATE`
	var r Round
	if err := sqlx.GetContext(ctx, exec, &r, sqlStr, roundNo); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRoundStatus 推进回合状态
func UpdateRoundStatus(ctx context.Context, exec sqlx.ExtContext, roundNo int64, status int8) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE rounds SET status = ?, updated_at = ? WHERE round_no = ?"
	_, err := exec.ExecContext(ctx, sqlStr, status, now, roundNo)
	return err
}

// SetSpinStartNow 记录进入 spinning 的时刻
func SetSpinStartNow(ctx context.Context, exec sqlx.ExtContext, roundNo int64) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE rounds SET spin_start_time = ?, status = 3, updated_at = ? WHERE round_no = ?"
	_, err := exec.ExecContext(ctx, sqlStr, now, now, roundNo)
	return err
}

// SetWinningValue 开奖揭示：落开奖值与是否强制，并记录开奖时刻（status=4 result）
func SetWinningValue(ctx context.Context, exec sqlx.ExtContext, roundNo int64, value int8, forced bool) error {
	now := time.Now().UnixMilli()
	f := int8(0)
	if forced {
		f = 1
	}
	sqlStr := "UPDATE rounds SET winning_value = ?, is_forced = ?, result_time = ?, status = 4, updated_at = ? WHERE round_no = ?"
	_, err := exec.ExecContext(ctx, sqlStr, value, f, now, now, roundNo)
	return err
}

// MarkRoundSettled 结算完成：落聚合并置 is_settled=1
// house_pnl = total_wagered - total_paid
func MarkRoundSettled(ctx context.Context, exec sqlx.ExtContext, roundNo int64, totalWagered, totalPaid float64) error {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE rounds SET total_wagered = ?, total_paid = ?, house_pnl = ?, is_settled = 1, updated_at = ?
	           WHERE round_no = ?`
	_, err := exec.ExecContext(ctx, sqlStr, totalWagered, totalPaid, totalWagered-totalPaid, now, roundNo)
	return err
}

// CompleteRound 过渡结束转终态 completed（仅已结算回合）
func CompleteRound(ctx context.Context, exec sqlx.ExtContext, roundNo int64) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE rounds SET status = ?, updated_at = ? WHERE round_no = ? AND is_settled = 1"
	_, err := exec.ExecContext(ctx, sqlStr, RoundStatusCompleted, now, roundNo)
	return err
}

// CancelRound 紧急停止：回合转 cancelled
func CancelRound(ctx context.Context, exec sqlx.ExtContext, roundNo int64) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE rounds SET status = ?, updated_at = ? WHERE round_no = ?"
	_, err := exec.ExecContext(ctx, sqlStr, RoundStatusCancelled, now, roundNo)
	return err
}

// MaxRoundNo 当前最大回合序号（引擎启动时恢复序列）
func MaxRoundNo(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	var n int64
	sqlStr := "SELECT COALESCE(MAX(round_no), 0) FROM rounds"
	if err := sqlx.GetContext(ctx, exec, &n, sqlStr); err != nil {
		return 0, err
	}
	return n, nil
}

// ListUnsettledRevealedRounds 已揭示开奖值但未结算的回合（恢复重试用）
// 开奖值缺失(-1)的回合不在此列：那是状态异常，只告警不猜测
func ListUnsettledRevealedRounds(ctx context.Context, exec sqlx.ExtContext, limit int) ([]Round, error) {
	sqlStr := `SELECT ` + roundColumns + `
	           FROM rounds
	           WHERE status >= 4 AND status != 7 AND is_settled = 0 AND winning_value >= 0
	           ORDER BY round_no ASC LIMIT ?`
	var rs []Round
	if err := sqlx.SelectContext(ctx, exec, &rs, sqlStr, limit); err != nil {
		return nil, err
	}
	return rs, nil
}
