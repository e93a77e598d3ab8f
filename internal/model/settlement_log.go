package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// SettlementLog 结算日志表（round_no 唯一索引，防止重复结算的第二道护栏）
type SettlementLog struct {
	ID           int64   `db:"id"`
	RoundNo      int64   `db:"round_no"`
	WinningValue int8    `db:"winning_value"`
	IsForced     int8    `db:"is_forced"` // 开奖值是否强制指令（审计）
	TotalBets    int     `db:"total_bets"`
	TotalPayout  float64 `db:"total_payout"`
	Operator     string  `db:"operator"`
	TraceID      string  `db:"trace_id"`
	CreatedAt    int64   `db:"created_at"`
}

// CreateSettlementLog 创建结算日志；唯一键冲突表示该回合已结算过
func CreateSettlementLog(ctx context.Context, exec sqlx.ExtContext, log *SettlementLog) error {
	now := time.Now().UnixMilli()
	log.CreatedAt = now

	sqlStr := `INSERT INTO settlement_log (round_no, winning_value, is_forced, total_bets, total_payout, operator, trace_id, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := exec.ExecContext(ctx, sqlStr,
		log.RoundNo, log.WinningValue, log.IsForced, log.TotalBets, log.TotalPayout, log.Operator, log.TraceID, log.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	log.ID = id
	return nil
}

// UpdateSettlementStats 回填结算统计
func UpdateSettlementStats(ctx context.Context, exec sqlx.ExtContext, roundNo int64, totalBets int, totalPayout float64) error {
	sqlStr := "UPDATE settlement_log SET total_bets = ?, total_payout = ? WHERE round_no = ?"
	_, err := exec.ExecContext(ctx, sqlStr, totalBets, totalPayout, roundNo)
	return err
}

// GetSettlementLog 查询结算日志
func GetSettlementLog(ctx context.Context, db *sqlx.DB, roundNo int64) (*SettlementLog, error) {
	sqlStr := `SELECT id, round_no, winning_value, is_forced, total_bets, total_payout, operator, trace_id, created_at
	           FROM settlement_log WHERE round_no = ? LIMIT 1`
	var log SettlementLog
	if err := db.GetContext(ctx, &log, sqlStr, roundNo); err != nil {
		return nil, err
	}
	return &log, nil
}
