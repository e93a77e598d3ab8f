package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// DeferredCashback 对应 deferred_cashback 表
// 投注钱包出资的输单产生一条延迟返水：总额 = 注金 × 返水比例，
// 每日向游戏钱包发放 daily_amount，直到 remaining_amount 归零
// status: 1=发放中 2=已完成 3=已取消
type DeferredCashback struct {
	ID              int64   `db:"id"`
	BillNo          string  `db:"bill_no"` // 来源注单（唯一，天然防重）
	UserID          int64   `db:"user_id"`
	RoundNo         int64   `db:"round_no"`
	TotalAmount     float64 `db:"total_amount"`
	DailyAmount     float64 `db:"daily_amount"`
	RemainingAmount float64 `db:"remaining_amount"`
	Status          int8    `db:"status"`
	TraceID         string  `db:"trace_id"`
	CreatedAt       int64   `db:"created_at"`
	UpdatedAt       int64   `db:"updated_at"`
}

// 延迟返水状态码
const (
	CashbackActive    int8 = 1
	CashbackCompleted int8 = 2
	CashbackCancelled int8 = 3
)

// Insert 创建延迟返水计划（bill_no 唯一索引防重）
func (d *DeferredCashback) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	sqlStr := `INSERT INTO deferred_cashback (bill_no, user_id, round_no, total_amount, daily_amount, remaining_amount, status, trace_id, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := exec.ExecContext(ctx, sqlStr,
		d.BillNo, d.UserID, d.RoundNo, d.TotalAmount, d.DailyAmount, d.RemainingAmount, CashbackActive, d.TraceID, now, now)
	return err
}

// ListActiveForUpdate 取发放中的返水计划（FOR UPDATE），需要在事务中调用
func ListActiveForUpdate(ctx context.Context, exec sqlx.ExtContext, limit int) ([]DeferredCashback, error) {
	sqlStr := `SELECT id, bill_no, user_id, round_no, total_amount, daily_amount, remaining_amount, status, trace_id, created_at, updated_at
	           FROM deferred_cashback WHERE status = ? ORDER BY id ASC LIMIT ? FOR UPDATE`
	var list []DeferredCashback
	if err := sqlx.SelectContext(ctx, exec, &list, sqlStr, CashbackActive, limit); err != nil {
		return nil, err
	}
	return list, nil
}

// ListActivePlansByUserForUpdate 取某玩家发放中的返水计划（FOR UPDATE）
func ListActivePlansByUserForUpdate(ctx context.Context, exec sqlx.ExtContext, userID int64) ([]DeferredCashback, error) {
	sqlStr := `SELECT id, bill_no, user_id, round_no, total_amount, daily_amount, remaining_amount, status, trace_id, created_at, updated_at
	           FROM deferred_cashback WHERE user_id = ? AND status = ? ORDER BY id ASC FOR UPDATE`
	var list []DeferredCashback
	if err := sqlx.SelectContext(ctx, exec, &list, sqlStr, userID, CashbackActive); err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateDisbursement 落一次发放：更新剩余额度，归零则置完成
func UpdateDisbursement(ctx context.Context, exec sqlx.ExtContext, id int64, remaining float64, status int8) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE deferred_cashback SET remaining_amount = ?, status = ?, updated_at = ? WHERE id = ?"
	_, err := exec.ExecContext(ctx, sqlStr, remaining, status, now, id)
	return err
}

// CashbackCredit 对应 cashback_credit 表（9 天滚动对账的幂等标记）
// 唯一索引 (user_id, source_day, day_offset)：同一 (玩家, 输钱日, 偏移) 只会入账一次
// source_day 为 yyyymmdd 整数，day_offset 为对账日减输钱日的天数 1..9
type CashbackCredit struct {
	ID        int64   `db:"id"`
	UserID    int64   `db:"user_id"`
	SourceDay int     `db:"source_day"`
	DayOffset int     `db:"day_offset"`
	Amount    float64 `db:"amount"`
	TraceID   string  `db:"trace_id"`
	CreatedAt int64   `db:"created_at"`
}

// Insert 写入对账标记；重复 (user_id, source_day, day_offset) 触发 1062
func (c *CashbackCredit) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	sqlStr := `INSERT INTO cashback_credit (user_id, source_day, day_offset, amount, trace_id, created_at)
	           VALUES (?, ?, ?, ?, ?, ?)`
	_, err := exec.ExecContext(ctx, sqlStr, c.UserID, c.SourceDay, c.DayOffset, c.Amount, c.TraceID, now)
	return err
}
