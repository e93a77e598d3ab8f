package model

import (
	"context"
	"database/sql"

	"time"

	"github.com/rahul3988/cp-win5-sub001/common/logger"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Player 对应 players 表
// 用户唯一标识 = platform_id + platform_user_id
// 双钱包：betting_balance 可提现（下注资格按它判断），gaming_balance 为赠金不可提现
// 金额使用 DECIMAL(18,2) 存储，Go 层以 float64 表示，运算走 decimal
// status: 1=正常 0=禁用
type Player struct {
	ID             int64   `db:"user_id"`          // 自增ID（内部使用）
	PlatformID     int8    `db:"platform_id"`      // 平台ID
	PlatformUserID string  `db:"platform_user_id"` // 平台用户ID
	Username       string  `db:"username"`         // 用户名（可选）
	BettingBalance float64 `db:"betting_balance"`  // 投注钱包余额
	GamingBalance  float64 `db:"gaming_balance"`   // 游戏钱包余额（赠金）
	Status         int8    `db:"status"`           // 状态: 1=正常 0=禁用
	CreatedAt      int64   `db:"created_at"`       // 创建时间（13位毫秒时间戳）
	UpdatedAt      int64   `db:"updated_at"`       // 更新时间（13位毫秒时间戳）
}

const playerColumns = `user_id, platform_id, platform_user_id, username, betting_balance, gaming_balance, status, created_at, updated_at`

// GetPlayerByPlatformUser 根据平台ID和平台用户ID查询（非锁）
func GetPlayerByPlatformUser(ctx context.Context, db *sqlx.DB, platformID int8, platformUserID string) (*Player, error) {
	query := `SELECT ` + playerColumns + `
	          FROM players
	          WHERE platform_id = ? AND platform_user_id = ?
	          LIMIT 1`

	var p Player
	err := db.GetContext(ctx, &p, query, platformID, platformUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.Error("get player by platform user failed",
			zap.Int8("platform_id", platformID),
			zap.String("platform_user_id", platformUserID),
			zap.Error(err))
		return nil, err
	}
	return &p, nil
}

// GetPlayerByPlatformUserForUpdate 根据平台ID和平台用户ID查询（加锁）
// 必须在事务中调用；同一玩家的余额校验与扣款在此锁上串行
func GetPlayerByPlatformUserForUpdate(ctx context.Context, exec sqlx.ExtContext, platformID int8, platformUserID string) (*Player, error) {
	query := `SELECT ` + playerColumns + `
	          FROM players
	          WHERE platform_id = ? AND platform_user_id = ?
	          FOR UPDATE`

	var p Player
	err := sqlx.GetContext(ctx, exec, &p, query, platformID, platformUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.Error("get player by platform user for update failed",
			zap.Int8("platform_id", platformID),
			zap.String("platform_user_id", platformUserID),
			zap.Error(err))
		return nil, err
	}
	return &p, nil
}

// GetPlayerByIDForUpdate 根据内部ID查询（加锁），结算按用户批量入账时使用
func GetPlayerByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, userID int64) (*Player, error) {
	query := `SELECT ` + playerColumns + `
	          FROM players
	          WHERE user_id = ?
	          FOR UPDATE`

	var p Player
	if err := sqlx.GetContext(ctx, exec, &p, query, userID); err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPlayer 创建玩家（首次下注自动注册）；并发冲突由唯一索引兜底
func InsertPlayer(ctx context.Context, exec sqlx.ExtContext, p *Player) error {
	now := time.Now().UnixMilli()
	p.CreatedAt, p.UpdatedAt = now, now
	query := `INSERT INTO players (platform_id, platform_user_id, username, betting_balance, gaming_balance, status, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := exec.ExecContext(ctx, query,
		p.PlatformID, p.PlatformUserID, p.Username, p.BettingBalance, p.GamingBalance, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	p.ID = id
	return nil
}

// UpdatePlayerBalances 同时落两个钱包余额（两位小数由调用方保证）
func UpdatePlayerBalances(ctx context.Context, exec sqlx.ExtContext, userID int64, betting, gaming float64) error {
	now := time.Now().UnixMilli()

	sqlStr := "UPDATE players SET betting_balance = ?, gaming_balance = ?, updated_at = ? WHERE user_id = ?"
	args := []interface{}{betting, gaming, now, userID}

	_, err := exec.ExecContext(ctx, sqlStr, args...)
	return err
}
