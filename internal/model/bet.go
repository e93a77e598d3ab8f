package model

import (
	"context"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common"

	g "github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

var dialect = g.Dialect("mysql")

// Bet 对应 bets 表（组合玩法拆分后的单值原子注单）
// 说明：同一次组合投注的 N 行共享 bet_group，requested_stake 记录名义注金
// wallet: 1=betting 仅投注钱包出资 2=combined 投注+游戏钱包合并出资
// settle_status: 1=pending 待结算 2=won 3=lost 4=refunded
// settled_at: 0=未结算（幂等护栏：非 0 的注单绝不允许再次结算）
type Bet struct {
	BillNo          string  `db:"bill_no"`     // 注单号(主键)
	BetGroup        string  `db:"bet_group"`   // 组合投注关联号（单值玩法等于 bill_no）
	RoundNo         int64   `db:"round_no"`    // 回合序号
	GameID          string  `db:"game_id"`     // 游戏ID
	UserID          int64   `db:"user_id"`     // 用户ID（内部ID）
	PlatformID      int8    `db:"platform_id"` // 平台ID
	PlatformUserID  string  `db:"platform_user_id"`
	UserName        string  `db:"user_name"`
	Category        int8    `db:"category"`         // 玩法码（payout.Category）
	BetValue        int8    `db:"bet_value"`        // 本行覆盖的开奖值 0..9
	Stake           float64 `db:"stake"`            // 本行注金（拆分后）
	RequestedStake  float64 `db:"requested_stake"`  // 原始名义注金
	Wallet          int8    `db:"wallet"`           // 出资钱包 1=betting 2=combined
	PotentialPayout float64 `db:"potential_payout"` // 命中时应派金额（敞口聚合用）
	SettleStatus    int8    `db:"settle_status"`
	WinAmount       float64 `db:"win_amount"`
	Multiplier      float64 `db:"multiplier"` // 单值赔率快照
	Currency        string  `db:"currency"`
	IdempotencyKey  string  `db:"idempotency_key"`
	TraceID         string  `db:"trace_id"`
	BetTime         int64   `db:"bet_time"`
	SettledAt       int64   `db:"settled_at"` // 0=未结算
	CreatedAt       int64   `db:"created_at"`
	UpdatedAt       int64   `db:"updated_at"`
}

// 结算状态码
const (
	BetPending  int8 = 1
	BetWon      int8 = 2
	BetLost     int8 = 3
	BetRefunded int8 = 4
)

// 出资钱包码
const (
	WalletBetting  int8 = 1
	WalletCombined int8 = 2
)

// Insert 插入一条注单
func (b *Bet) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	bt := b.BetTime
	if bt == 0 {
		bt = now
	}

	sqlStr := `INSERT INTO bets (bill_no, bet_group, round_no, game_id, user_id, platform_id, platform_user_id, user_name,
		category, bet_value, stake, requested_stake, wallet, potential_payout, settle_status, win_amount,
		multiplier, currency, idempotency_key, trace_id, bet_time, settled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`
	_, err := exec.ExecContext(ctx, sqlStr, b.BillNo, b.BetGroup, b.RoundNo, b.GameID, b.UserID, b.PlatformID, b.PlatformUserID, b.UserName,
		b.Category, b.BetValue, b.Stake, b.RequestedStake, b.Wallet, b.PotentialPayout, BetPending, 0.0,
		b.Multiplier, b.Currency, b.IdempotencyKey, b.TraceID, bt, now, now)
	return err
}

// ListPendingByRoundForUpdate 按回合查询待结算注单（FOR UPDATE），需要在事务中调用
// 幂等护栏：只取 settled_at = 0 的行
func ListPendingByRoundForUpdate(ctx context.Context, exec sqlx.ExtContext, roundNo int64) ([]Bet, error) {
	sqlStr := `SELECT bill_no, bet_group, round_no, user_id, user_name, category, bet_value, stake, requested_stake,
		wallet, potential_payout, multiplier, currency
		FROM bets WHERE round_no = ? AND settle_status = 1 AND settled_at = 0 FOR UPDATE`
	var bets []Bet
	if err := sqlx.SelectContext(ctx, exec, &bets, sqlStr, roundNo); err != nil {
		return nil, err
	}
	return bets, nil
}

// ListByGroup 按组合关联号取同组全部注单行（重复请求回放响应用）
func ListByGroup(ctx context.Context, exec sqlx.ExtContext, betGroup string) ([]Bet, error) {
	sqlStr := `SELECT bill_no, bet_group, round_no, user_id, category, bet_value, stake, requested_stake,
		wallet, potential_payout, multiplier, currency
		FROM bets WHERE bet_group = ?`
	var bets []Bet
	if err := sqlx.SelectContext(ctx, exec, &bets, sqlStr, betGroup); err != nil {
		return nil, err
	}
	return bets, nil
}

// UpdateBetSettlement 落结算结果并盖结算时间戳
func UpdateBetSettlement(ctx context.Context, exec sqlx.ExtContext, billNo string, status int8, winAmount float64, settledAtMs int64) error {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE bets SET settle_status = ?, win_amount = ?, settled_at = ?, updated_at = ? WHERE bill_no = ? AND settled_at = 0"
	_, err := exec.ExecContext(ctx, sqlStr, status, winAmount, settledAtMs, now, billNo)
	return err
}

// DistinctCategories 玩家在该回合已使用的玩法码集合（防过度对冲规则）
func DistinctCategories(ctx context.Context, exec sqlx.ExtContext, roundNo int64, platformID int8, platformUserID string) ([]int8, error) {
	sqlStr := `SELECT DISTINCT category FROM bets
	           WHERE round_no = ? AND platform_id = ? AND platform_user_id = ? AND settle_status IN (1, 2, 3)`
	var cats []int8
	if err := sqlx.SelectContext(ctx, exec, &cats, sqlStr, roundNo, platformID, platformUserID); err != nil {
		return nil, err
	}
	return cats, nil
}

// ExposureRow 按开奖值聚合的派彩敞口
type ExposureRow struct {
	BetValue int8    `db:"bet_value"`
	Payout   float64 `db:"payout"`
}

// ExposureByValue 聚合待结算注单的派彩敞口（goqu 构造聚合查询）
// 注意：这是备奖选值的输入，与缓存层的展示聚合无关，必须读权威库
func ExposureByValue(ctx context.Context, exec sqlx.ExtContext, roundNo int64) ([]ExposureRow, error) {
	query, args, err := dialect.
		Select(g.C("bet_value"), g.SUM("potential_payout").As("payout")).
		From("bets").
		Where(g.C("round_no").Eq(roundNo), g.C("settle_status").Eq(BetPending)).
		GroupBy(g.C("bet_value")).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var rows []ExposureRow
	if err := sqlx.SelectContext(ctx, exec, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// DayLossRow 某玩家单日输掉的注金合计
type DayLossRow struct {
	UserID int64   `db:"user_id"`
	Loss   float64 `db:"loss"`
}

// LossesByPlayerBetween 统计 [startMs, endMs) 结算为 lost 的注金合计，按玩家分组
// 9 天滚动返水对账的数据源；只统计 betting 出资的注单（combined 输单走即时返现）
func LossesByPlayerBetween(ctx context.Context, exec sqlx.ExtContext, startMs, endMs int64) ([]DayLossRow, error) {
	query, args, err := dialect.
		Select(g.C("user_id"), g.SUM("stake").As("loss")).
		From("bets").
		Where(
			g.C("settle_status").Eq(BetLost),
			g.C("wallet").Eq(WalletBetting),
			g.C("settled_at").Gte(startMs),
			g.C("settled_at").Lt(endMs),
		).
		GroupBy(g.C("user_id")).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var rows []DayLossRow
	if err := sqlx.SelectContext(ctx, exec, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// BetRecord 投注记录（查询接口用）
type BetRecord struct {
	BillNo       string  `db:"bill_no" json:"bill_no"`
	BetGroup     string  `db:"bet_group" json:"bet_group"`
	RoundNo      int64   `db:"round_no" json:"round_no"`
	Category     int8    `db:"category" json:"category"`
	BetValue     int8    `db:"bet_value" json:"bet_value"`
	Stake        float64 `db:"stake" json:"stake"`
	Wallet       int8    `db:"wallet" json:"wallet"`
	SettleStatus int8    `db:"settle_status" json:"settle_status"`
	WinAmount    float64 `db:"win_amount" json:"win_amount"`
	Multiplier   float64 `db:"multiplier" json:"multiplier"`
	BetTime      int64   `db:"bet_time" json:"bet_time"`
	SettledAt    int64   `db:"settled_at" json:"settled_at"`
}

// ListPlayerBets 查询玩家的投注记录（按平台用户ID）
// roundNo 为 0 则查全部；limit 默认 10、上限 100
func ListPlayerBets(ctx context.Context, db *sqlx.DB, platformID int8, platformUserID string, roundNo int64, limit int) ([]BetRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	ex := []exp.Expression{
		g.C("platform_id").Eq(platformID),
		g.C("platform_user_id").Eq(platformUserID),
	}
	if roundNo > 0 {
		ex = append(ex, g.C("round_no").Eq(roundNo))
	}

	var records []BetRecord
	err := common.SelectAllCtx(ctx, &records, common.QueryArg{
		Db:     db,
		Table:  "bets",
		Fields: common.EnumFields(BetRecord{}),
		Ex:     ex,
		Order:  []exp.OrderedExpression{g.C("bet_time").Desc()},
		Limit:  uint(limit),
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
