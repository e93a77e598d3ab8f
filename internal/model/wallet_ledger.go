package model

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// WalletLedger 对应 wallet_ledger 表（追加式账本）
// 说明：金额为非负；方向由 before_amount/after_amount 与 biz_type 推导
// wallet: 1=betting 2=gaming（哪一个钱包发生账变就记哪一个，跨钱包操作记两行）
// biz_type: 1=bet 下注扣款 2=payout 派彩 3=cashback 返水 4=refund 退款 5=adjust 后台调整
// 同时冗余 biz_type_str 便于查询
type WalletLedger struct {
	ID           int64   `db:"id"`
	UserID       int64   `db:"user_id"`
	Wallet       int8    `db:"wallet"`
	BizType      int     `db:"biz_type"`
	BizTypeStr   string  `db:"biz_type_str"`
	Amount       float64 `db:"amount"`
	BeforeAmount float64 `db:"before_amount"`
	AfterAmount  float64 `db:"after_amount"`
	Currency     string  `db:"currency"`
	BillNo       string  `db:"bill_no"`
	RoundNo      int64   `db:"round_no"`
	GameID       string  `db:"game_id"`
	Remark       string  `db:"remark"`
	TraceID      string  `db:"trace_id"`
	CreatedAt    int64   `db:"created_at"`
}

// 账本业务类型码
const (
	LedgerBet      = 1
	LedgerPayout   = 2
	LedgerCashback = 3
	LedgerRefund   = 4
	LedgerAdjust   = 5
)

// 账本钱包码
const (
	LedgerWalletBetting int8 = 1
	LedgerWalletGaming  int8 = 2
)

// Insert 新增一条账本记录（biz_type 数值码与字符串双写）
func (l *WalletLedger) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	code := l.BizType
	str := l.BizTypeStr
	if code == 0 && str != "" {
		switch strings.ToLower(str) {
		case "bet":
			code = LedgerBet
		case "payout":
			code = LedgerPayout
		case "cashback":
			code = LedgerCashback
		case "refund":
			code = LedgerRefund
		case "adjust":
			code = LedgerAdjust
		}
	}
	if str == "" && code != 0 {
		switch code {
		case LedgerBet:
			str = "bet"
		case LedgerPayout:
			str = "payout"
		case LedgerCashback:
			str = "cashback"
		case LedgerRefund:
			str = "refund"
		case LedgerAdjust:
			str = "adjust"
		}
	}
	sqlStr := `INSERT INTO wallet_ledger (user_id, wallet, biz_type, biz_type_str, amount, before_amount, after_amount,
		currency, bill_no, round_no, game_id, remark, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{l.UserID, l.Wallet, code, str, l.Amount, l.BeforeAmount, l.AfterAmount,
		l.Currency, l.BillNo, l.RoundNo, l.GameID, l.Remark, l.TraceID, now}

	_, err := exec.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListBetDeductions 查询某订单号的下注扣款行（按钱包拆分）
// 紧急停止退款时按原路退回的依据
func ListBetDeductions(ctx context.Context, exec sqlx.ExtContext, billNo string) ([]WalletLedger, error) {
	sqlStr := `SELECT id, user_id, wallet, biz_type, biz_type_str, amount, before_amount, after_amount,
		currency, bill_no, round_no, game_id, remark, trace_id, created_at
		FROM wallet_ledger WHERE bill_no = ? AND biz_type = ?`

	var list []WalletLedger
	if err := sqlx.SelectContext(ctx, exec, &list, sqlStr, billNo, LedgerBet); err != nil {
		return nil, err
	}
	return list, nil
}
