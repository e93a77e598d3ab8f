package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	infmysql "github.com/rahul3988/cp-win5-sub001/internal/infra/mysql"
	"github.com/rahul3988/cp-win5-sub001/internal/metrics"
	"github.com/rahul3988/cp-win5-sub001/internal/model"

	"github.com/google/uuid"
	decimal "github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CashbackService 每日返水任务：
// betting 出资的输单返现分 N 日摊还入 gaming 钱包
// 每次运行都回看过去 N 天（9 天滚动窗口），漏发的天数在后续运行中补上
// 幂等靠 cashback_credit 的 (user_id, source_day, day_offset) 唯一键
type CashbackService interface {
	RunDaily(ctx context.Context, now time.Time) error
}

type cashbackService struct{}

func NewCashbackService() CashbackService { return &cashbackService{} }

// dayInt 返回 yyyymmdd 整数（服务器本地时区）
func dayInt(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// dayRange 返回某天的 [start, end) 毫秒时间戳
func dayRange(t time.Time) (int64, int64) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start.UnixMilli(), start.Add(24 * time.Hour).UnixMilli()
}

// RunDaily 执行一轮返水发放
// 对过去 1..N 天的每一天：按玩家聚合当日 betting 输额，逐玩家幂等入账
// 单个玩家失败只记录，不中断整批
func (s *cashbackService) RunDaily(ctx context.Context, now time.Time) error {
	gameCfg := config.Get().Game
	days := gameCfg.CashbackDays
	pct := decimal.NewFromFloat(gameCfg.CashbackPercent)

	fmt.Printf("[Cashback] 开始每日返水: date=%d, window=%d days\n", dayInt(now), days)

	var firstErr error
	for offset := 1; offset <= days; offset++ {
		sourceDate := now.AddDate(0, 0, -offset)
		sourceDay := dayInt(sourceDate)
		startMs, endMs := dayRange(sourceDate)

		rows, err := model.LossesByPlayerBetween(ctx, infmysql.SQLX(), startMs, endMs)
		if err != nil {
			logger.Error("cashback: load day losses failed",
				zap.Int("source_day", sourceDay), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, row := range rows {
			if err := s.creditOne(ctx, row.UserID, row.Loss, sourceDay, offset, days, pct, gameCfg.Currency); err != nil {
				logger.Error("cashback: credit failed",
					zap.Int64("user_id", row.UserID),
					zap.Int("source_day", sourceDay),
					zap.Int("day_offset", offset),
					zap.Error(err))
				metrics.RecordCashback(cashbackKind(offset), "fail", 0)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// cashbackKind 指标标签：offset=1 为当日发放，其余为回溯补偿
func cashbackKind(offset int) string {
	if offset == 1 {
		return "daily"
	}
	return "reconcile"
}

// trancheAmount 计算 (source_day, offset) 的当日摊还金额
// 末日（offset==days）把舍入残差一并结清
func trancheAmount(loss float64, pct decimal.Decimal, offset, days int) decimal.Decimal {
	total := decimal.NewFromFloat(loss).Mul(pct).Round(2)
	daily := total.Div(decimal.NewFromInt(int64(days))).Round(2)
	if offset == days {
		return total.Sub(daily.Mul(decimal.NewFromInt(int64(days - 1))))
	}
	return daily
}

// cashbackLedger 构造返水入账的账本行；返水一律入 gaming 钱包
func cashbackLedger(userID int64, gamingBefore, amount decimal.Decimal, currency string, sourceDay, offset, days int, traceID string) *model.WalletLedger {
	after := gamingBefore.Add(amount).Round(2)
	return &model.WalletLedger{
		UserID:       userID,
		Wallet:       model.LedgerWalletGaming,
		BizType:      model.LedgerCashback,
		BizTypeStr:   "cashback",
		Amount:       amount.InexactFloat64(),
		BeforeAmount: gamingBefore.Round(2).InexactFloat64(),
		AfterAmount:  after.InexactFloat64(),
		Currency:     currency,
		Remark:       fmt.Sprintf("loss cashback day %d/%d (source %d)", offset, days, sourceDay),
		TraceID:      traceID,
	}
}

// creditOne 给单个玩家入账一次 (source_day, day_offset) 的返水
func (s *cashbackService) creditOne(ctx context.Context, userID int64, loss float64, sourceDay, offset, days int, pct decimal.Decimal, currency string) error {
	amount := trancheAmount(loss, pct, offset, days)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	traceID := uuid.New().String()

	tx, err := infmysql.SQLX().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// 幂等标记先行：唯一键冲突说明这一天已经发过
	credit := &model.CashbackCredit{
		UserID:    userID,
		SourceDay: sourceDay,
		DayOffset: offset,
		Amount:    amount.InexactFloat64(),
		TraceID:   traceID,
	}
	if err := credit.Insert(ctx, tx); err != nil {
		if isMySQLDuplicateKeyError(err) {
			metrics.RecordCashback(cashbackKind(offset), "duplicate", 0)
			return nil
		}
		return err
	}

	player, err := model.GetPlayerByIDForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	gamingDec := decimal.NewFromFloat(player.GamingBalance)
	ledger := cashbackLedger(userID, gamingDec, amount, currency, sourceDay, offset, days, traceID)

	if err := model.UpdatePlayerBalances(ctx, tx, userID,
		player.BettingBalance, ledger.AfterAmount); err != nil {
		return err
	}
	if err := ledger.Insert(ctx, tx); err != nil {
		return err
	}

	// 同步消减该玩家的摊还计划（展示/追踪用途；余额入账以上面的账本为准）
	plans, err := model.ListActivePlansByUserForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	toApply := amount
	for _, p := range plans {
		if toApply.LessThanOrEqual(decimal.Zero) {
			break
		}
		if dayInt(time.UnixMilli(p.CreatedAt)) != sourceDay {
			continue
		}
		remaining := decimal.NewFromFloat(p.RemainingAmount)
		step := decimal.NewFromFloat(p.DailyAmount)
		if offset == days || step.GreaterThan(remaining) {
			step = remaining
		}
		if step.GreaterThan(toApply) {
			step = toApply
		}
		newRemaining := remaining.Sub(step).Round(2)
		status := model.CashbackActive
		if newRemaining.LessThanOrEqual(decimal.Zero) {
			newRemaining = decimal.Zero
			status = model.CashbackCompleted
		}
		if err := model.UpdateDisbursement(ctx, tx, p.ID, newRemaining.InexactFloat64(), status); err != nil {
			return err
		}
		toApply = toApply.Sub(step)
	}

	// Outbox：返水入账事件
	if err := model.CreateOutbox(ctx, tx, model.TopicCashback,
		fmt.Sprintf("cashback-%d-%d-%d", userID, sourceDay, offset), map[string]any{
			"event":      "cashback_credited",
			"user_id":    userID,
			"source_day": sourceDay,
			"day_offset": offset,
			"amount":     amount.InexactFloat64(),
			"trace_id":   traceID,
		}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	metrics.RecordCashback(cashbackKind(offset), "success", amount.InexactFloat64())
	fmt.Printf("[Cashback] 已入账: user_id=%d, source_day=%d, offset=%d, amount=%s, trace_id=%s\n",
		userID, sourceDay, offset, amount.String(), traceID)
	return nil
}
