package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common"
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	infmysql "github.com/rahul3988/cp-win5-sub001/internal/infra/mysql"
	infrds "github.com/rahul3988/cp-win5-sub001/internal/infra/redis"
	"github.com/rahul3988/cp-win5-sub001/internal/metrics"
	"github.com/rahul3988/cp-win5-sub001/internal/model"
	"github.com/rahul3988/cp-win5-sub001/internal/state"

	decimal "github.com/shopspring/decimal"
)

type SettlementService interface {
	SettleRound(ctx context.Context, roundNo int64, traceID string) error
}

type settlementService struct{}

func NewSettlementService() SettlementService { return &settlementService{} }

var (
	ErrRoundNotFound       = errors.New("round not found")
	ErrInvalidStateSettle  = errors.New("settlement not allowed in current phase")
	ErrWinningValueMissing = errors.New("winning value not recorded for round")
)

// betOutcome 单行注单的结算判定
type betOutcome struct {
	Status        int8            // BetWon / BetLost
	Payout        decimal.Decimal // 命中派彩，入 betting 钱包
	Immediate     decimal.Decimal // combined 输单即时返现，入 gaming 钱包
	Deferred      decimal.Decimal // betting 输单延迟返现总额（按日摊还）
	ForfeitGaming bool            // combined 赢单触发 gaming 清零
}

// settleBet 按开奖值与出资路径判定单行注单的钱包路由
// 派彩金额用下注时的 potential_payout 快照，不读当前配置的赔率
func settleBet(b model.Bet, winning int8, cashbackPct decimal.Decimal) betOutcome {
	if b.BetValue == winning {
		return betOutcome{
			Status:        model.BetWon,
			Payout:        decimal.NewFromFloat(b.PotentialPayout).Round(2),
			ForfeitGaming: b.Wallet == model.WalletCombined,
		}
	}

	oc := betOutcome{Status: model.BetLost}
	cb := decimal.NewFromFloat(b.Stake).Mul(cashbackPct).Round(2)
	if cb.LessThanOrEqual(decimal.Zero) {
		return oc
	}
	if b.Wallet == model.WalletCombined {
		oc.Immediate = cb
	} else {
		oc.Deferred = cb
	}
	return oc
}

// SettleRound 结算一个回合：按开奖值判定每行注单输赢，派彩入账，落返现，记录审计
// 三重幂等保护：is_settled 标志、settlement_log 唯一键、注单 settled_at 守卫
//
// 钱包路由规则：
//  1. 赢 + betting 出资  -> 派彩入 betting 钱包
//  2. 赢 + combined 出资 -> 派彩入 betting 钱包，且 gaming 余额清零（赠金随提现资格作废）
//  3. 输 + betting 出资  -> 注金 10% 生成延迟返现（9 日摊还入 gaming）
//  4. 输 + combined 出资 -> 注金 10% 立即返入 gaming 钱包
func (s *settlementService) SettleRound(ctx context.Context, roundNo int64, traceID string) error {
	if roundNo <= 0 {
		return ErrBadRequest
	}

	gameCfg := config.Get().Game

	start := time.Now()
	resultLabel := "fail"
	winLabel := int8(-1)
	defer func() { metrics.RecordSettlement(resultLabel, winLabel, start) }()

	fmt.Printf("[Settle] 收到结算请求: round_no=%d, trace_id=%s\n", roundNo, traceID)

	tx, err := infmysql.SQLX().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// ========== 幂等性保护 #1: 锁定回合并检查结算状态 ==========
	round, err := model.GetRoundForUpdate(ctx, tx, roundNo)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return ErrRoundNotFound
		}
		return err
	}

	fmt.Printf("[Settle]  当前回合: status=%d, is_settled=%d, winning_value=%d, round_no=%d, trace_id=%s\n",
		round.Status, round.IsSettled, round.WinningValue, roundNo, traceID)

	// 已经结算过，直接返回成功（幂等）
	if round.IsSettled == 1 {
		fmt.Printf("[Settle] 该回合已结算，跳过重复结算: round_no=%d, trace_id=%s\n", roundNo, traceID)
		resultLabel = "skipped"
		winLabel = round.WinningValue
		return nil
	}

	// 仅允许 result(4) / transition(5) 阶段结算；取消的回合走退款流程
	ph := state.CodeToPhase(round.Status)
	if ph != state.PhaseResult && ph != state.PhaseTransition {
		return ErrInvalidStateSettle
	}

	// 开奖值缺失属于异常回合：记录后跳过，等待引擎下一轮补结算
	if round.WinningValue < 0 {
		fmt.Printf("[Settle] 开奖值缺失，跳过结算等待补偿: round_no=%d, trace_id=%s\n", roundNo, traceID)
		return ErrWinningValueMissing
	}
	winning := round.WinningValue
	winLabel = winning

	// ========== 幂等性保护 #2: 创建结算日志（唯一索引防重） ==========
	settlementLog := &model.SettlementLog{
		RoundNo:      roundNo,
		WinningValue: winning,
		IsForced:     round.IsForced,
		TotalBets:    0, // 稍后回填
		TotalPayout:  0, // 稍后回填
		Operator:     "system",
		TraceID:      traceID,
	}
	if err := model.CreateSettlementLog(ctx, tx, settlementLog); err != nil {
		if isMySQLDuplicateKeyError(err) {
			fmt.Printf("[Settle] 结算日志已存在，跳过重复结算: round_no=%d, trace_id=%s\n", roundNo, traceID)
			resultLabel = "skipped"
			return nil
		}
		fmt.Printf("[Settle] 创建结算日志失败: round_no=%d, error=%v, trace_id=%s\n", roundNo, err, traceID)
		return err
	}

	// 查询并锁定待结算注单（settled_at=0 为第三道守卫）
	bets, err := model.ListPendingByRoundForUpdate(ctx, tx, roundNo)
	if err != nil {
		return err
	}
	fmt.Printf("[Settle]  找到 %d 行待结算注单: round_no=%d, winning_value=%d, trace_id=%s\n",
		len(bets), roundNo, winning, traceID)

	cashbackPct := decimal.NewFromFloat(gameCfg.CashbackPercent)
	cashbackDays := int64(gameCfg.CashbackDays)
	settledAt := time.Now().UnixMilli()

	// 第一步：逐行判定输赢并更新注单
	// 派彩金额取下注时落库的 potential_payout 快照，赔率热更不影响已受理注单
	totalWagered := decimal.Zero
	totalPaid := decimal.Zero
	outcomes := make([]betOutcome, len(bets))
	for i := range bets {
		b := bets[i]
		totalWagered = totalWagered.Add(decimal.NewFromFloat(b.Stake))

		oc := settleBet(b, winning, cashbackPct)
		outcomes[i] = oc
		totalPaid = totalPaid.Add(oc.Payout)

		if err := model.UpdateBetSettlement(ctx, tx, b.BillNo, oc.Status, oc.Payout.InexactFloat64(), settledAt); err != nil {
			return err
		}
	}

	// 第二步：按用户聚合（每个用户只锁定一次）
	type userSettlement struct {
		userID         int64
		payoutTotal    decimal.Decimal // 派彩入 betting
		immediateTotal decimal.Decimal // combined 输单即时返现入 gaming
		forfeitGaming  bool            // combined 赢单触发 gaming 清零
		payoutBets     []model.Bet
		payoutAmounts  []decimal.Decimal
		cashbackBets   []model.Bet
		cashbackAmts   []decimal.Decimal
	}

	userMap := make(map[int64]*userSettlement)
	getUs := func(uid int64) *userSettlement {
		us, ok := userMap[uid]
		if !ok {
			us = &userSettlement{userID: uid, payoutTotal: decimal.Zero, immediateTotal: decimal.Zero}
			userMap[uid] = us
		}
		return us
	}

	for i := range bets {
		b := bets[i]
		oc := outcomes[i]

		if oc.Status == model.BetWon {
			us := getUs(b.UserID)
			us.payoutTotal = us.payoutTotal.Add(oc.Payout)
			us.payoutBets = append(us.payoutBets, b)
			us.payoutAmounts = append(us.payoutAmounts, oc.Payout)
			if oc.ForfeitGaming {
				us.forfeitGaming = true
			}
			continue
		}

		if oc.Immediate.GreaterThan(decimal.Zero) {
			us := getUs(b.UserID)
			us.immediateTotal = us.immediateTotal.Add(oc.Immediate)
			us.cashbackBets = append(us.cashbackBets, b)
			us.cashbackAmts = append(us.cashbackAmts, oc.Immediate)
		}

		if oc.Deferred.GreaterThan(decimal.Zero) {
			// betting 出资的输单：生成延迟返现计划（每日摊还，不动今日余额）
			daily := oc.Deferred.Div(decimal.NewFromInt(cashbackDays)).Round(2)
			dc := &model.DeferredCashback{
				BillNo:          b.BillNo,
				UserID:          b.UserID,
				RoundNo:         roundNo,
				TotalAmount:     oc.Deferred.InexactFloat64(),
				DailyAmount:     daily.InexactFloat64(),
				RemainingAmount: oc.Deferred.InexactFloat64(),
				Status:          model.CashbackActive,
				TraceID:         traceID,
			}
			if err := dc.Insert(ctx, tx); err != nil {
				// bill_no 唯一键保证重复结算不会重复建计划
				if !isMySQLDuplicateKeyError(err) {
					return err
				}
			}
		}
	}

	// 第三步：逐用户锁定并应用余额变化 + 账本
	for _, us := range userMap {
		player, err := model.GetPlayerByIDForUpdate(ctx, tx, us.userID)
		if err != nil {
			return err
		}

		bettingDec := decimal.NewFromFloat(player.BettingBalance)
		gamingDec := decimal.NewFromFloat(player.GamingBalance)

		// 派彩入 betting：逐单写账本，余额累计用 decimal 保证精度
		currentBetting := bettingDec
		for idx, b := range us.payoutBets {
			win := us.payoutAmounts[idx]
			before := currentBetting
			currentBetting = currentBetting.Add(win).Round(2)
			ledger := &model.WalletLedger{
				UserID:       us.userID,
				Wallet:       model.LedgerWalletBetting,
				BizType:      model.LedgerPayout,
				BizTypeStr:   "payout",
				Amount:       win.InexactFloat64(),
				BeforeAmount: before.Round(2).InexactFloat64(),
				AfterAmount:  currentBetting.InexactFloat64(),
				Currency:     b.Currency,
				BillNo:       b.BillNo,
				RoundNo:      roundNo,
				GameID:       GameID,
				Remark:       "wager payout",
				TraceID:      traceID,
			}
			if err := ledger.Insert(ctx, tx); err != nil {
				return err
			}
		}

		currentGaming := gamingDec
		// combined 赢单：gaming 赠金作废清零（先清零，后叠加本回合即时返现）
		if us.forfeitGaming && currentGaming.GreaterThan(decimal.Zero) {
			ledger := &model.WalletLedger{
				UserID:       us.userID,
				Wallet:       model.LedgerWalletGaming,
				BizType:      model.LedgerAdjust,
				BizTypeStr:   "adjust",
				Amount:       currentGaming.Round(2).InexactFloat64(),
				BeforeAmount: currentGaming.Round(2).InexactFloat64(),
				AfterAmount:  0,
				Currency:     gameCfg.Currency,
				RoundNo:      roundNo,
				GameID:       GameID,
				Remark:       "gaming balance forfeited on payout",
				TraceID:      traceID,
			}
			if err := ledger.Insert(ctx, tx); err != nil {
				return err
			}
			currentGaming = decimal.Zero
		}

		// combined 输单即时返现入 gaming
		for idx, b := range us.cashbackBets {
			cb := us.cashbackAmts[idx]
			before := currentGaming
			currentGaming = currentGaming.Add(cb).Round(2)
			ledger := &model.WalletLedger{
				UserID:       us.userID,
				Wallet:       model.LedgerWalletGaming,
				BizType:      model.LedgerCashback,
				BizTypeStr:   "cashback",
				Amount:       cb.InexactFloat64(),
				BeforeAmount: before.Round(2).InexactFloat64(),
				AfterAmount:  currentGaming.InexactFloat64(),
				Currency:     b.Currency,
				BillNo:       b.BillNo,
				RoundNo:      roundNo,
				GameID:       GameID,
				Remark:       "loss cashback (immediate)",
				TraceID:      traceID,
			}
			if err := ledger.Insert(ctx, tx); err != nil {
				return err
			}
			metrics.RecordCashback("immediate", "success", cb.InexactFloat64())
		}

		if err := model.UpdatePlayerBalances(ctx, tx, us.userID,
			currentBetting.Round(2).InexactFloat64(), currentGaming.Round(2).InexactFloat64()); err != nil {
			return err
		}
	}

	// 回合级结算事件写入 Outbox（事务内，确保与数据库状态一致）
	if err := model.CreateOutbox(ctx, tx, model.TopicRoundSettled, fmt.Sprintf("settle-%d", roundNo), map[string]any{
		"event":         "round_settled",
		"round_no":      roundNo,
		"winning_value": winning,
		"is_forced":     round.IsForced,
		"total_bets":    len(bets),
		"total_wagered": totalWagered.Round(2).InexactFloat64(),
		"total_payout":  totalPaid.Round(2).InexactFloat64(),
		"trace_id":      traceID,
	}); err != nil {
		fmt.Printf("[Settle]  写入 Outbox 失败: round_no=%d, error=%v, trace_id=%s\n", roundNo, err, traceID)
		return err
	}

	// ========== 幂等性保护 #3: 标记为已结算并回填统计 ==========
	if err := model.MarkRoundSettled(ctx, tx, roundNo,
		totalWagered.Round(2).InexactFloat64(), totalPaid.Round(2).InexactFloat64()); err != nil {
		return err
	}
	if err := model.UpdateSettlementStats(ctx, tx, roundNo, len(bets), totalPaid.Round(2).InexactFloat64()); err != nil {
		fmt.Printf("[Settle] 更新结算日志统计失败: round_no=%d, error=%v, trace_id=%s\n", roundNo, err, traceID)
		return err
	}

	// 审计事件 - 结算
	aud := &model.RoundEventAudit{
		RoundNo:   roundNo,
		EventType: model.AuditResult,
		PrevPhase: state.PhaseResult,
		NextPhase: state.PhaseResult,
		Operator:  "system",
		Source:    "engine",
		Payload: toJSON(map[string]any{
			"winning_value": winning,
			"is_forced":     round.IsForced,
			"total_bets":    len(bets),
			"total_wagered": totalWagered.Round(2).InexactFloat64(),
			"total_payout":  totalPaid.Round(2).InexactFloat64(),
		}),
		TraceID: traceID,
	}
	if err := aud.Insert(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Settle] 提交事务失败: round_no=%d, error=%v, trace_id=%s\n", roundNo, err, traceID)
		return err
	}

	// 开奖结果写入 Redis，便于查询/回放
	if r := infrds.Client(); r != nil {
		val := map[string]any{
			"round_no":      roundNo,
			"winning_value": winning,
			"is_settled":    1,
			"total_bets":    len(bets),
			"total_payout":  totalPaid.Round(2).InexactFloat64(),
		}
		if b, e := json.Marshal(val); e == nil {
			_ = r.Set(ctx, infrds.RoundResultKey(roundNo), b, 10*time.Minute).Err()
		}
		_ = r.Del(ctx, infrds.RoundExposureKey(roundNo)).Err()
	}

	resultLabel = "success"
	fmt.Printf("[Settle] 结算完成: round_no=%d, winning_value=%d, total_bets=%d, total_payout=%s, trace_id=%s\n",
		roundNo, winning, len(bets), totalPaid.Round(2).String(), traceID)
	return nil
}

func toJSON(v any) string {
	s, _ := common.JsonMarshalToString(v)
	return s
}

// isMySQLDuplicateKeyError 判断是否为 MySQL 唯一键冲突错误
func isMySQLDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	// MySQL 错误码 1062: Duplicate entry
	return strings.Contains(errMsg, "Error 1062") ||
		strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "duplicate key")
}

var ErrBadRequest = errors.New("bad request")
