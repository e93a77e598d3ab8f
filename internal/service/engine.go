package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common/logger"
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	infmysql "github.com/rahul3988/cp-win5-sub001/internal/infra/mysql"
	infrds "github.com/rahul3988/cp-win5-sub001/internal/infra/redis"
	"github.com/rahul3988/cp-win5-sub001/internal/metrics"
	"github.com/rahul3988/cp-win5-sub001/internal/model"
	"github.com/rahul3988/cp-win5-sub001/internal/state"

	"github.com/google/uuid"
	decimal "github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine 回合引擎：驱动状态机时间线，并把每个阶段的进入动作落到数据库
// 同时充当状态机的敞口来源（权威数据取自 MySQL 聚合）
type Engine struct {
	machine *state.Machine
	settle  SettlementService
}

// 阶段进入动作的数据库操作超时
const phaseOpTimeout = 5 * time.Second

// 每批补偿结算的回合上限
const recoverBatchLimit = 20

var ErrEngineNotRunning = errors.New("round engine not running")

var defaultEngine *Engine

// SetDefault 注册全局引擎实例（main 启动时调用一次）
func SetDefault(e *Engine) { defaultEngine = e }

// Default 取全局引擎实例（接口层使用）
func Default() *Engine { return defaultEngine }

func NewEngine() *Engine {
	return &Engine{settle: NewSettlementService()}
}

// Start 构建状态机并启动时间线
// 回合序号接着库里最大序号继续；启动前先补偿一轮历史未结算回合
func (e *Engine) Start(ctx context.Context) error {
	gameCfg := config.Get().Game

	maxNo, err := model.MaxRoundNo(ctx, infmysql.SQLX())
	if err != nil {
		return fmt.Errorf("load max round no: %w", err)
	}

	d := state.Durations{
		Betting:    gameCfg.BettingSec,
		SpinPrep:   gameCfg.SpinPrepSec,
		Spinning:   gameCfg.SpinningSec,
		Result:     gameCfg.ResultSec,
		Transition: gameCfg.TransitionSec,
	}
	e.machine = state.NewMachine(d, e, e, maxNo+1)

	// 启动恢复：进程崩溃遗留的已开奖未结算回合
	e.recoverUnsettled(ctx, "startup")

	e.machine.StartCycle()
	logger.Info("round engine started",
		zap.Int64("start_round", maxNo+1),
		zap.Int("betting_sec", d.Betting))
	return nil
}

// StopTimeline 平滑停止时间线（进程退出用；不取消回合）
func (e *Engine) StopTimeline() {
	if e.machine != nil {
		e.machine.Stop()
	}
}

// Running 时间线是否在跑
func (e *Engine) Running() bool { return e.machine != nil && e.machine.Running() }

// GetCurrentPhase 当前阶段名
func (e *Engine) GetCurrentPhase() string {
	if e.machine == nil {
		return ""
	}
	return e.machine.GetCurrentPhase()
}

// GetTimeRemaining 当前阶段剩余秒数
func (e *Engine) GetTimeRemaining() int {
	if e.machine == nil {
		return 0
	}
	return e.machine.GetTimeRemaining()
}

// GetCurrentRoundNumber 当前回合序号
func (e *Engine) GetCurrentRoundNumber() int64 {
	if e.machine == nil {
		return 0
	}
	return e.machine.CurrentRound()
}

// GetSnapshot 阶段快照
func (e *Engine) GetSnapshot() state.Snapshot {
	if e.machine == nil {
		return state.Snapshot{}
	}
	return e.machine.GetSnapshot()
}

// ForceNextWinningValue 登记强制开奖指令并落审计
// targetRound<=0 表示下一次备奖生效
func (e *Engine) ForceNextWinningValue(ctx context.Context, value int8, targetRound int64, operator, traceID string) error {
	if e.machine == nil {
		return ErrEngineNotRunning
	}
	if err := e.machine.ForceNextWinningValue(value, targetRound); err != nil {
		return err
	}
	aud := &model.RoundEventAudit{
		RoundNo:   targetRound,
		EventType: model.AuditForceValue,
		PrevPhase: e.machine.GetCurrentPhase(),
		NextPhase: e.machine.GetCurrentPhase(),
		Operator:  operator,
		Source:    "admin",
		Payload:   toJSON(map[string]any{"value": value, "target_round": targetRound}),
		TraceID:   traceID,
	}
	if err := aud.Insert(ctx, infmysql.SQLX()); err != nil {
		logger.Error("force value audit failed", zap.Error(err), zap.String("trace_id", traceID))
	}
	fmt.Printf("[Engine] 强制开奖指令已登记: value=%d, target_round=%d, operator=%s, trace_id=%s\n",
		value, targetRound, operator, traceID)
	return nil
}

// ClearForcedValue 清除未消费的强制指令
func (e *Engine) ClearForcedValue(ctx context.Context, operator, traceID string) error {
	if e.machine == nil {
		return ErrEngineNotRunning
	}
	e.machine.ClearForcedValue()
	aud := &model.RoundEventAudit{
		RoundNo:   e.machine.CurrentRound(),
		EventType: model.AuditClearForce,
		PrevPhase: e.machine.GetCurrentPhase(),
		NextPhase: e.machine.GetCurrentPhase(),
		Operator:  operator,
		Source:    "admin",
		Payload:   "{}",
		TraceID:   traceID,
	}
	if err := aud.Insert(ctx, infmysql.SQLX()); err != nil {
		logger.Error("clear force audit failed", zap.Error(err), zap.String("trace_id", traceID))
	}
	return nil
}

// ForcePhase 管理用强制跳转阶段
func (e *Engine) ForcePhase(target string) error {
	if e.machine == nil || !e.machine.Running() {
		return ErrEngineNotRunning
	}
	if state.PhaseCode(target) == 0 {
		return fmt.Errorf("unknown phase: %s", target)
	}
	e.machine.ForcePhaseTransition(target)
	metrics.RecordPhaseTransition(target, "admin")
	return nil
}

// Exposure 实现 state.ExposureSource：按开奖值聚合待结算注单的应派总额
func (e *Engine) Exposure(roundNo int64) ([state.DrawValueCount]decimal.Decimal, error) {
	var exp [state.DrawValueCount]decimal.Decimal

	ctx, cancel := context.WithTimeout(context.Background(), phaseOpTimeout)
	defer cancel()

	rows, err := model.ExposureByValue(ctx, infmysql.SQLX(), roundNo)
	if err != nil {
		return exp, err
	}
	for _, r := range rows {
		if r.BetValue >= 0 && int(r.BetValue) < state.DrawValueCount {
			exp[r.BetValue] = decimal.NewFromFloat(r.Payout)
		}
	}

	// 展示用缓存（失败不影响主流程）
	if r := infrds.Client(); r != nil {
		m := make(map[string]float64, state.DrawValueCount)
		for v := 0; v < state.DrawValueCount; v++ {
			m[fmt.Sprintf("%d", v)] = exp[v].InexactFloat64()
		}
		if b, e2 := json.Marshal(m); e2 == nil {
			_ = r.Set(ctx, infrds.RoundExposureKey(roundNo), b, 2*time.Minute).Err()
		}
	}
	return exp, nil
}

// OnPhaseEnter 实现 state.Listener：把阶段进入动作落库
// 在推进协程内同步执行；失败只记录，时间线继续走（结算有补偿机制兜底）
func (e *Engine) OnPhaseEnter(ph string, roundNo int64, winning int8, forced bool) {
	ctx, cancel := context.WithTimeout(context.Background(), phaseOpTimeout)
	defer cancel()

	traceID := uuid.New().String()
	metrics.RecordPhaseTransition(ph, "timer")

	var err error
	switch ph {
	case state.PhaseBetting:
		err = e.onBetting(ctx, roundNo, traceID)
	case state.PhaseSpinPrep:
		err = e.onSpinPrep(ctx, roundNo, winning, forced, traceID)
	case state.PhaseSpinning:
		err = e.onSpinning(ctx, roundNo, traceID)
	case state.PhaseResult:
		err = e.onResult(ctx, roundNo, winning, forced, traceID)
	case state.PhaseTransition:
		err = e.onTransition(ctx, roundNo, traceID)
	}
	if err != nil {
		logger.Error("phase enter handling failed",
			zap.String("phase", ph),
			zap.Int64("round_no", roundNo),
			zap.String("trace_id", traceID),
			zap.Error(err))
		fmt.Printf("[Engine] 阶段处理失败: phase=%s, round_no=%d, error=%v, trace_id=%s\n",
			ph, roundNo, err, traceID)
	}
}

// onBetting 开新回合：建回合记录、广播事件、缓存投注窗口
func (e *Engine) onBetting(ctx context.Context, roundNo int64, traceID string) error {
	gameCfg := config.Get().Game
	now := time.Now().UnixMilli()
	betStop := now + int64(gameCfg.BettingSec)*1000

	tx, err := infmysql.SQLX().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := model.CreateRound(ctx, tx, roundNo, GameID, now, betStop, traceID); err != nil {
		return err
	}
	if err := model.CreateOutbox(ctx, tx, model.TopicRoundPhase, fmt.Sprintf("phase-%d-betting", roundNo), map[string]any{
		"event":          "round_started",
		"round_no":       roundNo,
		"phase":          state.PhaseBetting,
		"bet_start_time": now,
		"bet_stop_time":  betStop,
		"trace_id":       traceID,
	}); err != nil {
		return err
	}
	aud := &model.RoundEventAudit{
		RoundNo:   roundNo,
		EventType: model.AuditRoundStart,
		PrevPhase: state.PhaseTransition,
		NextPhase: state.PhaseBetting,
		Operator:  "system",
		Source:    "engine",
		Payload:   toJSON(map[string]any{"bet_start_time": now, "bet_stop_time": betStop}),
		TraceID:   traceID,
	}
	if err := aud.Insert(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	// 事务提交后写 Redis（避免未提交数据被读取）
	if r := infrds.Client(); r != nil {
		val := map[string]any{
			"round_no":       roundNo,
			"phase":          state.PhaseBetting,
			"bet_start_time": now,
			"bet_stop_time":  betStop,
		}
		if b, e2 := json.Marshal(val); e2 == nil {
			ttl := time.Duration(gameCfg.BettingSec+60) * time.Second
			_ = r.Set(ctx, infrds.RoundInfoKey(roundNo), b, ttl).Err()
		}
	}

	fmt.Printf("[Engine] 新回合开始: round_no=%d, bet_stop=%d, trace_id=%s\n", roundNo, betStop, traceID)
	return nil
}

// onSpinPrep 封盘备奖：开奖值已由状态机确定
func (e *Engine) onSpinPrep(ctx context.Context, roundNo int64, winning int8, forced bool, traceID string) error {
	mode := "exposure"
	if forced {
		mode = "forced"
	}
	metrics.RecordWinningSelection(mode, winning)

	tx, err := infmysql.SQLX().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := model.UpdateRoundStatus(ctx, tx, roundNo, state.PhaseCode(state.PhaseSpinPrep)); err != nil {
		return err
	}
	aud := &model.RoundEventAudit{
		RoundNo:   roundNo,
		EventType: model.AuditSpinPrep,
		PrevPhase: state.PhaseBetting,
		NextPhase: state.PhaseSpinPrep,
		Operator:  "system",
		Source:    "engine",
		// 开奖值此时不出审计明细，防止提前泄露；是否强制留痕
		Payload: toJSON(map[string]any{"selection_mode": mode}),
		TraceID: traceID,
	}
	if err := aud.Insert(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// onSpinning 转盘动画开始
func (e *Engine) onSpinning(ctx context.Context, roundNo int64, traceID string) error {
	tx, err := infmysql.SQLX().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := model.SetSpinStartNow(ctx, tx, roundNo); err != nil {
		return err
	}
	aud := &model.RoundEventAudit{
		RoundNo:   roundNo,
		EventType: model.AuditSpinning,
		PrevPhase: state.PhaseSpinPrep,
		NextPhase: state.PhaseSpinning,
		Operator:  "system",
		Source:    "engine",
		Payload:   "{}",
		TraceID:   traceID,
	}
	if err := aud.Insert(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// onResult 公布开奖值：落库并广播
func (e *Engine) onResult(ctx context.Context, roundNo int64, winning int8, forced bool, traceID string) error {
	if winning < 0 {
		// 开奖值未定属于异常（理论上备奖阶段必定出值）；留给补偿结算处理
		return fmt.Errorf("winning value undetermined at result phase: round_no=%d", roundNo)
	}

	tx, err := infmysql.SQLX().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := model.SetWinningValue(ctx, tx, roundNo, winning, forced); err != nil {
		return err
	}
	if err := model.CreateOutbox(ctx, tx, model.TopicRoundPhase, fmt.Sprintf("phase-%d-result", roundNo), map[string]any{
		"event":         "round_result",
		"round_no":      roundNo,
		"phase":         state.PhaseResult,
		"winning_value": winning,
		"trace_id":      traceID,
	}); err != nil {
		return err
	}
	aud := &model.RoundEventAudit{
		RoundNo:   roundNo,
		EventType: model.AuditResult,
		PrevPhase: state.PhaseSpinning,
		NextPhase: state.PhaseResult,
		Operator:  "system",
		Source:    "engine",
		Payload:   toJSON(map[string]any{"winning_value": winning, "is_forced": forced}),
		TraceID:   traceID,
	}
	if err := aud.Insert(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if r := infrds.Client(); r != nil {
		val := map[string]any{
			"round_no":      roundNo,
			"winning_value": winning,
			"is_settled":    0,
		}
		if b, e2 := json.Marshal(val); e2 == nil {
			_ = r.Set(ctx, infrds.RoundResultKey(roundNo), b, 10*time.Minute).Err()
		}
	}

	fmt.Printf("[Engine] 开奖公布: round_no=%d, winning_value=%d, forced=%v, trace_id=%s\n",
		roundNo, winning, forced, traceID)
	return nil
}

// onTransition 清场：结算本回合，并顺带补偿历史遗留
func (e *Engine) onTransition(ctx context.Context, roundNo int64, traceID string) error {
	tx, err := infmysql.SQLX().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := model.UpdateRoundStatus(ctx, tx, roundNo, state.PhaseCode(state.PhaseTransition)); err != nil {
		_ = tx.Rollback()
		return err
	}
	aud := &model.RoundEventAudit{
		RoundNo:   roundNo,
		EventType: model.AuditTransition,
		PrevPhase: state.PhaseResult,
		NextPhase: state.PhaseTransition,
		Operator:  "system",
		Source:    "engine",
		Payload:   "{}",
		TraceID:   traceID,
	}
	if err := aud.Insert(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	// 结算采用独立超时：大回合的注单量可能超过阶段时长
	settleCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.settle.SettleRound(settleCtx, roundNo, traceID); err != nil {
		// 开奖值缺失等异常回合留给补偿；不中断时间线
		logger.Error("round settlement failed, will retry on next transition",
			zap.Int64("round_no", roundNo), zap.Error(err), zap.String("trace_id", traceID))
	} else {
		if err := model.CompleteRound(settleCtx, infmysql.SQLX(), roundNo); err != nil {
			logger.Error("complete round failed", zap.Int64("round_no", roundNo), zap.Error(err))
		}
	}

	// 补偿历史遗留的已开奖未结算回合
	e.recoverUnsettled(settleCtx, "transition")
	return nil
}

// recoverUnsettled 扫描已开奖未结算的回合逐个补结算
// 单回合失败只记录，不影响其他回合
func (e *Engine) recoverUnsettled(ctx context.Context, source string) {
	rounds, err := model.ListUnsettledRevealedRounds(ctx, infmysql.SQLX(), recoverBatchLimit)
	if err != nil {
		logger.Error("list unsettled rounds failed", zap.String("source", source), zap.Error(err))
		return
	}
	for _, rd := range rounds {
		traceID := uuid.New().String()
		if err := e.settle.SettleRound(ctx, rd.RoundNo, traceID); err != nil {
			logger.Error("recover settlement failed",
				zap.Int64("round_no", rd.RoundNo), zap.String("source", source), zap.Error(err))
			continue
		}
		if err := model.CompleteRound(ctx, infmysql.SQLX(), rd.RoundNo); err != nil {
			logger.Error("complete recovered round failed", zap.Int64("round_no", rd.RoundNo), zap.Error(err))
		}
		metrics.RecordPhaseTransition(state.PhaseTransition, "recovery")
		fmt.Printf("[Engine] 补偿结算完成: round_no=%d, source=%s\n", rd.RoundNo, source)
	}
}

// EmergencyStop 紧急停止：停时间线，取消当前回合并按原路退款
func (e *Engine) EmergencyStop(ctx context.Context, operator, reason, traceID string) error {
	if e.machine == nil {
		return ErrEngineNotRunning
	}

	roundNo := e.machine.CurrentRound()
	phase := e.machine.GetCurrentPhase()
	e.machine.Stop()

	fmt.Printf("[Engine] 紧急停止: round_no=%d, phase=%s, operator=%s, reason=%s, trace_id=%s\n",
		roundNo, phase, operator, reason, traceID)

	tx, err := infmysql.SQLX().BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	round, err := model.GetRoundForUpdate(ctx, tx, roundNo)
	if err != nil {
		// 回合还没建出来（刚停在 transition 边界）也算停止成功
		if strings.Contains(err.Error(), "no rows") {
			return tx.Commit()
		}
		return err
	}

	// 终态回合无需善后
	if round.Status == model.RoundStatusCompleted || round.Status == model.RoundStatusCancelled || round.IsSettled == 1 {
		return tx.Commit()
	}

	bets, err := model.ListPendingByRoundForUpdate(ctx, tx, roundNo)
	if err != nil {
		return err
	}

	// 退款按原路：根据下注扣款账本逐钱包冲正
	// 同一订单组(bet_group)只退一次
	settledAt := time.Now().UnixMilli()
	type walletRefund struct{ betting, gaming decimal.Decimal }
	refunds := make(map[int64]*walletRefund)
	currency := config.Get().Game.Currency
	seenGroup := make(map[string]bool)

	for i := range bets {
		b := bets[i]
		if err := model.UpdateBetSettlement(ctx, tx, b.BillNo, model.BetRefunded, 0, settledAt); err != nil {
			return err
		}
		if seenGroup[b.BetGroup] {
			continue
		}
		seenGroup[b.BetGroup] = true
		currency = b.Currency

		rows, err := model.ListBetDeductions(ctx, tx, b.BetGroup)
		if err != nil {
			return err
		}
		wr, ok := refunds[b.UserID]
		if !ok {
			wr = &walletRefund{betting: decimal.Zero, gaming: decimal.Zero}
			refunds[b.UserID] = wr
		}
		for _, lr := range rows {
			amt := decimal.NewFromFloat(lr.Amount)
			if lr.Wallet == model.LedgerWalletGaming {
				wr.gaming = wr.gaming.Add(amt)
			} else {
				wr.betting = wr.betting.Add(amt)
			}
		}
	}

	for userID, wr := range refunds {
		player, err := model.GetPlayerByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		bettingDec := decimal.NewFromFloat(player.BettingBalance)
		gamingDec := decimal.NewFromFloat(player.GamingBalance)
		bettingAfter := bettingDec.Add(wr.betting).Round(2)
		gamingAfter := gamingDec.Add(wr.gaming).Round(2)

		if err := model.UpdatePlayerBalances(ctx, tx, userID,
			bettingAfter.InexactFloat64(), gamingAfter.InexactFloat64()); err != nil {
			return err
		}
		if wr.betting.GreaterThan(decimal.Zero) {
			ledger := &model.WalletLedger{
				UserID:       userID,
				Wallet:       model.LedgerWalletBetting,
				BizType:      model.LedgerRefund,
				BizTypeStr:   "refund",
				Amount:       wr.betting.Round(2).InexactFloat64(),
				BeforeAmount: bettingDec.Round(2).InexactFloat64(),
				AfterAmount:  bettingAfter.InexactFloat64(),
				Currency:     currency,
				RoundNo:      roundNo,
				GameID:       GameID,
				Remark:       "emergency stop refund",
				TraceID:      traceID,
			}
			if err := ledger.Insert(ctx, tx); err != nil {
				return err
			}
		}
		if wr.gaming.GreaterThan(decimal.Zero) {
			ledger := &model.WalletLedger{
				UserID:       userID,
				Wallet:       model.LedgerWalletGaming,
				BizType:      model.LedgerRefund,
				BizTypeStr:   "refund",
				Amount:       wr.gaming.Round(2).InexactFloat64(),
				BeforeAmount: gamingDec.Round(2).InexactFloat64(),
				AfterAmount:  gamingAfter.InexactFloat64(),
				Currency:     currency,
				RoundNo:      roundNo,
				GameID:       GameID,
				Remark:       "emergency stop refund",
				TraceID:      traceID,
			}
			if err := ledger.Insert(ctx, tx); err != nil {
				return err
			}
		}
	}

	if err := model.CancelRound(ctx, tx, roundNo); err != nil {
		return err
	}
	if err := model.CreateOutbox(ctx, tx, model.TopicRoundCanceled, fmt.Sprintf("cancel-%d", roundNo), map[string]any{
		"event":        "round_canceled",
		"round_no":     roundNo,
		"reason":       reason,
		"refund_users": len(refunds),
		"trace_id":     traceID,
	}); err != nil {
		return err
	}
	aud := &model.RoundEventAudit{
		RoundNo:   roundNo,
		EventType: model.AuditEmergencyStop,
		PrevPhase: phase,
		NextPhase: state.PhaseTransition,
		Operator:  operator,
		Source:    "admin",
		Payload:   toJSON(map[string]any{"reason": reason, "refund_bets": len(bets)}),
		TraceID:   traceID,
	}
	if err := aud.Insert(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if r := infrds.Client(); r != nil {
		_ = r.Del(ctx, infrds.RoundInfoKey(roundNo)).Err()
		_ = r.Del(ctx, infrds.RoundExposureKey(roundNo)).Err()
	}

	fmt.Printf("[Engine] 紧急停止完成: round_no=%d, refund_bets=%d, refund_users=%d, trace_id=%s\n",
		roundNo, len(bets), len(refunds), traceID)
	return nil
}

// Resume 紧急停止后重启时间线（从新回合开始）
func (e *Engine) Resume(ctx context.Context) error {
	if e.machine == nil {
		return ErrEngineNotRunning
	}
	if e.machine.Running() {
		return nil
	}
	return e.Start(ctx)
}
