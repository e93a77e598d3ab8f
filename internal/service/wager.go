package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	chelper "github.com/rahul3988/cp-win5-sub001/common/helper"
	"github.com/rahul3988/cp-win5-sub001/internal/config"
	infmysql "github.com/rahul3988/cp-win5-sub001/internal/infra/mysql"
	infrds "github.com/rahul3988/cp-win5-sub001/internal/infra/redis"
	"github.com/rahul3988/cp-win5-sub001/internal/metrics"
	"github.com/rahul3988/cp-win5-sub001/internal/model"
	"github.com/rahul3988/cp-win5-sub001/internal/payout"
	"github.com/rahul3988/cp-win5-sub001/internal/state"

	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	decimal "github.com/shopspring/decimal"
)

// GameID 单游戏部署下的固定游戏标识
const GameID = "win5"

// WagerInput 输入参数
// Value 仅 number 玩法有意义（0-9），组合玩法忽略
type WagerInput struct {
	RoundNo          int64
	PlatformID       int8   // 平台ID
	PlatformUserID   string // 平台用户ID
	PlatformUserName string // 平台用户名（可选）
	Category         int    // 玩法码 1number|2odd|3even|4small|5big|6red|7green|8violet
	Value            int    // number 玩法的目标值
	Stake            string // 名义注金（整数卢比字符串）
	IdempotencyKey   string
	TraceID          string
}

type WagerOutput struct {
	BillNo         string
	BetGroup       string
	TotalDebited   string // 实际扣款（拆分取整后，可能略高于名义注金）
	BettingBalance string // 剩余投注钱包余额
	GamingBalance  string // 剩余游戏钱包余额
	Wallet         int8   // 出资钱包 1=betting 2=combined
}

type WagerService interface {
	PlaceWager(ctx context.Context, in WagerInput) (*WagerOutput, error)
}

type wagerService struct{}

func NewWagerService() WagerService { return &wagerService{} }

const (
	// Redis 进行中锁 TTL：建议小于最短投注窗口，避免长时间阻塞重复请求
	idemLockTTL = 45 * time.Second
	// 结果缓存 TTL：用于重复请求直接返回第一次成功结果；应覆盖到大多数“短时重试”窗口
	idemResultTTL = 1 * time.Minute
)

// 默认事务超时时间，防止长事务占用资源影响并发（若上游已有 deadline，则沿用上游）
const defaultTxTimeout = 3 * time.Second

// Redis key 构造见 internal/infra/redis/keys.go
var (
	ErrDuplicateInFlight   = errors.New("duplicate request in flight")
	ErrInvalidStateWager   = errors.New("wager not allowed in current phase")
	ErrBetWindowNotStart   = errors.New("betting window not started")
	ErrBetWindowClosed     = errors.New("betting window closed")
	ErrTooManyCategories   = errors.New("category limit reached for this round")
	ErrBelowBalanceFloor   = errors.New("betting balance below minimum required to wager")
	ErrInsufficientBalance = errors.New("insufficient combined balance")
	ErrStakeNotInteger     = errors.New("stake must be a whole number")
)

// PlaceWager 处理下注主流程：
// 1. 注金与玩法校验
// 2. Redis 幂等锁 + 结果缓存
// 3. 事务内：回合窗口校验 → 玩法数限制 → 余额门槛 → betting 优先扣款 → 拆分落单 → 账本 → outbox
func (s *wagerService) PlaceWager(ctx context.Context, in WagerInput) (*WagerOutput, error) {

	start := time.Now()
	result := "fail"

	gameCfg := config.Get().Game

	// ========== 注金解析和验证==========
	// 1. 注金必须为整数卢比
	// 2. 验证最小/最大投注限制
	// 3. 玩法码与目标值合法性
	// ================================================

	amtDec, err := decimal.NewFromString(strings.TrimSpace(in.Stake))
	if err != nil {
		fmt.Printf("[Wager]  无效的注金格式: stake=%s, error=%v, trace_id=%s\n",
			in.Stake, err, in.TraceID)
		return nil, errors.New("invalid stake format")
	}

	// 注金必须为正整数
	if !amtDec.IsInteger() {
		fmt.Printf("[Wager]  注金必须为整数: stake=%s, trace_id=%s\n", in.Stake, in.TraceID)
		return nil, ErrStakeNotInteger
	}
	if amtDec.LessThanOrEqual(decimal.Zero) {
		fmt.Printf("[Wager]  注金必须大于0: stake=%s, trace_id=%s\n", in.Stake, in.TraceID)
		return nil, errors.New("stake must be positive")
	}

	minStake := decimal.NewFromInt(gameCfg.MinStake)
	if amtDec.LessThan(minStake) {
		fmt.Printf("[Wager]  注金低于最小限制: stake=%s, min=%s, trace_id=%s\n",
			in.Stake, minStake.String(), in.TraceID)
		return nil, fmt.Errorf("stake below minimum limit: %s", minStake.String())
	}
	maxStake := decimal.NewFromInt(gameCfg.MaxStake)
	if amtDec.GreaterThan(maxStake) {
		fmt.Printf("[Wager]  注金超过最大限制: stake=%s, max=%s, trace_id=%s\n",
			in.Stake, maxStake.String(), in.TraceID)
		return nil, fmt.Errorf("stake exceeds maximum limit: %s", maxStake.String())
	}

	cat, err := payout.FromCode(in.Category)
	if err != nil {
		fmt.Printf("[Wager]  无效的玩法码: category=%d, trace_id=%s\n", in.Category, in.TraceID)
		return nil, err
	}
	catStr := cat.String()
	defer func() { metrics.RecordWager(result, catStr, start) }()

	// 预展开一次以校验目标值（number 玩法的 value 必须 0-9）
	multiplier := decimal.NewFromFloat(gameCfg.Multiplier)
	subBets, totalDebit, err := payout.ExpandBet(cat, in.Value, amtDec)
	if err != nil {
		fmt.Printf("[Wager]  玩法展开失败: category=%s, value=%d, error=%v, trace_id=%s\n",
			catStr, in.Value, err, in.TraceID)
		return nil, err
	}

	// 打印接收到的投注请求
	fmt.Printf("[Wager]  收到投注请求: round_no=%d, platform_id=%d, platform_user_id=%s, stake=%s, category=%d(%s), idem_key=%s, trace_id=%s\n",
		in.RoundNo, in.PlatformID, in.PlatformUserID, in.Stake, in.Category, catStr, in.IdempotencyKey, in.TraceID)

	// Redis 快路径：若已有结果缓存，直接返回
	if r := infrds.Client(); r != nil {
		if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
			var out WagerOutput
			if json.Unmarshal(bs, &out) == nil {
				fmt.Printf("[Wager]  Redis 缓存命中: idem_key=%s, bill_no=%s, trace_id=%s\n",
					in.IdempotencyKey, out.BillNo, in.TraceID)
				return &out, nil
			}
		}
		// ========== 分布式锁实现==========
		// 1. 生成唯一锁值（UUID）防止误删其他请求的锁
		// 2. 使用 SetNX 获取锁
		// 3. 使用 Lua 脚本原子释放（仅当锁值匹配时删除）
		// ================================================

		lockValue := uuid.New().String()
		lockKey := infrds.IdemLockKey(in.IdempotencyKey)

		// 进行中锁，吸收瞬时重复
		ok, _ := r.SetNX(ctx, lockKey, lockValue, idemLockTTL).Result()
		if !ok {
			// 检查是否有缓存的结果
			if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
				var out WagerOutput
				if json.Unmarshal(bs, &out) == nil {
					fmt.Printf("[Wager] Redis 缓存命中（重复请求）: idem_key=%s, bill_no=%s, trace_id=%s\n",
						in.IdempotencyKey, out.BillNo, in.TraceID)
					return &out, nil
				}
			}
			fmt.Printf("[Wager]  重复请求进行中: idem_key=%s, trace_id=%s\n",
				in.IdempotencyKey, in.TraceID)
			return nil, ErrDuplicateInFlight
		}

		// 使用 Lua 脚本原子释放锁（仅当锁值匹配时删除）
		defer func() {
			script := `
				if redis.call("get", KEYS[1]) == ARGV[1] then
					return redis.call("del", KEYS[1])
				else
					return 0
				end
			`
			res, err := r.Eval(ctx, script, []string{lockKey}, lockValue).Result()
			if err != nil {
				fmt.Printf("[Wager] 释放分布式锁失败: idem_key=%s, error=%v, trace_id=%s\n",
					in.IdempotencyKey, err, in.TraceID)
			} else if res == int64(0) {
				fmt.Printf("[Wager] 分布式锁已被其他请求释放或过期: idem_key=%s, trace_id=%s\n",
					in.IdempotencyKey, in.TraceID)
			}
		}()
	}

	// 开启 MySQL 事务（带默认超时，防止长事务影响并发）。
	// 若上游 ctx 已设置 deadline，则沿用；否则使用默认 defaultTxTimeout。
	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := infmysql.SQLX().BeginTxx(txCtx, nil)
	if err != nil {
		fmt.Printf("[Wager] 开启事务失败: error=%v, round_no=%d, trace_id=%s\n",
			err, in.RoundNo, in.TraceID)
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// 获取或创建玩家（自动注册）
	player, err := getOrCreatePlayerInTx(txCtx, tx, in.PlatformID, in.PlatformUserID, in.PlatformUserName)
	if err != nil {
		fmt.Printf("[Wager] 获取或创建玩家失败: error=%v, platform_id=%d, platform_user_id=%s, trace_id=%s\n",
			err, in.PlatformID, in.PlatformUserID, in.TraceID)
		return nil, fmt.Errorf("failed to get or create player: %w", err)
	}

	// 生成订单号（可读格式，含内部用户ID）
	billNo := generateBillNo(player.ID)

	// 获取回合信息并锁定
	round, err := model.GetRoundForUpdate(txCtx, tx, in.RoundNo)
	if err != nil {
		fmt.Printf("[Wager]  查询回合失败: error=%v, round_no=%d, trace_id=%s\n",
			err, in.RoundNo, in.TraceID)
		return nil, fmt.Errorf("failed to get round info: %w", err)
	}

	// 校验回合阶段：仅在 betting 阶段允许下注
	if state.CodeToPhase(round.Status) != state.PhaseBetting {
		fmt.Printf("[Wager]  回合阶段不允许投注: current_status=%d, expected=betting(1), round_no=%d, trace_id=%s\n",
			round.Status, in.RoundNo, in.TraceID)
		return nil, ErrInvalidStateWager
	}

	// 验证时间窗口
	now := time.Now().UnixMilli()
	if now < round.BetStartTime {
		fmt.Printf("[Wager] 投注窗口未开始: now=%d, bet_start=%d, round_no=%d, trace_id=%s\n",
			now, round.BetStartTime, in.RoundNo, in.TraceID)
		return nil, ErrBetWindowNotStart
	}
	if now > round.BetStopTime {
		fmt.Printf("[Wager] 投注窗口已关闭: now=%d, bet_stop=%d, round_no=%d, trace_id=%s\n",
			now, round.BetStopTime, in.RoundNo, in.TraceID)
		return nil, ErrBetWindowClosed
	}

	// 玩法数限制：同一玩家同一回合最多 N 个不同玩法（重复加注同一玩法不受限）
	existing, err := model.DistinctCategories(txCtx, tx, in.RoundNo, in.PlatformID, in.PlatformUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check category limit: %w", err)
	}
	already := false
	for _, c := range existing {
		if c == int8(cat) {
			already = true
			break
		}
	}
	if !already && len(existing) >= gameCfg.MaxCategoriesPerRound {
		fmt.Printf("[Wager] 超出玩法数限制: round_no=%d, platform_user_id=%s, existing=%d, limit=%d, trace_id=%s\n",
			in.RoundNo, in.PlatformUserID, len(existing), gameCfg.MaxCategoriesPerRound, in.TraceID)
		return nil, ErrTooManyCategories
	}

	// 幂等：先占幂等键，ref 记录 bill_no
	if err := (&model.IdempotencyKey{IdempotencyKey: in.IdempotencyKey, Purpose: "wager", Ref: billNo}).Insert(ctx, tx); err != nil {
		// 若幂等冲突：尝试返回上次结果
		if me, ok := err.(*mysqlerr.MySQLError); ok && me.Number == 1062 {
			fmt.Printf("[Wager]  幂等键冲突，尝试返回上次结果: idem_key=%s, trace_id=%s\n",
				in.IdempotencyKey, in.TraceID)
			_ = tx.Rollback()
			// Redis 先查
			if r := infrds.Client(); r != nil {
				if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
					var out WagerOutput
					if json.Unmarshal(bs, &out) == nil {
						fmt.Printf("[Wager]  从 Redis 返回上次结果: bill_no=%s, trace_id=%s\n",
							out.BillNo, in.TraceID)
						return &out, nil
					}
				}
			}
			// DB 回源：根据幂等键查 bill_no，再从注单行还原扣款与出资钱包
			ref, e1 := model.SelectRefByIdemKey(txCtx, infmysql.SQLX(), in.IdempotencyKey)
			if e1 == nil && ref != "" {
				p, e2 := model.GetPlayerByPlatformUser(txCtx, infmysql.SQLX(), in.PlatformID, in.PlatformUserID)
				rows, e3 := model.ListByGroup(txCtx, infmysql.SQLX(), ref)
				if e2 == nil && e3 == nil && len(rows) > 0 {
					debited := decimal.Zero
					for _, row := range rows {
						debited = debited.Add(decimal.NewFromFloat(row.Stake))
					}
					fmt.Printf("[Wager]  从数据库返回上次结果: bill_no=%s, trace_id=%s\n",
						ref, in.TraceID)
					return &WagerOutput{
						BillNo:         ref,
						BetGroup:       ref,
						TotalDebited:   chelper.FormatMoney(debited),
						BettingBalance: chelper.FormatMoney(decimal.NewFromFloat(p.BettingBalance)),
						GamingBalance:  chelper.FormatMoney(decimal.NewFromFloat(p.GamingBalance)),
						Wallet:         rows[0].Wallet,
					}, nil
				}
			}
		}
		fmt.Printf("[Wager]  插入幂等键失败: error=%v, idem_key=%s, trace_id=%s\n",
			err, in.IdempotencyKey, in.TraceID)
		return nil, fmt.Errorf("idempotency conflict or insert failed: %w", err)
	}

	// 校验玩家状态（player 已在事务中加锁）
	if player.Status != 1 {
		fmt.Printf("[Wager]  玩家状态异常: user_id=%d, status=%d, trace_id=%s\n",
			player.ID, player.Status, in.TraceID)
		return nil, errors.New("player disabled")
	}

	bettingDec := decimal.NewFromFloat(player.BettingBalance)
	gamingDec := decimal.NewFromFloat(player.GamingBalance)

	// 资格门槛：betting_balance 低于门槛即拒单（与注金无关，gaming 余额再多也不行）
	floor := decimal.NewFromFloat(gameCfg.MinBettingBalance)
	if bettingDec.LessThan(floor) {
		fmt.Printf("[Wager] 投注钱包低于门槛: betting=%s, floor=%s, user_id=%d, trace_id=%s\n",
			bettingDec.String(), floor.String(), player.ID, in.TraceID)
		return nil, ErrBelowBalanceFloor
	}

	// 扣款以拆分取整后的实际总额为准（组合玩法每个覆盖值的子注金向上取整到分）
	if bettingDec.Add(gamingDec).LessThan(totalDebit) {
		return nil, ErrInsufficientBalance
	}

	// betting 优先扣款，不足部分由 gaming 补足
	wallet := model.WalletBetting
	fromBetting := totalDebit
	fromGaming := decimal.Zero
	if bettingDec.LessThan(totalDebit) {
		wallet = model.WalletCombined
		fromBetting = bettingDec
		fromGaming = totalDebit.Sub(bettingDec)
	}
	bettingAfter := bettingDec.Sub(fromBetting)
	gamingAfter := gamingDec.Sub(fromGaming)

	// 更新余额（两位小数）
	if err := model.UpdatePlayerBalances(txCtx, tx, player.ID,
		bettingAfter.Round(2).InexactFloat64(), gamingAfter.Round(2).InexactFloat64()); err != nil {
		return nil, err
	}

	// 写账本（哪个钱包动账记哪一行；combined 出资记两行）
	if fromBetting.GreaterThan(decimal.Zero) {
		ledger := &model.WalletLedger{
			UserID:       player.ID,
			Wallet:       model.LedgerWalletBetting,
			BizType:      model.LedgerBet,
			BizTypeStr:   "bet",
			Amount:       fromBetting.Round(2).InexactFloat64(),
			BeforeAmount: bettingDec.Round(2).InexactFloat64(),
			AfterAmount:  bettingAfter.Round(2).InexactFloat64(),
			Currency:     gameCfg.Currency,
			BillNo:       billNo,
			RoundNo:      in.RoundNo,
			GameID:       GameID,
			Remark:       "wager deduct",
			TraceID:      in.TraceID,
		}
		if err := ledger.Insert(txCtx, tx); err != nil {
			fmt.Printf("[Wager]  写入账本失败: error=%v, bill_no=%s, trace_id=%s\n",
				err, billNo, in.TraceID)
			return nil, err
		}
	}
	if fromGaming.GreaterThan(decimal.Zero) {
		ledger := &model.WalletLedger{
			UserID:       player.ID,
			Wallet:       model.LedgerWalletGaming,
			BizType:      model.LedgerBet,
			BizTypeStr:   "bet",
			Amount:       fromGaming.Round(2).InexactFloat64(),
			BeforeAmount: gamingDec.Round(2).InexactFloat64(),
			AfterAmount:  gamingAfter.Round(2).InexactFloat64(),
			Currency:     gameCfg.Currency,
			BillNo:       billNo,
			RoundNo:      in.RoundNo,
			GameID:       GameID,
			Remark:       "wager deduct (gaming remainder)",
			TraceID:      in.TraceID,
		}
		if err := ledger.Insert(txCtx, tx); err != nil {
			fmt.Printf("[Wager]  写入账本失败: error=%v, bill_no=%s, trace_id=%s\n",
				err, billNo, in.TraceID)
			return nil, err
		}
	}

	// 落注单：每个覆盖的开奖值一行，敞口聚合直接按 bet_value GROUP BY
	betTime := time.Now().UnixMilli()
	for _, sb := range subBets {
		rowBill := billNo
		if len(subBets) > 1 {
			rowBill = fmt.Sprintf("%s-%d", billNo, sb.Value)
		}
		b := &model.Bet{
			BillNo:          rowBill,
			BetGroup:        billNo,
			RoundNo:         in.RoundNo,
			GameID:          GameID,
			UserID:          player.ID,
			PlatformID:      in.PlatformID,
			PlatformUserID:  in.PlatformUserID,
			UserName:        player.Username,
			Category:        int8(cat),
			BetValue:        int8(sb.Value),
			Stake:           sb.Stake.Round(2).InexactFloat64(),
			RequestedStake:  amtDec.Round(2).InexactFloat64(),
			Wallet:          wallet,
			PotentialPayout: sb.Stake.Mul(multiplier).Round(2).InexactFloat64(),
			SettleStatus:    model.BetPending,
			WinAmount:       0,
			Multiplier:      gameCfg.Multiplier,
			Currency:        gameCfg.Currency,
			IdempotencyKey:  in.IdempotencyKey,
			TraceID:         in.TraceID,
			BetTime:         betTime,
		}
		if err := b.Insert(txCtx, tx); err != nil {
			fmt.Printf("[Wager]  创建注单失败: error=%v, bill_no=%s, trace_id=%s\n",
				err, rowBill, in.TraceID)
			return nil, err
		}
	}

	// Outbox 消息（异步）
	payloadMsg := map[string]any{
		"event":            "wager_placed",
		"bill_no":          billNo,
		"round_no":         in.RoundNo,
		"user_id":          player.ID,
		"platform_id":      in.PlatformID,
		"platform_user_id": in.PlatformUserID,
		"category":         int8(cat),
		"stake":            totalDebit.Round(2).InexactFloat64(),
		"wallet":           wallet,
	}
	if err := model.CreateOutbox(txCtx, tx, model.TopicWagerPlaced, billNo, payloadMsg); err != nil {
		fmt.Printf("[Wager]  写入 Outbox 失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, billNo, in.TraceID)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Wager]  提交事务失败: error=%v, bill_no=%s, trace_id=%s\n",
			err, billNo, in.TraceID)
		return nil, err
	}

	result = "success"
	walletStr := "betting"
	if wallet == model.WalletCombined {
		walletStr = "combined"
	}
	metrics.RecordStake(catStr, walletStr, totalDebit.InexactFloat64())

	out := &WagerOutput{
		BillNo:         billNo,
		BetGroup:       billNo,
		TotalDebited:   chelper.FormatMoney(totalDebit),
		BettingBalance: chelper.FormatMoney(bettingAfter),
		GamingBalance:  chelper.FormatMoney(gamingAfter),
		Wallet:         wallet,
	}

	// 写入 Redis 结果缓存（降级容错）
	if r := infrds.Client(); r != nil {
		if b, e := json.Marshal(out); e == nil {
			_ = r.Set(ctx, infrds.IdemResultKey(in.IdempotencyKey), b, idemResultTTL).Err()
		}
		// 敞口缓存失效，下一次读取回源 DB 聚合
		_ = r.Del(ctx, infrds.RoundExposureKey(in.RoundNo)).Err()
	}

	return out, nil
}

// generateBillNo 生成可读的订单号
// 格式：W5{YYYYMMDDHHmmss}{UserID后4位}{随机3位十六进制}
// 示例：W520260830143025100156A
func generateBillNo(userID int64) string {
	now := time.Now()
	dateTime := now.Format("20060102150405")
	userSuffix := fmt.Sprintf("%04d", userID%10000)
	randomBytes := make([]byte, 2)
	rand.Read(randomBytes)
	randomHex := strings.ToUpper(hex.EncodeToString(randomBytes)[:3])

	return fmt.Sprintf("W5%s%s%s", dateTime, userSuffix, randomHex)
}

// getOrCreatePlayerInTx 在事务中获取或创建玩家
// 如果玩家不存在，自动创建；如果存在，返回现有记录并加锁
func getOrCreatePlayerInTx(ctx context.Context, tx *sqlx.Tx, platformID int8, platformUserID, username string) (*model.Player, error) {
	// 1. 先尝试加锁查询
	p, err := model.GetPlayerByPlatformUserForUpdate(ctx, tx, platformID, platformUserID)
	if err == nil {
		return p, nil
	}

	// 2. 如果玩家不存在，创建
	if err.Error() == "sql: no rows in result set" {
		newPlayer := &model.Player{
			PlatformID:     platformID,
			PlatformUserID: platformUserID,
			Username:       username,
			BettingBalance: 0.00,
			GamingBalance:  0.00,
			Status:         1,
		}
		if err := model.InsertPlayer(ctx, tx, newPlayer); err != nil {
			// 处理并发创建的情况（唯一索引冲突）
			if me, ok := err.(*mysqlerr.MySQLError); ok && me.Number == 1062 {
				return model.GetPlayerByPlatformUserForUpdate(ctx, tx, platformID, platformUserID)
			}
			return nil, err
		}
		return newPlayer, nil
	}

	return nil, err
}
