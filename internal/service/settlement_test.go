package service

import (
	"testing"

	decimal "github.com/shopspring/decimal"

	"github.com/rahul3988/cp-win5-sub001/internal/model"
)

var tenPct = decimal.NewFromFloat(0.10)

// 赢单派彩必须取下注时落库的 potential_payout 快照，与结算时的配置无关
func TestSettleBetWinUsesPayoutSnapshot(t *testing.T) {
	b := model.Bet{
		BillNo:          "B1",
		BetValue:        7,
		Stake:           100,
		Wallet:          model.WalletBetting,
		Multiplier:      9,
		PotentialPayout: 900, // 下注时 9 倍赔率的快照
	}

	oc := settleBet(b, 7, tenPct)
	if oc.Status != model.BetWon {
		t.Fatalf("status = %d, want won", oc.Status)
	}
	if !oc.Payout.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("payout = %s, want 900", oc.Payout)
	}
	if oc.ForfeitGaming {
		t.Fatalf("betting 出资赢单不应清空 gaming")
	}
	if oc.Immediate.GreaterThan(decimal.Zero) || oc.Deferred.GreaterThan(decimal.Zero) {
		t.Fatalf("赢单不应产生返现")
	}

	// 快照与当前配置赔率不一致时仍按快照派彩（赔率热更场景）
	b.PotentialPayout = 800
	oc = settleBet(b, 7, tenPct)
	if !oc.Payout.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("payout = %s, want 800 (snapshot)", oc.Payout)
	}
}

func TestSettleBetWinCombinedForfeitsGaming(t *testing.T) {
	b := model.Bet{
		BillNo:          "B2",
		BetValue:        3,
		Stake:           50,
		Wallet:          model.WalletCombined,
		PotentialPayout: 450,
	}

	oc := settleBet(b, 3, tenPct)
	if oc.Status != model.BetWon {
		t.Fatalf("status = %d, want won", oc.Status)
	}
	if !oc.ForfeitGaming {
		t.Fatalf("combined 出资赢单必须清空 gaming")
	}
	if !oc.Payout.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("payout = %s, want 450", oc.Payout)
	}
}

func TestSettleBetLossBettingDefers(t *testing.T) {
	b := model.Bet{
		BillNo:   "B3",
		BetValue: 2,
		Stake:    100,
		Wallet:   model.WalletBetting,
	}

	oc := settleBet(b, 9, tenPct)
	if oc.Status != model.BetLost {
		t.Fatalf("status = %d, want lost", oc.Status)
	}
	if !oc.Deferred.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("deferred = %s, want 10 (10%% of stake)", oc.Deferred)
	}
	if oc.Immediate.GreaterThan(decimal.Zero) {
		t.Fatalf("betting 出资输单不应即时返现")
	}
	if oc.Payout.GreaterThan(decimal.Zero) || oc.ForfeitGaming {
		t.Fatalf("输单不应派彩或清空 gaming")
	}
}

// 组合出资输单：注金 10% 立即返入 gaming，如 15 元注金返 1.50
func TestSettleBetLossCombinedImmediate(t *testing.T) {
	b := model.Bet{
		BillNo:   "B4",
		BetValue: 3,
		Stake:    15,
		Wallet:   model.WalletCombined,
	}

	oc := settleBet(b, 7, tenPct)
	if oc.Status != model.BetLost {
		t.Fatalf("status = %d, want lost", oc.Status)
	}
	if !oc.Immediate.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("immediate = %s, want 1.5", oc.Immediate)
	}
	if oc.Deferred.GreaterThan(decimal.Zero) {
		t.Fatalf("combined 输单不应产生延迟返现计划")
	}
}

func TestSettleBetZeroCashbackPercent(t *testing.T) {
	b := model.Bet{BillNo: "B5", BetValue: 1, Stake: 100, Wallet: model.WalletBetting}

	oc := settleBet(b, 4, decimal.Zero)
	if oc.Status != model.BetLost {
		t.Fatalf("status = %d, want lost", oc.Status)
	}
	if oc.Immediate.GreaterThan(decimal.Zero) || oc.Deferred.GreaterThan(decimal.Zero) {
		t.Fatalf("返现比例为 0 时不应产生任何返现")
	}
}

// 回合聚合：total_paid 为各赢单派彩之和，输单不计入
func TestSettleBetAggregates(t *testing.T) {
	bets := []model.Bet{
		{BillNo: "A1", BetValue: 5, Stake: 100, Wallet: model.WalletBetting, PotentialPayout: 900},
		{BillNo: "A2", BetValue: 5, Stake: 20, Wallet: model.WalletCombined, PotentialPayout: 180},
		{BillNo: "A3", BetValue: 8, Stake: 50, Wallet: model.WalletBetting},
	}

	totalWagered := decimal.Zero
	totalPaid := decimal.Zero
	for _, b := range bets {
		totalWagered = totalWagered.Add(decimal.NewFromFloat(b.Stake))
		totalPaid = totalPaid.Add(settleBet(b, 5, tenPct).Payout)
	}

	if !totalWagered.Equal(decimal.NewFromInt(170)) {
		t.Fatalf("total_wagered = %s, want 170", totalWagered)
	}
	if !totalPaid.Equal(decimal.NewFromInt(1080)) {
		t.Fatalf("total_paid = %s, want 1080", totalPaid)
	}
	// 庄家盈亏 = 总注金 - 总派彩
	if !totalWagered.Sub(totalPaid).Equal(decimal.NewFromInt(-910)) {
		t.Fatalf("house_pnl = %s, want -910", totalWagered.Sub(totalPaid))
	}
}
