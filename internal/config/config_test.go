package config

import "testing"

func TestGameConfigNormalizeDefaults(t *testing.T) {
	var g GameConfig
	g.Normalize()

	if g.BettingSec != 30 || g.SpinPrepSec != 3 || g.SpinningSec != 5 || g.ResultSec != 5 || g.TransitionSec != 2 {
		t.Fatalf("phase defaults: %+v", g)
	}
	if g.MinStake != 10 || g.MaxStake != 100000 {
		t.Fatalf("stake defaults: min=%d max=%d", g.MinStake, g.MaxStake)
	}
	if g.MinBettingBalance != 30 {
		t.Fatalf("min betting balance = %v, want 30", g.MinBettingBalance)
	}
	if g.MaxCategoriesPerRound != 2 {
		t.Fatalf("max categories = %d, want 2", g.MaxCategoriesPerRound)
	}
	if g.Multiplier != 9 {
		t.Fatalf("multiplier = %v, want 9", g.Multiplier)
	}
	if g.CashbackPercent != 0.10 || g.CashbackDays != 9 || g.CashbackHour != 2 {
		t.Fatalf("cashback defaults: %+v", g)
	}
	if g.Currency != "INR" {
		t.Fatalf("currency = %q, want INR", g.Currency)
	}
}

func TestGameConfigNormalizeKeepsOverrides(t *testing.T) {
	g := GameConfig{
		BettingSec:            60,
		MinStake:              50,
		MaxStake:              5000,
		MaxCategoriesPerRound: 3,
		CashbackHour:          0, // 0 点合法，不应被改写
		Currency:              "USD",
	}
	g.Normalize()

	if g.BettingSec != 60 {
		t.Fatalf("betting_sec = %d, want 60", g.BettingSec)
	}
	if g.MinStake != 50 || g.MaxStake != 5000 {
		t.Fatalf("stake overrides lost: min=%d max=%d", g.MinStake, g.MaxStake)
	}
	if g.MaxCategoriesPerRound != 3 {
		t.Fatalf("max categories = %d, want 3", g.MaxCategoriesPerRound)
	}
	if g.CashbackHour != 0 {
		t.Fatalf("cashback_hour = %d, want 0", g.CashbackHour)
	}
	if g.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", g.Currency)
	}
}

func TestGameConfigNormalizeRejectsBadCashbackHour(t *testing.T) {
	g := GameConfig{CashbackHour: 24}
	g.Normalize()
	if g.CashbackHour != 2 {
		t.Fatalf("cashback_hour = %d, want default 2", g.CashbackHour)
	}
	g = GameConfig{CashbackHour: -1}
	g.Normalize()
	if g.CashbackHour != 2 {
		t.Fatalf("cashback_hour = %d, want default 2", g.CashbackHour)
	}
}
