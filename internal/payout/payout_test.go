package payout

import (
	"testing"

	decimal "github.com/shopspring/decimal"
)

func TestFromCode(t *testing.T) {
	for code := 1; code <= 8; code++ {
		c, err := FromCode(code)
		if err != nil {
			t.Fatalf("code %d: %v", code, err)
		}
		if c.String() == "" {
			t.Fatalf("code %d: empty name", code)
		}
	}
	for _, code := range []int{0, -1, 9, 100} {
		if _, err := FromCode(code); err == nil {
			t.Fatalf("code %d should be invalid", code)
		}
	}
}

func TestCoveredValues(t *testing.T) {
	cases := []struct {
		c     Category
		value int
		want  []int
	}{
		{CategoryNumber, 3, []int{3}},
		{CategoryNumber, 0, []int{0}},
		{CategoryOdd, 0, []int{1, 3, 5, 7, 9}},
		{CategoryEven, 0, []int{0, 2, 4, 6, 8}},
		{CategorySmall, 0, []int{0, 1, 2, 3, 4}},
		{CategoryBig, 0, []int{5, 6, 7, 8, 9}},
		{CategoryRed, 0, []int{2, 4, 6, 8}},
		{CategoryGreen, 0, []int{1, 3, 7, 9}},
		{CategoryViolet, 0, []int{0, 5}},
	}
	for _, tc := range cases {
		got, err := CoveredValues(tc.c, tc.value)
		if err != nil {
			t.Fatalf("%s: %v", tc.c, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %v want %v", tc.c, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: got %v want %v", tc.c, got, tc.want)
			}
		}
	}

	if _, err := CoveredValues(CategoryNumber, 10); err == nil {
		t.Fatal("number value 10 should be out of range")
	}
	if _, err := CoveredValues(CategoryNumber, -1); err == nil {
		t.Fatal("number value -1 should be out of range")
	}
	if _, err := CoveredValues(Category(99), 0); err == nil {
		t.Fatal("unknown category should fail")
	}
}

func TestCoveredValuesReturnsCopy(t *testing.T) {
	vs, err := CoveredValues(CategoryViolet, 0)
	if err != nil {
		t.Fatal(err)
	}
	vs[0] = 9
	again, _ := CoveredValues(CategoryViolet, 0)
	if again[0] != 0 {
		t.Fatalf("fixed table mutated: %v", again)
	}
}

func TestCovers(t *testing.T) {
	if !Covers(CategoryNumber, 7, 7) {
		t.Fatal("number 7 should cover drawn 7")
	}
	if Covers(CategoryNumber, 7, 8) {
		t.Fatal("number 7 should not cover drawn 8")
	}
	if !Covers(CategoryRed, 0, 4) {
		t.Fatal("red should cover 4")
	}
	if Covers(CategoryRed, 0, 5) {
		t.Fatal("red should not cover 5")
	}
	if !Covers(CategoryViolet, 0, 5) {
		t.Fatal("violet should cover 5")
	}
	if Covers(Category(42), 0, 1) {
		t.Fatal("invalid category should not cover anything")
	}
}

func TestExpandBetNumber(t *testing.T) {
	subs, total, err := ExpandBet(CategoryNumber, 3, decimal.NewFromInt(15))
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("want 1 sub bet, got %d", len(subs))
	}
	if subs[0].Value != 3 {
		t.Fatalf("sub value = %d, want 3", subs[0].Value)
	}
	if !subs[0].Stake.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("sub stake = %s, want 15", subs[0].Stake)
	}
	if !total.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("total = %s, want 15", total)
	}
}

func TestExpandBetCompositeEvenSplit(t *testing.T) {
	cases := []struct {
		c        Category
		stake    int64
		per      string
		total    string
		subCount int
	}{
		{CategoryOdd, 100, "20", "100", 5},
		{CategoryRed, 100, "25", "100", 4},
		{CategoryViolet, 1, "0.5", "1", 2},
		{CategoryOdd, 7, "1.4", "7", 5},
		{CategoryGreen, 10, "2.5", "10", 4},
	}
	for _, tc := range cases {
		subs, total, err := ExpandBet(tc.c, 0, decimal.NewFromInt(tc.stake))
		if err != nil {
			t.Fatalf("%s %d: %v", tc.c, tc.stake, err)
		}
		if len(subs) != tc.subCount {
			t.Fatalf("%s %d: subs = %d, want %d", tc.c, tc.stake, len(subs), tc.subCount)
		}
		per := decimal.RequireFromString(tc.per)
		for _, s := range subs {
			if !s.Stake.Equal(per) {
				t.Fatalf("%s %d: per = %s, want %s", tc.c, tc.stake, s.Stake, per)
			}
		}
		if !total.Equal(decimal.RequireFromString(tc.total)) {
			t.Fatalf("%s %d: total = %s, want %s", tc.c, tc.stake, total, tc.total)
		}
	}
}

func TestExpandBetRoundsUpIndivisible(t *testing.T) {
	// 100 / 3 玩法不存在；用 odd(5份) 验证非整除：1.01 / 5 = 0.202 -> 0.21/份
	subs, total, err := ExpandBet(CategoryOdd, 0, decimal.RequireFromString("1.01"))
	if err != nil {
		t.Fatal(err)
	}
	per := decimal.RequireFromString("0.21")
	for _, s := range subs {
		if !s.Stake.Equal(per) {
			t.Fatalf("per = %s, want 0.21", s.Stake)
		}
	}
	// 实际扣款 1.05 > 名义 1.01（确定性向上取整分摊）
	if !total.Equal(decimal.RequireFromString("1.05")) {
		t.Fatalf("total = %s, want 1.05", total)
	}
}

func TestExpandBetRejectsNonPositive(t *testing.T) {
	if _, _, err := ExpandBet(CategoryOdd, 0, decimal.Zero); err == nil {
		t.Fatal("zero stake should fail")
	}
	if _, _, err := ExpandBet(CategoryOdd, 0, decimal.NewFromInt(-5)); err == nil {
		t.Fatal("negative stake should fail")
	}
}

func TestCalculatePayout(t *testing.T) {
	mult := decimal.NewFromInt(9)

	// ₹15 直选 3 命中 -> ₹135
	got := CalculatePayout(CategoryNumber, 3, decimal.NewFromInt(15), 3, mult)
	if !got.Equal(decimal.NewFromInt(135)) {
		t.Fatalf("payout = %s, want 135", got)
	}

	// 未命中 -> 0
	got = CalculatePayout(CategoryNumber, 3, decimal.NewFromInt(15), 4, mult)
	if !got.IsZero() {
		t.Fatalf("payout = %s, want 0", got)
	}

	// 子注派彩：odd 100 拆出的 20 元子注命中 -> 180
	got = CalculatePayout(CategoryNumber, 7, decimal.NewFromInt(20), 7, mult)
	if !got.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("payout = %s, want 180", got)
	}

	// 开奖值越界 -> 0
	got = CalculatePayout(CategoryNumber, 3, decimal.NewFromInt(15), 10, mult)
	if !got.IsZero() {
		t.Fatalf("payout = %s, want 0 for out-of-range drawn", got)
	}
}
