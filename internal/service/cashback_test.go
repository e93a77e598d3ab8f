package service

import (
	"errors"
	"testing"
	"time"

	decimal "github.com/shopspring/decimal"

	"github.com/rahul3988/cp-win5-sub001/internal/model"
)

func TestDayInt(t *testing.T) {
	d := time.Date(2025, 10, 19, 23, 59, 59, 0, time.Local)
	if got := dayInt(d); got != 20251019 {
		t.Fatalf("dayInt = %d, want 20251019", got)
	}
	d = time.Date(2025, 1, 2, 0, 0, 0, 0, time.Local)
	if got := dayInt(d); got != 20250102 {
		t.Fatalf("dayInt = %d, want 20250102", got)
	}
}

func TestDayRange(t *testing.T) {
	d := time.Date(2025, 10, 19, 15, 30, 0, 0, time.Local)
	start, end := dayRange(d)

	wantStart := time.Date(2025, 10, 19, 0, 0, 0, 0, time.Local).UnixMilli()
	if start != wantStart {
		t.Fatalf("start = %d, want %d", start, wantStart)
	}
	if end-start != 24*3600*1000 {
		t.Fatalf("window = %d ms, want 24h", end-start)
	}
}

func TestCashbackKind(t *testing.T) {
	if cashbackKind(1) != "daily" {
		t.Fatal("offset 1 should be daily")
	}
	for _, off := range []int{2, 5, 9} {
		if cashbackKind(off) != "reconcile" {
			t.Fatalf("offset %d should be reconcile", off)
		}
	}
}

func TestIsMySQLDuplicateKeyError(t *testing.T) {
	dup := []error{
		errors.New("Error 1062 (23000): Duplicate entry 'x' for key 'uk'"),
		errors.New("Duplicate entry '20251019-1' for key 'uk_user_day'"),
		errors.New("pq: duplicate key value violates unique constraint"),
	}
	for _, err := range dup {
		if !isMySQLDuplicateKeyError(err) {
			t.Fatalf("%v should be treated as duplicate", err)
		}
	}
	if isMySQLDuplicateKeyError(nil) {
		t.Fatal("nil is not duplicate")
	}
	if isMySQLDuplicateKeyError(errors.New("connection refused")) {
		t.Fatal("unrelated error flagged as duplicate")
	}
}

// 每日摊还金额：前 N-1 天为均摊，末日结清舍入残差，总和等于返现总额
func TestTrancheAmount(t *testing.T) {
	pct := decimal.NewFromFloat(0.10)
	// 输 1000 -> 返现 100，9 日摊还：前 8 日各 11.11，末日 11.12
	daily := trancheAmount(1000, pct, 1, 9)
	if !daily.Equal(decimal.NewFromFloat(11.11)) {
		t.Fatalf("daily = %s, want 11.11", daily)
	}
	last := trancheAmount(1000, pct, 9, 9)
	if !last.Equal(decimal.NewFromFloat(11.12)) {
		t.Fatalf("last = %s, want 11.12", last)
	}

	sum := decimal.Zero
	for offset := 1; offset <= 9; offset++ {
		sum = sum.Add(trancheAmount(1000, pct, offset, 9))
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("sum = %s, want 100", sum)
	}
}

// 摊还与回溯返水一律入 gaming 钱包，betting 余额不参与
func TestCashbackLedgerCreditsGamingWallet(t *testing.T) {
	before := decimal.NewFromFloat(20.50)
	amount := decimal.NewFromFloat(11.11)

	ledger := cashbackLedger(42, before, amount, "INR", 20250821, 3, 9, "trace-1")
	if ledger.Wallet != model.LedgerWalletGaming {
		t.Fatalf("wallet = %d, want gaming(%d)", ledger.Wallet, model.LedgerWalletGaming)
	}
	if ledger.BizType != model.LedgerCashback {
		t.Fatalf("biz_type = %d, want cashback", ledger.BizType)
	}
	if ledger.BeforeAmount != 20.50 {
		t.Fatalf("before = %v, want 20.50", ledger.BeforeAmount)
	}
	if ledger.AfterAmount != 31.61 {
		t.Fatalf("after = %v, want 31.61", ledger.AfterAmount)
	}
	if ledger.UserID != 42 || ledger.TraceID != "trace-1" {
		t.Fatalf("ledger identity fields wrong: %+v", ledger)
	}
}
