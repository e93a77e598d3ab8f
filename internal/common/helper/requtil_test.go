package helper

import (
	"strings"
	"testing"
)

func TestIsJSONContentType(t *testing.T) {
	cases := []struct {
		ct   string
		want bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"  Application/JSON ", true},
		{"application/x-www-form-urlencoded", false},
		{"text/plain", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsJSONContentType(c.ct); got != c.want {
			t.Fatalf("IsJSONContentType(%q) = %v, want %v", c.ct, got, c.want)
		}
	}
}

func TestIsMoneyFormat(t *testing.T) {
	valid := []string{"0", "10", "10.5", "10.50", "999999.99", " 25 "}
	for _, s := range valid {
		if !IsMoneyFormat(s) {
			t.Fatalf("IsMoneyFormat(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "-1", "01", "1.", "1.234", "abc", "1e3", "+5"}
	for _, s := range invalid {
		if IsMoneyFormat(s) {
			t.Fatalf("IsMoneyFormat(%q) = true, want false", s)
		}
	}
}

func TestIsIntegerStake(t *testing.T) {
	valid := []string{"1", "10", "100000", " 42 "}
	for _, s := range valid {
		if !IsIntegerStake(s) {
			t.Fatalf("IsIntegerStake(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "0", "-5", "10.5", "01", "1.0", "abc"}
	for _, s := range invalid {
		if IsIntegerStake(s) {
			t.Fatalf("IsIntegerStake(%q) = true, want false", s)
		}
	}
}

func TestParseWagerFromJSON(t *testing.T) {
	body := `{"round_no":123,"category":1,"value":7,"stake":"100","idempotency_key":"k1"}`
	out, ok, msg := ParseWagerFromJSON(strings.NewReader(body))
	if !ok {
		t.Fatalf("parse failed: %s", msg)
	}
	if out.RoundNo != 123 || out.Category != 1 || out.Value != 7 || out.Stake != "100" || out.IdempotencyKey != "k1" {
		t.Fatalf("unexpected result: %+v", out)
	}

	if _, ok, _ := ParseWagerFromJSON(strings.NewReader("{broken")); ok {
		t.Fatal("malformed json should fail")
	}
}

func TestValidateWager(t *testing.T) {
	base := func() WagerParsed {
		return WagerParsed{RoundNo: 1, Category: 2, Value: 0, Stake: "100", IdempotencyKey: "k"}
	}

	if ok, msg := ValidateWager(&WagerParsed{RoundNo: 1, Category: 1, Value: 9, Stake: "10", IdempotencyKey: "k"}); !ok {
		t.Fatalf("valid number bet rejected: %s", msg)
	}

	cases := []struct {
		name   string
		mutate func(*WagerParsed)
		msg    string
	}{
		{"round zero", func(w *WagerParsed) { w.RoundNo = 0 }, "round_no required"},
		{"round negative", func(w *WagerParsed) { w.RoundNo = -3 }, "round_no required"},
		{"category low", func(w *WagerParsed) { w.Category = 0 }, "category must be 1..8"},
		{"category high", func(w *WagerParsed) { w.Category = 9 }, "category must be 1..8"},
		{"number value high", func(w *WagerParsed) { w.Category = 1; w.Value = 10 }, "value must be 0..9 for number bets"},
		{"number value negative", func(w *WagerParsed) { w.Category = 1; w.Value = -1 }, "value must be 0..9 for number bets"},
		{"empty stake", func(w *WagerParsed) { w.Stake = " " }, "missing or invalid fields"},
		{"empty key", func(w *WagerParsed) { w.IdempotencyKey = "" }, "missing or invalid fields"},
		{"key too long", func(w *WagerParsed) { w.IdempotencyKey = strings.Repeat("x", 65) }, "invalid request"},
		{"stake too long", func(w *WagerParsed) { w.Stake = strings.Repeat("9", 33) }, "invalid request"},
		{"fractional stake", func(w *WagerParsed) { w.Stake = "10.50" }, "stake must be a positive integer amount"},
		{"zero stake", func(w *WagerParsed) { w.Stake = "0" }, "stake must be a positive integer amount"},
	}
	for _, c := range cases {
		w := base()
		c.mutate(&w)
		ok, msg := ValidateWager(&w)
		if ok {
			t.Fatalf("%s: expected rejection", c.name)
		}
		if msg != c.msg {
			t.Fatalf("%s: msg = %q, want %q", c.name, msg, c.msg)
		}
	}

	// 非 number 玩法忽略 value
	w := base()
	w.Value = 99
	if ok, _ := ValidateWager(&w); !ok {
		t.Fatal("value should be ignored for non-number categories")
	}
}

func TestParseForceValueFromJSON(t *testing.T) {
	out, ok, _ := ParseForceValueFromJSON(strings.NewReader(`{"value":7,"target_round":42}`))
	if !ok || out.Value != 7 || out.TargetRound != 42 {
		t.Fatalf("unexpected result: %+v (ok=%v)", out, ok)
	}

	// 缺省 value 为 -1，后续校验会拒绝
	out, ok, _ = ParseForceValueFromJSON(strings.NewReader(`{}`))
	if !ok || out.Value != -1 || out.TargetRound != 0 {
		t.Fatalf("unexpected defaults: %+v", out)
	}

	// 非数值型 value 不接收
	out, ok, _ = ParseForceValueFromJSON(strings.NewReader(`{"value":"7"}`))
	if !ok || out.Value != -1 {
		t.Fatalf("string value should be ignored: %+v", out)
	}
}

func TestValidateForceValue(t *testing.T) {
	for _, v := range []int{0, 5, 9} {
		in := ForceValueParsed{Value: v}
		if ok, msg := ValidateForceValue(&in); !ok {
			t.Fatalf("value %d rejected: %s", v, msg)
		}
	}
	for _, v := range []int{-1, 10, 100} {
		in := ForceValueParsed{Value: v}
		if ok, _ := ValidateForceValue(&in); ok {
			t.Fatalf("value %d accepted", v)
		}
	}
	in := ForceValueParsed{Value: 5, TargetRound: -1}
	if ok, _ := ValidateForceValue(&in); ok {
		t.Fatal("negative target_round accepted")
	}
}

func TestValidateForcePhase(t *testing.T) {
	in := ForcePhaseParsed{Phase: " betting "}
	if ok, msg := ValidateForcePhase(&in); !ok {
		t.Fatalf("rejected: %s", msg)
	}
	if in.Phase != "betting" {
		t.Fatalf("phase not trimmed: %q", in.Phase)
	}

	in = ForcePhaseParsed{Phase: "  "}
	if ok, _ := ValidateForcePhase(&in); ok {
		t.Fatal("blank phase accepted")
	}

	in = ForcePhaseParsed{Phase: strings.Repeat("a", 33)}
	if ok, _ := ValidateForcePhase(&in); ok {
		t.Fatal("oversized phase accepted")
	}
}
