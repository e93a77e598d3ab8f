package state

import (
	"errors"
	"os"
	"testing"

	"github.com/rahul3988/cp-win5-sub001/common/logger"

	decimal "github.com/shopspring/decimal"
)

func TestMain(m *testing.M) {
	logger.InitLogger()
	os.Exit(m.Run())
}

type fakeSource struct {
	exp [DrawValueCount]decimal.Decimal
	err error
}

func (f *fakeSource) Exposure(roundNo int64) ([DrawValueCount]decimal.Decimal, error) {
	return f.exp, f.err
}

type recordedPhase struct {
	phase   string
	roundNo int64
	winning int8
	forced  bool
}

type fakeListener struct {
	calls []recordedPhase
}

func (f *fakeListener) OnPhaseEnter(ph string, roundNo int64, winning int8, forced bool) {
	f.calls = append(f.calls, recordedPhase{ph, roundNo, winning, forced})
}

func testDurations() Durations {
	return Durations{Betting: 30, SpinPrep: 3, Spinning: 5, Result: 5, Transition: 2}
}

func TestNextPhaseCycle(t *testing.T) {
	order := []string{PhaseBetting, PhaseSpinPrep, PhaseSpinning, PhaseResult, PhaseTransition}
	for i, ph := range order {
		next, err := NextPhase(ph)
		if err != nil {
			t.Fatalf("NextPhase(%s): %v", ph, err)
		}
		want := order[(i+1)%len(order)]
		if next != want {
			t.Fatalf("NextPhase(%s) = %s, want %s", ph, next, want)
		}
	}
	if _, err := NextPhase("unknown"); err == nil {
		t.Fatal("unknown phase should fail")
	}
}

func TestPhaseCodeRoundTrip(t *testing.T) {
	for _, ph := range []string{PhaseBetting, PhaseSpinPrep, PhaseSpinning, PhaseResult, PhaseTransition} {
		code := PhaseCode(ph)
		if code == 0 {
			t.Fatalf("PhaseCode(%s) = 0", ph)
		}
		if got := CodeToPhase(code); got != ph {
			t.Fatalf("CodeToPhase(%d) = %s, want %s", code, got, ph)
		}
	}
	if PhaseCode("nope") != 0 {
		t.Fatal("unknown phase should map to 0")
	}
	if CodeToPhase(99) != "" {
		t.Fatal("unknown code should map to empty")
	}
}

func TestRoundNumberAdvancesOnBetting(t *testing.T) {
	m := NewMachine(testDurations(), nil, nil, 100)
	if m.CurrentRound() != 99 {
		t.Fatalf("initial round = %d, want 99", m.CurrentRound())
	}
	m.enterPhase(PhaseBetting)
	if m.CurrentRound() != 100 {
		t.Fatalf("round = %d, want 100", m.CurrentRound())
	}
	if _, ok := m.WinningValue(); ok {
		t.Fatal("winning value should be unset during betting")
	}
	m.enterPhase(PhaseSpinPrep)
	m.enterPhase(PhaseSpinning)
	m.enterPhase(PhaseResult)
	m.enterPhase(PhaseTransition)
	m.enterPhase(PhaseBetting)
	if m.CurrentRound() != 101 {
		t.Fatalf("round = %d, want 101", m.CurrentRound())
	}
}

func TestResolveWinningPicksMinimumExposure(t *testing.T) {
	src := &fakeSource{}
	for v := 0; v < DrawValueCount; v++ {
		src.exp[v] = decimal.NewFromInt(int64(100 + v*10))
	}
	src.exp[6] = decimal.NewFromInt(5)

	m := NewMachine(testDurations(), src, nil, 1)
	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)

	w, ok := m.WinningValue()
	if !ok || w != 6 {
		t.Fatalf("winning = %d (ok=%v), want 6", w, ok)
	}
	if m.forced {
		t.Fatal("exposure-selected value should not be marked forced")
	}
}

func TestResolveWinningTieBreaksToLowestValue(t *testing.T) {
	src := &fakeSource{}
	for v := 0; v < DrawValueCount; v++ {
		src.exp[v] = decimal.NewFromInt(50)
	}
	src.exp[2] = decimal.NewFromInt(10)
	src.exp[7] = decimal.NewFromInt(10)

	m := NewMachine(testDurations(), src, nil, 1)
	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)

	w, _ := m.WinningValue()
	if w != 2 {
		t.Fatalf("winning = %d, want 2 (lowest of tied minimums)", w)
	}
}

func TestResolveWinningRandomWhenNoExposure(t *testing.T) {
	m := NewMachine(testDurations(), &fakeSource{}, nil, 1)
	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)

	w, ok := m.WinningValue()
	if !ok {
		t.Fatal("winning value should be set after spin prep")
	}
	if w < 0 || w >= DrawValueCount {
		t.Fatalf("winning = %d, out of range", w)
	}
	if m.forced {
		t.Fatal("random value should not be marked forced")
	}
}

func TestResolveWinningSourceErrorFallsBack(t *testing.T) {
	m := NewMachine(testDurations(), &fakeSource{err: errors.New("db down")}, nil, 1)
	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)

	if w, ok := m.WinningValue(); !ok || w < 0 || w >= DrawValueCount {
		t.Fatalf("winning = %d (ok=%v), want random in range on source failure", w, ok)
	}
}

func TestForcedValueTakesPrecedence(t *testing.T) {
	src := &fakeSource{}
	src.exp[0] = decimal.NewFromInt(1) // 敞口会选 0
	for v := 1; v < DrawValueCount; v++ {
		src.exp[v] = decimal.NewFromInt(1000)
	}

	m := NewMachine(testDurations(), src, nil, 1)
	if err := m.ForceNextWinningValue(9, 0); err != nil {
		t.Fatal(err)
	}
	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)

	w, _ := m.WinningValue()
	if w != 9 {
		t.Fatalf("winning = %d, want forced 9", w)
	}
	if !m.forced {
		t.Fatal("forced flag should be set")
	}

	// 指令一次性消费：下一回合回到敞口选择
	m.enterPhase(PhaseTransition)
	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)
	w, _ = m.WinningValue()
	if w != 0 {
		t.Fatalf("winning = %d, want 0 after override consumed", w)
	}
	if m.forced {
		t.Fatal("forced flag should reset after consumption")
	}
}

func TestForcedValueForSpecificRound(t *testing.T) {
	src := &fakeSource{}
	src.exp[1] = decimal.NewFromInt(1)
	for v := 0; v < DrawValueCount; v++ {
		if v != 1 {
			src.exp[v] = decimal.NewFromInt(500)
		}
	}

	m := NewMachine(testDurations(), src, nil, 41) // 首回合 41
	if err := m.ForceNextWinningValue(7, 42); err != nil {
		t.Fatal(err)
	}

	// 回合 41：目标未到，按敞口选择
	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)
	if w, _ := m.WinningValue(); w != 1 {
		t.Fatalf("round 41 winning = %d, want exposure-selected 1", w)
	}

	// 回合 42：消费指令
	m.enterPhase(PhaseTransition)
	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)
	w, _ := m.WinningValue()
	if w != 7 || !m.forced {
		t.Fatalf("round 42 winning = %d forced=%v, want forced 7", w, m.forced)
	}
}

func TestForceValueValidation(t *testing.T) {
	m := NewMachine(testDurations(), nil, nil, 1)
	if err := m.ForceNextWinningValue(10, 0); err != ErrInvalidWinningValue {
		t.Fatalf("value 10: err = %v, want ErrInvalidWinningValue", err)
	}
	if err := m.ForceNextWinningValue(-1, 0); err != ErrInvalidWinningValue {
		t.Fatalf("value -1: err = %v, want ErrInvalidWinningValue", err)
	}
}

func TestClearForcedValue(t *testing.T) {
	m := NewMachine(testDurations(), &fakeSource{}, nil, 1)
	if err := m.ForceNextWinningValue(5, 0); err != nil {
		t.Fatal(err)
	}
	m.ClearForcedValue()
	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)
	if m.forced {
		t.Fatal("cleared override should not apply")
	}
}

func TestListenerReceivesPhaseEnters(t *testing.T) {
	l := &fakeListener{}
	m := NewMachine(testDurations(), &fakeSource{}, l, 10)

	m.enterPhase(PhaseBetting)
	m.enterPhase(PhaseSpinPrep)
	m.enterPhase(PhaseSpinning)

	if len(l.calls) != 3 {
		t.Fatalf("listener calls = %d, want 3", len(l.calls))
	}
	if l.calls[0].phase != PhaseBetting || l.calls[0].roundNo != 10 {
		t.Fatalf("first call = %+v", l.calls[0])
	}
	if l.calls[0].winning != -1 {
		t.Fatalf("betting winning = %d, want -1", l.calls[0].winning)
	}
	if l.calls[1].phase != PhaseSpinPrep || l.calls[1].winning < 0 {
		t.Fatalf("spin prep call = %+v, want resolved winning", l.calls[1])
	}
	if l.calls[2].winning != l.calls[1].winning {
		t.Fatal("winning must stay stable after spin prep")
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMachine(testDurations(), &fakeSource{}, nil, 7)
	m.enterPhase(PhaseBetting)

	snap := m.GetSnapshot()
	if snap.Phase != PhaseBetting || snap.RoundNo != 7 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Remaining != 30 {
		t.Fatalf("remaining = %d, want 30", snap.Remaining)
	}
	if snap.PhaseEnd-snap.PhaseStart != 30*1000 {
		t.Fatalf("phase window = %d ms, want 30000", snap.PhaseEnd-snap.PhaseStart)
	}
	if snap.HasOverride {
		t.Fatal("no override registered")
	}

	if err := m.ForceNextWinningValue(3, 0); err != nil {
		t.Fatal(err)
	}
	if !m.GetSnapshot().HasOverride {
		t.Fatal("override should be visible in snapshot")
	}
}
