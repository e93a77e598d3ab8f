package state

import (
	"sync"
	"time"

	"github.com/rahul3988/cp-win5-sub001/common/helper"
	"github.com/rahul3988/cp-win5-sub001/common/logger"

	decimal "github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DrawValueCount 开奖值域 {0..9}（与 payout 包保持一致，避免循环依赖）
const DrawValueCount = 10

// Durations 各阶段时长（秒），由配置注入
type Durations struct {
	Betting    int
	SpinPrep   int
	Spinning   int
	Result     int
	Transition int
}

// 各阶段时长查表
func (d Durations) of(ph string) int {
	switch ph {
	case PhaseBetting:
		return d.Betting
	case PhaseSpinPrep:
		return d.SpinPrep
	case PhaseSpinning:
		return d.Spinning
	case PhaseResult:
		return d.Result
	case PhaseTransition:
		return d.Transition
	default:
		return 1
	}
}

// ExposureSource 提供按开奖值聚合的派彩敞口（开奖值 v 若开出，庄家需要赔付的总额）
// 由引擎从权威存储计算；缓存层只做展示用途
type ExposureSource interface {
	Exposure(roundNo int64) ([DrawValueCount]decimal.Decimal, error)
}

// Listener 阶段进入回调
// 回调在推进协程内同步执行：上一个阶段的副作用完成前不会处理下一个 tick
// winning 在 spin_preparation 之后有效（-1 表示未定）
type Listener interface {
	OnPhaseEnter(ph string, roundNo int64, winning int8, forced bool)
}

// 强制开奖指令（带标签变体，消费时原子取出）
// kind: 0=无 1=下一回合 2=指定回合
type overrideKind int8

const (
	overrideNone overrideKind = iota
	overrideNextRound
	overrideForRound
)

type override struct {
	kind  overrideKind
	value int8
	round int64
}

// Machine 回合阶段状态机：单实例驱动一条回合时间线
// 一秒一个 tick，倒计时归零推进到下一阶段并执行该阶段的进入动作
type Machine struct {
	mu sync.Mutex

	durations Durations
	src       ExposureSource
	listener  Listener

	running   bool
	phase     string
	roundNo   int64
	remaining int
	enteredAt time.Time

	// 本回合瞬态：进入 betting 时清空
	winning  int8 // -1=未定
	forced   bool
	exposure [DrawValueCount]decimal.Decimal

	pending override

	cmdCh  chan string // 管理用强制跳转
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMachine 创建状态机；startRound 为首个回合序号
func NewMachine(d Durations, src ExposureSource, l Listener, startRound int64) *Machine {
	return &Machine{
		durations: d,
		src:       src,
		listener:  l,
		phase:     PhaseTransition,
		roundNo:   startRound - 1, // 进入 betting 时 +1
		winning:   -1,
	}
}

// StartCycle 启动（或重启）时间线：清掉旧定时器后从新回合的 betting 开始
// 幂等：重复调用等价于一次重启
func (m *Machine) StartCycle() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.stopLoop()
		m.mu.Lock()
	}
	m.running = true
	m.cmdCh = make(chan string, 1)
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	// 立即进入 betting（新回合），随后由 tick 驱动
	m.enterPhase(PhaseBetting)

	go m.loop()
}

// Stop 停止时间线（紧急停止由引擎调用；退款等善后在引擎内处理）
func (m *Machine) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.stopLoop()
}

func (m *Machine) stopLoop() {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.running = false
	m.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}

func (m *Machine) loop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer close(m.doneCh)

	for {
		select {
		case <-m.stopCh:
			return
		case target := <-m.cmdCh:
			// 管理跳转：绕过倒计时直接进入目标阶段
			m.enterPhase(target)
		case <-ticker.C:
			m.mu.Lock()
			m.remaining--
			due := m.remaining <= 0
			next := ""
			if due {
				next, _ = NextPhase(m.phase)
			}
			m.mu.Unlock()
			if due && next != "" {
				m.enterPhase(next)
			}
		}
	}
}

// enterPhase 执行阶段进入动作并重置倒计时
// 仅在推进协程（或启动线程）内调用，保证副作用串行
func (m *Machine) enterPhase(ph string) {
	m.mu.Lock()
	m.phase = ph
	m.remaining = m.durations.of(ph)
	m.enteredAt = time.Now()

	switch ph {
	case PhaseBetting:
		// 新回合：清空瞬态并递增序号
		m.roundNo++
		m.winning = -1
		m.forced = false
		m.exposure = [DrawValueCount]decimal.Decimal{}
	case PhaseSpinPrep:
		m.resolveWinningLocked()
	}

	roundNo, winning, forced := m.roundNo, m.winning, m.forced
	l := m.listener
	m.mu.Unlock()

	if l != nil {
		l.OnPhaseEnter(ph, roundNo, winning, forced)
	}
}

// resolveWinningLocked 确定本回合开奖值（持锁调用）
// 优先消费强制指令；否则取敞口最小值（并列取最小数字）；无注单时随机
func (m *Machine) resolveWinningLocked() {
	// 1. 强制指令：指定回合匹配或未指定回合
	switch m.pending.kind {
	case overrideNextRound:
		m.winning = m.pending.value
		m.forced = true
		m.pending = override{}
		return
	case overrideForRound:
		if m.pending.round == m.roundNo {
			m.winning = m.pending.value
			m.forced = true
			m.pending = override{}
			return
		}
		// 目标回合未到：保留待后续回合消费；已过期的指令只会被新指令覆盖
	}

	// 2. 敞口最小化
	exp := m.exposure
	if m.src != nil {
		if e, err := m.src.Exposure(m.roundNo); err == nil {
			exp = e
		} else {
			logger.Warn("exposure source failed, fallback to zero exposure",
				zap.Int64("round_no", m.roundNo), zap.Error(err))
		}
	}
	m.exposure = exp

	allZero := true
	best := 0
	for v := 0; v < DrawValueCount; v++ {
		if !exp[v].IsZero() {
			allZero = false
		}
		if exp[v].LessThan(exp[best]) {
			best = v
		}
	}
	if allZero {
		// 无注单：敞口全为零，任意值等价，随机开出
		best = helper.GenerateRandNum(0, DrawValueCount)
	}
	m.winning = int8(best)
	m.forced = false
}

// ForceNextWinningValue 登记一次性强制开奖指令
// targetRound<=0 表示下一次备奖消费；后设的指令覆盖先前未消费的指令
func (m *Machine) ForceNextWinningValue(value int8, targetRound int64) error {
	if value < 0 || value >= DrawValueCount {
		return ErrInvalidWinningValue
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending.kind != overrideNone {
		logger.Warn("pending forced value superseded",
			zap.Int8("old_value", m.pending.value), zap.Int8("new_value", value))
	}
	if targetRound > 0 {
		m.pending = override{kind: overrideForRound, value: value, round: targetRound}
	} else {
		m.pending = override{kind: overrideNextRound, value: value}
	}
	return nil
}

// ClearForcedValue 清除未消费的强制指令
func (m *Machine) ClearForcedValue() {
	m.mu.Lock()
	m.pending = override{}
	m.mu.Unlock()
}

// ForcePhaseTransition 管理用强制跳转；未运行时仅告警
func (m *Machine) ForcePhaseTransition(target string) {
	if PhaseCode(target) == 0 {
		logger.Warn("force phase transition: unknown target", zap.String("target", target))
		return
	}
	m.mu.Lock()
	running := m.running
	ch := m.cmdCh
	m.mu.Unlock()
	if !running {
		logger.Warn("force phase transition ignored: machine not running",
			zap.String("target", target))
		return
	}
	select {
	case ch <- target:
	default:
		logger.Warn("force phase transition dropped: previous jump pending",
			zap.String("target", target))
	}
}

// Running 时间线是否在跑
func (m *Machine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetCurrentPhase 当前阶段
func (m *Machine) GetCurrentPhase() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// GetTimeRemaining 当前阶段剩余秒数
func (m *Machine) GetTimeRemaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remaining < 0 {
		return 0
	}
	return m.remaining
}

// CurrentRound 当前回合序号
func (m *Machine) CurrentRound() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roundNo
}

// WinningValue 本回合已定的开奖值（spin_preparation 之后有效）
func (m *Machine) WinningValue() (int8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.winning, m.winning >= 0
}

// Snapshot 阶段快照（接口层查询用）
type Snapshot struct {
	Phase       string `json:"phase"`
	RoundNo     int64  `json:"round_no"`
	Remaining   int    `json:"remaining_seconds"`
	PhaseStart  int64  `json:"phase_start_time"`
	PhaseEnd    int64  `json:"phase_end_time"`
	HasOverride bool   `json:"has_override"`
}

// GetSnapshot 返回当前阶段快照
func (m *Machine) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	startMs := m.enteredAt.UnixMilli()
	return Snapshot{
		Phase:       m.phase,
		RoundNo:     m.roundNo,
		Remaining:   m.remaining,
		PhaseStart:  startMs,
		PhaseEnd:    startMs + int64(m.durations.of(m.phase))*1000,
		HasOverride: m.pending.kind != overrideNone,
	}
}
