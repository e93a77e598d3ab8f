package state

import "fmt"

// Phase 回合阶段
const (
	PhaseBetting    = "betting"          // 下注中
	PhaseSpinPrep   = "spin_preparation" // 封盘备奖(内部确定开奖值，不对外)
	PhaseSpinning   = "spinning"         // 转盘动画
	PhaseResult     = "result"           // 开奖展示+结算
	PhaseTransition = "transition"       // 清场过渡，随后进入下一回合
)

// NextPhase 阶段严格循环推进，不存在其它转换
func NextPhase(cur string) (string, error) {
	switch cur {
	case PhaseBetting:
		return PhaseSpinPrep, nil
	case PhaseSpinPrep:
		return PhaseSpinning, nil
	case PhaseSpinning:
		return PhaseResult, nil
	case PhaseResult:
		return PhaseTransition, nil
	case PhaseTransition:
		return PhaseBetting, nil
	}
	return cur, fmt.Errorf("unknown phase: %s", cur)
}

// PhaseCode 约定的阶段码映射：1=betting 2=spin_preparation 3=spinning 4=result 5=transition
func PhaseCode(ph string) int8 {
	switch ph {
	case PhaseBetting:
		return 1
	case PhaseSpinPrep:
		return 2
	case PhaseSpinning:
		return 3
	case PhaseResult:
		return 4
	case PhaseTransition:
		return 5
	default:
		return 0
	}
}

// CodeToPhase 阶段码转阶段名
func CodeToPhase(c int8) string {
	switch c {
	case 1:
		return PhaseBetting
	case 2:
		return PhaseSpinPrep
	case 3:
		return PhaseSpinning
	case 4:
		return PhaseResult
	case 5:
		return PhaseTransition
	default:
		return ""
	}
}
