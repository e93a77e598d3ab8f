package model

import (
	"context"
	"time"

	g "github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/rahul3988/cp-win5-sub001/common"
)

// RoundEventAudit 对应 round_event_audit 表（回合阶段流转审计）
// event_type 采用数值枚举（1=round_start 2=spin_preparation 3=spinning 4=result 5=transition 6=emergency_stop 7=force_value 8=clear_force）
// prev_phase/next_phase 使用字符串快照，便于直观查询
type RoundEventAudit struct {
	ID int64 `db:"id"`
	// 回合号
	RoundNo int64 `db:"round_no"`
	// 事件类型
	EventType int8   `db:"event_type"`
	PrevPhase string `db:"prev_phase"`
	NextPhase string `db:"next_phase"`
	Operator  string `db:"operator"`
	Source    string `db:"source"`
	Payload   string `db:"payload"`
	TraceID   string `db:"trace_id"`
	CreatedAt int64  `db:"created_at"`
}

// 审计事件类型枚举
const (
	AuditRoundStart    int8 = 1
	AuditSpinPrep      int8 = 2
	AuditSpinning      int8 = 3
	AuditResult        int8 = 4
	AuditTransition    int8 = 5
	AuditEmergencyStop int8 = 6
	AuditForceValue    int8 = 7
	AuditClearForce    int8 = 8
)

// Insert
func (e *RoundEventAudit) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	_, err := common.InsertCtx(ctx, exec, "round_event_audit", g.Record{
		"round_no":   e.RoundNo,
		"event_type": e.EventType,
		"prev_phase": e.PrevPhase,
		"next_phase": e.NextPhase,
		"operator":   e.Operator,
		"source":     e.Source,
		"payload":    e.Payload,
		"trace_id":   e.TraceID,
		"created_at": time.Now().UnixMilli(),
	})
	return err
}
