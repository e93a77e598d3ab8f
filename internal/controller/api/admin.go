package api

import (
	"errors"
	"strings"

	helper "github.com/rahul3988/cp-win5-sub001/internal/common/helper"
	"github.com/rahul3988/cp-win5-sub001/internal/common/response"
	"github.com/rahul3988/cp-win5-sub001/internal/service"
	"github.com/rahul3988/cp-win5-sub001/internal/state"

	beego "github.com/beego/beego/v2/server/web"
)

// AdminController 管理接口：预设中奖值、强切阶段、紧急停止与恢复。
// 局时间线由内部引擎自动驱动，这些接口只做人工干预，不负责日常流转。
type AdminController struct{ beego.Controller }

// adminOperator 提取操作员标识：优先 X-Operator 头，缺省记 admin
func adminOperator(c *AdminController) string {
	if op := strings.TrimSpace(c.Ctx.Input.Header("X-Operator")); op != "" {
		return op
	}
	return "admin"
}

// engineOrError 获取运行中的引擎，未初始化时直接响应 503
func engineOrError(c *AdminController, traceID string) *service.Engine {
	eng := service.Default()
	if eng == nil {
		response.ErrorWithMessage(&c.Controller, 503, response.CodeSystemError, "round engine not ready", traceID)
		return nil
	}
	return eng
}

// ForceValue 预设中奖值：POST /api/admin/force_value
// target_round 缺省（0）表示对下一个进入开奖准备的局生效
func (c *AdminController) ForceValue() {
	fp, ok, msg := helper.ParseAndValidateForceValue(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}
	traceID := helper.GetTraceID(c.Ctx)
	eng := engineOrError(c, traceID)
	if eng == nil {
		return
	}
	if err := eng.ForceNextWinningValue(c.Ctx.Request.Context(), int8(fp.Value), fp.TargetRound, adminOperator(c), traceID); err != nil {
		if errors.Is(err, state.ErrInvalidWinningValue) {
			response.BadRequest(&c.Controller, "value must be 0..9", traceID)
			return
		}
		if errors.Is(err, service.ErrEngineNotRunning) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, map[string]interface{}{
		"value":        fp.Value,
		"target_round": fp.TargetRound,
	}, traceID)
}

// ClearForce 清除预设中奖值：POST /api/admin/clear_force
func (c *AdminController) ClearForce() {
	traceID := helper.GetTraceID(c.Ctx)
	eng := engineOrError(c, traceID)
	if eng == nil {
		return
	}
	if err := eng.ClearForcedValue(c.Ctx.Request.Context(), adminOperator(c), traceID); err != nil {
		if errors.Is(err, service.ErrEngineNotRunning) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, nil, traceID)
}

// ForcePhase 强切阶段：POST /api/admin/force_phase
func (c *AdminController) ForcePhase() {
	fp, ok, msg := helper.ParseAndValidateForcePhase(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}
	traceID := helper.GetTraceID(c.Ctx)
	eng := engineOrError(c, traceID)
	if eng == nil {
		return
	}
	if err := eng.ForcePhase(fp.Phase); err != nil {
		if errors.Is(err, service.ErrEngineNotRunning) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		response.BadRequest(&c.Controller, "unknown phase: "+fp.Phase, traceID)
		return
	}
	response.Success(&c.Controller, map[string]interface{}{"phase": fp.Phase}, traceID)
}

// EmergencyStop 紧急停止：POST /api/admin/emergency_stop
// 停表、取消当前局并按原扣款路径全额退款
func (c *AdminController) EmergencyStop() {
	ep, ok, msg := helper.ParseEmergencyStop(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}
	traceID := helper.GetTraceID(c.Ctx)
	eng := engineOrError(c, traceID)
	if eng == nil {
		return
	}
	if err := eng.EmergencyStop(c.Ctx.Request.Context(), adminOperator(c), ep.Reason, traceID); err != nil {
		if errors.Is(err, service.ErrEngineNotRunning) {
			response.Conflict(&c.Controller, response.CodeInvalidState, traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, nil, traceID)
}

// Resume 恢复时间线：POST /api/admin/resume
func (c *AdminController) Resume() {
	traceID := helper.GetTraceID(c.Ctx)
	eng := engineOrError(c, traceID)
	if eng == nil {
		return
	}
	if err := eng.Resume(c.Ctx.Request.Context()); err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}
	response.Success(&c.Controller, map[string]interface{}{
		"running": eng.Running(),
	}, traceID)
}
